package shared

import (
	"net/url"
	"strconv"
)

// ParseListFilters builds ListFilters from query parameters, scoped to the
// given company.
func ParseListFilters(q url.Values, companyID int64) ListFilters {
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = DefaultPage
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = DefaultLimit
	}

	filters := ListFilters{
		CompanyID: companyID,
		Page:      page,
		Limit:     limit,
		Search:    q.Get("search"),
		SortBy:    q.Get("sort"),
		SortDir:   q.Get("dir"),
	}

	if v := q.Get("is_active"); v != "" {
		isActive := v == "true"
		filters.IsActive = &isActive
	}
	if v := q.Get("category_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filters.CategoryID = &id
		}
	}
	if v := q.Get("warehouse_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filters.WarehouseID = &id
		}
	}
	return filters
}
