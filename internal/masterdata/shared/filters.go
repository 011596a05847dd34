// Package shared holds list filter types common to masterdata entities.
package shared

const (
	// Default pagination
	DefaultPage  = 1
	DefaultLimit = 20

	// Sort directions
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListFilters represents standard list filters. CompanyID is always set by
// the handler from the authenticated actor; repositories must apply it.
type ListFilters struct {
	CompanyID int64
	Page      int
	Limit     int
	Search    string
	SortBy    string
	SortDir   string
	IsActive  *bool

	// Entity specific filters
	CategoryID  *int64
	WarehouseID *int64
}
