package reporting

import (
	"context"
	"fmt"

	"github.com/stocklane/stocklane/internal/shared"
)

// Service answers stock reporting reads through the cache.
type Service struct {
	repo  RepositoryPort
	cache *Cache
}

func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// StockLevelsPage is the cached paginated listing payload.
type StockLevelsPage struct {
	Levels     []StockLevel      `json:"levels"`
	Pagination shared.Pagination `json:"pagination"`
}

func (s *Service) StockLevels(ctx context.Context, filter StockLevelFilter) (StockLevelsPage, error) {
	if filter.CompanyID == 0 {
		return StockLevelsPage{}, fmt.Errorf("%w: company is required", shared.ErrValidation)
	}
	key, err := s.cache.BuildKey(ctx, keyStockLevels(filter)...)
	if err != nil {
		return StockLevelsPage{}, err
	}
	var page StockLevelsPage
	err = s.cache.FetchJSON(ctx, key, &page, func(ctx context.Context) (any, error) {
		levels, total, err := s.repo.StockLevels(ctx, filter)
		if err != nil {
			return nil, err
		}
		return StockLevelsPage{
			Levels:     levels,
			Pagination: shared.NewPagination(filter.Page, filter.Limit, total),
		}, nil
	})
	return page, err
}

func (s *Service) LowStock(ctx context.Context, companyID, warehouseID int64) ([]LowStockItem, error) {
	if companyID == 0 {
		return nil, fmt.Errorf("%w: company is required", shared.ErrValidation)
	}
	key, err := s.cache.BuildKey(ctx, keyLowStock(companyID, warehouseID)...)
	if err != nil {
		return nil, err
	}
	var items []LowStockItem
	err = s.cache.FetchJSON(ctx, key, &items, func(ctx context.Context) (any, error) {
		return s.repo.LowStock(ctx, companyID, warehouseID)
	})
	return items, err
}

// Overview aggregates the stock picture, fetching the low stock count
// alongside the balance totals.
func (s *Service) Overview(ctx context.Context, companyID int64) (Overview, error) {
	if companyID == 0 {
		return Overview{}, fmt.Errorf("%w: company is required", shared.ErrValidation)
	}
	key, err := s.cache.BuildKey(ctx, keyOverview(companyID)...)
	if err != nil {
		return Overview{}, err
	}
	var ov Overview
	err = s.cache.FetchJSON(ctx, key, &ov, func(ctx context.Context) (any, error) {
		ov, err := s.repo.Overview(ctx, companyID)
		if err != nil {
			return nil, err
		}
		low, err := s.repo.LowStock(ctx, companyID, 0)
		if err != nil {
			return nil, err
		}
		ov.LowStockCount = len(low)
		return ov, nil
	})
	return ov, err
}

// Invalidate bumps the cache version after stock has moved.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
