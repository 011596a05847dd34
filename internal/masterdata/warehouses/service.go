package warehouses

import (
	"context"
	"fmt"
	"strings"

	mdshared "github.com/stocklane/stocklane/internal/masterdata/shared"
	"github.com/stocklane/stocklane/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Warehouse, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, companyID, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, fmt.Errorf("%w: invalid warehouse id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, companyID, id)
}

func (s *Service) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	if err := validateWarehouse(warehouse); err != nil {
		return Warehouse{}, err
	}
	return s.repo.Create(ctx, warehouse)
}

func (s *Service) Update(ctx context.Context, companyID, id int64, warehouse Warehouse) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid warehouse id", shared.ErrValidation)
	}
	if err := validateWarehouse(warehouse); err != nil {
		return err
	}
	return s.repo.Update(ctx, companyID, id, warehouse)
}

func (s *Service) Deactivate(ctx context.Context, companyID, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid warehouse id", shared.ErrValidation)
	}
	return s.repo.Deactivate(ctx, companyID, id)
}

func (s *Service) ListLocations(ctx context.Context, companyID, warehouseID int64) ([]Location, error) {
	if warehouseID <= 0 {
		return nil, fmt.Errorf("%w: invalid warehouse id", shared.ErrValidation)
	}
	return s.repo.ListLocations(ctx, companyID, warehouseID)
}

func (s *Service) GetLocation(ctx context.Context, companyID, id int64) (Location, error) {
	if id <= 0 {
		return Location{}, fmt.Errorf("%w: invalid location id", shared.ErrValidation)
	}
	return s.repo.GetLocation(ctx, companyID, id)
}

func (s *Service) CreateLocation(ctx context.Context, companyID int64, location Location) (Location, error) {
	if location.WarehouseID <= 0 {
		return Location{}, fmt.Errorf("%w: invalid warehouse id", shared.ErrValidation)
	}
	if strings.TrimSpace(location.Code) == "" {
		return Location{}, fmt.Errorf("%w: location code is required", shared.ErrValidation)
	}
	return s.repo.CreateLocation(ctx, companyID, location)
}

func (s *Service) UpdateLocation(ctx context.Context, companyID, id int64, location Location) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid location id", shared.ErrValidation)
	}
	return s.repo.UpdateLocation(ctx, companyID, id, location)
}

func validateWarehouse(w Warehouse) error {
	if strings.TrimSpace(w.Code) == "" {
		return fmt.Errorf("%w: warehouse code is required", shared.ErrValidation)
	}
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("%w: warehouse name is required", shared.ErrValidation)
	}
	if !w.Type.Valid() {
		return fmt.Errorf("%w: unknown warehouse type %q", shared.ErrValidation, w.Type)
	}
	return nil
}
