package products

import (
	"context"
	"fmt"

	mdshared "github.com/stocklane/stocklane/internal/masterdata/shared"
	"github.com/stocklane/stocklane/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, companyID, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("%w: invalid product id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, companyID, id)
}

func (s *Service) GetBySKU(ctx context.Context, companyID int64, sku string) (Product, error) {
	if sku == "" {
		return Product{}, fmt.Errorf("%w: sku is required", shared.ErrValidation)
	}
	return s.repo.GetBySKU(ctx, companyID, sku)
}

func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	if product.CategoryID != nil {
		if _, err := s.repo.GetCategory(ctx, product.CompanyID, *product.CategoryID); err != nil {
			return Product{}, fmt.Errorf("%w: unknown category", shared.ErrValidation)
		}
	}
	return s.repo.Create(ctx, product)
}

func (s *Service) Update(ctx context.Context, companyID, id int64, product Product) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid product id", shared.ErrValidation)
	}
	if err := s.validate(product); err != nil {
		return err
	}
	if product.CategoryID != nil {
		if _, err := s.repo.GetCategory(ctx, companyID, *product.CategoryID); err != nil {
			return fmt.Errorf("%w: unknown category", shared.ErrValidation)
		}
	}
	return s.repo.Update(ctx, companyID, id, product)
}

func (s *Service) Deactivate(ctx context.Context, companyID, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid product id", shared.ErrValidation)
	}
	return s.repo.Deactivate(ctx, companyID, id)
}

func (s *Service) ListCategories(ctx context.Context, filters mdshared.ListFilters) ([]Category, int, error) {
	return s.repo.ListCategories(ctx, filters)
}

func (s *Service) CreateCategory(ctx context.Context, category Category) (Category, error) {
	if err := s.validateCategory(category); err != nil {
		return Category{}, err
	}
	if category.ParentID != nil {
		if _, err := s.repo.GetCategory(ctx, category.CompanyID, *category.ParentID); err != nil {
			return Category{}, fmt.Errorf("%w: unknown parent category", shared.ErrValidation)
		}
	}
	return s.repo.CreateCategory(ctx, category)
}

func (s *Service) UpdateCategory(ctx context.Context, companyID, id int64, category Category) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid category id", shared.ErrValidation)
	}
	category.ID = id
	if err := s.validateCategory(category); err != nil {
		return err
	}
	return s.repo.UpdateCategory(ctx, companyID, id, category)
}
