package products

import (
	"fmt"
	"strings"

	"github.com/stocklane/stocklane/internal/shared"
)

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.SKU) == "" {
		return fmt.Errorf("%w: sku is required", shared.ErrValidation)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if !p.Unit.Valid() {
		return fmt.Errorf("%w: unknown unit %q", shared.ErrValidation, p.Unit)
	}
	if p.PurchasePrice.IsNegative() || p.SellingPrice.IsNegative() {
		return fmt.Errorf("%w: prices must not be negative", shared.ErrValidation)
	}
	if p.TaxRate.IsNegative() {
		return fmt.Errorf("%w: tax rate must not be negative", shared.ErrValidation)
	}
	if p.MinStock < 0 {
		return fmt.Errorf("%w: min stock must not be negative", shared.ErrValidation)
	}
	if p.MaxStock != nil && *p.MaxStock < p.MinStock {
		return fmt.Errorf("%w: max stock must not be below min stock", shared.ErrValidation)
	}
	return nil
}

func (s *Service) validateCategory(c Category) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: category name is required", shared.ErrValidation)
	}
	if c.ParentID != nil && *c.ParentID == c.ID && c.ID != 0 {
		return fmt.Errorf("%w: category cannot be its own parent", shared.ErrValidation)
	}
	return nil
}
