package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Unit enumerates the supported units of measure.
type Unit string

const (
	UnitPiece      Unit = "pc"
	UnitKilogram   Unit = "kg"
	UnitGram       Unit = "g"
	UnitLiter      Unit = "l"
	UnitMilliliter Unit = "ml"
	UnitMeter      Unit = "m"
	UnitCentimeter Unit = "cm"
	UnitBox        Unit = "box"
	UnitPack       Unit = "pack"
)

// Valid reports whether u is a known unit.
func (u Unit) Valid() bool {
	switch u {
	case UnitPiece, UnitKilogram, UnitGram, UnitLiter, UnitMilliliter,
		UnitMeter, UnitCentimeter, UnitBox, UnitPack:
		return true
	default:
		return false
	}
}

// Product represents a stockable item. Descriptive fields and pricing stay
// editable after movements reference the product; identity fields do not.
type Product struct {
	ID            int64           `json:"id"`
	CompanyID     int64           `json:"company_id"`
	CategoryID    *int64          `json:"category_id,omitempty"`
	SKU           string          `json:"sku"`
	Barcode       string          `json:"barcode,omitempty"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Unit          Unit            `json:"unit"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	MinStock      float64         `json:"min_stock"`
	MaxStock      *float64        `json:"max_stock,omitempty"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Category groups products, optionally under a parent category.
type Category struct {
	ID          int64  `json:"id"`
	CompanyID   int64  `json:"company_id"`
	ParentID    *int64 `json:"parent_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active"`
}
