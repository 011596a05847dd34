package warehouses

import "time"

// WarehouseType enumerates the kinds of warehouse a company runs.
type WarehouseType string

const (
	TypeMain     WarehouseType = "main"
	TypeRegional WarehouseType = "regional"
	TypeTransit  WarehouseType = "transit"
	TypeStore    WarehouseType = "store"
)

func (t WarehouseType) Valid() bool {
	switch t {
	case TypeMain, TypeRegional, TypeTransit, TypeStore:
		return true
	default:
		return false
	}
}

type Warehouse struct {
	ID        int64         `json:"id"`
	CompanyID int64         `json:"company_id"`
	Code      string        `json:"code"`
	Name      string        `json:"name"`
	Type      WarehouseType `json:"type"`
	Address   string        `json:"address,omitempty"`
	IsActive  bool          `json:"is_active"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Location is a storage slot inside a warehouse. Codes are unique per
// warehouse, not per company. Capacity, when set, is an advisory upper
// bound in the product's unit; the ledger does not enforce it.
type Location struct {
	ID          int64    `json:"id"`
	WarehouseID int64    `json:"warehouse_id"`
	Code        string   `json:"code"`
	Description string   `json:"description,omitempty"`
	Capacity    *float64 `json:"capacity,omitempty"`
	IsActive    bool     `json:"is_active"`
}
