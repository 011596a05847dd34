package transfers

import (
	"errors"
	"time"
)

// Status is the transfer lifecycle state. Transfers move atomically from
// pending to completed; there is no partial state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Transfer moves stock between two warehouses. All items land in
// ToLocationID; each item names or resolves its own source location.
type Transfer struct {
	ID              int64      `json:"id"`
	CompanyID       int64      `json:"company_id"`
	Number          string     `json:"number"`
	FromWarehouseID int64      `json:"from_warehouse_id"`
	ToWarehouseID   int64      `json:"to_warehouse_id"`
	ToLocationID    int64      `json:"to_location_id"`
	Status          Status     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	CreatedBy       int64      `json:"created_by"`
	ProcessedBy     *int64     `json:"processed_by,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Items           []Item     `json:"items,omitempty"`
}

// Item is one product line on a transfer. SourceLocationID zero means the
// source is resolved at processing time; resolution only succeeds when the
// product sits in exactly one stocked row within the source warehouse.
type Item struct {
	ID               int64   `json:"id"`
	TransferID       int64   `json:"transfer_id"`
	ProductID        int64   `json:"product_id"`
	Quantity         float64 `json:"quantity"`
	SourceLocationID int64   `json:"source_location_id,omitempty"`
	Batch            string  `json:"batch,omitempty"`
}

// ListFilter narrows transfer listings.
type ListFilter struct {
	CompanyID       int64
	Status          Status
	FromWarehouseID int64
	ToWarehouseID   int64
	Page            int
	Limit           int
}

var (
	// ErrAlreadyProcessed indicates the transfer was completed before.
	ErrAlreadyProcessed = errors.New("transfers: transfer already processed")
	// ErrNotPending indicates the transfer is cancelled or otherwise not
	// processable.
	ErrNotPending = errors.New("transfers: transfer is not pending")
	// ErrAmbiguousSource indicates a product sits in several stocked rows of
	// the source warehouse and the item names none of them.
	ErrAmbiguousSource = errors.New("transfers: source location is ambiguous")
	// ErrSameWarehouse indicates source and destination warehouses match.
	ErrSameWarehouse = errors.New("transfers: source and destination warehouses must differ")
)
