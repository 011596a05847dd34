package ledger

import (
	"errors"
	"fmt"
	"time"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementPurchase credits a location from a received purchase order.
	MovementPurchase MovementType = "purchase"
	// MovementSale debits a location for an outbound shipment.
	MovementSale MovementType = "sale"
	// MovementTransfer moves stock between two locations.
	MovementTransfer MovementType = "transfer"
	// MovementAdjustment corrects a single location in either direction.
	MovementAdjustment MovementType = "adjustment"
	// MovementReturn credits a location with returned goods.
	MovementReturn MovementType = "return"
	// MovementProduction credits a location with manufactured output.
	MovementProduction MovementType = "production"
	// MovementConsumption debits a location for material used in production.
	MovementConsumption MovementType = "consumption"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementPurchase, MovementSale, MovementTransfer, MovementAdjustment,
		MovementReturn, MovementProduction, MovementConsumption:
		return true
	default:
		return false
	}
}

// Balance is the materialised stock state for one (product, location, batch)
// triple. Rows are created lazily on first movement and never deleted, even
// at zero quantity, so the movement history stays reconstructible.
type Balance struct {
	ID          int64      `json:"id"`
	ProductID   int64      `json:"product_id"`
	LocationID  int64      `json:"location_id"`
	Batch       string     `json:"batch"`
	Quantity    float64    `json:"quantity"`
	Reserved    float64    `json:"reserved"`
	Expiry      *time.Time `json:"expiry,omitempty"`
	LastCounted *time.Time `json:"last_counted,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Available returns the quantity not committed to outbound orders.
func (b Balance) Available() float64 {
	return b.Quantity - b.Reserved
}

// Movement is one immutable ledger entry. Quantity is always a positive
// magnitude; direction is carried by which location field is populated.
type Movement struct {
	ID             int64        `json:"id"`
	CompanyID      int64        `json:"company_id"`
	Type           MovementType `json:"movement_type"`
	ProductID      int64        `json:"product_id"`
	FromLocationID int64        `json:"from_location_id,omitempty"`
	ToLocationID   int64        `json:"to_location_id,omitempty"`
	Quantity       float64      `json:"quantity"`
	Batch          string       `json:"batch"`
	Expiry         *time.Time   `json:"expiry,omitempty"`
	Reference      string       `json:"reference"`
	Notes          string       `json:"notes"`
	OccurredAt     time.Time    `json:"occurred_at"`
	ActorID        int64        `json:"actor_id"`
}

// MovementFilter narrows movement history queries.
type MovementFilter struct {
	CompanyID  int64
	ProductID  int64
	LocationID int64
	Type       MovementType
	From       time.Time
	To         time.Time
	Limit      int
}

// BalanceFilter narrows balance queries.
type BalanceFilter struct {
	CompanyID   int64
	ProductID   int64
	LocationID  int64
	WarehouseID int64
	Limit       int
	Offset      int
}

var (
	// ErrInvalidQuantity indicates a zero or negative movement quantity.
	ErrInvalidQuantity = errors.New("ledger: quantity must be positive")
	// ErrInvalidMovementShape indicates the from/to locations do not match
	// the movement type.
	ErrInvalidMovementShape = errors.New("ledger: movement locations do not match type")
	// ErrInsufficientStock indicates a movement would drive a balance negative.
	ErrInsufficientStock = errors.New("ledger: insufficient stock")
	// ErrBalanceNotFound indicates a missing balance row.
	ErrBalanceNotFound = errors.New("ledger: balance not found")
	// ErrLocationNotFound indicates an unknown location id.
	ErrLocationNotFound = errors.New("ledger: location not found")
)

// InsufficientStockError names the product and location that lacked stock.
// WarehouseID is set instead of LocationID when the product had no stocked
// row anywhere in a warehouse. It matches ErrInsufficientStock under
// errors.Is.
type InsufficientStockError struct {
	ProductID   int64
	LocationID  int64
	WarehouseID int64
	Batch       string
	Requested   float64
	Available   float64
}

func (e *InsufficientStockError) Error() string {
	if e.LocationID == 0 && e.WarehouseID != 0 {
		return fmt.Sprintf("ledger: insufficient stock for product %d in warehouse %d: requested %.2f, no stocked rows",
			e.ProductID, e.WarehouseID, e.Requested)
	}
	if e.Batch != "" {
		return fmt.Sprintf("ledger: insufficient stock for product %d at location %d batch %q: requested %.2f, available %.2f",
			e.ProductID, e.LocationID, e.Batch, e.Requested, e.Available)
	}
	return fmt.Sprintf("ledger: insufficient stock for product %d at location %d: requested %.2f, available %.2f",
		e.ProductID, e.LocationID, e.Requested, e.Available)
}

// Is reports a match against the ErrInsufficientStock sentinel.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
