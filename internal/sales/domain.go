package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the sales order lifecycle state. Confirming an order reserves
// its stock; shipping consumes the reservation.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusConfirmed Status = "confirmed"
	StatusPartial   Status = "partial"
	StatusShipped   Status = "shipped"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusConfirmed, StatusPartial, StatusShipped, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanConfirm reports whether the order can be confirmed.
func (s Status) CanConfirm() bool { return s == StatusDraft }

// CanShip reports whether goods can go out against the order.
func (s Status) CanShip() bool { return s == StatusConfirmed || s == StatusPartial }

// CanCancel reports whether the order can still be cancelled. Once goods
// have shipped the order is no longer cancellable.
func (s Status) CanCancel() bool { return s == StatusDraft || s == StatusConfirmed }

// SalesOrder is an outbound order for a customer, fulfilled from
// LocationID.
type SalesOrder struct {
	ID          int64     `json:"id"`
	CompanyID   int64     `json:"company_id"`
	Number      string    `json:"number"`
	CustomerID  int64     `json:"customer_id"`
	WarehouseID int64     `json:"warehouse_id"`
	LocationID  int64     `json:"location_id"`
	Status      Status    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Items       []Item    `json:"items,omitempty"`
}

// Item is one ordered product line. Shipped accumulates across partial
// shipments and never exceeds Quantity.
type Item struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  float64         `json:"quantity"`
	Shipped   float64         `json:"shipped"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	Batch     string          `json:"batch,omitempty"`
}

// Outstanding returns the quantity still to ship for the line.
func (i Item) Outstanding() float64 {
	out := i.Quantity - i.Shipped
	if out < 0 {
		return 0
	}
	return out
}

// ShipmentStatus tracks a shipment after it leaves the warehouse.
type ShipmentStatus string

const (
	ShipmentShipped   ShipmentStatus = "shipped"
	ShipmentDelivered ShipmentStatus = "delivered"
)

// Shipment records one outbound delivery against a sales order. A shipment
// is created at ship time, when the stock movements post.
type Shipment struct {
	ID             int64          `json:"id"`
	CompanyID      int64          `json:"company_id"`
	OrderID        int64          `json:"order_id"`
	Number         string         `json:"number"`
	Status         ShipmentStatus `json:"status"`
	Carrier        string         `json:"carrier,omitempty"`
	TrackingNumber string         `json:"tracking_number,omitempty"`
	ShippedAt      time.Time      `json:"shipped_at"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
}

// ListFilter narrows sales order listings.
type ListFilter struct {
	CompanyID  int64
	Status     Status
	CustomerID int64
	Page       int
	Limit      int
}

var (
	// ErrStatusTransition indicates the order is not in a state that allows
	// the requested action.
	ErrStatusTransition = errors.New("sales: status does not allow this action")
	// ErrAlreadyShipped indicates the order has been fully shipped.
	ErrAlreadyShipped = errors.New("sales: order already fully shipped")
	// ErrNothingToShip indicates no outstanding quantity remains.
	ErrNothingToShip = errors.New("sales: nothing left to ship")
	// ErrExceedsOrdered indicates a shipment line above the outstanding
	// quantity.
	ErrExceedsOrdered = errors.New("sales: shipped quantity exceeds outstanding")
	// ErrShipmentDelivered indicates the shipment was already delivered.
	ErrShipmentDelivered = errors.New("sales: shipment already delivered")
)
