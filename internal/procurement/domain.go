package procurement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the purchase order lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusOrdered   Status = "ordered"
	StatusPartial   Status = "partial"
	StatusReceived  Status = "received"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusOrdered,
		StatusPartial, StatusReceived, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanSubmit reports whether the order can move to pending approval.
func (s Status) CanSubmit() bool { return s == StatusDraft }

// CanApprove reports whether the order can be approved.
func (s Status) CanApprove() bool { return s == StatusPending }

// CanOrder reports whether the order can be sent to the supplier.
func (s Status) CanOrder() bool { return s == StatusApproved }

// CanReceive reports whether goods can be booked in against the order.
func (s Status) CanReceive() bool { return s == StatusOrdered || s == StatusPartial }

// CanCancel reports whether the order can still be cancelled. Once any
// goods have been received the order is no longer cancellable.
func (s Status) CanCancel() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusOrdered:
		return true
	default:
		return false
	}
}

// PurchaseOrder is an inbound order against a supplier. Goods are booked
// into LocationID when received.
type PurchaseOrder struct {
	ID           int64      `json:"id"`
	CompanyID    int64      `json:"company_id"`
	Number       string     `json:"number"`
	SupplierID   int64      `json:"supplier_id"`
	WarehouseID  int64      `json:"warehouse_id"`
	LocationID   int64      `json:"location_id"`
	Status       Status     `json:"status"`
	ExpectedDate *time.Time `json:"expected_date,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	CreatedBy    int64      `json:"created_by"`
	ApprovedBy   *int64     `json:"approved_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Items        []Item     `json:"items,omitempty"`
}

// Item is one ordered product line. Received accumulates across partial
// deliveries and never exceeds Quantity.
type Item struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  float64         `json:"quantity"`
	Received  float64         `json:"received"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	Batch     string          `json:"batch,omitempty"`
	Expiry    *time.Time      `json:"expiry,omitempty"`
}

// Outstanding returns the quantity still expected for the line.
func (i Item) Outstanding() float64 {
	out := i.Quantity - i.Received
	if out < 0 {
		return 0
	}
	return out
}

// ListFilter narrows purchase order listings.
type ListFilter struct {
	CompanyID  int64
	Status     Status
	SupplierID int64
	Page       int
	Limit      int
}

var (
	// ErrStatusTransition indicates the order is not in a state that allows
	// the requested action.
	ErrStatusTransition = errors.New("procurement: status does not allow this action")
	// ErrAlreadyReceived indicates the order has been fully received.
	ErrAlreadyReceived = errors.New("procurement: order already fully received")
	// ErrNothingToReceive indicates no outstanding quantity remains.
	ErrNothingToReceive = errors.New("procurement: nothing left to receive")
	// ErrExceedsOrdered indicates a receipt line above the outstanding
	// quantity.
	ErrExceedsOrdered = errors.New("procurement: received quantity exceeds outstanding")
)
