package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/shared"
)

// AuditPort records workflow actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts posted movements.
type MetricsPort interface {
	ObserveMovement(movementType string)
}

// IdempotencyPort guards receive requests against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

const qtyEpsilon = 1e-9

// Service orchestrates the purchase order lifecycle. Receiving posts
// purchase movements through the ledger inside the same transaction that
// updates the order, so an insufficient or failed line rolls everything
// back.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
	idem    IdempotencyPort
}

func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics, idem: idem}
}

// CreateOrderInput describes a new purchase order.
type CreateOrderInput struct {
	CompanyID    int64
	SupplierID   int64
	WarehouseID  int64
	LocationID   int64
	ExpectedDate *time.Time
	Notes        string
	CreatedBy    int64
}

// Create validates and stores a draft order.
func (s *Service) Create(ctx context.Context, input CreateOrderInput, items []Item) (PurchaseOrder, error) {
	if input.CompanyID == 0 || input.SupplierID == 0 || input.LocationID == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: company, supplier and location are required", shared.ErrValidation)
	}
	if len(items) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: at least one item is required", shared.ErrValidation)
	}
	for _, item := range items {
		if item.ProductID == 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: item product is required", shared.ErrValidation)
		}
		if item.Quantity <= 0 {
			return PurchaseOrder{}, ledger.ErrInvalidQuantity
		}
	}

	order := PurchaseOrder{
		CompanyID:    input.CompanyID,
		Number:       shared.NewDocNumber("PO"),
		SupplierID:   input.SupplierID,
		WarehouseID:  input.WarehouseID,
		LocationID:   input.LocationID,
		Status:       StatusDraft,
		ExpectedDate: input.ExpectedDate,
		Notes:        input.Notes,
		CreatedBy:    input.CreatedBy,
		Items:        items,
	}
	created, err := s.repo.Create(ctx, order)
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.record(ctx, created, created.CreatedBy, "procurement:create")
	return created, nil
}

func (s *Service) Get(ctx context.Context, companyID, id int64) (PurchaseOrder, error) {
	if id <= 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: invalid order id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, companyID, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
	}
	return s.repo.List(ctx, filter)
}

// Submit moves a draft order to pending approval.
func (s *Service) Submit(ctx context.Context, companyID, id, actorID int64) error {
	return s.transition(ctx, companyID, id, actorID, "procurement:submit", func(tx TxRepository, order PurchaseOrder) error {
		if !order.Status.CanSubmit() {
			return ErrStatusTransition
		}
		return tx.SetStatus(ctx, order.ID, StatusPending)
	})
}

// Approve marks a pending order approved, recording the approver.
func (s *Service) Approve(ctx context.Context, companyID, id, actorID int64) error {
	return s.transition(ctx, companyID, id, actorID, "procurement:approve", func(tx TxRepository, order PurchaseOrder) error {
		if !order.Status.CanApprove() {
			return ErrStatusTransition
		}
		return tx.SetApproved(ctx, order.ID, actorID)
	})
}

// MarkOrdered records that the order has been sent to the supplier.
func (s *Service) MarkOrdered(ctx context.Context, companyID, id, actorID int64) error {
	return s.transition(ctx, companyID, id, actorID, "procurement:order", func(tx TxRepository, order PurchaseOrder) error {
		if !order.Status.CanOrder() {
			return ErrStatusTransition
		}
		return tx.SetStatus(ctx, order.ID, StatusOrdered)
	})
}

// Cancel voids the order. Orders with any received goods cannot be
// cancelled.
func (s *Service) Cancel(ctx context.Context, companyID, id, actorID int64) error {
	return s.transition(ctx, companyID, id, actorID, "procurement:cancel", func(tx TxRepository, order PurchaseOrder) error {
		if !order.Status.CanCancel() {
			return ErrStatusTransition
		}
		return tx.SetStatus(ctx, order.ID, StatusCancelled)
	})
}

func (s *Service) transition(ctx context.Context, companyID, id, actorID int64, action string, fn func(TxRepository, PurchaseOrder) error) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid order id", shared.ErrValidation)
	}
	var order PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, _ ledger.TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		return fn(tx, order)
	})
	if err != nil {
		return err
	}
	s.record(ctx, order, actorID, action)
	return nil
}

// ReceiveLine is a partial receipt for one order item.
type ReceiveLine struct {
	ItemID   int64
	Quantity float64
}

// ReceiveInput books in goods against the order. With no lines every item
// is received in full for its outstanding quantity.
type ReceiveInput struct {
	CompanyID      int64
	OrderID        int64
	ActorID        int64
	Lines          []ReceiveLine
	Notes          string
	IdempotencyKey string
}

// Receive posts purchase movements for the received quantities and advances
// the order to partial or received. The item updates, status change and
// ledger movements commit atomically.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (PurchaseOrder, error) {
	if input.OrderID <= 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: invalid order id", shared.ErrValidation)
	}
	if input.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, input.IdempotencyKey, "procurement"); err != nil {
			return PurchaseOrder{}, err
		}
	}

	var (
		order     PurchaseOrder
		movements []ledger.Movement
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, ltx ledger.TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, input.CompanyID, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status == StatusReceived {
			return ErrAlreadyReceived
		}
		if !order.Status.CanReceive() {
			return ErrStatusTransition
		}

		quantities, err := resolveReceiveLines(order, input.Lines)
		if err != nil {
			return err
		}

		for i := range order.Items {
			item := &order.Items[i]
			qty := quantities[item.ID]
			if qty <= 0 {
				continue
			}
			movement, err := ledger.PostMovement(ctx, ltx, ledger.ApplyMovementInput{
				CompanyID:    order.CompanyID,
				Type:         ledger.MovementPurchase,
				ProductID:    item.ProductID,
				ToLocationID: order.LocationID,
				Quantity:     qty,
				Batch:        item.Batch,
				Expiry:       item.Expiry,
				Reference:    order.Number,
				Notes:        input.Notes,
				ActorID:      input.ActorID,
			})
			if err != nil {
				return err
			}
			movements = append(movements, movement)
			item.Received += qty
			if err := tx.UpdateItemReceived(ctx, item.ID, item.Received); err != nil {
				return err
			}
		}

		order.Status = receiptStatus(order.Items)
		return tx.SetStatus(ctx, order.ID, order.Status)
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.idem != nil {
			_ = s.idem.Delete(ctx, input.IdempotencyKey)
		}
		return PurchaseOrder{}, err
	}

	for _, m := range movements {
		if s.metrics != nil {
			s.metrics.ObserveMovement(string(m.Type))
		}
	}
	s.record(ctx, order, input.ActorID, "procurement:receive")
	return order, nil
}

// resolveReceiveLines maps item id to the quantity to receive now. Explicit
// lines must name items on the order and stay within the outstanding
// quantity; absent lines mean receive everything outstanding.
func resolveReceiveLines(order PurchaseOrder, lines []ReceiveLine) (map[int64]float64, error) {
	quantities := make(map[int64]float64, len(order.Items))
	outstanding := 0.0
	byID := make(map[int64]Item, len(order.Items))
	for _, item := range order.Items {
		byID[item.ID] = item
		outstanding += item.Outstanding()
	}
	if outstanding <= qtyEpsilon {
		return nil, ErrNothingToReceive
	}

	if len(lines) == 0 {
		for _, item := range order.Items {
			quantities[item.ID] = item.Outstanding()
		}
		return quantities, nil
	}

	for _, line := range lines {
		item, ok := byID[line.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: item %d is not on the order", shared.ErrValidation, line.ItemID)
		}
		if line.Quantity <= 0 {
			return nil, ledger.ErrInvalidQuantity
		}
		if line.Quantity > item.Outstanding()+qtyEpsilon {
			return nil, ErrExceedsOrdered
		}
		quantities[line.ItemID] += line.Quantity
		if quantities[line.ItemID] > item.Outstanding()+qtyEpsilon {
			return nil, ErrExceedsOrdered
		}
	}
	total := 0.0
	for _, q := range quantities {
		total += q
	}
	if total <= qtyEpsilon {
		return nil, ErrNothingToReceive
	}
	return quantities, nil
}

func receiptStatus(items []Item) Status {
	for _, item := range items {
		if item.Outstanding() > qtyEpsilon {
			return StatusPartial
		}
	}
	return StatusReceived
}

func (s *Service) record(ctx context.Context, order PurchaseOrder, actorID int64, action string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: order.CompanyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "purchase_order",
		EntityID:  fmt.Sprintf("%d", order.ID),
		Meta: map[string]any{
			"number": order.Number,
			"status": string(order.Status),
		},
	})
}
