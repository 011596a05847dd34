package sales

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

// IdempotencyPort guards ship requests against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

const qtyEpsilon = 1e-9

// Service orchestrates the sales order lifecycle. Confirming reserves
// stock at the fulfilment location; shipping consumes the reservation and
// posts sale movements in the same transaction that updates the order.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
	idem    IdempotencyPort
}

func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics, idem: idem}
}

// CreateOrderInput describes a new sales order.
type CreateOrderInput struct {
	CompanyID   int64
	CustomerID  int64
	WarehouseID int64
	LocationID  int64
	Notes       string
	CreatedBy   int64
}

// Create validates and stores a draft order.
func (s *Service) Create(ctx context.Context, input CreateOrderInput, items []Item) (SalesOrder, error) {
	if input.CompanyID == 0 || input.CustomerID == 0 || input.LocationID == 0 {
		return SalesOrder{}, fmt.Errorf("%w: company, customer and location are required", shared.ErrValidation)
	}
	if len(items) == 0 {
		return SalesOrder{}, fmt.Errorf("%w: at least one item is required", shared.ErrValidation)
	}
	for _, item := range items {
		if item.ProductID == 0 {
			return SalesOrder{}, fmt.Errorf("%w: item product is required", shared.ErrValidation)
		}
		if item.Quantity <= 0 {
			return SalesOrder{}, ledger.ErrInvalidQuantity
		}
	}

	order := SalesOrder{
		CompanyID:   input.CompanyID,
		Number:      shared.NewDocNumber("SO"),
		CustomerID:  input.CustomerID,
		WarehouseID: input.WarehouseID,
		LocationID:  input.LocationID,
		Status:      StatusDraft,
		Notes:       input.Notes,
		CreatedBy:   input.CreatedBy,
		Items:       items,
	}
	created, err := s.repo.Create(ctx, order)
	if err != nil {
		return SalesOrder{}, err
	}
	s.record(ctx, created, created.CreatedBy, "sales:create")
	return created, nil
}

func (s *Service) Get(ctx context.Context, companyID, id int64) (SalesOrder, error) {
	if id <= 0 {
		return SalesOrder{}, fmt.Errorf("%w: invalid order id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, companyID, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]SalesOrder, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
	}
	return s.repo.List(ctx, filter)
}

// Confirm reserves the full ordered quantity of every item at the
// fulfilment location. A single short item fails the whole confirmation.
func (s *Service) Confirm(ctx context.Context, companyID, id, actorID int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid order id", shared.ErrValidation)
	}
	var order SalesOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, ltx ledger.TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		if !order.Status.CanConfirm() {
			return ErrStatusTransition
		}
		for _, item := range order.Items {
			if err := ledger.Reserve(ctx, ltx, item.ProductID, order.LocationID, item.Batch, item.Quantity); err != nil {
				return err
			}
		}
		order.Status = StatusConfirmed
		return tx.SetStatus(ctx, order.ID, StatusConfirmed)
	})
	if err != nil {
		return err
	}
	s.record(ctx, order, actorID, "sales:confirm")
	return nil
}

// Cancel voids the order. A confirmed order releases its reservations;
// orders with shipped goods cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, companyID, id, actorID int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid order id", shared.ErrValidation)
	}
	var order SalesOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, ltx ledger.TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		if !order.Status.CanCancel() {
			return ErrStatusTransition
		}
		if order.Status == StatusConfirmed {
			for _, item := range order.Items {
				if err := ledger.Release(ctx, ltx, item.ProductID, order.LocationID, item.Batch, item.Outstanding()); err != nil {
					return err
				}
			}
		}
		order.Status = StatusCancelled
		return tx.SetStatus(ctx, order.ID, StatusCancelled)
	})
	if err != nil {
		return err
	}
	s.record(ctx, order, actorID, "sales:cancel")
	return nil
}

// ShipLine is a partial shipment for one order item.
type ShipLine struct {
	ItemID   int64
	Quantity float64
}

// ShipInput ships goods against the order. With no lines every item ships
// in full for its outstanding quantity.
type ShipInput struct {
	CompanyID      int64
	OrderID        int64
	ActorID        int64
	Lines          []ShipLine
	Carrier        string
	TrackingNumber string
	Notes          string
	IdempotencyKey string
}

// ShipResult is the order after shipping plus the shipment record created
// for this outbound delivery.
type ShipResult struct {
	Order    SalesOrder `json:"order"`
	Shipment Shipment   `json:"shipment"`
}

// Ship posts sale movements for the shipped quantities, consuming the
// reservations taken at confirmation, creates a shipment record and
// advances the order to partial or shipped. Everything commits atomically.
func (s *Service) Ship(ctx context.Context, input ShipInput) (ShipResult, error) {
	if input.OrderID <= 0 {
		return ShipResult{}, fmt.Errorf("%w: invalid order id", shared.ErrValidation)
	}
	if input.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, input.IdempotencyKey, "sales"); err != nil {
			return ShipResult{}, err
		}
	}

	var (
		result    ShipResult
		movements []ledger.Movement
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, ltx ledger.TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, input.CompanyID, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status == StatusShipped {
			return ErrAlreadyShipped
		}
		if !order.Status.CanShip() {
			return ErrStatusTransition
		}

		quantities, err := resolveShipLines(order, input.Lines)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		shipment := Shipment{
			CompanyID:      order.CompanyID,
			OrderID:        order.ID,
			Number:         shared.NewDocNumber("SH"),
			Status:         ShipmentShipped,
			Carrier:        input.Carrier,
			TrackingNumber: input.TrackingNumber,
			ShippedAt:      now,
		}

		for i := range order.Items {
			item := &order.Items[i]
			qty := quantities[item.ID]
			if qty <= 0 {
				continue
			}
			movement, err := ledger.PostMovement(ctx, ltx, ledger.ApplyMovementInput{
				CompanyID:          order.CompanyID,
				Type:               ledger.MovementSale,
				ProductID:          item.ProductID,
				FromLocationID:     order.LocationID,
				Quantity:           qty,
				Batch:              item.Batch,
				Reference:          shipment.Number,
				Notes:              input.Notes,
				ActorID:            input.ActorID,
				OccurredAt:         now,
				ConsumeReservation: true,
			})
			if err != nil {
				return err
			}
			movements = append(movements, movement)
			item.Shipped += qty
			if err := tx.UpdateItemShipped(ctx, item.ID, item.Shipped); err != nil {
				return err
			}
		}

		order.Status = shipmentStatus(order.Items)
		if err := tx.SetStatus(ctx, order.ID, order.Status); err != nil {
			return err
		}
		shipment, err = tx.InsertShipment(ctx, shipment)
		if err != nil {
			return err
		}
		result = ShipResult{Order: order, Shipment: shipment}
		return nil
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.idem != nil {
			_ = s.idem.Delete(ctx, input.IdempotencyKey)
		}
		return ShipResult{}, err
	}

	for _, m := range movements {
		if s.metrics != nil {
			s.metrics.ObserveMovement(string(m.Type))
		}
	}
	s.record(ctx, result.Order, input.ActorID, "sales:ship")
	return result, nil
}

func resolveShipLines(order SalesOrder, lines []ShipLine) (map[int64]float64, error) {
	quantities := make(map[int64]float64, len(order.Items))
	outstanding := 0.0
	byID := make(map[int64]Item, len(order.Items))
	for _, item := range order.Items {
		byID[item.ID] = item
		outstanding += item.Outstanding()
	}
	if outstanding <= qtyEpsilon {
		return nil, ErrNothingToShip
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
		return nil, ErrNothingToShip
	}
	return quantities, nil
}

func shipmentStatus(items []Item) Status {
	for _, item := range items {
		if item.Outstanding() > qtyEpsilon {
			return StatusPartial
		}
	}
	return StatusShipped
}

// Shipments lists shipment records for an order.
func (s *Service) Shipments(ctx context.Context, companyID, orderID int64) ([]Shipment, error) {
	if orderID <= 0 {
		return nil, fmt.Errorf("%w: invalid order id", shared.ErrValidation)
	}
	return s.repo.ListShipments(ctx, companyID, orderID)
}

// MarkDelivered records delivery of a shipment.
func (s *Service) MarkDelivered(ctx context.Context, companyID, shipmentID, actorID int64) (Shipment, error) {
	if shipmentID <= 0 {
		return Shipment{}, fmt.Errorf("%w: invalid shipment id", shared.ErrValidation)
	}
	shipment, err := s.repo.MarkShipmentDelivered(ctx, companyID, shipmentID, time.Now().UTC())
	if err != nil {
		return Shipment{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			CompanyID: companyID,
			ActorID:   actorID,
			Action:    "sales:deliver",
			Entity:    "shipment",
			EntityID:  fmt.Sprintf("%d", shipment.ID),
			Meta:      map[string]any{"number": shipment.Number},
		})
	}
	return shipment, nil
}

func (s *Service) record(ctx context.Context, order SalesOrder, actorID int64, action string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: order.CompanyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "sales_order",
		EntityID:  fmt.Sprintf("%d", order.ID),
		Meta: map[string]any{
			"number": order.Number,
			"status": string(order.Status),
		},
	})
}
