package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/stocklane/stocklane/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	FindBalance(ctx context.Context, companyID, productID, locationID int64, batch string) (Balance, error)
	ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	MovementsForBalance(ctx context.Context, productID, locationID int64) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts posted movements.
type MetricsPort interface {
	ObserveMovement(movementType string)
}

// Service coordinates ledger operations. PostMovement (via ApplyMovement and
// the workflow services) is the only path by which a balance quantity
// changes.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics}
}

// ApplyMovementInput describes one quantity change to post.
type ApplyMovementInput struct {
	CompanyID      int64
	Type           MovementType
	ProductID      int64
	FromLocationID int64
	ToLocationID   int64
	Quantity       float64
	Batch          string
	Expiry         *time.Time
	Reference      string
	Notes          string
	ActorID        int64
	OccurredAt     time.Time
	// ConsumeReservation lets an outbound movement draw from stock that was
	// reserved for it. Without it a debit only sees quantity minus reserved.
	ConsumeReservation bool
}

const qtyEpsilon = 1e-9

func validateShape(t MovementType, from, to int64) error {
	switch t {
	case MovementTransfer:
		if from == 0 || to == 0 || from == to {
			return ErrInvalidMovementShape
		}
	case MovementPurchase, MovementReturn, MovementProduction:
		if from != 0 || to == 0 {
			return ErrInvalidMovementShape
		}
	case MovementSale, MovementConsumption:
		if from == 0 || to != 0 {
			return ErrInvalidMovementShape
		}
	case MovementAdjustment:
		if (from == 0) == (to == 0) {
			return ErrInvalidMovementShape
		}
	default:
		return ErrInvalidMovementShape
	}
	return nil
}

// PostMovement validates and applies one movement against an open
// transaction: debit at the source (if any), credit at the destination
// (if any, creating the row when absent) and the movement insert happen
// together. Workflow services call this for every item of a document inside
// their own transaction so a failing item rolls back the whole document.
func PostMovement(ctx context.Context, tx TxRepository, input ApplyMovementInput) (Movement, error) {
	if input.Quantity <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if input.CompanyID == 0 || input.ProductID == 0 {
		return Movement{}, fmt.Errorf("ledger: company and product required: %w", shared.ErrValidation)
	}
	if err := validateShape(input.Type, input.FromLocationID, input.ToLocationID); err != nil {
		return Movement{}, err
	}

	occurred := input.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	var source, dest Balance
	var err error
	// Locks are taken in ascending location order so two opposing transfers
	// over the same pair of locations cannot deadlock.
	lockDestFirst := input.ToLocationID != 0 && input.FromLocationID != 0 && input.ToLocationID < input.FromLocationID
	if lockDestFirst {
		if dest, err = tx.LockOrCreateBalance(ctx, input.ProductID, input.ToLocationID, input.Batch, input.Expiry); err != nil {
			return Movement{}, err
		}
	}
	if input.FromLocationID != 0 {
		source, err = tx.LockBalance(ctx, input.ProductID, input.FromLocationID, input.Batch)
		if errors.Is(err, ErrBalanceNotFound) {
			return Movement{}, &InsufficientStockError{
				ProductID:  input.ProductID,
				LocationID: input.FromLocationID,
				Batch:      input.Batch,
				Requested:  input.Quantity,
			}
		}
		if err != nil {
			return Movement{}, err
		}
	}
	if input.ToLocationID != 0 && !lockDestFirst {
		if dest, err = tx.LockOrCreateBalance(ctx, input.ProductID, input.ToLocationID, input.Batch, input.Expiry); err != nil {
			return Movement{}, err
		}
	}

	if input.FromLocationID != 0 {
		available := source.Quantity
		if !input.ConsumeReservation {
			available -= source.Reserved
		}
		if available+qtyEpsilon < input.Quantity {
			return Movement{}, &InsufficientStockError{
				ProductID:  input.ProductID,
				LocationID: input.FromLocationID,
				Batch:      input.Batch,
				Requested:  input.Quantity,
				Available:  available,
			}
		}
		newQty := source.Quantity - input.Quantity
		if newQty < 0 && newQty > -qtyEpsilon {
			newQty = 0
		}
		newReserved := source.Reserved
		if input.ConsumeReservation {
			newReserved = math.Max(0, source.Reserved-input.Quantity)
		}
		if err := tx.UpdateBalance(ctx, source.ID, newQty, newReserved); err != nil {
			return Movement{}, err
		}
	}
	if input.ToLocationID != 0 {
		if err := tx.UpdateBalance(ctx, dest.ID, dest.Quantity+input.Quantity, dest.Reserved); err != nil {
			return Movement{}, err
		}
	}

	movement := Movement{
		CompanyID:      input.CompanyID,
		Type:           input.Type,
		ProductID:      input.ProductID,
		FromLocationID: input.FromLocationID,
		ToLocationID:   input.ToLocationID,
		Quantity:       input.Quantity,
		Batch:          input.Batch,
		Expiry:         input.Expiry,
		Reference:      input.Reference,
		Notes:          input.Notes,
		OccurredAt:     occurred,
		ActorID:        input.ActorID,
	}
	return tx.InsertMovement(ctx, movement)
}

// Reserve commits stock to an outbound order without moving it. Fails with
// InsufficientStockError when the location lacks unreserved quantity.
func Reserve(ctx context.Context, tx TxRepository, productID, locationID int64, batch string, qty float64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	bal, err := tx.LockBalance(ctx, productID, locationID, batch)
	if errors.Is(err, ErrBalanceNotFound) {
		return &InsufficientStockError{ProductID: productID, LocationID: locationID, Batch: batch, Requested: qty}
	}
	if err != nil {
		return err
	}
	if bal.Available()+qtyEpsilon < qty {
		return &InsufficientStockError{
			ProductID:  productID,
			LocationID: locationID,
			Batch:      batch,
			Requested:  qty,
			Available:  bal.Available(),
		}
	}
	return tx.UpdateBalance(ctx, bal.ID, bal.Quantity, bal.Reserved+qty)
}

// Release returns reserved stock to the free pool, clamping at zero.
func Release(ctx context.Context, tx TxRepository, productID, locationID int64, batch string, qty float64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	bal, err := tx.LockBalance(ctx, productID, locationID, batch)
	if errors.Is(err, ErrBalanceNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return tx.UpdateBalance(ctx, bal.ID, bal.Quantity, math.Max(0, bal.Reserved-qty))
}

// ApplyMovement posts a single movement in its own transaction.
func (s *Service) ApplyMovement(ctx context.Context, input ApplyMovementInput) (Movement, error) {
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = PostMovement(ctx, tx, input)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.observe(ctx, movement)
	return movement, nil
}

// ApplyMovements posts a batch of movements in one transaction, all or
// nothing.
func (s *Service) ApplyMovements(ctx context.Context, inputs []ApplyMovementInput) ([]Movement, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("ledger: no movements to apply: %w", shared.ErrValidation)
	}
	movements := make([]Movement, 0, len(inputs))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, input := range inputs {
			m, err := PostMovement(ctx, tx, input)
			if err != nil {
				return err
			}
			movements = append(movements, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, m := range movements {
		s.observe(ctx, m)
	}
	return movements, nil
}

// AdjustmentInput describes a signed manual correction.
type AdjustmentInput struct {
	CompanyID  int64
	ProductID  int64
	LocationID int64
	Delta      float64
	Batch      string
	Reference  string
	Notes      string
	ActorID    int64
}

// Adjust posts a manual correction for a single location. A positive delta
// credits the location, a negative delta debits it, zero is rejected.
func (s *Service) Adjust(ctx context.Context, input AdjustmentInput) (Movement, error) {
	if input.Delta == 0 {
		return Movement{}, ErrInvalidQuantity
	}
	apply := ApplyMovementInput{
		CompanyID: input.CompanyID,
		Type:      MovementAdjustment,
		ProductID: input.ProductID,
		Quantity:  math.Abs(input.Delta),
		Batch:     input.Batch,
		Reference: input.Reference,
		Notes:     input.Notes,
		ActorID:   input.ActorID,
	}
	if input.Delta > 0 {
		apply.ToLocationID = input.LocationID
	} else {
		apply.FromLocationID = input.LocationID
	}
	return s.ApplyMovement(ctx, apply)
}

// GetOrCreateBalance returns the balance row for the triple, creating a zero
// row when absent.
func (s *Service) GetOrCreateBalance(ctx context.Context, productID, locationID int64, batch string) (Balance, error) {
	if productID == 0 || locationID == 0 {
		return Balance{}, fmt.Errorf("ledger: product and location required: %w", shared.ErrValidation)
	}
	var balance Balance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		balance, err = tx.LockOrCreateBalance(ctx, productID, locationID, batch, nil)
		return err
	})
	return balance, err
}

// Balance returns the stored row for one (product, location, batch) triple
// without locking it. Fails with ErrBalanceNotFound when no movement has
// touched the triple yet.
func (s *Service) Balance(ctx context.Context, companyID, productID, locationID int64, batch string) (Balance, error) {
	if companyID == 0 || productID == 0 || locationID == 0 {
		return Balance{}, fmt.Errorf("ledger: company, product and location required: %w", shared.ErrValidation)
	}
	return s.repo.FindBalance(ctx, companyID, productID, locationID, batch)
}

// Movements lists ledger entries for the tenant.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.CompanyID == 0 {
		return nil, fmt.Errorf("ledger: company required: %w", shared.ErrValidation)
	}
	return s.repo.ListMovements(ctx, filter)
}

// Balances lists balance rows for the tenant.
func (s *Service) Balances(ctx context.Context, filter BalanceFilter) ([]Balance, error) {
	if filter.CompanyID == 0 {
		return nil, fmt.Errorf("ledger: company required: %w", shared.ErrValidation)
	}
	return s.repo.ListBalances(ctx, filter)
}

// ReplayBalance reconstructs the on-hand quantity at (product, location) by
// replaying every movement in occurrence order and summing signed effects.
// The result must equal the sum of the stored balance rows across batches.
func (s *Service) ReplayBalance(ctx context.Context, productID, locationID int64) (float64, error) {
	movements, err := s.repo.MovementsForBalance(ctx, productID, locationID)
	if err != nil {
		return 0, err
	}
	var qty float64
	for _, m := range movements {
		if m.ToLocationID == locationID {
			qty += m.Quantity
		}
		if m.FromLocationID == locationID {
			qty -= m.Quantity
		}
	}
	return qty, nil
}

func (s *Service) observe(ctx context.Context, m Movement) {
	if s.metrics != nil {
		s.metrics.ObserveMovement(string(m.Type))
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			CompanyID: m.CompanyID,
			ActorID:   m.ActorID,
			Action:    fmt.Sprintf("ledger:%s", m.Type),
			Entity:    "stock_movement",
			EntityID:  fmt.Sprintf("%d", m.ID),
			Meta: map[string]any{
				"product_id": m.ProductID,
				"from":       m.FromLocationID,
				"to":         m.ToLocationID,
				"qty":        m.Quantity,
				"reference":  m.Reference,
			},
		})
	}
}
