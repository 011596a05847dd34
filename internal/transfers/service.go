package transfers

import (
	"context"
	"errors"
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

const qtyEpsilon = 1e-9

// Service orchestrates inter-warehouse transfers. Processing debits every
// source, credits the destination and completes the transfer in a single
// transaction; one short item rolls back the whole document.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
}

func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics}
}

// CreateInput describes a new pending transfer.
type CreateInput struct {
	CompanyID       int64
	FromWarehouseID int64
	ToWarehouseID   int64
	ToLocationID    int64
	Notes           string
	CreatedBy       int64
}

// Create validates and stores a pending transfer.
func (s *Service) Create(ctx context.Context, input CreateInput, items []Item) (Transfer, error) {
	if input.CompanyID == 0 || input.FromWarehouseID == 0 || input.ToWarehouseID == 0 || input.ToLocationID == 0 {
		return Transfer{}, fmt.Errorf("%w: company, warehouses and destination location are required", shared.ErrValidation)
	}
	if input.FromWarehouseID == input.ToWarehouseID {
		return Transfer{}, ErrSameWarehouse
	}
	if len(items) == 0 {
		return Transfer{}, fmt.Errorf("%w: at least one item is required", shared.ErrValidation)
	}
	for _, item := range items {
		if item.ProductID == 0 {
			return Transfer{}, fmt.Errorf("%w: item product is required", shared.ErrValidation)
		}
		if item.Quantity <= 0 {
			return Transfer{}, ledger.ErrInvalidQuantity
		}
	}

	transfer := Transfer{
		CompanyID:       input.CompanyID,
		Number:          shared.NewDocNumber("TR"),
		FromWarehouseID: input.FromWarehouseID,
		ToWarehouseID:   input.ToWarehouseID,
		ToLocationID:    input.ToLocationID,
		Status:          StatusPending,
		Notes:           input.Notes,
		CreatedBy:       input.CreatedBy,
		Items:           items,
	}
	created, err := s.repo.Create(ctx, transfer)
	if err != nil {
		return Transfer{}, err
	}
	s.record(ctx, created, created.CreatedBy, "transfers:create")
	return created, nil
}

func (s *Service) Get(ctx context.Context, companyID, id int64) (Transfer, error) {
	if id <= 0 {
		return Transfer{}, fmt.Errorf("%w: invalid transfer id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, companyID, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Transfer, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
	}
	return s.repo.List(ctx, filter)
}

// Process executes the transfer: every item is debited from its source and
// credited to the destination location, then the transfer completes. All
// movements and the status change commit or roll back together.
func (s *Service) Process(ctx context.Context, companyID, id, actorID int64) (Transfer, error) {
	if id <= 0 {
		return Transfer{}, fmt.Errorf("%w: invalid transfer id", shared.ErrValidation)
	}

	var (
		transfer  Transfer
		movements []ledger.Movement
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, ltx ledger.TxRepository) error {
		var err error
		transfer, err = tx.GetForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		switch transfer.Status {
		case StatusPending:
		case StatusCompleted:
			return ErrAlreadyProcessed
		default:
			return ErrNotPending
		}
		if err := checkLocationInWarehouse(ctx, ltx, transfer.ToLocationID, transfer.ToWarehouseID); err != nil {
			return fmt.Errorf("destination: %w", err)
		}

		now := time.Now().UTC()
		for i := range transfer.Items {
			item := &transfer.Items[i]
			sourceLocation, batch, err := resolveSource(ctx, ltx, transfer.FromWarehouseID, *item)
			if err != nil {
				return err
			}
			movement, err := ledger.PostMovement(ctx, ltx, ledger.ApplyMovementInput{
				CompanyID:      transfer.CompanyID,
				Type:           ledger.MovementTransfer,
				ProductID:      item.ProductID,
				FromLocationID: sourceLocation,
				ToLocationID:   transfer.ToLocationID,
				Quantity:       item.Quantity,
				Batch:          batch,
				Reference:      transfer.Number,
				Notes:          transfer.Notes,
				ActorID:        actorID,
				OccurredAt:     now,
			})
			if err != nil {
				return err
			}
			movements = append(movements, movement)
			if item.SourceLocationID == 0 {
				item.SourceLocationID = sourceLocation
				item.Batch = batch
				if err := tx.RecordItemSource(ctx, item.ID, sourceLocation, batch); err != nil {
					return err
				}
			}
		}

		transfer.Status = StatusCompleted
		transfer.ProcessedBy = &actorID
		transfer.ProcessedAt = &now
		return tx.SetProcessed(ctx, transfer.ID, actorID, now)
	})
	if err != nil {
		return Transfer{}, err
	}

	for _, m := range movements {
		if s.metrics != nil {
			s.metrics.ObserveMovement(string(m.Type))
		}
	}
	s.record(ctx, transfer, actorID, "transfers:process")
	return transfer, nil
}

// checkLocationInWarehouse rejects a location id that does not exist or
// lies outside the expected warehouse.
func checkLocationInWarehouse(ctx context.Context, ltx ledger.TxRepository, locationID, warehouseID int64) error {
	actual, err := ltx.LocationWarehouse(ctx, locationID)
	if errors.Is(err, ledger.ErrLocationNotFound) {
		return fmt.Errorf("%w: location %d does not exist", shared.ErrValidation, locationID)
	}
	if err != nil {
		return err
	}
	if actual != warehouseID {
		return fmt.Errorf("%w: location %d is not in warehouse %d", shared.ErrValidation, locationID, warehouseID)
	}
	return nil
}

// resolveSource picks the balance row an item debits. An explicit source
// location wins, provided it lies in the source warehouse; otherwise the
// product must sit in exactly one stocked row of the source warehouse.
func resolveSource(ctx context.Context, ltx ledger.TxRepository, warehouseID int64, item Item) (int64, string, error) {
	if item.SourceLocationID != 0 {
		if err := checkLocationInWarehouse(ctx, ltx, item.SourceLocationID, warehouseID); err != nil {
			return 0, "", fmt.Errorf("item %d source: %w", item.ID, err)
		}
		return item.SourceLocationID, item.Batch, nil
	}
	rows, err := ltx.LockWarehouseBalances(ctx, item.ProductID, warehouseID)
	if err != nil {
		return 0, "", err
	}
	var candidates []ledger.Balance
	for _, b := range rows {
		if b.Quantity > qtyEpsilon {
			candidates = append(candidates, b)
		}
	}
	switch len(candidates) {
	case 0:
		return 0, "", &ledger.InsufficientStockError{ProductID: item.ProductID, WarehouseID: warehouseID, Requested: item.Quantity}
	case 1:
		return candidates[0].LocationID, candidates[0].Batch, nil
	default:
		return 0, "", fmt.Errorf("%w: product %d has %d stocked rows in warehouse %d",
			ErrAmbiguousSource, item.ProductID, len(candidates), warehouseID)
	}
}

// Cancel voids a pending transfer.
func (s *Service) Cancel(ctx context.Context, companyID, id, actorID int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid transfer id", shared.ErrValidation)
	}
	var transfer Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, _ ledger.TxRepository) error {
		var err error
		transfer, err = tx.GetForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		switch transfer.Status {
		case StatusPending:
		case StatusCompleted:
			return ErrAlreadyProcessed
		default:
			return ErrNotPending
		}
		return tx.SetStatus(ctx, transfer.ID, StatusCancelled)
	})
	if err != nil {
		return err
	}
	s.record(ctx, transfer, actorID, "transfers:cancel")
	return nil
}

func (s *Service) record(ctx context.Context, transfer Transfer, actorID int64, action string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: transfer.CompanyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "stock_transfer",
		EntityID:  fmt.Sprintf("%d", transfer.ID),
		Meta: map[string]any{
			"number": transfer.Number,
			"status": string(transfer.Status),
			"from":   transfer.FromWarehouseID,
			"to":     transfer.ToWarehouseID,
		},
	})
}
