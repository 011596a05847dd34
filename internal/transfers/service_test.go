package transfers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/ledger/ledgertest"
	"github.com/stocklane/stocklane/internal/shared"
)

type memoryRepo struct {
	stock      *ledgertest.MemoryRepo
	nextID     int64
	nextItemID int64
	transfers  map[int64]Transfer
}

func newMemoryRepo(stock *ledgertest.MemoryRepo) *memoryRepo {
	return &memoryRepo{stock: stock, transfers: map[int64]Transfer{}}
}

func copyTransfer(t Transfer) Transfer {
	out := t
	out.Items = append([]Item(nil), t.Items...)
	return out
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository, ledger.TxRepository) error) error {
	staged := make(map[int64]Transfer, len(m.transfers))
	for id, t := range m.transfers {
		staged[id] = copyTransfer(t)
	}
	err := m.stock.WithTx(ctx, func(ctx context.Context, ltx ledger.TxRepository) error {
		return fn(ctx, &memoryTx{transfers: staged}, ltx)
	})
	if err != nil {
		return err
	}
	m.transfers = staged
	return nil
}

func (m *memoryRepo) Create(_ context.Context, transfer Transfer) (Transfer, error) {
	m.nextID++
	transfer.ID = m.nextID
	for i := range transfer.Items {
		m.nextItemID++
		transfer.Items[i].ID = m.nextItemID
		transfer.Items[i].TransferID = transfer.ID
	}
	m.transfers[transfer.ID] = copyTransfer(transfer)
	return transfer, nil
}

func (m *memoryRepo) Get(_ context.Context, companyID, id int64) (Transfer, error) {
	t, ok := m.transfers[id]
	if !ok || t.CompanyID != companyID {
		return Transfer{}, shared.ErrNotFound
	}
	return copyTransfer(t), nil
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]Transfer, int, error) {
	var out []Transfer
	for _, t := range m.transfers {
		if t.CompanyID != filter.CompanyID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, copyTransfer(t))
	}
	return out, len(out), nil
}

type memoryTx struct {
	transfers map[int64]Transfer
}

func (tx *memoryTx) GetForUpdate(_ context.Context, companyID, id int64) (Transfer, error) {
	t, ok := tx.transfers[id]
	if !ok || t.CompanyID != companyID {
		return Transfer{}, shared.ErrNotFound
	}
	return copyTransfer(t), nil
}

func (tx *memoryTx) RecordItemSource(_ context.Context, itemID, locationID int64, batch string) error {
	for id, t := range tx.transfers {
		for i := range t.Items {
			if t.Items[i].ID == itemID {
				t.Items[i].SourceLocationID = locationID
				t.Items[i].Batch = batch
				tx.transfers[id] = t
				return nil
			}
		}
	}
	return shared.ErrNotFound
}

func (tx *memoryTx) SetProcessed(_ context.Context, transferID, processedBy int64, at time.Time) error {
	t, ok := tx.transfers[transferID]
	if !ok {
		return shared.ErrNotFound
	}
	t.Status = StatusCompleted
	t.ProcessedBy = &processedBy
	t.ProcessedAt = &at
	tx.transfers[transferID] = t
	return nil
}

func (tx *memoryTx) SetStatus(_ context.Context, transferID int64, status Status) error {
	t, ok := tx.transfers[transferID]
	if !ok {
		return shared.ErrNotFound
	}
	t.Status = status
	tx.transfers[transferID] = t
	return nil
}

const (
	companyID  = int64(1)
	sourceWH   = int64(1)
	destWH     = int64(2)
	sourceLocA = int64(10)
	sourceLocB = int64(11)
	destLoc    = int64(20)
	actorID    = int64(7)
)

func newTestService(t *testing.T) (*Service, *memoryRepo, *ledgertest.MemoryRepo) {
	t.Helper()
	stock := ledgertest.NewMemoryRepo()
	stock.AddLocation(sourceLocA, sourceWH, "A-01")
	stock.AddLocation(sourceLocB, sourceWH, "A-02")
	stock.AddLocation(destLoc, destWH, "B-01")
	repo := newMemoryRepo(stock)
	return NewService(repo, nil, nil), repo, stock
}

func pendingTransfer(t *testing.T, svc *Service, items []Item) Transfer {
	t.Helper()
	transfer, err := svc.Create(context.Background(), CreateInput{
		CompanyID:       companyID,
		FromWarehouseID: sourceWH,
		ToWarehouseID:   destWH,
		ToLocationID:    destLoc,
		CreatedBy:       actorID,
	}, items)
	require.NoError(t, err)
	require.Equal(t, StatusPending, transfer.Status)
	return transfer
}

func TestProcessTransferExplicitSource(t *testing.T) {
	svc, _, stock := newTestService(t)
	stock.SeedBalance(100, sourceLocA, "", 50, 0)

	transfer := pendingTransfer(t, svc, []Item{
		{ProductID: 100, Quantity: 30, SourceLocationID: sourceLocA},
	})

	got, err := svc.Process(context.Background(), companyID, transfer.ID, actorID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.ProcessedBy)
	require.Equal(t, actorID, *got.ProcessedBy)

	require.InDelta(t, 20, stock.Balance(100, sourceLocA, "").Quantity, 1e-9)
	require.InDelta(t, 30, stock.Balance(100, destLoc, "").Quantity, 1e-9)

	movements := stock.Movements()
	require.Len(t, movements, 1)
	require.Equal(t, ledger.MovementTransfer, movements[0].Type)
	require.Equal(t, sourceLocA, movements[0].FromLocationID)
	require.Equal(t, destLoc, movements[0].ToLocationID)
	require.Equal(t, transfer.Number, movements[0].Reference)
}

func TestProcessResolvesSingleSource(t *testing.T) {
	svc, repo, stock := newTestService(t)
	stock.SeedBalance(100, sourceLocB, "LOT-4", 10, 0)

	transfer := pendingTransfer(t, svc, []Item{{ProductID: 100, Quantity: 4}})

	got, err := svc.Process(context.Background(), companyID, transfer.ID, actorID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)

	// The resolved source is recorded on the item.
	item := repo.transfers[transfer.ID].Items[0]
	require.Equal(t, sourceLocB, item.SourceLocationID)
	require.Equal(t, "LOT-4", item.Batch)

	require.InDelta(t, 6, stock.Balance(100, sourceLocB, "LOT-4").Quantity, 1e-9)
	require.InDelta(t, 4, stock.Balance(100, destLoc, "LOT-4").Quantity, 1e-9)
}

func TestProcessExplicitSourceOutsideWarehouse(t *testing.T) {
	svc, repo, stock := newTestService(t)
	stock.SeedBalance(100, destLoc, "", 50, 0)

	// The explicit source sits in the destination warehouse, not the one
	// the transfer ships from.
	transfer := pendingTransfer(t, svc, []Item{
		{ProductID: 100, Quantity: 10, SourceLocationID: destLoc},
	})

	_, err := svc.Process(context.Background(), companyID, transfer.ID, actorID)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.ErrorContains(t, err, "not in warehouse")

	require.InDelta(t, 50, stock.Balance(100, destLoc, "").Quantity, 1e-9)
	require.Empty(t, stock.Movements())
	require.Equal(t, StatusPending, repo.transfers[transfer.ID].Status)
}

func TestProcessUnknownSourceLocation(t *testing.T) {
	svc, _, stock := newTestService(t)
	stock.SeedBalance(100, sourceLocA, "", 50, 0)

	transfer := pendingTransfer(t, svc, []Item{
		{ProductID: 100, Quantity: 10, SourceLocationID: 999},
	})

	_, err := svc.Process(context.Background(), companyID, transfer.ID, actorID)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.ErrorContains(t, err, "does not exist")
	require.Empty(t, stock.Movements())
}

func TestProcessDestinationOutsideWarehouse(t *testing.T) {
	svc, repo, stock := newTestService(t)
	stock.SeedBalance(100, sourceLocA, "", 50, 0)

	transfer, err := svc.Create(context.Background(), CreateInput{
		CompanyID:       companyID,
		FromWarehouseID: sourceWH,
		ToWarehouseID:   destWH,
		ToLocationID:    sourceLocB,
		CreatedBy:       actorID,
	}, []Item{{ProductID: 100, Quantity: 10, SourceLocationID: sourceLocA}})
	require.NoError(t, err)

	_, err = svc.Process(context.Background(), companyID, transfer.ID, actorID)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.ErrorContains(t, err, "destination")

	require.InDelta(t, 50, stock.Balance(100, sourceLocA, "").Quantity, 1e-9)
	require.Equal(t, StatusPending, repo.transfers[transfer.ID].Status)
}

func TestProcessAmbiguousSource(t *testing.T) {
	svc, _, stock := newTestService(t)
	stock.SeedBalance(100, sourceLocA, "", 10, 0)
	stock.SeedBalance(100, sourceLocB, "", 10, 0)

	transfer := pendingTransfer(t, svc, []Item{{ProductID: 100, Quantity: 4}})

	_, err := svc.Process(context.Background(), companyID, transfer.ID, actorID)
	require.ErrorIs(t, err, ErrAmbiguousSource)

	// Nothing moved.
	require.InDelta(t, 10, stock.Balance(100, sourceLocA, "").Quantity, 1e-9)
	require.InDelta(t, 10, stock.Balance(100, sourceLocB, "").Quantity, 1e-9)
}

func TestProcessNoStockNamesWarehouse(t *testing.T) {
	svc, _, _ := newTestService(t)

	transfer := pendingTransfer(t, svc, []Item{{ProductID: 100, Quantity: 4}})

	_, err := svc.Process(context.Background(), companyID, transfer.ID, actorID)
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	var insufficient *ledger.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(100), insufficient.ProductID)
	require.Equal(t, sourceWH, insufficient.WarehouseID)
	require.Contains(t, err.Error(), "warehouse 1")
}

func TestProcessAllOrNothing(t *testing.T) {
	svc, repo, stock := newTestService(t)
	stock.SeedBalance(100, sourceLocA, "", 50, 0)
	stock.SeedBalance(200, sourceLocA, "", 2, 0)

	transfer := pendingTransfer(t, svc, []Item{
		{ProductID: 100, Quantity: 30, SourceLocationID: sourceLocA},
		{ProductID: 200, Quantity: 5, SourceLocationID: sourceLocA},
	})

	_, err := svc.Process(context.Background(), companyID, transfer.ID, actorID)
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	var insufficient *ledger.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(200), insufficient.ProductID)

	// The first item's debit rolled back with the failure.
	require.InDelta(t, 50, stock.Balance(100, sourceLocA, "").Quantity, 1e-9)
	require.Zero(t, stock.Balance(100, destLoc, "").Quantity)
	require.Empty(t, stock.Movements())
	require.Equal(t, StatusPending, repo.transfers[transfer.ID].Status)
}

func TestProcessTwiceRejected(t *testing.T) {
	svc, _, stock := newTestService(t)
	stock.SeedBalance(100, sourceLocA, "", 50, 0)

	transfer := pendingTransfer(t, svc, []Item{
		{ProductID: 100, Quantity: 30, SourceLocationID: sourceLocA},
	})

	_, err := svc.Process(context.Background(), companyID, transfer.ID, actorID)
	require.NoError(t, err)

	_, err = svc.Process(context.Background(), companyID, transfer.ID, actorID)
	require.ErrorIs(t, err, ErrAlreadyProcessed)

	// No double debit.
	require.InDelta(t, 20, stock.Balance(100, sourceLocA, "").Quantity, 1e-9)
}

func TestCancelPendingTransfer(t *testing.T) {
	svc, repo, stock := newTestService(t)
	stock.SeedBalance(100, sourceLocA, "", 50, 0)

	transfer := pendingTransfer(t, svc, []Item{
		{ProductID: 100, Quantity: 30, SourceLocationID: sourceLocA},
	})

	require.NoError(t, svc.Cancel(context.Background(), companyID, transfer.ID, actorID))
	require.Equal(t, StatusCancelled, repo.transfers[transfer.ID].Status)

	_, err := svc.Process(context.Background(), companyID, transfer.ID, actorID)
	require.ErrorIs(t, err, ErrNotPending)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateInput{
		CompanyID: companyID, FromWarehouseID: sourceWH, ToWarehouseID: sourceWH, ToLocationID: destLoc,
	}, []Item{{ProductID: 100, Quantity: 1}})
	require.ErrorIs(t, err, ErrSameWarehouse)

	_, err = svc.Create(context.Background(), CreateInput{
		CompanyID: companyID, FromWarehouseID: sourceWH, ToWarehouseID: destWH, ToLocationID: destLoc,
	}, nil)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), CreateInput{
		CompanyID: companyID, FromWarehouseID: sourceWH, ToWarehouseID: destWH, ToLocationID: destLoc,
	}, []Item{{ProductID: 100, Quantity: 0}})
	require.ErrorIs(t, err, ledger.ErrInvalidQuantity)
}
