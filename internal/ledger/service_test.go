package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/ledger/ledgertest"
)

func newService(repo *ledgertest.MemoryRepo) *ledger.Service {
	return ledger.NewService(repo, nil, nil)
}

func TestAdjustmentFlow(t *testing.T) {
	repo := ledgertest.NewMemoryRepo()
	repo.AddLocation(1, 1, "A-01")
	repo.SeedBalance(10, 1, "", 100, 0)
	svc := newService(repo)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, ledger.AdjustmentInput{CompanyID: 1, ProductID: 10, LocationID: 1, Delta: -30, ActorID: 7})
	require.NoError(t, err)
	require.InDelta(t, 70, repo.Balance(10, 1, "").Quantity, 1e-9)

	_, err = svc.Adjust(ctx, ledger.AdjustmentInput{CompanyID: 1, ProductID: 10, LocationID: 1, Delta: -80, ActorID: 7})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	require.InDelta(t, 70, repo.Balance(10, 1, "").Quantity, 1e-9)

	_, err = svc.Adjust(ctx, ledger.AdjustmentInput{CompanyID: 1, ProductID: 10, LocationID: 1, Delta: 0, ActorID: 7})
	require.ErrorIs(t, err, ledger.ErrInvalidQuantity)
}

func TestInsufficientStockNamesProductAndLocation(t *testing.T) {
	repo := ledgertest.NewMemoryRepo()
	repo.AddLocation(3, 1, "B-02")
	svc := newService(repo)

	_, err := svc.Adjust(context.Background(), ledger.AdjustmentInput{CompanyID: 1, ProductID: 42, LocationID: 3, Delta: -5, ActorID: 1})
	require.Error(t, err)

	var insufficient *ledger.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(42), insufficient.ProductID)
	require.Equal(t, int64(3), insufficient.LocationID)
}

func TestBalanceLookup(t *testing.T) {
	repo := ledgertest.NewMemoryRepo()
	repo.AddLocation(1, 1, "A-01")
	repo.SeedBalance(10, 1, "LOT-1", 25, 5)
	svc := newService(repo)
	ctx := context.Background()

	bal, err := svc.Balance(ctx, 1, 10, 1, "LOT-1")
	require.NoError(t, err)
	require.InDelta(t, 25, bal.Quantity, 1e-9)
	require.InDelta(t, 20, bal.Available(), 1e-9)

	_, err = svc.Balance(ctx, 1, 10, 1, "")
	require.ErrorIs(t, err, ledger.ErrBalanceNotFound)

	_, err = svc.Balance(ctx, 1, 0, 1, "")
	require.Error(t, err)
}

func TestApplyMovementValidation(t *testing.T) {
	repo := ledgertest.NewMemoryRepo()
	svc := newService(repo)
	ctx := context.Background()

	_, err := svc.ApplyMovement(ctx, ledger.ApplyMovementInput{
		CompanyID: 1, Type: ledger.MovementPurchase, ProductID: 1, ToLocationID: 1, Quantity: 0, ActorID: 1,
	})
	require.ErrorIs(t, err, ledger.ErrInvalidQuantity)

	_, err = svc.ApplyMovement(ctx, ledger.ApplyMovementInput{
		CompanyID: 1, Type: ledger.MovementPurchase, ProductID: 1, ToLocationID: 1, Quantity: -4, ActorID: 1,
	})
	require.ErrorIs(t, err, ledger.ErrInvalidQuantity)

	// Purchase must not carry a source location.
	_, err = svc.ApplyMovement(ctx, ledger.ApplyMovementInput{
		CompanyID: 1, Type: ledger.MovementPurchase, ProductID: 1, FromLocationID: 2, ToLocationID: 1, Quantity: 5, ActorID: 1,
	})
	require.ErrorIs(t, err, ledger.ErrInvalidMovementShape)

	// Sale must not carry a destination.
	_, err = svc.ApplyMovement(ctx, ledger.ApplyMovementInput{
		CompanyID: 1, Type: ledger.MovementSale, ProductID: 1, FromLocationID: 2, ToLocationID: 1, Quantity: 5, ActorID: 1,
	})
	require.ErrorIs(t, err, ledger.ErrInvalidMovementShape)

	// Transfer needs two distinct locations.
	_, err = svc.ApplyMovement(ctx, ledger.ApplyMovementInput{
		CompanyID: 1, Type: ledger.MovementTransfer, ProductID: 1, FromLocationID: 2, ToLocationID: 2, Quantity: 5, ActorID: 1,
	})
	require.ErrorIs(t, err, ledger.ErrInvalidMovementShape)

	_, err = svc.ApplyMovement(ctx, ledger.ApplyMovementInput{
		CompanyID: 1, Type: ledger.MovementType("teleport"), ProductID: 1, ToLocationID: 1, Quantity: 5, ActorID: 1,
	})
	require.ErrorIs(t, err, ledger.ErrInvalidMovementShape)
}

func TestTransferMovesStockAndCreatesDestinationRow(t *testing.T) {
	repo := ledgertest.NewMemoryRepo()
	repo.AddLocation(1, 1, "W1-L1")
	repo.AddLocation(2, 2, "W2-L2")
	repo.SeedBalance(5, 1, "", 70, 0)
	svc := newService(repo)

	m, err := svc.ApplyMovement(context.Background(), ledger.ApplyMovementInput{
		CompanyID: 1, Type: ledger.MovementTransfer, ProductID: 5,
		FromLocationID: 1, ToLocationID: 2, Quantity: 20, Reference: "TRF-1", ActorID: 9,
	})
	require.NoError(t, err)
	require.NotZero(t, m.ID)
	require.False(t, m.OccurredAt.IsZero())

	require.InDelta(t, 50, repo.Balance(5, 1, "").Quantity, 1e-9)
	require.InDelta(t, 20, repo.Balance(5, 2, "").Quantity, 1e-9)
}

func TestBatchesAreDistinctRows(t *testing.T) {
	repo := ledgertest.NewMemoryRepo()
	repo.AddLocation(1, 1, "A-01")
	svc := newService(repo)
	ctx := context.Background()

	_, err := svc.ApplyMovement(ctx, ledger.ApplyMovementInput{
		CompanyID: 1, Type: ledger.MovementPurchase, ProductID: 7, ToLocationID: 1, Quantity: 10, Batch: "LOT-A", ActorID: 1,
	})
	require.NoError(t, err)
	_, err = svc.ApplyMovement(ctx, ledger.ApplyMovementInput{
		CompanyID: 1, Type: ledger.MovementPurchase, ProductID: 7, ToLocationID: 1, Quantity: 4, Batch: "LOT-B", ActorID: 1,
	})
	require.NoError(t, err)

	require.InDelta(t, 10, repo.Balance(7, 1, "LOT-A").Quantity, 1e-9)
	require.InDelta(t, 4, repo.Balance(7, 1, "LOT-B").Quantity, 1e-9)

	// Debiting LOT-B may not touch LOT-A.
	_, err = svc.ApplyMovement(ctx, ledger.ApplyMovementInput{
		CompanyID: 1, Type: ledger.MovementSale, ProductID: 7, FromLocationID: 1, Quantity: 5, Batch: "LOT-B", ActorID: 1,
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
}

func TestApplyMovementsAllOrNothing(t *testing.T) {
	repo := ledgertest.NewMemoryRepo()
	repo.AddLocation(1, 1, "A-01")
	repo.AddLocation(2, 2, "B-01")
	repo.SeedBalance(1, 1, "", 10, 0)
	repo.SeedBalance(2, 1, "", 3, 0)
	svc := newService(repo)

	_, err := svc.ApplyMovements(context.Background(), []ledger.ApplyMovementInput{
		{CompanyID: 1, Type: ledger.MovementTransfer, ProductID: 1, FromLocationID: 1, ToLocationID: 2, Quantity: 10, ActorID: 1},
		{CompanyID: 1, Type: ledger.MovementTransfer, ProductID: 2, FromLocationID: 1, ToLocationID: 2, Quantity: 5, ActorID: 1},
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	// First movement must have been rolled back.
	require.InDelta(t, 10, repo.Balance(1, 1, "").Quantity, 1e-9)
	require.InDelta(t, 3, repo.Balance(2, 1, "").Quantity, 1e-9)
	require.Zero(t, repo.Balance(1, 2, "").Quantity)
	require.Empty(t, repo.Movements())
}

func TestReservations(t *testing.T) {
	repo := ledgertest.NewMemoryRepo()
	repo.AddLocation(1, 1, "A-01")
	repo.SeedBalance(4, 1, "", 10, 0)
	svc := newService(repo)
	ctx := context.Background()

	err := repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		return ledger.Reserve(ctx, tx, 4, 1, "", 6)
	})
	require.NoError(t, err)
	require.InDelta(t, 6, repo.Balance(4, 1, "").Reserved, 1e-9)

	// Plain sale can only see the unreserved 4 units.
	_, err = svc.ApplyMovement(ctx, ledger.ApplyMovementInput{
		CompanyID: 1, Type: ledger.MovementSale, ProductID: 4, FromLocationID: 1, Quantity: 5, ActorID: 1,
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	// Shipping against the reservation consumes it.
	m, err := svc.ApplyMovement(ctx, ledger.ApplyMovementInput{
		CompanyID: 1, Type: ledger.MovementSale, ProductID: 4, FromLocationID: 1, Quantity: 6, ActorID: 1,
		ConsumeReservation: true,
	})
	require.NoError(t, err)
	require.Equal(t, ledger.MovementSale, m.Type)

	bal := repo.Balance(4, 1, "")
	require.InDelta(t, 4, bal.Quantity, 1e-9)
	require.Zero(t, bal.Reserved)
}

func TestReplayReconstructsBalance(t *testing.T) {
	repo := ledgertest.NewMemoryRepo()
	repo.AddLocation(1, 1, "A-01")
	repo.AddLocation(2, 1, "A-02")
	svc := newService(repo)
	ctx := context.Background()

	steps := []ledger.ApplyMovementInput{
		{CompanyID: 1, Type: ledger.MovementPurchase, ProductID: 9, ToLocationID: 1, Quantity: 100, ActorID: 1},
		{CompanyID: 1, Type: ledger.MovementSale, ProductID: 9, FromLocationID: 1, Quantity: 25, ActorID: 1},
		{CompanyID: 1, Type: ledger.MovementTransfer, ProductID: 9, FromLocationID: 1, ToLocationID: 2, Quantity: 30, ActorID: 1},
		{CompanyID: 1, Type: ledger.MovementAdjustment, ProductID: 9, ToLocationID: 1, Quantity: 5, ActorID: 1},
		{CompanyID: 1, Type: ledger.MovementReturn, ProductID: 9, ToLocationID: 1, Quantity: 2, ActorID: 1},
	}
	for _, step := range steps {
		_, err := svc.ApplyMovement(ctx, step)
		require.NoError(t, err)
	}

	replayed, err := svc.ReplayBalance(ctx, 9, 1)
	require.NoError(t, err)
	require.InDelta(t, repo.Balance(9, 1, "").Quantity, replayed, 1e-9)
	require.InDelta(t, 52, replayed, 1e-9)

	replayed, err = svc.ReplayBalance(ctx, 9, 2)
	require.NoError(t, err)
	require.InDelta(t, 30, replayed, 1e-9)
}

func TestGetOrCreateBalance(t *testing.T) {
	repo := ledgertest.NewMemoryRepo()
	svc := newService(repo)
	ctx := context.Background()

	bal, err := svc.GetOrCreateBalance(ctx, 11, 3, "")
	require.NoError(t, err)
	require.NotZero(t, bal.ID)
	require.Zero(t, bal.Quantity)
	require.Zero(t, bal.Reserved)

	again, err := svc.GetOrCreateBalance(ctx, 11, 3, "")
	require.NoError(t, err)
	require.Equal(t, bal.ID, again.ID)
}
