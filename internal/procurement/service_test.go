package procurement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/ledger/ledgertest"
	"github.com/stocklane/stocklane/internal/shared"
)

// memoryRepo implements RepositoryPort over maps, sharing transaction
// staging with the in-memory ledger so rollback can be asserted.
type memoryRepo struct {
	stock      *ledgertest.MemoryRepo
	nextID     int64
	nextItemID int64
	orders     map[int64]PurchaseOrder
}

func newMemoryRepo(stock *ledgertest.MemoryRepo) *memoryRepo {
	return &memoryRepo{stock: stock, orders: map[int64]PurchaseOrder{}}
}

func copyOrder(o PurchaseOrder) PurchaseOrder {
	out := o
	out.Items = append([]Item(nil), o.Items...)
	return out
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository, ledger.TxRepository) error) error {
	staged := make(map[int64]PurchaseOrder, len(m.orders))
	for id, o := range m.orders {
		staged[id] = copyOrder(o)
	}
	err := m.stock.WithTx(ctx, func(ctx context.Context, ltx ledger.TxRepository) error {
		return fn(ctx, &memoryTx{orders: staged}, ltx)
	})
	if err != nil {
		return err
	}
	m.orders = staged
	return nil
}

func (m *memoryRepo) Create(_ context.Context, order PurchaseOrder) (PurchaseOrder, error) {
	m.nextID++
	order.ID = m.nextID
	for i := range order.Items {
		m.nextItemID++
		order.Items[i].ID = m.nextItemID
		order.Items[i].OrderID = order.ID
	}
	m.orders[order.ID] = copyOrder(order)
	return order, nil
}

func (m *memoryRepo) Get(_ context.Context, companyID, id int64) (PurchaseOrder, error) {
	o, ok := m.orders[id]
	if !ok || o.CompanyID != companyID {
		return PurchaseOrder{}, shared.ErrNotFound
	}
	return copyOrder(o), nil
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	var out []PurchaseOrder
	for _, o := range m.orders {
		if o.CompanyID != filter.CompanyID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, copyOrder(o))
	}
	return out, len(out), nil
}

type memoryTx struct {
	orders map[int64]PurchaseOrder
}

func (tx *memoryTx) GetOrderForUpdate(_ context.Context, companyID, id int64) (PurchaseOrder, error) {
	o, ok := tx.orders[id]
	if !ok || o.CompanyID != companyID {
		return PurchaseOrder{}, shared.ErrNotFound
	}
	return copyOrder(o), nil
}

func (tx *memoryTx) UpdateItemReceived(_ context.Context, itemID int64, received float64) error {
	for id, o := range tx.orders {
		for i := range o.Items {
			if o.Items[i].ID == itemID {
				o.Items[i].Received = received
				tx.orders[id] = o
				return nil
			}
		}
	}
	return shared.ErrNotFound
}

func (tx *memoryTx) SetStatus(_ context.Context, orderID int64, status Status) error {
	o, ok := tx.orders[orderID]
	if !ok {
		return shared.ErrNotFound
	}
	o.Status = status
	tx.orders[orderID] = o
	return nil
}

func (tx *memoryTx) SetApproved(_ context.Context, orderID, approvedBy int64) error {
	o, ok := tx.orders[orderID]
	if !ok {
		return shared.ErrNotFound
	}
	o.Status = StatusApproved
	o.ApprovedBy = &approvedBy
	tx.orders[orderID] = o
	return nil
}

const (
	companyID  = int64(1)
	locationID = int64(10)
	actorID    = int64(7)
)

func newTestService(t *testing.T) (*Service, *memoryRepo, *ledgertest.MemoryRepo) {
	t.Helper()
	stock := ledgertest.NewMemoryRepo()
	stock.AddLocation(locationID, 1, "A-01")
	repo := newMemoryRepo(stock)
	return NewService(repo, nil, nil, nil), repo, stock
}

func orderedOrder(t *testing.T, svc *Service, items []Item) PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	order, err := svc.Create(ctx, CreateOrderInput{
		CompanyID:   companyID,
		SupplierID:  5,
		WarehouseID: 1,
		LocationID:  locationID,
		CreatedBy:   actorID,
	}, items)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, order.Status)
	require.NoError(t, svc.Submit(ctx, companyID, order.ID, actorID))
	require.NoError(t, svc.Approve(ctx, companyID, order.ID, actorID))
	require.NoError(t, svc.MarkOrdered(ctx, companyID, order.ID, actorID))
	return order
}

func TestReceiveFullOrder(t *testing.T) {
	svc, _, stock := newTestService(t)
	order := orderedOrder(t, svc, []Item{
		{ProductID: 100, Quantity: 10},
		{ProductID: 200, Quantity: 3, Batch: "LOT-1"},
	})

	got, err := svc.Receive(context.Background(), ReceiveInput{
		CompanyID: companyID, OrderID: order.ID, ActorID: actorID,
	})
	require.NoError(t, err)
	require.Equal(t, StatusReceived, got.Status)
	for _, item := range got.Items {
		require.InDelta(t, item.Quantity, item.Received, 1e-9)
	}

	require.InDelta(t, 10, stock.Balance(100, locationID, "").Quantity, 1e-9)
	require.InDelta(t, 3, stock.Balance(200, locationID, "LOT-1").Quantity, 1e-9)

	movements := stock.Movements()
	require.Len(t, movements, 2)
	for _, m := range movements {
		require.Equal(t, ledger.MovementPurchase, m.Type)
		require.Equal(t, order.Number, m.Reference)
		require.Equal(t, locationID, m.ToLocationID)
	}
}

func TestPartialReceive(t *testing.T) {
	svc, repo, stock := newTestService(t)
	order := orderedOrder(t, svc, []Item{{ProductID: 100, Quantity: 10}})
	itemID := repo.orders[order.ID].Items[0].ID

	got, err := svc.Receive(context.Background(), ReceiveInput{
		CompanyID: companyID, OrderID: order.ID, ActorID: actorID,
		Lines: []ReceiveLine{{ItemID: itemID, Quantity: 4}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPartial, got.Status)
	require.InDelta(t, 4, stock.Balance(100, locationID, "").Quantity, 1e-9)

	// Default receive picks up the remaining 6.
	got, err = svc.Receive(context.Background(), ReceiveInput{
		CompanyID: companyID, OrderID: order.ID, ActorID: actorID,
	})
	require.NoError(t, err)
	require.Equal(t, StatusReceived, got.Status)
	require.InDelta(t, 10, stock.Balance(100, locationID, "").Quantity, 1e-9)

	_, err = svc.Receive(context.Background(), ReceiveInput{
		CompanyID: companyID, OrderID: order.ID, ActorID: actorID,
	})
	require.ErrorIs(t, err, ErrAlreadyReceived)
}

func TestReceiveExceedsOutstanding(t *testing.T) {
	svc, repo, stock := newTestService(t)
	order := orderedOrder(t, svc, []Item{{ProductID: 100, Quantity: 10}})
	itemID := repo.orders[order.ID].Items[0].ID

	_, err := svc.Receive(context.Background(), ReceiveInput{
		CompanyID: companyID, OrderID: order.ID, ActorID: actorID,
		Lines: []ReceiveLine{{ItemID: itemID, Quantity: 12}},
	})
	require.ErrorIs(t, err, ErrExceedsOrdered)

	// Nothing was booked.
	require.Zero(t, stock.Balance(100, locationID, "").Quantity)
	require.Equal(t, StatusOrdered, repo.orders[order.ID].Status)
	require.Zero(t, repo.orders[order.ID].Items[0].Received)
}

func TestReceiveRequiresOrderedStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	order, err := svc.Create(context.Background(), CreateOrderInput{
		CompanyID: companyID, SupplierID: 5, WarehouseID: 1, LocationID: locationID, CreatedBy: actorID,
	}, []Item{{ProductID: 100, Quantity: 1}})
	require.NoError(t, err)

	_, err = svc.Receive(context.Background(), ReceiveInput{
		CompanyID: companyID, OrderID: order.ID, ActorID: actorID,
	})
	require.ErrorIs(t, err, ErrStatusTransition)
}

func TestLifecycleTransitions(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	order, err := svc.Create(ctx, CreateOrderInput{
		CompanyID: companyID, SupplierID: 5, WarehouseID: 1, LocationID: locationID, CreatedBy: actorID,
	}, []Item{{ProductID: 100, Quantity: 1}})
	require.NoError(t, err)

	// Approve before submit is rejected.
	require.ErrorIs(t, svc.Approve(ctx, companyID, order.ID, actorID), ErrStatusTransition)

	require.NoError(t, svc.Submit(ctx, companyID, order.ID, actorID))
	require.NoError(t, svc.Approve(ctx, companyID, order.ID, actorID))
	require.NotNil(t, repo.orders[order.ID].ApprovedBy)
	require.Equal(t, actorID, *repo.orders[order.ID].ApprovedBy)

	require.NoError(t, svc.MarkOrdered(ctx, companyID, order.ID, actorID))
	require.NoError(t, svc.Cancel(ctx, companyID, order.ID, actorID))
	require.Equal(t, StatusCancelled, repo.orders[order.ID].Status)
}

func TestCancelAfterReceiptRejected(t *testing.T) {
	svc, repo, _ := newTestService(t)
	order := orderedOrder(t, svc, []Item{{ProductID: 100, Quantity: 10}})
	itemID := repo.orders[order.ID].Items[0].ID

	_, err := svc.Receive(context.Background(), ReceiveInput{
		CompanyID: companyID, OrderID: order.ID, ActorID: actorID,
		Lines: []ReceiveLine{{ItemID: itemID, Quantity: 4}},
	})
	require.NoError(t, err)

	err = svc.Cancel(context.Background(), companyID, order.ID, actorID)
	require.ErrorIs(t, err, ErrStatusTransition)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateOrderInput{
		CompanyID: companyID, SupplierID: 5, WarehouseID: 1, LocationID: locationID,
	}, nil)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, CreateOrderInput{
		CompanyID: companyID, SupplierID: 5, WarehouseID: 1, LocationID: locationID,
	}, []Item{{ProductID: 100, Quantity: -1}})
	require.ErrorIs(t, err, ledger.ErrInvalidQuantity)
}

func TestTenantIsolation(t *testing.T) {
	svc, _, _ := newTestService(t)
	order := orderedOrder(t, svc, []Item{{ProductID: 100, Quantity: 10}})

	_, err := svc.Receive(context.Background(), ReceiveInput{
		CompanyID: 99, OrderID: order.ID, ActorID: actorID,
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
