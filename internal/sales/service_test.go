package sales

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/ledger/ledgertest"
	"github.com/stocklane/stocklane/internal/shared"
)

// memoryRepo implements RepositoryPort over maps, sharing transaction
// staging with the in-memory ledger so rollback can be asserted.
type memoryRepo struct {
	stock          *ledgertest.MemoryRepo
	nextID         int64
	nextItemID     int64
	nextShipmentID int64
	orders         map[int64]SalesOrder
	shipments      map[int64]Shipment
}

func newMemoryRepo(stock *ledgertest.MemoryRepo) *memoryRepo {
	return &memoryRepo{
		stock:     stock,
		orders:    map[int64]SalesOrder{},
		shipments: map[int64]Shipment{},
	}
}

func copyOrder(o SalesOrder) SalesOrder {
	out := o
	out.Items = append([]Item(nil), o.Items...)
	return out
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository, ledger.TxRepository) error) error {
	stagedOrders := make(map[int64]SalesOrder, len(m.orders))
	for id, o := range m.orders {
		stagedOrders[id] = copyOrder(o)
	}
	stagedShipments := make(map[int64]Shipment, len(m.shipments))
	for id, s := range m.shipments {
		stagedShipments[id] = s
	}
	tx := &memoryTx{repo: m, orders: stagedOrders, shipments: stagedShipments, nextShipmentID: m.nextShipmentID}
	err := m.stock.WithTx(ctx, func(ctx context.Context, ltx ledger.TxRepository) error {
		return fn(ctx, tx, ltx)
	})
	if err != nil {
		return err
	}
	m.orders = stagedOrders
	m.shipments = stagedShipments
	m.nextShipmentID = tx.nextShipmentID
	return nil
}

func (m *memoryRepo) Create(_ context.Context, order SalesOrder) (SalesOrder, error) {
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

func (m *memoryRepo) Get(_ context.Context, companyID, id int64) (SalesOrder, error) {
	o, ok := m.orders[id]
	if !ok || o.CompanyID != companyID {
		return SalesOrder{}, shared.ErrNotFound
	}
	return copyOrder(o), nil
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]SalesOrder, int, error) {
	var out []SalesOrder
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

func (m *memoryRepo) GetShipment(_ context.Context, companyID, id int64) (Shipment, error) {
	s, ok := m.shipments[id]
	if !ok || s.CompanyID != companyID {
		return Shipment{}, shared.ErrNotFound
	}
	return s, nil
}

func (m *memoryRepo) ListShipments(_ context.Context, companyID, orderID int64) ([]Shipment, error) {
	var out []Shipment
	for _, s := range m.shipments {
		if s.CompanyID == companyID && s.OrderID == orderID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memoryRepo) MarkShipmentDelivered(_ context.Context, companyID, id int64, at time.Time) (Shipment, error) {
	s, ok := m.shipments[id]
	if !ok || s.CompanyID != companyID {
		return Shipment{}, shared.ErrNotFound
	}
	if s.Status == ShipmentDelivered {
		return Shipment{}, ErrShipmentDelivered
	}
	s.Status = ShipmentDelivered
	s.DeliveredAt = &at
	m.shipments[id] = s
	return s, nil
}

type memoryTx struct {
	repo           *memoryRepo
	orders         map[int64]SalesOrder
	shipments      map[int64]Shipment
	nextShipmentID int64
}

func (tx *memoryTx) GetOrderForUpdate(_ context.Context, companyID, id int64) (SalesOrder, error) {
	o, ok := tx.orders[id]
	if !ok || o.CompanyID != companyID {
		return SalesOrder{}, shared.ErrNotFound
	}
	return copyOrder(o), nil
}

func (tx *memoryTx) UpdateItemShipped(_ context.Context, itemID int64, shipped float64) error {
	for id, o := range tx.orders {
		for i := range o.Items {
			if o.Items[i].ID == itemID {
				o.Items[i].Shipped = shipped
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

func (tx *memoryTx) InsertShipment(_ context.Context, shipment Shipment) (Shipment, error) {
	tx.nextShipmentID++
	shipment.ID = tx.nextShipmentID
	tx.shipments[shipment.ID] = shipment
	return shipment, nil
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

func draftOrder(t *testing.T, svc *Service, items []Item) SalesOrder {
	t.Helper()
	order, err := svc.Create(context.Background(), CreateOrderInput{
		CompanyID:   companyID,
		CustomerID:  3,
		WarehouseID: 1,
		LocationID:  locationID,
		CreatedBy:   actorID,
	}, items)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, order.Status)
	return order
}

func TestConfirmReservesStock(t *testing.T) {
	svc, _, stock := newTestService(t)
	stock.SeedBalance(100, locationID, "", 20, 0)
	order := draftOrder(t, svc, []Item{{ProductID: 100, Quantity: 8}})

	require.NoError(t, svc.Confirm(context.Background(), companyID, order.ID, actorID))

	bal := stock.Balance(100, locationID, "")
	require.InDelta(t, 20, bal.Quantity, 1e-9)
	require.InDelta(t, 8, bal.Reserved, 1e-9)
}

func TestConfirmInsufficientStock(t *testing.T) {
	svc, repo, stock := newTestService(t)
	stock.SeedBalance(100, locationID, "", 20, 0)
	stock.SeedBalance(200, locationID, "", 1, 0)
	order := draftOrder(t, svc, []Item{
		{ProductID: 100, Quantity: 8},
		{ProductID: 200, Quantity: 5},
	})

	err := svc.Confirm(context.Background(), companyID, order.ID, actorID)
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	// Nothing was reserved, not even for the first item.
	require.Zero(t, stock.Balance(100, locationID, "").Reserved)
	require.Equal(t, StatusDraft, repo.orders[order.ID].Status)
}

func TestShipConsumesReservation(t *testing.T) {
	svc, _, stock := newTestService(t)
	stock.SeedBalance(100, locationID, "", 20, 0)
	order := draftOrder(t, svc, []Item{{ProductID: 100, Quantity: 8}})
	ctx := context.Background()
	require.NoError(t, svc.Confirm(ctx, companyID, order.ID, actorID))

	result, err := svc.Ship(ctx, ShipInput{
		CompanyID: companyID, OrderID: order.ID, ActorID: actorID,
		Carrier: "DHL", TrackingNumber: "TRK-1",
	})
	require.NoError(t, err)
	require.Equal(t, StatusShipped, result.Order.Status)
	require.Equal(t, ShipmentShipped, result.Shipment.Status)
	require.Equal(t, "DHL", result.Shipment.Carrier)
	require.NotEmpty(t, result.Shipment.Number)

	bal := stock.Balance(100, locationID, "")
	require.InDelta(t, 12, bal.Quantity, 1e-9)
	require.Zero(t, bal.Reserved)

	movements := stock.Movements()
	require.Len(t, movements, 1)
	require.Equal(t, ledger.MovementSale, movements[0].Type)
	require.Equal(t, result.Shipment.Number, movements[0].Reference)
	require.Equal(t, locationID, movements[0].FromLocationID)
}

func TestPartialShip(t *testing.T) {
	svc, repo, stock := newTestService(t)
	stock.SeedBalance(100, locationID, "", 20, 0)
	order := draftOrder(t, svc, []Item{{ProductID: 100, Quantity: 8}})
	ctx := context.Background()
	require.NoError(t, svc.Confirm(ctx, companyID, order.ID, actorID))
	itemID := repo.orders[order.ID].Items[0].ID

	result, err := svc.Ship(ctx, ShipInput{
		CompanyID: companyID, OrderID: order.ID, ActorID: actorID,
		Lines: []ShipLine{{ItemID: itemID, Quantity: 3}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPartial, result.Order.Status)

	bal := stock.Balance(100, locationID, "")
	require.InDelta(t, 17, bal.Quantity, 1e-9)
	require.InDelta(t, 5, bal.Reserved, 1e-9)

	// Default ship picks up the remaining 5.
	result, err = svc.Ship(ctx, ShipInput{
		CompanyID: companyID, OrderID: order.ID, ActorID: actorID,
	})
	require.NoError(t, err)
	require.Equal(t, StatusShipped, result.Order.Status)
	require.InDelta(t, 12, stock.Balance(100, locationID, "").Quantity, 1e-9)
	require.Zero(t, stock.Balance(100, locationID, "").Reserved)

	// Two shipment records exist for the order.
	shipments, err := svc.Shipments(ctx, companyID, order.ID)
	require.NoError(t, err)
	require.Len(t, shipments, 2)

	_, err = svc.Ship(ctx, ShipInput{
		CompanyID: companyID, OrderID: order.ID, ActorID: actorID,
	})
	require.ErrorIs(t, err, ErrAlreadyShipped)
}

func TestShipExceedsOutstanding(t *testing.T) {
	svc, repo, stock := newTestService(t)
	stock.SeedBalance(100, locationID, "", 20, 0)
	order := draftOrder(t, svc, []Item{{ProductID: 100, Quantity: 8}})
	ctx := context.Background()
	require.NoError(t, svc.Confirm(ctx, companyID, order.ID, actorID))
	itemID := repo.orders[order.ID].Items[0].ID

	_, err := svc.Ship(ctx, ShipInput{
		CompanyID: companyID, OrderID: order.ID, ActorID: actorID,
		Lines: []ShipLine{{ItemID: itemID, Quantity: 9}},
	})
	require.ErrorIs(t, err, ErrExceedsOrdered)

	// Nothing moved, the reservation is intact.
	bal := stock.Balance(100, locationID, "")
	require.InDelta(t, 20, bal.Quantity, 1e-9)
	require.InDelta(t, 8, bal.Reserved, 1e-9)
	require.Zero(t, repo.orders[order.ID].Items[0].Shipped)
}

func TestShipRequiresConfirmation(t *testing.T) {
	svc, _, stock := newTestService(t)
	stock.SeedBalance(100, locationID, "", 20, 0)
	order := draftOrder(t, svc, []Item{{ProductID: 100, Quantity: 8}})

	_, err := svc.Ship(context.Background(), ShipInput{
		CompanyID: companyID, OrderID: order.ID, ActorID: actorID,
	})
	require.ErrorIs(t, err, ErrStatusTransition)
}

func TestCancelReleasesReservation(t *testing.T) {
	svc, repo, stock := newTestService(t)
	stock.SeedBalance(100, locationID, "", 20, 0)
	order := draftOrder(t, svc, []Item{{ProductID: 100, Quantity: 8}})
	ctx := context.Background()
	require.NoError(t, svc.Confirm(ctx, companyID, order.ID, actorID))
	require.InDelta(t, 8, stock.Balance(100, locationID, "").Reserved, 1e-9)

	require.NoError(t, svc.Cancel(ctx, companyID, order.ID, actorID))
	require.Zero(t, stock.Balance(100, locationID, "").Reserved)
	require.Equal(t, StatusCancelled, repo.orders[order.ID].Status)
}

func TestCancelAfterShipmentRejected(t *testing.T) {
	svc, repo, stock := newTestService(t)
	stock.SeedBalance(100, locationID, "", 20, 0)
	order := draftOrder(t, svc, []Item{{ProductID: 100, Quantity: 8}})
	ctx := context.Background()
	require.NoError(t, svc.Confirm(ctx, companyID, order.ID, actorID))
	itemID := repo.orders[order.ID].Items[0].ID

	_, err := svc.Ship(ctx, ShipInput{
		CompanyID: companyID, OrderID: order.ID, ActorID: actorID,
		Lines: []ShipLine{{ItemID: itemID, Quantity: 3}},
	})
	require.NoError(t, err)

	err = svc.Cancel(ctx, companyID, order.ID, actorID)
	require.ErrorIs(t, err, ErrStatusTransition)
}

func TestMarkDelivered(t *testing.T) {
	svc, _, stock := newTestService(t)
	stock.SeedBalance(100, locationID, "", 20, 0)
	order := draftOrder(t, svc, []Item{{ProductID: 100, Quantity: 8}})
	ctx := context.Background()
	require.NoError(t, svc.Confirm(ctx, companyID, order.ID, actorID))

	result, err := svc.Ship(ctx, ShipInput{
		CompanyID: companyID, OrderID: order.ID, ActorID: actorID,
	})
	require.NoError(t, err)

	shipment, err := svc.MarkDelivered(ctx, companyID, result.Shipment.ID, actorID)
	require.NoError(t, err)
	require.Equal(t, ShipmentDelivered, shipment.Status)
	require.NotNil(t, shipment.DeliveredAt)

	_, err = svc.MarkDelivered(ctx, companyID, result.Shipment.ID, actorID)
	require.ErrorIs(t, err, ErrShipmentDelivered)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateOrderInput{
		CompanyID: companyID, CustomerID: 3, WarehouseID: 1, LocationID: locationID,
	}, nil)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, CreateOrderInput{
		CompanyID: companyID, CustomerID: 3, WarehouseID: 1, LocationID: locationID,
	}, []Item{{ProductID: 100, Quantity: 0}})
	require.ErrorIs(t, err, ledger.ErrInvalidQuantity)
}

func TestTenantIsolation(t *testing.T) {
	svc, _, stock := newTestService(t)
	stock.SeedBalance(100, locationID, "", 20, 0)
	order := draftOrder(t, svc, []Item{{ProductID: 100, Quantity: 8}})

	err := svc.Confirm(context.Background(), 99, order.ID, actorID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
