package sales

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/platform/db"
	"github.com/stocklane/stocklane/internal/shared"
)

// TxRepository exposes the transactional operations of the confirm, ship
// and cancel workflows.
type TxRepository interface {
	// GetOrderForUpdate locks the order header and returns it with items.
	GetOrderForUpdate(ctx context.Context, companyID, id int64) (SalesOrder, error)
	// UpdateItemShipped writes the accumulated shipped quantity.
	UpdateItemShipped(ctx context.Context, itemID int64, shipped float64) error
	// SetStatus writes the order status.
	SetStatus(ctx context.Context, orderID int64, status Status) error
	// InsertShipment stores a shipment record.
	InsertShipment(ctx context.Context, shipment Shipment) (Shipment, error)
}

// RepositoryPort abstracts repository usage for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository, ledger.TxRepository) error) error
	Create(ctx context.Context, order SalesOrder) (SalesOrder, error)
	Get(ctx context.Context, companyID, id int64) (SalesOrder, error)
	List(ctx context.Context, filter ListFilter) ([]SalesOrder, int, error)
	GetShipment(ctx context.Context, companyID, id int64) (Shipment, error)
	ListShipments(ctx context.Context, companyID, orderID int64) ([]Shipment, error)
	MarkShipmentDelivered(ctx context.Context, companyID, id int64, at time.Time) (Shipment, error)
}

// Repository persists sales orders and shipments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository, ledger.TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx}, ledger.NewTxRepository(tx))
	})
}

const orderColumns = `id, company_id, number, customer_id, warehouse_id, location_id, status, notes, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (SalesOrder, error) {
	var o SalesOrder
	err := row.Scan(&o.ID, &o.CompanyID, &o.Number, &o.CustomerID, &o.WarehouseID, &o.LocationID,
		&o.Status, &o.Notes, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (r *Repository) Create(ctx context.Context, order SalesOrder) (SalesOrder, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		err := tx.QueryRow(ctx,
			`INSERT INTO sales_orders
				(company_id, number, customer_id, warehouse_id, location_id, status, notes, created_by, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) RETURNING id`,
			order.CompanyID, order.Number, order.CustomerID, order.WarehouseID, order.LocationID,
			order.Status, order.Notes, order.CreatedBy, now,
		).Scan(&order.ID)
		if err != nil {
			return err
		}
		order.CreatedAt = now
		order.UpdatedAt = now

		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = order.ID
			err := tx.QueryRow(ctx,
				`INSERT INTO sales_order_items (order_id, product_id, quantity, shipped, unit_price, tax_rate, batch)
				 VALUES ($1, $2, $3, 0, $4, $5, $6) RETURNING id`,
				item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.TaxRate, item.Batch,
			).Scan(&item.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SalesOrder{}, err
	}
	return order, nil
}

func (r *Repository) Get(ctx context.Context, companyID, id int64) (SalesOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE company_id = $1 AND id = $2`, companyID, id)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return SalesOrder{}, shared.ErrNotFound
	}
	if err != nil {
		return SalesOrder{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, product_id, quantity, shipped, unit_price, tax_rate, batch
		 FROM sales_order_items WHERE order_id = $1 ORDER BY id`,
		order.ID)
	if err != nil {
		return SalesOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Shipped,
			&it.UnitPrice, &it.TaxRate, &it.Batch); err != nil {
			return SalesOrder{}, err
		}
		order.Items = append(order.Items, it)
	}
	return order, rows.Err()
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]SalesOrder, int, error) {
	where := ` WHERE company_id = $1`
	args := []any{filter.CompanyID}
	argCount := 1

	if filter.Status != "" {
		argCount++
		where += ` AND status = $` + strconv.Itoa(argCount)
		args = append(args, string(filter.Status))
	}
	if filter.CustomerID != 0 {
		argCount++
		where += ` AND customer_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.CustomerID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + orderColumns + ` FROM sales_orders` + where + ` ORDER BY created_at DESC, id DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)
	if filter.Page > 1 {
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		args = append(args, (filter.Page-1)*limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []SalesOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

const shipmentColumns = `id, company_id, order_id, number, status, carrier, tracking_number, shipped_at, delivered_at`

func scanShipment(row pgx.Row) (Shipment, error) {
	var s Shipment
	err := row.Scan(&s.ID, &s.CompanyID, &s.OrderID, &s.Number, &s.Status, &s.Carrier,
		&s.TrackingNumber, &s.ShippedAt, &s.DeliveredAt)
	return s, err
}

func (r *Repository) GetShipment(ctx context.Context, companyID, id int64) (Shipment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE company_id = $1 AND id = $2`, companyID, id)
	s, err := scanShipment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Shipment{}, shared.ErrNotFound
	}
	return s, err
}

func (r *Repository) ListShipments(ctx context.Context, companyID, orderID int64) ([]Shipment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+shipmentColumns+` FROM shipments WHERE company_id = $1 AND order_id = $2 ORDER BY shipped_at DESC`,
		companyID, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shipments []Shipment
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		shipments = append(shipments, s)
	}
	return shipments, rows.Err()
}

func (r *Repository) MarkShipmentDelivered(ctx context.Context, companyID, id int64, at time.Time) (Shipment, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE shipments SET status = $3, delivered_at = $4
		 WHERE company_id = $1 AND id = $2 AND status = $5
		 RETURNING `+shipmentColumns,
		companyID, id, string(ShipmentDelivered), at, string(ShipmentShipped))
	s, err := scanShipment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either missing or already delivered; disambiguate for the caller.
		if _, getErr := r.GetShipment(ctx, companyID, id); getErr == nil {
			return Shipment{}, ErrShipmentDelivered
		}
		return Shipment{}, shared.ErrNotFound
	}
	return s, err
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, companyID, id int64) (SalesOrder, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM sales_orders WHERE company_id = $1 AND id = $2 FOR UPDATE`,
		companyID, id)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return SalesOrder{}, shared.ErrNotFound
	}
	if err != nil {
		return SalesOrder{}, err
	}

	rows, err := r.tx.Query(ctx,
		`SELECT id, order_id, product_id, quantity, shipped, unit_price, tax_rate, batch
		 FROM sales_order_items WHERE order_id = $1 ORDER BY id FOR UPDATE`,
		order.ID)
	if err != nil {
		return SalesOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Shipped,
			&it.UnitPrice, &it.TaxRate, &it.Batch); err != nil {
			return SalesOrder{}, err
		}
		order.Items = append(order.Items, it)
	}
	return order, rows.Err()
}

func (r *txRepository) UpdateItemShipped(ctx context.Context, itemID int64, shipped float64) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE sales_order_items SET shipped = $2 WHERE id = $1`, itemID, shipped)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) SetStatus(ctx context.Context, orderID int64, status Status) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE sales_orders SET status = $2, updated_at = NOW() WHERE id = $1`, orderID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertShipment(ctx context.Context, shipment Shipment) (Shipment, error) {
	err := r.tx.QueryRow(ctx,
		`INSERT INTO shipments (company_id, order_id, number, status, carrier, tracking_number, shipped_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		shipment.CompanyID, shipment.OrderID, shipment.Number, string(shipment.Status),
		shipment.Carrier, shipment.TrackingNumber, shipment.ShippedAt,
	).Scan(&shipment.ID)
	if err != nil {
		return Shipment{}, err
	}
	return shipment, nil
}
