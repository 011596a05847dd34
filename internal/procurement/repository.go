package procurement

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

// TxRepository exposes the transactional operations of the receive and
// lifecycle workflows. It always runs alongside a ledger.TxRepository over
// the same transaction so document updates and stock movements commit
// together.
type TxRepository interface {
	// GetOrderForUpdate locks the order header and returns it with items.
	GetOrderForUpdate(ctx context.Context, companyID, id int64) (PurchaseOrder, error)
	// UpdateItemReceived writes the accumulated received quantity.
	UpdateItemReceived(ctx context.Context, itemID int64, received float64) error
	// SetStatus writes the order status.
	SetStatus(ctx context.Context, orderID int64, status Status) error
	// SetApproved writes approved status together with the approver.
	SetApproved(ctx context.Context, orderID, approvedBy int64) error
}

// RepositoryPort abstracts repository usage for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository, ledger.TxRepository) error) error
	Create(ctx context.Context, order PurchaseOrder) (PurchaseOrder, error)
	Get(ctx context.Context, companyID, id int64) (PurchaseOrder, error)
	List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error)
}

// Repository persists purchase orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn with a document wrapper and a ledger wrapper over the same
// transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository, ledger.TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx}, ledger.NewTxRepository(tx))
	})
}

const orderColumns = `id, company_id, number, supplier_id, warehouse_id, location_id, status, expected_date, notes, created_by, approved_by, created_at, updated_at`

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var o PurchaseOrder
	err := row.Scan(&o.ID, &o.CompanyID, &o.Number, &o.SupplierID, &o.WarehouseID, &o.LocationID,
		&o.Status, &o.ExpectedDate, &o.Notes, &o.CreatedBy, &o.ApprovedBy, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// Create inserts the order header and items in one transaction.
func (r *Repository) Create(ctx context.Context, order PurchaseOrder) (PurchaseOrder, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		err := tx.QueryRow(ctx,
			`INSERT INTO purchase_orders
				(company_id, number, supplier_id, warehouse_id, location_id, status, expected_date, notes, created_by, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10) RETURNING id`,
			order.CompanyID, order.Number, order.SupplierID, order.WarehouseID, order.LocationID,
			order.Status, order.ExpectedDate, order.Notes, order.CreatedBy, now,
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
				`INSERT INTO purchase_order_items
					(order_id, product_id, quantity, received, unit_price, tax_rate, batch, expiry)
				 VALUES ($1, $2, $3, 0, $4, $5, $6, $7) RETURNING id`,
				item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.TaxRate, item.Batch, item.Expiry,
			).Scan(&item.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	return order, nil
}

// Get returns the order with its items.
func (r *Repository) Get(ctx context.Context, companyID, id int64) (PurchaseOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE company_id = $1 AND id = $2`, companyID, id)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, shared.ErrNotFound
	}
	if err != nil {
		return PurchaseOrder{}, err
	}
	order.Items, err = r.loadItems(ctx, r.pool, order.ID)
	return order, err
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repository) loadItems(ctx context.Context, q queryer, orderID int64) ([]Item, error) {
	rows, err := q.Query(ctx,
		`SELECT id, order_id, product_id, quantity, received, unit_price, tax_rate, batch, expiry
		 FROM purchase_order_items WHERE order_id = $1 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Received,
			&it.UnitPrice, &it.TaxRate, &it.Batch, &it.Expiry); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// List returns orders matching the filter, newest first, without items.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	where := ` WHERE company_id = $1`
	args := []any{filter.CompanyID}
	argCount := 1

	if filter.Status != "" {
		argCount++
		where += ` AND status = $` + strconv.Itoa(argCount)
		args = append(args, string(filter.Status))
	}
	if filter.SupplierID != 0 {
		argCount++
		where += ` AND supplier_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.SupplierID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + orderColumns + ` FROM purchase_orders` + where + ` ORDER BY created_at DESC, id DESC`
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

	var orders []PurchaseOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, companyID, id int64) (PurchaseOrder, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM purchase_orders WHERE company_id = $1 AND id = $2 FOR UPDATE`,
		companyID, id)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, shared.ErrNotFound
	}
	if err != nil {
		return PurchaseOrder{}, err
	}

	rows, err := r.tx.Query(ctx,
		`SELECT id, order_id, product_id, quantity, received, unit_price, tax_rate, batch, expiry
		 FROM purchase_order_items WHERE order_id = $1 ORDER BY id FOR UPDATE`,
		order.ID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Received,
			&it.UnitPrice, &it.TaxRate, &it.Batch, &it.Expiry); err != nil {
			return PurchaseOrder{}, err
		}
		order.Items = append(order.Items, it)
	}
	return order, rows.Err()
}

func (r *txRepository) UpdateItemReceived(ctx context.Context, itemID int64, received float64) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE purchase_order_items SET received = $2 WHERE id = $1`, itemID, received)
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
		`UPDATE purchase_orders SET status = $2, updated_at = NOW() WHERE id = $1`, orderID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) SetApproved(ctx context.Context, orderID, approvedBy int64) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE purchase_orders SET status = $2, approved_by = $3, updated_at = NOW() WHERE id = $1`,
		orderID, string(StatusApproved), approvedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
