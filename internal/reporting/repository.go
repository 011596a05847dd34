package reporting

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort abstracts the read queries for Service.
type RepositoryPort interface {
	StockLevels(ctx context.Context, filter StockLevelFilter) ([]StockLevel, int, error)
	LowStock(ctx context.Context, companyID, warehouseID int64) ([]LowStockItem, error)
	Overview(ctx context.Context, companyID int64) (Overview, error)
}

// Repository runs the reporting queries against PostgreSQL. All queries are
// read-only joins over the balance and master data tables.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) StockLevels(ctx context.Context, filter StockLevelFilter) ([]StockLevel, int, error) {
	where := ` WHERE p.company_id = $1`
	args := []any{filter.CompanyID}
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		where += ` AND b.product_id = $` + strconv.Itoa(len(args))
	}
	if filter.WarehouseID != 0 {
		args = append(args, filter.WarehouseID)
		where += ` AND w.id = $` + strconv.Itoa(len(args))
	}
	if filter.LocationID != 0 {
		args = append(args, filter.LocationID)
		where += ` AND b.location_id = $` + strconv.Itoa(len(args))
	}

	from := ` FROM inventory_balances b
		JOIN products p ON p.id = b.product_id
		JOIN locations l ON l.id = b.location_id
		JOIN warehouses w ON w.id = l.warehouse_id`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)

	rows, err := r.pool.Query(ctx,
		`SELECT b.product_id, p.sku, p.name, p.unit,
			w.id, w.name, b.location_id, l.code, b.batch,
			b.quantity, b.reserved, b.quantity - b.reserved`+
			from+where+
			` ORDER BY p.sku, l.code, b.batch
			 LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []StockLevel
	for rows.Next() {
		var lvl StockLevel
		if err := rows.Scan(&lvl.ProductID, &lvl.SKU, &lvl.ProductName, &lvl.Unit,
			&lvl.WarehouseID, &lvl.WarehouseName, &lvl.LocationID, &lvl.LocationCode,
			&lvl.Batch, &lvl.Quantity, &lvl.Reserved, &lvl.Available); err != nil {
			return nil, 0, err
		}
		out = append(out, lvl)
	}
	return out, total, rows.Err()
}

func (r *Repository) LowStock(ctx context.Context, companyID, warehouseID int64) ([]LowStockItem, error) {
	args := []any{companyID}
	warehouseCond := ``
	if warehouseID != 0 {
		args = append(args, warehouseID)
		warehouseCond = ` AND w.id = $2`
	}

	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.sku, p.name, p.unit, p.min_stock,
			COALESCE(SUM(b.quantity), 0) AS on_hand
		 FROM products p
		 LEFT JOIN inventory_balances b ON b.product_id = p.id
		 LEFT JOIN locations l ON l.id = b.location_id
		 LEFT JOIN warehouses w ON w.id = l.warehouse_id
		 WHERE p.company_id = $1 AND p.is_active AND p.min_stock > 0`+warehouseCond+`
		 GROUP BY p.id, p.sku, p.name, p.unit, p.min_stock
		 HAVING COALESCE(SUM(b.quantity), 0) < p.min_stock
		 ORDER BY p.min_stock - COALESCE(SUM(b.quantity), 0) DESC`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LowStockItem
	for rows.Next() {
		var item LowStockItem
		if err := rows.Scan(&item.ProductID, &item.SKU, &item.Name, &item.Unit,
			&item.MinStock, &item.OnHand); err != nil {
			return nil, err
		}
		item.Deficit = item.MinStock - item.OnHand
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *Repository) Overview(ctx context.Context, companyID int64) (Overview, error) {
	var ov Overview
	err := r.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM products WHERE company_id = $1 AND is_active),
			(SELECT COUNT(*) FROM warehouses WHERE company_id = $1 AND is_active),
			COALESCE(SUM(b.quantity), 0),
			COALESCE(SUM(b.reserved), 0)
		 FROM inventory_balances b
		 JOIN products p ON p.id = b.product_id
		 WHERE p.company_id = $1`,
		companyID,
	).Scan(&ov.Products, &ov.Warehouses, &ov.TotalQuantity, &ov.TotalReserved)
	return ov, err
}
