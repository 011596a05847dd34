package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists balances and movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by Service. Every
// balance mutation happens behind a SELECT ... FOR UPDATE taken through this
// interface, inside one transaction per workflow call.
type TxRepository interface {
	// LockBalance locks and returns the balance row for the triple, or
	// ErrBalanceNotFound when no row exists yet.
	LockBalance(ctx context.Context, productID, locationID int64, batch string) (Balance, error)
	// LockOrCreateBalance locks the balance row for the triple, creating a
	// zero row first when absent.
	LockOrCreateBalance(ctx context.Context, productID, locationID int64, batch string, expiry *time.Time) (Balance, error)
	// LockWarehouseBalances locks every stocked row for the product within
	// the warehouse, ordered by location code.
	LockWarehouseBalances(ctx context.Context, productID, warehouseID int64) ([]Balance, error)
	// LocationWarehouse reports which warehouse a location belongs to, or
	// ErrLocationNotFound for an unknown location id.
	LocationWarehouse(ctx context.Context, locationID int64) (int64, error)
	// UpdateBalance writes the new quantity and reserved values for a row.
	UpdateBalance(ctx context.Context, id int64, quantity, reserved float64) error
	// InsertMovement appends one ledger entry and returns it with identity.
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction so workflow repositories can
// post movements inside the same transaction as their document updates.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const balanceColumns = `id, product_id, location_id, batch, quantity, reserved, expiry, last_counted, updated_at`

func scanBalance(row pgx.Row) (Balance, error) {
	var b Balance
	err := row.Scan(&b.ID, &b.ProductID, &b.LocationID, &b.Batch, &b.Quantity, &b.Reserved, &b.Expiry, &b.LastCounted, &b.UpdatedAt)
	return b, err
}

// FindBalance returns the tenant's balance row for the triple without
// locking.
func (r *Repository) FindBalance(ctx context.Context, companyID, productID, locationID int64, batch string) (Balance, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT b.id, b.product_id, b.location_id, b.batch, b.quantity, b.reserved, b.expiry, b.last_counted, b.updated_at
		 FROM inventory_balances b
		 JOIN locations l ON l.id = b.location_id
		 JOIN warehouses w ON w.id = l.warehouse_id
		 WHERE w.company_id=$1 AND b.product_id=$2 AND b.location_id=$3 AND b.batch=$4`,
		companyID, productID, locationID, batch)
	b, err := scanBalance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{ProductID: productID, LocationID: locationID, Batch: batch}, ErrBalanceNotFound
	}
	return b, err
}

// ListBalances returns balance rows matching the filter.
func (r *Repository) ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error) {
	query := `SELECT b.id, b.product_id, b.location_id, b.batch, b.quantity, b.reserved, b.expiry, b.last_counted, b.updated_at
		FROM inventory_balances b
		JOIN locations l ON l.id = b.location_id
		JOIN warehouses w ON w.id = l.warehouse_id
		WHERE 1=1`
	args := []any{}
	argCount := 0

	if filter.CompanyID != 0 {
		argCount++
		query += ` AND w.company_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.CompanyID)
	}
	if filter.ProductID != 0 {
		argCount++
		query += ` AND b.product_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.ProductID)
	}
	if filter.LocationID != 0 {
		argCount++
		query += ` AND b.location_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.LocationID)
	}
	if filter.WarehouseID != 0 {
		argCount++
		query += ` AND l.warehouse_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.WarehouseID)
	}

	query += ` ORDER BY b.product_id, b.location_id, b.batch`
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)
	if filter.Offset > 0 {
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		args = append(args, filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// ListMovements returns ledger entries matching the filter, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	query := `SELECT id, company_id, movement_type, product_id, from_location_id, to_location_id,
		quantity, batch, expiry, reference, notes, occurred_at, actor_id
		FROM stock_movements WHERE company_id = $1`
	args := []any{filter.CompanyID}
	argCount := 1

	if filter.ProductID != 0 {
		argCount++
		query += ` AND product_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.ProductID)
	}
	if filter.LocationID != 0 {
		argCount++
		query += ` AND (from_location_id = $` + strconv.Itoa(argCount) + ` OR to_location_id = $` + strconv.Itoa(argCount) + `)`
		args = append(args, filter.LocationID)
	}
	if filter.Type != "" {
		argCount++
		query += ` AND movement_type = $` + strconv.Itoa(argCount)
		args = append(args, string(filter.Type))
	}
	if !filter.From.IsZero() {
		argCount++
		query += ` AND occurred_at >= $` + strconv.Itoa(argCount)
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		argCount++
		query += ` AND occurred_at <= $` + strconv.Itoa(argCount)
		args = append(args, filter.To)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	argCount++
	query += ` ORDER BY occurred_at DESC, id DESC LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMovements(rows)
}

// MovementsForBalance returns every movement touching (product, location) in
// ascending order, the replay order for balance reconstruction.
func (r *Repository) MovementsForBalance(ctx context.Context, productID, locationID int64) ([]Movement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, company_id, movement_type, product_id, from_location_id, to_location_id,
			quantity, batch, expiry, reference, notes, occurred_at, actor_id
		 FROM stock_movements
		 WHERE product_id = $1 AND (from_location_id = $2 OR to_location_id = $2)
		 ORDER BY occurred_at ASC, id ASC`,
		productID, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMovements(rows)
}

func collectMovements(rows pgx.Rows) ([]Movement, error) {
	var movements []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	var from, to pgtype.Int8
	err := row.Scan(&m.ID, &m.CompanyID, &m.Type, &m.ProductID, &from, &to,
		&m.Quantity, &m.Batch, &m.Expiry, &m.Reference, &m.Notes, &m.OccurredAt, &m.ActorID)
	if err != nil {
		return Movement{}, err
	}
	m.FromLocationID = from.Int64
	m.ToLocationID = to.Int64
	return m, nil
}

func (r *txRepository) LockBalance(ctx context.Context, productID, locationID int64, batch string) (Balance, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+balanceColumns+` FROM inventory_balances
		 WHERE product_id=$1 AND location_id=$2 AND batch=$3 FOR UPDATE`,
		productID, locationID, batch)
	b, err := scanBalance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{ProductID: productID, LocationID: locationID, Batch: batch}, ErrBalanceNotFound
	}
	return b, err
}

func (r *txRepository) LockOrCreateBalance(ctx context.Context, productID, locationID int64, batch string, expiry *time.Time) (Balance, error) {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO inventory_balances (product_id, location_id, batch, quantity, reserved, expiry, updated_at)
		 VALUES ($1, $2, $3, 0, 0, $4, NOW())
		 ON CONFLICT (product_id, location_id, batch) DO NOTHING`,
		productID, locationID, batch, expiry)
	if err != nil {
		return Balance{}, err
	}
	return r.LockBalance(ctx, productID, locationID, batch)
}

func (r *txRepository) LockWarehouseBalances(ctx context.Context, productID, warehouseID int64) ([]Balance, error) {
	rows, err := r.tx.Query(ctx,
		`SELECT b.id, b.product_id, b.location_id, b.batch, b.quantity, b.reserved, b.expiry, b.last_counted, b.updated_at
		 FROM inventory_balances b
		 JOIN locations l ON l.id = b.location_id
		 WHERE b.product_id = $1 AND l.warehouse_id = $2 AND b.quantity > 0
		 ORDER BY l.code, b.batch
		 FOR UPDATE OF b`,
		productID, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func (r *txRepository) LocationWarehouse(ctx context.Context, locationID int64) (int64, error) {
	var warehouseID int64
	err := r.tx.QueryRow(ctx,
		`SELECT warehouse_id FROM locations WHERE id=$1`, locationID).Scan(&warehouseID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrLocationNotFound
	}
	return warehouseID, err
}

func (r *txRepository) UpdateBalance(ctx context.Context, id int64, quantity, reserved float64) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE inventory_balances SET quantity=$2, reserved=$3, updated_at=NOW() WHERE id=$1`,
		id, quantity, reserved)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBalanceNotFound
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	from := pgtype.Int8{Int64: m.FromLocationID, Valid: m.FromLocationID != 0}
	to := pgtype.Int8{Int64: m.ToLocationID, Valid: m.ToLocationID != 0}
	err := r.tx.QueryRow(ctx,
		`INSERT INTO stock_movements
			(company_id, movement_type, product_id, from_location_id, to_location_id,
			 quantity, batch, expiry, reference, notes, occurred_at, actor_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id`,
		m.CompanyID, string(m.Type), m.ProductID, from, to,
		m.Quantity, m.Batch, m.Expiry, m.Reference, m.Notes, m.OccurredAt, m.ActorID).Scan(&m.ID)
	if err != nil {
		return Movement{}, err
	}
	return m, nil
}
