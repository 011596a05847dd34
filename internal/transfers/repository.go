package transfers

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

// TxRepository exposes transactional operations of the process workflow.
type TxRepository interface {
	// GetForUpdate locks the transfer header and returns it with items.
	GetForUpdate(ctx context.Context, companyID, id int64) (Transfer, error)
	// RecordItemSource stores the location and batch the item was debited
	// from, for items resolved at processing time.
	RecordItemSource(ctx context.Context, itemID, locationID int64, batch string) error
	// SetProcessed marks the transfer completed.
	SetProcessed(ctx context.Context, transferID, processedBy int64, at time.Time) error
	// SetStatus writes the transfer status.
	SetStatus(ctx context.Context, transferID int64, status Status) error
}

// RepositoryPort abstracts repository usage for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository, ledger.TxRepository) error) error
	Create(ctx context.Context, transfer Transfer) (Transfer, error)
	Get(ctx context.Context, companyID, id int64) (Transfer, error)
	List(ctx context.Context, filter ListFilter) ([]Transfer, int, error)
}

// Repository persists transfers in PostgreSQL.
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

const transferColumns = `id, company_id, number, from_warehouse_id, to_warehouse_id, to_location_id, status, notes, created_by, processed_by, processed_at, created_at, updated_at`

func scanTransfer(row pgx.Row) (Transfer, error) {
	var t Transfer
	err := row.Scan(&t.ID, &t.CompanyID, &t.Number, &t.FromWarehouseID, &t.ToWarehouseID, &t.ToLocationID,
		&t.Status, &t.Notes, &t.CreatedBy, &t.ProcessedBy, &t.ProcessedAt, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *Repository) Create(ctx context.Context, transfer Transfer) (Transfer, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		err := tx.QueryRow(ctx,
			`INSERT INTO stock_transfers
				(company_id, number, from_warehouse_id, to_warehouse_id, to_location_id, status, notes, created_by, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) RETURNING id`,
			transfer.CompanyID, transfer.Number, transfer.FromWarehouseID, transfer.ToWarehouseID,
			transfer.ToLocationID, transfer.Status, transfer.Notes, transfer.CreatedBy, now,
		).Scan(&transfer.ID)
		if err != nil {
			return err
		}
		transfer.CreatedAt = now
		transfer.UpdatedAt = now

		for i := range transfer.Items {
			item := &transfer.Items[i]
			item.TransferID = transfer.ID
			err := tx.QueryRow(ctx,
				`INSERT INTO stock_transfer_items (transfer_id, product_id, quantity, source_location_id, batch)
				 VALUES ($1, $2, $3, NULLIF($4, 0), $5) RETURNING id`,
				item.TransferID, item.ProductID, item.Quantity, item.SourceLocationID, item.Batch,
			).Scan(&item.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	return transfer, nil
}

func (r *Repository) Get(ctx context.Context, companyID, id int64) (Transfer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM stock_transfers WHERE company_id = $1 AND id = $2`, companyID, id)
	transfer, err := scanTransfer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, shared.ErrNotFound
	}
	if err != nil {
		return Transfer{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, transfer_id, product_id, quantity, COALESCE(source_location_id, 0), batch
		 FROM stock_transfer_items WHERE transfer_id = $1 ORDER BY id`,
		transfer.ID)
	if err != nil {
		return Transfer{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.TransferID, &it.ProductID, &it.Quantity, &it.SourceLocationID, &it.Batch); err != nil {
			return Transfer{}, err
		}
		transfer.Items = append(transfer.Items, it)
	}
	return transfer, rows.Err()
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Transfer, int, error) {
	where := ` WHERE company_id = $1`
	args := []any{filter.CompanyID}
	argCount := 1

	if filter.Status != "" {
		argCount++
		where += ` AND status = $` + strconv.Itoa(argCount)
		args = append(args, string(filter.Status))
	}
	if filter.FromWarehouseID != 0 {
		argCount++
		where += ` AND from_warehouse_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.FromWarehouseID)
	}
	if filter.ToWarehouseID != 0 {
		argCount++
		where += ` AND to_warehouse_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.ToWarehouseID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_transfers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + transferColumns + ` FROM stock_transfers` + where + ` ORDER BY created_at DESC, id DESC`
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

	var transfers []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, err
		}
		transfers = append(transfers, t)
	}
	return transfers, total, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, companyID, id int64) (Transfer, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+transferColumns+` FROM stock_transfers WHERE company_id = $1 AND id = $2 FOR UPDATE`,
		companyID, id)
	transfer, err := scanTransfer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, shared.ErrNotFound
	}
	if err != nil {
		return Transfer{}, err
	}

	rows, err := r.tx.Query(ctx,
		`SELECT id, transfer_id, product_id, quantity, COALESCE(source_location_id, 0), batch
		 FROM stock_transfer_items WHERE transfer_id = $1 ORDER BY id FOR UPDATE`,
		transfer.ID)
	if err != nil {
		return Transfer{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.TransferID, &it.ProductID, &it.Quantity, &it.SourceLocationID, &it.Batch); err != nil {
			return Transfer{}, err
		}
		transfer.Items = append(transfer.Items, it)
	}
	return transfer, rows.Err()
}

func (r *txRepository) RecordItemSource(ctx context.Context, itemID, locationID int64, batch string) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE stock_transfer_items SET source_location_id = $2, batch = $3 WHERE id = $1`,
		itemID, locationID, batch)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) SetProcessed(ctx context.Context, transferID, processedBy int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE stock_transfers SET status = $2, processed_by = $3, processed_at = $4, updated_at = NOW() WHERE id = $1`,
		transferID, string(StatusCompleted), processedBy, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) SetStatus(ctx context.Context, transferID int64, status Status) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE stock_transfers SET status = $2, updated_at = NOW() WHERE id = $1`,
		transferID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
