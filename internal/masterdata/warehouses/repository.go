package warehouses

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	mdshared "github.com/stocklane/stocklane/internal/masterdata/shared"
	"github.com/stocklane/stocklane/internal/shared"
)

type Repository interface {
	List(ctx context.Context, filters mdshared.ListFilters) ([]Warehouse, int, error)
	Get(ctx context.Context, companyID, id int64) (Warehouse, error)
	Create(ctx context.Context, warehouse Warehouse) (Warehouse, error)
	Update(ctx context.Context, companyID, id int64, warehouse Warehouse) error
	Deactivate(ctx context.Context, companyID, id int64) error

	ListLocations(ctx context.Context, companyID, warehouseID int64) ([]Location, error)
	GetLocation(ctx context.Context, companyID, id int64) (Location, error)
	CreateLocation(ctx context.Context, companyID int64, location Location) (Location, error)
	UpdateLocation(ctx context.Context, companyID, id int64, location Location) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const warehouseColumns = `id, company_id, code, name, type, address, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters mdshared.ListFilters) ([]Warehouse, int, error) {
	where := ` WHERE company_id = $1`
	args := []interface{}{filters.CompanyID}
	argCount := 1

	if filters.Search != "" {
		argCount++
		where += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		argCount++
		where += ` AND is_active = $` + strconv.Itoa(argCount)
		args = append(args, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM warehouses`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + warehouseColumns + ` FROM warehouses` + where + ` ORDER BY code ASC`
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)

		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var warehouses []Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.CompanyID, &w.Code, &w.Name, &w.Type, &w.Address, &w.IsActive, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, 0, err
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (Warehouse, error) {
	var w Warehouse
	err := r.db.QueryRow(ctx, `SELECT `+warehouseColumns+` FROM warehouses WHERE company_id = $1 AND id = $2`, companyID, id).
		Scan(&w.ID, &w.CompanyID, &w.Code, &w.Name, &w.Type, &w.Address, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, shared.ErrNotFound
	}
	return w, err
}

func (r *repository) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx,
		`INSERT INTO warehouses (company_id, code, name, type, address, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id`,
		warehouse.CompanyID, warehouse.Code, warehouse.Name, warehouse.Type, warehouse.Address, warehouse.IsActive, now,
	).Scan(&warehouse.ID)
	if err != nil {
		return Warehouse{}, translateUnique(err)
	}
	warehouse.CreatedAt = now
	warehouse.UpdatedAt = now
	return warehouse, nil
}

func (r *repository) Update(ctx context.Context, companyID, id int64, warehouse Warehouse) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE warehouses SET name = $1, type = $2, address = $3, is_active = $4, updated_at = $5
		 WHERE company_id = $6 AND id = $7`,
		warehouse.Name, warehouse.Type, warehouse.Address, warehouse.IsActive, time.Now().UTC(), companyID, id,
	)
	if err != nil {
		return translateUnique(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Deactivate(ctx context.Context, companyID, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE warehouses SET is_active = false, updated_at = $1 WHERE company_id = $2 AND id = $3`,
		time.Now().UTC(), companyID, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const locationColumns = `l.id, l.warehouse_id, l.code, l.description, l.capacity, l.is_active`

func (r *repository) ListLocations(ctx context.Context, companyID, warehouseID int64) ([]Location, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+locationColumns+` FROM locations l
		 JOIN warehouses w ON w.id = l.warehouse_id
		 WHERE w.company_id = $1 AND l.warehouse_id = $2
		 ORDER BY l.code ASC`,
		companyID, warehouseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.WarehouseID, &l.Code, &l.Description, &l.Capacity, &l.IsActive); err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

func (r *repository) GetLocation(ctx context.Context, companyID, id int64) (Location, error) {
	var l Location
	err := r.db.QueryRow(ctx,
		`SELECT `+locationColumns+` FROM locations l
		 JOIN warehouses w ON w.id = l.warehouse_id
		 WHERE w.company_id = $1 AND l.id = $2`,
		companyID, id,
	).Scan(&l.ID, &l.WarehouseID, &l.Code, &l.Description, &l.Capacity, &l.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, shared.ErrNotFound
	}
	return l, err
}

func (r *repository) CreateLocation(ctx context.Context, companyID int64, location Location) (Location, error) {
	// Warehouse ownership checked inside the insert; a foreign warehouse id
	// yields no row and maps to not found.
	err := r.db.QueryRow(ctx,
		`INSERT INTO locations (warehouse_id, code, description, capacity, is_active)
		 SELECT w.id, $3, $4, $5, $6 FROM warehouses w WHERE w.company_id = $1 AND w.id = $2
		 RETURNING id`,
		companyID, location.WarehouseID, location.Code, location.Description, location.Capacity, location.IsActive,
	).Scan(&location.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, shared.ErrNotFound
	}
	if err != nil {
		return Location{}, translateUnique(err)
	}
	return location, nil
}

func (r *repository) UpdateLocation(ctx context.Context, companyID, id int64, location Location) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE locations l SET description = $1, capacity = $2, is_active = $3
		 FROM warehouses w
		 WHERE w.id = l.warehouse_id AND w.company_id = $4 AND l.id = $5`,
		location.Description, location.Capacity, location.IsActive, companyID, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func translateUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicate
	}
	return err
}
