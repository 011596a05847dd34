package products

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
	List(ctx context.Context, filters mdshared.ListFilters) ([]Product, int, error)
	Get(ctx context.Context, companyID, id int64) (Product, error)
	GetBySKU(ctx context.Context, companyID int64, sku string) (Product, error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, companyID, id int64, product Product) error
	Deactivate(ctx context.Context, companyID, id int64) error

	ListCategories(ctx context.Context, filters mdshared.ListFilters) ([]Category, int, error)
	GetCategory(ctx context.Context, companyID, id int64) (Category, error)
	CreateCategory(ctx context.Context, category Category) (Category, error)
	UpdateCategory(ctx context.Context, companyID, id int64, category Category) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, company_id, category_id, sku, barcode, name, description, unit, purchase_price, selling_price, tax_rate, min_stock, max_stock, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters mdshared.ListFilters) ([]Product, int, error) {
	where := ` WHERE company_id = $1`
	args := []interface{}{filters.CompanyID}
	argCount := 1

	if filters.CategoryID != nil {
		argCount++
		where += ` AND category_id = $` + strconv.Itoa(argCount)
		args = append(args, *filters.CategoryID)
	}
	if filters.Search != "" {
		argCount++
		where += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR sku ILIKE $` + strconv.Itoa(argCount) + ` OR barcode ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		argCount++
		where += ` AND is_active = $` + strconv.Itoa(argCount)
		args = append(args, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + productColumns + ` FROM products` + where + ` ORDER BY ` + productSortOrder(filters.SortBy, filters.SortDir)
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

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE company_id = $1 AND id = $2`, companyID, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.ErrNotFound
	}
	return p, err
}

func (r *repository) GetBySKU(ctx context.Context, companyID int64, sku string) (Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE company_id = $1 AND sku = $2`, companyID, sku)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.ErrNotFound
	}
	return p, err
}

func (r *repository) Create(ctx context.Context, product Product) (Product, error) {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx,
		`INSERT INTO products (company_id, category_id, sku, barcode, name, description, unit, purchase_price, selling_price, tax_rate, min_stock, max_stock, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14) RETURNING id`,
		product.CompanyID, product.CategoryID, product.SKU, product.Barcode, product.Name, product.Description,
		product.Unit, product.PurchasePrice, product.SellingPrice, product.TaxRate,
		product.MinStock, product.MaxStock, product.IsActive, now,
	).Scan(&product.ID)
	if err != nil {
		return Product{}, translateUnique(err)
	}
	product.CreatedAt = now
	product.UpdatedAt = now
	return product, nil
}

func (r *repository) Update(ctx context.Context, companyID, id int64, product Product) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE products SET category_id = $1, barcode = $2, name = $3, description = $4, unit = $5,
		 purchase_price = $6, selling_price = $7, tax_rate = $8, min_stock = $9, max_stock = $10,
		 is_active = $11, updated_at = $12
		 WHERE company_id = $13 AND id = $14`,
		product.CategoryID, product.Barcode, product.Name, product.Description, product.Unit,
		product.PurchasePrice, product.SellingPrice, product.TaxRate, product.MinStock, product.MaxStock,
		product.IsActive, time.Now().UTC(), companyID, id,
	)
	if err != nil {
		return translateUnique(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Deactivate soft-deletes; movement history keeps referencing the row.
func (r *repository) Deactivate(ctx context.Context, companyID, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE products SET is_active = false, updated_at = $1 WHERE company_id = $2 AND id = $3`,
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

const categoryColumns = `id, company_id, parent_id, name, description, is_active`

func (r *repository) ListCategories(ctx context.Context, filters mdshared.ListFilters) ([]Category, int, error) {
	where := ` WHERE company_id = $1`
	args := []interface{}{filters.CompanyID}
	argCount := 1

	if filters.Search != "" {
		argCount++
		where += ` AND name ILIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		argCount++
		where += ` AND is_active = $` + strconv.Itoa(argCount)
		args = append(args, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM product_categories`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + categoryColumns + ` FROM product_categories` + where + ` ORDER BY name ASC`
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

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.ParentID, &c.Name, &c.Description, &c.IsActive); err != nil {
			return nil, 0, err
		}
		categories = append(categories, c)
	}
	return categories, total, rows.Err()
}

func (r *repository) GetCategory(ctx context.Context, companyID, id int64) (Category, error) {
	var c Category
	err := r.db.QueryRow(ctx, `SELECT `+categoryColumns+` FROM product_categories WHERE company_id = $1 AND id = $2`, companyID, id).
		Scan(&c.ID, &c.CompanyID, &c.ParentID, &c.Name, &c.Description, &c.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, shared.ErrNotFound
	}
	return c, err
}

func (r *repository) CreateCategory(ctx context.Context, category Category) (Category, error) {
	err := r.db.QueryRow(ctx,
		`INSERT INTO product_categories (company_id, parent_id, name, description, is_active)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		category.CompanyID, category.ParentID, category.Name, category.Description, category.IsActive,
	).Scan(&category.ID)
	if err != nil {
		return Category{}, translateUnique(err)
	}
	return category, nil
}

func (r *repository) UpdateCategory(ctx context.Context, companyID, id int64, category Category) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE product_categories SET parent_id = $1, name = $2, description = $3, is_active = $4
		 WHERE company_id = $5 AND id = $6`,
		category.ParentID, category.Name, category.Description, category.IsActive, companyID, id,
	)
	if err != nil {
		return translateUnique(err)
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

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CompanyID, &p.CategoryID, &p.SKU, &p.Barcode, &p.Name, &p.Description,
		&p.Unit, &p.PurchasePrice, &p.SellingPrice, &p.TaxRate, &p.MinStock, &p.MaxStock,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func productSortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "sku":
		return "sku " + dir
	case "name":
		return "name " + dir
	case "selling_price":
		return "selling_price " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}
