package products

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	mdshared "github.com/stocklane/stocklane/internal/masterdata/shared"
	"github.com/stocklane/stocklane/internal/shared"
)

type memoryRepo struct {
	nextID     int64
	products   map[int64]Product
	categories map[int64]Category
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1, products: map[int64]Product{}, categories: map[int64]Category{}}
}

func (m *memoryRepo) List(_ context.Context, filters mdshared.ListFilters) ([]Product, int, error) {
	var out []Product
	for _, p := range m.products {
		if p.CompanyID != filters.CompanyID {
			continue
		}
		if filters.IsActive != nil && p.IsActive != *filters.IsActive {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(_ context.Context, companyID, id int64) (Product, error) {
	p, ok := m.products[id]
	if !ok || p.CompanyID != companyID {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *memoryRepo) GetBySKU(_ context.Context, companyID int64, sku string) (Product, error) {
	for _, p := range m.products {
		if p.CompanyID == companyID && p.SKU == sku {
			return p, nil
		}
	}
	return Product{}, shared.ErrNotFound
}

func (m *memoryRepo) Create(_ context.Context, product Product) (Product, error) {
	for _, p := range m.products {
		if p.CompanyID == product.CompanyID && p.SKU == product.SKU {
			return Product{}, shared.ErrDuplicate
		}
	}
	product.ID = m.nextID
	m.nextID++
	m.products[product.ID] = product
	return product, nil
}

func (m *memoryRepo) Update(_ context.Context, companyID, id int64, product Product) error {
	existing, ok := m.products[id]
	if !ok || existing.CompanyID != companyID {
		return shared.ErrNotFound
	}
	product.ID = id
	product.CompanyID = companyID
	product.SKU = existing.SKU
	m.products[id] = product
	return nil
}

func (m *memoryRepo) Deactivate(_ context.Context, companyID, id int64) error {
	p, ok := m.products[id]
	if !ok || p.CompanyID != companyID {
		return shared.ErrNotFound
	}
	p.IsActive = false
	m.products[id] = p
	return nil
}

func (m *memoryRepo) ListCategories(_ context.Context, filters mdshared.ListFilters) ([]Category, int, error) {
	var out []Category
	for _, c := range m.categories {
		if c.CompanyID == filters.CompanyID {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (m *memoryRepo) GetCategory(_ context.Context, companyID, id int64) (Category, error) {
	c, ok := m.categories[id]
	if !ok || c.CompanyID != companyID {
		return Category{}, shared.ErrNotFound
	}
	return c, nil
}

func (m *memoryRepo) CreateCategory(_ context.Context, category Category) (Category, error) {
	category.ID = m.nextID
	m.nextID++
	m.categories[category.ID] = category
	return category, nil
}

func (m *memoryRepo) UpdateCategory(_ context.Context, companyID, id int64, category Category) error {
	existing, ok := m.categories[id]
	if !ok || existing.CompanyID != companyID {
		return shared.ErrNotFound
	}
	category.ID = id
	category.CompanyID = companyID
	m.categories[id] = category
	return nil
}

func validProduct(companyID int64, sku string) Product {
	return Product{
		CompanyID:     companyID,
		SKU:           sku,
		Name:          "Blue Widget",
		Unit:          UnitPiece,
		PurchasePrice: decimal.NewFromInt(10),
		SellingPrice:  decimal.NewFromInt(15),
		TaxRate:       decimal.NewFromFloat(0.1),
		MinStock:      5,
		IsActive:      true,
	}
}

func TestCreateProduct(t *testing.T) {
	svc := NewService(newMemoryRepo())

	created, err := svc.Create(context.Background(), validProduct(1, "WID-001"))
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	_, err = svc.Create(context.Background(), validProduct(1, "WID-001"))
	require.ErrorIs(t, err, shared.ErrDuplicate)

	// Same SKU in another company is fine.
	_, err = svc.Create(context.Background(), validProduct(2, "WID-001"))
	require.NoError(t, err)
}

func TestCreateProductValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())

	p := validProduct(1, "WID-002")
	p.SKU = "  "
	_, err := svc.Create(context.Background(), p)
	require.ErrorIs(t, err, shared.ErrValidation)

	p = validProduct(1, "WID-002")
	p.Unit = "furlong"
	_, err = svc.Create(context.Background(), p)
	require.ErrorIs(t, err, shared.ErrValidation)

	p = validProduct(1, "WID-002")
	p.SellingPrice = decimal.NewFromInt(-1)
	_, err = svc.Create(context.Background(), p)
	require.ErrorIs(t, err, shared.ErrValidation)

	p = validProduct(1, "WID-002")
	maxStock := 1.0
	p.MaxStock = &maxStock
	_, err = svc.Create(context.Background(), p)
	require.ErrorIs(t, err, shared.ErrValidation)

	p = validProduct(1, "WID-002")
	unknown := int64(99)
	p.CategoryID = &unknown
	_, err = svc.Create(context.Background(), p)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestGetBySKU(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	created, err := svc.Create(ctx, validProduct(1, "WID-001"))
	require.NoError(t, err)

	got, err := svc.GetBySKU(ctx, 1, "WID-001")
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)

	_, err = svc.GetBySKU(ctx, 2, "WID-001")
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.GetBySKU(ctx, 1, "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestProductTenancy(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)

	created, err := svc.Create(context.Background(), validProduct(1, "WID-003"))
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), 2, created.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Get(context.Background(), 1, created.ID)
	require.NoError(t, err)
}

func TestDeactivateKeepsProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)

	created, err := svc.Create(context.Background(), validProduct(1, "WID-004"))
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), 1, created.ID))

	got, err := svc.Get(context.Background(), 1, created.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
}

func TestCategoryParentMustExist(t *testing.T) {
	svc := NewService(newMemoryRepo())

	parent := int64(123)
	_, err := svc.CreateCategory(context.Background(), Category{CompanyID: 1, Name: "Widgets", ParentID: &parent})
	require.ErrorIs(t, err, shared.ErrValidation)

	created, err := svc.CreateCategory(context.Background(), Category{CompanyID: 1, Name: "Widgets", IsActive: true})
	require.NoError(t, err)

	_, err = svc.CreateCategory(context.Background(), Category{CompanyID: 1, Name: "Small Widgets", ParentID: &created.ID, IsActive: true})
	require.NoError(t, err)
}
