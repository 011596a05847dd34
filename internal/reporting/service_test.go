package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	levels     []StockLevel
	low        []LowStockItem
	overview   Overview
	levelCalls int
	lowCalls   int
}

func (m *mockRepo) StockLevels(_ context.Context, _ StockLevelFilter) ([]StockLevel, int, error) {
	m.levelCalls++
	return m.levels, len(m.levels), nil
}

func (m *mockRepo) LowStock(_ context.Context, _, _ int64) ([]LowStockItem, error) {
	m.lowCalls++
	return m.low, nil
}

func (m *mockRepo) Overview(_ context.Context, _ int64) (Overview, error) {
	return m.overview, nil
}

func newTestService(t *testing.T, repo *mockRepo) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, NewCache(client, time.Minute))
}

func TestStockLevelsCaches(t *testing.T) {
	repo := &mockRepo{levels: []StockLevel{
		{ProductID: 1, SKU: "SKU-1", Quantity: 70, Reserved: 10, Available: 60},
	}}
	svc := newTestService(t, repo)
	ctx := context.Background()
	filter := StockLevelFilter{CompanyID: 1}

	page, err := svc.StockLevels(ctx, filter)
	require.NoError(t, err)
	require.Len(t, page.Levels, 1)
	require.Equal(t, "SKU-1", page.Levels[0].SKU)
	require.Equal(t, 1, repo.levelCalls)

	// Second read is served from the cache.
	page, err = svc.StockLevels(ctx, filter)
	require.NoError(t, err)
	require.Len(t, page.Levels, 1)
	require.Equal(t, 1, repo.levelCalls)
}

func TestInvalidateBumpsVersion(t *testing.T) {
	repo := &mockRepo{low: []LowStockItem{
		{ProductID: 1, SKU: "SKU-1", MinStock: 10, OnHand: 4, Deficit: 6},
	}}
	svc := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.LowStock(ctx, 1, 0)
	require.NoError(t, err)
	_, err = svc.LowStock(ctx, 1, 0)
	require.NoError(t, err)
	require.Equal(t, 1, repo.lowCalls)

	require.NoError(t, svc.Invalidate(ctx))

	_, err = svc.LowStock(ctx, 1, 0)
	require.NoError(t, err)
	require.Equal(t, 2, repo.lowCalls)
}

func TestOverviewIncludesLowStockCount(t *testing.T) {
	repo := &mockRepo{
		overview: Overview{Products: 12, Warehouses: 2, TotalQuantity: 500, TotalReserved: 40},
		low: []LowStockItem{
			{ProductID: 1, SKU: "SKU-1", MinStock: 10, OnHand: 4},
			{ProductID: 2, SKU: "SKU-2", MinStock: 5, OnHand: 0},
		},
	}
	svc := newTestService(t, repo)

	ov, err := svc.Overview(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 12, ov.Products)
	require.Equal(t, 2, ov.LowStockCount)
	require.InDelta(t, 460.0, ov.TotalQuantity-ov.TotalReserved, 1e-9)
}

func TestNilCacheLoadsDirectly(t *testing.T) {
	repo := &mockRepo{levels: []StockLevel{{ProductID: 1, SKU: "SKU-1"}}}
	svc := NewService(repo, nil)

	page, err := svc.StockLevels(context.Background(), StockLevelFilter{CompanyID: 1})
	require.NoError(t, err)
	require.Len(t, page.Levels, 1)

	page, err = svc.StockLevels(context.Background(), StockLevelFilter{CompanyID: 1})
	require.NoError(t, err)
	require.Len(t, page.Levels, 1)
	require.Equal(t, 2, repo.levelCalls)
}
