package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-analytics/internal/domain"
	"shop-analytics/internal/storage"
)

func monthPeriod(year int, month time.Month) domain.Period {
	return domain.Period{Type: domain.PeriodMonthly, Range: monthRange(year, month)}
}

func makeReport(scope domain.Scope, period domain.Period, gross float64, runID string) *domain.Report {
	doc := &domain.MetricsDocument{Scope: scope, Period: period, PeriodDays: period.Range.Days()}
	doc.Revenue.GrossRevenue = gross
	doc.Profit.NetProfit = gross / 2
	doc.Orders.TotalOrders = 2
	doc.CostQuality.CostCoveragePercent = 75
	doc.Samples.BuyerOrders = map[string]int{"900": 2}
	return &domain.Report{Scope: scope, Period: period, Document: doc, RunID: runID}
}

func TestReportStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewReportStore(pool)
	ctx := context.Background()
	period := monthPeriod(2025, time.March)

	reports := []*domain.Report{
		makeReport(domain.ProductScope("widget"), period, 100, "run-1"),
		makeReport(domain.ListingScope(100), period, 300, "run-1"),
		makeReport(domain.ShopScope(), period, 900, "run-1"),
	}
	require.NoError(t, store.Upsert(ctx, reports))

	for _, want := range reports {
		got, err := store.Get(ctx, want.Scope, period)
		require.NoError(t, err, want.Scope.String())
		assert.Equal(t, want.Scope, got.Scope)
		assert.Equal(t, want.Scope, got.Document.Scope)
		assert.Equal(t, period.Type, got.Period.Type)
		assert.True(t, period.Range.Start.Equal(got.Period.Range.Start))
		assert.True(t, period.Range.End.Equal(got.Period.Range.End))
		assert.InDelta(t, want.Document.Revenue.GrossRevenue, got.Document.Revenue.GrossRevenue, 1e-9)
		assert.Equal(t, map[string]int{"900": 2}, got.Document.Samples.BuyerOrders)
	}

	var headline float64
	err := pool.QueryRow(ctx, `SELECT net_profit FROM listing_reports WHERE listing_id = 100`).Scan(&headline)
	require.NoError(t, err)
	assert.InDelta(t, 150, headline, 1e-9)
}

func TestReportStore_UpsertOverwrites(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewReportStore(pool)
	ctx := context.Background()
	period := monthPeriod(2025, time.March)
	scope := domain.ProductScope("widget")

	require.NoError(t, store.Upsert(ctx, []*domain.Report{makeReport(scope, period, 100, "run-1")}))
	require.NoError(t, store.Upsert(ctx, []*domain.Report{makeReport(scope, period, 40, "run-2")}))

	got, err := store.Get(ctx, scope, period)
	require.NoError(t, err)
	assert.Equal(t, "run-2", got.RunID)
	assert.InDelta(t, 40, got.Document.Revenue.GrossRevenue, 1e-9)

	list, err := store.List(ctx, domain.ScopeProduct)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReportStore_UpsertIsAtomic(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewReportStore(pool)
	ctx := context.Background()

	err := store.Upsert(ctx, []*domain.Report{
		makeReport(domain.ProductScope("a"), monthPeriod(2025, time.March), 1, "r"),
		{Scope: domain.ProductScope("b"), Period: monthPeriod(2025, time.March)},
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	list, err := store.List(ctx, domain.ScopeProduct)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReportStore_ListOrdering(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewReportStore(pool)
	ctx := context.Background()

	weekly := domain.Period{Type: domain.PeriodWeekly, Range: domain.DateRange{
		Start: ts(2025, time.March, 3, 0), End: ts(2025, time.March, 9, 23),
	}}
	require.NoError(t, store.Upsert(ctx, []*domain.Report{
		makeReport(domain.ProductScope("b"), monthPeriod(2025, time.March), 1, "r"),
		makeReport(domain.ProductScope("a"), weekly, 1, "r"),
		makeReport(domain.ProductScope("a"), monthPeriod(2025, time.April), 1, "r"),
		makeReport(domain.ProductScope("a"), monthPeriod(2025, time.March), 1, "r"),
	}))

	list, err := store.List(ctx, domain.ScopeProduct)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, "a", list[0].Scope.SKU)
	assert.Equal(t, domain.PeriodMonthly, list[0].Period.Type)
	assert.Equal(t, time.March, list[0].Period.Range.Start.Month())
	assert.Equal(t, time.April, list[1].Period.Range.Start.Month())
	assert.Equal(t, domain.PeriodWeekly, list[2].Period.Type)
	assert.Equal(t, "b", list[3].Scope.SKU)
}

func TestReportStore_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewReportStore(pool)
	_, err := store.Get(context.Background(), domain.ListingScope(5), monthPeriod(2025, time.March))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReportStore_DeleteAll(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewReportStore(pool)
	ctx := context.Background()
	period := monthPeriod(2025, time.March)
	require.NoError(t, store.Upsert(ctx, []*domain.Report{
		makeReport(domain.ProductScope("a"), period, 1, "r"),
		makeReport(domain.ShopScope(), period, 1, "r"),
	}))

	require.NoError(t, store.DeleteAll(ctx))

	for _, kind := range []domain.ScopeKind{domain.ScopeProduct, domain.ScopeListing, domain.ScopeShop} {
		list, err := store.List(ctx, kind)
		require.NoError(t, err)
		assert.Empty(t, list, string(kind))
	}
}
