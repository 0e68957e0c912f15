package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-analytics/internal/domain"
	"shop-analytics/internal/metrics"
	"shop-analytics/internal/resolver"
	"shop-analytics/internal/storage"
	"shop-analytics/internal/storage/memory"
)

// stubResolver prices SKUs from a fixed table and ships for free.
type stubResolver map[string]float64

func (s stubResolver) ResolveCost(q resolver.Query) (domain.ResolvedCost, error) {
	if v, ok := s[q.SKU]; ok {
		return domain.ResolvedCost{Value: v, Provenance: domain.ProvenanceDirect, SourceSKU: q.SKU}, nil
	}
	return domain.ResolvedCost{Provenance: domain.ProvenanceMissing}, nil
}

func (s stubResolver) ResolveShipping(string, int, float64, string) (domain.ShippingCost, error) {
	return domain.ShippingCost{}, nil
}

// failingSpend fails every listing spend lookup.
type failingSpend struct{ err error }

func (f failingSpend) ListingSpend(context.Context, int64, domain.DateRange) (float64, error) {
	return 0, f.err
}

func (f failingSpend) ShopSpend(context.Context, domain.DateRange) (float64, error) {
	return 0, f.err
}

// flakyReports fails the next upserts with a transient error.
type flakyReports struct {
	*memory.ReportStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyReports) Upsert(ctx context.Context, reports []*domain.Report) error {
	f.mu.Lock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return storage.ErrTransient
	}
	f.mu.Unlock()
	return f.ReportStore.Upsert(ctx, reports)
}

func month(m time.Month) domain.Period {
	start := time.Date(2025, m, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Second)
	return domain.Period{Type: domain.PeriodMonthly, Range: domain.DateRange{Start: start, End: end}}
}

func sale(id int64, created time.Time, productID, listingID int64, sku string, qty int, price float64, buyer string) domain.Order {
	return domain.Order{
		OrderID:    id,
		CreatedAt:  created,
		GrandTotal: float64(qty) * price,
		ItemCount:  qty,
		BuyerID:    buyer,
		Status:     "paid",
		Country:    "US",
		LineItems: []domain.LineItem{
			{SKU: sku, Quantity: qty, UnitPrice: price, ListingID: listingID, ProductID: productID},
		},
	}
}

// fixture is a two-listing shop with sales in March and April 2025.
type fixture struct {
	orders      *memory.OrderSource
	catalog     *memory.CatalogStore
	reports     *memory.ReportStore
	checkpoints *memory.CheckpointStore
	costs       stubResolver
}

func newFixture() *fixture {
	cancelled := sale(5, time.Date(2025, time.April, 30, 23, 59, 59, 0, time.UTC), 3, 200, "TEE-S", 1, 25, "b4")
	cancelled.Status = "cancelled"

	orders := memory.NewOrderSource(
		sale(1, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), 1, 100, "MUG-BLUE", 2, 10, "b1"),
		sale(2, time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC), 2, 100, "MUG-RED", 1, 30, "b2"),
		sale(3, time.Date(2025, time.March, 15, 9, 0, 0, 0, time.UTC), 3, 200, "TEE-S", 1, 25, "b1"),
		sale(4, time.Date(2025, time.April, 2, 8, 0, 0, 0, time.UTC), 1, 100, "MUG-BLUE", 1, 10, "b3"),
		cancelled,
	)

	catalog := memory.NewCatalogStore(
		domain.ListingProduct{ListingID: 100, ProductID: 1, SKU: "MUG-BLUE"},
		domain.ListingProduct{ListingID: 100, ProductID: 2, SKU: "MUG-RED"},
		domain.ListingProduct{ListingID: 200, ProductID: 3, SKU: "TEE-S"},
	)
	catalog.SetSKUInventory("MUG-BLUE", domain.InventoryMetrics{TotalInventory: 5, ActiveVariants: 1, PriceSum: 10, MinPrice: 10, MaxPrice: 10})
	catalog.SetListingInventory(100, domain.InventoryMetrics{TotalInventory: 9, ActiveVariants: 2, PriceSum: 40, MinPrice: 10, MaxPrice: 30})
	catalog.SetListingInventory(200, domain.InventoryMetrics{TotalInventory: 3, ActiveVariants: 1, PriceSum: 25, MinPrice: 25, MaxPrice: 25})

	return &fixture{
		orders:      orders,
		catalog:     catalog,
		reports:     memory.NewReportStore(),
		checkpoints: memory.NewCheckpointStore(),
		costs:       stubResolver{"MUG-BLUE": 4, "MUG-RED": 12, "TEE-S": 8},
	}
}

func (f *fixture) options(t *testing.T) Options {
	log, _ := test.NewNullLogger()
	return Options{
		Orders:        f.orders,
		Catalog:       f.catalog,
		Inventory:     f.catalog,
		AdSpend:       f.catalog,
		Reports:       f.reports,
		Checkpoints:   f.checkpoints,
		Calculator:    metrics.NewCalculator(metrics.DefaultFees(), f.costs, log),
		Log:           log,
		RunID:         "run-1",
		PeriodTypes:   []domain.PeriodType{domain.PeriodMonthly},
		MaxConcurrent: 2,
		RetryInterval: time.Millisecond,
		ListingPolicy: metrics.IncludeAll(),
		ShopPolicy:    metrics.RequireComplete(),
	}
}

func runWith(t *testing.T, opts Options) *RunResult {
	t.Helper()
	o, err := New(opts)
	require.NoError(t, err)
	result, err := o.Run(context.Background())
	require.NoError(t, err)
	return result
}

func getDoc(t *testing.T, store storage.ReportStore, scope domain.Scope, p domain.Period) *domain.MetricsDocument {
	t.Helper()
	r, err := store.Get(context.Background(), scope, p)
	require.NoError(t, err, "report %s %s", scope, p.Key())
	return r.Document
}

func TestRun_RollsUpProductsListingsShop(t *testing.T) {
	f := newFixture()
	result := runWith(t, f.options(t))

	blue := getDoc(t, f.reports, domain.ProductScope("MUG-BLUE"), month(time.March))
	assert.InDelta(t, 20, blue.Revenue.GrossRevenue, 1e-9)
	assert.InDelta(t, 8, blue.Costs.TotalCost, 1e-9)
	assert.Equal(t, 5, blue.Inventory.TotalInventory)

	listing := getDoc(t, f.reports, domain.ListingScope(100), month(time.March))
	assert.InDelta(t, 50, listing.Revenue.GrossRevenue, 1e-9)
	assert.Equal(t, 2, listing.Orders.TotalOrders)
	assert.Equal(t, 2, listing.Rollup.ChildrenIncluded)

	shop := getDoc(t, f.reports, domain.ShopScope(), month(time.March))
	assert.InDelta(t, 75, shop.Revenue.GrossRevenue, 1e-9)
	assert.Equal(t, 3, shop.Orders.TotalOrders)
	assert.Equal(t, 2, shop.Customers.UniqueCustomers)
	assert.InDelta(t, 8+12+8, shop.Costs.TotalCost, 1e-9)

	april := getDoc(t, f.reports, domain.ShopScope(), month(time.April))
	assert.InDelta(t, 10, april.Revenue.GrossRevenue, 1e-9)
	assert.Equal(t, 1, april.Cancellations.CancelledOrders)

	// cancelled-only documents are kept, empty ones are not
	tee := getDoc(t, f.reports, domain.ProductScope("TEE-S"), month(time.April))
	assert.Equal(t, 0, tee.Orders.TotalOrders)
	assert.Equal(t, 1, tee.Cancellations.CancelledOrders)
	_, err := f.reports.Get(context.Background(), domain.ProductScope("MUG-RED"), month(time.April))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	products := result.Stage(domain.ScopeProduct)
	assert.Equal(t, 3, products.Entities)
	assert.Equal(t, 6, products.DocumentsComputed)
	assert.Equal(t, 5, products.DocumentsStored)
	assert.Equal(t, 1, products.DocumentsEmpty)

	assert.Empty(t, result.SkippedUnits)
	assert.Equal(t, 5, result.CostQuality.DirectQuantity)
	assert.InDelta(t, 100, result.CostCoveragePercent(), 1e-9)
	assert.Equal(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), result.History.Start)
}

func TestRun_AllocatesAdSpendByGrossShare(t *testing.T) {
	f := newFixture()
	f.catalog.AddAdRow(memory.AdRow{ListingID: 100, Period: month(time.March).Range, Spend: 10})
	runWith(t, f.options(t))

	blue := getDoc(t, f.reports, domain.ProductScope("MUG-BLUE"), month(time.March))
	red := getDoc(t, f.reports, domain.ProductScope("MUG-RED"), month(time.March))
	assert.InDelta(t, 4, blue.Costs.AdSpend, 1e-9)
	assert.InDelta(t, 6, red.Costs.AdSpend, 1e-9)

	listing := getDoc(t, f.reports, domain.ListingScope(100), month(time.March))
	assert.InDelta(t, 10, listing.Costs.AdSpend, 1e-9)

	aprilBlue := getDoc(t, f.reports, domain.ProductScope("MUG-BLUE"), month(time.April))
	assert.Zero(t, aprilBlue.Costs.AdSpend)
}

func TestRun_AdSpendFailureSkipsGroupPeriods(t *testing.T) {
	f := newFixture()
	opts := f.options(t)
	opts.AdSpend = failingSpend{err: errors.New("stats table missing")}
	result := runWith(t, opts)

	// MUG-BLUE March and April, MUG-RED March, TEE-S March. Periods
	// without completed orders need no spend and are unaffected.
	var products []SkippedUnit
	for _, u := range result.SkippedUnits {
		assert.Equal(t, ReasonAdSpend, u.Reason)
		if u.Stage == domain.ScopeProduct {
			products = append(products, u)
		}
	}
	require.Len(t, products, 4)
	getDoc(t, f.reports, domain.ProductScope("TEE-S"), month(time.April))

	// listings and the shop fall back to their own orders and hit the same
	// failing spend source
	_, err := f.reports.Get(context.Background(), domain.ListingScope(100), month(time.March))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.reports.Get(context.Background(), domain.ShopScope(), month(time.March))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.reports.Get(context.Background(), domain.ProductScope("MUG-BLUE"), month(time.March))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	done, err := f.checkpoints.Completed(context.Background(), domain.ScopeProduct)
	require.NoError(t, err)
	assert.Empty(t, done)
}

func TestRun_RetriesTransientFetchErrors(t *testing.T) {
	f := newFixture()
	f.orders.FailNext(2, storage.ErrTransient)
	result := runWith(t, f.options(t))

	assert.Empty(t, result.SkippedUnits)
	shop := getDoc(t, f.reports, domain.ShopScope(), month(time.March))
	assert.InDelta(t, 75, shop.Revenue.GrossRevenue, 1e-9)
}

func TestRun_FetchExhaustionSkipsUnits(t *testing.T) {
	f := newFixture()
	opts := f.options(t)
	opts.MaxConcurrent = 1
	opts.OrderAttempts = 2
	f.orders.FailNext(2, storage.ErrTransient)
	result := runWith(t, opts)

	require.Len(t, result.SkippedUnits, 2)
	for _, u := range result.SkippedUnits {
		assert.Equal(t, "MUG-BLUE", u.Entity)
		assert.Equal(t, ReasonFetchFailed, u.Reason)
		assert.NotEmpty(t, u.Error)
	}

	// the listing rolls up what was stored
	listing := getDoc(t, f.reports, domain.ListingScope(100), month(time.March))
	assert.InDelta(t, 30, listing.Revenue.GrossRevenue, 1e-9)

	// April has no stored children with orders, so the listing reads its own
	listing = getDoc(t, f.reports, domain.ListingScope(100), month(time.April))
	assert.InDelta(t, 10, listing.Revenue.GrossRevenue, 1e-9)
	assert.Zero(t, listing.Rollup.ChildrenIncluded)

	done, err := f.checkpoints.Completed(context.Background(), domain.ScopeProduct)
	require.NoError(t, err)
	assert.False(t, done["MUG-BLUE"])
	assert.True(t, done["MUG-RED"])
	assert.True(t, done["TEE-S"])
}

func TestRun_PermanentFetchErrorIsNotRetried(t *testing.T) {
	f := newFixture()
	opts := f.options(t)
	opts.MaxConcurrent = 1
	f.orders.FailNext(1, errors.New("relation \"orders\" does not exist"))
	before := f.orders.Fetches()
	result := runWith(t, opts)

	require.Len(t, result.SkippedUnits, 2)
	assert.Equal(t, "MUG-BLUE", result.SkippedUnits[0].Entity)
	// one fetch per SKU, the failed one included, plus April of both
	// listings, which have no children with orders
	assert.Equal(t, before+5, f.orders.Fetches())
}

func TestRun_DocumentsWithoutCostAreNotStored(t *testing.T) {
	f := newFixture()
	delete(f.costs, "TEE-S")
	result := runWith(t, f.options(t))

	_, err := f.reports.Get(context.Background(), domain.ProductScope("TEE-S"), month(time.March))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 1, result.Stage(domain.ScopeProduct).DocumentsNoCost)

	shop := getDoc(t, f.reports, domain.ShopScope(), month(time.March))
	assert.InDelta(t, 50, shop.Revenue.GrossRevenue, 1e-9)
	assert.Equal(t, 1, shop.Rollup.ChildrenIncluded)
}

func TestRun_ShopExcludesIncompleteListings(t *testing.T) {
	f := newFixture()
	// a renamed variant of MUG-RED with no cost on record
	f.orders.Add(sale(6, time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC), 2, 100, "MUG-RED-OLD", 1, 28, "b5"))
	result := runWith(t, f.options(t))

	red := getDoc(t, f.reports, domain.ProductScope("MUG-RED"), month(time.March))
	assert.Equal(t, 1, red.CostQuality.MissingQuantity)

	listing := getDoc(t, f.reports, domain.ListingScope(100), month(time.March))
	assert.InDelta(t, 78, listing.Revenue.GrossRevenue, 1e-9)
	assert.Equal(t, 0, listing.Rollup.ChildrenSkipped)

	shop := getDoc(t, f.reports, domain.ShopScope(), month(time.March))
	assert.InDelta(t, 25, shop.Revenue.GrossRevenue, 1e-9)
	assert.Equal(t, 1, shop.Rollup.ChildrenSkipped)
	assert.Equal(t, map[int64]int{100: 1}, result.ShopExclusions)
	assert.Equal(t, 1, result.Stage(domain.ScopeShop).ChildrenSkipped)
	assert.Less(t, result.CostCoveragePercent(), 100.0)
}

func TestRun_ResumeSkipsCheckpointedEntities(t *testing.T) {
	f := newFixture()
	runWith(t, f.options(t))
	require.NoError(t, f.checkpoints.Clear(context.Background(), domain.ScopeShop))

	fetches := f.orders.Fetches()
	f.orders.FailNext(100, errors.New("orders unavailable"))

	opts := f.options(t)
	opts.RunID = "run-2"
	opts.Resume = true
	result := runWith(t, opts)

	assert.Equal(t, fetches, f.orders.Fetches())
	assert.Equal(t, 3, result.Stage(domain.ScopeProduct).EntitiesResumed)
	assert.Equal(t, 2, result.Stage(domain.ScopeListing).EntitiesResumed)
	assert.Equal(t, 0, result.Stage(domain.ScopeShop).EntitiesResumed)
	assert.Empty(t, result.SkippedUnits)

	r, err := f.reports.Get(context.Background(), domain.ShopScope(), month(time.March))
	require.NoError(t, err)
	assert.Equal(t, "run-2", r.RunID)
	assert.InDelta(t, 75, r.Document.Revenue.GrossRevenue, 1e-9)
}

func TestRun_SkippedPhasesUseStoredDocuments(t *testing.T) {
	f := newFixture()
	runWith(t, f.options(t))

	opts := f.options(t)
	opts.RunID = "run-2"
	opts.SkipProducts = true
	opts.SkipListings = true
	result := runWith(t, opts)

	assert.True(t, result.Stage(domain.ScopeProduct).Skipped)
	assert.True(t, result.Stage(domain.ScopeListing).Skipped)

	r, err := f.reports.Get(context.Background(), domain.ShopScope(), month(time.March))
	require.NoError(t, err)
	assert.Equal(t, "run-2", r.RunID)
	assert.InDelta(t, 75, r.Document.Revenue.GrossRevenue, 1e-9)

	listing, err := f.reports.Get(context.Background(), domain.ListingScope(100), month(time.March))
	require.NoError(t, err)
	assert.Equal(t, "run-1", listing.RunID)
}

func TestRun_CleanReportsRemovesStaleData(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	stale := &domain.Report{
		Scope:    domain.ListingScope(999),
		Period:   month(time.January),
		Document: &domain.MetricsDocument{},
		RunID:    "old",
	}
	require.NoError(t, f.reports.Upsert(ctx, []*domain.Report{stale}))
	require.NoError(t, f.checkpoints.Mark(ctx, domain.Checkpoint{Stage: domain.ScopeProduct, EntityKey: "MUG-BLUE", RunID: "old"}))

	opts := f.options(t)
	opts.CleanReports = true
	opts.Resume = true
	result := runWith(t, opts)

	_, err := f.reports.Get(ctx, stale.Scope, stale.Period)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 0, result.Stage(domain.ScopeProduct).EntitiesResumed)
	getDoc(t, f.reports, domain.ProductScope("MUG-BLUE"), month(time.March))
}

// withSharedAndBareListings adds listing 300, which re-lists MUG-BLUE under
// its own product, and listing 400, whose only variant has no SKU.
func (f *fixture) withSharedAndBareListings() {
	f.catalog = memory.NewCatalogStore(
		domain.ListingProduct{ListingID: 100, ProductID: 1, SKU: "MUG-BLUE"},
		domain.ListingProduct{ListingID: 100, ProductID: 2, SKU: "MUG-RED"},
		domain.ListingProduct{ListingID: 200, ProductID: 3, SKU: "TEE-S"},
		domain.ListingProduct{ListingID: 300, ProductID: 7, SKU: "MUG-BLUE"},
		domain.ListingProduct{ListingID: 400, ProductID: 8, SKU: ""},
	)
	f.catalog.SetSKUInventory("MUG-BLUE", domain.InventoryMetrics{TotalInventory: 5, ActiveVariants: 1, PriceSum: 10, MinPrice: 10, MaxPrice: 10})
	f.catalog.SetListingInventory(100, domain.InventoryMetrics{TotalInventory: 9, ActiveVariants: 2, PriceSum: 40, MinPrice: 10, MaxPrice: 30})
	f.catalog.SetListingInventory(200, domain.InventoryMetrics{TotalInventory: 3, ActiveVariants: 1, PriceSum: 25, MinPrice: 25, MaxPrice: 25})

	f.orders.Add(
		sale(7, time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC), 7, 300, "MUG-BLUE", 1, 10, "b6"),
		sale(8, time.Date(2025, time.March, 21, 0, 0, 0, 0, time.UTC), 8, 400, "CARD", 1, 40, "b7"),
	)
	f.costs["CARD"] = 15
}

func TestRun_DirectMatchesRollup(t *testing.T) {
	rolled := newFixture()
	rolled.withSharedAndBareListings()
	runWith(t, rolled.options(t))

	direct := newFixture()
	direct.withSharedAndBareListings()
	opts := direct.options(t)
	opts.Direct = true
	opts.ShopPolicy = metrics.IncludeAll()
	runWith(t, opts)

	scopes := []domain.Scope{domain.ListingScope(100), domain.ListingScope(200), domain.ListingScope(400), domain.ShopScope()}
	for _, scope := range scopes {
		want := getDoc(t, rolled.reports, scope, month(time.March))
		got := getDoc(t, direct.reports, scope, month(time.March))
		assert.InDelta(t, want.Revenue.GrossRevenue, got.Revenue.GrossRevenue, 1e-9, scope.String())
		assert.InDelta(t, want.Profit.NetProfit, got.Profit.NetProfit, 1e-9, scope.String())
		assert.Equal(t, want.Orders.TotalOrders, got.Orders.TotalOrders, scope.String())
		assert.Equal(t, want.Customers.UniqueCustomers, got.Customers.UniqueCustomers, scope.String())
	}

	// the shared SKU counts once, under the listing that owns it
	listing := getDoc(t, rolled.reports, domain.ListingScope(100), month(time.March))
	assert.InDelta(t, 60, listing.Revenue.GrossRevenue, 1e-9)
	for _, store := range []*memory.ReportStore{rolled.reports, direct.reports} {
		_, err := store.Get(context.Background(), domain.ListingScope(300), month(time.March))
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}

	shop := getDoc(t, rolled.reports, domain.ShopScope(), month(time.March))
	assert.InDelta(t, 75+10+40, shop.Revenue.GrossRevenue, 1e-9)
	assert.Equal(t, 5, shop.Orders.TotalOrders)

	shop = getDoc(t, direct.reports, domain.ShopScope(), month(time.March))
	assert.Equal(t, 12, shop.Inventory.TotalInventory)
	assert.Zero(t, shop.Rollup.ChildrenIncluded)
}

func TestRun_ListingWithoutSKUsIsComputedDirectly(t *testing.T) {
	f := newFixture()
	f.withSharedAndBareListings()
	f.catalog.SetListingInventory(400, domain.InventoryMetrics{TotalInventory: 2, ActiveVariants: 1, PriceSum: 40, MinPrice: 40, MaxPrice: 40})
	result := runWith(t, f.options(t))

	assert.Equal(t, 4, result.Stage(domain.ScopeListing).Entities)

	card := getDoc(t, f.reports, domain.ListingScope(400), month(time.March))
	assert.InDelta(t, 40, card.Revenue.GrossRevenue, 1e-9)
	assert.InDelta(t, 15, card.Costs.TotalCost, 1e-9)
	assert.Equal(t, 2, card.Inventory.TotalInventory)
	assert.Zero(t, card.Rollup.ChildrenIncluded)

	shop := getDoc(t, f.reports, domain.ShopScope(), month(time.March))
	assert.Equal(t, 3, shop.Rollup.ChildrenIncluded)
	assert.InDelta(t, 125, shop.Revenue.GrossRevenue, 1e-9)
}

func TestRun_BareProductsRollUpWithSKUs(t *testing.T) {
	f := newFixture()
	f.catalog = memory.NewCatalogStore(
		domain.ListingProduct{ListingID: 100, ProductID: 1, SKU: "MUG-BLUE"},
		domain.ListingProduct{ListingID: 100, ProductID: 2, SKU: "MUG-RED"},
		domain.ListingProduct{ListingID: 100, ProductID: 9, SKU: ""},
		domain.ListingProduct{ListingID: 200, ProductID: 3, SKU: "TEE-S"},
	)
	f.orders.Add(sale(9, time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC), 9, 100, "MUG-GIFT", 1, 35, "b8"))
	f.costs["MUG-GIFT"] = 9
	runWith(t, f.options(t))

	listing := getDoc(t, f.reports, domain.ListingScope(100), month(time.March))
	assert.InDelta(t, 50+35, listing.Revenue.GrossRevenue, 1e-9)
	assert.Equal(t, 3, listing.Rollup.ChildrenIncluded)

	shop := getDoc(t, f.reports, domain.ShopScope(), month(time.March))
	assert.InDelta(t, 75+35, shop.Revenue.GrossRevenue, 1e-9)
}

func TestRun_StoreRetriesUseStoreAttempts(t *testing.T) {
	f := newFixture()
	reports := &flakyReports{ReportStore: f.reports, failures: 2}
	opts := f.options(t)
	opts.Reports = reports
	opts.MaxConcurrent = 1
	opts.AdSpendAttempts = 1
	opts.StoreAttempts = 3
	result := runWith(t, opts)

	assert.Empty(t, result.SkippedUnits)
	getDoc(t, f.reports, domain.ProductScope("MUG-BLUE"), month(time.March))

	f = newFixture()
	reports = &flakyReports{ReportStore: f.reports, failures: 2}
	opts = f.options(t)
	opts.Reports = reports
	opts.MaxConcurrent = 1
	opts.StoreAttempts = 2
	result = runWith(t, opts)

	require.NotEmpty(t, result.SkippedUnits)
	assert.Equal(t, ReasonStoreFailed, result.SkippedUnits[0].Reason)
}

func TestRun_NoOrders(t *testing.T) {
	f := newFixture()
	opts := f.options(t)
	opts.Orders = memory.NewOrderSource()
	result := runWith(t, opts)

	assert.Zero(t, result.Stage(domain.ScopeProduct).DocumentsComputed)
	assert.Zero(t, f.reports.Len())
}

func TestRun_ContextCancelled(t *testing.T) {
	f := newFixture()
	o, err := New(f.options(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = o.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Validates(t *testing.T) {
	f := newFixture()

	opts := f.options(t)
	opts.Orders = nil
	_, err := New(opts)
	assert.Error(t, err)

	opts = f.options(t)
	opts.Checkpoints = nil
	opts.Resume = true
	_, err = New(opts)
	assert.Error(t, err)

	opts = f.options(t)
	opts.PeriodTypes = []domain.PeriodType{"daily"}
	_, err = New(opts)
	assert.Error(t, err)
}

func TestBucket_AssignsOrdersToContainingPeriod(t *testing.T) {
	periods := []domain.Period{month(time.April), month(time.March)}
	orders := []domain.Order{
		{OrderID: 1, CreatedAt: time.Date(2025, time.March, 31, 23, 59, 59, 0, time.UTC)},
		{OrderID: 2, CreatedAt: time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)},
		{OrderID: 3, CreatedAt: time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC)},
	}

	buckets := bucket(periods, orders)
	require.Len(t, buckets, 2)
	require.Len(t, buckets[0], 1)
	require.Len(t, buckets[1], 1)
	assert.Equal(t, int64(2), buckets[0][0].OrderID)
	assert.Equal(t, int64(1), buckets[1][0].OrderID)
}

func TestProductGroups_FollowOwnership(t *testing.T) {
	c := domain.NewCatalog([]domain.ListingProduct{
		{ListingID: 100, ProductID: 1, SKU: "A"},
		{ListingID: 100, ProductID: 2, SKU: "B"},
		{ListingID: 200, ProductID: 3, SKU: "B"},
		{ListingID: 200, ProductID: 4, SKU: "C"},
	})

	groups := productGroups(c)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"A", "B"}, groups[0].skus)
	assert.Equal(t, []string{"C"}, groups[1].skus)
}
