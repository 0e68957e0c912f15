// Package orchestrator runs a report build: products, then listings, then
// the shop, with bounded concurrency, retry of transient datastore errors and
// optional checkpoint resume.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"shop-analytics/internal/domain"
	"shop-analytics/internal/metrics"
	"shop-analytics/internal/observability"
	"shop-analytics/internal/period"
	"shop-analytics/internal/storage"
)

// Defaults for Options.
const (
	DefaultMaxConcurrent   = 3
	DefaultBatchSize       = 100
	DefaultOrderAttempts   = 5
	DefaultAdSpendAttempts = 3
	DefaultStoreAttempts   = 3
	DefaultRetryInterval   = time.Second
)

// Options for creating Orchestrator.
type Options struct {
	// Required sources and stores
	Orders     storage.OrderSource
	Catalog    storage.CatalogSource
	Inventory  storage.InventorySource
	Reports    storage.ReportStore
	Calculator *metrics.Calculator

	// Optional collaborators
	AdSpend     storage.AdSpendSource   // nil disables ad spend
	Mirror      storage.ReportStore     // secondary copy; failures are logged only
	Checkpoints storage.CheckpointStore // required for Resume
	Metrics     *observability.Metrics  // nil records nothing
	CacheStats  func() (hits, misses int64)
	Log         logrus.FieldLogger

	RunID       string
	PeriodTypes []domain.PeriodType // all types when empty

	MaxConcurrent int // entity computations in flight
	BatchSize     int // periods per order fetch

	// Completeness policies. The zero value requires complete children.
	ListingPolicy metrics.Policy
	ShopPolicy    metrics.Policy

	// Direct computes listing and shop documents from their own orders
	// instead of rolling up children.
	Direct bool

	SkipProducts bool
	SkipListings bool
	SkipShop     bool
	Resume       bool
	CleanReports bool

	RetryInterval   time.Duration
	OrderAttempts   int
	AdSpendAttempts int
	StoreAttempts   int // report upserts

	Now func() time.Time
}

// Orchestrator coordinates one report run.
type Orchestrator struct {
	opts    Options
	log     logrus.FieldLogger
	metrics *observability.Metrics
	now     func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Orders == nil:
		return nil, errors.New("orchestrator requires an order source")
	case opts.Catalog == nil:
		return nil, errors.New("orchestrator requires a catalog source")
	case opts.Inventory == nil:
		return nil, errors.New("orchestrator requires an inventory source")
	case opts.Reports == nil:
		return nil, errors.New("orchestrator requires a report store")
	case opts.Calculator == nil:
		return nil, errors.New("orchestrator requires a calculator")
	case opts.Resume && opts.Checkpoints == nil:
		return nil, errors.New("resume requires a checkpoint store")
	}

	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if len(opts.PeriodTypes) == 0 {
		opts.PeriodTypes = domain.AllPeriodTypes
	}
	for _, t := range opts.PeriodTypes {
		if !t.Valid() {
			return nil, fmt.Errorf("unknown period type %q", t)
		}
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.OrderAttempts <= 0 {
		opts.OrderAttempts = DefaultOrderAttempts
	}
	if opts.AdSpendAttempts <= 0 {
		opts.AdSpendAttempts = DefaultAdSpendAttempts
	}
	if opts.StoreAttempts <= 0 {
		opts.StoreAttempts = DefaultStoreAttempts
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Orchestrator{
		opts:    opts,
		log:     opts.Log.WithFields(logrus.Fields{"component": "orchestrator", "run_id": opts.RunID}),
		metrics: opts.Metrics,
		now:     opts.Now,
	}, nil
}

// run carries the state shared by the phases of one Run call.
type run struct {
	catalog    *domain.Catalog
	skuInv     map[string]domain.InventoryMetrics
	listingInv map[int64]domain.InventoryMetrics
	periods    map[domain.PeriodType][]domain.Period

	products *docSet
	listings *docSet
	result   *recorder
}

// Run executes the products, listings and shop phases in order. Failures of
// single units are recorded in the result; only setup errors and context
// cancellation abort the run.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	rec := newRecorder(o.opts.RunID, o.now())
	o.log.WithFields(logrus.Fields{
		"direct":         o.opts.Direct,
		"resume":         o.opts.Resume,
		"period_types":   o.opts.PeriodTypes,
		"max_concurrent": o.opts.MaxConcurrent,
	}).Info("report run started")

	if o.opts.CleanReports {
		if err := o.clean(ctx); err != nil {
			return nil, err
		}
	}

	r, err := o.prepare(ctx, rec)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			o.log.Warn("no orders found, nothing to compute")
			return rec.finish(o.now()), nil
		}
		return nil, err
	}

	phases := []struct {
		stage domain.ScopeKind
		skip  bool
		fn    func(context.Context, *run) error
	}{
		{domain.ScopeProduct, o.opts.SkipProducts, o.productPhase},
		{domain.ScopeListing, o.opts.SkipListings, o.listingPhase},
		{domain.ScopeShop, o.opts.SkipShop, o.shopPhase},
	}

	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			return rec.finish(o.now()), err
		}
		log := o.log.WithField("phase", p.stage)

		if p.skip {
			log.Info("phase skipped, loading stored documents")
			rec.stage(p.stage).Skipped = true
			if err := o.loadStored(ctx, r, p.stage, nil); err != nil {
				return rec.finish(o.now()), err
			}
			continue
		}

		start := o.now()
		err := p.fn(ctx, r)
		elapsed := o.now().Sub(start)
		rec.stage(p.stage).Duration = elapsed

		status := "ok"
		if err != nil {
			status = "failed"
		}
		o.metrics.RecordPhase(p.stage, status, elapsed)
		if err != nil {
			return rec.finish(o.now()), fmt.Errorf("%s phase: %w", p.stage, err)
		}

		s := rec.snapshotStage(p.stage)
		log.WithFields(logrus.Fields{
			"entities": s.Entities,
			"resumed":  s.EntitiesResumed,
			"computed": s.DocumentsComputed,
			"stored":   s.DocumentsStored,
			"no_cost":  s.DocumentsNoCost,
			"duration": elapsed.Round(time.Millisecond),
		}).Info("phase completed")
	}

	if o.opts.CacheStats != nil {
		o.metrics.UpdateCacheStats(o.opts.CacheStats())
	}

	result := rec.finish(o.now())
	o.metrics.MarkRunFinished(result.FinishedAt)
	o.log.WithFields(logrus.Fields{
		"skipped_units": len(result.SkippedUnits),
		"cost_coverage": fmt.Sprintf("%.2f%%", result.CostCoveragePercent()),
		"duration":      result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond),
	}).Info("report run completed")
	return result, nil
}

// clean deletes stored reports and checkpoints before the run.
func (o *Orchestrator) clean(ctx context.Context) error {
	o.log.Warn("deleting all stored reports")
	if err := o.opts.Reports.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clean reports: %w", err)
	}
	if o.opts.Mirror != nil {
		if err := o.opts.Mirror.DeleteAll(ctx); err != nil {
			o.log.WithError(err).Warn("clean mirror failed")
		}
	}
	if o.opts.Checkpoints != nil {
		for _, stage := range []domain.ScopeKind{domain.ScopeProduct, domain.ScopeListing, domain.ScopeShop} {
			if err := o.opts.Checkpoints.Clear(ctx, stage); err != nil {
				return fmt.Errorf("clear %s checkpoints: %w", stage, err)
			}
		}
	}
	return nil
}

// prepare loads the catalog, inventory snapshots and order span in parallel
// and generates the periods.
func (o *Orchestrator) prepare(ctx context.Context, rec *recorder) (*run, error) {
	r := &run{
		products: newDocSet(),
		listings: newDocSet(),
		result:   rec,
	}

	var (
		products []domain.ListingProduct
		span     domain.DateRange
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.retry(gctx, "listing_products", o.opts.OrderAttempts, func() error {
			var err error
			products, err = o.opts.Catalog.ListingProducts(gctx)
			return err
		})
	})
	g.Go(func() error {
		return o.retry(gctx, "sku_inventory", o.opts.OrderAttempts, func() error {
			var err error
			r.skuInv, err = o.opts.Inventory.SKUInventory(gctx)
			return err
		})
	})
	g.Go(func() error {
		return o.retry(gctx, "listing_inventory", o.opts.OrderAttempts, func() error {
			var err error
			r.listingInv, err = o.opts.Inventory.ListingInventory(gctx)
			return err
		})
	})
	g.Go(func() error {
		return o.retry(gctx, "order_span", o.opts.OrderAttempts, func() error {
			var err error
			span, err = o.opts.Orders.OrderSpan(gctx)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("prepare run: %w", err)
	}

	r.catalog = domain.NewCatalog(products)
	rec.setHistory(span)
	rec.setCoveragePeriod(o.opts.PeriodTypes[0])

	all, err := period.GenerateAll(span.Start, span.End)
	if err != nil {
		return nil, fmt.Errorf("generate periods: %w", err)
	}
	r.periods = make(map[domain.PeriodType][]domain.Period, len(o.opts.PeriodTypes))
	total := 0
	for _, t := range o.opts.PeriodTypes {
		r.periods[t] = all[t]
		total += len(all[t])
	}

	o.log.WithFields(logrus.Fields{
		"skus":          len(r.catalog.SKUs()),
		"listings":      len(r.catalog.Listings()),
		"history_start": span.Start.Format(time.RFC3339),
		"history_end":   span.End.Format(time.RFC3339),
		"periods":       total,
	}).Info("run prepared")
	return r, nil
}
