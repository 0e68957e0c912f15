// Command reports computes period metrics documents for every SKU, listing
// and the shop, and stores them in Postgres with an optional ClickHouse mirror.
//
// Configuration comes from the environment (and .env); flags shape the run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"shop-analytics/internal/config"
	"shop-analytics/internal/domain"
	"shop-analytics/internal/logging"
	"shop-analytics/internal/metrics"
	"shop-analytics/internal/observability"
	"shop-analytics/internal/orchestrator"
	"shop-analytics/internal/refdata"
	"shop-analytics/internal/reporting"
	"shop-analytics/internal/resolver"
	"shop-analytics/internal/storage"
	chstore "shop-analytics/internal/storage/clickhouse"
	"shop-analytics/internal/storage/migrations"
	pgstore "shop-analytics/internal/storage/postgres"
)

// flags are the run-shaping command line options.
type flags struct {
	envFile      string
	runID        string
	summaryDir   string
	periodTypes  string
	direct       bool
	resume       bool
	cleanReports bool

	onlyProducts, onlyListings, onlyShop bool
	skipProducts, skipListings, skipShop bool
}

func parseFlags(args []string) (*flags, error) {
	f := &flags{}
	fs := flag.NewFlagSet("reports", flag.ContinueOnError)
	fs.StringVar(&f.envFile, "env-file", ".env", "Optional .env file")
	fs.StringVar(&f.runID, "run-id", "", "Run identifier stamped on reports (default: random UUID)")
	fs.StringVar(&f.summaryDir, "summary-dir", "", "Write RUN_SUMMARY.md and CSV tables into this directory")
	fs.StringVar(&f.periodTypes, "period-types", "", "Comma-separated period types, overrides PERIOD_TYPES")
	fs.BoolVar(&f.direct, "direct", false, "Compute listings and shop from their own orders instead of rolling up")
	fs.BoolVar(&f.resume, "resume", false, "Skip entities checkpointed by an earlier run")
	fs.BoolVar(&f.cleanReports, "clean-reports", false, "Delete all stored reports and checkpoints before the run")
	fs.BoolVar(&f.onlyProducts, "only-products", false, "Run only the product phase")
	fs.BoolVar(&f.onlyListings, "only-listings", false, "Run only the listing phase")
	fs.BoolVar(&f.onlyShop, "only-shop", false, "Run only the shop phase")
	fs.BoolVar(&f.skipProducts, "skip-products", false, "Skip the product phase and use stored product reports")
	fs.BoolVar(&f.skipListings, "skip-listings", false, "Skip the listing phase and use stored listing reports")
	fs.BoolVar(&f.skipShop, "skip-shop", false, "Skip the shop phase")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	only := 0
	for _, set := range []bool{f.onlyProducts, f.onlyListings, f.onlyShop} {
		if set {
			only++
		}
	}
	if only > 1 {
		return nil, errors.New("at most one --only-* flag may be given")
	}
	if only == 1 && (f.skipProducts || f.skipListings || f.skipShop) {
		return nil, errors.New("--only-* and --skip-* cannot be combined")
	}
	if f.resume && f.cleanReports {
		return nil, errors.New("--resume and --clean-reports cannot be combined")
	}
	if f.runID == "" {
		f.runID = uuid.NewString()
	}
	return f, nil
}

// skips resolves the only/skip flags into the phases not run.
func (f *flags) skips() (products, listings, shop bool) {
	switch {
	case f.onlyProducts:
		return false, true, true
	case f.onlyListings:
		return true, false, true
	case f.onlyShop:
		return true, true, false
	}
	return f.skipProducts, f.skipListings, f.skipShop
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(f.envFile)
	if err != nil {
		return err
	}
	if f.periodTypes != "" {
		cfg.PeriodTypes = strings.Split(f.periodTypes, ",")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is required")
	}
	periodTypes, _ := cfg.ParsedPeriodTypes()

	logger, logCloser, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer logCloser.Close()
	log := logger.WithField("run_id", f.runID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runMetrics := observability.NewMetrics("", nil)
	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr, log)
		defer shutdown(srv)
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := buildResolver(ctx, cfg, st.catalog, log)
	if err != nil {
		return err
	}

	skipProducts, skipListings, skipShop := f.skips()
	o, err := orchestrator.New(orchestrator.Options{
		Orders:        st.orders,
		Catalog:       st.catalog,
		Inventory:     st.catalog,
		AdSpend:       st.catalog,
		Reports:       st.reports,
		Mirror:        st.mirror,
		Checkpoints:   st.checkpoints,
		Calculator:    metrics.NewCalculator(cfg.Fees(), res, logger),
		Metrics:       runMetrics,
		CacheStats:    res.CacheStats,
		Log:           logger,
		RunID:         f.runID,
		PeriodTypes:   periodTypes,
		MaxConcurrent: cfg.MaxConcurrent,
		BatchSize:     cfg.BatchSize,
		ListingPolicy: cfg.ListingPolicy(),
		ShopPolicy:    cfg.ShopPolicy(),
		Direct:        f.direct,
		SkipProducts:  skipProducts,
		SkipListings:  skipListings,
		SkipShop:      skipShop,
		Resume:        f.resume,
		CleanReports:  f.cleanReports,
	})
	if err != nil {
		return err
	}

	result, runErr := o.Run(ctx)
	if result != nil {
		if err := summarize(ctx, f.summaryDir, st.reports, result, log); err != nil {
			log.WithError(err).Error("write run summary failed")
		}
	}
	if runErr != nil {
		return fmt.Errorf("report run: %w", runErr)
	}
	if n := len(result.SkippedUnits); n > 0 {
		log.WithField("skipped_units", n).Warn("run finished with skipped units; rerun with --resume to retry them")
	}
	return nil
}

// stores bundles the datastore handles of one run.
type stores struct {
	pool        *pgstore.Pool
	chConn      *chstore.Conn
	orders      *pgstore.OrderSource
	catalog     *pgstore.CatalogStore
	reports     *pgstore.ReportStore
	checkpoints *pgstore.CheckpointStore
	mirror      storage.ReportStore // nil without ClickHouse
}

func (s *stores) Close() {
	if s.chConn != nil {
		s.chConn.Close()
	}
	s.pool.Close()
}

// openStores connects to Postgres and, when configured, ClickHouse and
// applies the migrations of both.
func openStores(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*stores, error) {
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, cfg.PostgresPool)
	if err != nil {
		return nil, err
	}
	if err := migrations.ApplyPostgres(ctx, pool, log); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}

	st := &stores{
		pool:        pool,
		orders:      pgstore.NewOrderSource(pool),
		catalog:     pgstore.NewCatalogStore(pool),
		reports:     pgstore.NewReportStore(pool),
		checkpoints: pgstore.NewCheckpointStore(pool),
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := chstore.EnsureDatabase(ctx, cfg.ClickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := migrations.ApplyClickhouse(ctx, conn, log); err != nil {
			conn.Close()
			pool.Close()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		st.chConn = conn
		st.mirror = chstore.NewReportStore(conn)
	}
	return st, nil
}

// buildResolver loads the reference tables and the catalog used for
// sibling cost fallbacks.
func buildResolver(ctx context.Context, cfg *config.Config, catalog storage.CatalogSource, log logrus.FieldLogger) (*resolver.Resolver, error) {
	ix := refdata.Load(cfg.RefdataPaths(), log)

	products, err := loadCatalog(ctx, catalog, time.Second, orchestrator.DefaultOrderAttempts, log)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	catalogIndex := domain.NewCatalog(products)
	if missing := ix.MissingCostSKUs(catalogIndex.SKUs()); len(missing) > 0 {
		sample := missing[:min(len(missing), 10)]
		log.WithFields(logrus.Fields{
			"count":  len(missing),
			"sample": sample,
		}).Warn("catalog SKUs without a cost table row")
	}

	return resolver.New(resolver.Options{
		Costs:          ix,
		Siblings:       catalogIndex,
		Shipping:       ix,
		CacheSize:      cfg.CostCacheSize,
		LookbackMonths: cfg.SiblingLookbackMonths,
	})
}

// loadCatalog reads the listing products, retrying transient failures with
// exponential backoff.
func loadCatalog(ctx context.Context, catalog storage.CatalogSource, interval time.Duration, attempts int, log logrus.FieldLogger) ([]domain.ListingProduct, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	var products []domain.ListingProduct
	err := backoff.RetryNotify(func() error {
		var err error
		products, err = catalog.ListingProducts(ctx)
		if err != nil && !storage.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		log.WithError(err).WithField("wait", wait).Warn("catalog read failed, retrying")
	})
	return products, err
}

func summarize(ctx context.Context, dir string, reports storage.ReportStore, result *orchestrator.RunResult, log logrus.FieldLogger) error {
	for _, s := range result.Stages {
		log.WithFields(logrus.Fields{
			"stage":    s.Stage,
			"skipped":  s.Skipped,
			"stored":   s.DocumentsStored,
			"no_cost":  s.DocumentsNoCost,
			"empty":    s.DocumentsEmpty,
			"excluded": s.ChildrenSkipped,
		}).Info("stage summary")
	}
	if dir == "" {
		return nil
	}

	report, err := reporting.NewGenerator(reports).Generate(ctx, result)
	if err != nil {
		return err
	}
	paths, err := reporting.WriteFiles(dir, report)
	if err != nil {
		return err
	}
	log.WithField("files", paths).Info("run summary written")
	return nil
}

func startMetricsServer(addr string, log logrus.FieldLogger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	})
	mux.Handle("/metrics", observability.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.WithField("addr", addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server failed")
		}
	}()
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
