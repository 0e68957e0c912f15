package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"shop-analytics/internal/domain"
	"shop-analytics/internal/storage"
)

// reportTable maps a scope kind to its table and identity column.
type reportTable struct {
	name     string
	identity string // empty for the shop table
}

var reportTables = map[domain.ScopeKind]reportTable{
	domain.ScopeProduct: {name: "product_reports", identity: "sku"},
	domain.ScopeListing: {name: "listing_reports", identity: "listing_id"},
	domain.ScopeShop:    {name: "shop_reports"},
}

func (t reportTable) keyColumns() string {
	if t.identity == "" {
		return "period_type, period_start, period_end"
	}
	return t.identity + ", period_type, period_start, period_end"
}

func (t reportTable) upsertQuery() string {
	cols := t.keyColumns() + ", run_id, gross_revenue, net_profit, total_orders, cost_coverage_percent, document"
	placeholders := "$1, $2, $3, $4, $5, $6, $7, $8, $9, $10"
	if t.identity == "" {
		placeholders = "$1, $2, $3, $4, $5, $6, $7, $8, $9"
	}
	return fmt.Sprintf(`
		INSERT INTO %s (%s, updated_at)
		VALUES (%s, NOW())
		ON CONFLICT (%s) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			gross_revenue = EXCLUDED.gross_revenue,
			net_profit = EXCLUDED.net_profit,
			total_orders = EXCLUDED.total_orders,
			cost_coverage_percent = EXCLUDED.cost_coverage_percent,
			document = EXCLUDED.document,
			updated_at = NOW()
	`, t.name, cols, placeholders, t.keyColumns())
}

// ReportStore implements storage.ReportStore using one table per scope kind.
type ReportStore struct {
	pool *Pool
}

// NewReportStore creates a new ReportStore.
func NewReportStore(pool *Pool) *ReportStore {
	return &ReportStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ReportStore = (*ReportStore)(nil)

// Upsert writes reports in a single transaction.
func (s *ReportStore) Upsert(ctx context.Context, reports []*domain.Report) error {
	if len(reports) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range reports {
		if r == nil || r.Document == nil || r.Scope.Validate() != nil || !r.Period.Type.Valid() {
			return storage.ErrInvalidInput
		}
		args, err := upsertArgs(r)
		if err != nil {
			return err
		}
		batch.Queue(reportTables[r.Scope.Kind].upsertQuery(), args...)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	for i := range reports {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("upsert report %s %s: %w", reports[i].Scope, reports[i].Period.Key(), err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func upsertArgs(r *domain.Report) ([]any, error) {
	doc, err := json.Marshal(r.Document)
	if err != nil {
		return nil, fmt.Errorf("marshal document %s: %w", r.Scope, err)
	}

	var args []any
	switch r.Scope.Kind {
	case domain.ScopeProduct:
		args = append(args, r.Scope.SKU)
	case domain.ScopeListing:
		args = append(args, r.Scope.ListingID)
	}
	d := r.Document
	return append(args,
		string(r.Period.Type),
		r.Period.Range.Start,
		r.Period.Range.End,
		r.RunID,
		d.Revenue.GrossRevenue,
		d.Profit.NetProfit,
		d.Orders.TotalOrders,
		d.CostQuality.CostCoveragePercent,
		doc,
	), nil
}

// Get retrieves one report. Returns ErrNotFound if not exists.
func (s *ReportStore) Get(ctx context.Context, scope domain.Scope, period domain.Period) (*domain.Report, error) {
	t, ok := reportTables[scope.Kind]
	if !ok {
		return nil, storage.ErrInvalidInput
	}

	where := "period_type = $1 AND period_start = $2 AND period_end = $3"
	args := []any{string(period.Type), period.Range.Start, period.Range.End}
	switch scope.Kind {
	case domain.ScopeProduct:
		where += " AND sku = $4"
		args = append(args, scope.SKU)
	case domain.ScopeListing:
		where += " AND listing_id = $4"
		args = append(args, scope.ListingID)
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s, run_id, document FROM %s WHERE %s
	`, t.selectKey(), t.name, where), args...)

	r, err := scanReport(row, scope.Kind)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get report %s %s: %w", scope, period.Key(), err)
	}
	return r, nil
}

// List returns every report of a kind ordered by identity, period type, start.
func (s *ReportStore) List(ctx context.Context, kind domain.ScopeKind) ([]*domain.Report, error) {
	t, ok := reportTables[kind]
	if !ok {
		return nil, storage.ErrInvalidInput
	}

	order := "period_type, period_start"
	if t.identity != "" {
		order = t.identity + "::text, " + order
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s, run_id, document FROM %s ORDER BY %s
	`, t.selectKey(), t.name, order))
	if err != nil {
		return nil, fmt.Errorf("list %s reports: %w", kind, err)
	}
	defer rows.Close()

	var result []*domain.Report
	for rows.Next() {
		r, err := scanReport(rows, kind)
		if err != nil {
			return nil, fmt.Errorf("scan %s report: %w", kind, err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// DeleteAll removes every report of every kind.
func (s *ReportStore) DeleteAll(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE product_reports, listing_reports, shop_reports`)
	if err != nil {
		return fmt.Errorf("delete reports: %w", err)
	}
	return nil
}

// selectKey always yields an identity column so scanning is uniform.
func (t reportTable) selectKey() string {
	identity := "'shop'"
	if t.identity != "" {
		identity = t.identity + "::text"
	}
	return identity + ", period_type, period_start, period_end"
}

func scanReport(row scanner, kind domain.ScopeKind) (*domain.Report, error) {
	var (
		identity   string
		periodType string
		start, end time.Time
		runID      string
		raw        []byte
	)
	if err := row.Scan(&identity, &periodType, &start, &end, &runID, &raw); err != nil {
		return nil, err
	}

	scope := domain.Scope{Kind: kind}
	switch kind {
	case domain.ScopeProduct:
		scope.SKU = identity
	case domain.ScopeListing:
		id, err := strconv.ParseInt(identity, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse listing id %q: %w", identity, err)
		}
		scope.ListingID = id
	}

	var doc domain.MetricsDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	period := domain.Period{
		Type:  domain.PeriodType(periodType),
		Range: domain.DateRange{Start: start.UTC(), End: end.UTC()},
	}
	doc.Scope = scope
	doc.Period = period

	return &domain.Report{Scope: scope, Period: period, Document: &doc, RunID: runID}, nil
}
