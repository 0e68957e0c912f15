package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"shop-analytics/internal/domain"
	"shop-analytics/internal/storage"
)

// ReportStore mirrors reports into a ReplacingMergeTree table.
// The latest version per natural key wins; reads use FINAL.
type ReportStore struct {
	conn *Conn
	now  func() time.Time
}

// NewReportStore creates a new ReportStore.
func NewReportStore(conn *Conn) *ReportStore {
	return &ReportStore{conn: conn, now: time.Now}
}

// Compile-time interface check.
var _ storage.ReportStore = (*ReportStore)(nil)

const reportColumns = `
	scope_kind, scope_key, period_type, period_start, period_end, run_id,
	gross_revenue, net_revenue, gross_profit, net_profit, total_cost,
	total_orders, total_quantity_sold, cost_coverage_percent, document, version
`

// Upsert appends a new version of each report in one batch.
func (s *ReportStore) Upsert(ctx context.Context, reports []*domain.Report) error {
	if len(reports) == 0 {
		return nil
	}
	for _, r := range reports {
		if r == nil || r.Document == nil || r.Scope.Validate() != nil || !r.Period.Type.Valid() {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO metrics_reports ("+reportColumns+")")
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	version := uint64(s.now().UnixNano())
	for i, r := range reports {
		doc, err := json.Marshal(r.Document)
		if err != nil {
			return fmt.Errorf("marshal document %s: %w", r.Scope, err)
		}
		d := r.Document
		err = batch.Append(
			string(r.Scope.Kind),
			r.Scope.Identity(),
			string(r.Period.Type),
			r.Period.Range.Start,
			r.Period.Range.End,
			r.RunID,
			d.Revenue.GrossRevenue,
			d.Revenue.NetRevenue,
			d.Profit.GrossProfit,
			d.Profit.NetProfit,
			d.Costs.TotalCost,
			uint32(d.Orders.TotalOrders),
			uint32(d.Orders.TotalQuantitySold),
			d.CostQuality.CostCoveragePercent,
			string(doc),
			version+uint64(i),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Get retrieves the latest version of one report. Returns ErrNotFound if not exists.
func (s *ReportStore) Get(ctx context.Context, scope domain.Scope, period domain.Period) (*domain.Report, error) {
	query := `
		SELECT scope_key, period_type, period_start, period_end, run_id, document
		FROM metrics_reports FINAL
		WHERE scope_kind = ? AND scope_key = ? AND period_type = ?
			AND period_start = ? AND period_end = ?
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query,
		string(scope.Kind), scope.Identity(), string(period.Type),
		period.Range.Start, period.Range.End,
	)
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query report: %w", err)
		}
		return nil, storage.ErrNotFound
	}
	return scanReport(rows, scope.Kind)
}

// List returns every report of a kind ordered by identity, period type, start.
func (s *ReportStore) List(ctx context.Context, kind domain.ScopeKind) ([]*domain.Report, error) {
	query := `
		SELECT scope_key, period_type, period_start, period_end, run_id, document
		FROM metrics_reports FINAL
		WHERE scope_kind = ?
		ORDER BY scope_key ASC, period_type ASC, period_start ASC
	`

	rows, err := s.conn.Query(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var result []*domain.Report
	for rows.Next() {
		r, err := scanReport(rows, kind)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// DeleteAll truncates the mirror table.
func (s *ReportStore) DeleteAll(ctx context.Context) error {
	if err := s.conn.Exec(ctx, "TRUNCATE TABLE IF EXISTS metrics_reports"); err != nil {
		return fmt.Errorf("truncate metrics_reports: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner, kind domain.ScopeKind) (*domain.Report, error) {
	var (
		key, periodType, runID, raw string
		start, end                  time.Time
	)
	if err := row.Scan(&key, &periodType, &start, &end, &runID, &raw); err != nil {
		return nil, fmt.Errorf("scan report: %w", err)
	}

	scope := domain.Scope{Kind: kind}
	switch kind {
	case domain.ScopeProduct:
		scope.SKU = key
	case domain.ScopeListing:
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse listing id %q: %w", key, err)
		}
		scope.ListingID = id
	}

	var doc domain.MetricsDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
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
