package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"shop-analytics/internal/domain"
	"shop-analytics/internal/orchestrator"
	"shop-analytics/internal/storage"
)

// Generator produces run summaries from a run result and stored shop documents.
type Generator struct {
	reports storage.ReportStore
	now     func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new summary generator. reports may be nil, in
// which case the shop period table is left empty.
func NewGenerator(reports storage.ReportStore) *Generator {
	return &Generator{
		reports: reports,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the summary of result.
func (g *Generator) Generate(ctx context.Context, result *orchestrator.RunResult) (*Report, error) {
	r := &Report{
		GeneratedAt:  g.now(),
		RunID:        result.RunID,
		StartedAt:    result.StartedAt,
		FinishedAt:   result.FinishedAt,
		HistoryStart: result.History.Start,
		HistoryEnd:   result.History.End,
		Stages:       stageRows(result.Stages),
		CostQuality: CostQualitySection{
			DirectQuantity:            result.CostQuality.DirectQuantity,
			SiblingSamePeriodQuantity: result.CostQuality.SiblingSamePeriodQuantity,
			SiblingHistoricalQuantity: result.CostQuality.SiblingHistoricalQuantity,
			MissingQuantity:           result.CostQuality.MissingQuantity,
			CoveragePercent:           result.CostCoveragePercent(),
		},
		SkippedUnits:   skippedRows(result.SkippedUnits),
		ShopExclusions: exclusionRows(result.ShopExclusions),
	}

	if g.reports != nil {
		shop, err := g.reports.List(ctx, domain.ScopeShop)
		if err != nil {
			return nil, fmt.Errorf("list shop reports: %w", err)
		}
		r.ShopPeriods = shopRows(shop)
	}
	return r, nil
}

func stageRows(stages []orchestrator.StageSummary) []StageRow {
	rows := make([]StageRow, 0, len(stages))
	for _, s := range stages {
		rows = append(rows, StageRow{
			Stage:           string(s.Stage),
			Skipped:         s.Skipped,
			Entities:        s.Entities,
			Resumed:         s.EntitiesResumed,
			Computed:        s.DocumentsComputed,
			Stored:          s.DocumentsStored,
			Empty:           s.DocumentsEmpty,
			NoCost:          s.DocumentsNoCost,
			ChildrenSkipped: s.ChildrenSkipped,
			Duration:        s.Duration,
		})
	}
	return rows
}

func skippedRows(units []orchestrator.SkippedUnit) []SkippedUnitRow {
	rows := make([]SkippedUnitRow, 0, len(units))
	for _, u := range units {
		rows = append(rows, SkippedUnitRow{
			Stage:       string(u.Stage),
			Entity:      u.Entity,
			PeriodType:  string(u.Period.Type),
			PeriodStart: u.Period.Range.Start,
			PeriodEnd:   u.Period.Range.End,
			Reason:      u.Reason,
			Error:       u.Error,
		})
	}
	return rows
}

func exclusionRows(exclusions map[int64]int) []ShopExclusionRow {
	rows := make([]ShopExclusionRow, 0, len(exclusions))
	for id, n := range exclusions {
		rows = append(rows, ShopExclusionRow{ListingID: id, Periods: n})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ListingID < rows[j].ListingID })
	return rows
}

// periodTypeOrder sorts yearly before monthly before weekly.
func periodTypeOrder(t domain.PeriodType) int {
	for i, pt := range domain.AllPeriodTypes {
		if pt == t {
			return i
		}
	}
	return len(domain.AllPeriodTypes)
}

func shopRows(reports []*domain.Report) []ShopPeriodRow {
	sorted := append([]*domain.Report(nil), reports...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Period, sorted[j].Period
		if a.Type != b.Type {
			return periodTypeOrder(a.Type) < periodTypeOrder(b.Type)
		}
		return a.Range.Start.Before(b.Range.Start)
	})

	rows := make([]ShopPeriodRow, 0, len(sorted))
	for _, rep := range sorted {
		d := rep.Document
		if d == nil {
			continue
		}
		rows = append(rows, ShopPeriodRow{
			PeriodType:      string(rep.Period.Type),
			PeriodStart:     rep.Period.Range.Start,
			PeriodEnd:       rep.Period.Range.End,
			Orders:          d.Orders.TotalOrders,
			CancelledOrders: d.Cancellations.CancelledOrders,
			GrossRevenue:    d.Revenue.GrossRevenue,
			TotalFees:       d.Fees.TotalFees,
			TotalCost:       d.Costs.TotalCostWithShipping,
			AdSpend:         d.Costs.AdSpend,
			NetProfit:       d.Profit.NetProfit,
			NetMargin:       d.Profit.NetMargin,
			CostCoverage:    d.CostQuality.CostCoveragePercent,
			ListingsSkipped: d.Rollup.ChildrenSkipped,
			RunID:           rep.RunID,
		})
	}
	return rows
}
