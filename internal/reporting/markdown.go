package reporting

import (
	"fmt"
	"strings"
	"time"
)

// maxSkippedRows bounds the skipped-unit table; the CSV carries every row.
const maxSkippedRows = 50

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Report Run Summary\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Run: `%s` | Duration: %s\n\n", r.RunID, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)))
	sb.WriteString(fmt.Sprintf("Order history: %s to %s\n\n", day(r.HistoryStart), day(r.HistoryEnd)))

	// Stages
	sb.WriteString("## Stages\n\n")
	sb.WriteString("| Stage | Entities | Resumed | Computed | Stored | Empty | No Cost | Children Skipped | Duration |\n")
	sb.WriteString("|-------|----------|---------|----------|--------|-------|---------|------------------|----------|\n")
	for _, s := range r.Stages {
		if s.Skipped {
			sb.WriteString(fmt.Sprintf("| %s | skipped | - | - | - | - | - | - | - |\n", s.Stage))
			continue
		}
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d | %d | %d | %d | %s |\n",
			s.Stage, s.Entities, s.Resumed, s.Computed, s.Stored, s.Empty, s.NoCost,
			s.ChildrenSkipped, s.Duration.Round(time.Millisecond)))
	}
	sb.WriteString("\n")

	// Cost quality
	q := r.CostQuality
	sb.WriteString("## Cost Coverage\n\n")
	sb.WriteString("| Provenance | Quantity |\n")
	sb.WriteString("|------------|----------|\n")
	sb.WriteString(fmt.Sprintf("| Direct | %d |\n", q.DirectQuantity))
	sb.WriteString(fmt.Sprintf("| Sibling (same period) | %d |\n", q.SiblingSamePeriodQuantity))
	sb.WriteString(fmt.Sprintf("| Sibling (historical) | %d |\n", q.SiblingHistoricalQuantity))
	sb.WriteString(fmt.Sprintf("| Missing | %d |\n", q.MissingQuantity))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Coverage: **%s**\n\n", percent(q.CoveragePercent)))

	// Shop periods
	sb.WriteString("## Shop Periods\n\n")
	if len(r.ShopPeriods) > 0 {
		sb.WriteString("| Type | Start | End | Orders | Cancelled | Gross | Fees | Cost | Ad Spend | Net Profit | Net Margin | Coverage | Listings Skipped |\n")
		sb.WriteString("|------|-------|-----|--------|-----------|-------|------|------|----------|------------|------------|----------|------------------|\n")
		for _, p := range r.ShopPeriods {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %d | %s | %s | %s | %s | %s | %s | %s | %d |\n",
				p.PeriodType, day(p.PeriodStart), day(p.PeriodEnd), p.Orders, p.CancelledOrders,
				money(p.GrossRevenue), money(p.TotalFees), money(p.TotalCost), money(p.AdSpend),
				money(p.NetProfit), fraction(p.NetMargin), percent(p.CostCoverage), p.ListingsSkipped))
		}
	} else {
		sb.WriteString("No shop documents stored.\n")
	}
	sb.WriteString("\n")

	// Listings excluded from the shop rollup
	sb.WriteString("## Listings Excluded From Shop Totals\n\n")
	if len(r.ShopExclusions) > 0 {
		sb.WriteString("| Listing | Periods |\n")
		sb.WriteString("|---------|---------|\n")
		for _, e := range r.ShopExclusions {
			sb.WriteString(fmt.Sprintf("| %d | %d |\n", e.ListingID, e.Periods))
		}
	} else {
		sb.WriteString("None.\n")
	}
	sb.WriteString("\n")

	// Skipped units
	sb.WriteString("## Skipped Units\n\n")
	if len(r.SkippedUnits) > 0 {
		sb.WriteString("| Stage | Entity | Type | Start | End | Reason |\n")
		sb.WriteString("|-------|--------|------|-------|-----|--------|\n")
		for i, u := range r.SkippedUnits {
			if i == maxSkippedRows {
				sb.WriteString(fmt.Sprintf("\n%d more in SKIPPED_UNITS.csv\n", len(r.SkippedUnits)-maxSkippedRows))
				break
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
				u.Stage, u.Entity, u.PeriodType, day(u.PeriodStart), day(u.PeriodEnd), u.Reason))
		}
	} else {
		sb.WriteString("No units were skipped.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
