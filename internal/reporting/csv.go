package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
)

// RenderShopCSV renders the shop period table as CSV string.
func RenderShopCSV(rows []ShopPeriodRow) string {
	records := [][]string{{
		"period_type", "period_start", "period_end", "orders", "cancelled_orders",
		"gross_revenue", "total_fees", "total_cost", "ad_spend", "net_profit",
		"net_margin", "cost_coverage_percent", "listings_skipped", "run_id",
	}}
	for _, p := range rows {
		records = append(records, []string{
			p.PeriodType,
			day(p.PeriodStart),
			day(p.PeriodEnd),
			strconv.Itoa(p.Orders),
			strconv.Itoa(p.CancelledOrders),
			money(p.GrossRevenue),
			money(p.TotalFees),
			money(p.TotalCost),
			money(p.AdSpend),
			money(p.NetProfit),
			strconv.FormatFloat(p.NetMargin, 'f', 6, 64),
			strconv.FormatFloat(p.CostCoverage, 'f', 2, 64),
			strconv.Itoa(p.ListingsSkipped),
			p.RunID,
		})
	}
	return writeCSV(records)
}

// RenderSkippedCSV renders every skipped unit as CSV string.
func RenderSkippedCSV(rows []SkippedUnitRow) string {
	records := [][]string{{"stage", "entity", "period_type", "period_start", "period_end", "reason", "error"}}
	for _, u := range rows {
		records = append(records, []string{
			u.Stage, u.Entity, u.PeriodType, day(u.PeriodStart), day(u.PeriodEnd), u.Reason, u.Error,
		})
	}
	return writeCSV(records)
}

// writeCSV quotes fields as needed; error messages may contain commas.
func writeCSV(records [][]string) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	_ = w.WriteAll(records) // a strings.Builder never fails
	return sb.String()
}
