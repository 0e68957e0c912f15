package reporting

import "time"

// Report is the rendered summary of one report run.
type Report struct {
	// Metadata
	GeneratedAt  time.Time
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	HistoryStart time.Time // zero when there were no orders
	HistoryEnd   time.Time

	Stages      []StageRow
	CostQuality CostQualitySection

	SkippedUnits   []SkippedUnitRow   // sorted by stage, entity, period
	ShopExclusions []ShopExclusionRow // sorted by listing id
	ShopPeriods    []ShopPeriodRow    // stored shop documents, sorted by type and start
}

// StageRow counts the work of one phase.
type StageRow struct {
	Stage           string
	Skipped         bool
	Entities        int
	Resumed         int
	Computed        int
	Stored          int
	Empty           int
	NoCost          int
	ChildrenSkipped int
	Duration        time.Duration
}

// CostQualitySection totals cost provenance over stored product documents.
type CostQualitySection struct {
	DirectQuantity            int
	SiblingSamePeriodQuantity int
	SiblingHistoricalQuantity int
	MissingQuantity           int
	CoveragePercent           float64
}

// SkippedUnitRow is one (entity, period) pair absent from the report store.
type SkippedUnitRow struct {
	Stage       string
	Entity      string
	PeriodType  string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Reason      string
	Error       string
}

// ShopExclusionRow counts the shop periods a listing was left out of.
type ShopExclusionRow struct {
	ListingID int64
	Periods   int
}

// ShopPeriodRow carries the headline figures of one shop document.
type ShopPeriodRow struct {
	PeriodType      string
	PeriodStart     time.Time
	PeriodEnd       time.Time
	Orders          int
	CancelledOrders int
	GrossRevenue    float64
	TotalFees       float64
	TotalCost       float64
	AdSpend         float64
	NetProfit       float64
	NetMargin       float64
	CostCoverage    float64
	ListingsSkipped int
	RunID           string
}
