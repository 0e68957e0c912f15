package orchestrator

import (
	"sort"
	"sync"
	"time"

	"shop-analytics/internal/domain"
)

// Reasons recorded for documents and units that were not stored.
const (
	ReasonEmpty        = "empty"           // no completed or cancelled orders
	ReasonNoCost       = "no_cost"         // orders but no resolved cost at all
	ReasonFetchFailed  = "fetch_failed"    // order fetch exhausted retries
	ReasonAdSpend      = "ad_spend_failed" // ad spend lookup exhausted retries
	ReasonStoreFailed  = "store_failed"    // report upsert failed
	ReasonRollupFailed = "rollup_failed"   // children could not be aggregated
)

// StageSummary counts the work of one phase.
type StageSummary struct {
	Stage             domain.ScopeKind
	Skipped           bool // phase not run; stored documents were loaded
	Entities          int
	EntitiesResumed   int
	DocumentsComputed int
	DocumentsStored   int
	DocumentsEmpty    int
	DocumentsNoCost   int
	ChildrenSkipped   int // children excluded by the completeness policy
	Duration          time.Duration
}

// SkippedUnit is a (entity, period) pair absent from the report store
// because of a failure.
type SkippedUnit struct {
	Stage  domain.ScopeKind
	Entity string
	Period domain.Period
	Reason string
	Error  string
}

// RunResult is the user-visible outcome of a run.
type RunResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	History    domain.DateRange // zero when there were no orders

	Stages       []StageSummary // products, listings, shop
	SkippedUnits []SkippedUnit

	// CostQuality sums provenance quantities over stored product documents
	// of a single period type, so each sold unit counts once.
	CostQuality domain.CostQuality

	// ShopExclusions counts, per listing, the shop periods it was left out of.
	ShopExclusions map[int64]int
}

// Stage returns the summary of one stage.
func (r *RunResult) Stage(kind domain.ScopeKind) StageSummary {
	for _, s := range r.Stages {
		if s.Stage == kind {
			return s
		}
	}
	return StageSummary{Stage: kind}
}

// CostCoveragePercent is known-cost quantity over sold quantity, 100 when nothing sold.
func (r *RunResult) CostCoveragePercent() float64 {
	known := r.CostQuality.KnownQuantity()
	total := known + r.CostQuality.MissingQuantity
	if total == 0 {
		return 100
	}
	return float64(known) / float64(total) * 100
}

// recorder accumulates a RunResult from concurrent entity tasks.
type recorder struct {
	mu       sync.Mutex
	result   RunResult
	stages   map[domain.ScopeKind]*StageSummary
	coverage domain.PeriodType
}

func newRecorder(runID string, started time.Time) *recorder {
	rec := &recorder{
		result: RunResult{
			RunID:          runID,
			StartedAt:      started,
			ShopExclusions: make(map[int64]int),
		},
		stages: make(map[domain.ScopeKind]*StageSummary),
	}
	for _, kind := range []domain.ScopeKind{domain.ScopeProduct, domain.ScopeListing, domain.ScopeShop} {
		rec.stages[kind] = &StageSummary{Stage: kind}
	}
	return rec
}

// stage returns the mutable summary; callers outside tasks only.
func (r *recorder) stage(kind domain.ScopeKind) *StageSummary {
	return r.stages[kind]
}

func (r *recorder) snapshotStage(kind domain.ScopeKind) StageSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.stages[kind]
}

func (r *recorder) setHistory(span domain.DateRange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.History = span
}

// setCoveragePeriod picks the period type whose product documents feed
// the cost totals, so each sold unit is counted once.
func (r *recorder) setCoveragePeriod(t domain.PeriodType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coverage = t
}

func (r *recorder) update(kind domain.ScopeKind, fn func(s *StageSummary)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.stages[kind])
}

func (r *recorder) skip(u SkippedUnit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.SkippedUnits = append(r.result.SkippedUnits, u)
}

func (r *recorder) addCostQuality(doc *domain.MetricsDocument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc.Period.Type != r.coverage {
		return
	}
	q := &r.result.CostQuality
	q.DirectQuantity += doc.CostQuality.DirectQuantity
	q.SiblingSamePeriodQuantity += doc.CostQuality.SiblingSamePeriodQuantity
	q.SiblingHistoricalQuantity += doc.CostQuality.SiblingHistoricalQuantity
	q.MissingQuantity += doc.CostQuality.MissingQuantity
}

func (r *recorder) excludeFromShop(listingID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.ShopExclusions[listingID]++
}

func (r *recorder) finish(at time.Time) *RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.result
	out.FinishedAt = at
	out.Stages = nil
	for _, kind := range []domain.ScopeKind{domain.ScopeProduct, domain.ScopeListing, domain.ScopeShop} {
		out.Stages = append(out.Stages, *r.stages[kind])
	}
	out.SkippedUnits = append([]SkippedUnit(nil), r.result.SkippedUnits...)
	sort.SliceStable(out.SkippedUnits, func(i, j int) bool {
		a, b := out.SkippedUnits[i], out.SkippedUnits[j]
		if a.Stage != b.Stage {
			return stageOrder(a.Stage) < stageOrder(b.Stage)
		}
		if a.Entity != b.Entity {
			return a.Entity < b.Entity
		}
		return a.Period.Key() < b.Period.Key()
	})
	out.ShopExclusions = make(map[int64]int, len(r.result.ShopExclusions))
	for k, v := range r.result.ShopExclusions {
		out.ShopExclusions[k] = v
	}
	return &out
}

func stageOrder(kind domain.ScopeKind) int {
	switch kind {
	case domain.ScopeProduct:
		return 0
	case domain.ScopeListing:
		return 1
	default:
		return 2
	}
}
