// Package observability provides Prometheus metrics for report runs.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shop-analytics/internal/domain"
)

// Metrics holds all Prometheus metrics of a report run.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Document metrics
	DocumentsComputed *prometheus.CounterVec
	DocumentsStored   *prometheus.CounterVec
	DocumentsSkipped  *prometheus.CounterVec
	ChildrenSkipped   *prometheus.CounterVec

	// Cost quality metrics
	CostQuantity *prometheus.CounterVec

	// Resolver cache
	CacheHits   prometheus.Gauge
	CacheMisses prometheus.Gauge

	// Phase metrics
	PhaseRunsTotal *prometheus.CounterVec
	PhaseDuration  *prometheus.HistogramVec

	// Datastore metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
	FetchRetries    *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg registers with the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "shop_analytics"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		DocumentsComputed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "documents_computed_total",
			Help:      "Metrics documents computed by stage",
		}, []string{"stage"}),
		DocumentsStored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "documents_stored_total",
			Help:      "Metrics documents upserted by stage",
		}, []string{"stage"}),
		DocumentsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "documents_skipped_total",
			Help:      "Documents or units not stored, by stage and reason",
		}, []string{"stage", "reason"}),
		ChildrenSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "rollup_children_skipped_total",
			Help:      "Children excluded from a rollup by the completeness policy",
		}, []string{"stage"}),

		CostQuantity: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cost",
			Name:      "quantity_total",
			Help:      "Sold quantity of product documents by cost provenance",
		}, []string{"provenance"}),

		CacheHits: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "cache_hits",
			Help:      "Cumulative resolver cache hits",
		}),
		CacheMisses: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "cache_misses",
			Help:      "Cumulative resolver cache misses",
		}),

		PhaseRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "phase_runs_total",
			Help:      "Phase runs by status",
		}, []string{"phase", "status"}),
		PhaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "phase_duration_seconds",
			Help:      "Phase execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"phase"}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Datastore call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Datastore call errors",
		}, []string{"operation"}),
		FetchRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "retries_total",
			Help:      "Retried datastore calls after a transient error",
		}, []string{"operation"}),

		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of the last run that finished",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint of the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns an HTTP handler for the given registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordComputed counts a computed document.
func (m *Metrics) RecordComputed(stage domain.ScopeKind) {
	if m == nil {
		return
	}
	m.DocumentsComputed.WithLabelValues(string(stage)).Inc()
}

// RecordStored counts upserted documents.
func (m *Metrics) RecordStored(stage domain.ScopeKind, n int) {
	if m == nil || n == 0 {
		return
	}
	m.DocumentsStored.WithLabelValues(string(stage)).Add(float64(n))
}

// RecordSkipped counts documents or units that were not stored.
func (m *Metrics) RecordSkipped(stage domain.ScopeKind, reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.DocumentsSkipped.WithLabelValues(string(stage), reason).Add(float64(n))
}

// RecordRollup counts children excluded from a rollup.
func (m *Metrics) RecordRollup(stage domain.ScopeKind, doc *domain.MetricsDocument) {
	if m == nil || doc == nil || doc.Rollup.ChildrenSkipped == 0 {
		return
	}
	m.ChildrenSkipped.WithLabelValues(string(stage)).Add(float64(doc.Rollup.ChildrenSkipped))
}

// RecordCostQuality adds a product document's quantities per provenance.
func (m *Metrics) RecordCostQuality(q domain.CostQuality) {
	if m == nil {
		return
	}
	m.CostQuantity.WithLabelValues(string(domain.ProvenanceDirect)).Add(float64(q.DirectQuantity))
	m.CostQuantity.WithLabelValues(string(domain.ProvenanceSiblingSamePeriod)).Add(float64(q.SiblingSamePeriodQuantity))
	m.CostQuantity.WithLabelValues(string(domain.ProvenanceSiblingHistorical)).Add(float64(q.SiblingHistoricalQuantity))
	m.CostQuantity.WithLabelValues(string(domain.ProvenanceMissing)).Add(float64(q.MissingQuantity))
}

// UpdateCacheStats publishes cumulative resolver cache counters.
func (m *Metrics) UpdateCacheStats(hits, misses int64) {
	if m == nil {
		return
	}
	m.CacheHits.Set(float64(hits))
	m.CacheMisses.Set(float64(misses))
}

// RecordPhase records a phase run.
func (m *Metrics) RecordPhase(phase domain.ScopeKind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.PhaseRunsTotal.WithLabelValues(string(phase), status).Inc()
	m.PhaseDuration.WithLabelValues(string(phase)).Observe(d.Seconds())
}

// RecordDBQuery records datastore call metrics.
func (m *Metrics) RecordDBQuery(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(operation).Observe(d.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordRetry counts a retried datastore call.
func (m *Metrics) RecordRetry(operation string) {
	if m == nil {
		return
	}
	m.FetchRetries.WithLabelValues(operation).Inc()
}

// MarkRunFinished stamps the last successful run time.
func (m *Metrics) MarkRunFinished(at time.Time) {
	if m == nil {
		return
	}
	m.LastSuccessfulRun.Set(float64(at.Unix()))
}
