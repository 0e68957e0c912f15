package orchestrator

import (
	"context"

	"github.com/sirupsen/logrus"

	"shop-analytics/internal/domain"
)

// classify returns the reason a document is not stored, or "" to store it.
// A document with orders but no resolved cost would report cost-free profit.
func classify(doc *domain.MetricsDocument) string {
	switch {
	case doc.Orders.TotalOrders == 0 && doc.Cancellations.CancelledOrders == 0:
		return ReasonEmpty
	case doc.Orders.TotalOrders > 0 && doc.Costs.TotalCost == 0:
		return ReasonNoCost
	default:
		return ""
	}
}

// persist upserts the storable documents of one entity or group. It reports
// ok=false when the upsert failed and every storable document became a
// skipped unit.
func (o *Orchestrator) persist(ctx context.Context, r *run, stage domain.ScopeKind, docs []*domain.MetricsDocument) (bool, error) {
	var (
		keep          []*domain.MetricsDocument
		empty, noCost int
	)
	for _, doc := range docs {
		switch classify(doc) {
		case ReasonEmpty:
			empty++
		case ReasonNoCost:
			noCost++
			o.log.WithFields(logrus.Fields{
				"scope":        doc.Scope.String(),
				"period_type":  doc.Period.Type,
				"period_start": doc.Period.Range.Start.Format("2006-01-02"),
				"orders":       doc.Orders.TotalOrders,
				"missing_qty":  doc.CostQuality.MissingQuantity,
			}).Warn("document has orders but no cost data, not stored")
		default:
			keep = append(keep, doc)
		}
	}
	r.result.update(stage, func(s *StageSummary) {
		s.DocumentsComputed += len(docs)
		s.DocumentsEmpty += empty
		s.DocumentsNoCost += noCost
	})
	o.metrics.RecordSkipped(stage, ReasonEmpty, empty)
	o.metrics.RecordSkipped(stage, ReasonNoCost, noCost)

	if len(keep) == 0 {
		return true, nil
	}

	reports := make([]*domain.Report, len(keep))
	for i, doc := range keep {
		reports[i] = &domain.Report{Scope: doc.Scope, Period: doc.Period, Document: doc, RunID: o.opts.RunID}
	}

	err := o.retry(ctx, "upsert_reports", o.opts.StoreAttempts, func() error {
		return o.opts.Reports.Upsert(ctx, reports)
	})
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		o.log.WithError(err).WithField("stage", stage).WithField("documents", len(keep)).
			Error("report upsert failed, documents skipped")
		for _, doc := range keep {
			r.result.skip(unit(doc.Scope, doc.Period, ReasonStoreFailed, err))
		}
		o.metrics.RecordSkipped(stage, ReasonStoreFailed, len(keep))
		return false, nil
	}

	if o.opts.Mirror != nil {
		if err := o.opts.Mirror.Upsert(ctx, reports); err != nil {
			o.log.WithError(err).WithField("stage", stage).Warn("report mirror upsert failed")
		}
	}

	r.result.update(stage, func(s *StageSummary) { s.DocumentsStored += len(keep) })
	o.metrics.RecordStored(stage, len(keep))
	for _, doc := range keep {
		switch stage {
		case domain.ScopeProduct:
			r.products.add(doc, true)
			r.result.addCostQuality(doc)
			if doc.Period.Type == o.opts.PeriodTypes[0] {
				o.metrics.RecordCostQuality(doc.CostQuality)
			}
		case domain.ScopeListing:
			r.listings.add(doc, true)
		}
	}
	return true, nil
}

// checkpoint marks a completed entity. Failures only cost a recompute on resume.
func (o *Orchestrator) checkpoint(ctx context.Context, stage domain.ScopeKind, key string) {
	if o.opts.Checkpoints == nil {
		return
	}
	cp := domain.Checkpoint{Stage: stage, EntityKey: key, RunID: o.opts.RunID}
	if err := o.opts.Checkpoints.Mark(ctx, cp); err != nil {
		o.log.WithError(err).WithFields(logrus.Fields{"stage": stage, "entity": key}).Warn("checkpoint failed")
	}
}

// completed returns the checkpointed entities of a stage when resuming.
func (o *Orchestrator) completed(ctx context.Context, stage domain.ScopeKind) (map[string]bool, error) {
	if !o.opts.Resume {
		return nil, nil
	}
	var done map[string]bool
	err := o.retry(ctx, "checkpoints", o.opts.OrderAttempts, func() error {
		var err error
		done, err = o.opts.Checkpoints.Completed(ctx, stage)
		return err
	})
	return done, err
}

// loadStored fills the stage's document set from the report store. With a
// non-nil only, documents of other entities are ignored.
func (o *Orchestrator) loadStored(ctx context.Context, r *run, stage domain.ScopeKind, only map[string]bool) error {
	var target *docSet
	switch stage {
	case domain.ScopeProduct:
		target = r.products
	case domain.ScopeListing:
		target = r.listings
	default:
		return nil
	}

	var reports []*domain.Report
	err := o.retry(ctx, "list_reports", o.opts.OrderAttempts, func() error {
		var err error
		reports, err = o.opts.Reports.List(ctx, stage)
		return err
	})
	if err != nil {
		return err
	}

	loaded := 0
	for _, rep := range reports {
		if only != nil && !only[rep.Scope.Identity()] {
			continue
		}
		target.add(rep.Document, false)
		loaded++
	}
	o.log.WithFields(logrus.Fields{"stage": stage, "documents": loaded}).Info("loaded stored documents")
	return nil
}
