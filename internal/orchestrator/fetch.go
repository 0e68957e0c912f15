package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"shop-analytics/internal/domain"
	"shop-analytics/internal/metrics"
	"shop-analytics/internal/period"
	"shop-analytics/internal/storage"
)

// retry runs fn with exponential backoff while it fails with a transient
// error, for at most attempts calls.
func (o *Orchestrator) retry(ctx context.Context, op string, attempts int, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.opts.RetryInterval
	b.MaxElapsedTime = 0

	var policy backoff.BackOff = backoff.WithMaxRetries(b, uint64(attempts-1))
	policy = backoff.WithContext(policy, ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		start := time.Now()
		err := fn()
		o.metrics.RecordDBQuery(op, time.Since(start), err)
		if err == nil {
			return nil
		}
		if !storage.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		o.metrics.RecordRetry(op)
		o.log.WithError(err).WithFields(logrus.Fields{
			"operation": op,
			"attempt":   attempt,
			"wait":      wait,
		}).Warn("transient datastore error, retrying")
	})
}

// job describes one entity whose documents are computed from its own orders.
type job struct {
	scope     domain.Scope
	filter    storage.OrderFilter
	keep      func(domain.LineItem) bool // optional line item filter
	inventory domain.InventoryMetrics
	adSpend   func(ctx context.Context, r domain.DateRange) (float64, error) // nil for none
	periods   map[domain.PeriodType][]domain.Period                          // nil for every run period
}

// computed is the outcome of one entity across all period types.
type computed struct {
	docs    []*domain.MetricsDocument
	skipped []SkippedUnit
}

// compute fetches the entity's orders in batches of periods, buckets them
// into periods and runs the calculator per period. Failed batches become
// skipped units; only context cancellation is returned as an error.
func (o *Orchestrator) compute(ctx context.Context, r *run, j job) (computed, error) {
	var out computed
	log := o.log.WithField("scope", j.scope.String())

	periods := r.periods
	if j.periods != nil {
		periods = j.periods
	}

	for _, t := range o.opts.PeriodTypes {
		for _, chunk := range period.Chunk(periods[t], o.opts.BatchSize) {
			ranges := make([]domain.DateRange, len(chunk))
			for i, p := range chunk {
				ranges[i] = p.Range
			}

			var orders []domain.Order
			err := o.retry(ctx, "fetch_orders", o.opts.OrderAttempts, func() error {
				var err error
				orders, err = o.opts.Orders.FetchOrders(ctx, j.filter, ranges)
				return err
			})
			if err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				log.WithError(err).WithFields(logrus.Fields{
					"period_type":  t,
					"period_start": chunk[0].Range.Start.Format(time.DateOnly),
					"periods":      len(chunk),
				}).Error("order fetch failed, skipping periods")
				for _, p := range chunk {
					out.skipped = append(out.skipped, unit(j.scope, p, ReasonFetchFailed, err))
				}
				continue
			}

			if j.keep != nil {
				orders = filterLines(orders, j.keep)
			}
			buckets := bucket(chunk, orders)

			for i, p := range chunk {
				in := metrics.Inputs{Inventory: j.inventory}
				if j.adSpend != nil && len(buckets[i]) > 0 {
					var spend float64
					err := o.retry(ctx, "ad_spend", o.opts.AdSpendAttempts, func() error {
						var err error
						spend, err = j.adSpend(ctx, p.Range)
						return err
					})
					if err != nil {
						if ctx.Err() != nil {
							return out, ctx.Err()
						}
						log.WithError(err).WithField("period_start", p.Range.Start.Format(time.DateOnly)).
							Error("ad spend lookup failed, skipping period")
						out.skipped = append(out.skipped, unit(j.scope, p, ReasonAdSpend, err))
						continue
					}
					in.AdSpend = spend
				}

				doc := o.opts.Calculator.Compute(j.scope, p, buckets[i], in)
				o.metrics.RecordComputed(j.scope.Kind)
				out.docs = append(out.docs, doc)
			}
		}
	}
	return out, nil
}

// bucket assigns each order to the period containing it. Periods of one
// type never overlap, so an order lands in at most one bucket.
func bucket(periods []domain.Period, orders []domain.Order) [][]domain.Order {
	sorted := make([]int, len(periods))
	for i := range sorted {
		sorted[i] = i
	}
	sort.Slice(sorted, func(a, b int) bool {
		return periods[sorted[a]].Range.Start.Before(periods[sorted[b]].Range.Start)
	})

	out := make([][]domain.Order, len(periods))
	for _, ord := range orders {
		n := sort.Search(len(sorted), func(k int) bool {
			return periods[sorted[k]].Range.Start.After(ord.CreatedAt)
		})
		if n == 0 {
			continue
		}
		idx := sorted[n-1]
		if periods[idx].Range.Contains(ord.CreatedAt) {
			out[idx] = append(out[idx], ord)
		}
	}
	return out
}

// filterLines keeps the line items accepted by keep and drops orders left
// with none.
func filterLines(orders []domain.Order, keep func(domain.LineItem) bool) []domain.Order {
	out := orders[:0:0]
	for _, ord := range orders {
		var lines []domain.LineItem
		for _, li := range ord.LineItems {
			if keep(li) {
				lines = append(lines, li)
			}
		}
		if len(lines) == 0 {
			continue
		}
		ord.LineItems = lines
		out = append(out, ord)
	}
	return out
}

func unit(scope domain.Scope, p domain.Period, reason string, err error) SkippedUnit {
	u := SkippedUnit{Stage: scope.Kind, Entity: scope.Identity(), Period: p, Reason: reason}
	if err != nil {
		u.Error = err.Error()
	}
	return u
}
