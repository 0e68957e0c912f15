package orchestrator

import (
	"context"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"shop-analytics/internal/domain"
	"shop-analytics/internal/metrics"
	"shop-analytics/internal/skukey"
	"shop-analytics/internal/storage"
)

const shopEntity = "shop"

// forEach runs fn for 0..n-1 with at most MaxConcurrent calls in flight.
// The first error cancels the rest.
func (o *Orchestrator) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	sem := semaphore.NewWeighted(int64(o.opts.MaxConcurrent))
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		i := i
		g.Go(func() error {
			defer sem.Release(1)
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// productGroup is the SKUs owned by one listing. Ad spend is allocated
// within a group, so a group is computed and stored as a unit.
type productGroup struct {
	listingID int64
	skus      []string
}

func productGroups(c *domain.Catalog) []productGroup {
	var groups []productGroup
	for _, id := range c.Listings() {
		g := productGroup{listingID: id, skus: c.OwnedSKUs(id)}
		if len(g.skus) > 0 {
			groups = append(groups, g)
		}
	}
	return groups
}

// productJob builds the order query of one SKU. Without product ids the
// listing's orders are fetched and narrowed to the SKU's lines.
func productJob(r *run, sku string) job {
	j := job{scope: domain.ProductScope(sku), inventory: r.skuInv[sku]}
	if ids := r.catalog.ProductIDsForSKU(sku); len(ids) > 0 {
		j.filter = storage.OrderFilter{ProductIDs: ids}
		return j
	}
	j.filter = storage.OrderFilter{ListingID: r.catalog.ListingForSKU(sku)}
	j.keep = func(li domain.LineItem) bool { return skukey.Base(li.SKU) == sku }
	return j
}

// listingJob builds the order query of every line attributed to the
// listing: products of the SKUs it owns and its products without a SKU.
// Lines of unknown products count for the listing they were sold under.
func (o *Orchestrator) listingJob(r *run, listingID int64) job {
	j := job{scope: domain.ListingScope(listingID), inventory: r.listingInv[listingID]}
	if ids := r.catalog.OwnedProductIDs(listingID); len(ids) > 0 {
		j.filter = storage.OrderFilter{ProductIDs: ids}
	} else {
		j.filter = storage.OrderFilter{ListingID: listingID}
		j.keep = func(li domain.LineItem) bool {
			owner, ok := r.catalog.OwnerOfProduct(li.ProductID)
			return !ok || owner == listingID
		}
	}
	if o.opts.AdSpend != nil {
		j.adSpend = func(ctx context.Context, dr domain.DateRange) (float64, error) {
			return o.opts.AdSpend.ListingSpend(ctx, listingID, dr)
		}
	}
	return j
}

// shopJob builds the query of every order in the shop.
func (o *Orchestrator) shopJob(r *run) job {
	j := job{scope: domain.ShopScope()}
	for _, id := range r.catalog.Listings() {
		metrics.MergeInventory(&j.inventory, r.listingInv[id])
	}
	if o.opts.AdSpend != nil {
		j.adSpend = o.opts.AdSpend.ShopSpend
	}
	return j
}

func (o *Orchestrator) productPhase(ctx context.Context, r *run) error {
	done, err := o.completed(ctx, domain.ScopeProduct)
	if err != nil {
		return err
	}

	groups := productGroups(r.catalog)
	var pending []productGroup
	resumed := 0
	for _, g := range groups {
		if allDone(done, g.skus) {
			resumed += len(g.skus)
			continue
		}
		pending = append(pending, g)
	}
	r.result.update(domain.ScopeProduct, func(s *StageSummary) {
		s.Entities = len(r.catalog.SKUs())
		s.EntitiesResumed = resumed
	})
	if resumed > 0 {
		if err := o.loadStored(ctx, r, domain.ScopeProduct, done); err != nil {
			return err
		}
	}

	return o.forEach(ctx, len(pending), func(ctx context.Context, i int) error {
		return o.runProductGroup(ctx, r, pending[i])
	})
}

func (o *Orchestrator) runProductGroup(ctx context.Context, r *run, g productGroup) error {
	log := o.log.WithField("listing_id", g.listingID)

	var (
		docs    []*domain.MetricsDocument
		skipped []SkippedUnit
	)
	for _, sku := range g.skus {
		c, err := o.compute(ctx, r, productJob(r, sku))
		if err != nil {
			return err
		}
		docs = append(docs, c.docs...)
		skipped = append(skipped, c.skipped...)
	}

	if o.opts.AdSpend != nil {
		var lost []SkippedUnit
		docs, lost = o.allocateAdSpend(ctx, g.listingID, docs)
		if err := ctx.Err(); err != nil {
			return err
		}
		skipped = append(skipped, lost...)
	}

	for _, u := range skipped {
		r.result.skip(u)
		o.metrics.RecordSkipped(domain.ScopeProduct, u.Reason, 1)
	}

	ok, err := o.persist(ctx, r, domain.ScopeProduct, docs)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	failed := make(map[string]bool)
	for _, u := range skipped {
		failed[u.Entity] = true
	}
	for _, sku := range g.skus {
		if !failed[sku] {
			o.checkpoint(ctx, domain.ScopeProduct, sku)
		}
	}
	log.WithFields(logrus.Fields{"skus": len(g.skus), "documents": len(docs)}).Debug("product group done")
	return nil
}

// allocateAdSpend splits the listing's spend of each period across the
// group's documents of that period. Periods whose spend cannot be read are
// dropped and returned as skipped units.
func (o *Orchestrator) allocateAdSpend(ctx context.Context, listingID int64, docs []*domain.MetricsDocument) ([]*domain.MetricsDocument, []SkippedUnit) {
	byPeriod := make(map[string][]*domain.MetricsDocument)
	var order []string
	for _, d := range docs {
		key := d.Period.Key()
		if _, ok := byPeriod[key]; !ok {
			order = append(order, key)
		}
		byPeriod[key] = append(byPeriod[key], d)
	}

	var (
		kept    []*domain.MetricsDocument
		skipped []SkippedUnit
	)
	for _, key := range order {
		group := byPeriod[key]
		p := group[0].Period

		hasOrders := false
		for _, d := range group {
			if d.Orders.TotalOrders > 0 {
				hasOrders = true
				break
			}
		}
		if !hasOrders {
			kept = append(kept, group...)
			continue
		}

		var spend float64
		err := o.retry(ctx, "ad_spend", o.opts.AdSpendAttempts, func() error {
			var err error
			spend, err = o.opts.AdSpend.ListingSpend(ctx, listingID, p.Range)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			o.log.WithError(err).WithFields(logrus.Fields{
				"listing_id":   listingID,
				"period_type":  p.Type,
				"period_start": p.Range.Start.Format("2006-01-02"),
			}).Error("ad spend lookup failed, skipping period")
			for _, d := range group {
				if classify(d) != "" {
					kept = append(kept, d) // not stored either way
					continue
				}
				skipped = append(skipped, unit(d.Scope, p, ReasonAdSpend, err))
			}
			continue
		}

		metrics.AllocateAdSpend(spend, group)
		kept = append(kept, group...)
	}
	return kept, skipped
}

func (o *Orchestrator) listingPhase(ctx context.Context, r *run) error {
	done, err := o.completed(ctx, domain.ScopeListing)
	if err != nil {
		return err
	}

	var pending []int64
	for _, id := range r.catalog.Listings() {
		if done[strconv.FormatInt(id, 10)] {
			continue
		}
		pending = append(pending, id)
	}
	resumed := len(r.catalog.Listings()) - len(pending)
	r.result.update(domain.ScopeListing, func(s *StageSummary) {
		s.Entities = len(r.catalog.Listings())
		s.EntitiesResumed = resumed
	})
	if resumed > 0 {
		if err := o.loadStored(ctx, r, domain.ScopeListing, done); err != nil {
			return err
		}
	}

	return o.forEach(ctx, len(pending), func(ctx context.Context, i int) error {
		return o.runListing(ctx, r, pending[i])
	})
}

func (o *Orchestrator) runListing(ctx context.Context, r *run, listingID int64) error {
	scope := domain.ListingScope(listingID)
	owned := r.catalog.OwnedSKUs(listingID)

	// Without owned SKUs there are no product documents to roll up.
	if o.opts.Direct || len(owned) == 0 {
		c, err := o.compute(ctx, r, o.listingJob(r, listingID))
		if err != nil {
			return err
		}
		return o.finishEntity(ctx, r, scope, c)
	}

	// Products without a SKU have no product document; their lines are
	// computed here and rolled up next to the SKU documents under the same
	// storage rule.
	var (
		bare        *docSet
		bareSkipped []SkippedUnit
	)
	if ids := r.catalog.BareProductIDs(listingID); len(ids) > 0 {
		c, err := o.compute(ctx, r, job{scope: scope, filter: storage.OrderFilter{ProductIDs: ids}})
		if err != nil {
			return err
		}
		bare = newDocSet()
		for _, d := range c.docs {
			if classify(d) == "" {
				bare.add(d, false)
			}
		}
		bareSkipped = c.skipped
	}

	c, thin := o.rollup(r, scope, o.opts.ListingPolicy, func(p domain.Period) []*domain.MetricsDocument {
		var children []*domain.MetricsDocument
		for _, sku := range owned {
			if d := r.products.get(domain.ProductScope(sku), p); d != nil {
				children = append(children, d)
			}
		}
		if bare != nil {
			if d := bare.get(scope, p); d != nil {
				children = append(children, d)
			}
		}
		return children
	}, nil)
	c.skipped = append(c.skipped, bareSkipped...)

	c, err := o.fillThin(ctx, r, c, thin, o.listingJob(r, listingID))
	if err != nil {
		return err
	}
	return o.finishEntity(ctx, r, scope, c)
}

func (o *Orchestrator) shopPhase(ctx context.Context, r *run) error {
	done, err := o.completed(ctx, domain.ScopeShop)
	if err != nil {
		return err
	}
	r.result.update(domain.ScopeShop, func(s *StageSummary) { s.Entities = 1 })
	if done[shopEntity] {
		r.result.update(domain.ScopeShop, func(s *StageSummary) { s.EntitiesResumed = 1 })
		return nil
	}

	scope := domain.ShopScope()
	if o.opts.Direct {
		c, err := o.compute(ctx, r, o.shopJob(r))
		if err != nil {
			return err
		}
		return o.finishEntity(ctx, r, scope, c)
	}

	listings := r.catalog.Listings()
	c, thin := o.rollup(r, scope, o.opts.ShopPolicy, func(p domain.Period) []*domain.MetricsDocument {
		var children []*domain.MetricsDocument
		for _, id := range listings {
			if d := r.listings.get(domain.ListingScope(id), p); d != nil {
				children = append(children, d)
			}
		}
		return children
	}, func(child *domain.MetricsDocument) {
		r.result.excludeFromShop(child.Scope.ListingID)
	})

	if c, err = o.fillThin(ctx, r, c, thin, o.shopJob(r)); err != nil {
		return err
	}
	return o.finishEntity(ctx, r, scope, c)
}

// rollup aggregates the children of every period. Periods without children
// produce no document. excluded is called for each child the policy rejects.
// Periods where no child has a completed order are returned as thin.
func (o *Orchestrator) rollup(r *run, scope domain.Scope, policy metrics.Policy,
	children func(domain.Period) []*domain.MetricsDocument, excluded func(*domain.MetricsDocument)) (computed, []domain.Period) {
	var (
		out  computed
		thin []domain.Period
	)
	for _, t := range o.opts.PeriodTypes {
		for _, p := range r.periods[t] {
			kids := children(p)
			if !hasOrders(kids) {
				thin = append(thin, p)
			}
			if len(kids) == 0 {
				continue
			}
			doc, err := metrics.Aggregate(scope, p, kids, policy)
			if err != nil {
				o.log.WithError(err).WithField("scope", scope.String()).Error("rollup failed")
				out.skipped = append(out.skipped, unit(scope, p, ReasonRollupFailed, err))
				continue
			}
			if excluded != nil && doc.Rollup.ChildrenSkipped > 0 {
				for _, k := range kids {
					if !policy.Admits(k) {
						excluded(k)
					}
				}
			}
			o.metrics.RecordComputed(scope.Kind)
			o.metrics.RecordRollup(scope.Kind, doc)
			r.result.update(scope.Kind, func(s *StageSummary) { s.ChildrenSkipped += doc.Rollup.ChildrenSkipped })
			out.docs = append(out.docs, doc)
		}
	}
	return out, thin
}

func hasOrders(docs []*domain.MetricsDocument) bool {
	for _, d := range docs {
		if d.Orders.TotalOrders > 0 {
			return true
		}
	}
	return false
}

// fillThin computes the thin periods of a rollup directly from the entity's
// orders. A direct document replaces the rolled up one. When the direct
// computation of a period fails, an existing rolled up document is kept.
func (o *Orchestrator) fillThin(ctx context.Context, r *run, c computed, thin []domain.Period, j job) (computed, error) {
	if len(thin) == 0 {
		return c, nil
	}
	j.periods = make(map[domain.PeriodType][]domain.Period)
	for _, p := range thin {
		j.periods[p.Type] = append(j.periods[p.Type], p)
	}

	direct, err := o.compute(ctx, r, j)
	if err != nil {
		return c, err
	}

	index := make(map[string]int, len(c.docs))
	for i, d := range c.docs {
		index[d.Period.Key()] = i
	}
	for _, d := range direct.docs {
		if i, ok := index[d.Period.Key()]; ok {
			c.docs[i] = d
			continue
		}
		c.docs = append(c.docs, d)
	}
	for _, u := range direct.skipped {
		if _, ok := index[u.Period.Key()]; ok {
			o.log.WithFields(logrus.Fields{
				"scope":        j.scope.String(),
				"period_type":  u.Period.Type,
				"period_start": u.Period.Range.Start.Format("2006-01-02"),
			}).Warn("direct computation failed, keeping rolled up document")
			continue
		}
		c.skipped = append(c.skipped, u)
	}

	o.log.WithFields(logrus.Fields{
		"scope":     j.scope.String(),
		"periods":   len(thin),
		"documents": len(direct.docs),
	}).Debug("thin periods computed directly")
	return c, nil
}

// finishEntity records skipped units, stores documents and checkpoints the
// entity when nothing was skipped.
func (o *Orchestrator) finishEntity(ctx context.Context, r *run, scope domain.Scope, c computed) error {
	for _, u := range c.skipped {
		r.result.skip(u)
		o.metrics.RecordSkipped(scope.Kind, u.Reason, 1)
	}
	ok, err := o.persist(ctx, r, scope.Kind, c.docs)
	if err != nil {
		return err
	}
	if ok && len(c.skipped) == 0 {
		o.checkpoint(ctx, scope.Kind, scope.Identity())
	}
	return nil
}

func allDone(done map[string]bool, keys []string) bool {
	if len(done) == 0 {
		return false
	}
	for _, k := range keys {
		if !done[k] {
			return false
		}
	}
	return true
}
