// Package resolver turns a sold line item into a unit cost with provenance
// and a carrier-side shipping, duty and tax cost.
package resolver

import (
	"errors"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"shop-analytics/internal/domain"
	"shop-analytics/internal/refdata"
	"shop-analytics/internal/skukey"
)

// ErrInvalidQuery is returned for queries that cannot name a cost cell.
var ErrInvalidQuery = errors.New("invalid resolver query")

// Defaults for Options.
const (
	DefaultCacheSize      = 5000
	DefaultLookbackMonths = 24
)

// ShippingTables is the read side of the shipping profile indices.
type ShippingTables interface {
	WeightForSKU(sku string) float64
	ZoneFor(country string) int
	PriceFor(weightKg float64, zone int) float64
	USRate(sku string) (refdata.USRate, bool)
}

// Options configures a Resolver.
type Options struct {
	Costs          CostLookup
	Siblings       SiblingSource // nil disables sibling fallbacks
	Shipping       ShippingTables
	CacheSize      int // bounded recent-use cache entries
	LookbackMonths int // sibling historical walk depth
}

type costKey struct {
	key       string
	year      int
	month     int
	listingID int64
}

type shippingProfile struct {
	weight float64
	us     refdata.USRate
	hasUS  bool
}

// Resolver resolves costs through an ordered strategy chain.
// Safe for concurrent use.
type Resolver struct {
	strategies []Strategy
	shipping   ShippingTables

	costCache     *lru.Cache[costKey, domain.ResolvedCost]
	shippingCache *lru.Cache[string, shippingProfile]

	hits   atomic.Int64
	misses atomic.Int64
}

// New builds a resolver with the direct, sibling-same-period and
// sibling-historical strategies, in that order.
func New(opts Options) (*Resolver, error) {
	if opts.Costs == nil {
		return nil, fmt.Errorf("resolver requires a cost lookup")
	}
	if opts.Shipping == nil {
		return nil, fmt.Errorf("resolver requires shipping tables")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.LookbackMonths <= 0 {
		opts.LookbackMonths = DefaultLookbackMonths
	}

	costCache, err := lru.New[costKey, domain.ResolvedCost](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create cost cache: %w", err)
	}
	shippingCache, err := lru.New[string, shippingProfile](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create shipping cache: %w", err)
	}

	strategies := []Strategy{DirectStrategy(opts.Costs)}
	if opts.Siblings != nil {
		strategies = append(strategies,
			SiblingSamePeriodStrategy(opts.Costs, opts.Siblings),
			SiblingHistoricalStrategy(opts.Costs, opts.Siblings, opts.LookbackMonths),
		)
	}

	return &Resolver{
		strategies:    strategies,
		shipping:      opts.Shipping,
		costCache:     costCache,
		shippingCache: shippingCache,
	}, nil
}

// ResolveCost returns the first strategy hit, or a missing cost with value 0.
// A miss after the full chain is not an error.
func (r *Resolver) ResolveCost(q Query) (domain.ResolvedCost, error) {
	if skukey.Normalize(q.SKU) == "" {
		return domain.ResolvedCost{}, fmt.Errorf("%w: empty sku", ErrInvalidQuery)
	}
	if q.Month < 1 || q.Month > 12 {
		return domain.ResolvedCost{}, fmt.Errorf("%w: month %d", ErrInvalidQuery, q.Month)
	}

	ck := costKey{key: skukey.Normalize(q.SKU), year: q.Year, month: q.Month, listingID: q.ListingID}
	if rc, ok := r.costCache.Get(ck); ok {
		r.hits.Add(1)
		return rc, nil
	}
	r.misses.Add(1)

	rc := domain.ResolvedCost{Provenance: domain.ProvenanceMissing}
	for _, s := range r.strategies {
		if found, ok := s.Find(q); ok {
			rc = found
			break
		}
	}
	r.costCache.Add(ck, rc)
	return rc, nil
}

// ResolveShipping prices one order line. US destinations use the flat
// per-unit table with rate-based duty/tax preferred over flat amounts;
// everything else prices the line's total weight in the destination zone.
func (r *Resolver) ResolveShipping(sku string, quantity int, unitPrice float64, country string) (domain.ShippingCost, error) {
	if quantity < 0 {
		return domain.ShippingCost{}, fmt.Errorf("%w: negative quantity %d", ErrInvalidQuery, quantity)
	}
	// A line with no units ships no parcel, not one at the lowest tier.
	if quantity == 0 || skukey.Normalize(sku) == "" {
		return domain.ShippingCost{}, nil
	}

	p := r.profile(sku)
	q := float64(quantity)

	if refdata.IsUSDestination(country) {
		if !p.hasUS {
			return domain.ShippingCost{}, nil
		}
		sc := domain.ShippingCost{
			Shipping:      p.us.FedexCharge * q,
			ProcessingFee: p.us.ProcessingFee * q,
		}
		switch {
		case p.us.DutyRate > 0:
			sc.Duty = unitPrice * p.us.DutyRate * q
		case p.us.DutyAmount > 0:
			sc.Duty = p.us.DutyAmount * q
		}
		switch {
		case p.us.TaxRate > 0:
			sc.ImportTax = unitPrice * p.us.TaxRate * q
		case p.us.TaxAmount > 0:
			sc.ImportTax = p.us.TaxAmount * q
		}
		return sc, nil
	}

	zone := r.shipping.ZoneFor(country)
	return domain.ShippingCost{Shipping: r.shipping.PriceFor(p.weight*q, zone)}, nil
}

func (r *Resolver) profile(sku string) shippingProfile {
	if p, ok := r.shippingCache.Get(sku); ok {
		r.hits.Add(1)
		return p
	}
	r.misses.Add(1)
	us, hasUS := r.shipping.USRate(sku)
	p := shippingProfile{weight: r.shipping.WeightForSKU(sku), us: us, hasUS: hasUS}
	r.shippingCache.Add(sku, p)
	return p
}

// CacheStats returns cumulative cache hits and misses.
func (r *Resolver) CacheStats() (hits, misses int64) {
	return r.hits.Load(), r.misses.Load()
}
