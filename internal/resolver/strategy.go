package resolver

import (
	"shop-analytics/internal/domain"
	"shop-analytics/internal/lookup"
	"shop-analytics/internal/skukey"
)

// Query asks for the unit cost of a SKU sold in (Year, Month).
type Query struct {
	SKU       string
	Year      int
	Month     int
	ListingID int64 // 0 disables sibling fallbacks
}

// CostLookup reads direct costs by normalized key.
type CostLookup interface {
	Lookup(key string, year, month int) (float64, bool)
}

// SiblingSource enumerates the SKUs that share a listing.
type SiblingSource interface {
	SKUsForListing(listingID int64) []string
}

// Strategy is one tier of the cost fallback chain. Find reports ok=false
// when the tier has no answer; the next tier is then tried.
type Strategy struct {
	Provenance domain.Provenance
	Find       func(q Query) (domain.ResolvedCost, bool)
}

// DirectStrategy reads the queried SKU's own cost for the month.
func DirectStrategy(costs CostLookup) Strategy {
	return Strategy{
		Provenance: domain.ProvenanceDirect,
		Find: func(q Query) (domain.ResolvedCost, bool) {
			return lookupAt(costs, q.SKU, q.Year, q.Month, domain.ProvenanceDirect)
		},
	}
}

// SiblingSamePeriodStrategy tries every listing sibling at the same month.
func SiblingSamePeriodStrategy(costs CostLookup, siblings SiblingSource) Strategy {
	return Strategy{
		Provenance: domain.ProvenanceSiblingSamePeriod,
		Find: func(q Query) (domain.ResolvedCost, bool) {
			for _, s := range siblingsOf(siblings, q) {
				if rc, ok := lookupAt(costs, s, q.Year, q.Month, domain.ProvenanceSiblingSamePeriod); ok {
					return rc, true
				}
			}
			return domain.ResolvedCost{}, false
		},
	}
}

// SiblingHistoricalStrategy walks back up to lookback months, trying every
// sibling at each earlier month before moving further back.
func SiblingHistoricalStrategy(costs CostLookup, siblings SiblingSource, lookback int) Strategy {
	return Strategy{
		Provenance: domain.ProvenanceSiblingHistorical,
		Find: func(q Query) (domain.ResolvedCost, bool) {
			sibs := siblingsOf(siblings, q)
			if len(sibs) == 0 {
				return domain.ResolvedCost{}, false
			}
			for back := 1; back <= lookback; back++ {
				y, m := lookup.MonthsBack(q.Year, q.Month, back)
				for _, s := range sibs {
					if rc, ok := lookupAt(costs, s, y, m, domain.ProvenanceSiblingHistorical); ok {
						return rc, true
					}
				}
			}
			return domain.ResolvedCost{}, false
		},
	}
}

func lookupAt(costs CostLookup, sku string, year, month int, p domain.Provenance) (domain.ResolvedCost, bool) {
	v, ok := costs.Lookup(skukey.Normalize(sku), year, month)
	if !ok || v <= 0 {
		return domain.ResolvedCost{}, false
	}
	return domain.ResolvedCost{Value: v, Provenance: p, SourceSKU: sku, Year: year, Month: month}, true
}

// siblingsOf lists listing SKUs other than the queried one, compared by
// normalized key, without duplicate keys. Order follows the catalog.
func siblingsOf(src SiblingSource, q Query) []string {
	if src == nil || q.ListingID <= 0 {
		return nil
	}
	self := skukey.Normalize(q.SKU)
	seen := map[string]bool{self: true}
	var out []string
	for _, s := range src.SKUsForListing(q.ListingID) {
		k := skukey.Normalize(s)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}
