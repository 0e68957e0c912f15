package metrics

import "shop-analytics/internal/domain"

// AllocateAdSpend splits a listing's ad spend across its SKU documents by
// share of gross revenue and re-derives each document. Documents with no
// revenue receive nothing; when the listing has no revenue nothing is allocated.
func AllocateAdSpend(listingSpend float64, docs []*domain.MetricsDocument) {
	listingGross := 0.0
	for _, d := range docs {
		if d != nil {
			listingGross += d.Revenue.GrossRevenue
		}
	}
	for _, d := range docs {
		if d == nil {
			continue
		}
		share := 0.0
		if listingSpend > 0 && listingGross > 0 && d.Revenue.GrossRevenue > 0 {
			share = listingSpend * d.Revenue.GrossRevenue / listingGross
		}
		d.Costs.AdSpend = share
		Derive(d)
	}
}
