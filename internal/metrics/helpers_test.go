package metrics

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"shop-analytics/internal/domain"
	"shop-analytics/internal/resolver"
)

// fakeResolver prices SKUs from fixed per-unit tables.
type fakeResolver struct {
	costs    map[string]domain.ResolvedCost
	shipping map[string]domain.ShippingCost // per unit
	costErr  error
}

func (f *fakeResolver) ResolveCost(q resolver.Query) (domain.ResolvedCost, error) {
	if f.costErr != nil {
		return domain.ResolvedCost{}, f.costErr
	}
	if rc, ok := f.costs[q.SKU]; ok {
		return rc, nil
	}
	return domain.ResolvedCost{Provenance: domain.ProvenanceMissing}, nil
}

func (f *fakeResolver) ResolveShipping(sku string, quantity int, _ float64, _ string) (domain.ShippingCost, error) {
	per := f.shipping[sku]
	q := float64(quantity)
	return domain.ShippingCost{
		Shipping:      per.Shipping * q,
		Duty:          per.Duty * q,
		ImportTax:     per.ImportTax * q,
		ProcessingFee: per.ProcessingFee * q,
	}, nil
}

func direct(v float64) domain.ResolvedCost {
	return domain.ResolvedCost{Value: v, Provenance: domain.ProvenanceDirect}
}

func monthPeriod(year int, month time.Month) domain.Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Second)
	return domain.Period{Type: domain.PeriodMonthly, Range: domain.DateRange{Start: start, End: end}}
}

func at(day, hour int) time.Time {
	return time.Date(2025, time.March, day, hour, 0, 0, 0, time.UTC)
}

func order(id int64, created time.Time, total float64, items ...domain.LineItem) domain.Order {
	count := 0
	for _, li := range items {
		count += li.Quantity
	}
	return domain.Order{
		OrderID:    id,
		CreatedAt:  created,
		GrandTotal: total,
		ItemCount:  count,
		Status:     "paid",
		Country:    "US",
		LineItems:  items,
	}
}

func line(sku string, qty int, price float64) domain.LineItem {
	return domain.LineItem{SKU: sku, Quantity: qty, UnitPrice: price, ListingID: 77}
}

func newTestCalculator(res CostResolver) (*Calculator, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return NewCalculator(DefaultFees(), res, log), hook
}
