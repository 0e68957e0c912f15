package metrics

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"shop-analytics/internal/domain"
	"shop-analytics/internal/resolver"
	"shop-analytics/internal/skukey"
)

// Marketplace fee defaults.
const (
	DefaultTransactionFeeRate = 0.065
	DefaultProcessingFeeRate  = 0.03
	DefaultProcessingFeeFixed = 0.25
)

// FeeSchedule is the configured marketplace fee model.
// Fees are estimated from rates, not read from fee line items.
type FeeSchedule struct {
	TransactionRate float64 // on taxable amount; kept by the marketplace on refunds
	ProcessingRate  float64 // on taxable amount
	ProcessingFixed float64 // per completed order
}

// DefaultFees returns the standard fee schedule.
func DefaultFees() FeeSchedule {
	return FeeSchedule{
		TransactionRate: DefaultTransactionFeeRate,
		ProcessingRate:  DefaultProcessingFeeRate,
		ProcessingFixed: DefaultProcessingFeeFixed,
	}
}

// CostResolver resolves unit costs and per-line shipping costs.
type CostResolver interface {
	ResolveCost(q resolver.Query) (domain.ResolvedCost, error)
	ResolveShipping(sku string, quantity int, unitPrice float64, country string) (domain.ShippingCost, error)
}

// Inputs are per-entity values that do not come from orders.
type Inputs struct {
	Inventory domain.InventoryMetrics // snapshot absolutes; derived fields are ignored
	AdSpend   float64                 // spend attributed to this entity and period
}

// Calculator computes a MetricsDocument from the raw orders of one entity and period.
// It is safe for concurrent use.
type Calculator struct {
	fees     FeeSchedule
	resolver CostResolver
	log      logrus.FieldLogger

	mu     sync.Mutex
	warned map[string]struct{}
}

// NewCalculator creates a calculator.
func NewCalculator(fees FeeSchedule, res CostResolver, log logrus.FieldLogger) *Calculator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Calculator{
		fees:     fees,
		resolver: res,
		log:      log.WithField("component", "calculator"),
		warned:   make(map[string]struct{}),
	}
}

// Fees returns the calculator's fee schedule.
func (c *Calculator) Fees() FeeSchedule {
	return c.fees
}

// Compute builds the document for orders already filtered to scope and period.
// It never fails: an empty or all-cancelled input yields a document carrying
// only cancellation counts and the inventory snapshot, and a line the resolver cannot price counts as
// missing cost.
func (c *Calculator) Compute(scope domain.Scope, period domain.Period, orders []domain.Order, in Inputs) *domain.MetricsDocument {
	doc := &domain.MetricsDocument{
		Scope:      scope,
		Period:     period,
		PeriodDays: period.Range.Days(),
	}

	completed := make([]*domain.Order, 0, len(orders))
	for i := range orders {
		if orders[i].IsCancelled() {
			doc.Cancellations.CancelledOrders++
			continue
		}
		completed = append(completed, &orders[i])
	}
	if len(completed) == 0 {
		doc.Inventory = snapshot(in.Inventory)
		Derive(doc)
		return doc
	}

	currencies := make(map[string]struct{})
	skus := make(map[string]struct{})
	samples := &doc.Samples
	samples.OrderValues = make([]domain.OrderSample, 0, len(completed))

	rev := &doc.Revenue
	for _, o := range completed {
		rev.GrossRevenue += o.GrandTotal
		rev.ShippingCharged += o.ShippingCharged
		rev.TaxCollected += o.TaxCollected
		rev.VATCollected += o.VATCollected
		rev.DiscountsGiven += o.Discount
		rev.GiftWrapRevenue += o.GiftWrap

		doc.Orders.TotalOrders++
		doc.Orders.TotalItems += o.ItemCount
		if o.IsShipped {
			doc.Operations.ShippedOrders++
		}
		if o.IsGift {
			doc.Operations.GiftOrders++
		}

		if len(o.Refunds) > 0 {
			doc.Refunds.OrdersWithRefunds++
			doc.Refunds.RefundCount += len(o.Refunds)
			doc.Refunds.RefundAmount += o.RefundTotal()
		}

		currencies[o.SettlementCurrency()] = struct{}{}
		samples.OrderValues = append(samples.OrderValues, domain.OrderSample{
			Value:     o.GrandTotal,
			Timestamp: o.CreatedAt.Unix(),
		})
		if o.BuyerID != "" {
			if samples.BuyerOrders == nil {
				samples.BuyerOrders = make(map[string]int)
			}
			samples.BuyerOrders[o.BuyerID]++
		}
		if o.PaymentMethod != "" {
			if samples.PaymentMethods == nil {
				samples.PaymentMethods = make(map[string]int)
			}
			samples.PaymentMethods[o.PaymentMethod]++
		}

		c.addLineItems(doc, scope, o, skus)
	}
	sortSamples(samples.OrderValues)
	samples.SKUs = sortedSet(skus)
	samples.Currencies = sortedSet(currencies)

	if len(currencies) > 1 {
		c.warnOnce(fmt.Sprintf("currency|%s|%s", scope, period.Key()), func() {
			c.log.WithFields(logrus.Fields{
				"scope":        scope.String(),
				"period_type":  period.Type,
				"period_start": period.Range.Start.Format("2006-01-02"),
				"currencies":   samples.Currencies,
			}).Warn("multiple settlement currencies in one period; amounts are summed without conversion")
		})
	}

	taxable := rev.GrossRevenue - rev.TaxCollected - rev.VATCollected
	doc.Fees.TransactionFees = taxable * c.fees.TransactionRate
	doc.Fees.ProcessingFees = taxable*c.fees.ProcessingRate + float64(doc.Orders.TotalOrders)*c.fees.ProcessingFixed
	doc.Refunds.FeesRetainedOnRefunds = doc.Refunds.RefundAmount * c.fees.TransactionRate

	doc.Costs.AdSpend = in.AdSpend
	doc.Inventory = snapshot(in.Inventory)

	Derive(doc)

	if q := doc.CostQuality; q.MissingQuantity > 0 {
		c.log.WithFields(logrus.Fields{
			"scope":        scope.String(),
			"period_type":  period.Type,
			"period_start": period.Range.Start.Format("2006-01-02"),
			"coverage":     fmt.Sprintf("%.1f%%", q.CostCoveragePercent),
		}).Debug("incomplete cost data")
	}
	return doc
}

// snapshot keeps the absolute inventory fields; derived ones are recomputed.
func snapshot(inv domain.InventoryMetrics) domain.InventoryMetrics {
	return domain.InventoryMetrics{
		TotalInventory: inv.TotalInventory,
		ActiveVariants: inv.ActiveVariants,
		PriceSum:       inv.PriceSum,
		MinPrice:       inv.MinPrice,
		MaxPrice:       inv.MaxPrice,
	}
}

// addLineItems resolves cost and shipping for every SKU line of one order.
func (c *Calculator) addLineItems(doc *domain.MetricsDocument, scope domain.Scope, o *domain.Order, skus map[string]struct{}) {
	created := o.CreatedAt.UTC()
	year, month := created.Year(), int(created.Month())

	for _, li := range o.LineItems {
		if li.SKU == "" || li.Quantity < 0 {
			continue
		}
		qty := li.Quantity
		listingID := li.ListingID
		if listingID == 0 {
			listingID = scope.ListingID
		}

		rc, err := c.resolver.ResolveCost(resolver.Query{SKU: li.SKU, Year: year, Month: month, ListingID: listingID})
		if err != nil {
			c.log.WithError(err).WithField("sku", li.SKU).Debug("cost resolution failed")
			rc = domain.ResolvedCost{Provenance: domain.ProvenanceMissing}
		}
		if rc.Value <= 0 {
			rc.Provenance = domain.ProvenanceMissing
			c.warnOnce(fmt.Sprintf("cost|%s|%d|%d", li.SKU, year, month), func() {
				c.log.WithFields(logrus.Fields{
					"sku":   li.SKU,
					"year":  year,
					"month": month,
				}).Debug("no cost found after fallback chain")
			})
		}
		doc.CostQuality.Add(rc.Provenance, qty)
		if rc.Value > 0 {
			doc.Costs.TotalCost += rc.Value * float64(qty)
		}
		doc.Orders.TotalQuantitySold += qty

		if key := skukey.Normalize(li.SKU); key != "" {
			skus[key] = struct{}{}
		}

		sc, err := c.resolver.ResolveShipping(li.SKU, qty, li.UnitPrice, o.Country)
		if err != nil {
			c.log.WithError(err).WithField("sku", li.SKU).Debug("shipping resolution failed")
			continue
		}
		doc.Costs.ActualShippingCost += sc.Shipping
		doc.Costs.ImportDuty += sc.Duty
		doc.Costs.ImportTax += sc.ImportTax
		doc.Costs.ShippingProcessingFee += sc.ProcessingFee
	}
}

// warnOnce runs fn the first time key is seen.
func (c *Calculator) warnOnce(key string, fn func()) {
	c.mu.Lock()
	_, seen := c.warned[key]
	if !seen {
		c.warned[key] = struct{}{}
	}
	c.mu.Unlock()
	if !seen {
		fn()
	}
}
