package metrics

import (
	"errors"
	"fmt"

	"shop-analytics/internal/domain"
)

// ErrPeriodMismatch is returned when a child document covers a different period.
var ErrPeriodMismatch = errors.New("child period does not match parent period")

// Policy is the completeness rule applied to children during a rollup.
type Policy struct {
	// MaxMissingQuantity is the largest missing-cost quantity a child may
	// carry and still be included. Negative means unlimited.
	MaxMissingQuantity int
}

// IncludeAll is the policy that never excludes a child.
func IncludeAll() Policy {
	return Policy{MaxMissingQuantity: -1}
}

// RequireComplete excludes any child with missing cost.
func RequireComplete() Policy {
	return Policy{MaxMissingQuantity: 0}
}

// Admits reports whether the child passes the completeness rule.
func (p Policy) Admits(child *domain.MetricsDocument) bool {
	return p.MaxMissingQuantity < 0 || child.CostQuality.MissingQuantity <= p.MaxMissingQuantity
}

// Aggregate builds a new parent document from children. Additive fields and
// samples are summed, then every derived field is recomputed from the sums.
// Children rejected by policy are counted in Rollup.ChildrenSkipped.
// Children are never modified.
func Aggregate(scope domain.Scope, period domain.Period, children []*domain.MetricsDocument, policy Policy) (*domain.MetricsDocument, error) {
	parent := &domain.MetricsDocument{
		Scope:      scope,
		Period:     period,
		PeriodDays: period.Range.Days(),
	}

	for _, child := range children {
		if child == nil {
			continue
		}
		if !samePeriod(child.Period, period) {
			return nil, fmt.Errorf("%w: %s %s vs %s %s", ErrPeriodMismatch,
				child.Period.Type, child.Period.Range.Key(), period.Type, period.Range.Key())
		}
		if !policy.Admits(child) {
			parent.Rollup.ChildrenSkipped++
			continue
		}
		parent.Rollup.ChildrenIncluded++

		if child.Orders.TotalOrders == 0 {
			parent.Cancellations.CancelledOrders += child.Cancellations.CancelledOrders
			MergeInventory(&parent.Inventory, child.Inventory)
			continue
		}
		merge(parent, child)
	}

	sortSamples(parent.Samples.OrderValues)
	Derive(parent)
	return parent, nil
}

func samePeriod(a, b domain.Period) bool {
	return a.Type == b.Type && a.Range.Start.Equal(b.Range.Start) && a.Range.End.Equal(b.Range.End)
}

// merge adds src's absolute fields and samples into dst.
func merge(dst, src *domain.MetricsDocument) {
	r, s := &dst.Revenue, &src.Revenue
	r.GrossRevenue += s.GrossRevenue
	r.ShippingCharged += s.ShippingCharged
	r.TaxCollected += s.TaxCollected
	r.VATCollected += s.VATCollected
	r.DiscountsGiven += s.DiscountsGiven
	r.GiftWrapRevenue += s.GiftWrapRevenue

	dst.Fees.TransactionFees += src.Fees.TransactionFees
	dst.Fees.ProcessingFees += src.Fees.ProcessingFees

	c, sc := &dst.Costs, &src.Costs
	c.TotalCost += sc.TotalCost
	c.ActualShippingCost += sc.ActualShippingCost
	c.ImportDuty += sc.ImportDuty
	c.ImportTax += sc.ImportTax
	c.ShippingProcessingFee += sc.ShippingProcessingFee
	c.AdSpend += sc.AdSpend

	dst.Orders.TotalOrders += src.Orders.TotalOrders
	dst.Orders.TotalItems += src.Orders.TotalItems
	dst.Orders.TotalQuantitySold += src.Orders.TotalQuantitySold

	dst.Operations.ShippedOrders += src.Operations.ShippedOrders
	dst.Operations.GiftOrders += src.Operations.GiftOrders

	dst.Refunds.RefundAmount += src.Refunds.RefundAmount
	dst.Refunds.RefundCount += src.Refunds.RefundCount
	dst.Refunds.OrdersWithRefunds += src.Refunds.OrdersWithRefunds
	dst.Refunds.FeesRetainedOnRefunds += src.Refunds.FeesRetainedOnRefunds

	dst.Cancellations.CancelledOrders += src.Cancellations.CancelledOrders

	q, sq := &dst.CostQuality, &src.CostQuality
	q.DirectQuantity += sq.DirectQuantity
	q.SiblingSamePeriodQuantity += sq.SiblingSamePeriodQuantity
	q.SiblingHistoricalQuantity += sq.SiblingHistoricalQuantity
	q.MissingQuantity += sq.MissingQuantity

	MergeInventory(&dst.Inventory, src.Inventory)
	mergeSamples(&dst.Samples, &src.Samples)
}

// MergeInventory adds the absolute fields of src into dst. Price bounds
// only consider snapshots that have variants.
func MergeInventory(dst *domain.InventoryMetrics, src domain.InventoryMetrics) {
	if src.ActiveVariants > 0 {
		if dst.ActiveVariants == 0 {
			dst.MinPrice, dst.MaxPrice = src.MinPrice, src.MaxPrice
		} else {
			dst.MinPrice = min(dst.MinPrice, src.MinPrice)
			dst.MaxPrice = max(dst.MaxPrice, src.MaxPrice)
		}
	}
	dst.TotalInventory += src.TotalInventory
	dst.ActiveVariants += src.ActiveVariants
	dst.PriceSum += src.PriceSum
}

func mergeSamples(dst, src *domain.Samples) {
	dst.OrderValues = append(dst.OrderValues, src.OrderValues...)
	dst.BuyerOrders = addCounts(dst.BuyerOrders, src.BuyerOrders)
	dst.PaymentMethods = addCounts(dst.PaymentMethods, src.PaymentMethods)
	dst.SKUs = mergeSorted(dst.SKUs, src.SKUs)
	dst.Currencies = mergeSorted(dst.Currencies, src.Currencies)
}

func addCounts(dst, src map[string]int) map[string]int {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]int, len(src))
	}
	for k, n := range src {
		dst[k] += n
	}
	return dst
}
