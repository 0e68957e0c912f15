package metrics

import (
	"sort"

	"shop-analytics/internal/domain"
)

// Derive recomputes every derived field of doc from its absolute fields and
// samples. The calculator and the aggregator both finish with Derive, so a
// ratio is always numerator over denominator at the document's own scope.
func Derive(doc *domain.MetricsDocument) {
	if doc.PeriodDays <= 0 {
		doc.PeriodDays = doc.Period.Range.Days()
	}
	days := float64(doc.PeriodDays)

	rev := &doc.Revenue
	fees := &doc.Fees
	costs := &doc.Costs
	profit := &doc.Profit
	orders := &doc.Orders
	refunds := &doc.Refunds
	quality := &doc.CostQuality

	gross := rev.GrossRevenue
	orderCount := float64(orders.TotalOrders)
	itemCount := float64(orders.TotalItems)

	// Revenue and fees
	fees.TotalFees = fees.TransactionFees + fees.ProcessingFees
	fees.FeeRate = ratio(fees.TotalFees, gross)
	rev.TaxableAmount = gross - rev.TaxCollected - rev.VATCollected
	rev.NetRevenue = gross - fees.TotalFees - rev.TaxCollected - rev.VATCollected
	rev.ProductRevenue = rev.NetRevenue - rev.ShippingCharged - rev.GiftWrapRevenue
	rev.NetRevenueAfterRefunds = rev.NetRevenue - refunds.RefundAmount - refunds.FeesRetainedOnRefunds
	rev.DiscountRate = ratio(rev.DiscountsGiven, gross)
	rev.TakeHomeRate = ratio(rev.NetRevenue, gross)

	// Costs
	costs.TotalCostWithShipping = costs.TotalCost + costs.ActualShippingCost +
		costs.ImportDuty + costs.ImportTax + costs.ShippingProcessingFee
	costs.AvgCostPerItem = ratio(costs.TotalCost, float64(quality.KnownQuantity()))
	if costs.TotalCostWithShipping > 0 {
		costs.CostPerOrder = ratio(costs.TotalCostWithShipping, orderCount)
	} else {
		costs.CostPerOrder = ratio(costs.TotalCost, orderCount)
	}
	costs.AdSpendRate = ratio(costs.AdSpend, gross)
	costs.ROAS = ratio(gross, costs.AdSpend)

	// Profit
	profit.GrossProfit = rev.NetRevenue - costs.TotalCostWithShipping
	profit.ContributionMargin = rev.ProductRevenue - costs.TotalCost
	profit.NetProfit = profit.GrossProfit - refunds.RefundAmount - refunds.FeesRetainedOnRefunds - costs.AdSpend
	profit.ShippingProfit = rev.ShippingCharged - costs.ActualShippingCost
	profit.GrossMargin = ratio(profit.GrossProfit, gross)
	profit.NetMargin = ratio(profit.NetProfit, gross)
	profit.ReturnOnRevenue = ratio(profit.NetProfit, gross)
	if costs.TotalCostWithShipping > 0 {
		profit.MarkupRatio = ratio(profit.GrossProfit, costs.TotalCostWithShipping)
	} else {
		profit.MarkupRatio = ratio(profit.GrossProfit, costs.TotalCost)
	}
	profit.ProfitPerItem = ratio(profit.GrossProfit, itemCount)

	deriveOrders(doc, gross, orderCount, itemCount)
	deriveCustomers(doc, gross, orderCount, days)

	// Operations
	ops := &doc.Operations
	ops.ShippingRate = ratio(float64(ops.ShippedOrders), orderCount)
	ops.GiftRate = ratio(float64(ops.GiftOrders), orderCount)
	ops.OrdersPerDay = ratio(orderCount, days)
	ops.RevenuePerDay = ratio(gross, days)

	// Refunds
	refunds.RefundRateByOrder = ratio(float64(refunds.RefundCount), orderCount)
	refunds.RefundRateByValue = ratio(refunds.RefundAmount, gross)
	refunds.OrderRefundRate = ratio(float64(refunds.OrdersWithRefunds), orderCount)

	// Cancellations
	cancel := &doc.Cancellations
	allOrders := float64(orders.TotalOrders + cancel.CancelledOrders)
	cancel.CancellationRate = ratio(float64(cancel.CancelledOrders), allOrders)
	cancel.CompletionRate = ratio(orderCount, allOrders)

	// Payments
	doc.Payments.PrimaryPaymentMethod = primaryKey(doc.Samples.PaymentMethods)
	doc.Payments.PaymentMethodDiversity = len(doc.Samples.PaymentMethods)

	deriveInventory(doc)

	// Cost quality
	quality.ItemsWithDirectCost = quality.DirectQuantity
	quality.ItemsWithFallbackCost = quality.SiblingSamePeriodQuantity + quality.SiblingHistoricalQuantity
	quality.ItemsMissingCost = quality.MissingQuantity
	known := quality.KnownQuantity()
	sold := known + quality.MissingQuantity
	quality.CostCoveragePercent = ratio(float64(known), float64(sold)) * 100
	quality.HasCompleteCostData = sold > 0 && known == sold
	quality.MultipleCurrencies = len(doc.Samples.Currencies) > 1
}

func deriveOrders(doc *domain.MetricsDocument, gross, orderCount, itemCount float64) {
	orders := &doc.Orders
	samples := doc.Samples.OrderValues

	values := make([]float64, len(samples))
	timestamps := make([]int64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
		timestamps[i] = s.Timestamp
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	orders.UniqueSKUs = len(doc.Samples.SKUs)
	orders.AverageOrderValue = ratio(gross, orderCount)
	orders.MedianOrderValue = computePercentile(sorted, 0.50)
	orders.P25OrderValue = computePercentile(sorted, 0.25)
	orders.P75OrderValue = computePercentile(sorted, 0.75)
	orders.OrderValueStdDev = computeStddev(values, computeMean(values))
	orders.ItemsPerOrder = ratio(itemCount, orderCount)
	orders.RevenuePerItem = ratio(gross, itemCount)

	doc.Operations.AvgHoursBetweenOrders = computeAvgGapHours(timestamps)
}

func deriveCustomers(doc *domain.MetricsDocument, gross, orderCount, days float64) {
	cust := &doc.Customers
	econ := &doc.Economics

	buyerOrders := 0
	for _, n := range doc.Samples.BuyerOrders {
		buyerOrders += n
	}
	cust.UniqueCustomers = len(doc.Samples.BuyerOrders)
	cust.RepeatCustomers = buyerOrders - cust.UniqueCustomers

	unique := float64(cust.UniqueCustomers)
	grossProfit := doc.Profit.GrossProfit
	cust.RetentionRate = ratio(float64(cust.RepeatCustomers), unique)
	cust.RevenuePerCustomer = ratio(gross, unique)
	cust.OrdersPerCustomer = ratio(orderCount, unique)
	cust.ProfitPerCustomer = ratio(grossProfit, unique)

	econ.CustomerLifetimeValue = cust.RevenuePerCustomer * (1 + cust.RetentionRate)
	econ.CustomerAcquisitionCost = ratio(doc.Costs.TotalCost, unique)
	dailyProfitPerCustomer := ratio(ratio(grossProfit, unique), days)
	econ.PaybackPeriodDays = ratio(econ.CustomerAcquisitionCost, dailyProfitPerCustomer)

	econ.PriceElasticity = 0
	items := float64(doc.Orders.TotalItems)
	discounts := doc.Revenue.DiscountsGiven
	if discounts > 0 && gross > 0 && items > 0 {
		avgPrice := gross / items
		priceChange := ratio(discounts/items, avgPrice)
		quantityChange := ratio(items, orderCount)
		if priceChange != 0 {
			econ.PriceElasticity = quantityChange / priceChange
		}
	}
}

func deriveInventory(doc *domain.MetricsDocument) {
	inv := &doc.Inventory
	inv.AvgPrice = ratio(inv.PriceSum, float64(inv.ActiveVariants))
	inv.PriceRange = 0
	if inv.ActiveVariants > 0 {
		inv.PriceRange = inv.MaxPrice - inv.MinPrice
	}
	inv.InventoryTurnover = 0
	inv.StockoutRisk = 0
	if inv.TotalInventory > 0 {
		sold := float64(doc.Orders.TotalQuantitySold)
		inv.InventoryTurnover = sold / float64(inv.TotalInventory)
		inv.StockoutRisk = clamp01(1 - float64(inv.TotalInventory)/max(sold, 1))
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
