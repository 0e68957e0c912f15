package domain

// MetricsDocument is the computed report for one (scope, period) pair.
// Absolute fields are summed under aggregation; every ratio is re-derived
// from the summed absolutes and samples, never combined directly.
type MetricsDocument struct {
	Scope      Scope  `json:"-"`
	Period     Period `json:"-"`
	PeriodDays int    `json:"periodDays"`

	Revenue       RevenueMetrics      `json:"revenue"`
	Fees          FeeMetrics          `json:"fees"`
	Costs         CostMetrics         `json:"costs"`
	Profit        ProfitMetrics       `json:"profit"`
	Orders        OrderMetrics        `json:"orders"`
	Customers     CustomerMetrics     `json:"customers"`
	Operations    OperationsMetrics   `json:"operations"`
	Refunds       RefundMetrics       `json:"refunds"`
	Cancellations CancellationMetrics `json:"cancellations"`
	Payments      PaymentMetrics      `json:"payments"`
	Economics     CustomerEconomics   `json:"economics"`
	Inventory     InventoryMetrics    `json:"inventory"`
	CostQuality   CostQuality         `json:"costQuality"`
	Rollup        RollupInfo          `json:"rollup"`
	Samples       Samples             `json:"samples"`
}

// RevenueMetrics holds what buyers paid and what the seller keeps.
type RevenueMetrics struct {
	GrossRevenue    float64 `json:"grossRevenue"`
	ShippingCharged float64 `json:"shippingCharged"`
	TaxCollected    float64 `json:"taxCollected"`
	VATCollected    float64 `json:"vatCollected"`
	DiscountsGiven  float64 `json:"discountsGiven"`
	GiftWrapRevenue float64 `json:"giftWrapRevenue"`

	// derived
	TaxableAmount          float64 `json:"taxableAmount"`
	NetRevenue             float64 `json:"netRevenue"`
	ProductRevenue         float64 `json:"productRevenue"`
	NetRevenueAfterRefunds float64 `json:"netRevenueAfterRefunds"`
	DiscountRate           float64 `json:"discountRate"`
	TakeHomeRate           float64 `json:"takeHomeRate"`
}

// FeeMetrics holds estimated marketplace fees.
type FeeMetrics struct {
	TransactionFees float64 `json:"transactionFees"`
	ProcessingFees  float64 `json:"processingFees"`

	// derived
	TotalFees float64 `json:"totalFees"`
	FeeRate   float64 `json:"feeRate"`
}

// CostMetrics holds cost of goods and shipping-side costs.
type CostMetrics struct {
	TotalCost             float64 `json:"totalCost"` // cost of goods, known costs only
	ActualShippingCost    float64 `json:"actualShippingCost"`
	ImportDuty            float64 `json:"importDuty"`
	ImportTax             float64 `json:"importTax"`
	ShippingProcessingFee float64 `json:"shippingProcessingFee"`
	AdSpend               float64 `json:"adSpend"`

	// derived
	TotalCostWithShipping float64 `json:"totalCostWithShipping"`
	AvgCostPerItem        float64 `json:"avgCostPerItem"`
	CostPerOrder          float64 `json:"costPerOrder"`
	AdSpendRate           float64 `json:"adSpendRate"`
	ROAS                  float64 `json:"roas"`
}

// ProfitMetrics is fully derived from revenue, fees, costs and refunds.
type ProfitMetrics struct {
	GrossProfit        float64 `json:"grossProfit"`
	ContributionMargin float64 `json:"contributionMargin"`
	NetProfit          float64 `json:"netProfit"`
	ShippingProfit     float64 `json:"shippingProfit"`
	GrossMargin        float64 `json:"grossMargin"`
	NetMargin          float64 `json:"netMargin"`
	ReturnOnRevenue    float64 `json:"returnOnRevenue"`
	MarkupRatio        float64 `json:"markupRatio"`
	ProfitPerItem      float64 `json:"profitPerItem"`
}

// OrderMetrics covers completed orders and their value distribution.
type OrderMetrics struct {
	TotalOrders       int `json:"totalOrders"`
	TotalItems        int `json:"totalItems"`
	TotalQuantitySold int `json:"totalQuantitySold"`

	// derived
	UniqueSKUs        int     `json:"uniqueSkus"`
	AverageOrderValue float64 `json:"averageOrderValue"`
	MedianOrderValue  float64 `json:"medianOrderValue"`
	P25OrderValue     float64 `json:"p25OrderValue"`
	P75OrderValue     float64 `json:"p75OrderValue"`
	OrderValueStdDev  float64 `json:"orderValueStdDev"`
	ItemsPerOrder     float64 `json:"itemsPerOrder"`
	RevenuePerItem    float64 `json:"revenuePerItem"`
}

// CustomerMetrics is derived from buyer order counts.
type CustomerMetrics struct {
	UniqueCustomers    int     `json:"uniqueCustomers"`
	RepeatCustomers    int     `json:"repeatCustomers"` // orders beyond each buyer's first
	RetentionRate      float64 `json:"retentionRate"`
	RevenuePerCustomer float64 `json:"revenuePerCustomer"`
	OrdersPerCustomer  float64 `json:"ordersPerCustomer"`
	ProfitPerCustomer  float64 `json:"profitPerCustomer"`
}

// OperationsMetrics covers fulfilment and cadence.
type OperationsMetrics struct {
	ShippedOrders int `json:"shippedOrders"`
	GiftOrders    int `json:"giftOrders"`

	// derived
	ShippingRate          float64 `json:"shippingRate"`
	GiftRate              float64 `json:"giftRate"`
	AvgHoursBetweenOrders float64 `json:"avgHoursBetweenOrders"`
	OrdersPerDay          float64 `json:"ordersPerDay"`
	RevenuePerDay         float64 `json:"revenuePerDay"`
}

// RefundMetrics covers refunds on completed orders.
type RefundMetrics struct {
	RefundAmount          float64 `json:"refundAmount"`
	RefundCount           int     `json:"refundCount"`
	OrdersWithRefunds     int     `json:"ordersWithRefunds"`
	FeesRetainedOnRefunds float64 `json:"feesRetainedOnRefunds"`

	// derived
	RefundRateByOrder float64 `json:"refundRateByOrder"`
	RefundRateByValue float64 `json:"refundRateByValue"`
	OrderRefundRate   float64 `json:"orderRefundRate"`
}

// CancellationMetrics counts cancelled orders against all orders.
type CancellationMetrics struct {
	CancelledOrders  int     `json:"cancelledOrders"`
	CancellationRate float64 `json:"cancellationRate"`
	CompletionRate   float64 `json:"completionRate"`
}

// PaymentMetrics is derived from payment method counts.
type PaymentMetrics struct {
	PrimaryPaymentMethod   string `json:"primaryPaymentMethod"`
	PaymentMethodDiversity int    `json:"paymentMethodDiversity"`
}

// CustomerEconomics holds lifetime value style estimates.
type CustomerEconomics struct {
	CustomerLifetimeValue   float64 `json:"customerLifetimeValue"`
	CustomerAcquisitionCost float64 `json:"customerAcquisitionCost"`
	PaybackPeriodDays       float64 `json:"paybackPeriodDays"`
	PriceElasticity         float64 `json:"priceElasticity"`
}

// InventoryMetrics is a snapshot of enabled offerings.
// PriceSum/MinPrice/MaxPrice are kept so merged snapshots stay exact.
type InventoryMetrics struct {
	TotalInventory int     `json:"totalInventory"`
	ActiveVariants int     `json:"activeVariants"`
	PriceSum       float64 `json:"priceSum"`
	MinPrice       float64 `json:"minPrice"`
	MaxPrice       float64 `json:"maxPrice"`

	// derived
	AvgPrice          float64 `json:"avgPrice"`
	PriceRange        float64 `json:"priceRange"`
	InventoryTurnover float64 `json:"inventoryTurnover"`
	StockoutRisk      float64 `json:"stockoutRisk"`
}

// CostQuality tracks sold quantity per cost provenance.
type CostQuality struct {
	DirectQuantity            int `json:"directQuantity"`
	SiblingSamePeriodQuantity int `json:"siblingSamePeriodQuantity"`
	SiblingHistoricalQuantity int `json:"siblingHistoricalQuantity"`
	MissingQuantity           int `json:"missingQuantity"`

	// derived
	ItemsWithDirectCost   int     `json:"itemsWithDirectCost"`
	ItemsWithFallbackCost int     `json:"itemsWithFallbackCost"`
	ItemsMissingCost      int     `json:"itemsMissingCost"`
	CostCoveragePercent   float64 `json:"costCoveragePercent"`
	HasCompleteCostData   bool    `json:"hasCompleteCostData"`
	MultipleCurrencies    bool    `json:"multipleCurrencies"`
}

// Add records quantity under the given provenance.
func (q *CostQuality) Add(p Provenance, quantity int) {
	switch p {
	case ProvenanceDirect:
		q.DirectQuantity += quantity
	case ProvenanceSiblingSamePeriod:
		q.SiblingSamePeriodQuantity += quantity
	case ProvenanceSiblingHistorical:
		q.SiblingHistoricalQuantity += quantity
	default:
		q.MissingQuantity += quantity
	}
}

// KnownQuantity is the quantity with a resolved non-zero cost.
func (q CostQuality) KnownQuantity() int {
	return q.DirectQuantity + q.SiblingSamePeriodQuantity + q.SiblingHistoricalQuantity
}

// RollupInfo records which children fed an aggregated document.
type RollupInfo struct {
	ChildrenIncluded int `json:"childrenIncluded"`
	ChildrenSkipped  int `json:"childrenSkipped"`
}

// Samples are the non-additive raw inputs needed to re-derive
// distribution and distinct-count fields after aggregation.
type Samples struct {
	OrderValues    []OrderSample  `json:"orderValues,omitempty"`
	BuyerOrders    map[string]int `json:"buyerOrders,omitempty"`
	PaymentMethods map[string]int `json:"paymentMethods,omitempty"`
	SKUs           []string       `json:"skus,omitempty"` // sorted, normalized
	Currencies     []string       `json:"currencies,omitempty"`
}

// OrderSample is one completed order's value and time.
type OrderSample struct {
	Value     float64 `json:"v"`
	Timestamp int64   `json:"t"` // unix seconds
}

// Report is a persisted document with its natural key.
type Report struct {
	Scope    Scope
	Period   Period
	Document *MetricsDocument
	RunID    string
}

// Checkpoint marks an entity whose periods were all computed in a stage.
type Checkpoint struct {
	Stage     ScopeKind
	EntityKey string
	RunID     string
}
