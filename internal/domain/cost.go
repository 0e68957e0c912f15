package domain

// Provenance records which fallback tier produced a resolved cost.
type Provenance string

// Provenance tiers in resolution order.
const (
	ProvenanceDirect            Provenance = "direct"
	ProvenanceSiblingSamePeriod Provenance = "sibling_same_period"
	ProvenanceSiblingHistorical Provenance = "sibling_historical"
	ProvenanceMissing           Provenance = "missing"
)

// IsFallback reports whether the cost came from a sibling SKU.
func (p Provenance) IsFallback() bool {
	return p == ProvenanceSiblingSamePeriod || p == ProvenanceSiblingHistorical
}

// ResolvedCost is a unit cost with its provenance.
// Value is 0 iff Provenance is ProvenanceMissing.
type ResolvedCost struct {
	Value      float64
	Provenance Provenance
	SourceSKU  string // SKU whose cost was used; empty when missing
	Year       int    // year/month the cost was read from
	Month      int
}

// ShippingCost is the carrier-side cost of shipping one order line.
type ShippingCost struct {
	Shipping      float64 // carrier charge
	Duty          float64 // import duty paid by the seller
	ImportTax     float64 // import tax paid by the seller
	ProcessingFee float64 // carrier processing fee
}

// Total sums all shipping-side costs.
func (s ShippingCost) Total() float64 {
	return s.Shipping + s.Duty + s.ImportTax + s.ProcessingFee
}
