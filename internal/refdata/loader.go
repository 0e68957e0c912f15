package refdata

import (
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Paths locates the reference tables. Empty paths are treated as missing.
type Paths struct {
	Cost      string
	Weights   string
	Zones     string
	Prices    string
	USRates   string
	BaseDir   string // joined to relative paths
	CostYears []int // years to precompute; DefaultCostYears when empty
}

func (p Paths) resolve(name string) string {
	if name == "" || filepath.IsAbs(name) || p.BaseDir == "" {
		return name
	}
	return filepath.Join(p.BaseDir, name)
}

// Indices bundles every reference index. Each member is non-nil after Load,
// possibly empty.
type Indices struct {
	Costs   *CostIndex
	Weights *WeightIndex
	Zones   *ZoneIndex
	Prices  *PriceMatrix
	USRates *USTable
}

// WeightForSKU joins SKU -> product code -> weight, defaulting to DefaultWeightKg.
func (ix *Indices) WeightForSKU(sku string) float64 {
	code, ok := ix.Costs.ProductCode(sku)
	if !ok {
		return DefaultWeightKg
	}
	if w, ok := ix.Weights.Weight(code); ok && w > 0 {
		return w
	}
	return DefaultWeightKg
}

// Load builds all indices. A missing or malformed table is logged and its
// index degrades to empty; Load itself never fails.
func Load(p Paths, log logrus.FieldLogger) *Indices {
	log = log.WithField("component", "refdata")

	ix := &Indices{
		Costs:   EmptyCostIndex(),
		Weights: &WeightIndex{byCode: map[string]float64{}},
		Zones:   &ZoneIndex{byCountry: map[string]int{}},
		Prices:  &PriceMatrix{},
		USRates: &USTable{bySKU: map[string]USRate{}},
	}

	if t, ok := loadTable(p.resolve(p.Cost), ',', nil, "cost", log); ok {
		if idx, err := buildCostIndex(t, p.CostYears); err != nil {
			log.WithError(err).Warn("cost table unusable, costs degrade to empty")
		} else {
			ix.Costs = idx
		}
	}
	if t, ok := loadTable(p.resolve(p.Weights), ';', nil, "weight", log); ok {
		if idx, err := buildWeightIndex(t); err != nil {
			log.WithError(err).Warn("weight table unusable, default weight applies")
		} else {
			ix.Weights = idx
		}
	}
	if t, ok := loadTable(p.resolve(p.Zones), ';', fedexFirstCellTitle, "zone", log); ok {
		if idx, err := buildZoneIndex(t); err != nil {
			log.WithError(err).Warn("zone table unusable, default zone applies")
		} else {
			ix.Zones = idx
		}
	}
	if t, ok := loadTable(p.resolve(p.Prices), ';', fedexTitle, "price", log); ok {
		if idx, err := buildPriceMatrix(t); err != nil {
			log.WithError(err).Warn("price matrix unusable, international shipping prices at zero")
		} else {
			ix.Prices = idx
		}
	}
	if t, ok := loadTable(p.resolve(p.USRates), ';', nil, "us_rates", log); ok {
		if idx, err := buildUSTable(t); err != nil {
			log.WithError(err).Warn("us shipping table unusable, us shipping prices at zero")
		} else {
			ix.USRates = idx
		}
	}

	log.WithFields(logrus.Fields{
		"cost_skus":    ix.Costs.Len(),
		"cost_entries": ix.Costs.Entries(),
		"weights":      ix.Weights.Len(),
		"zones":        ix.Zones.Len(),
		"price_tiers":  len(ix.Prices.Tiers()),
		"us_rates":     ix.USRates.Len(),
	}).Info("reference data loaded")

	return ix
}

func loadTable(path string, comma rune, isTitle titleRowFunc, name string, log logrus.FieldLogger) (*table, bool) {
	if path == "" {
		log.WithField("table", name).Warn("no path configured, index degrades to empty")
		return nil, false
	}
	t, err := openTable(path, comma, isTitle)
	if err != nil {
		log.WithError(err).WithField("table", name).Warn("reference table unavailable, index degrades to empty")
		return nil, false
	}
	return t, true
}

// ZoneFor returns the carrier zone for a destination country.
func (ix *Indices) ZoneFor(country string) int { return ix.Zones.Zone(country) }

// PriceFor prices a shipment by total weight and zone.
func (ix *Indices) PriceFor(weightKg float64, zone int) float64 { return ix.Prices.Price(weightKg, zone) }

// USRate returns the US flat-rate row for a SKU.
func (ix *Indices) USRate(sku string) (USRate, bool) { return ix.USRates.Rate(sku) }

// MissingCostSKUs returns the SKUs that have no row in the cost table, in
// input order. Their orders can only be priced through siblings.
func (ix *Indices) MissingCostSKUs(skus []string) []string {
	var out []string
	for _, sku := range skus {
		if !ix.Costs.HasSKU(sku) {
			out = append(out, sku)
		}
	}
	return out
}

// Lookup returns the direct cost for a normalized key.
func (ix *Indices) Lookup(key string, year, month int) (float64, bool) {
	return ix.Costs.Lookup(key, year, month)
}
