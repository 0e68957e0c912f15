package refdata

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"shop-analytics/internal/lookup"
	"shop-analytics/internal/skukey"
)

// Shipping defaults when reference data has no answer.
const (
	DefaultWeightKg = 0.5
	DefaultZone     = 8
	MaxZone         = 15
)

// WeightIndex maps secondary product codes to per-unit weight in kg.
type WeightIndex struct {
	byCode map[string]float64
}

// BuildWeightIndex reads the ';'-separated weight table (OTTOKOD, DESİ).
func BuildWeightIndex(r io.Reader) (*WeightIndex, error) {
	t, err := readTable(r, ';', nil)
	if err != nil {
		return nil, fmt.Errorf("read weight table: %w", err)
	}
	return buildWeightIndex(t)
}

func buildWeightIndex(t *table) (*WeightIndex, error) {
	codeCol, ok := t.column(costCodeColumn)
	if !ok {
		return nil, fmt.Errorf("weight table has no %s column", costCodeColumn)
	}
	weightCol, ok := t.column("DESİ", "DESI", "Desi")
	if !ok {
		return nil, fmt.Errorf("weight table has no weight column")
	}

	w := &WeightIndex{byCode: make(map[string]float64)}
	for _, row := range t.rows {
		code := cell(row, codeCol)
		if code == "" {
			continue
		}
		v, ok := parseFloat(cell(row, weightCol))
		if !ok {
			continue
		}
		if _, dup := w.byCode[code]; !dup {
			w.byCode[code] = v
		}
	}
	return w, nil
}

// Weight returns the per-unit weight for a product code.
func (w *WeightIndex) Weight(code string) (float64, bool) {
	if w == nil {
		return 0, false
	}
	v, ok := w.byCode[strings.TrimSpace(code)]
	return v, ok
}

// Len returns the number of product codes.
func (w *WeightIndex) Len() int {
	if w == nil {
		return 0
	}
	return len(w.byCode)
}

// ZoneIndex maps country codes (and names) to carrier zones.
type ZoneIndex struct {
	byCountry map[string]int
}

// BuildZoneIndex reads the ';'-separated zone table (Country, Country_Code, Zone).
func BuildZoneIndex(r io.Reader) (*ZoneIndex, error) {
	t, err := readTable(r, ';', fedexFirstCellTitle)
	if err != nil {
		return nil, fmt.Errorf("read zone table: %w", err)
	}
	return buildZoneIndex(t)
}

func buildZoneIndex(t *table) (*ZoneIndex, error) {
	codeCol, ok := t.column("Country_Code", "Country Code", "COUNTRY CODE")
	if !ok {
		return nil, fmt.Errorf("zone table has no country code column")
	}
	zoneCol, ok := t.column("Zone", "ZONE")
	if !ok {
		return nil, fmt.Errorf("zone table has no zone column")
	}
	nameCol, hasName := t.column("Country", "COUNTRY")

	z := &ZoneIndex{byCountry: make(map[string]int)}
	for _, row := range t.rows {
		zone, err := strconv.Atoi(cell(row, zoneCol))
		if err != nil {
			continue
		}
		if code := strings.ToUpper(cell(row, codeCol)); code != "" {
			if _, dup := z.byCountry[code]; !dup {
				z.byCountry[code] = zone
			}
		}
		if hasName {
			if name := strings.ToUpper(cell(row, nameCol)); name != "" {
				if _, dup := z.byCountry[name]; !dup {
					z.byCountry[name] = zone
				}
			}
		}
	}
	return z, nil
}

// Zone returns the zone for a country, or DefaultZone when unknown.
func (z *ZoneIndex) Zone(country string) int {
	if z == nil {
		return DefaultZone
	}
	if zone, ok := z.byCountry[strings.ToUpper(strings.TrimSpace(country))]; ok {
		return zone
	}
	return DefaultZone
}

// Len returns the number of known countries.
func (z *ZoneIndex) Len() int {
	if z == nil {
		return 0
	}
	return len(z.byCountry)
}

// PriceMatrix prices a shipment by weight tier and zone.
type PriceMatrix struct {
	tiers  []float64 // ascending
	prices []map[int]float64
}

var zoneColumn = regexp.MustCompile(`^(\d+)\s*\.\s*B[öo]lge$`)

// BuildPriceMatrix reads the ';'-separated price matrix: a weight column
// followed by "N.Bölge" zone columns. A banner row naming the carrier is skipped.
func BuildPriceMatrix(r io.Reader) (*PriceMatrix, error) {
	t, err := readTable(r, ';', fedexTitle)
	if err != nil {
		return nil, fmt.Errorf("read price matrix: %w", err)
	}
	return buildPriceMatrix(t)
}

func buildPriceMatrix(t *table) (*PriceMatrix, error) {
	zoneCols := make(map[int]int)
	for i, h := range t.header {
		m := zoneColumn.FindStringSubmatch(h)
		if m == nil {
			continue
		}
		zone, _ := strconv.Atoi(m[1])
		if zone >= 1 && zone <= MaxZone {
			zoneCols[zone] = i
		}
	}
	if len(zoneCols) == 0 {
		return nil, fmt.Errorf("price matrix has no zone columns")
	}

	type tierRow struct {
		weight float64
		prices map[int]float64
	}
	byWeight := make(map[float64]tierRow)
	for _, row := range t.rows {
		// first column is the weight ("0,5 kg")
		w, ok := parseFloat(cell(row, 0))
		if !ok {
			continue
		}
		if _, dup := byWeight[w]; dup {
			continue
		}
		tr := tierRow{weight: w, prices: make(map[int]float64)}
		for zone, col := range zoneCols {
			if p, ok := parseFloat(cell(row, col)); ok {
				tr.prices[zone] = p
			}
		}
		byWeight[w] = tr
	}

	pm := &PriceMatrix{}
	for w := range byWeight {
		pm.tiers = append(pm.tiers, w)
	}
	sort.Float64s(pm.tiers)
	for _, w := range pm.tiers {
		pm.prices = append(pm.prices, byWeight[w].prices)
	}
	return pm, nil
}

// Price returns the price of a shipment of weightKg to zone. The weight is
// rounded up to the next published tier and clamped to the heaviest tier.
// Missing data prices at zero.
func (p *PriceMatrix) Price(weightKg float64, zone int) float64 {
	if p == nil {
		return 0
	}
	idx, err := lookup.TierAtOrAbove(weightKg, p.tiers)
	if err != nil {
		return 0
	}
	return p.prices[idx][zone]
}

// Tiers returns the published weight tiers, ascending.
func (p *PriceMatrix) Tiers() []float64 {
	if p == nil {
		return nil
	}
	return p.tiers
}

// USRate is the flat per-unit US shipping row for one SKU.
// Rates are fractions (0.08 for 8%).
type USRate struct {
	FedexCharge   float64
	ProcessingFee float64
	DutyRate      float64
	DutyAmount    float64
	TaxRate       float64
	TaxAmount     float64
}

// USTable maps normalized SKUs to US flat rates.
type USTable struct {
	bySKU map[string]USRate
}

// BuildUSTable reads the ';'-separated US shipping table.
func BuildUSTable(r io.Reader) (*USTable, error) {
	t, err := readTable(r, ';', nil)
	if err != nil {
		return nil, fmt.Errorf("read us shipping table: %w", err)
	}
	return buildUSTable(t)
}

func buildUSTable(t *table) (*USTable, error) {
	skuCol, ok := t.column(costSKUColumn)
	if !ok {
		return nil, fmt.Errorf("us shipping table has no %s column", costSKUColumn)
	}
	fedexCol, hasFedex := t.column("US FEDEX KARGO ÜCRETİ")
	procCol, hasProc := t.column("FEDEX İŞLEM ÜCRETİ")
	dutyRateCol, hasDutyRate := t.column("DUTY OTAN", "DUTY ORANI")
	dutyCol, hasDuty := t.column("DUTY")
	taxRateCol, hasTaxRate := t.column("VERGİ ORANI")
	taxCol, hasTax := t.column("VERGİ")

	value := func(row []string, col int, present bool) float64 {
		if !present {
			return 0
		}
		v, _ := parseFloat(cell(row, col))
		return v
	}
	percent := func(row []string, col int, present bool) float64 {
		if !present {
			return 0
		}
		v, _ := parsePercent(cell(row, col))
		return v
	}

	us := &USTable{bySKU: make(map[string]USRate)}
	for _, row := range t.rows {
		key := skukey.Normalize(cell(row, skuCol))
		if key == "" {
			continue
		}
		if _, dup := us.bySKU[key]; dup {
			continue
		}
		us.bySKU[key] = USRate{
			FedexCharge:   value(row, fedexCol, hasFedex),
			ProcessingFee: value(row, procCol, hasProc),
			DutyRate:      percent(row, dutyRateCol, hasDutyRate),
			DutyAmount:    value(row, dutyCol, hasDuty),
			TaxRate:       percent(row, taxRateCol, hasTaxRate),
			TaxAmount:     value(row, taxCol, hasTax),
		}
	}
	return us, nil
}

// Rate returns the US row for a SKU (normalized internally).
func (u *USTable) Rate(sku string) (USRate, bool) {
	if u == nil {
		return USRate{}, false
	}
	r, ok := u.bySKU[skukey.Normalize(sku)]
	return r, ok
}

// Len returns the number of SKUs in the table.
func (u *USTable) Len() int {
	if u == nil {
		return 0
	}
	return len(u.bySKU)
}

// IsUSDestination reports whether a country designates the United States.
// An empty country is treated as US.
func IsUSDestination(country string) bool {
	switch strings.ToUpper(strings.TrimSpace(country)) {
	case "", "US", "USA", "UNITED STATES":
		return true
	}
	return false
}
