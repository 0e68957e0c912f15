// Package refdata builds immutable lookup indices from the reference tables:
// unit costs by SKU and month, product weights, carrier zones, the carrier
// price matrix and the US flat shipping/duty/tax table.
package refdata

import (
	"fmt"
	"io"
	"strings"

	"shop-analytics/internal/skukey"
)

// Turkish month names used in cost column headers, January first.
var monthNames = [12]string{
	"OCAK", "SUBAT", "MART", "NISAN", "MAYIS", "HAZIRAN",
	"TEMMUZ", "AGUSTOS", "EYLUL", "EKIM", "KASIM", "ARALIK",
}

// Region prefixes on cost column headers, in lookup order.
var costRegions = []string{"US", "EU", "AU"}

// Qualifier suffixes some cost exports append to a month column.
var costSuffixes = []string{"", " CALISMA", " ÇALIŞMA"}

// DefaultCostYears is the span precomputed when no years are configured.
var DefaultCostYears = []int{2023, 2024, 2025, 2026}

// Cost table column names.
const (
	costSKUColumn  = "SKU"
	costCodeColumn = "OTTOKOD"
)

type yearMonth struct {
	year  int
	month int
}

// CostIndex maps (normalized SKU, year, month) to a unit cost.
// Absent entries are unknown, never zero. Read-only after build.
type CostIndex struct {
	costs     map[string]map[yearMonth]float64
	known     map[string]struct{}
	codes     map[string]string // trimmed raw SKU -> product code
	normCodes map[string]string // normalized SKU -> product code
}

// EmptyCostIndex returns an index that knows no SKUs.
func EmptyCostIndex() *CostIndex {
	return &CostIndex{
		costs:     make(map[string]map[yearMonth]float64),
		known:     make(map[string]struct{}),
		codes:     make(map[string]string),
		normCodes: make(map[string]string),
	}
}

// CostColumnCandidates lists every header spelling that may hold the cost
// for (year, month), in lookup order.
func CostColumnCandidates(year, month int) []string {
	if month < 1 || month > 12 {
		return nil
	}
	m := monthNames[month-1]
	yy := fmt.Sprintf("%02d", year%100)
	yyyy := fmt.Sprintf("%d", year)

	var out []string
	for _, p := range costRegions {
		variants := []string{
			p + " " + m + " " + yyyy,
			p + " " + m + " " + yy,
			p + " " + yyyy + " " + m,
			p + " " + yy + " " + m,
			p + " " + m + yy,
			p + yy + " " + m,
			p + " " + m,
		}
		for _, v := range variants {
			for _, s := range costSuffixes {
				out = append(out, v+s)
			}
		}
	}
	return out
}

// BuildCostIndex reads a comma-separated cost table and precomputes every
// (SKU, year, month) cost for the given years. Unparseable cells are skipped.
func BuildCostIndex(r io.Reader, years []int) (*CostIndex, error) {
	t, err := readTable(r, ',', nil)
	if err != nil {
		return nil, fmt.Errorf("read cost table: %w", err)
	}
	return buildCostIndex(t, years)
}

func buildCostIndex(t *table, years []int) (*CostIndex, error) {
	skuCol, ok := t.column(costSKUColumn)
	if !ok {
		return nil, fmt.Errorf("cost table has no %s column", costSKUColumn)
	}
	codeCol, hasCode := t.column(costCodeColumn)
	if len(years) == 0 {
		years = DefaultCostYears
	}

	// Resolve candidate columns once per (year, month).
	type slot struct {
		ym   yearMonth
		cols []int
	}
	var slots []slot
	for _, y := range years {
		for m := 1; m <= 12; m++ {
			var cols []int
			for _, name := range CostColumnCandidates(y, m) {
				if idx, ok := t.columns[name]; ok {
					cols = append(cols, idx)
				}
			}
			if len(cols) > 0 {
				slots = append(slots, slot{ym: yearMonth{y, m}, cols: cols})
			}
		}
	}

	idx := EmptyCostIndex()
	for _, row := range t.rows {
		raw := cell(row, skuCol)
		if raw == "" {
			continue
		}
		key := skukey.Normalize(raw)
		if key == "" {
			continue
		}
		idx.known[key] = struct{}{}

		if hasCode {
			if code := cell(row, codeCol); code != "" {
				if _, ok := idx.codes[raw]; !ok {
					idx.codes[raw] = code
				}
				if _, ok := idx.normCodes[key]; !ok {
					idx.normCodes[key] = code
				}
			}
		}

		for _, s := range slots {
			if _, done := idx.costs[key][s.ym]; done {
				continue
			}
			for _, c := range s.cols {
				v, ok := parseFloat(cell(row, c))
				if !ok || v <= 0 {
					continue
				}
				if idx.costs[key] == nil {
					idx.costs[key] = make(map[yearMonth]float64)
				}
				idx.costs[key][s.ym] = v
				break
			}
		}
	}
	return idx, nil
}

// Lookup returns the cost for a normalized key. ok is false when unknown.
func (c *CostIndex) Lookup(key string, year, month int) (float64, bool) {
	v, ok := c.costs[key][yearMonth{year, month}]
	return v, ok
}

// HasSKU reports whether the SKU appears in the cost table at all,
// independent of which months are populated.
func (c *CostIndex) HasSKU(sku string) bool {
	_, ok := c.known[skukey.Normalize(sku)]
	return ok
}

// ProductCode maps a SKU to its secondary product code, trying the exact
// spelling before the normalized key.
func (c *CostIndex) ProductCode(sku string) (string, bool) {
	if code, ok := c.codes[strings.TrimSpace(sku)]; ok {
		return code, true
	}
	code, ok := c.normCodes[skukey.Normalize(sku)]
	return code, ok
}

// Len returns the number of distinct normalized SKUs.
func (c *CostIndex) Len() int { return len(c.known) }

// Entries returns the number of populated (SKU, month) costs.
func (c *CostIndex) Entries() int {
	n := 0
	for _, m := range c.costs {
		n += len(m)
	}
	return n
}
