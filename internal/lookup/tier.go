// Package lookup finds values in sorted step tables.
package lookup

import (
	"errors"
	"sort"
)

// ErrNoTiers is returned when a tier table is empty.
var ErrNoTiers = errors.New("no tiers available")

// TierAtOrAbove returns the index of the smallest tier >= target.
// Targets above every tier clamp to the last index.
// tiers must be sorted ascending.
func TierAtOrAbove(target float64, tiers []float64) (int, error) {
	if len(tiers) == 0 {
		return 0, ErrNoTiers
	}

	idx := sort.SearchFloat64s(tiers, target)
	if idx == len(tiers) {
		return len(tiers) - 1, nil
	}
	return idx, nil
}

// MonthsBack returns the (year, month) that lies n months before (year, month).
func MonthsBack(year, month, n int) (int, int) {
	total := year*12 + (month - 1) - n
	return total / 12, total%12 + 1
}
