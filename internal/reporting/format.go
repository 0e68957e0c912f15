package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

// money renders an amount rounded half away from zero to cents.
func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// percent renders a value already expressed in percent.
func percent(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2) + "%"
}

// fraction renders a 0..1 ratio as percent.
func fraction(v float64) string {
	return decimal.NewFromFloat(v).Shift(2).StringFixed(2) + "%"
}

func day(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}
