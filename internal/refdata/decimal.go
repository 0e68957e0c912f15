package refdata

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimal parses a locale-formatted numeric cell.
// Accepts comma or dot decimals, thousands separators, currency and
// percent symbols, unit suffixes ("0,5 kg") and "a & b" ranges (averaged).
func ParseDecimal(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty value")
	}

	if strings.Contains(s, "&") {
		parts := strings.Split(s, "&")
		sum := decimal.Zero
		n := 0
		for _, p := range parts {
			if strings.TrimSpace(p) == "" {
				continue
			}
			d, err := ParseDecimal(p)
			if err != nil {
				return decimal.Zero, fmt.Errorf("range part %q: %w", p, err)
			}
			sum = sum.Add(d)
			n++
		}
		if n == 0 {
			return decimal.Zero, fmt.Errorf("empty range %q", raw)
		}
		return sum.Div(decimal.NewFromInt(int64(n))), nil
	}

	s = strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			return r
		}
		return -1
	}, s)
	if s == "" || s == "-" {
		return decimal.Zero, fmt.Errorf("no digits in %q", raw)
	}

	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		// 1.234,56 or 1,234.56: the last separator is the decimal one
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Count(s, ",") == 1:
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ",") > 1:
		s = strings.ReplaceAll(s, ",", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %q: %w", raw, err)
	}
	return d, nil
}

// parseFloat is ParseDecimal narrowed to float64 for index storage.
func parseFloat(raw string) (float64, bool) {
	d, err := ParseDecimal(raw)
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// parsePercent reads a percent cell ("8%", "8,5") as a fraction.
func parsePercent(raw string) (float64, bool) {
	d, err := ParseDecimal(raw)
	if err != nil {
		return 0, false
	}
	return d.Div(decimal.NewFromInt(100)).InexactFloat64(), true
}
