package domain

import (
	"fmt"
	"time"
)

// PeriodType identifies the bucketing granularity of a report.
type PeriodType string

// Period types, in generation order.
const (
	PeriodYearly  PeriodType = "yearly"
	PeriodMonthly PeriodType = "monthly"
	PeriodWeekly  PeriodType = "weekly"
)

// AllPeriodTypes lists every period type the engine produces.
var AllPeriodTypes = []PeriodType{PeriodYearly, PeriodMonthly, PeriodWeekly}

// Valid reports whether p is a known period type.
func (p PeriodType) Valid() bool {
	switch p {
	case PeriodYearly, PeriodMonthly, PeriodWeekly:
		return true
	}
	return false
}

// DateRange is an inclusive [Start, End] interval at second granularity.
// Invariant: Start <= End.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange validates and builds a range.
func NewDateRange(start, end time.Time) (DateRange, error) {
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("date range end %s before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return DateRange{Start: start.UTC(), End: end.UTC()}, nil
}

// Contains reports whether t falls inside the range, both ends inclusive.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Days returns the number of calendar days covered, counting both ends.
func (r DateRange) Days() int {
	start := time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(r.End.Year(), r.End.Month(), r.End.Day(), 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours()/24) + 1
}

// Key renders the range as "2025-01-01_to_2025-01-31".
func (r DateRange) Key() string {
	return r.Start.Format("2006-01-02") + "_to_" + r.End.Format("2006-01-02")
}

// Period is a typed date range.
type Period struct {
	Type  PeriodType
	Range DateRange
}

// Key is unique per (type, start, end).
func (p Period) Key() string {
	return string(p.Type) + ":" + p.Range.Key()
}
