// Package period produces non-overlapping report periods clipped to the
// observed order history.
package period

import (
	"fmt"
	"time"

	"shop-analytics/internal/domain"
)

// Generate returns the periods of type t covering [from, to], clipped to it.
// Yearly and monthly periods align to calendar boundaries; weekly periods
// start on Monday. Each period ends one second before the next begins.
func Generate(t domain.PeriodType, from, to time.Time) ([]domain.Period, error) {
	from, to = from.UTC(), to.UTC()
	if to.Before(from) {
		return nil, fmt.Errorf("history end %s before start %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}

	var (
		cursor time.Time
		next   func(time.Time) time.Time
	)
	switch t {
	case domain.PeriodYearly:
		cursor = time.Date(from.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		next = func(c time.Time) time.Time { return c.AddDate(1, 0, 0) }
	case domain.PeriodMonthly:
		cursor = time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
		next = func(c time.Time) time.Time { return c.AddDate(0, 1, 0) }
	case domain.PeriodWeekly:
		day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		cursor = day.AddDate(0, 0, -offset)
		next = func(c time.Time) time.Time { return c.AddDate(0, 0, 7) }
	default:
		return nil, fmt.Errorf("unknown period type %q", t)
	}

	var out []domain.Period
	for !cursor.After(to) {
		following := next(cursor)
		start := cursor
		if start.Before(from) {
			start = from
		}
		end := following.Add(-time.Second)
		if end.After(to) {
			end = to
		}
		out = append(out, domain.Period{Type: t, Range: domain.DateRange{Start: start, End: end}})
		cursor = following
	}
	return out, nil
}

// GenerateAll returns periods of every type, keyed by type.
func GenerateAll(from, to time.Time) (map[domain.PeriodType][]domain.Period, error) {
	out := make(map[domain.PeriodType][]domain.Period, len(domain.AllPeriodTypes))
	for _, t := range domain.AllPeriodTypes {
		ps, err := Generate(t, from, to)
		if err != nil {
			return nil, err
		}
		out[t] = ps
	}
	return out, nil
}

// Chunk splits periods into batches of at most size, preserving order.
func Chunk(periods []domain.Period, size int) [][]domain.Period {
	if size <= 0 {
		size = len(periods)
	}
	var out [][]domain.Period
	for len(periods) > 0 {
		n := size
		if n > len(periods) {
			n = len(periods)
		}
		out = append(out, periods[:n])
		periods = periods[n:]
	}
	return out
}

// Span returns the smallest range covering every period.
func Span(periods []domain.Period) (domain.DateRange, bool) {
	if len(periods) == 0 {
		return domain.DateRange{}, false
	}
	span := periods[0].Range
	for _, p := range periods[1:] {
		if p.Range.Start.Before(span.Start) {
			span.Start = p.Range.Start
		}
		if p.Range.End.After(span.End) {
			span.End = p.Range.End
		}
	}
	return span, true
}
