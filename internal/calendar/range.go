package calendar

import (
	"fmt"
	"time"
)

// FetchPadding is the number of days added on both sides of a month when
// computing the window of events to load for it.
const FetchPadding = 7

// Range is a closed interval of calendar days.
type Range struct {
	Start Date
	End   Date
}

// NewRange validates that start is not after end.
func NewRange(start, end Date) (Range, error) {
	if start.IsZero() || end.IsZero() {
		return Range{}, fmt.Errorf("%w: range bounds are required", ErrInvalidDate)
	}
	if end.Before(start) {
		return Range{}, fmt.Errorf("%w: range end %s before start %s", ErrInvalidDate, end, start)
	}
	return Range{Start: start, End: end}, nil
}

// Contains reports whether d falls inside the range.
func (r Range) Contains(d Date) bool {
	return d.Within(r.Start, r.End)
}

// Overlaps reports whether [start, end] intersects the range. This is the
// matching rule used by every range query: start <= r.End && end >= r.Start.
func (r Range) Overlaps(start, end Date) bool {
	return !start.After(r.End) && !end.Before(r.Start)
}

// Days returns every day in the range in ascending order.
func (r Range) Days() []Date {
	return Days(r.Start, r.End)
}

// Len returns the number of days in the range.
func (r Range) Len() int {
	return r.Start.DaysUntil(r.End) + 1
}

// Days enumerates the closed interval [from, to]. It returns nil when to is
// before from.
func Days(from, to Date) []Date {
	if to.Before(from) {
		return nil
	}
	out := make([]Date, 0, from.DaysUntil(to)+1)
	for d := from; !d.After(to); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// MonthGrid returns the week-aligned range covering the month containing d,
// so a month view always renders complete Sunday..Saturday weeks.
func MonthGrid(d Date) Range {
	return Range{
		Start: d.StartOfMonth().StartOfWeek(),
		End:   d.EndOfMonth().EndOfWeek(),
	}
}

// FetchWindow returns the window of events loaded for the month containing d:
// the month padded by FetchPadding days on each side.
func FetchWindow(d Date) Range {
	return Range{
		Start: d.StartOfMonth().AddDays(-FetchPadding),
		End:   d.EndOfMonth().AddDays(FetchPadding),
	}
}

// YearWindow returns the fetch window covering every month of year: January 1
// and December 31 padded by FetchPadding days.
func YearWindow(year int) Range {
	return Range{
		Start: NewDate(year, time.January, 1).AddDays(-FetchPadding),
		End:   NewDate(year, time.December, 31).AddDays(FetchPadding),
	}
}

// ParseMonth parses YYYY-MM and returns its first day.
func ParseMonth(value string) (Date, error) {
	d, err := ParseDate(value + "-01")
	if err != nil {
		return Date{}, fmt.Errorf("%w: month %q", ErrInvalidDate, value)
	}
	return d, nil
}
