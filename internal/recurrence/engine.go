package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/example/calendar-service/internal/calendar"
)

// Frequency represents supported recurrence intervals.
type Frequency string

const (
	// FrequencyNone marks a single, non-repeating event.
	FrequencyNone Frequency = "none"
	// FrequencyDaily repeats every day, optionally filtered by weekday.
	FrequencyDaily Frequency = "daily"
	// FrequencyWeekly repeats on the selected weekdays, or on the anchor's weekday when none are selected.
	FrequencyWeekly Frequency = "weekly"
	// FrequencyMonthly repeats on the anchor's day of month.
	FrequencyMonthly Frequency = "monthly"
	// FrequencyYearly repeats on the anchor's month and day.
	FrequencyYearly Frequency = "yearly"
)

// Defaults applied by NewEngine when a non-positive value is supplied.
const (
	DefaultHorizonDays    = 90
	DefaultMaxOccurrences = 500
)

// ErrInvalidFrequency indicates the recurrence frequency is not supported.
var ErrInvalidFrequency = errors.New("recurrence: invalid frequency")

// ErrInvalidWindow indicates the expansion window is missing a bound.
var ErrInvalidWindow = errors.New("recurrence: expansion window requires both bounds")

// Rule describes how an event repeats.
type Rule struct {
	Frequency Frequency
	Weekdays  []time.Weekday
}

// IsRecurring reports whether the rule produces more than its anchor occurrence.
func (r Rule) IsRecurring() bool {
	return r.Frequency != "" && r.Frequency != FrequencyNone
}

var weekdayTokens = [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// RRule renders the rule as an RFC 5545 RRULE value, e.g. "FREQ=WEEKLY;BYDAY=MO,WE".
func (r Rule) RRule() (string, error) {
	var freq string
	switch r.Frequency {
	case FrequencyDaily:
		freq = "DAILY"
	case FrequencyWeekly:
		freq = "WEEKLY"
	case FrequencyMonthly:
		freq = "MONTHLY"
	case FrequencyYearly:
		freq = "YEARLY"
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, r.Frequency)
	}

	value := "FREQ=" + freq
	if days := r.byDay(); days != "" {
		value += ";BYDAY=" + days
	}
	return value, nil
}

func (r Rule) byDay() string {
	if r.Frequency != FrequencyDaily && r.Frequency != FrequencyWeekly {
		return ""
	}
	if len(r.Weekdays) == 0 {
		return ""
	}
	days := append([]time.Weekday(nil), r.Weekdays...)
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	tokens := make([]string, 0, len(days))
	var last time.Weekday = -1
	for _, day := range days {
		if day < time.Sunday || day > time.Saturday || day == last {
			continue
		}
		tokens = append(tokens, weekdayTokens[day])
		last = day
	}
	return strings.Join(tokens, ",")
}

// ParseRRule reads an RRULE value such as "FREQ=WEEKLY;BYDAY=MO,FR". Only the
// frequency and weekday list are kept; INTERVAL, COUNT and UNTIL are dropped.
func ParseRRule(value string) (Rule, error) {
	option, err := rrule.StrToROption(strings.TrimPrefix(strings.TrimSpace(value), "RRULE:"))
	if err != nil {
		return Rule{}, fmt.Errorf("recurrence: parse %q: %w", value, err)
	}

	var rule Rule
	switch option.Freq {
	case rrule.DAILY:
		rule.Frequency = FrequencyDaily
	case rrule.WEEKLY:
		rule.Frequency = FrequencyWeekly
	case rrule.MONTHLY:
		rule.Frequency = FrequencyMonthly
	case rrule.YEARLY:
		rule.Frequency = FrequencyYearly
	default:
		return Rule{}, fmt.Errorf("%w: %q", ErrInvalidFrequency, value)
	}

	if rule.Frequency == FrequencyDaily || rule.Frequency == FrequencyWeekly {
		for _, day := range option.Byweekday {
			// rrule numbers weekdays from Monday.
			rule.Weekdays = append(rule.Weekdays, time.Weekday((day.Day()+1)%7))
		}
		sort.Slice(rule.Weekdays, func(i, j int) bool { return rule.Weekdays[i] < rule.Weekdays[j] })
	}
	return rule, nil
}

var rruleWeekdays = [...]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

func (r Rule) option(anchor calendar.Date) (rrule.ROption, error) {
	option := rrule.ROption{Dtstart: anchor.Time(time.UTC)}
	switch r.Frequency {
	case FrequencyDaily:
		option.Freq = rrule.DAILY
	case FrequencyWeekly:
		option.Freq = rrule.WEEKLY
	case FrequencyMonthly:
		option.Freq = rrule.MONTHLY
	case FrequencyYearly:
		option.Freq = rrule.YEARLY
	default:
		return rrule.ROption{}, fmt.Errorf("%w: %q", ErrInvalidFrequency, r.Frequency)
	}
	if r.Frequency == FrequencyDaily || r.Frequency == FrequencyWeekly {
		for _, day := range r.Weekdays {
			if day >= time.Sunday && day <= time.Saturday {
				option.Byweekday = append(option.Byweekday, rruleWeekdays[day])
			}
		}
	}
	return option, nil
}

// Engine expands recurrence rules into concrete occurrence dates. Expansion
// never runs past the horizon measured from the window start, and never yields
// more than maxOccurrences dates per rule.
type Engine struct {
	horizonDays    int
	maxOccurrences int
}

// NewEngine constructs an Engine. Non-positive arguments fall back to the defaults.
func NewEngine(horizonDays, maxOccurrences int) *Engine {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	if maxOccurrences <= 0 {
		maxOccurrences = DefaultMaxOccurrences
	}
	return &Engine{horizonDays: horizonDays, maxOccurrences: maxOccurrences}
}

// HorizonDays returns the maximum number of days a single expansion covers.
func (e *Engine) HorizonDays() int {
	if e == nil {
		return DefaultHorizonDays
	}
	return e.horizonDays
}

// Expand returns the dates on which an event anchored at anchor occurs inside
// window, in ascending order. The anchor itself is included when it falls in
// the window and matches the rule.
func (e *Engine) Expand(rule Rule, anchor calendar.Date, window calendar.Range) ([]calendar.Date, error) {
	if e == nil {
		e = NewEngine(0, 0)
	}
	if window.Start.IsZero() || window.End.IsZero() {
		return nil, ErrInvalidWindow
	}

	if !rule.IsRecurring() {
		if window.Contains(anchor) {
			return []calendar.Date{anchor}, nil
		}
		return nil, nil
	}

	option, err := rule.option(anchor)
	if err != nil {
		return nil, err
	}
	r, err := rrule.NewRRule(option)
	if err != nil {
		return nil, fmt.Errorf("recurrence: build rule: %w", err)
	}

	lower := window.Start
	if lower.Before(anchor) {
		lower = anchor
	}
	upper := window.End
	if limit := window.Start.AddDays(e.horizonDays); upper.After(limit) {
		upper = limit
	}
	if upper.Before(lower) {
		return nil, nil
	}

	times := r.Between(lower.Time(time.UTC), upper.Time(time.UTC), true)
	if len(times) > e.maxOccurrences {
		times = times[:e.maxOccurrences]
	}

	out := make([]calendar.Date, 0, len(times))
	for _, t := range times {
		out = append(out, calendar.DateOf(t.UTC()))
	}
	return out, nil
}
