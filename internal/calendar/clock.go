package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the number of minutes in a calendar day.
const MinutesPerDay = 24 * 60

// Clock is a time of day expressed in minutes since midnight.
type Clock int

// Day boundaries used for events that carry no time of day.
const (
	StartOfDay Clock = 0
	EndOfDay   Clock = MinutesPerDay - 1
)

// ParseClock parses an HH:mm string.
func ParseClock(value string) (Clock, error) {
	value = strings.TrimSpace(value)
	hh, mm, ok := strings.Cut(value, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: time %q must be HH:mm", ErrInvalidDate, value)
	}
	hours, err := strconv.Atoi(hh)
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("%w: time %q has invalid hours", ErrInvalidDate, value)
	}
	minutes, err := strconv.Atoi(mm)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("%w: time %q has invalid minutes", ErrInvalidDate, value)
	}
	return Clock(hours*60 + minutes), nil
}

// ClockOf returns the time of day of t, truncated to the minute.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

// Minutes returns the number of minutes since midnight.
func (c Clock) Minutes() int { return int(c) }

// String formats the clock as HH:mm.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On returns the instant at which c occurs on d in loc.
func (c Clock) On(d Date, loc *time.Location) time.Time {
	return d.Time(loc).Add(time.Duration(c) * time.Minute)
}

// DurationMinutes returns the minutes between two HH:mm strings on a common
// reference date. It is negative when end is earlier than start.
func DurationMinutes(start, end string) (int, error) {
	s, err := ParseClock(start)
	if err != nil {
		return 0, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return 0, err
	}
	return int(e - s), nil
}

// SpanMinutes returns the minutes from start on startDate to end on endDate.
func SpanMinutes(startDate Date, start Clock, endDate Date, end Clock) int {
	return startDate.DaysUntil(endDate)*MinutesPerDay + int(end-start)
}
