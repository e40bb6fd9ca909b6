// Package placement decides which events occupy a calendar day and how they
// are ordered and truncated for display.
//
// Every function in this package is pure: the result depends only on the
// target date, the candidate events and the supplied wall-clock time.
package placement

import (
	"sort"
	"time"

	"github.com/example/calendar-service/internal/calendar"
)

// Class is the priority bucket an event falls into relative to the current time.
type Class string

const (
	HappeningNow Class = "happening-now"
	Upcoming     Class = "upcoming"
	Past         Class = "past"
)

func (c Class) rank() int {
	switch c {
	case HappeningNow:
		return 0
	case Upcoming:
		return 1
	default:
		return 2
	}
}

// Event is the subset of an event needed for placement.
type Event struct {
	ID        string
	Title     string
	StartDate calendar.Date
	EndDate   calendar.Date
	// StartTime and EndTime are HH:mm; empty values stand for 00:00 and 23:59.
	StartTime string
	EndTime   string
	Group     string
	Recurring bool
}

// IsMultiDay reports whether the event spans more than one date.
func (e Event) IsMultiDay() bool {
	return e.StartDate != e.EndDate
}

// OccursOn reports whether d lies within the event's date interval.
func (e Event) OccursOn(d calendar.Date) bool {
	return d.Within(e.StartDate, e.EndDate)
}

// IsAllDay reports whether the event has no time of day.
func (e Event) IsAllDay() bool {
	return e.StartTime == "" && e.EndTime == ""
}

func (e Event) startClock() calendar.Clock {
	if c, err := calendar.ParseClock(e.StartTime); err == nil {
		return c
	}
	return calendar.StartOfDay
}

func (e Event) endClock() calendar.Clock {
	if c, err := calendar.ParseClock(e.EndTime); err == nil {
		return c
	}
	return calendar.EndOfDay
}

// Options bounds how many events of each kind are visible in a day view.
// A zero cap means unbounded.
type Options struct {
	Cap       int
	BannerCap int
}

var (
	// GridOptions is used for month grid cells.
	GridOptions = Options{Cap: 2, BannerCap: 1}
	// ListOptions is used for day and list views.
	ListOptions = Options{}
)

// Slot is a placed event with its priority class.
type Slot struct {
	Event Event
	Class Class
}

// DayView is the ordered and capped result of placing events on one date.
type DayView struct {
	Date    calendar.Date
	InMonth bool
	// Banners holds multi-day events, BannerOverflow counts the hidden ones.
	Banners        []Slot
	BannerOverflow int
	// Items holds single-day events, Overflow counts the hidden ones.
	Items    []Slot
	Overflow int
}

// Total returns the number of events on the date, visible or not.
func (v DayView) Total() int {
	return len(v.Banners) + v.BannerOverflow + len(v.Items) + v.Overflow
}

// Classify buckets a single-day event on date relative to now. An event with
// no time of day spans the whole date.
func Classify(date calendar.Date, e Event, now time.Time) Class {
	today := calendar.DateOf(now)
	switch {
	case date.Before(today):
		return Past
	case date.After(today):
		return Upcoming
	}

	current := calendar.ClockOf(now)
	start, end := e.startClock(), e.endClock()
	switch {
	case current < start:
		return Upcoming
	case current <= end:
		return HappeningNow
	default:
		return Past
	}
}

// Place partitions the events occurring on date into banners and items,
// orders them by priority and truncates them to opts. Events not occurring on
// date are ignored.
func Place(date calendar.Date, events []Event, now time.Time, opts Options) DayView {
	view := DayView{Date: date, InMonth: true}

	var banners, items []Slot
	for _, e := range events {
		if !e.OccursOn(date) {
			continue
		}
		if e.IsMultiDay() {
			banners = append(banners, Slot{Event: e, Class: classifySpan(date, e, now)})
			continue
		}
		items = append(items, Slot{Event: e, Class: Classify(date, e, now)})
	}

	sort.SliceStable(banners, func(i, j int) bool {
		a, b := banners[i].Event, banners[j].Event
		if c := a.StartDate.Compare(b.StartDate); c != 0 {
			return c < 0
		}
		return lessByStart(a, b)
	})
	sort.SliceStable(items, func(i, j int) bool {
		if ri, rj := items[i].Class.rank(), items[j].Class.rank(); ri != rj {
			return ri < rj
		}
		return lessByStart(items[i].Event, items[j].Event)
	})

	view.Banners, view.BannerOverflow = truncate(banners, opts.BannerCap)
	view.Items, view.Overflow = truncate(items, opts.Cap)
	return view
}

// PlaceMonth places events on every date of the week-aligned grid for month.
// eventsFor supplies the candidates for a date, typically a store lookup.
func PlaceMonth(month calendar.Date, eventsFor func(calendar.Date) []Event, now time.Time, opts Options) []DayView {
	grid := calendar.MonthGrid(month)
	days := grid.Days()
	views := make([]DayView, 0, len(days))
	for _, day := range days {
		var candidates []Event
		if eventsFor != nil {
			candidates = eventsFor(day)
		}
		view := Place(day, candidates, now, opts)
		view.InMonth = day.Month == month.Month && day.Year == month.Year
		views = append(views, view)
	}
	return views
}

// classifySpan treats a multi-day event as running from its start time on
// the first date to its end time on the last.
func classifySpan(date calendar.Date, e Event, now time.Time) Class {
	loc := now.Location()
	start := e.startClock().On(e.StartDate, loc)
	end := e.endClock().On(e.EndDate, loc)
	current := now.Truncate(time.Minute)
	switch {
	case current.Before(start):
		return Upcoming
	case current.After(end):
		return Past
	default:
		return HappeningNow
	}
}

// lessByStart orders all-day events ahead of timed ones, then by start time.
func lessByStart(a, b Event) bool {
	if da, db := a.IsAllDay(), b.IsAllDay(); da != db {
		return da
	}
	if sa, sb := a.startClock(), b.startClock(); sa != sb {
		return sa < sb
	}
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	return a.Title < b.Title
}

func truncate(slots []Slot, limit int) ([]Slot, int) {
	if limit <= 0 || len(slots) <= limit {
		return slots, 0
	}
	return slots[:limit], len(slots) - limit
}
