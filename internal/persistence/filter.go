package persistence

import (
	"sort"
	"strings"
)

// Matches reports whether the event satisfies the filter. Backends without a
// query language use it directly.
func (f EventFilter) Matches(e Event) bool {
	if !e.Active || e.OwnerID != f.OwnerID {
		return false
	}
	if !f.matchesWindow(e) {
		return false
	}
	if q := strings.ToLower(f.Query); q != "" {
		if !strings.Contains(strings.ToLower(e.Title), q) && !strings.Contains(strings.ToLower(e.Description), q) {
			return false
		}
	}
	if g := strings.ToLower(f.Group); g != "" && !strings.Contains(strings.ToLower(e.Group), g) {
		return false
	}
	return true
}

func (f EventFilter) matchesWindow(e Event) bool {
	startsInTime := f.To == "" || e.StartDate <= f.To
	if f.IncludeRecurring && e.Recurring() && startsInTime {
		return true
	}
	return startsInTime && (f.From == "" || e.EndDate >= f.From)
}

// Matches reports whether the entry satisfies the filter.
func (f LogFilter) Matches(entry LogEntry) bool {
	if f.Action != "" && entry.Action != f.Action {
		return false
	}
	if f.UserID != "" && entry.UserID != f.UserID {
		return false
	}
	if !f.From.IsZero() && entry.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !entry.Timestamp.Before(f.To) {
		return false
	}
	return true
}

// SortEvents orders events by start date, start time and id.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.StartDate != b.StartDate {
			return a.StartDate < b.StartDate
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
}

// SortLogs orders entries newest first, breaking ties by descending id.
func SortLogs(entries []LogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
}
