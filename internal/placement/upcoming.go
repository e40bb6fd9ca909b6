package placement

import (
	"sort"
	"time"

	"github.com/example/calendar-service/internal/calendar"
)

// Notice kinds.
const (
	NoticeUpcoming = "upcoming"
	NoticeRepeat   = "repeat"
)

// Notice priorities.
const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
)

// UpcomingWindowDays is how far ahead Notices looks by default.
const UpcomingWindowDays = 7

// Notice is a reminder about an upcoming or repeating event.
type Notice struct {
	Kind     string
	Priority string
	Event    Event
	// DaysAway is the number of dates between today and the event start.
	DaysAway int
}

// Notices lists events that start after now and no more than days dates
// ahead, plus one repeat notice per recurring event. Events starting today or
// tomorrow are high priority. High priority notices sort first, then by start.
func Notices(events []Event, now time.Time, days int) []Notice {
	if days <= 0 {
		days = UpcomingWindowDays
	}
	today := calendar.DateOf(now)
	horizon := today.AddDays(days)
	current := now.Truncate(time.Minute)

	notices := make([]Notice, 0, len(events))
	for _, e := range events {
		away := today.DaysUntil(e.StartDate)
		starts := e.startClock().On(e.StartDate, now.Location())
		if starts.After(current) && !e.StartDate.After(horizon) {
			priority := PriorityNormal
			if away <= 1 {
				priority = PriorityHigh
			}
			notices = append(notices, Notice{Kind: NoticeUpcoming, Priority: priority, Event: e, DaysAway: away})
		}
		if e.Recurring {
			notices = append(notices, Notice{Kind: NoticeRepeat, Priority: PriorityNormal, Event: e, DaysAway: away})
		}
	}

	sort.SliceStable(notices, func(i, j int) bool {
		a, b := notices[i], notices[j]
		if (a.Priority == PriorityHigh) != (b.Priority == PriorityHigh) {
			return a.Priority == PriorityHigh
		}
		if c := a.Event.StartDate.Compare(b.Event.StartDate); c != 0 {
			return c < 0
		}
		if lessByStart(a.Event, b.Event) != lessByStart(b.Event, a.Event) {
			return lessByStart(a.Event, b.Event)
		}
		return a.Kind == NoticeUpcoming && b.Kind != NoticeUpcoming
	})
	return notices
}
