package placement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/calendar-service/internal/calendar"
)

var day = calendar.MustDate("2024-06-10")

func at(hour, minute int) time.Time {
	return time.Date(2024, time.June, 10, hour, minute, 0, 0, time.UTC)
}

func single(id, start, end string) Event {
	return Event{ID: id, Title: id, StartDate: day, EndDate: day, StartTime: start, EndTime: end}
}

func ids(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Event.ID)
	}
	return out
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		date  calendar.Date
		event Event
		now   time.Time
		want  Class
	}{
		{name: "inside the time range", date: day, event: single("a", "10:00", "11:00"), now: at(10, 30), want: HappeningNow},
		{name: "start boundary is inclusive", date: day, event: single("a", "10:00", "11:00"), now: at(10, 0), want: HappeningNow},
		{name: "end boundary is inclusive", date: day, event: single("a", "10:00", "11:00"), now: at(11, 0), want: HappeningNow},
		{name: "later today", date: day, event: single("a", "12:00", "13:00"), now: at(10, 30), want: Upcoming},
		{name: "earlier today", date: day, event: single("a", "08:00", "09:00"), now: at(10, 30), want: Past},
		{name: "all day", date: day, event: single("a", "", ""), now: at(23, 59), want: HappeningNow},
		{name: "zero duration at its instant", date: day, event: single("a", "10:00", "10:00"), now: at(10, 0), want: HappeningNow},
		{name: "zero duration one minute later", date: day, event: single("a", "10:00", "10:00"), now: at(10, 1), want: Past},
		{name: "zero duration one minute earlier", date: day, event: single("a", "10:00", "10:00"), now: at(9, 59), want: Upcoming},
		{name: "future date", date: day.AddDays(1), event: single("a", "08:00", "09:00"), now: at(10, 30), want: Upcoming},
		{name: "past date", date: day.AddDays(-1), event: single("a", "", ""), now: at(10, 30), want: Past},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Classify(tc.date, tc.event, tc.now))
		})
	}
}

func TestPlace_OrdersByPriorityRegardlessOfInputOrder(t *testing.T) {
	t.Parallel()

	now := single("now", "10:00", "11:00")
	upcoming := single("upcoming", "12:00", "13:00")
	past := single("past", "08:00", "09:00")

	orders := [][]Event{
		{now, upcoming, past},
		{past, upcoming, now},
		{upcoming, past, now},
		{past, now, upcoming},
	}
	for _, events := range orders {
		view := Place(day, events, at(10, 30), ListOptions)
		assert.Equal(t, []string{"now", "upcoming", "past"}, ids(view.Items))
		assert.Zero(t, view.Overflow)
	}
}

func TestPlace_TiesBreakByStartTime(t *testing.T) {
	t.Parallel()

	events := []Event{
		single("late", "15:00", "16:00"),
		single("allday", "", ""),
		single("early", "11:00", "12:00"),
	}
	view := Place(day, events, at(10, 30), ListOptions)
	assert.Equal(t, []string{"allday", "early", "late"}, ids(view.Items))
	assert.Equal(t, HappeningNow, view.Items[0].Class)
}

func TestPlace_AllDayLeadsMidnightStart(t *testing.T) {
	t.Parallel()

	events := []Event{
		single("a-timed", "00:00", "01:00"),
		single("b-allday", "", ""),
	}
	view := Place(day, events, at(0, 0).Add(30*time.Second), ListOptions)
	assert.Equal(t, []string{"b-allday", "a-timed"}, ids(view.Items))
	assert.Equal(t, HappeningNow, view.Items[0].Class)
	assert.Equal(t, HappeningNow, view.Items[1].Class)
}

func TestPlace_IsDeterministic(t *testing.T) {
	t.Parallel()

	events := []Event{
		single("b", "09:00", "10:00"),
		single("a", "09:00", "10:00"),
		single("c", "", ""),
		{ID: "m", StartDate: day.AddDays(-2), EndDate: day.AddDays(2)},
	}
	first := Place(day, events, at(12, 0), GridOptions)
	second := Place(day, events, at(12, 0), GridOptions)
	assert.Equal(t, first, second)

	reversed := []Event{events[3], events[2], events[1], events[0]}
	assert.Equal(t, first, Place(day, reversed, at(12, 0), GridOptions))
}

func TestPlace_GridCapsAndReportsOverflow(t *testing.T) {
	t.Parallel()

	events := []Event{
		single("a", "09:00", "10:00"),
		single("b", "11:00", "12:00"),
		single("c", "13:00", "14:00"),
		single("d", "15:00", "16:00"),
		{ID: "trip", StartDate: day.AddDays(-1), EndDate: day.AddDays(1)},
		{ID: "conf", StartDate: day, EndDate: day.AddDays(3)},
		{ID: "elsewhere", StartDate: day.AddDays(5), EndDate: day.AddDays(6)},
	}

	view := Place(day, events, at(8, 0), GridOptions)
	assert.Equal(t, []string{"a", "b"}, ids(view.Items))
	assert.Equal(t, 2, view.Overflow)
	assert.Equal(t, []string{"trip"}, ids(view.Banners))
	assert.Equal(t, 1, view.BannerOverflow)
	assert.Equal(t, 6, view.Total())

	list := Place(day, events, at(8, 0), ListOptions)
	assert.Len(t, list.Items, 4)
	assert.Len(t, list.Banners, 2)
	assert.Zero(t, list.Overflow)
}

func TestPlace_MultiDaySpanClassification(t *testing.T) {
	t.Parallel()

	trip := Event{ID: "trip", StartDate: day.AddDays(-1), EndDate: day.AddDays(1), StartTime: "18:00", EndTime: "09:00"}
	view := Place(day, []Event{trip}, at(10, 0), ListOptions)
	require.Len(t, view.Banners, 1)
	assert.Equal(t, HappeningNow, view.Banners[0].Class)
}

func TestPlaceMonth(t *testing.T) {
	t.Parallel()

	events := []Event{
		single("standup", "09:00", "09:15"),
		{ID: "holiday", StartDate: calendar.MustDate("2024-05-30"), EndDate: calendar.MustDate("2024-06-02")},
	}
	lookup := func(d calendar.Date) []Event {
		var out []Event
		for _, e := range events {
			if e.OccursOn(d) {
				out = append(out, e)
			}
		}
		return out
	}

	views := PlaceMonth(calendar.MustDate("2024-06-15"), lookup, at(8, 0), GridOptions)
	require.Len(t, views, 42)
	assert.Equal(t, calendar.MustDate("2024-05-26"), views[0].Date)
	assert.False(t, views[0].InMonth)
	assert.Equal(t, calendar.MustDate("2024-07-06"), views[len(views)-1].Date)

	byDate := make(map[calendar.Date]DayView, len(views))
	for _, v := range views {
		byDate[v.Date] = v
	}
	assert.Equal(t, []string{"holiday"}, ids(byDate[calendar.MustDate("2024-05-30")].Banners))
	assert.Equal(t, []string{"holiday"}, ids(byDate[calendar.MustDate("2024-06-01")].Banners))
	assert.True(t, byDate[calendar.MustDate("2024-06-01")].InMonth)
	assert.Empty(t, byDate[calendar.MustDate("2024-06-03")].Banners)
	assert.Equal(t, []string{"standup"}, ids(byDate[day].Items))
}

func TestNotices(t *testing.T) {
	t.Parallel()

	events := []Event{
		{ID: "tomorrow", StartDate: day.AddDays(1), EndDate: day.AddDays(1), StartTime: "09:00", EndTime: "10:00"},
		{ID: "nextweek", StartDate: day.AddDays(6), EndDate: day.AddDays(6)},
		{ID: "toofar", StartDate: day.AddDays(9), EndDate: day.AddDays(9)},
		{ID: "done", StartDate: day, EndDate: day, StartTime: "08:00", EndTime: "09:00"},
		{ID: "later", StartDate: day, EndDate: day, StartTime: "15:00", EndTime: "16:00"},
		{ID: "weekly", StartDate: day.AddDays(-14), EndDate: day.AddDays(-14), Recurring: true},
	}

	notices := Notices(events, at(10, 30), 0)
	require.Len(t, notices, 4)

	assert.Equal(t, "later", notices[0].Event.ID)
	assert.Equal(t, PriorityHigh, notices[0].Priority)
	assert.Equal(t, "tomorrow", notices[1].Event.ID)
	assert.Equal(t, PriorityHigh, notices[1].Priority)
	assert.Equal(t, 1, notices[1].DaysAway)
	assert.Equal(t, "weekly", notices[2].Event.ID)
	assert.Equal(t, NoticeRepeat, notices[2].Kind)
	assert.Equal(t, "nextweek", notices[3].Event.ID)
	assert.Equal(t, PriorityNormal, notices[3].Priority)
}
