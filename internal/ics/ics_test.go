package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/calendar-service/internal/application"
	"github.com/example/calendar-service/internal/calendar"
)

var stamp = time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)

func sampleEvents() []application.Event {
	return []application.Event{
		{
			ID:          "e1",
			Title:       "Standup",
			Description: "Daily sync",
			StartDate:   calendar.MustDate("2024-06-10"),
			EndDate:     calendar.MustDate("2024-06-10"),
			StartTime:   "09:00",
			EndTime:     "09:15",
			Group:       "team",
			Repeat:      application.Repeat{Type: application.RepeatWeekly, Weekdays: []int{1, 5}},
			CreatedAt:   stamp,
			UpdatedAt:   stamp,
		},
		{
			ID:        "e2",
			Title:     "Offsite",
			StartDate: calendar.MustDate("2024-06-10"),
			EndDate:   calendar.MustDate("2024-06-12"),
			Repeat:    application.Repeat{Type: application.RepeatNone},
		},
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	doc := Encode(sampleEvents(), stamp)

	assert.True(t, strings.HasPrefix(doc, "BEGIN:VCALENDAR"))
	assert.Contains(t, doc, "PRODID:"+ProductID)
	assert.Contains(t, doc, "UID:e1@calendar-service")
	assert.Contains(t, doc, "DTSTART:20240610T090000")
	assert.Contains(t, doc, "DTEND:20240610T091500")
	assert.Contains(t, doc, "RRULE:FREQ=WEEKLY;BYDAY=MO,FR")
	assert.Contains(t, doc, "CATEGORIES:team")
	assert.Contains(t, doc, "DTSTART;VALUE=DATE:20240610")
	assert.Contains(t, doc, "DTEND;VALUE=DATE:20240613")
	assert.Equal(t, 1, strings.Count(doc, "RRULE"))
}

func TestDecodeReadsEncodedEvents(t *testing.T) {
	t.Parallel()

	inputs, err := Decode(strings.NewReader(Encode(sampleEvents(), stamp)))
	require.NoError(t, err)
	require.Len(t, inputs, 2)

	assert.Equal(t, application.EventInput{
		Title:       "Standup",
		Description: "Daily sync",
		StartDate:   "2024-06-10",
		EndDate:     "2024-06-10",
		StartTime:   "09:00",
		EndTime:     "09:15",
		Group:       "team",
		Repeat:      application.Repeat{Type: application.RepeatWeekly, Weekdays: []int{1, 5}},
	}, inputs[0])

	assert.Equal(t, application.EventInput{
		Title:     "Offsite",
		StartDate: "2024-06-10",
		EndDate:   "2024-06-12",
	}, inputs[1])
}

func TestDecodeExternalDocument(t *testing.T) {
	t.Parallel()

	doc := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//other//EN",
		"BEGIN:VEVENT",
		"UID:a",
		"SUMMARY:Release",
		"DTSTART:20240701T220000Z",
		"DTEND:20240702T000000Z",
		"RRULE:FREQ=MONTHLY;COUNT=3",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:b",
		"SUMMARY:Holiday",
		"DTSTART;VALUE=DATE:20240704",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:c",
		"SUMMARY:Broken",
		"DTSTART:yesterday",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:d",
		"SUMMARY:Hourly",
		"DTSTART:20240705T100000",
		"RRULE:FREQ=HOURLY",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	inputs, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, inputs, 3)

	release := inputs[0]
	assert.Equal(t, "2024-07-01", release.StartDate)
	assert.Equal(t, "2024-07-01", release.EndDate)
	assert.Equal(t, "22:00", release.StartTime)
	assert.Equal(t, "23:59", release.EndTime)
	assert.Equal(t, application.RepeatMonthly, release.Repeat.Type)

	holiday := inputs[1]
	assert.Equal(t, "2024-07-04", holiday.StartDate)
	assert.Equal(t, "2024-07-04", holiday.EndDate)
	assert.Empty(t, holiday.StartTime)

	hourly := inputs[2]
	assert.Equal(t, "10:00", hourly.StartTime)
	assert.Equal(t, "10:00", hourly.EndTime)
	assert.Empty(t, hourly.Repeat.Type)
}

func TestDecodeRejectsEmptyAndMalformedInput(t *testing.T) {
	t.Parallel()

	_, err := Decode(strings.NewReader("  \n"))
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = Decode(strings.NewReader("BEGIN:VEVENT\r\nEND:VEVENT\r\n"))
	assert.Error(t, err)
}
