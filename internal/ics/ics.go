// Package ics converts events to and from iCalendar (RFC 5545) documents.
package ics

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/example/calendar-service/internal/application"
	"github.com/example/calendar-service/internal/calendar"
	"github.com/example/calendar-service/internal/recurrence"
)

// ProductID identifies documents produced by Encode.
const ProductID = "-//calendar-service//events//EN"

// ContentType is the media type of an encoded document.
const ContentType = "text/calendar; charset=utf-8"

const (
	dateLayout      = "20060102"
	localTimeLayout = "20060102T150405"
	utcTimeLayout   = "20060102T150405Z"
	uidDomain       = "@calendar-service"
)

// ErrEmptyDocument is returned by Decode when the input holds no data.
var ErrEmptyDocument = errors.New("ics: empty document")

// Encode renders events as a VCALENDAR. Events with a time of day are written
// as floating local times; all-day events use DATE values with an exclusive
// end. Repeat tags become RRULE lines.
func Encode(events []application.Event, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)

	for _, e := range events {
		vevent := cal.AddEvent(e.ID + uidDomain)
		vevent.SetDtStampTime(now.UTC())
		if !e.CreatedAt.IsZero() {
			vevent.SetCreatedTime(e.CreatedAt.UTC())
		}
		if !e.UpdatedAt.IsZero() {
			vevent.SetModifiedAt(e.UpdatedAt.UTC())
		}
		vevent.SetSummary(e.Title)
		if e.Description != "" {
			vevent.SetDescription(e.Description)
		}
		if e.Group != "" {
			vevent.AddCategory(e.Group)
		}

		if e.StartTime == "" {
			vevent.SetAllDayStartAt(e.StartDate.Time(time.UTC))
			vevent.SetAllDayEndAt(e.EndDate.AddDays(1).Time(time.UTC))
		} else {
			endTime := e.EndTime
			if endTime == "" {
				endTime = e.StartTime
			}
			vevent.SetProperty(ical.ComponentPropertyDtStart, formatLocal(e.StartDate, e.StartTime))
			vevent.SetProperty(ical.ComponentPropertyDtEnd, formatLocal(e.EndDate, endTime))
		}

		if e.Repeat.IsRecurring() {
			if rule, err := e.Repeat.Rule().RRule(); err == nil {
				vevent.AddRrule(rule)
			}
		}
	}
	return cal.Serialize()
}

// Write encodes events to w.
func Write(w io.Writer, events []application.Event, now time.Time) error {
	_, err := io.WriteString(w, Encode(events, now))
	return err
}

func formatLocal(d calendar.Date, clock string) string {
	return strings.ReplaceAll(d.String(), "-", "") + "T" + strings.ReplaceAll(clock, ":", "") + "00"
}

// Decode reads every VEVENT of r into event inputs ready for validation.
// UTC date-times keep their UTC wall clock. Events with an unreadable DTSTART
// are skipped; unsupported repeat rules are dropped and the event kept.
func Decode(r io.Reader) ([]application.EventInput, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ics: read: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyDocument
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse calendar: %w", err)
	}

	vevents := cal.Events()
	inputs := make([]application.EventInput, 0, len(vevents))
	for _, vevent := range vevents {
		input, ok := decodeEvent(vevent)
		if !ok {
			continue
		}
		inputs = append(inputs, input)
	}
	return inputs, nil
}

func decodeEvent(vevent *ical.VEvent) (application.EventInput, bool) {
	startProp := vevent.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return application.EventInput{}, false
	}
	start, startAllDay, err := parseStamp(startProp.Value)
	if err != nil {
		return application.EventInput{}, false
	}

	input := application.EventInput{
		Title:       propertyValue(vevent, ical.ComponentPropertySummary),
		Description: propertyValue(vevent, ical.ComponentPropertyDescription),
		Group:       propertyValue(vevent, ical.ComponentPropertyCategories),
		StartDate:   start.Format(time.DateOnly),
		EndDate:     start.Format(time.DateOnly),
	}

	end := start
	if endProp := vevent.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
		if parsed, _, err := parseStamp(endProp.Value); err == nil && !parsed.Before(start) {
			end = parsed
		}
	}

	if startAllDay {
		// DTEND is exclusive for DATE values.
		if last := end.AddDate(0, 0, -1); last.After(start) {
			input.EndDate = last.Format(time.DateOnly)
		}
	} else {
		if end.After(start) && end.Hour() == 0 && end.Minute() == 0 {
			end = end.Add(-time.Minute)
		}
		input.StartTime = start.Format("15:04")
		input.EndTime = end.Format("15:04")
		input.EndDate = end.Format(time.DateOnly)
	}

	if ruleProp := vevent.GetProperty(ical.ComponentPropertyRrule); ruleProp != nil {
		if rule, err := recurrence.ParseRRule(ruleProp.Value); err == nil {
			input.Repeat = repeatFromRule(rule)
		}
	}
	return input, true
}

func repeatFromRule(rule recurrence.Rule) application.Repeat {
	repeat := application.Repeat{Type: application.RepeatType(rule.Frequency)}
	for _, day := range rule.Weekdays {
		repeat.Weekdays = append(repeat.Weekdays, int(day))
	}
	return repeat
}

func propertyValue(vevent *ical.VEvent, property ical.ComponentProperty) string {
	if prop := vevent.GetProperty(property); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	return ""
}

// parseStamp reads DATE, floating DATE-TIME and UTC DATE-TIME values.
func parseStamp(value string) (time.Time, bool, error) {
	value = strings.TrimSpace(value)
	switch {
	case len(value) == len(dateLayout):
		t, err := time.Parse(dateLayout, value)
		return t, true, err
	case strings.HasSuffix(value, "Z"):
		t, err := time.Parse(utcTimeLayout, value)
		return t, false, err
	default:
		t, err := time.Parse(localTimeLayout, value)
		return t, false, err
	}
}
