package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/calendar-service/internal/application"
	"github.com/example/calendar-service/internal/calendar"
)

var (
	userCounter  uint64
	eventCounter uint64
)

// referenceTime is a Monday morning, so "today" fixtures fall mid-week.
var referenceTime = time.Date(2024, time.June, 10, 9, 30, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ReferenceDate returns the calendar day of ReferenceTime.
func ReferenceDate() calendar.Date {
	return calendar.DateOf(referenceTime)
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic Google-authenticated user.
type UserFixture struct {
	ID        string
	GoogleID  string
	Name      string
	Email     string
	Admin     bool
	Active    bool
	CreatedAt time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic, active, non-admin user.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	fixture := UserFixture{
		ID:        id,
		GoogleID:  fmt.Sprintf("google-%03d", idx),
		Name:      fmt.Sprintf("User %03d", idx),
		Email:     fmt.Sprintf("%s@example.com", id),
		Active:    true,
		CreatedAt: referenceTime.Add(-time.Duration(idx) * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

func WithUserID(id string) UserOption {
	return func(f *UserFixture) { f.ID = id }
}

func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) { f.Email = email }
}

func WithUserAdmin() UserOption {
	return func(f *UserFixture) { f.Admin = true }
}

func WithUserInactive() UserOption {
	return func(f *UserFixture) { f.Active = false }
}

// Application returns the fixture as an application.User value.
func (f UserFixture) Application() application.User {
	role := application.RoleUser
	if f.Admin {
		role = application.RoleAdmin
	}
	return application.User{
		ID:        f.ID,
		GoogleID:  f.GoogleID,
		Name:      f.Name,
		Email:     f.Email,
		Role:      role,
		Active:    f.Active,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.CreatedAt,
	}
}

// Principal returns an application.Principal derived from the fixture.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID, Email: f.Email, IsAdmin: f.Admin}
}

// ----------------------------- Event fixtures ----------------------------

// EventFixture represents a deterministic calendar event. The default is a
// one-hour meeting on ReferenceDate.
type EventFixture struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	StartDate   calendar.Date
	EndDate     calendar.Date
	StartTime   string
	EndTime     string
	Group       string
	Repeat      application.Repeat
}

// EventOption configures the generated event fixture.
type EventOption func(*EventFixture)

// NewEventFixture returns a deterministic event owned by ownerID.
func NewEventFixture(ownerID string, opts ...EventOption) EventFixture {
	idx := atomic.AddUint64(&eventCounter, 1)
	fixture := EventFixture{
		ID:        fmt.Sprintf("event-%03d", idx),
		OwnerID:   ownerID,
		Title:     fmt.Sprintf("Event %03d", idx),
		StartDate: ReferenceDate(),
		EndDate:   ReferenceDate(),
		StartTime: "10:00",
		EndTime:   "11:00",
		Repeat:    application.Repeat{Type: application.RepeatNone},
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

func WithEventID(id string) EventOption {
	return func(f *EventFixture) { f.ID = id }
}

func WithEventTitle(title string) EventOption {
	return func(f *EventFixture) { f.Title = title }
}

func WithEventGroup(group string) EventOption {
	return func(f *EventFixture) { f.Group = group }
}

// WithEventDates sets the span. Both arguments use YYYY-MM-DD.
func WithEventDates(start, end string) EventOption {
	return func(f *EventFixture) {
		f.StartDate = calendar.MustDate(start)
		f.EndDate = calendar.MustDate(end)
	}
}

// WithEventTimes sets the clock times. Empty strings make the event all-day.
func WithEventTimes(start, end string) EventOption {
	return func(f *EventFixture) {
		f.StartTime = start
		f.EndTime = end
	}
}

func WithEventRepeat(repeatType application.RepeatType, weekdays ...int) EventOption {
	return func(f *EventFixture) {
		f.Repeat = application.Repeat{Type: repeatType, Weekdays: weekdays}
	}
}

// Input returns the fixture as the payload a client would submit.
func (f EventFixture) Input() application.EventInput {
	return application.EventInput{
		Title:       f.Title,
		Description: f.Description,
		StartDate:   f.StartDate.String(),
		EndDate:     f.EndDate.String(),
		StartTime:   f.StartTime,
		EndTime:     f.EndTime,
		Group:       f.Group,
		Repeat:      f.Repeat,
	}
}

// Application returns the fixture as a stored, active application.Event.
func (f EventFixture) Application() application.Event {
	duration := 0
	if f.StartTime != "" && f.EndTime != "" {
		start, errStart := calendar.ParseClock(f.StartTime)
		end, errEnd := calendar.ParseClock(f.EndTime)
		if errStart == nil && errEnd == nil {
			duration = calendar.SpanMinutes(f.StartDate, start, f.EndDate, end)
		}
	}
	return application.Event{
		ID:          f.ID,
		OwnerID:     f.OwnerID,
		Title:       f.Title,
		Description: f.Description,
		StartDate:   f.StartDate,
		EndDate:     f.EndDate,
		StartTime:   f.StartTime,
		EndTime:     f.EndTime,
		Duration:    duration,
		Group:       f.Group,
		Repeat:      f.Repeat,
		Active:      true,
		CreatedAt:   referenceTime,
		UpdatedAt:   referenceTime,
	}
}
