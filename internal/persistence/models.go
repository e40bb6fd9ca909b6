package persistence

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the storage format of civil dates. Values in this layout
// order lexicographically.
const DateLayout = "2006-01-02"

// User represents an account created through Google sign-in.
type User struct {
	ID        string
	GoogleID  string
	Name      string
	Email     string
	Picture   string
	Role      string
	Active    bool
	LastLogin *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Event represents a calendar entry stored in persistence. Dates use
// DateLayout and times use HH:mm; empty times mark an all-day event.
type Event struct {
	ID             string
	OwnerID        string
	Title          string
	Description    string
	StartDate      string
	EndDate        string
	StartTime      string
	EndTime        string
	Duration       int
	Group          string
	RepeatType     string
	RepeatWeekdays []int
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Recurring reports whether the event carries a repeat rule.
func (e Event) Recurring() bool {
	return e.RepeatType != "" && e.RepeatType != "none"
}

// Validate checks the invariants every backend enforces on stored events.
func (e Event) Validate() error {
	switch {
	case strings.TrimSpace(e.ID) == "", strings.TrimSpace(e.OwnerID) == "":
		return fmt.Errorf("%w: event id and owner are required", ErrConstraintViolation)
	case strings.TrimSpace(e.Title) == "":
		return fmt.Errorf("%w: event title is required", ErrConstraintViolation)
	case e.StartDate == "" || e.EndDate < e.StartDate:
		return fmt.Errorf("%w: event dates out of order", ErrConstraintViolation)
	}
	return nil
}

// LogEntry is one record of the audit trail.
type LogEntry struct {
	ID          string
	UserID      string
	Action      string
	Description string
	Metadata    map[string]any
	Timestamp   time.Time
}

// Session represents an issued sign-in session.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}
