package application

import (
	"time"

	"github.com/example/calendar-service/internal/calendar"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID    string
	Email     string
	IsAdmin   bool
	SessionID string
}

// Role distinguishes administrators from regular users.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is a Google-authenticated account.
type User struct {
	ID        string
	GoogleID  string
	Name      string
	Email     string
	Picture   string
	Role      Role
	Active    bool
	LastLogin *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// RepeatType names how often an event repeats.
type RepeatType string

const (
	RepeatNone    RepeatType = "none"
	RepeatDaily   RepeatType = "daily"
	RepeatWeekly  RepeatType = "weekly"
	RepeatMonthly RepeatType = "monthly"
	RepeatYearly  RepeatType = "yearly"
)

// Repeat is the recurrence tag stored with an event. Weekdays use 0=Sunday..6=Saturday
// and are only meaningful for weekly repeats.
type Repeat struct {
	Type     RepeatType `json:"type" validate:"omitempty,oneof=none daily weekly monthly yearly"`
	Weekdays []int      `json:"weekdays,omitempty" validate:"omitempty,unique,dive,min=0,max=6"`
}

// IsRecurring reports whether the tag describes a repeating event.
func (r Repeat) IsRecurring() bool {
	return r.Type != "" && r.Type != RepeatNone
}

// Event is a calendar entry owned by a single user.
type Event struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	StartDate   calendar.Date
	EndDate     calendar.Date
	// StartTime and EndTime are HH:mm strings; both empty means an all-day event.
	StartTime string
	EndTime   string
	Duration  int
	Group     string
	Repeat    Repeat
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
	// SeriesID is set on occurrences produced by recurrence expansion and
	// names the stored event they were generated from.
	SeriesID string
}

// IsMultiDay reports whether the event spans more than one calendar day.
func (e Event) IsMultiDay() bool {
	return e.StartDate != e.EndDate
}

// IsAllDay reports whether the event carries no time of day.
func (e Event) IsAllDay() bool {
	return e.StartTime == "" && e.EndTime == ""
}

// OccursOn reports whether d falls within [StartDate, EndDate].
func (e Event) OccursOn(d calendar.Date) bool {
	return d.Within(e.StartDate, e.EndDate)
}

// EventInput captures caller provided event fields exactly as submitted. Date
// and time values stay strings until ValidateEventInput parses them.
type EventInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description,omitempty" validate:"max=5000"`
	// Date is a single-day shorthand that fills StartDate and EndDate when they are absent.
	Date      string `json:"date,omitempty"`
	StartDate string `json:"startDate" validate:"required,isodate"`
	EndDate   string `json:"endDate" validate:"required,isodate"`
	StartTime string `json:"startTime,omitempty" validate:"omitempty,clock"`
	EndTime   string `json:"endTime,omitempty" validate:"omitempty,clock"`
	Group     string `json:"group,omitempty" validate:"max=100"`
	Repeat    Repeat `json:"repeat"`
}

// EventFields holds a validated, normalised EventInput.
type EventFields struct {
	Title       string
	Description string
	StartDate   calendar.Date
	EndDate     calendar.Date
	StartTime   string
	EndTime     string
	Duration    int
	Group       string
	Repeat      Repeat
}

// CreateEventParams wraps the data required to create an event.
type CreateEventParams struct {
	Principal Principal
	Input     EventInput
}

// UpdateEventParams wraps the data required to update an existing event.
type UpdateEventParams struct {
	Principal Principal
	EventID   string
	Input     EventInput
}

// ListEventsParams narrows an event listing. A nil Window lists every active event.
type ListEventsParams struct {
	Principal Principal
	Window    *calendar.Range
	Expand    bool
}

// SearchEventsParams filters events by text, date window and group.
type SearchEventsParams struct {
	Principal Principal
	Query     string
	Window    *calendar.Range
	Group     string
}

// UploadEventsParams carries a bulk import batch.
type UploadEventsParams struct {
	Principal Principal
	Entries   []EventInput
}

// UploadResult reports how many entries of a batch were stored.
type UploadResult struct {
	Count   int
	Skipped int
	Events  []Event
}

// LogAction enumerates the recognised audit actions.
type LogAction string

const (
	LogEventCreated LogAction = "event_created"
	LogEventUpdated LogAction = "event_updated"
	LogEventDeleted LogAction = "event_deleted"
	LogJSONUpload   LogAction = "json_upload"
	LogUserLogin    LogAction = "user_login"
	LogUserLogout   LogAction = "user_logout"
	LogAdminAction  LogAction = "admin_action"
)

// LogActions lists every recognised action in a stable order.
var LogActions = []LogAction{
	LogEventCreated,
	LogEventUpdated,
	LogEventDeleted,
	LogJSONUpload,
	LogUserLogin,
	LogUserLogout,
	LogAdminAction,
}

// Valid reports whether the action is one of LogActions.
func (a LogAction) Valid() bool {
	for _, known := range LogActions {
		if a == known {
			return true
		}
	}
	return false
}

// LogEntry is an immutable audit record.
type LogEntry struct {
	ID          string
	UserID      string
	Action      LogAction
	Description string
	Metadata    map[string]any
	Timestamp   time.Time
	// UserName and UserEmail are joined from the user directory on query.
	UserName  string
	UserEmail string
}

// LogQueryParams narrows an audit query.
type LogQueryParams struct {
	Principal Principal
	Action    LogAction
	UserID    string
	Window    *calendar.Range
	Limit     int
}

// Session is a server-side record of an issued token.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// SignInResult is returned from a successful Google sign-in.
type SignInResult struct {
	User      User
	Token     string
	ExpiresAt time.Time
}

// SetUserActiveParams toggles a user's activation flag.
type SetUserActiveParams struct {
	Principal Principal
	UserID    string
	Active    bool
}
