package persistence

import (
	"context"
	"time"
)

// UserRepository exposes CRUD operations for users.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByGoogleID(ctx context.Context, googleID string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// EventFilter narrows event queries. Only active events of OwnerID are
// returned. From and To are inclusive DateLayout bounds; an event matches when
// its date span overlaps them. IncludeRecurring also admits recurring events
// that started on or before To. Query and Group are case-insensitive literal
// substrings. A zero Limit means unlimited.
type EventFilter struct {
	OwnerID          string
	From             string
	To               string
	IncludeRecurring bool
	Query            string
	Group            string
	Limit            int
}

// EventRepository stores calendar events. Lookups and deactivation are
// scoped to the owner and to active events.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) error
	UpdateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, ownerID, id string) (Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	DeactivateEvent(ctx context.Context, ownerID, id string, at time.Time) error
	DeactivateOwnerEvents(ctx context.Context, ownerID string, at time.Time) (int, error)
}

// LogFilter narrows audit trail queries. From is inclusive and To exclusive;
// zero values leave that side unbounded.
type LogFilter struct {
	Action string
	UserID string
	From   time.Time
	To     time.Time
	Limit  int
}

// LogRepository stores the audit trail. Queries return entries newest first.
type LogRepository interface {
	AppendLog(ctx context.Context, entry LogEntry) error
	QueryLogs(ctx context.Context, filter LogFilter) ([]LogEntry, error)
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	RevokeSession(ctx context.Context, id string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) (int, error)
}

// Store is a complete storage backend.
type Store interface {
	UserRepository
	EventRepository
	LogRepository
	SessionRepository
	Ping(ctx context.Context) error
	Close() error
}
