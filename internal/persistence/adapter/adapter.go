// Package adapter exposes a persistence.Store through the repository
// interfaces consumed by the application services.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/example/calendar-service/internal/application"
	"github.com/example/calendar-service/internal/calendar"
	"github.com/example/calendar-service/internal/persistence"
)

// Repository converts between application and storage records. One value
// serves every application repository interface.
type Repository struct {
	store persistence.Store
}

var (
	_ application.UserRepository        = (*Repository)(nil)
	_ application.EventRepository       = (*Repository)(nil)
	_ application.LogRepository         = (*Repository)(nil)
	_ application.SessionRepository     = (*Repository)(nil)
	_ application.OwnerEventDeactivator = (*Repository)(nil)
	_ application.UserLookup            = (*Repository)(nil)
)

// New wraps store.
func New(store persistence.Store) *Repository {
	return &Repository{store: store}
}

// Store returns the wrapped backend.
func (r *Repository) Store() persistence.Store {
	return r.store
}

// Ping checks the wrapped backend.
func (r *Repository) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

// --- users ---

func (r *Repository) CreateUser(ctx context.Context, user application.User) (application.User, error) {
	if err := r.store.CreateUser(ctx, toPersistenceUser(user)); err != nil {
		return application.User{}, err
	}
	return r.GetUser(ctx, user.ID)
}

func (r *Repository) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := r.store.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (r *Repository) GetUserByGoogleID(ctx context.Context, googleID string) (application.User, error) {
	stored, err := r.store.GetUserByGoogleID(ctx, googleID)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (r *Repository) UpdateUser(ctx context.Context, user application.User) (application.User, error) {
	if err := r.store.UpdateUser(ctx, toPersistenceUser(user)); err != nil {
		return application.User{}, err
	}
	return r.GetUser(ctx, user.ID)
}

func (r *Repository) ListUsers(ctx context.Context) ([]application.User, error) {
	stored, err := r.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]application.User, 0, len(stored))
	for _, u := range stored {
		users = append(users, toApplicationUser(u))
	}
	return users, nil
}

// --- events ---

func (r *Repository) CreateEvent(ctx context.Context, event application.Event) (application.Event, error) {
	if err := r.store.CreateEvent(ctx, toPersistenceEvent(event)); err != nil {
		return application.Event{}, err
	}
	return r.GetEvent(ctx, event.OwnerID, event.ID)
}

func (r *Repository) GetEvent(ctx context.Context, ownerID, id string) (application.Event, error) {
	stored, err := r.store.GetEvent(ctx, ownerID, id)
	if err != nil {
		return application.Event{}, err
	}
	return toApplicationEvent(stored)
}

func (r *Repository) UpdateEvent(ctx context.Context, event application.Event) (application.Event, error) {
	if err := r.store.UpdateEvent(ctx, toPersistenceEvent(event)); err != nil {
		return application.Event{}, err
	}
	return r.GetEvent(ctx, event.OwnerID, event.ID)
}

func (r *Repository) DeactivateEvent(ctx context.Context, ownerID, id string, at time.Time) error {
	return r.store.DeactivateEvent(ctx, ownerID, id, at)
}

func (r *Repository) DeactivateOwnerEvents(ctx context.Context, ownerID string, at time.Time) (int, error) {
	return r.store.DeactivateOwnerEvents(ctx, ownerID, at)
}

func (r *Repository) ListEvents(ctx context.Context, filter application.EventFilter) ([]application.Event, error) {
	stored, err := r.store.ListEvents(ctx, toPersistenceEventFilter(filter))
	if err != nil {
		return nil, err
	}
	events := make([]application.Event, 0, len(stored))
	for _, e := range stored {
		event, err := toApplicationEvent(e)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// --- audit log ---

func (r *Repository) AppendLog(ctx context.Context, entry application.LogEntry) (application.LogEntry, error) {
	if err := r.store.AppendLog(ctx, persistence.LogEntry{
		ID:          entry.ID,
		UserID:      entry.UserID,
		Action:      string(entry.Action),
		Description: entry.Description,
		Metadata:    entry.Metadata,
		Timestamp:   entry.Timestamp,
	}); err != nil {
		return application.LogEntry{}, err
	}
	return entry, nil
}

func (r *Repository) QueryLogs(ctx context.Context, filter application.LogFilter) ([]application.LogEntry, error) {
	query := persistence.LogFilter{
		Action: string(filter.Action),
		UserID: filter.UserID,
		Limit:  filter.Limit,
	}
	if filter.Window != nil {
		query.From = filter.Window.Start.Time(time.UTC)
		query.To = filter.Window.End.AddDays(1).Time(time.UTC)
	}

	stored, err := r.store.QueryLogs(ctx, query)
	if err != nil {
		return nil, err
	}
	entries := make([]application.LogEntry, 0, len(stored))
	for _, e := range stored {
		entries = append(entries, application.LogEntry{
			ID:          e.ID,
			UserID:      e.UserID,
			Action:      application.LogAction(e.Action),
			Description: e.Description,
			Metadata:    e.Metadata,
			Timestamp:   e.Timestamp,
		})
	}
	return entries, nil
}

// --- sessions ---

func (r *Repository) CreateSession(ctx context.Context, session application.Session) (application.Session, error) {
	if err := r.store.CreateSession(ctx, persistence.Session(session)); err != nil {
		return application.Session{}, err
	}
	return session, nil
}

func (r *Repository) GetSession(ctx context.Context, id string) (application.Session, error) {
	stored, err := r.store.GetSession(ctx, id)
	if err != nil {
		return application.Session{}, err
	}
	return application.Session(stored), nil
}

func (r *Repository) RevokeSession(ctx context.Context, id string, revokedAt time.Time) (application.Session, error) {
	stored, err := r.store.RevokeSession(ctx, id, revokedAt)
	if err != nil {
		return application.Session{}, err
	}
	return application.Session(stored), nil
}

func (r *Repository) DeleteExpiredSessions(ctx context.Context, reference time.Time) (int, error) {
	return r.store.DeleteExpiredSessions(ctx, reference)
}

// --- conversions ---

func toPersistenceUser(user application.User) persistence.User {
	return persistence.User{
		ID:        user.ID,
		GoogleID:  user.GoogleID,
		Name:      user.Name,
		Email:     user.Email,
		Picture:   user.Picture,
		Role:      string(user.Role),
		Active:    user.Active,
		LastLogin: user.LastLogin,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

func toApplicationUser(user persistence.User) application.User {
	return application.User{
		ID:        user.ID,
		GoogleID:  user.GoogleID,
		Name:      user.Name,
		Email:     user.Email,
		Picture:   user.Picture,
		Role:      application.Role(user.Role),
		Active:    user.Active,
		LastLogin: user.LastLogin,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

func toPersistenceEvent(event application.Event) persistence.Event {
	repeatType := string(event.Repeat.Type)
	if repeatType == "" {
		repeatType = string(application.RepeatNone)
	}
	return persistence.Event{
		ID:             event.ID,
		OwnerID:        event.OwnerID,
		Title:          event.Title,
		Description:    event.Description,
		StartDate:      event.StartDate.String(),
		EndDate:        event.EndDate.String(),
		StartTime:      event.StartTime,
		EndTime:        event.EndTime,
		Duration:       event.Duration,
		Group:          event.Group,
		RepeatType:     repeatType,
		RepeatWeekdays: event.Repeat.Weekdays,
		Active:         event.Active,
		CreatedAt:      event.CreatedAt,
		UpdatedAt:      event.UpdatedAt,
	}
}

func toApplicationEvent(event persistence.Event) (application.Event, error) {
	start, err := calendar.ParseDate(event.StartDate)
	if err != nil {
		return application.Event{}, fmt.Errorf("event %s start date: %w", event.ID, err)
	}
	end, err := calendar.ParseDate(event.EndDate)
	if err != nil {
		return application.Event{}, fmt.Errorf("event %s end date: %w", event.ID, err)
	}
	return application.Event{
		ID:          event.ID,
		OwnerID:     event.OwnerID,
		Title:       event.Title,
		Description: event.Description,
		StartDate:   start,
		EndDate:     end,
		StartTime:   event.StartTime,
		EndTime:     event.EndTime,
		Duration:    event.Duration,
		Group:       event.Group,
		Repeat: application.Repeat{
			Type:     application.RepeatType(event.RepeatType),
			Weekdays: event.RepeatWeekdays,
		},
		Active:    event.Active,
		CreatedAt: event.CreatedAt,
		UpdatedAt: event.UpdatedAt,
	}, nil
}

func toPersistenceEventFilter(filter application.EventFilter) persistence.EventFilter {
	out := persistence.EventFilter{
		OwnerID:          filter.OwnerID,
		IncludeRecurring: filter.IncludeRecurring,
		Query:            filter.Query,
		Group:            filter.Group,
		Limit:            filter.Limit,
	}
	if filter.Window != nil {
		out.From = filter.Window.Start.String()
		out.To = filter.Window.End.String()
	}
	return out
}
