package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/calendar-service/internal/persistence"
)

// Storage is a process-local persistence backend. Data is lost when the
// process exits.
type Storage struct {
	mu       sync.RWMutex
	users    map[string]persistence.User
	events   map[string]persistence.Event
	logs     []persistence.LogEntry
	sessions map[string]persistence.Session
}

var _ persistence.Store = (*Storage)(nil)

// Open returns an empty Storage.
func Open() *Storage {
	return &Storage{
		users:    make(map[string]persistence.User),
		events:   make(map[string]persistence.Event),
		sessions: make(map[string]persistence.Session),
	}
}

// Close releases resources held by the storage. No-op for the in-memory implementation.
func (s *Storage) Close() error {
	return nil
}

// Ping always succeeds.
func (s *Storage) Ping(context.Context) error {
	return nil
}

// --- UserRepository implementation ---

// CreateUser stores a new user.
func (s *Storage) CreateUser(_ context.Context, user persistence.User) error {
	if strings.TrimSpace(user.ID) == "" || strings.TrimSpace(user.GoogleID) == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("memory: user %s: %w", user.ID, persistence.ErrDuplicate)
	}
	if err := s.ensureUniqueUserLocked(user); err != nil {
		return err
	}

	s.users[user.ID] = cloneUser(user)
	return nil
}

// UpdateUser updates an existing user.
func (s *Storage) UpdateUser(_ context.Context, user persistence.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if err := s.ensureUniqueUserLocked(user); err != nil {
		return err
	}

	user.CreatedAt = existing.CreatedAt
	s.users[user.ID] = cloneUser(user)
	return nil
}

// GetUser retrieves a user by ID.
func (s *Storage) GetUser(_ context.Context, id string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return cloneUser(user), nil
}

// GetUserByGoogleID retrieves a user by Google account subject.
func (s *Storage) GetUserByGoogleID(_ context.Context, googleID string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.GoogleID == googleID {
			return cloneUser(user), nil
		}
	}
	return persistence.User{}, persistence.ErrNotFound
}

// ListUsers returns all users ordered by CreatedAt descending.
func (s *Storage) ListUsers(_ context.Context) ([]persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]persistence.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, cloneUser(user))
	}

	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (s *Storage) ensureUniqueUserLocked(user persistence.User) error {
	email := strings.ToLower(user.Email)
	for existingID, existing := range s.users {
		if existingID == user.ID {
			continue
		}
		if existing.GoogleID == user.GoogleID {
			return fmt.Errorf("memory: google id %s: %w", user.GoogleID, persistence.ErrDuplicate)
		}
		if email != "" && strings.ToLower(existing.Email) == email {
			return fmt.Errorf("memory: email %s: %w", user.Email, persistence.ErrDuplicate)
		}
	}
	return nil
}

// --- EventRepository implementation ---

// CreateEvent stores a new event.
func (s *Storage) CreateEvent(_ context.Context, event persistence.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; ok {
		return fmt.Errorf("memory: event %s: %w", event.ID, persistence.ErrDuplicate)
	}
	if _, ok := s.users[event.OwnerID]; !ok {
		return fmt.Errorf("memory: owner %s does not exist: %w", event.OwnerID, persistence.ErrConstraintViolation)
	}

	s.events[event.ID] = cloneEvent(event)
	return nil
}

// UpdateEvent replaces the mutable fields of an active event. Owner and
// creation time are preserved.
func (s *Storage) UpdateEvent(_ context.Context, event persistence.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.events[event.ID]
	if !ok || !existing.Active || existing.OwnerID != event.OwnerID {
		return persistence.ErrNotFound
	}

	event.CreatedAt = existing.CreatedAt
	event.Active = true
	s.events[event.ID] = cloneEvent(event)
	return nil
}

// GetEvent retrieves an active event owned by ownerID.
func (s *Storage) GetEvent(_ context.Context, ownerID, id string) (persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[id]
	if !ok || !event.Active || event.OwnerID != ownerID {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return cloneEvent(event), nil
}

// ListEvents returns events matching the filter ordered by start.
func (s *Storage) ListEvents(_ context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]persistence.Event, 0)
	for _, event := range s.events {
		if filter.Matches(event) {
			events = append(events, cloneEvent(event))
		}
	}

	persistence.SortEvents(events)
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}
	return events, nil
}

// DeactivateEvent soft-deletes an active event owned by ownerID.
func (s *Storage) DeactivateEvent(_ context.Context, ownerID, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[id]
	if !ok || !event.Active || event.OwnerID != ownerID {
		return persistence.ErrNotFound
	}
	event.Active = false
	event.UpdatedAt = at
	s.events[id] = event
	return nil
}

// DeactivateOwnerEvents soft-deletes every active event of an owner.
func (s *Storage) DeactivateOwnerEvents(_ context.Context, ownerID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, event := range s.events {
		if event.OwnerID != ownerID || !event.Active {
			continue
		}
		event.Active = false
		event.UpdatedAt = at
		s.events[id] = event
		count++
	}
	return count, nil
}

// --- LogRepository implementation ---

// AppendLog stores an audit entry.
func (s *Storage) AppendLog(_ context.Context, entry persistence.LogEntry) error {
	if strings.TrimSpace(entry.ID) == "" || strings.TrimSpace(entry.Action) == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = append(s.logs, cloneLog(entry))
	return nil
}

// QueryLogs returns entries matching the filter, newest first.
func (s *Storage) QueryLogs(_ context.Context, filter persistence.LogFilter) ([]persistence.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]persistence.LogEntry, 0)
	for _, entry := range s.logs {
		if filter.Matches(entry) {
			entries = append(entries, cloneLog(entry))
		}
	}

	persistence.SortLogs(entries)
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	return entries, nil
}

// --- SessionRepository implementation ---

// CreateSession stores a new session.
func (s *Storage) CreateSession(_ context.Context, session persistence.Session) error {
	if strings.TrimSpace(session.ID) == "" || strings.TrimSpace(session.UserID) == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("memory: session %s: %w", session.ID, persistence.ErrDuplicate)
	}
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

// GetSession retrieves a session by ID.
func (s *Storage) GetSession(_ context.Context, id string) (persistence.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return cloneSession(session), nil
}

// RevokeSession marks a session as revoked. Revoking twice keeps the first
// revocation time.
func (s *Storage) RevokeSession(_ context.Context, id string, revokedAt time.Time) (persistence.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	if session.RevokedAt == nil {
		at := revokedAt
		session.RevokedAt = &at
		s.sessions[id] = session
	}
	return cloneSession(session), nil
}

// DeleteExpiredSessions removes sessions that expired at or before reference.
func (s *Storage) DeleteExpiredSessions(_ context.Context, reference time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if !session.ExpiresAt.After(reference) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// --- Helpers ---

func cloneUser(user persistence.User) persistence.User {
	if user.LastLogin != nil {
		at := *user.LastLogin
		user.LastLogin = &at
	}
	return user
}

func cloneEvent(event persistence.Event) persistence.Event {
	if event.RepeatWeekdays != nil {
		weekdays := make([]int, len(event.RepeatWeekdays))
		copy(weekdays, event.RepeatWeekdays)
		event.RepeatWeekdays = weekdays
	}
	return event
}

func cloneLog(entry persistence.LogEntry) persistence.LogEntry {
	if entry.Metadata != nil {
		metadata := make(map[string]any, len(entry.Metadata))
		for k, v := range entry.Metadata {
			metadata[k] = v
		}
		entry.Metadata = metadata
	}
	return entry
}

func cloneSession(session persistence.Session) persistence.Session {
	if session.RevokedAt != nil {
		at := *session.RevokedAt
		session.RevokedAt = &at
	}
	return session
}
