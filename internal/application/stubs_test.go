package application

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/example/calendar-service/internal/auth"
	"github.com/example/calendar-service/internal/calendar"
)

type eventRepositoryStub struct {
	mu      sync.Mutex
	events  map[string]Event
	listErr error
	filters []EventFilter
	// createErr is returned once createLimit events have been created.
	createErr   error
	createLimit int
}

func newEventRepositoryStub(events ...Event) *eventRepositoryStub {
	repo := &eventRepositoryStub{events: make(map[string]Event)}
	for _, e := range events {
		repo.events[e.ID] = e
	}
	return repo
}

func (r *eventRepositoryStub) CreateEvent(_ context.Context, event Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil && len(r.events) >= r.createLimit {
		return Event{}, r.createErr
	}
	r.events[event.ID] = event
	return event, nil
}

func (r *eventRepositoryStub) GetEvent(_ context.Context, ownerID, id string) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok || e.OwnerID != ownerID || !e.Active {
		return Event{}, ErrNotFound
	}
	return e, nil
}

func (r *eventRepositoryStub) UpdateEvent(_ context.Context, event Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[event.ID]; !ok {
		return Event{}, ErrNotFound
	}
	r.events[event.ID] = event
	return event, nil
}

func (r *eventRepositoryStub) DeactivateEvent(_ context.Context, ownerID, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok || e.OwnerID != ownerID || !e.Active {
		return ErrNotFound
	}
	e.Active = false
	e.UpdatedAt = at
	r.events[id] = e
	return nil
}

func (r *eventRepositoryStub) DeactivateOwnerEvents(_ context.Context, ownerID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for id, e := range r.events {
		if e.OwnerID == ownerID && e.Active {
			e.Active = false
			e.UpdatedAt = at
			r.events[id] = e
			count++
		}
	}
	return count, nil
}

func (r *eventRepositoryStub) ListEvents(_ context.Context, filter EventFilter) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters = append(r.filters, filter)
	if r.listErr != nil {
		return nil, r.listErr
	}

	var out []Event
	for _, e := range r.events {
		if e.OwnerID != filter.OwnerID || !e.Active {
			continue
		}
		if filter.Window != nil && !filter.Window.Overlaps(e.StartDate, e.EndDate) {
			recurringMatch := filter.IncludeRecurring && e.Repeat.IsRecurring() && !e.StartDate.After(filter.Window.End)
			if !recurringMatch {
				continue
			}
		}
		if q := strings.ToLower(filter.Query); q != "" &&
			!strings.Contains(strings.ToLower(e.Title), q) &&
			!strings.Contains(strings.ToLower(e.Description), q) {
			continue
		}
		if g := strings.ToLower(filter.Group); g != "" && !strings.Contains(strings.ToLower(e.Group), g) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *eventRepositoryStub) get(id string) Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[id]
}

type userRepositoryStub struct {
	mu    sync.Mutex
	users map[string]User
	err   error
}

func newUserRepositoryStub(users ...User) *userRepositoryStub {
	repo := &userRepositoryStub{users: make(map[string]User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *userRepositoryStub) CreateUser(_ context.Context, user User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return user, nil
}

func (r *userRepositoryStub) GetUser(_ context.Context, id string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return User{}, r.err
	}
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *userRepositoryStub) GetUserByGoogleID(_ context.Context, googleID string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.GoogleID == googleID {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *userRepositoryStub) UpdateUser(_ context.Context, user User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return User{}, ErrNotFound
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *userRepositoryStub) ListUsers(_ context.Context) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

type sessionRepositoryStub struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func newSessionRepositoryStub() *sessionRepositoryStub {
	return &sessionRepositoryStub{sessions: make(map[string]Session)}
}

func (r *sessionRepositoryStub) CreateSession(_ context.Context, session Session) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return session, nil
}

func (r *sessionRepositoryStub) GetSession(_ context.Context, id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (r *sessionRepositoryStub) RevokeSession(_ context.Context, id string, revokedAt time.Time) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	s.RevokedAt = &revokedAt
	r.sessions[id] = s
	return s, nil
}

func (r *sessionRepositoryStub) DeleteExpiredSessions(_ context.Context, reference time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		if !s.ExpiresAt.After(reference) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed, nil
}

type logRepositoryStub struct {
	mu      sync.Mutex
	entries []LogEntry
	filters []LogFilter
	err     error
}

func (r *logRepositoryStub) AppendLog(_ context.Context, entry LogEntry) (LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return LogEntry{}, r.err
	}
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *logRepositoryStub) QueryLogs(_ context.Context, filter LogFilter) ([]LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters = append(r.filters, filter)
	var out []LogEntry
	for _, e := range r.entries {
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		if filter.Window != nil && !filter.Window.Contains(calendar.DateOf(e.Timestamp)) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *logRepositoryStub) snapshot() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

type recordedActivity struct {
	UserID      string
	Action      LogAction
	Description string
	Metadata    map[string]any
}

type activityRecorderStub struct {
	mu      sync.Mutex
	records []recordedActivity
}

func (a *activityRecorderStub) Record(_ context.Context, userID string, action LogAction, description string, metadata map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, recordedActivity{UserID: userID, Action: action, Description: description, Metadata: metadata})
}

func (a *activityRecorderStub) actions() []LogAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]LogAction, 0, len(a.records))
	for _, r := range a.records {
		out = append(out, r.Action)
	}
	return out
}

type googleVerifierStub struct {
	identity auth.Identity
	err      error
}

func (g *googleVerifierStub) Verify(_ context.Context, credential string) (auth.Identity, error) {
	if g.err != nil {
		return auth.Identity{}, g.err
	}
	if credential == "" {
		return auth.Identity{}, auth.ErrInvalidCredential
	}
	return g.identity, nil
}

type tokenIssuerStub struct {
	mu     sync.Mutex
	issued map[string]auth.Claims
	now    func() time.Time
}

func newTokenIssuerStub(now func() time.Time) *tokenIssuerStub {
	return &tokenIssuerStub{issued: make(map[string]auth.Claims), now: now}
}

func (t *tokenIssuerStub) Issue(claims auth.Claims) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	token := "token-" + claims.SessionID
	t.issued[token] = claims
	return token, nil
}

func (t *tokenIssuerStub) Parse(token string) (auth.Claims, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	claims, ok := t.issued[token]
	if !ok {
		return auth.Claims{}, auth.ErrInvalidToken
	}
	if !t.now().Before(claims.ExpiresAt) {
		return auth.Claims{}, auth.ErrTokenExpired
	}
	return claims, nil
}

func sequence(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
