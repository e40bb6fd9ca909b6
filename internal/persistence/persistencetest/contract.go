// Package persistencetest holds a behavioural test suite shared by every
// persistence backend.
package persistencetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/calendar-service/internal/persistence"
)

// Factory returns an empty, ready to use store. The store is closed by the suite.
type Factory func(t *testing.T) persistence.Store

// Reference is the base timestamp used by the suite. Whole seconds keep it
// exact across backends with millisecond precision.
var Reference = time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)

// Run exercises the full persistence.Store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("users", func(t *testing.T) { t.Parallel(); testUsers(t, open(t, newStore)) })
	t.Run("events", func(t *testing.T) { t.Parallel(); testEvents(t, open(t, newStore)) })
	t.Run("event filters", func(t *testing.T) { t.Parallel(); testEventFilters(t, open(t, newStore)) })
	t.Run("logs", func(t *testing.T) { t.Parallel(); testLogs(t, open(t, newStore)) })
	t.Run("sessions", func(t *testing.T) { t.Parallel(); testSessions(t, open(t, newStore)) })
}

func open(t *testing.T, newStore Factory) persistence.Store {
	t.Helper()
	store := newStore(t)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Ping(context.Background()))
	return store
}

// User builds a persisted user fixture.
func User(id string, createdAt time.Time) persistence.User {
	return persistence.User{
		ID:        id,
		GoogleID:  "google-" + id,
		Name:      id,
		Email:     id + "@example.com",
		Role:      "user",
		Active:    true,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// Event builds a persisted single-day or multi-day event fixture.
func Event(id, ownerID, startDate, endDate string) persistence.Event {
	return persistence.Event{
		ID:         id,
		OwnerID:    ownerID,
		Title:      id,
		StartDate:  startDate,
		EndDate:    endDate,
		RepeatType: "none",
		Active:     true,
		CreatedAt:  Reference,
		UpdatedAt:  Reference,
	}
}

func testUsers(t *testing.T, store persistence.Store) {
	ctx := context.Background()

	alice := User("alice", Reference)
	bob := User("bob", Reference.Add(time.Hour))
	require.NoError(t, store.CreateUser(ctx, alice))
	require.NoError(t, store.CreateUser(ctx, bob))

	fetched, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "google-alice", fetched.GoogleID)
	assert.Equal(t, "alice@example.com", fetched.Email)
	assert.True(t, fetched.Active)
	assert.Nil(t, fetched.LastLogin)
	assert.True(t, fetched.CreatedAt.Equal(Reference))

	byGoogle, err := store.GetUserByGoogleID(ctx, "google-bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", byGoogle.ID)

	lastLogin := Reference.Add(2 * time.Hour)
	alice.Name = "Alice Liddell"
	alice.Role = "admin"
	alice.Active = false
	alice.LastLogin = &lastLogin
	alice.UpdatedAt = lastLogin
	require.NoError(t, store.UpdateUser(ctx, alice))

	fetched, err = store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", fetched.Name)
	assert.Equal(t, "admin", fetched.Role)
	assert.False(t, fetched.Active)
	require.NotNil(t, fetched.LastLogin)
	assert.True(t, fetched.LastLogin.Equal(lastLogin))

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[0].ID)
	assert.Equal(t, "alice", users[1].ID)

	duplicate := User("carol", Reference)
	duplicate.GoogleID = "google-bob"
	assert.ErrorIs(t, store.CreateUser(ctx, duplicate), persistence.ErrDuplicate)

	_, err = store.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	_, err = store.GetUserByGoogleID(ctx, "google-ghost")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	assert.ErrorIs(t, store.UpdateUser(ctx, User("ghost", Reference)), persistence.ErrNotFound)
}

func testEvents(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, User("alice", Reference)))
	require.NoError(t, store.CreateUser(ctx, User("bob", Reference)))

	standup := Event("standup", "alice", "2024-06-10", "2024-06-10")
	standup.StartTime, standup.EndTime, standup.Duration = "09:00", "09:15", 15
	standup.Description = "daily sync"
	standup.Group = "Engineering"
	standup.RepeatType = "weekly"
	standup.RepeatWeekdays = []int{1, 3, 5}
	require.NoError(t, store.CreateEvent(ctx, standup))

	fetched, err := store.GetEvent(ctx, "alice", "standup")
	require.NoError(t, err)
	assert.Equal(t, "09:15", fetched.EndTime)
	assert.Equal(t, 15, fetched.Duration)
	assert.Equal(t, "Engineering", fetched.Group)
	assert.Equal(t, "weekly", fetched.RepeatType)
	assert.Equal(t, []int{1, 3, 5}, fetched.RepeatWeekdays)
	assert.True(t, fetched.Active)

	_, err = store.GetEvent(ctx, "bob", "standup")
	assert.ErrorIs(t, err, persistence.ErrNotFound, "events are scoped to their owner")

	standup.Title = "Standup (moved)"
	standup.StartDate, standup.EndDate = "2024-06-11", "2024-06-11"
	standup.RepeatType, standup.RepeatWeekdays = "none", nil
	standup.UpdatedAt = Reference.Add(time.Hour)
	require.NoError(t, store.UpdateEvent(ctx, standup))

	fetched, err = store.GetEvent(ctx, "alice", "standup")
	require.NoError(t, err)
	assert.Equal(t, "Standup (moved)", fetched.Title)
	assert.Equal(t, "2024-06-11", fetched.StartDate)
	assert.Equal(t, "none", fetched.RepeatType)
	assert.Empty(t, fetched.RepeatWeekdays)
	assert.True(t, fetched.CreatedAt.Equal(Reference))
	assert.True(t, fetched.UpdatedAt.Equal(Reference.Add(time.Hour)))

	hijack := standup
	hijack.OwnerID = "bob"
	assert.ErrorIs(t, store.UpdateEvent(ctx, hijack), persistence.ErrNotFound)

	backwards := Event("backwards", "alice", "2024-06-12", "2024-06-11")
	assert.ErrorIs(t, store.CreateEvent(ctx, backwards), persistence.ErrConstraintViolation)

	require.NoError(t, store.DeactivateEvent(ctx, "alice", "standup", Reference.Add(2*time.Hour)))
	_, err = store.GetEvent(ctx, "alice", "standup")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	assert.ErrorIs(t, store.DeactivateEvent(ctx, "alice", "standup", Reference), persistence.ErrNotFound)
	assert.ErrorIs(t, store.UpdateEvent(ctx, standup), persistence.ErrNotFound, "inactive events cannot be edited")

	for _, e := range []persistence.Event{
		Event("a1", "alice", "2024-06-01", "2024-06-01"),
		Event("a2", "alice", "2024-06-02", "2024-06-03"),
		Event("b1", "bob", "2024-06-01", "2024-06-01"),
	} {
		require.NoError(t, store.CreateEvent(ctx, e))
	}

	count, err := store.DeactivateOwnerEvents(ctx, "alice", Reference)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	remaining, err := store.ListEvents(ctx, persistence.EventFilter{OwnerID: "alice"})
	require.NoError(t, err)
	assert.Empty(t, remaining)

	bobs, err := store.ListEvents(ctx, persistence.EventFilter{OwnerID: "bob"})
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.Equal(t, "b1", bobs[0].ID)
}

func testEventFilters(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, User("alice", Reference)))
	require.NoError(t, store.CreateUser(ctx, User("bob", Reference)))

	inside := Event("inside", "alice", "2024-06-12", "2024-06-12")
	inside.StartTime, inside.EndTime = "14:00", "15:00"
	inside.Title = "100% Planning"
	inside.Group = "Engineering"

	early := Event("early", "alice", "2024-06-12", "2024-06-12")
	early.StartTime, early.EndTime = "08:00", "09:00"
	early.Title = "Breakfast"
	early.Description = "plan the week"

	spanning := Event("spanning", "alice", "2024-06-01", "2024-06-30")
	spanning.Title = "Conference"
	spanning.Group = "Travel"

	before := Event("before", "alice", "2024-05-01", "2024-05-02")
	before.Title = "snake_case review"

	recurring := Event("recurring", "alice", "2024-05-06", "2024-05-06")
	recurring.RepeatType = "weekly"
	recurring.RepeatWeekdays = []int{1}

	future := Event("future", "alice", "2024-07-01", "2024-07-01")
	future.RepeatType = "daily"

	accented := Event("accented", "alice", "2024-07-15", "2024-07-15")
	accented.Title = "ÉTÉ Café"
	accented.Group = "Équipe"

	foreign := Event("foreign", "bob", "2024-06-12", "2024-06-12")

	for _, e := range []persistence.Event{inside, early, spanning, before, recurring, future, accented, foreign} {
		require.NoError(t, store.CreateEvent(ctx, e))
	}

	tests := []struct {
		name   string
		filter persistence.EventFilter
		want   []string
	}{
		{
			name:   "all active events of the owner",
			filter: persistence.EventFilter{OwnerID: "alice"},
			want:   []string{"before", "recurring", "spanning", "early", "inside", "future", "accented"},
		},
		{
			name:   "window overlap",
			filter: persistence.EventFilter{OwnerID: "alice", From: "2024-06-10", To: "2024-06-16"},
			want:   []string{"spanning", "early", "inside"},
		},
		{
			name:   "window boundaries are inclusive",
			filter: persistence.EventFilter{OwnerID: "alice", From: "2024-05-02", To: "2024-05-06"},
			want:   []string{"before", "recurring"},
		},
		{
			name:   "recurring events started before the window",
			filter: persistence.EventFilter{OwnerID: "alice", From: "2024-06-10", To: "2024-06-16", IncludeRecurring: true},
			want:   []string{"recurring", "spanning", "early", "inside"},
		},
		{
			name:   "query matches title or description case-insensitively",
			filter: persistence.EventFilter{OwnerID: "alice", Query: "PLAN"},
			want:   []string{"early", "inside"},
		},
		{
			name:   "query percent sign is literal",
			filter: persistence.EventFilter{OwnerID: "alice", Query: "100%"},
			want:   []string{"inside"},
		},
		{
			name:   "query underscore is literal",
			filter: persistence.EventFilter{OwnerID: "alice", Query: "e_c"},
			want:   []string{"before"},
		},
		{
			name:   "group substring",
			filter: persistence.EventFilter{OwnerID: "alice", Group: "engin"},
			want:   []string{"inside"},
		},
		{
			name:   "query folds non-ascii case",
			filter: persistence.EventFilter{OwnerID: "alice", Query: "été"},
			want:   []string{"accented"},
		},
		{
			name:   "group folds non-ascii case",
			filter: persistence.EventFilter{OwnerID: "alice", Group: "équipe"},
			want:   []string{"accented"},
		},
		{
			name:   "limit keeps the earliest events",
			filter: persistence.EventFilter{OwnerID: "alice", Limit: 2},
			want:   []string{"before", "recurring"},
		},
		{
			name:   "other owners are invisible",
			filter: persistence.EventFilter{OwnerID: "carol"},
			want:   []string{},
		},
	}

	for _, tc := range tests {
		events, err := store.ListEvents(ctx, tc.filter)
		require.NoError(t, err, tc.name)
		ids := make([]string, 0, len(events))
		for _, e := range events {
			ids = append(ids, e.ID)
		}
		assert.Equal(t, tc.want, ids, tc.name)
	}
}

func testLogs(t *testing.T, store persistence.Store) {
	ctx := context.Background()

	entries := []persistence.LogEntry{
		{ID: "l1", UserID: "alice", Action: "user_login", Description: "login", Metadata: map[string]any{"email": "alice@example.com"}, Timestamp: Reference},
		{ID: "l2", UserID: "alice", Action: "event_created", Description: "created", Metadata: map[string]any{"eventId": "e1"}, Timestamp: Reference.Add(time.Minute)},
		{ID: "l3", UserID: "bob", Action: "event_created", Description: "created", Timestamp: Reference.Add(2 * time.Minute)},
		{ID: "l4", UserID: "bob", Action: "user_logout", Description: "logout", Timestamp: Reference.Add(24 * time.Hour)},
	}
	for _, entry := range entries {
		require.NoError(t, store.AppendLog(ctx, entry))
	}

	all, err := store.QueryLogs(ctx, persistence.LogFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"l4", "l3", "l2", "l1"}, logIDs(all))
	assert.Equal(t, map[string]any{"eventId": "e1"}, all[2].Metadata)
	assert.True(t, all[0].Timestamp.Equal(Reference.Add(24*time.Hour)))

	created, err := store.QueryLogs(ctx, persistence.LogFilter{Action: "event_created"})
	require.NoError(t, err)
	assert.Equal(t, []string{"l3", "l2"}, logIDs(created))

	alices, err := store.QueryLogs(ctx, persistence.LogFilter{UserID: "alice", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"l2"}, logIDs(alices))

	window, err := store.QueryLogs(ctx, persistence.LogFilter{From: Reference.Add(time.Minute), To: Reference.Add(24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, []string{"l3", "l2"}, logIDs(window))
}

func testSessions(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, User("alice", Reference)))

	live := persistence.Session{ID: "live", UserID: "alice", CreatedAt: Reference, ExpiresAt: Reference.Add(time.Hour)}
	stale := persistence.Session{ID: "stale", UserID: "alice", CreatedAt: Reference, ExpiresAt: Reference.Add(-time.Minute)}
	require.NoError(t, store.CreateSession(ctx, live))
	require.NoError(t, store.CreateSession(ctx, stale))

	fetched, err := store.GetSession(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, "alice", fetched.UserID)
	assert.Nil(t, fetched.RevokedAt)
	assert.True(t, fetched.ExpiresAt.Equal(live.ExpiresAt))

	first := Reference.Add(10 * time.Minute)
	revoked, err := store.RevokeSession(ctx, "live", first)
	require.NoError(t, err)
	require.NotNil(t, revoked.RevokedAt)
	assert.True(t, revoked.RevokedAt.Equal(first))

	again, err := store.RevokeSession(ctx, "live", first.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, again.RevokedAt)
	assert.True(t, again.RevokedAt.Equal(first), "the first revocation time is kept")

	_, err = store.RevokeSession(ctx, "ghost", first)
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	removed, err := store.DeleteExpiredSessions(ctx, Reference)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetSession(ctx, "stale")
	assert.True(t, errors.Is(err, persistence.ErrNotFound))
	_, err = store.GetSession(ctx, "live")
	assert.NoError(t, err)
}

func logIDs(entries []persistence.LogEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}
