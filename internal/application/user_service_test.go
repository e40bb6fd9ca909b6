package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/calendar-service/internal/calendar"
)

var admin = Principal{UserID: "admin", Email: "admin@example.com", IsAdmin: true, SessionID: "s-admin"}

func TestUserService_ListUsers(t *testing.T) {
	t.Parallel()

	base := serviceNow()
	users := newUserRepositoryStub(
		User{ID: "a", CreatedAt: base.Add(-2 * time.Hour)},
		User{ID: "b", CreatedAt: base},
		User{ID: "c", CreatedAt: base.Add(-time.Hour)},
	)
	svc := NewUserService(users, nil, nil, serviceNow)

	listed, err := svc.ListUsers(context.Background(), admin)
	require.NoError(t, err)
	ids := make([]string, 0, len(listed))
	for _, u := range listed {
		ids = append(ids, u.ID)
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids)

	_, err = svc.ListUsers(context.Background(), alice)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestUserService_SetUserActive(t *testing.T) {
	t.Parallel()

	t.Run("deactivation cascades to the user's events", func(t *testing.T) {
		t.Parallel()

		users := newUserRepositoryStub(User{ID: "alice", Email: "alice@example.com", Active: true})
		events := newEventRepositoryStub(
			storedEvent("e1", "alice", "2024-06-10", "2024-06-10"),
			storedEvent("e2", "alice", "2024-06-12", "2024-06-14"),
			storedEvent("e3", "bob", "2024-06-10", "2024-06-10"),
		)
		activity := &activityRecorderStub{}
		svc := NewUserService(users, events, activity, serviceNow)

		user, err := svc.SetUserActive(context.Background(), SetUserActiveParams{Principal: admin, UserID: "alice", Active: false})
		require.NoError(t, err)
		assert.False(t, user.Active)

		window := calendar.Range{Start: calendar.MustDate("2024-06-01"), End: calendar.MustDate("2024-06-30")}
		remaining, err := newTestEventService(events, nil).ListEvents(context.Background(), ListEventsParams{Principal: alice, Window: &window})
		require.NoError(t, err)
		assert.Empty(t, remaining)
		assert.True(t, events.get("e3").Active)

		require.Len(t, activity.records, 1)
		record := activity.records[0]
		assert.Equal(t, "admin", record.UserID)
		assert.Equal(t, LogAdminAction, record.Action)
		assert.Equal(t, map[string]any{
			"targetUserId":    "alice",
			"targetUserEmail": "alice@example.com",
			"action":          "deactivate",
		}, record.Metadata)
	})

	t.Run("reactivation leaves events untouched", func(t *testing.T) {
		t.Parallel()

		users := newUserRepositoryStub(User{ID: "alice", Active: false})
		events := newEventRepositoryStub()
		svc := NewUserService(users, events, nil, serviceNow)

		user, err := svc.SetUserActive(context.Background(), SetUserActiveParams{Principal: admin, UserID: "alice", Active: true})
		require.NoError(t, err)
		assert.True(t, user.Active)
	})

	t.Run("rejects non admins", func(t *testing.T) {
		t.Parallel()

		svc := NewUserService(newUserRepositoryStub(User{ID: "bob", Active: true}), nil, nil, serviceNow)
		_, err := svc.SetUserActive(context.Background(), SetUserActiveParams{Principal: alice, UserID: "bob"})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("admins cannot deactivate themselves", func(t *testing.T) {
		t.Parallel()

		svc := NewUserService(newUserRepositoryStub(User{ID: "admin", Active: true}), nil, nil, serviceNow)
		_, err := svc.SetUserActive(context.Background(), SetUserActiveParams{Principal: admin, UserID: "admin", Active: false})

		var vErr *ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Contains(t, vErr.FieldErrors, "active")
	})

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()

		svc := NewUserService(newUserRepositoryStub(), nil, nil, serviceNow)
		_, err := svc.SetUserActive(context.Background(), SetUserActiveParams{Principal: admin, UserID: "ghost", Active: false})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
