package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/calendar-service/internal/auth"
)

type authHarness struct {
	svc      *AuthService
	users    *userRepositoryStub
	sessions *sessionRepositoryStub
	tokens   *tokenIssuerStub
	activity *activityRecorderStub
	google   *googleVerifierStub
	now      *time.Time
}

func newAuthHarness(users ...User) authHarness {
	current := serviceNow()
	clock := func() time.Time { return current }
	h := authHarness{
		users:    newUserRepositoryStub(users...),
		sessions: newSessionRepositoryStub(),
		tokens:   newTokenIssuerStub(clock),
		activity: &activityRecorderStub{},
		google: &googleVerifierStub{identity: auth.Identity{
			Subject: "google-alice",
			Email:   "alice@example.com",
			Name:    "Alice",
			Picture: "https://example.com/alice.png",
		}},
		now: &current,
	}
	h.svc = NewAuthService(h.google, h.tokens, h.users, h.sessions, h.activity, sequence("id"), clock, time.Hour)
	return h
}

func TestAuthService_SignInWithGoogle(t *testing.T) {
	t.Parallel()

	t.Run("creates the account on first sign-in", func(t *testing.T) {
		t.Parallel()

		h := newAuthHarness()
		result, err := h.svc.SignInWithGoogle(context.Background(), "credential")
		require.NoError(t, err)

		assert.Equal(t, "id-1", result.User.ID)
		assert.Equal(t, "google-alice", result.User.GoogleID)
		assert.Equal(t, RoleUser, result.User.Role)
		assert.True(t, result.User.Active)
		require.NotNil(t, result.User.LastLogin)
		assert.Equal(t, serviceNow(), *result.User.LastLogin)
		assert.Equal(t, "token-id-2", result.Token)
		assert.Equal(t, serviceNow().Add(time.Hour), result.ExpiresAt)

		session, err := h.sessions.GetSession(context.Background(), "id-2")
		require.NoError(t, err)
		assert.Equal(t, "id-1", session.UserID)
		assert.Equal(t, []LogAction{LogUserLogin}, h.activity.actions())
	})

	t.Run("refreshes profile of an existing account and promotes admins", func(t *testing.T) {
		t.Parallel()

		existing := User{ID: "u1", GoogleID: "google-alice", Name: "Old", Email: "old@example.com", Role: RoleUser, Active: true, CreatedAt: serviceNow().Add(-48 * time.Hour)}
		h := newAuthHarness(existing)
		h.svc.WithAdminEmails("ALICE@example.com")

		result, err := h.svc.SignInWithGoogle(context.Background(), "credential")
		require.NoError(t, err)
		assert.Equal(t, "u1", result.User.ID)
		assert.Equal(t, "Alice", result.User.Name)
		assert.Equal(t, "alice@example.com", result.User.Email)
		assert.Equal(t, RoleAdmin, result.User.Role)
		assert.Equal(t, existing.CreatedAt, result.User.CreatedAt)
	})

	t.Run("rejects deactivated accounts", func(t *testing.T) {
		t.Parallel()

		h := newAuthHarness(User{ID: "u1", GoogleID: "google-alice", Active: false})
		_, err := h.svc.SignInWithGoogle(context.Background(), "credential")
		assert.ErrorIs(t, err, ErrAccountDisabled)
		assert.Empty(t, h.sessions.sessions)
	})

	t.Run("rejects invalid google credentials", func(t *testing.T) {
		t.Parallel()

		h := newAuthHarness()
		h.google.err = errors.New("signature mismatch")
		_, err := h.svc.SignInWithGoogle(context.Background(), "credential")
		assert.ErrorIs(t, err, ErrInvalidGoogleToken)
		assert.Empty(t, h.users.users)
	})
}

func TestAuthService_ValidateSessionAndLogout(t *testing.T) {
	t.Parallel()

	h := newAuthHarness()
	ctx := context.Background()

	result, err := h.svc.SignInWithGoogle(ctx, "credential")
	require.NoError(t, err)

	principal, err := h.svc.ValidateSession(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "id-1", Email: "alice@example.com", SessionID: "id-2"}, principal)

	user, err := h.svc.CurrentUser(ctx, principal)
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)

	require.NoError(t, h.svc.Logout(ctx, principal))
	_, err = h.svc.ValidateSession(ctx, result.Token)
	assert.ErrorIs(t, err, ErrSessionRevoked)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, []LogAction{LogUserLogin, LogUserLogout}, h.activity.actions())
}

func TestAuthService_ValidateSessionFailures(t *testing.T) {
	t.Parallel()

	t.Run("missing token", func(t *testing.T) {
		t.Parallel()
		_, err := newAuthHarness().svc.ValidateSession(context.Background(), " ")
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("unknown token", func(t *testing.T) {
		t.Parallel()
		_, err := newAuthHarness().svc.ValidateSession(context.Background(), "forged")
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("expired token", func(t *testing.T) {
		t.Parallel()

		h := newAuthHarness()
		result, err := h.svc.SignInWithGoogle(context.Background(), "credential")
		require.NoError(t, err)

		*h.now = h.now.Add(2 * time.Hour)
		_, err = h.svc.ValidateSession(context.Background(), result.Token)
		assert.ErrorIs(t, err, ErrSessionExpired)
	})

	t.Run("deactivated after sign-in", func(t *testing.T) {
		t.Parallel()

		h := newAuthHarness()
		result, err := h.svc.SignInWithGoogle(context.Background(), "credential")
		require.NoError(t, err)

		user := h.users.users[result.User.ID]
		user.Active = false
		h.users.users[user.ID] = user

		_, err = h.svc.ValidateSession(context.Background(), result.Token)
		assert.ErrorIs(t, err, ErrAccountDisabled)
	})
}

func TestAuthService_PurgeExpiredSessions(t *testing.T) {
	t.Parallel()

	h := newAuthHarness()
	ctx := context.Background()
	_, err := h.sessions.CreateSession(ctx, Session{ID: "old", UserID: "u", ExpiresAt: serviceNow().Add(-time.Minute)})
	require.NoError(t, err)
	_, err = h.sessions.CreateSession(ctx, Session{ID: "fresh", UserID: "u", ExpiresAt: serviceNow().Add(time.Minute)})
	require.NoError(t, err)

	removed, err := h.svc.PurgeExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = h.sessions.GetSession(ctx, "fresh")
	assert.NoError(t, err)
}
