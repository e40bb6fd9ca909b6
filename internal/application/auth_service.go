package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/calendar-service/internal/auth"
)

// DefaultSessionTTL is the lifetime of an issued session.
const DefaultSessionTTL = 7 * 24 * time.Hour

// GoogleVerifier validates Google sign-in credentials.
type GoogleVerifier interface {
	Verify(ctx context.Context, credential string) (auth.Identity, error)
}

// TokenIssuer signs and parses session tokens.
type TokenIssuer interface {
	Issue(claims auth.Claims) (string, error)
	Parse(token string) (auth.Claims, error)
}

// SessionRepository captures the persistence interactions for issued sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	RevokeSession(ctx context.Context, id string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) (int, error)
}

// AuthService coordinates Google sign-in and session validation.
type AuthService struct {
	google      GoogleVerifier
	tokens      TokenIssuer
	users       UserRepository
	sessions    SessionRepository
	activity    ActivityRecorder
	adminEmails map[string]struct{}
	idGenerator func() string
	now         func() time.Time
	sessionTTL  time.Duration
	logger      *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(google GoogleVerifier, tokens TokenIssuer, users UserRepository, sessions SessionRepository, activity ActivityRecorder, idGenerator func() string, now func() time.Time, sessionTTL time.Duration) *AuthService {
	return NewAuthServiceWithLogger(google, tokens, users, sessions, activity, idGenerator, now, sessionTTL, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(google GoogleVerifier, tokens TokenIssuer, users UserRepository, sessions SessionRepository, activity ActivityRecorder, idGenerator func() string, now func() time.Time, sessionTTL time.Duration, logger *slog.Logger) *AuthService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &AuthService{
		google:      google,
		tokens:      tokens,
		users:       users,
		sessions:    sessions,
		activity:    activity,
		adminEmails: map[string]struct{}{},
		idGenerator: idGenerator,
		now:         now,
		sessionTTL:  sessionTTL,
		logger:      defaultLogger(logger),
	}
}

// WithAdminEmails promotes accounts with the given emails to admin on sign-in.
func (s *AuthService) WithAdminEmails(emails ...string) *AuthService {
	if s == nil {
		return nil
	}
	for _, email := range emails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			s.adminEmails[email] = struct{}{}
		}
	}
	return s
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// SignInWithGoogle exchanges a Google ID token for a session token, creating
// the account on first sign-in.
func (s *AuthService) SignInWithGoogle(ctx context.Context, credential string) (result SignInResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.google == nil || s.tokens == nil || s.users == nil {
		err = fmt.Errorf("auth service not configured")
		return
	}

	logger := s.loggerWith(ctx, "SignInWithGoogle")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "sign-in failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", result.User.ID).InfoContext(ctx, "sign-in succeeded")
	}()

	var identity auth.Identity
	identity, err = s.google.Verify(ctx, credential)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidGoogleToken, err)
		return
	}

	now := s.now()
	var user User
	user, err = s.users.GetUserByGoogleID(ctx, identity.Subject)
	switch {
	case err == nil:
		if !user.Active {
			err = ErrAccountDisabled
			return
		}
		user = s.refreshUser(user, identity, now)
		user, err = s.users.UpdateUser(ctx, user)
		if err != nil {
			err = mapUserRepoError("update user", err)
			return
		}
	case isNotFoundError(err):
		user = s.refreshUser(User{
			ID:        s.idGenerator(),
			GoogleID:  identity.Subject,
			Role:      RoleUser,
			Active:    true,
			CreatedAt: now,
		}, identity, now)
		user, err = s.users.CreateUser(ctx, user)
		if err != nil {
			err = mapUserRepoError("create user", err)
			return
		}
	default:
		err = mapUserRepoError("get user", err)
		return
	}

	session := Session{
		ID:        s.idGenerator(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if s.sessions != nil {
		session, err = s.sessions.CreateSession(ctx, session)
		if err != nil {
			err = upstream("create session", err)
			return
		}
	}

	var token string
	token, err = s.tokens.Issue(auth.Claims{
		UserID:    user.ID,
		Email:     user.Email,
		SessionID: session.ID,
		IssuedAt:  now,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		err = fmt.Errorf("issue token: %w", err)
		return
	}

	if s.activity != nil {
		s.activity.Record(ctx, user.ID, LogUserLogin, fmt.Sprintf("User logged in: %s", user.Email), map[string]any{
			"email": user.Email,
		})
	}

	result = SignInResult{User: user, Token: token, ExpiresAt: session.ExpiresAt}
	return
}

func (s *AuthService) refreshUser(user User, identity auth.Identity, now time.Time) User {
	if identity.Name != "" {
		user.Name = identity.Name
	}
	if user.Name == "" {
		user.Name = identity.Email
	}
	user.Email = identity.Email
	user.Picture = identity.Picture
	lastLogin := now
	user.LastLogin = &lastLogin
	user.UpdatedAt = now
	if _, ok := s.adminEmails[strings.ToLower(identity.Email)]; ok {
		user.Role = RoleAdmin
	}
	if user.Role == "" {
		user.Role = RoleUser
	}
	return user
}

// ValidateSession resolves a bearer token to the principal it was issued for.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (Principal, error) {
	if s == nil {
		return Principal{}, fmt.Errorf("AuthService is nil")
	}
	if s.tokens == nil || s.users == nil {
		return Principal{}, fmt.Errorf("auth service not configured")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrAuthentication
	}

	claims, err := s.tokens.Parse(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return Principal{}, ErrSessionExpired
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	if s.sessions != nil {
		session, err := s.sessions.GetSession(ctx, claims.SessionID)
		if err != nil {
			if isNotFoundError(err) {
				return Principal{}, ErrAuthentication
			}
			return Principal{}, upstream("get session", err)
		}
		if session.UserID != claims.UserID {
			return Principal{}, ErrAuthentication
		}
		if session.RevokedAt != nil {
			return Principal{}, ErrSessionRevoked
		}
		if !s.now().Before(session.ExpiresAt) {
			return Principal{}, ErrSessionExpired
		}
	}

	user, err := s.users.GetUser(ctx, claims.UserID)
	if err != nil {
		if isNotFoundError(err) {
			return Principal{}, ErrAuthentication
		}
		return Principal{}, upstream("get user", err)
	}
	if !user.Active {
		return Principal{}, ErrAccountDisabled
	}

	return Principal{
		UserID:    user.ID,
		Email:     user.Email,
		IsAdmin:   user.IsAdmin(),
		SessionID: claims.SessionID,
	}, nil
}

// CurrentUser returns the account of the principal.
func (s *AuthService) CurrentUser(ctx context.Context, principal Principal) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("AuthService is nil")
	}
	if principal.UserID == "" {
		return User{}, ErrAuthentication
	}
	if s.users == nil {
		return User{}, fmt.Errorf("user repository not configured")
	}

	user, err := s.users.GetUser(ctx, principal.UserID)
	if err != nil {
		if isNotFoundError(err) {
			return User{}, ErrAuthentication
		}
		return User{}, upstream("get user", err)
	}
	return user, nil
}

// Logout revokes the principal's session so its token is no longer accepted.
func (s *AuthService) Logout(ctx context.Context, principal Principal) (err error) {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}

	logger := s.loggerWith(ctx, "Logout",
		"user_id", principal.UserID,
		"session_id", principal.SessionID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "logout failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "logout succeeded")
	}()

	if principal.UserID == "" || principal.SessionID == "" {
		return ErrAuthentication
	}

	if s.sessions != nil {
		if _, err = s.sessions.RevokeSession(ctx, principal.SessionID, s.now()); err != nil {
			if isNotFoundError(err) {
				return ErrAuthentication
			}
			return upstream("revoke session", err)
		}
	}

	if s.activity != nil {
		s.activity.Record(ctx, principal.UserID, LogUserLogout, fmt.Sprintf("User logged out: %s", principal.Email), map[string]any{
			"email": principal.Email,
		})
	}
	return nil
}

// PurgeExpiredSessions removes sessions whose expiry has passed.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("AuthService is nil")
	}
	if s.sessions == nil {
		return 0, nil
	}

	removed, err := s.sessions.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, upstream("delete expired sessions", err)
	}
	s.loggerWith(ctx, "PurgeExpiredSessions").InfoContext(ctx, "expired sessions purged", "removed", removed)
	return removed, nil
}
