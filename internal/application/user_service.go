package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/example/calendar-service/internal/persistence"
)

// UserRepository captures the persistence operations needed for user accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByGoogleID(ctx context.Context, googleID string) (User, error)
	UpdateUser(ctx context.Context, user User) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// OwnerEventDeactivator soft-deletes every event of an owner.
type OwnerEventDeactivator interface {
	DeactivateOwnerEvents(ctx context.Context, ownerID string, at time.Time) (int, error)
}

// UserService exposes administrator operations on user accounts.
type UserService struct {
	users    UserRepository
	events   OwnerEventDeactivator
	activity ActivityRecorder
	now      func() time.Time
	logger   *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserRepository, events OwnerEventDeactivator, activity ActivityRecorder, now func() time.Time) *UserService {
	return NewUserServiceWithLogger(users, events, activity, now, nil)
}

// NewUserServiceWithLogger wires dependencies for the user service with a logger.
func NewUserServiceWithLogger(users UserRepository, events OwnerEventDeactivator, activity ActivityRecorder, now func() time.Time, logger *slog.Logger) *UserService {
	if now == nil {
		now = time.Now
	}
	return &UserService{users: users, events: events, activity: activity, now: now, logger: defaultLogger(logger)}
}

// ListUsers returns all users, newest first, for administrators.
func (s *UserService) ListUsers(ctx context.Context, principal Principal) ([]User, error) {
	if s == nil {
		return nil, fmt.Errorf("UserService is nil")
	}
	if !principal.IsAdmin {
		return nil, ErrUnauthorized
	}
	if s.users == nil {
		return nil, nil
	}

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, upstream("list users", err)
	}

	out := make([]User, len(users))
	copy(out, users)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

// SetUserActive activates or deactivates a user. Deactivation also
// soft-deletes every event the user owns.
func (s *UserService) SetUserActive(ctx context.Context, params SetUserActiveParams) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	logger := serviceLogger(ctx, s.logger, "UserService", "SetUserActive",
		"principal_id", params.Principal.UserID,
		"target_user_id", params.UserID,
		"active", params.Active,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "user activation change failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "user activation changed")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if params.UserID == params.Principal.UserID && !params.Active {
		err = NewValidationError("active", "administrators cannot deactivate their own account")
		return
	}

	var existing User
	existing, err = s.users.GetUser(ctx, params.UserID)
	if err != nil {
		err = mapUserRepoError("get user", err)
		return
	}

	now := s.now()
	updated := existing
	updated.Active = params.Active
	updated.UpdatedAt = now

	user, err = s.users.UpdateUser(ctx, updated)
	if err != nil {
		err = mapUserRepoError("update user", err)
		return
	}

	if !params.Active && s.events != nil {
		var deactivated int
		deactivated, err = s.events.DeactivateOwnerEvents(ctx, user.ID, now)
		if err != nil {
			err = upstream("deactivate owner events", err)
			return
		}
		logger = logger.With("events_deactivated", deactivated)
	}

	action := "activate"
	if !params.Active {
		action = "deactivate"
	}
	if s.activity != nil {
		s.activity.Record(ctx, params.Principal.UserID, LogAdminAction, fmt.Sprintf("Admin %sd user: %s", action, user.Email), map[string]any{
			"targetUserId":    user.ID,
			"targetUserEmail": user.Email,
			"action":          action,
		})
	}
	return user, nil
}

func mapUserRepoError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isNotFoundError(err) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return NewValidationError("email", "an account with this identity already exists")
	}
	return upstream(op, err)
}
