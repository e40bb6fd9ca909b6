package testfixtures

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/calendar-service/internal/application"
	"github.com/example/calendar-service/internal/auth"
	"github.com/example/calendar-service/internal/recurrence"
)

// TestJWTSecret is long enough to satisfy auth.MinSecretLength.
const TestJWTSecret = "test-secret-0123456789abcdef"

// ServiceFactory assists tests with constructing application services over a
// Harness using deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Harness     *Harness
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory over harness.
func NewServiceFactory(harness *Harness, opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Harness:     harness,
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLogger routes service logs to logger.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// NewActivityLogger returns an audit recorder writing to the harness. Call
// Wait before asserting on the audit trail.
func (f *ServiceFactory) NewActivityLogger() *application.ActivityLogger {
	return application.NewActivityLogger(f.Harness.Repo, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// NewEventService builds an event service with the default recurrence engine.
func (f *ServiceFactory) NewEventService(activity application.ActivityRecorder) *application.EventService {
	return application.NewEventServiceWithLogger(
		f.Harness.Repo,
		activity,
		recurrence.NewEngine(0, 0),
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		f.Logger,
	)
}

// NewUserService builds the admin user service.
func (f *ServiceFactory) NewUserService(activity application.ActivityRecorder) *application.UserService {
	return application.NewUserServiceWithLogger(f.Harness.Repo, f.Harness.Repo, activity, f.Clock.NowFunc(), f.Logger)
}

// NewLogService builds the audit query service.
func (f *ServiceFactory) NewLogService() *application.LogService {
	return application.NewLogServiceWithLogger(f.Harness.Repo, f.Harness.Repo, f.Logger)
}

// NewAuthService builds an auth service that accepts the credentials known to
// google and signs tokens with TestJWTSecret.
func (f *ServiceFactory) NewAuthService(google *GoogleStub, activity application.ActivityRecorder, adminEmails ...string) (*application.AuthService, error) {
	tokens, err := auth.NewTokenIssuer(TestJWTSecret, f.Clock.NowFunc())
	if err != nil {
		return nil, err
	}
	service := application.NewAuthServiceWithLogger(
		google,
		tokens,
		f.Harness.Repo,
		f.Harness.Repo,
		activity,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		application.DefaultSessionTTL,
		f.Logger,
	)
	return service.WithAdminEmails(adminEmails...), nil
}

// GoogleStub accepts a fixed set of credentials.
type GoogleStub struct {
	Identities map[string]auth.Identity
}

// NewGoogleStub accepts credential "token-<ID>" for each user fixture.
func NewGoogleStub(users ...UserFixture) *GoogleStub {
	stub := &GoogleStub{Identities: make(map[string]auth.Identity, len(users))}
	for _, u := range users {
		stub.Identities["token-"+u.ID] = auth.Identity{
			Subject:       u.GoogleID,
			Email:         u.Email,
			EmailVerified: true,
			Name:          u.Name,
		}
	}
	return stub
}

func (g *GoogleStub) Verify(_ context.Context, credential string) (auth.Identity, error) {
	identity, ok := g.Identities[credential]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidCredential
	}
	return identity, nil
}
