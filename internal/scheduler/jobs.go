package scheduler

import (
	"context"
	"log/slog"

	"github.com/example/calendar-service/internal/logging"
)

// DefaultSessionPurgeSchedule runs the session purge at the top of every hour.
const DefaultSessionPurgeSchedule = "0 * * * *"

// SessionPurger deletes sessions whose lifetime has elapsed.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int, error)
}

// SessionPurgeJob removes expired sessions on schedule.
func SessionPurgeJob(purger SessionPurger, schedule string) Job {
	if schedule == "" {
		schedule = DefaultSessionPurgeSchedule
	}
	return Job{
		Name:     "session-purge",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			removed, err := purger.PurgeExpiredSessions(ctx)
			if err != nil {
				return err
			}
			if removed > 0 {
				loggerFrom(ctx).InfoContext(ctx, "expired sessions purged", "removed", removed)
			}
			return nil
		},
	}
}

// EveryMinuteJob runs refresh at the start of every minute, e.g. to re-place
// a displayed agenda as time passes.
func EveryMinuteJob(name string, refresh func(ctx context.Context) error) Job {
	return Job{Name: name, Schedule: "* * * * *", Run: refresh}
}

func loggerFrom(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return slog.Default()
}
