// Package scheduler runs periodic maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/calendar-service/internal/logging"
)

// DefaultJobTimeout bounds a single job run.
const DefaultJobTimeout = time.Minute

// ErrStopped is returned by Add once the runner has been stopped.
var ErrStopped = errors.New("scheduler: runner stopped")

// Job is a named unit of periodic work. Schedule uses the standard five-field
// cron syntax or descriptors such as "@every 1m".
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Runner executes jobs on their schedules. Overlapping runs of the same job
// are skipped and panics are recovered.
type Runner struct {
	cron   *cron.Cron
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	jobs    map[string]cron.EntryID
}

// NewRunner builds a runner whose jobs log through logger. loc selects the
// time zone schedules are evaluated in; nil means time.Local.
func NewRunner(logger *slog.Logger, loc *time.Location) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	logger = logger.With("component", "scheduler")
	adapter := cronLogger{logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		logger: logger,
		ctx:    logging.ContextWithLogger(ctx, logger),
		cancel: cancel,
		jobs:   make(map[string]cron.EntryID),
	}
}

// Add registers job. Names must be unique.
func (r *Runner) Add(job Job) error {
	if r == nil {
		return fmt.Errorf("Runner is nil")
	}
	if strings.TrimSpace(job.Name) == "" {
		return fmt.Errorf("scheduler: job name is required")
	}
	if job.Run == nil {
		return fmt.Errorf("scheduler: job %s has no run function", job.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return ErrStopped
	}
	if _, exists := r.jobs[job.Name]; exists {
		return fmt.Errorf("scheduler: job %s already registered", job.Name)
	}

	id, err := r.cron.AddFunc(job.Schedule, r.wrap(job))
	if err != nil {
		return fmt.Errorf("scheduler: job %s: invalid schedule %q: %w", job.Name, job.Schedule, err)
	}
	r.jobs[job.Name] = id
	return nil
}

// Start begins dispatching jobs in the background.
func (r *Runner) Start() {
	if r == nil {
		return
	}
	r.logger.Info("scheduler started", "jobs", len(r.Jobs()))
	r.cron.Start()
}

// Stop halts scheduling, cancels running jobs' contexts and waits for them to
// return or for ctx to end.
func (r *Runner) Stop(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	done := r.cron.Stop()
	r.cancel()

	select {
	case <-done.Done():
		r.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: stop: %w", ctx.Err())
	}
}

// Jobs lists registered job names with their next run time.
func (r *Runner) Jobs() map[string]time.Time {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]time.Time, len(r.jobs))
	for name, id := range r.jobs {
		out[name] = r.cron.Entry(id).Next
	}
	return out
}

func (r *Runner) wrap(job Job) func() {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return func() {
		ctx, cancel := context.WithTimeout(r.ctx, timeout)
		defer cancel()

		logger := r.logger.With("job", job.Name)
		started := time.Now()
		if err := job.Run(ctx); err != nil {
			logger.ErrorContext(ctx, "job failed", "error", err, "duration", time.Since(started))
			return
		}
		logger.DebugContext(ctx, "job completed", "duration", time.Since(started))
	}
}

// cronLogger routes cron's internal logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
