package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/example/calendar-service/internal/calendar"
)

// Log query limits.
const (
	DefaultLogLimit = 50
	MaxLogLimit     = 500
)

const defaultActivityTimeout = 5 * time.Second

// LogRepository captures the persistence interactions for the audit trail.
type LogRepository interface {
	AppendLog(ctx context.Context, entry LogEntry) (LogEntry, error)
	QueryLogs(ctx context.Context, filter LogFilter) ([]LogEntry, error)
}

// LogFilter narrows queries issued to the log repository. Results are
// expected newest first and truncated to Limit.
type LogFilter struct {
	Action LogAction
	UserID string
	Window *calendar.Range
	Limit  int
}

// ActivityRecorder accepts audit entries without reporting failures to the caller.
type ActivityRecorder interface {
	Record(ctx context.Context, userID string, action LogAction, description string, metadata map[string]any)
}

// ActivityLogger writes audit entries in the background. A failed write is
// logged and otherwise dropped.
type ActivityLogger struct {
	logs        LogRepository
	idGenerator func() string
	now         func() time.Time
	timeout     time.Duration
	logger      *slog.Logger
	wg          sync.WaitGroup
}

// NewActivityLogger wires dependencies for the activity logger.
func NewActivityLogger(logs LogRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ActivityLogger {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ActivityLogger{
		logs:        logs,
		idGenerator: idGenerator,
		now:         now,
		timeout:     defaultActivityTimeout,
		logger:      defaultLogger(logger),
	}
}

// Record appends an audit entry on a separate goroutine. The write outlives
// cancellation of ctx but is bounded by its own timeout.
func (a *ActivityLogger) Record(ctx context.Context, userID string, action LogAction, description string, metadata map[string]any) {
	if a == nil || a.logs == nil {
		return
	}

	entry := LogEntry{
		ID:          a.idGenerator(),
		UserID:      userID,
		Action:      action,
		Description: description,
		Metadata:    copyMetadata(metadata),
		Timestamp:   a.now(),
	}
	logger := serviceLogger(ctx, a.logger, "ActivityLogger", "Record",
		"action", string(action),
		"user_id", userID,
	)
	detached := context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		writeCtx, cancel := context.WithTimeout(detached, a.timeout)
		defer cancel()

		if _, err := a.logs.AppendLog(writeCtx, entry); err != nil {
			logger.WarnContext(writeCtx, "activity log write failed", "error", err)
		}
	}()
}

// Wait blocks until every pending write has finished.
func (a *ActivityLogger) Wait() {
	if a == nil {
		return
	}
	a.wg.Wait()
}

func copyMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

// UserLookup resolves user ids to accounts.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (User, error)
}

// LogService exposes the audit trail to administrators.
type LogService struct {
	logs   LogRepository
	users  UserLookup
	logger *slog.Logger
}

// NewLogService wires dependencies for the log service.
func NewLogService(logs LogRepository, users UserLookup) *LogService {
	return NewLogServiceWithLogger(logs, users, nil)
}

// NewLogServiceWithLogger wires dependencies for the log service with a logger.
func NewLogServiceWithLogger(logs LogRepository, users UserLookup, logger *slog.Logger) *LogService {
	return &LogService{logs: logs, users: users, logger: defaultLogger(logger)}
}

// QueryLogs returns audit entries newest first, annotated with the acting
// user's name and email.
func (s *LogService) QueryLogs(ctx context.Context, params LogQueryParams) (entries []LogEntry, err error) {
	if s == nil {
		err = fmt.Errorf("LogService is nil")
		return
	}

	logger := serviceLogger(ctx, s.logger, "LogService", "QueryLogs",
		"principal_id", params.Principal.UserID,
		"action", string(params.Action),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "log query failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "log query succeeded", "count", len(entries))
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if params.Action != "" && !params.Action.Valid() {
		err = NewValidationError("action", "action is not recognised")
		return
	}
	if s.logs == nil {
		return nil, nil
	}

	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if limit > MaxLogLimit {
		limit = MaxLogLimit
	}

	var found []LogEntry
	found, err = s.logs.QueryLogs(ctx, LogFilter{
		Action: params.Action,
		UserID: params.UserID,
		Window: params.Window,
		Limit:  limit,
	})
	if err != nil {
		err = upstream("query logs", err)
		return
	}

	entries = make([]LogEntry, len(found))
	copy(entries, found)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	s.annotateUsers(ctx, entries)
	return entries, nil
}

func (s *LogService) annotateUsers(ctx context.Context, entries []LogEntry) {
	if s.users == nil {
		return
	}
	resolved := make(map[string]User)
	for i := range entries {
		id := entries[i].UserID
		if id == "" {
			continue
		}
		user, ok := resolved[id]
		if !ok {
			found, err := s.users.GetUser(ctx, id)
			if err == nil {
				user = found
			}
			resolved[id] = user
		}
		entries[i].UserName = user.Name
		entries[i].UserEmail = user.Email
	}
}
