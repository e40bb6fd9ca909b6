package sqlite

import (
	"context"
	"strings"

	"github.com/example/calendar-service/internal/persistence"
)

// LogRepository implements persistence.LogRepository using SQLite.
type LogRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewLogRepository creates a new SQLite audit log repository. Appends are
// retried while the database is locked because they run concurrently with
// request traffic.
func NewLogRepository(pool *ConnectionPool) *LogRepository {
	return &LogRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

// AppendLog stores an audit entry.
func (r *LogRepository) AppendLog(ctx context.Context, entry persistence.LogEntry) error {
	if strings.TrimSpace(entry.ID) == "" || strings.TrimSpace(entry.Action) == "" {
		return persistence.ErrConstraintViolation
	}
	metadata, err := encodeMetadata(entry.Metadata)
	if err != nil {
		return err
	}

	return r.retry.WithRetry(ctx, func() error {
		_, err := r.pool.db.ExecContext(ctx, `
			INSERT INTO activity_logs (id, user_id, action, description, metadata, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			entry.ID,
			entry.UserID,
			entry.Action,
			entry.Description,
			metadata,
			formatTime(entry.Timestamp),
		)
		return err
	})
}

// QueryLogs returns entries matching the filter, newest first.
func (r *LogRepository) QueryLogs(ctx context.Context, filter persistence.LogFilter) ([]persistence.LogEntry, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, formatTime(filter.To))
	}

	query := `SELECT id, user_id, action, description, metadata, timestamp FROM activity_logs`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY timestamp DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	entries := make([]persistence.LogEntry, 0)
	for rows.Next() {
		var (
			entry               persistence.LogEntry
			metadata, timestamp string
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Action, &entry.Description, &metadata, &timestamp); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if entry.Metadata, err = decodeMetadata(metadata); err != nil {
			return nil, err
		}
		if entry.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return entries, nil
}
