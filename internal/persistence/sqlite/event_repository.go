package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/example/calendar-service/internal/persistence"
)

// EventRepository implements persistence.EventRepository using SQLite.
type EventRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewEventRepository creates a new SQLite event repository.
func NewEventRepository(pool *ConnectionPool) *EventRepository {
	return &EventRepository{pool: pool, mapper: NewErrorMapper()}
}

const eventColumns = `id, owner_id, title, description, start_date, end_date, start_time, end_time,
	duration, event_group, repeat_type, repeat_weekdays, active, created_at, updated_at`

// CreateEvent inserts a new event.
func (r *EventRepository) CreateEvent(ctx context.Context, event persistence.Event) error {
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.OwnerID) == "" {
		return persistence.ErrConstraintViolation
	}
	weekdays, err := encodeWeekdays(event.RepeatWeekdays)
	if err != nil {
		return err
	}

	_, err = r.pool.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		event.OwnerID,
		event.Title,
		event.Description,
		event.StartDate,
		event.EndDate,
		event.StartTime,
		event.EndTime,
		event.Duration,
		event.Group,
		repeatType(event.RepeatType),
		weekdays,
		event.Active,
		formatTime(event.CreatedAt),
		formatTime(event.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateEvent replaces the mutable fields of an active event of the same owner.
func (r *EventRepository) UpdateEvent(ctx context.Context, event persistence.Event) error {
	weekdays, err := encodeWeekdays(event.RepeatWeekdays)
	if err != nil {
		return err
	}

	result, err := r.pool.db.ExecContext(ctx, `
		UPDATE events
		SET title = ?, description = ?, start_date = ?, end_date = ?, start_time = ?, end_time = ?,
			duration = ?, event_group = ?, repeat_type = ?, repeat_weekdays = ?, updated_at = ?
		WHERE id = ? AND owner_id = ? AND active = 1
	`,
		event.Title,
		event.Description,
		event.StartDate,
		event.EndDate,
		event.StartTime,
		event.EndTime,
		event.Duration,
		event.Group,
		repeatType(event.RepeatType),
		weekdays,
		formatTime(event.UpdatedAt),
		event.ID,
		event.OwnerID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// GetEvent retrieves an active event owned by ownerID.
func (r *EventRepository) GetEvent(ctx context.Context, ownerID, id string) (persistence.Event, error) {
	if id == "" || ownerID == "" {
		return persistence.Event{}, persistence.ErrNotFound
	}
	row := r.pool.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ? AND owner_id = ? AND active = 1`,
		id, ownerID,
	)
	return r.scanEvent(row)
}

// ListEvents returns events matching the filter ordered by start.
func (r *EventRepository) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	query, args := r.buildListQuery(filter)

	rows, err := r.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	events := make([]persistence.Event, 0)
	for rows.Next() {
		event, err := r.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return events, nil
}

// DeactivateEvent soft-deletes an active event owned by ownerID.
func (r *EventRepository) DeactivateEvent(ctx context.Context, ownerID, id string, at time.Time) error {
	result, err := r.pool.db.ExecContext(ctx,
		`UPDATE events SET active = 0, updated_at = ? WHERE id = ? AND owner_id = ? AND active = 1`,
		formatTime(at), id, ownerID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// DeactivateOwnerEvents soft-deletes every active event of an owner.
func (r *EventRepository) DeactivateOwnerEvents(ctx context.Context, ownerID string, at time.Time) (int, error) {
	var affected int64
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE events SET active = 0, updated_at = ? WHERE owner_id = ? AND active = 1`,
			formatTime(at), ownerID,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// buildListQuery builds the SQL query for listing events with filters.
func (r *EventRepository) buildListQuery(filter persistence.EventFilter) (string, []any) {
	conditions := []string{"owner_id = ?", "active = 1"}
	args := []any{filter.OwnerID}

	switch {
	case filter.From != "" && filter.To != "" && filter.IncludeRecurring:
		conditions = append(conditions, "start_date <= ? AND (end_date >= ? OR repeat_type <> 'none')")
		args = append(args, filter.To, filter.From)
	case filter.To != "":
		conditions = append(conditions, "start_date <= ?")
		args = append(args, filter.To)
		if filter.From != "" {
			conditions = append(conditions, "end_date >= ?")
			args = append(args, filter.From)
		}
	case filter.From != "":
		if filter.IncludeRecurring {
			conditions = append(conditions, "(end_date >= ? OR repeat_type <> 'none')")
		} else {
			conditions = append(conditions, "end_date >= ?")
		}
		args = append(args, filter.From)
	}

	if filter.Query != "" {
		conditions = append(conditions, `(`+foldFunction+`(title) LIKE ? ESCAPE '\' OR `+foldFunction+`(description) LIKE ? ESCAPE '\')`)
		pattern := containsPattern(filter.Query)
		args = append(args, pattern, pattern)
	}
	if filter.Group != "" {
		conditions = append(conditions, foldFunction+`(event_group) LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(filter.Group))
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY start_date ASC, start_time ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	return query, args
}

func (r *EventRepository) scanEvent(row scanner) (persistence.Event, error) {
	var (
		event                persistence.Event
		weekdays             string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&event.ID,
		&event.OwnerID,
		&event.Title,
		&event.Description,
		&event.StartDate,
		&event.EndDate,
		&event.StartTime,
		&event.EndTime,
		&event.Duration,
		&event.Group,
		&event.RepeatType,
		&weekdays,
		&event.Active,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Event{}, persistence.ErrNotFound
		}
		return persistence.Event{}, r.mapper.MapError(err)
	}

	if event.RepeatWeekdays, err = decodeWeekdays(weekdays); err != nil {
		return persistence.Event{}, err
	}
	if event.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Event{}, err
	}
	if event.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Event{}, err
	}
	return event, nil
}

func repeatType(value string) string {
	if value == "" {
		return "none"
	}
	return value
}
