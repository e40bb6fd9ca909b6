package sqlite

import (
	"context"

	"github.com/example/calendar-service/internal/persistence"
)

// Store bundles the SQLite repositories behind one connection pool.
type Store struct {
	*ConnectionPool
	*UserRepository
	*EventRepository
	*LogRepository
	*SessionRepository
}

var _ persistence.Store = (*Store)(nil)

// Open connects to the database described by config. Call Migrate before
// first use.
func Open(ctx context.Context, config Config) (*Store, error) {
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		return nil, err
	}
	return &Store{
		ConnectionPool:    pool,
		UserRepository:    NewUserRepository(pool),
		EventRepository:   NewEventRepository(pool),
		LogRepository:     NewLogRepository(pool),
		SessionRepository: NewSessionRepository(pool),
	}, nil
}
