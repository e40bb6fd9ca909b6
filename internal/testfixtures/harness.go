package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/calendar-service/internal/application"
	"github.com/example/calendar-service/internal/persistence"
	"github.com/example/calendar-service/internal/persistence/adapter"
	"github.com/example/calendar-service/internal/persistence/memory"
	"github.com/example/calendar-service/internal/persistence/sqlite"
)

// Harness exposes a storage backend both raw and through the application
// repository interfaces.
type Harness struct {
	Store persistence.Store
	Repo  *adapter.Repository
}

// NewMemoryHarness returns a harness over a fresh in-memory store.
func NewMemoryHarness(tb testing.TB) *Harness {
	tb.Helper()

	store := memory.Open()
	tb.Cleanup(func() { _ = store.Close() })
	return &Harness{Store: store, Repo: adapter.New(store)}
}

// NewSQLiteHarness returns a harness over a migrated SQLite file in a
// temporary directory. The store is closed when the test ends.
func NewSQLiteHarness(tb testing.TB) *Harness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "calendar.db")
	store, err := sqlite.Open(context.Background(), sqlite.DefaultConfig(path))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}
	return &Harness{Store: store, Repo: adapter.New(store)}
}

// SeedUsers stores the fixtures and fails the test on error.
func (h *Harness) SeedUsers(tb testing.TB, users ...UserFixture) {
	tb.Helper()
	for _, u := range users {
		if _, err := h.Repo.CreateUser(context.Background(), u.Application()); err != nil {
			tb.Fatalf("failed to seed user %s: %v", u.ID, err)
		}
	}
}

// SeedEvents stores the fixtures and returns the stored events.
func (h *Harness) SeedEvents(tb testing.TB, events ...EventFixture) []application.Event {
	tb.Helper()
	out := make([]application.Event, 0, len(events))
	for _, e := range events {
		stored, err := h.Repo.CreateEvent(context.Background(), e.Application())
		if err != nil {
			tb.Fatalf("failed to seed event %s: %v", e.ID, err)
		}
		out = append(out, stored)
	}
	return out
}
