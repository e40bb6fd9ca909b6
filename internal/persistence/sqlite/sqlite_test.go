package sqlite

import (
	"context"
	"database/sql/driver"
	"errors"
	"path/filepath"
	"testing"

	"github.com/example/calendar-service/internal/persistence"
	"github.com/example/calendar-service/internal/persistence/persistencetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "calendar.db")
	store, err := Open(context.Background(), DefaultConfig(path))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return store
}

func TestStoreContract(t *testing.T) {
	t.Parallel()

	persistencetest.Run(t, func(t *testing.T) persistence.Store {
		return newTestStore(t)
	})
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	status, err := store.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	if status.Version != 2 || status.Dirty {
		t.Fatalf("unexpected migration status: %#v", status)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate should be a no-op, got %v", err)
	}

	if err := store.MigrateSteps(ctx, -1); err != nil {
		t.Fatalf("MigrateSteps(-1) failed: %v", err)
	}
	status, err = store.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	if status.Version != 1 {
		t.Fatalf("expected version 1 after rollback, got %d", status.Version)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("re-applying migrations failed: %v", err)
	}
}

func TestEventRequiresExistingOwner(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	err := store.CreateEvent(context.Background(), persistencetest.Event("orphan", "ghost", "2024-06-10", "2024-06-10"))
	if !isConstraintViolation(err) {
		t.Fatalf("expected constraint violation, got %v", err)
	}
}

func TestInMemoryDatabase(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := Open(ctx, DefaultConfig(MemoryDSN))
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate in-memory store: %v", err)
	}
	if err := store.CreateUser(ctx, persistencetest.User("alice", persistencetest.Reference)); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if _, err := store.GetUser(ctx, "alice"); err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
}

func TestConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig("/tmp/calendar.db")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	want := "/tmp/calendar.db?_pragma=busy_timeout%285000%29&_pragma=foreign_keys%281%29&_pragma=journal_mode%28WAL%29&_pragma=synchronous%28NORMAL%29"
	if got := cfg.DSN(); got != want {
		t.Fatalf("unexpected dsn:\n got %s\nwant %s", got, want)
	}

	invalid := []Config{
		{},
		{Path: "x.db", JournalMode: "sideways"},
		{Path: "x.db", Synchronous: "sometimes"},
		{Path: "x.db", MaxOpenConns: -1},
	}
	for _, cfg := range invalid {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected %#v to be rejected", cfg)
		}
	}
}

func isConstraintViolation(err error) bool {
	return err != nil && errors.Is(err, persistence.ErrConstraintViolation)
}

func TestFoldLowercasesUnicode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   driver.Value
		want driver.Value
	}{
		{in: "ÉTÉ Café", want: "été café"},
		{in: []byte("ÉQUIPE"), want: "équipe"},
		{in: nil, want: nil},
		{in: int64(7), want: int64(7)},
	}
	for _, tc := range tests {
		got, err := fold(nil, []driver.Value{tc.in})
		if err != nil {
			t.Fatalf("fold(%v) returned error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("fold(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
