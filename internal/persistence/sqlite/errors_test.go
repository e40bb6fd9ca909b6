package sqlite

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/example/calendar-service/internal/persistence"
)

func TestErrorMapper(t *testing.T) {
	t.Parallel()

	mapper := NewErrorMapper()
	tests := []struct {
		name string
		in   error
		want error
	}{
		{name: "no rows", in: sql.ErrNoRows, want: persistence.ErrNotFound},
		{name: "unique", in: errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"), want: persistence.ErrDuplicate},
		{name: "foreign key", in: errors.New("constraint failed: FOREIGN KEY constraint failed (787)"), want: persistence.ErrConstraintViolation},
		{name: "check", in: errors.New("constraint failed: CHECK constraint failed: events (275)"), want: persistence.ErrConstraintViolation},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := mapper.MapError(tc.in); !errors.Is(got, tc.want) {
				t.Fatalf("MapError(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}

	if mapper.MapError(nil) != nil {
		t.Fatal("MapError(nil) should be nil")
	}
}

func TestContainsPatternEscapesWildcards(t *testing.T) {
	t.Parallel()

	if got := containsPattern(`50%_Off\`); got != `%50\%\_off\\%` {
		t.Fatalf("unexpected pattern %q", got)
	}
}
