package application

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: ""},
		{err: ErrUnauthorized, want: "unauthorized"},
		{err: fmt.Errorf("wrap: %w", ErrNotFound), want: "not_found"},
		{err: ErrInvalidGoogleToken, want: "invalid_google_token"},
		{err: ErrAccountDisabled, want: "account_disabled"},
		{err: ErrSessionExpired, want: "session_expired"},
		{err: ErrSessionRevoked, want: "session_revoked"},
		{err: ErrAuthentication, want: "unauthenticated"},
		{err: ErrRateLimited, want: "rate_limited"},
		{err: NewValidationError("title", "title is required"), want: "validation"},
		{err: upstream("op", errors.New("boom")), want: "upstream"},
		{err: errors.New("boom"), want: "unexpected"},
	}

	for _, tc := range tests {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
