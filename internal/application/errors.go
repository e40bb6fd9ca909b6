package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist or is not owned by the caller.
	ErrNotFound = errors.New("application: not found")
	// ErrAuthentication is returned when a request carries no valid session.
	ErrAuthentication = errors.New("application: authentication required")
	// ErrInvalidGoogleToken is returned when a Google credential fails verification.
	ErrInvalidGoogleToken = errors.New("application: invalid google token")
	// ErrAccountDisabled is returned when a deactivated user attempts to sign in.
	ErrAccountDisabled = errors.New("application: account disabled")
	// ErrSessionExpired is returned when the session lifetime has elapsed.
	ErrSessionExpired = errors.New("application: session expired")
	// ErrSessionRevoked is returned when the session was explicitly revoked.
	ErrSessionRevoked = errors.New("application: session revoked")
	// ErrRateLimited is returned when a caller exceeded its request budget.
	ErrRateLimited = errors.New("application: rate limited")
)

// IsAuthError reports whether err means the caller must authenticate again.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthentication) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrSessionRevoked)
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error. The first message for a field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// NewValidationError builds a ValidationError holding a single field message.
func NewValidationError(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}

// UpstreamError wraps a storage or network failure. Callers should present a
// generic, retryable message and keep previously loaded state.
type UpstreamError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (u *UpstreamError) Error() string {
	if u == nil {
		return ""
	}
	if u.Op == "" {
		return fmt.Sprintf("upstream failure: %v", u.Err)
	}
	return fmt.Sprintf("upstream failure during %s: %v", u.Op, u.Err)
}

// Unwrap exposes the underlying error.
func (u *UpstreamError) Unwrap() error {
	if u == nil {
		return nil
	}
	return u.Err
}

func upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *UpstreamError
	if errors.As(err, &existing) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}
