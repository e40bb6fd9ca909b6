// Package ratelimit provides fixed-window request budgets keyed by caller.
// RedisLimiter shares counters across processes; MemoryLimiter keeps them
// in the local process.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPolicy is returned when a limiter is built with a non-positive budget.
var ErrInvalidPolicy = errors.New("ratelimit: limit and window must be positive")

// Policy allows Limit requests per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Validate reports whether the policy describes a usable budget.
func (p Policy) Validate() error {
	if p.Limit <= 0 || p.Window <= 0 {
		return fmt.Errorf("%w: limit=%d window=%s", ErrInvalidPolicy, p.Limit, p.Window)
	}
	return nil
}

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is the time until the current window resets.
	RetryAfter time.Duration
}

// Limiter consumes one unit of the budget for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

func decide(policy Policy, count int64, retryAfter time.Duration) Decision {
	remaining := policy.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Decision{
		Allowed:    count <= int64(policy.Limit),
		Limit:      policy.Limit,
		Remaining:  remaining,
		RetryAfter: retryAfter,
	}
}
