package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const defaultMaxKeys = 10000

// MemoryLimiter keeps fixed-window counters in process memory.
type MemoryLimiter struct {
	mu      sync.Mutex
	policy  Policy
	now     func() time.Time
	maxKeys int
	windows map[string]window
}

type window struct {
	count   int64
	resetAt time.Time
}

// NewMemoryLimiter builds a process-local limiter. maxKeys bounds the number
// of tracked callers; zero selects a default.
func NewMemoryLimiter(policy Policy, maxKeys int, now func() time.Time) (*MemoryLimiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{
		policy:  policy,
		now:     now,
		maxKeys: maxKeys,
		windows: make(map[string]window),
	}, nil
}

// Allow consumes one unit of key's budget for the current window.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	if l == nil {
		return Decision{}, fmt.Errorf("MemoryLimiter is nil")
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		if !ok && len(l.windows) >= l.maxKeys {
			l.cleanupLocked(now)
			if len(l.windows) >= l.maxKeys {
				l.evictOneLocked()
			}
		}
		w = window{resetAt: now.Add(l.policy.Window)}
	}
	w.count++
	l.windows[key] = w

	return decide(l.policy, w.count, w.resetAt.Sub(now)), nil
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *MemoryLimiter) cleanupLocked(now time.Time) {
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}

func (l *MemoryLimiter) evictOneLocked() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, w := range l.windows {
		if oldestKey == "" || w.resetAt.Before(oldest) {
			oldestKey, oldest = key, w.resetAt
		}
	}
	delete(l.windows, oldestKey)
}
