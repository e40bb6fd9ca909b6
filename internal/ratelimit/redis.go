package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "calendar:ratelimit"

// Counter is the subset of the redis client used by RedisLimiter.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// RedisLimiter counts requests in redis so every replica shares one budget.
type RedisLimiter struct {
	counter Counter
	policy  Policy
	prefix  string
}

// NewRedisLimiter builds a limiter over an existing redis client.
func NewRedisLimiter(counter Counter, policy Policy, prefix string) (*RedisLimiter, error) {
	if counter == nil {
		return nil, fmt.Errorf("ratelimit: redis client is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisLimiter{counter: counter, policy: policy, prefix: prefix}, nil
}

// Allow increments the counter for key. The first hit of a window sets its expiry.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l == nil {
		return Decision{}, fmt.Errorf("RedisLimiter is nil")
	}
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	count, err := l.counter.Incr(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: incr %s: %w", redisKey, err)
	}
	if count == 1 {
		if err := l.counter.Expire(ctx, redisKey, l.policy.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("ratelimit: expire %s: %w", redisKey, err)
		}
		return decide(l.policy, count, l.policy.Window), nil
	}

	ttl, err := l.counter.TTL(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: ttl %s: %w", redisKey, err)
	}
	// A key without expiry (-1) would never reset; repair it.
	if ttl < 0 {
		if err := l.counter.Expire(ctx, redisKey, l.policy.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("ratelimit: expire %s: %w", redisKey, err)
		}
		ttl = l.policy.Window
	}
	return decide(l.policy, count, ttl), nil
}
