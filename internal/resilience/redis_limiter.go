package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LimitResult is the outcome of a window limiter check.
type LimitResult struct {
	Allowed    bool
	Current    int64
	Remaining  int64
	RetryAfter time.Duration
}

// WindowLimiter counts requests per key in fixed windows.
type WindowLimiter interface {
	// Check records one request for key and reports whether it fits within
	// limit for the current window.
	Check(ctx context.Context, key string, limit int64, window time.Duration) (LimitResult, error)
}

// fixedWindowScript increments the counter and starts the window on the first
// hit. It returns the count and the window's remaining milliseconds.
const fixedWindowScript = `
local current = redis.call('INCR', KEYS[1])
if current == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
    ttl = tonumber(ARGV[1])
end
return {current, ttl}
`

// RedisLimiter implements WindowLimiter with a Lua script so every replica
// shares one counter per key.
type RedisLimiter struct {
	client redis.UniversalClient
	script *redis.Script
	prefix string
}

// NewRedisLimiter creates a limiter storing counters under prefix.
func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{
		client: client,
		script: redis.NewScript(fixedWindowScript),
		prefix: prefix,
	}
}

func (r *RedisLimiter) counterKey(key string) string {
	return fmt.Sprintf("%s:{%s}:count", r.prefix, key)
}

// Check implements WindowLimiter.
func (r *RedisLimiter) Check(ctx context.Context, key string, limit int64, window time.Duration) (LimitResult, error) {
	if window <= 0 {
		window = time.Minute
	}

	val, err := r.script.Run(ctx, r.client, []string{r.counterKey(key)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return LimitResult{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(val) != 2 {
		return LimitResult{}, fmt.Errorf("unexpected rate limit result length: %d", len(val))
	}

	current := val[0]
	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}
	result := LimitResult{
		Allowed:   current <= limit,
		Current:   current,
		Remaining: remaining,
	}
	if !result.Allowed {
		result.RetryAfter = time.Duration(val[1]) * time.Millisecond
	}
	return result, nil
}
