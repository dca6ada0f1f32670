package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// The expiry is set only when the key has none, so the window is anchored at the first request.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisLimiter is a fixed-window limiter whose counters live in Redis, shared by all instances.
type RedisLimiter struct {
	client redis.Cmdable
	prefix string
}

// NewRedisLimiter creates a limiter storing counters under prefix.
func NewRedisLimiter(client redis.Cmdable, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix}
}

func (l *RedisLimiter) key(key string) string {
	return l.prefix + key
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := fixedWindowScript.Run(ctx, l.client, []string{l.key(key)}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit check for %s: %w", key, err)
	}
	return count <= int64(limit), nil
}

// Reset implements Limiter.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("rate limit reset for %s: %w", key, err)
	}
	return nil
}
