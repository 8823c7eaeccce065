// redis.go -- go-redis client and login rate limiter.
//
// Redis is optional: with REDIS_URL unset the server runs with NoopRateLimiter.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient parses redisURL, connects and pings.
// Call once at startup from main.go; the client is safe for concurrent use.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// RedisRateLimiter counts attempts per key in a fixed window and locks the key
// out for LockoutTTL once MaxAttempts is exceeded.
type RedisRateLimiter struct {
	rdb *redis.Client
}

func NewRedisRateLimiter(rdb *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{rdb: rdb}
}

// allowScript checks the lockout and records one attempt in a single step.
// Returns 1 if the attempt is allowed, 0 if locked out.
// KEYS[1] = count key, KEYS[2] = lock key,
// ARGV[1] = max attempts, ARGV[2] = window ms, ARGV[3] = lockout ms (0 = no lockout).
var allowScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
    return 0
end
local n = redis.call('INCR', KEYS[1])
if n == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if n <= tonumber(ARGV[1]) then
    return 1
end
local lockout = tonumber(ARGV[3])
if lockout > 0 then
    redis.call('SET', KEYS[2], 1, 'PX', lockout)
    redis.call('DEL', KEYS[1])
end
return 0
`)

// Allow records one attempt for key. Returns ErrRateLimitExceeded while locked out
// or when this attempt crosses the threshold.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string, policy RateLimit) error {
	if policy.MaxAttempts <= 0 || policy.Window <= 0 {
		return nil
	}
	keys := []string{fmt.Sprintf("ratelimit:%s", key), fmt.Sprintf("ratelimit_lock:%s", key)}
	ok, err := allowScript.Run(ctx, l.rdb, keys,
		policy.MaxAttempts, policy.Window.Milliseconds(), policy.LockoutTTL.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("recording attempt: %w", err)
	}
	if ok == 0 {
		return ErrRateLimitExceeded
	}
	return nil
}

// Reset clears attempts and any lockout for key (called after a successful login).
func (l *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, fmt.Sprintf("ratelimit:%s", key), fmt.Sprintf("ratelimit_lock:%s", key)).Err()
}

// CheckHealth pings Redis.
func (l *RedisRateLimiter) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return l.rdb.Ping(ctx).Err()
}

// NoopRateLimiter allows everything. Used when REDIS_URL is not configured.
type NoopRateLimiter struct{}

func (NoopRateLimiter) Allow(context.Context, string, RateLimit) error { return nil }
func (NoopRateLimiter) Reset(context.Context, string) error { return nil }
func (NoopRateLimiter) CheckHealth(context.Context) error { return ErrCacheDisabled }
