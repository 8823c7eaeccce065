// redis_cache.go -- Cache backed by Redis, for server-side deployments of the client
// (bots, workers) that run more than one process per user.
package client

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores each key under Prefix+key. TTL 0 means no expiry.
type RedisCache struct {
	rdb    *redis.Client
	Prefix string
	TTL    time.Duration
}

// NewRedisCache wraps an existing client; the caller owns and closes rdb.
func NewRedisCache(rdb *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, Prefix: prefix, TTL: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, c.Prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return v, err
}

func (c *RedisCache) Set(ctx context.Context, key, value string) error {
	return c.rdb.Set(ctx, c.Prefix+key, value, c.TTL).Err()
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.Prefix + k
	}
	return c.rdb.Del(ctx, full...).Err()
}
