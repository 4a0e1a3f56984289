package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/redis/go-redis/v9"
)

// RedisLaunchCache implements domain.EntitlementCache with Redis, for
// server-side deployments where several processes share one user cache.
// Keys are namespaced: entitlekit:{key}:launch_result
type RedisLaunchCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLaunchCache creates a cache. A zero ttl stores without expiration.
func NewRedisLaunchCache(client *redis.Client, key string, ttl time.Duration) *RedisLaunchCache {
	if key == "" {
		key = DefaultCacheKey
	}
	return &RedisLaunchCache{
		client: client,
		key:    fmt.Sprintf("entitlekit:%s:launch_result", key),
		ttl:    ttl,
	}
}

// Load returns the stored result, or nil, nil if nothing was stored yet.
func (c *RedisLaunchCache) Load(ctx context.Context) (*domain.SessionResult, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeResult(data)
}

// Save replaces the stored result.
func (c *RedisLaunchCache) Save(ctx context.Context, result *domain.SessionResult) error {
	data, err := encodeResult(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, data, c.ttl).Err()
}

// Clear removes the stored result.
func (c *RedisLaunchCache) Clear(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}

// Key returns the namespaced Redis key.
func (c *RedisLaunchCache) Key() string {
	return c.key
}

var _ domain.EntitlementCache = (*RedisLaunchCache)(nil)
