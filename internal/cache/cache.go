// Package cache is the Redis layer in front of the store: the job status mirror,
// per-key rate limit counters and memoized elasticity estimates. Nothing kept
// here is authoritative.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. Implementations must be safe for concurrent
// use; callers fall back to the store on a miss or an error.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Ping(ctx context.Context) error
	SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// Option configures a RedisCache.
type Option func(*RedisCache)

// WithNamespace prefixes every key with ns and a colon, so several deployments
// can share one Redis database.
func WithNamespace(ns string) Option {
	return func(c *RedisCache) {
		if ns != "" {
			c.namespace = ns + ":"
		}
	}
}

// RedisCache implements Cache on go-redis/v9.
type RedisCache struct {
	client    *redis.Client
	namespace string
}

// NewRedisCache parses redisURL and returns a cache over a new client pool.
func NewRedisCache(redisURL string, opts ...Option) (*RedisCache, error) {
	ro, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	c := &RedisCache{client: redis.NewClient(ro)}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	return lookup(val, err)
}

func (c *RedisCache) SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(JobStatusKey(jobID)), status, ttl).Err()
}

func (c *RedisCache) GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error) {
	val, err := c.client.Get(ctx, c.key(JobStatusKey(jobID))).Result()
	return lookup(val, err)
}

// IncrWithExpiry increments key and starts its expiry on the first hit only, so
// the window is fixed rather than sliding with every request.
func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	k := c.key(key)
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incrementing %s: %w", key, err)
	}
	return incr.Val(), nil
}

func (c *RedisCache) key(k string) string {
	return c.namespace + k
}

func lookup[T any](val T, err error) (T, bool, error) {
	var zero T
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	return val, true, nil
}

var _ Cache = (*RedisCache)(nil)
