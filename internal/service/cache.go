package service

import (
	"context"
	"time"

	"zapgpt/backend/pkg/cache"
	"zapgpt/backend/shared/redis"
)

// RedisCache backs the service cache with Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps a Redis client with a fixed entry TTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	return c.client.Get(ctx, key)
}

func (c *RedisCache) Set(ctx context.Context, key, value string) error {
	return c.client.Set(ctx, key, value, c.ttl)
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key)
}

// MemoryCache is the in-process fallback used when Redis is not
// configured.
type MemoryCache struct {
	store *cache.Cache
	ttl   time.Duration
}

// NewMemoryCache wraps the in-process TTL cache.
func NewMemoryCache(store *cache.Cache, ttl time.Duration) *MemoryCache {
	return &MemoryCache{store: store, ttl: ttl}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	return c.store.Get(key)
}

func (c *MemoryCache) Set(_ context.Context, key, value string) error {
	c.store.Set(key, value, c.ttl)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.store.Delete(key)
	return nil
}
