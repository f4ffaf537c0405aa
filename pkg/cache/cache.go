package cache

import (
	"sync"
	"time"
)

// item represents a cached value with expiration
type item struct {
	value      string
	expiration int64
}

func (it item) expired() bool {
	if it.expiration == 0 {
		return false
	}
	return time.Now().UnixNano() > it.expiration
}

// Cache is a thread-safe in-memory string cache with expiration. It is
// the fallback when no Redis instance is configured.
type Cache struct {
	mu       sync.RWMutex
	items    map[string]item
	maxItems int
}

// New creates a cache that evicts arbitrary entries past maxItems and
// purges expired entries every purgeInterval.
func New(maxItems int, purgeInterval time.Duration) *Cache {
	c := &Cache{
		items:    make(map[string]item),
		maxItems: maxItems,
	}

	if purgeInterval > 0 {
		go c.purgeLoop(purgeInterval)
	}

	return c
}

// Set stores a value with the given TTL. A zero TTL means no expiry.
func (c *Cache) Set(key, value string, ttl time.Duration) {
	var exp int64
	if ttl > 0 {
		exp = time.Now().Add(ttl).UnixNano()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxItems > 0 && len(c.items) >= c.maxItems {
		if _, exists := c.items[key]; !exists {
			c.evictOne()
		}
	}

	c.items[key] = item{value: value, expiration: exp}
}

// Get retrieves a value; the second return is false when the key is
// absent or expired.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, found := c.items[key]
	if !found || it.expired() {
		return "", false
	}
	return it.value, true
}

// Delete removes a key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Cache) evictOne() {
	for key := range c.items {
		delete(c.items, key)
		return
	}
}

func (c *Cache) purgeLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		for key, it := range c.items {
			if it.expired() {
				delete(c.items, key)
			}
		}
		c.mu.Unlock()
	}
}
