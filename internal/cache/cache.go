package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is an in-memory TTL cache with a background janitor
type Cache struct {
	items *gocache.Cache
}

// New creates a new cache instance; expired items are purged every cleanupInterval
func New(cleanupInterval time.Duration) *Cache {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &Cache{
		items: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

// Get retrieves an item from the cache
func (c *Cache) Get(key string) (any, bool) {
	return c.items.Get(key)
}

// Set stores an item in the cache with TTL. A non-positive TTL stores nothing.
func (c *Cache) Set(key string, data any, ttl time.Duration) {
	if ttl <= 0 {
		c.items.Delete(key)
		return
	}
	c.items.Set(key, data, ttl)
}

// Delete removes an item from the cache
func (c *Cache) Delete(key string) {
	c.items.Delete(key)
}

// Clear removes all items from the cache
func (c *Cache) Clear() {
	c.items.Flush()
}

// Len returns the number of cached items, including expired ones not yet purged
func (c *Cache) Len() int {
	return c.items.ItemCount()
}
