package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pricelens/backend/internal/domain"
)

// cacheItem represents a single item in the cache with expiration
type cacheItem struct {
	Value      []byte
	Expiration time.Time
}

// MemoryCache is a bounded, thread-safe in-memory cache with TTL support.
// The LRU evicts on size and on the default TTL; shorter per-entry TTLs are
// checked on read.
type MemoryCache struct {
	lru *expirable.LRU[string, cacheItem]
}

// NewMemoryCache creates a new in-memory cache holding at most size entries
func NewMemoryCache(size int, defaultTTL time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1000
	}
	if defaultTTL <= 0 {
		defaultTTL = 12 * time.Hour
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, cacheItem](size, nil, defaultTTL),
	}
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	item, ok := c.lru.Get(key)
	if !ok {
		return nil, domain.ErrCacheMiss
	}

	// Check if expired
	if time.Now().After(item.Expiration) {
		c.lru.Remove(key)
		return nil, domain.ErrCacheMiss
	}

	return item.Value, nil
}

// Set stores a copy of value in the cache with TTL
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	c.lru.Add(key, cacheItem{
		Value:      stored,
		Expiration: time.Now().Add(ttl),
	})
	return nil
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Size returns the current number of items in the cache
func (c *MemoryCache) Size() int {
	return c.lru.Len()
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	c.lru.Purge()
}
