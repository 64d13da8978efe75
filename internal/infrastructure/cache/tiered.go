// Package cache stores verified price results in a local LRU tier backed by
// an optional shared Redis tier.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/observability"
	"github.com/rs/zerolog"
)

const (
	TierMemory = "memory"
	TierRedis  = "redis"
)

// storeTimeout bounds a single cache operation so a slow Redis never holds up a lookup
const storeTimeout = 500 * time.Millisecond

// TieredCache implements domain.PriceCache. Store failures degrade to a
// miss and are only logged.
type TieredCache struct {
	memory  *MemoryCache
	shared  domain.CacheStore
	ttl     time.Duration
	metrics *observability.Metrics
	log     zerolog.Logger
}

// NewTieredCache builds the cache; shared may be nil
func NewTieredCache(memory *MemoryCache, shared domain.CacheStore, ttl time.Duration, metrics *observability.Metrics, logger zerolog.Logger) *TieredCache {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TieredCache{
		memory:  memory,
		shared:  shared,
		ttl:     ttl,
		metrics: metrics,
		log:     logger.With().Str("component", "cache").Logger(),
	}
}

// Lookup checks memory then the shared tier, back-filling memory on a shared hit
func (c *TieredCache) Lookup(ctx context.Context, key string) (*domain.CacheEntry, string, bool) {
	if c.memory != nil {
		if entry, ok := c.read(ctx, c.memory, TierMemory, key); ok {
			return entry, TierMemory, true
		}
	}
	if c.shared == nil {
		return nil, "", false
	}

	opCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	entry, ok := c.read(opCtx, c.shared, TierRedis, key)
	if !ok {
		return nil, "", false
	}

	if c.memory != nil {
		if raw, err := json.Marshal(entry); err == nil {
			_ = c.memory.Set(ctx, key, raw, c.ttl)
		}
	}
	return entry, TierRedis, true
}

// Store writes entry to every tier
func (c *TieredCache) Store(ctx context.Context, key string, entry domain.CacheEntry) {
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache entry not encodable")
		return
	}

	if c.memory != nil {
		_ = c.memory.Set(ctx, key, raw, c.ttl)
	}
	if c.shared == nil {
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := c.shared.Set(opCtx, key, raw, c.ttl); err != nil {
		log := observability.WithRequest(ctx, c.log)
		log.Warn().Err(err).Str("key", key).Msg("shared cache write failed")
		c.metrics.IncCache(TierRedis, "error")
	}
}

func (c *TieredCache) read(ctx context.Context, store domain.CacheStore, tier, key string) (*domain.CacheEntry, bool) {
	raw, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, domain.ErrCacheMiss):
		c.metrics.IncCache(tier, "miss")
		return nil, false
	case err != nil:
		log := observability.WithRequest(ctx, c.log)
		log.Warn().Err(err).Str("tier", tier).Msg("cache read failed")
		c.metrics.IncCache(tier, "error")
		return nil, false
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.log.Warn().Err(err).Str("tier", tier).Str("key", key).Msg("corrupt cache entry")
		c.metrics.IncCache(tier, "error")
		return nil, false
	}
	c.metrics.IncCache(tier, "hit")
	return &entry, true
}
