package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/plannerhq/perflayer/pkg/kvstore"
)

var (
	// ErrInvalidTTL is returned when a caller passes a negative TTL.
	ErrInvalidTTL = errors.New("ttl must not be negative")
)

// Config holds two-tier cache configuration.
type Config struct {
	// LocalCapacity is the maximum number of entries in the local tier.
	LocalCapacity int

	// DefaultTTL is applied when Set is called with a zero TTL.
	DefaultTTL time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		LocalCapacity: 1000,
		DefaultTTL:    1 * time.Hour,
	}
}

// Cache composes a bounded in-process LRU (local tier) with a
// distributed key-value store (shared tier).
//
// The shared tier is the source of truth when reachable; the local tier
// is a per-process accelerator that may be evicted or stale at any time.
// Store unavailability never surfaces to callers: reads degrade to a
// miss, writes degrade to local-only. The one consequence callers must
// know about is Increment: it is atomic only while the store is
// reachable, the local fallback is a plain read-modify-write.
type Cache struct {
	local  *lruCache
	store  kvstore.Store // nil for local-only operation
	cfg    Config
	logger zerolog.Logger

	connected atomic.Bool

	localHits   atomic.Int64
	localMisses atomic.Int64
	storeHits   atomic.Int64
	storeMisses atomic.Int64
	totalGets   atomic.Int64
	totalSets   atomic.Int64
}

// New creates a two-tier cache. A nil store puts the cache in
// local-only mode; everything works, just without cross-process sharing.
func New(store kvstore.Store, cfg Config, logger zerolog.Logger) *Cache {
	if cfg.LocalCapacity <= 0 {
		cfg.LocalCapacity = DefaultConfig().LocalCapacity
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultConfig().DefaultTTL
	}

	c := &Cache{
		local:  newLRU(cfg.LocalCapacity),
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
	c.connected.Store(store != nil)
	return c
}

// Get retrieves a value, checking the local tier first and falling
// through to the store. A store hit populates the local tier before
// returning so the next read for the same key is served locally.
//
// The second return value reports presence. A store failure is
// indistinguishable from a genuine miss; callers recompute either way.
func (c *Cache) Get(ctx context.Context, key, namespace string) (any, bool) {
	c.totalGets.Add(1)
	fullKey := makeKey(namespace, key)

	if value, ok := c.local.get(fullKey); ok {
		c.localHits.Add(1)
		CacheHits.WithLabelValues("local").Inc()
		return value, true
	}
	c.localMisses.Add(1)

	if c.store == nil {
		CacheMisses.Inc()
		return nil, false
	}

	data, err := c.store.Get(ctx, fullKey)
	if err != nil {
		c.storeMisses.Add(1)
		CacheMisses.Inc()
		if kvstore.IsUnavailable(err) {
			c.connected.Store(false)
			c.logger.Debug().Err(err).Str("key", fullKey).Msg("Store get degraded to miss")
		}
		return nil, false
	}
	c.connected.Store(true)

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		// Undecodable payload counts as a miss, not a failure.
		c.storeMisses.Add(1)
		CacheMisses.Inc()
		CacheDecodeErrors.Inc()
		c.logger.Warn().Err(err).Str("key", fullKey).Msg("Undecodable cache payload")
		return nil, false
	}

	c.storeHits.Add(1)
	CacheHits.WithLabelValues("store").Inc()

	// Write-through on read. The advisory expiry bounds local staleness;
	// the store keeps the authoritative TTL.
	if evicted := c.local.set(fullKey, value, time.Now().Add(c.cfg.DefaultTTL)); evicted > 0 {
		CacheEvictions.Add(float64(evicted))
	}

	return value, true
}

// Set writes a value to both tiers. The local write cannot fail; a
// store write failure is logged and swallowed. A zero ttl uses the
// configured default. Errors are returned only for caller misuse
// (negative TTL, unserializable value).
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration, namespace string) error {
	if ttl < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTTL, ttl)
	}
	if ttl == 0 {
		ttl = c.cfg.DefaultTTL
	}

	c.totalSets.Add(1)
	fullKey := makeKey(namespace, key)

	if evicted := c.local.set(fullKey, value, time.Now().Add(ttl)); evicted > 0 {
		CacheEvictions.Add(float64(evicted))
	}

	if c.store == nil {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.store.Set(ctx, fullKey, data, ttl); err != nil {
		c.connected.Store(false)
		c.logger.Debug().Err(err).Str("key", fullKey).Msg("Store set failed, local tier only")
		return nil
	}
	c.connected.Store(true)
	return nil
}

// Delete removes a key from both tiers.
func (c *Cache) Delete(ctx context.Context, key, namespace string) {
	fullKey := makeKey(namespace, key)
	c.local.delete(fullKey)

	if c.store == nil {
		return
	}
	if err := c.store.Delete(ctx, fullKey); err != nil {
		c.connected.Store(false)
		c.logger.Debug().Err(err).Str("key", fullKey).Msg("Store delete failed")
	}
}

// Clear removes every key under a namespace from both tiers.
func (c *Cache) Clear(ctx context.Context, namespace string) {
	prefix := namespacePrefix(namespace)
	c.local.deletePrefix(prefix)

	if c.store == nil {
		return
	}
	keys, err := c.store.Keys(ctx, prefix+"*")
	if err != nil {
		c.connected.Store(false)
		c.logger.Debug().Err(err).Str("namespace", namespace).Msg("Store clear failed")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		c.connected.Store(false)
		c.logger.Debug().Err(err).Str("namespace", namespace).Msg("Store clear delete failed")
	}
}

// Exists reports whether a key is present in either tier without
// refreshing recency or hit counters.
func (c *Cache) Exists(ctx context.Context, key, namespace string) bool {
	fullKey := makeKey(namespace, key)
	if c.local.contains(fullKey) {
		return true
	}
	if c.store == nil {
		return false
	}
	ok, err := c.store.Exists(ctx, fullKey)
	if err != nil {
		return false
	}
	return ok
}

// GetMany retrieves multiple keys. Absent keys are simply omitted from
// the result; one key's failure never affects the others.
func (c *Cache) GetMany(ctx context.Context, keys []string, namespace string) map[string]any {
	result := make(map[string]any, len(keys))
	for _, key := range keys {
		if value, ok := c.Get(ctx, key, namespace); ok {
			result[key] = value
		}
	}
	return result
}

// SetMany writes multiple values. Each key is written independently; a
// failure for one key does not stop the rest. The returned error joins
// any per-key caller-misuse errors.
func (c *Cache) SetMany(ctx context.Context, items map[string]any, ttl time.Duration, namespace string) error {
	var errs []error
	for key, value := range items {
		if err := c.Set(ctx, key, value, ttl, namespace); err != nil {
			errs = append(errs, fmt.Errorf("set %q: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Increment atomically adds amount to a counter via the store. When the
// store is unavailable it falls back to a local read-modify-write, which
// is NOT safe against concurrent increments from other processes (or
// other goroutines racing the fallback). Use only where approximate
// counts are acceptable in degraded mode.
func (c *Cache) Increment(ctx context.Context, key string, amount int64, namespace string) int64 {
	fullKey := makeKey(namespace, key)

	if c.store != nil {
		value, err := c.store.IncrBy(ctx, fullKey, amount)
		if err == nil {
			c.connected.Store(true)
			return value
		}
		c.connected.Store(false)
		c.logger.Debug().Err(err).Str("key", fullKey).Msg("Store increment failed, local fallback")
	}

	var current int64
	if value, ok := c.local.get(fullKey); ok {
		current = toInt64(value)
	}
	current += amount
	c.local.set(fullKey, current, time.Now().Add(c.cfg.DefaultTTL))
	return current
}

// Decrement subtracts amount from a counter. Same atomicity caveats as
// Increment.
func (c *Cache) Decrement(ctx context.Context, key string, amount int64, namespace string) int64 {
	return c.Increment(ctx, key, -amount, namespace)
}

// MostAccessed returns the n local entries with the highest hit counts.
func (c *Cache) MostAccessed(n int) []KeyHits {
	return c.local.mostAccessed(n)
}

// toInt64 coerces a cached counter value. JSON round-trips store
// numbers as float64.
func toInt64(value any) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}
