// Package cache implements a two-tier cache: a bounded in-process LRU
// in front of a distributed key-value store.
//
// The cache provides the following guarantees:
//
// - Strict LRU eviction in the local tier (least-recently-accessed first)
// - Write-through on read: store hits populate the local tier
// - Namespace isolation, with Clear scoped to a namespace prefix
// - Read-your-writes within a process (local tier updated on every Set)
// - Degrade-to-miss on store unavailability, never an error
//
// # Basic Usage
//
//	store := kvstore.NewRedis(kvstore.DefaultRedisConfig("localhost:6379"), logger)
//	c := cache.New(store, cache.DefaultConfig(), logger)
//
//	if err := c.Set(ctx, "vendor:42", vendor, 5*time.Minute, "vendors"); err != nil {
//		return err // caller misuse only (bad TTL, unserializable value)
//	}
//
//	value, ok := c.Get(ctx, "vendor:42", "vendors")
//	if !ok {
//		// miss (or store outage) - recompute
//	}
//
// # Failure Semantics
//
// Store unavailability is absorbed: Get degrades to a miss, Set keeps
// the local tier, Increment falls back to a non-atomic local counter.
// A down store degrades performance, never correctness, because the
// store is never the sole holder of a value the caller cannot
// recompute.
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - perflayer_cache_hits_total{tier} - hits by tier ("local", "store")
//   - perflayer_cache_misses_total - combined misses
//   - perflayer_cache_evictions_total - local LRU evictions
//   - perflayer_cache_decode_errors_total - undecodable store payloads
//
// Cumulative hit/miss counters with derived rates are also available in
// process via Stats.
package cache
