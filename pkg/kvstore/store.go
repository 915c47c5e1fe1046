// Package kvstore defines the boundary to the distributed key-value
// store backing the cache and rate-limit layers, plus a Redis
// implementation of it.
//
// The store is treated as an unreliable external dependency: every call
// is bounded by a timeout, and connectivity failures surface as
// ErrUnavailable so callers can apply their own degrade policy
// (degrade-to-miss for caching, fail-open for rate limiting) instead of
// blanket error suppression.
package kvstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested key does not exist in the store.
	ErrNotFound = errors.New("key not found")

	// ErrUnavailable indicates the store could not be reached (connection
	// failure, timeout, or open circuit breaker).
	ErrUnavailable = errors.New("store unavailable")
)

// Store is the minimal key-value contract the performance layer needs.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the raw bytes stored under key.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// IncrBy atomically adds amount to the integer stored under key,
	// creating it at zero first if absent, and returns the new value.
	IncrBy(ctx context.Context, key string, amount int64) (int64, error)

	// Expire sets the ttl of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Keys returns all keys matching the glob-style pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying client resources.
	Close() error
}

// IsUnavailable reports whether err represents store unreachability as
// opposed to a normal miss or caller error.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
