package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// RedisConfig holds configuration for the Redis-backed store.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string

	// Password is the Redis password (empty for none).
	Password string

	// DB is the Redis database number.
	DB int

	// OpTimeout bounds every single store operation. Calls that exceed
	// it fail with ErrUnavailable instead of blocking the request path.
	OpTimeout time.Duration

	// BreakerFailures is the number of consecutive failures after which
	// the circuit breaker opens and calls short-circuit to
	// ErrUnavailable without touching the network.
	BreakerFailures uint32

	// BreakerCooldown is how long the breaker stays open before probing
	// the store again.
	BreakerCooldown time.Duration
}

// DefaultRedisConfig returns a safe default configuration.
func DefaultRedisConfig(addr string) RedisConfig {
	return RedisConfig{
		Addr:            addr,
		OpTimeout:       250 * time.Millisecond,
		BreakerFailures: 5,
		BreakerCooldown: 10 * time.Second,
	}
}

// Redis implements Store on top of a Redis client.
//
// All operations go through a circuit breaker: once the store has failed
// repeatedly, further calls return ErrUnavailable immediately so the
// caller's degraded path does not pay the connection timeout on every
// request.
type Redis struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  zerolog.Logger
}

// NewRedis creates a Redis-backed store. It does not require the server
// to be reachable at construction time; connectivity is probed per call
// (and by Ping during startup).
func NewRedis(cfg RedisConfig, logger zerolog.Logger) *Redis {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 250 * time.Millisecond
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 10 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "kvstore",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Store circuit breaker state changed")
		},
	})

	return &Redis{
		client:  client,
		breaker: breaker,
		timeout: cfg.OpTimeout,
		logger:  logger,
	}
}

// execute runs op under the circuit breaker and the per-call timeout,
// translating connectivity failures to ErrUnavailable. ErrNotFound
// passes through without counting as a breaker failure.
func (r *Redis) execute(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.breaker.Execute(func() (any, error) {
		if err := op(opCtx); err != nil {
			if errors.Is(err, redis.Nil) {
				// A miss is a valid result, not a store failure.
				return nil, nil
			}
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		storeErrorsTotal.WithLabelValues(operation).Inc()
		r.logger.Debug().
			Err(err).
			Str("operation", operation).
			Msg("Store operation failed")
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, operation, err)
	}
	return nil
}

// Get returns the raw bytes stored under key.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	var missing bool

	err := r.execute(ctx, "get", func(ctx context.Context) error {
		b, err := r.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			missing = true
			return err
		}
		data = b
		return err
	})
	if err != nil {
		return nil, err
	}
	if missing {
		return nil, ErrNotFound
	}
	return data, nil
}

// Set stores value under key with the given ttl.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.execute(ctx, "set", func(ctx context.Context) error {
		return r.client.Set(ctx, key, value, ttl).Err()
	})
}

// Delete removes the given keys.
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.execute(ctx, "delete", func(ctx context.Context) error {
		return r.client.Del(ctx, keys...).Err()
	})
}

// IncrBy atomically adds amount to the counter stored under key.
func (r *Redis) IncrBy(ctx context.Context, key string, amount int64) (int64, error) {
	var value int64
	err := r.execute(ctx, "incrby", func(ctx context.Context) error {
		n, err := r.client.IncrBy(ctx, key, amount).Result()
		value = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

// Expire sets the ttl of an existing key.
func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.execute(ctx, "expire", func(ctx context.Context) error {
		return r.client.Expire(ctx, key, ttl).Err()
	})
}

// Keys returns all keys matching the glob-style pattern.
func (r *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	err := r.execute(ctx, "keys", func(ctx context.Context) error {
		k, err := r.client.Keys(ctx, pattern).Result()
		keys = k
		return err
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Exists reports whether key is present.
func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := r.execute(ctx, "exists", func(ctx context.Context) error {
		count, err := r.client.Exists(ctx, key).Result()
		n = count
		return err
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Ping verifies connectivity to the Redis server.
func (r *Redis) Ping(ctx context.Context) error {
	return r.execute(ctx, "ping", func(ctx context.Context) error {
		return r.client.Ping(ctx).Err()
	})
}

// Close releases the underlying Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
