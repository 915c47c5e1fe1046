package cache

import (
	"context"
	"sync"
	"time"
)

// Loader produces the value for one cache key, typically from the
// primary data source.
type Loader func(ctx context.Context, key string) (any, error)

// WarmerConfig holds batch warming configuration.
type WarmerConfig struct {
	// MaxConcurrency is the number of parallel loader calls.
	MaxConcurrency int

	// Timeout bounds each individual loader call.
	Timeout time.Duration
}

// DefaultWarmerConfig returns safe warming defaults.
func DefaultWarmerConfig() WarmerConfig {
	return WarmerConfig{
		MaxConcurrency: 10,
		Timeout:        15 * time.Second,
	}
}

// WarmResult reports the outcome for one warmed key.
type WarmResult struct {
	Key   string
	Error error
}

// Warmer preloads cache entries in parallel using a bounded worker
// pool. Warming is best-effort: a failed key is reported and skipped,
// it never aborts the batch.
type Warmer struct {
	cache  *Cache
	loader Loader
	cfg    WarmerConfig
}

// NewWarmer creates a warmer over the given cache and loader.
func NewWarmer(c *Cache, loader Loader, cfg WarmerConfig) *Warmer {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Warmer{cache: c, loader: loader, cfg: cfg}
}

// Warm loads every key through the loader and stores the results under
// the namespace with the given TTL. It returns one result per key;
// keys already present in the cache are loaded anyway, refreshing the
// entry.
func (w *Warmer) Warm(ctx context.Context, keys []string, ttl time.Duration, namespace string) []WarmResult {
	start := time.Now()
	w.cache.logger.Info().
		Int("keys", len(keys)).
		Str("namespace", namespacePrefix(namespace)).
		Msg("Starting cache warm")

	queue := make(chan string, len(keys))
	for _, key := range keys {
		queue <- key
	}
	close(queue)

	results := make(chan WarmResult, len(keys))

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.MaxConcurrency; i++ {
		wg.Add(1)
		go w.worker(ctx, queue, results, ttl, namespace, &wg)
	}
	wg.Wait()
	close(results)

	collected := make([]WarmResult, 0, len(keys))
	failed := 0
	for r := range results {
		if r.Error != nil {
			failed++
		}
		collected = append(collected, r)
	}

	w.cache.logger.Info().
		Int("keys", len(keys)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Cache warm complete")
	return collected
}

func (w *Warmer) worker(ctx context.Context, queue <-chan string, results chan<- WarmResult, ttl time.Duration, namespace string, wg *sync.WaitGroup) {
	defer wg.Done()

	for key := range queue {
		select {
		case <-ctx.Done():
			results <- WarmResult{Key: key, Error: ctx.Err()}
			continue
		default:
		}

		loadCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
		value, err := w.loader(loadCtx, key)
		cancel()

		if err != nil {
			w.cache.logger.Warn().Err(err).Str("key", key).Msg("Warm load failed")
			results <- WarmResult{Key: key, Error: err}
			continue
		}

		results <- WarmResult{Key: key, Error: w.cache.Set(ctx, key, value, ttl, namespace)}
	}
}
