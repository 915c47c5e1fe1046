package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by tier ("local", "store").
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perflayer_cache_hits_total",
			Help: "Total number of cache hits by tier",
		},
		[]string{"tier"},
	)

	// CacheMisses tracks combined cache misses (absent in both tiers).
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "perflayer_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CacheEvictions tracks local tier LRU evictions.
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "perflayer_cache_evictions_total",
			Help: "Total number of local tier LRU evictions",
		},
	)

	// CacheDecodeErrors tracks store payloads that could not be decoded
	// and were therefore treated as misses.
	CacheDecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "perflayer_cache_decode_errors_total",
			Help: "Total number of undecodable store payloads treated as misses",
		},
	)
)
