package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/plannerhq/perflayer/pkg/cache"
	"github.com/plannerhq/perflayer/pkg/kvstore"
	"github.com/plannerhq/perflayer/pkg/metrics"
)

// server bundles the gateway's dependencies for the HTTP handlers.
type server struct {
	cache      *cache.Cache
	store      kvstore.Store
	recorder   *metrics.Recorder
	aggregator *metrics.Aggregator
	logger     zerolog.Logger
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// handleReady reports 503 while the counter store is unreachable. The
// gateway itself keeps serving in degraded mode either way.
func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// handleStats serves descriptive statistics for one metric type.
// Query params: type (default api_latency), hours (default 1).
func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	metricType := r.URL.Query().Get("type")
	if metricType == "" {
		metricType = metrics.TypeRequestLatency
	}
	window := queryHours(r, 1)

	now := time.Now()
	stats, err := s.aggregator.Stats(r.Context(), metricType, now.Add(-window), now)
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.writeJSON(w, stats)
}

// handleEndpoints serves the per-endpoint latency breakdown.
func (s *server) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	result, err := s.aggregator.LatencyByEndpoint(r.Context(), queryHours(r, 1))
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.writeJSON(w, result)
}

// handleQueries serves per-table database query statistics.
func (s *server) handleQueries(w http.ResponseWriter, r *http.Request) {
	result, err := s.aggregator.QueryStatsByTable(r.Context(), queryHours(r, 1))
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.writeJSON(w, result)
}

// handleThroughput serves request volume rates. Query param: minutes
// (default 5).
func (s *server) handleThroughput(w http.ResponseWriter, r *http.Request) {
	minutes := queryInt(r, "minutes", 5)
	result, err := s.aggregator.ThroughputStats(r.Context(), time.Duration(minutes)*time.Minute)
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.writeJSON(w, result)
}

// handleCacheStats serves cache tier counters and the hottest local
// keys.
func (s *server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"stats":         s.cache.Stats(),
		"most_accessed": s.cache.MostAccessed(10),
	})
}

// handleCacheClear invalidates a namespace in both tiers. Query
// param: namespace (default "default").
func (s *server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	namespace := r.URL.Query().Get("namespace")
	if namespace == "" {
		namespace = cache.DefaultNamespace
	}
	s.cache.Clear(r.Context(), namespace)
	s.logger.Info().Str("namespace", namespace).Msg("Cache namespace cleared")
	s.writeJSON(w, map[string]string{"cleared": namespace})
}

// handleCacheResetStats zeroes the cache hit/miss counters.
func (s *server) handleCacheResetStats(w http.ResponseWriter, _ *http.Request) {
	s.cache.ResetStats()
	w.WriteHeader(http.StatusNoContent)
}

// handleCleanup sweeps metric samples older than the given retention.
// Query param: days (default 30).
func (s *server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	deleted, err := s.recorder.Cleanup(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"deleted": deleted, "days": days})
}

// handleListEvents is a demo data endpoint. It sits behind the full
// middleware chain, so repeated GETs come back with X-Cache: HIT.
func (s *server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")

	events := []map[string]any{
		{"id": 1, "name": "Summer Gala", "city": "berlin"},
		{"id": 2, "name": "Tech Expo", "city": "hamburg"},
		{"id": 3, "name": "Wine Tasting", "city": "berlin"},
	}
	if city != "" {
		filtered := events[:0]
		for _, e := range events {
			if e["city"] == city {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	s.writeJSON(w, events)
}

func (s *server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (s *server) serverError(w http.ResponseWriter, err error) {
	s.logger.Error().Err(err).Msg("Request failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	if value := r.URL.Query().Get(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func queryHours(r *http.Request, defaultHours int) time.Duration {
	return time.Duration(queryInt(r, "hours", defaultHours)) * time.Hour
}
