package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/plannerhq/perflayer/internal/testutil"
	"github.com/plannerhq/perflayer/pkg/cache"
	"github.com/plannerhq/perflayer/pkg/metrics"
)

func newTestServer(t *testing.T) (*server, *testutil.FakeStore, *metrics.MemoryStore) {
	t.Helper()
	store := testutil.NewFakeStore()
	sampleStore := metrics.NewMemoryStore()

	return &server{
		cache:      cache.New(store, cache.Config{}, zerolog.Nop()),
		store:      store,
		recorder:   metrics.NewRecorder(sampleStore, zerolog.Nop()),
		aggregator: metrics.NewAggregator(sampleStore),
		logger:     zerolog.Nop(),
	}, store, sampleStore
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.handleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint(t *testing.T) {
	srv, store, _ := newTestServer(t)

	t.Run("ready", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.handleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("not_ready_store_down", func(t *testing.T) {
		store.Fail(true)
		defer store.Fail(false)

		w := httptest.NewRecorder()
		srv.handleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Code)
		}
	})
}

func TestStatsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	srv.recorder.RecordRequestLatency(context.Background(), "/events", "GET", 200, 40*time.Millisecond, "")
	srv.recorder.RecordRequestLatency(context.Background(), "/events", "GET", 200, 60*time.Millisecond, "")

	w := httptest.NewRecorder()
	srv.handleStats(w, httptest.NewRequest(http.MethodGet, "/perf/stats?hours=1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var stats metrics.TypeStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Response not JSON: %v", err)
	}
	if stats.Count != 2 || stats.Avg != 50 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestEndpointsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	srv.recorder.RecordRequestLatency(context.Background(), "/events", "GET", 200, 25*time.Millisecond, "")

	w := httptest.NewRecorder()
	srv.handleEndpoints(w, httptest.NewRequest(http.MethodGet, "/perf/endpoints", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var result []metrics.EndpointLatency
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Response not JSON: %v", err)
	}
	if len(result) != 1 || result[0].Endpoint != "/events" {
		t.Errorf("Unexpected breakdown: %+v", result)
	}
}

func TestThroughputEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for i := 0; i < 10; i++ {
		srv.recorder.RecordRequestCount(context.Background())
	}

	w := httptest.NewRecorder()
	srv.handleThroughput(w, httptest.NewRequest(http.MethodGet, "/perf/throughput?minutes=5", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var result metrics.Throughput
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Response not JSON: %v", err)
	}
	if result.TotalRequests != 10 {
		t.Errorf("TotalRequests = %v, want 10", result.TotalRequests)
	}
}

func TestCacheEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx := context.Background()

	if err := srv.cache.Set(ctx, "vendor:1", "caterer", 0, "vendors"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	srv.cache.Get(ctx, "vendor:1", "vendors")

	w := httptest.NewRecorder()
	srv.handleCacheStats(w, httptest.NewRequest(http.MethodGet, "/perf/cache", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "l1_hits") {
		t.Errorf("Cache stats response missing counters: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	srv.handleCacheClear(w, httptest.NewRequest(http.MethodPost, "/perf/cache/clear?namespace=vendors", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if srv.cache.Exists(ctx, "vendor:1", "vendors") {
		t.Error("Clear should have removed the namespace")
	}

	w = httptest.NewRecorder()
	srv.handleCacheResetStats(w, httptest.NewRequest(http.MethodPost, "/perf/cache/reset-stats", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if srv.cache.Stats().LocalHits != 0 {
		t.Error("ResetStats should zero the counters")
	}
}

func TestCleanupEndpoint(t *testing.T) {
	srv, _, sampleStore := newTestServer(t)
	ctx := context.Background()

	old := metrics.Sample{
		Type:       metrics.TypeRequestLatency,
		Value:      10,
		RecordedAt: time.Now().Add(-40 * 24 * time.Hour),
	}
	if err := sampleStore.Insert(ctx, old); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	w := httptest.NewRecorder()
	srv.handleCleanup(w, httptest.NewRequest(http.MethodPost, "/perf/cleanup?days=30", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Response not JSON: %v", err)
	}
	if result["deleted"] != float64(1) {
		t.Errorf("deleted = %v, want 1", result["deleted"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	w := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	bodyStr := string(body)
	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
}

func TestSampleStoreFallsBackToMemory(t *testing.T) {
	logger := zerolog.Nop()

	store := newSampleStore(context.Background(), config{}, logger)
	t.Cleanup(func() { store.Close() })
	if _, ok := store.(*metrics.MemoryStore); !ok {
		t.Fatalf("Expected in-memory store without DATABASE_URL, got %T", store)
	}

	cfg := config{DatabaseURL: "postgres://user@%zz/broken"}
	store = newSampleStore(context.Background(), cfg, logger)
	t.Cleanup(func() { store.Close() })
	if _, ok := store.(*metrics.MemoryStore); !ok {
		t.Fatalf("Expected in-memory fallback when Postgres is unusable, got %T", store)
	}
}
