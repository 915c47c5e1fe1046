package metrics

import (
	"context"
	"testing"
	"time"
)

func seedAggregator(t *testing.T) (*Aggregator, *MemoryStore, time.Time) {
	t.Helper()
	store := NewMemoryStore()
	agg := NewAggregator(store)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	agg.now = func() time.Time { return now }
	return agg, store, now
}

func insertSamples(t *testing.T, store *MemoryStore, samples ...Sample) {
	t.Helper()
	for _, s := range samples {
		if err := store.Insert(context.Background(), s); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
}

func TestPercentileLinearInterpolation(t *testing.T) {
	values := []float64{10, 20, 30, 40, 50}

	tests := []struct {
		p    float64
		want float64
	}{
		{50, 30},
		{95, 48},
		{99, 49.6},
		{0, 10},
		{100, 50},
	}
	for _, tt := range tests {
		if got := percentile(values, tt.p); got != tt.want {
			t.Errorf("percentile(%v, %v) = %v, want %v", values, tt.p, got, tt.want)
		}
	}
}

func TestPercentileSingleValue(t *testing.T) {
	if got := percentile([]float64{42}, 95); got != 42 {
		t.Errorf("percentile of single value = %v, want 42", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("percentile of empty slice = %v, want 0", got)
	}
}

func TestStatsEmptyRangeIsZeroed(t *testing.T) {
	agg, _, now := seedAggregator(t)

	stats, err := agg.Stats(context.Background(), TypeRequestLatency, now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Count != 0 || stats.Avg != 0 || stats.Min != 0 || stats.Max != 0 ||
		stats.P50 != 0 || stats.P95 != 0 || stats.P99 != 0 {
		t.Errorf("empty range should produce zeroed stats, got %+v", stats)
	}
	if stats.Type != TypeRequestLatency {
		t.Errorf("Type = %q, want %q", stats.Type, TypeRequestLatency)
	}
}

func TestStatsIsDeterministic(t *testing.T) {
	agg, store, now := seedAggregator(t)

	for _, v := range []float64{50, 10, 40, 20, 30} {
		insertSamples(t, store, Sample{
			Type:       TypeRequestLatency,
			Value:      v,
			RecordedAt: now.Add(-time.Minute),
		})
	}

	first, err := agg.Stats(context.Background(), TypeRequestLatency, now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if first.Count != 5 || first.Avg != 30 || first.Min != 10 || first.Max != 50 {
		t.Errorf("unexpected basic stats: %+v", first)
	}
	if first.P50 != 30 || first.P95 != 48 || first.P99 != 49.6 {
		t.Errorf("unexpected percentiles: p50=%v p95=%v p99=%v", first.P50, first.P95, first.P99)
	}

	second, err := agg.Stats(context.Background(), TypeRequestLatency, now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if first != second {
		t.Errorf("repeated query over unchanged data diverged: %+v vs %+v", first, second)
	}
}

func TestStatsIgnoresOtherTypes(t *testing.T) {
	agg, store, now := seedAggregator(t)

	insertSamples(t, store,
		Sample{Type: TypeRequestLatency, Value: 100, RecordedAt: now.Add(-time.Minute)},
		Sample{Type: TypeQueryTime, Value: 999, RecordedAt: now.Add(-time.Minute)},
	)

	stats, err := agg.Stats(context.Background(), TypeRequestLatency, now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Count != 1 || stats.Max != 100 {
		t.Errorf("stats leaked samples of another type: %+v", stats)
	}
}

func TestLatencyByEndpointGroupsAndSorts(t *testing.T) {
	agg, store, now := seedAggregator(t)
	ts := now.Add(-time.Minute)

	insertSamples(t, store,
		Sample{Type: TypeRequestLatency, Value: 10, RecordedAt: ts,
			Tags: Tags{TagEndpoint: "/events", TagMethod: "GET"}},
		Sample{Type: TypeRequestLatency, Value: 30, RecordedAt: ts,
			Tags: Tags{TagEndpoint: "/events", TagMethod: "GET"}},
		Sample{Type: TypeRequestLatency, Value: 200, RecordedAt: ts,
			Tags: Tags{TagEndpoint: "/bookings", TagMethod: "POST", TagError: "timeout"}},
		Sample{Type: TypeRequestLatency, Value: 100, RecordedAt: ts,
			Tags: Tags{TagEndpoint: "/bookings", TagMethod: "POST"}},
		// No endpoint tag, must be skipped.
		Sample{Type: TypeRequestLatency, Value: 999, RecordedAt: ts},
	)

	result, err := agg.LatencyByEndpoint(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("LatencyByEndpoint failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 endpoint groups, got %d", len(result))
	}

	// Sorted by descending average latency.
	bookings := result[0]
	if bookings.Endpoint != "/bookings" || bookings.Method != "POST" {
		t.Fatalf("expected /bookings first, got %+v", bookings)
	}
	if bookings.AvgLatencyMs != 150 || bookings.RequestCount != 2 {
		t.Errorf("bookings stats wrong: %+v", bookings)
	}
	if bookings.ErrorCount != 1 || bookings.ErrorRate != 50 {
		t.Errorf("bookings error rate wrong: %+v", bookings)
	}

	events := result[1]
	if events.AvgLatencyMs != 20 || events.ErrorCount != 0 || events.ErrorRate != 0 {
		t.Errorf("events stats wrong: %+v", events)
	}
}

func TestLatencyByEndpointWindowExcludesOldSamples(t *testing.T) {
	agg, store, now := seedAggregator(t)

	insertSamples(t, store,
		Sample{Type: TypeRequestLatency, Value: 10, RecordedAt: now.Add(-time.Minute),
			Tags: Tags{TagEndpoint: "/events", TagMethod: "GET"}},
		Sample{Type: TypeRequestLatency, Value: 500, RecordedAt: now.Add(-2 * time.Hour),
			Tags: Tags{TagEndpoint: "/events", TagMethod: "GET"}},
	)

	result, err := agg.LatencyByEndpoint(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("LatencyByEndpoint failed: %v", err)
	}
	if len(result) != 1 || result[0].RequestCount != 1 || result[0].AvgLatencyMs != 10 {
		t.Errorf("window should exclude old samples, got %+v", result)
	}
}

func TestQueryStatsByTableSlowThreshold(t *testing.T) {
	agg, store, now := seedAggregator(t)
	ts := now.Add(-time.Minute)

	insertSamples(t, store,
		Sample{Type: TypeQueryTime, Value: 10, RecordedAt: ts,
			Tags: Tags{TagTable: "events", TagQueryOp: "SELECT"}},
		Sample{Type: TypeQueryTime, Value: 60, RecordedAt: ts,
			Tags: Tags{TagTable: "events", TagQueryOp: "SELECT"}},
		Sample{Type: TypeQueryTime, Value: 5, RecordedAt: ts,
			Tags: Tags{TagTable: "bookings", TagQueryOp: "INSERT"}},
	)

	result, err := agg.QueryStatsByTable(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("QueryStatsByTable failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 table groups, got %d", len(result))
	}

	events := result[0]
	if events.TableName != "events" || events.QueryType != "SELECT" {
		t.Fatalf("expected events table first (slowest avg), got %+v", events)
	}
	if events.AvgTimeMs != 35 || events.MinTimeMs != 10 || events.MaxTimeMs != 60 {
		t.Errorf("events timings wrong: %+v", events)
	}
	if events.TotalCount != 2 || events.SlowQueryCount != 1 {
		t.Errorf("events counts wrong: %+v", events)
	}

	if result[1].SlowQueryCount != 0 {
		t.Errorf("bookings should have no slow queries: %+v", result[1])
	}
}

func TestThroughputStats(t *testing.T) {
	agg, store, now := seedAggregator(t)

	for i := 0; i < 120; i++ {
		insertSamples(t, store, Sample{
			Type:       TypeRequestCount,
			Value:      1,
			RecordedAt: now.Add(-30 * time.Second),
		})
	}

	tp, err := agg.ThroughputStats(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("ThroughputStats failed: %v", err)
	}
	if tp.TotalRequests != 120 {
		t.Errorf("TotalRequests = %v, want 120", tp.TotalRequests)
	}
	if tp.RequestsPerSecond != 2 {
		t.Errorf("RequestsPerSecond = %v, want 2", tp.RequestsPerSecond)
	}
	if tp.RequestsPerMinute != 120 {
		t.Errorf("RequestsPerMinute = %v, want 120", tp.RequestsPerMinute)
	}
	if tp.RequestsPerHour != 7200 {
		t.Errorf("RequestsPerHour = %v, want 7200", tp.RequestsPerHour)
	}
}

func TestThroughputStatsEmptyWindow(t *testing.T) {
	agg, _, _ := seedAggregator(t)

	tp, err := agg.ThroughputStats(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("ThroughputStats failed: %v", err)
	}
	if tp.TotalRequests != 0 || tp.RequestsPerSecond != 0 {
		t.Errorf("expected zero throughput, got %+v", tp)
	}
}
