package metrics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// SlowQueryThreshold classifies a database query sample as slow.
const SlowQueryThreshold = 50 * time.Millisecond

// TypeStats are descriptive statistics over one metric type in a time
// range. All fields are zero when the range holds no samples.
type TypeStats struct {
	Type        string    `json:"metric_type"`
	Count       int       `json:"count"`
	Avg         float64   `json:"avg"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	P50         float64   `json:"p50"`
	P95         float64   `json:"p95"`
	P99         float64   `json:"p99"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// EndpointLatency is the per-endpoint latency breakdown.
type EndpointLatency struct {
	Endpoint     string  `json:"endpoint"`
	Method       string  `json:"method"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	P50LatencyMs float64 `json:"p50_latency_ms"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
	P99LatencyMs float64 `json:"p99_latency_ms"`
	RequestCount int     `json:"request_count"`
	ErrorCount   int     `json:"error_count"`
	ErrorRate    float64 `json:"error_rate"`
}

// TableQueryStats are per-table database query timings.
type TableQueryStats struct {
	QueryType      string  `json:"query_type"`
	TableName      string  `json:"table_name"`
	AvgTimeMs      float64 `json:"avg_execution_time_ms"`
	MinTimeMs      float64 `json:"min_execution_time_ms"`
	MaxTimeMs      float64 `json:"max_execution_time_ms"`
	TotalCount     int     `json:"total_executions"`
	SlowQueryCount int     `json:"slow_query_count"`
}

// Throughput is request volume over a window, normalized per unit time.
type Throughput struct {
	Timestamp         time.Time `json:"timestamp"`
	TotalRequests     float64   `json:"total_requests"`
	RequestsPerSecond float64   `json:"requests_per_second"`
	RequestsPerMinute float64   `json:"requests_per_minute"`
	RequestsPerHour   float64   `json:"requests_per_hour"`
}

// Aggregator computes statistics over recorded samples. It only reads;
// sparse or missing data yields zeroed results, never an error beyond
// store failures.
type Aggregator struct {
	store Store

	// now is swappable for tests.
	now func() time.Time
}

// NewAggregator creates an aggregator over the given store.
func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store, now: time.Now}
}

// Stats returns descriptive statistics for one metric type between
// start and end. Zero samples produce an all-zero result.
func (a *Aggregator) Stats(ctx context.Context, metricType string, start, end time.Time) (TypeStats, error) {
	stats := TypeStats{Type: metricType, PeriodStart: start, PeriodEnd: end}

	samples, err := a.store.Query(ctx, Filter{
		Type:  metricType,
		Start: start,
		End:   end,
		Limit: Unlimited,
	})
	if err != nil {
		return stats, fmt.Errorf("query %s samples: %w", metricType, err)
	}
	if len(samples) == 0 {
		return stats, nil
	}

	values := make([]float64, len(samples))
	sum := 0.0
	for i, s := range samples {
		values[i] = s.Value
		sum += s.Value
	}
	sort.Float64s(values)

	stats.Count = len(values)
	stats.Avg = sum / float64(len(values))
	stats.Min = values[0]
	stats.Max = values[len(values)-1]
	stats.P50 = percentile(values, 50)
	stats.P95 = percentile(values, 95)
	stats.P99 = percentile(values, 99)
	return stats, nil
}

// LatencyByEndpoint groups request latency samples from the last
// window by method and endpoint, returning per-group statistics sorted
// by descending average latency.
func (a *Aggregator) LatencyByEndpoint(ctx context.Context, window time.Duration) ([]EndpointLatency, error) {
	samples, err := a.store.Query(ctx, Filter{
		Type:  TypeRequestLatency,
		Start: a.now().Add(-window),
		Limit: Unlimited,
	})
	if err != nil {
		return nil, fmt.Errorf("query latency samples: %w", err)
	}

	type group struct {
		endpoint string
		method   string
		values   []float64
		errors   int
	}
	groups := make(map[string]*group)

	for _, s := range samples {
		endpoint := s.Tags.getString(TagEndpoint)
		if endpoint == "" {
			continue
		}
		method := s.Tags.getString(TagMethod)
		if method == "" {
			method = "GET"
		}

		key := method + " " + endpoint
		g, ok := groups[key]
		if !ok {
			g = &group{endpoint: endpoint, method: method}
			groups[key] = g
		}
		g.values = append(g.values, s.Value)
		if s.Tags.isError() {
			g.errors++
		}
	}

	result := make([]EndpointLatency, 0, len(groups))
	for _, g := range groups {
		sort.Float64s(g.values)
		count := len(g.values)
		result = append(result, EndpointLatency{
			Endpoint:     g.endpoint,
			Method:       g.method,
			AvgLatencyMs: mean(g.values),
			P50LatencyMs: percentile(g.values, 50),
			P95LatencyMs: percentile(g.values, 95),
			P99LatencyMs: percentile(g.values, 99),
			RequestCount: count,
			ErrorCount:   g.errors,
			ErrorRate:    float64(g.errors) / float64(count) * 100,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].AvgLatencyMs > result[j].AvgLatencyMs
	})
	return result, nil
}

// QueryStatsByTable groups database query samples from the last window
// by operation and table, sorted by descending average time.
func (a *Aggregator) QueryStatsByTable(ctx context.Context, window time.Duration) ([]TableQueryStats, error) {
	samples, err := a.store.Query(ctx, Filter{
		Type:  TypeQueryTime,
		Start: a.now().Add(-window),
		Limit: Unlimited,
	})
	if err != nil {
		return nil, fmt.Errorf("query db-time samples: %w", err)
	}

	type group struct {
		table  string
		op     string
		values []float64
	}
	groups := make(map[string]*group)

	for _, s := range samples {
		table := s.Tags.getString(TagTable)
		if table == "" {
			continue
		}
		op := s.Tags.getString(TagQueryOp)
		if op == "" {
			op = "SELECT"
		}

		key := op + ":" + table
		g, ok := groups[key]
		if !ok {
			g = &group{table: table, op: op}
			groups[key] = g
		}
		g.values = append(g.values, s.Value)
	}

	slowMs := float64(SlowQueryThreshold) / float64(time.Millisecond)
	result := make([]TableQueryStats, 0, len(groups))
	for _, g := range groups {
		slow := 0
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, v := range g.values {
			if v > slowMs {
				slow++
			}
			minV = math.Min(minV, v)
			maxV = math.Max(maxV, v)
		}
		result = append(result, TableQueryStats{
			QueryType:      g.op,
			TableName:      g.table,
			AvgTimeMs:      mean(g.values),
			MinTimeMs:      minV,
			MaxTimeMs:      maxV,
			TotalCount:     len(g.values),
			SlowQueryCount: slow,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].AvgTimeMs > result[j].AvgTimeMs
	})
	return result, nil
}

// ThroughputStats sums request-count samples over the last window and
// derives per-second/minute/hour request rates from the window's
// elapsed duration.
func (a *Aggregator) ThroughputStats(ctx context.Context, window time.Duration) (Throughput, error) {
	now := a.now()
	result := Throughput{Timestamp: now}
	if window <= 0 {
		return result, nil
	}

	samples, err := a.store.Query(ctx, Filter{
		Type:  TypeRequestCount,
		Start: now.Add(-window),
		Limit: Unlimited,
	})
	if err != nil {
		return result, fmt.Errorf("query request-count samples: %w", err)
	}

	total := 0.0
	for _, s := range samples {
		total += s.Value
	}

	seconds := window.Seconds()
	result.TotalRequests = total
	result.RequestsPerSecond = total / seconds
	result.RequestsPerMinute = total / (seconds / 60)
	result.RequestsPerHour = total / (seconds / 3600)
	return result, nil
}

// percentile computes percentile p over a sorted value slice using
// linear interpolation between the two nearest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}

	index := float64(len(sorted)-1) * p / 100
	floor := int(index)
	ceil := floor + 1

	if ceil >= len(sorted) {
		return sorted[floor]
	}

	fraction := index - float64(floor)
	return sorted[floor] + (sorted[ceil]-sorted[floor])*fraction
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
