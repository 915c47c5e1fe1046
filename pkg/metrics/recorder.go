package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	// samplesRecordedTotal tracks recorded samples by metric type.
	samplesRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perflayer_metrics_samples_total",
		Help: "Total number of metric samples recorded",
	}, []string{"type"})

	// samplesDroppedTotal tracks samples lost to store failures.
	samplesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perflayer_metrics_samples_dropped_total",
		Help: "Total number of metric samples dropped because the store was unavailable",
	})
)

// Recorder appends samples to a Store. Recording is a best-effort side
// channel: store failures are counted and logged, never returned, so a
// sick metrics store can never fail the caller's primary operation.
// Tag validation errors DO return, since they are programmer errors.
type Recorder struct {
	store  Store
	logger zerolog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewRecorder creates a recorder over the given store.
func NewRecorder(store Store, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Record appends one sample, stamped now.
func (r *Recorder) Record(ctx context.Context, metricType string, value float64, tags Tags) error {
	if err := tags.Validate(); err != nil {
		return err
	}

	s := Sample{
		Type:       metricType,
		Value:      value,
		Tags:       tags,
		RecordedAt: r.now(),
	}

	if err := r.store.Insert(ctx, s); err != nil {
		samplesDroppedTotal.Inc()
		r.logger.Debug().Err(err).Str("type", metricType).Msg("Metric sample dropped")
		return nil
	}
	samplesRecordedTotal.WithLabelValues(metricType).Inc()
	return nil
}

// RecordRequestLatency records one request's wall-clock latency with
// its endpoint grouping tags.
func (r *Recorder) RecordRequestLatency(ctx context.Context, endpoint, method string, statusCode int, latency time.Duration, errMsg string) {
	tags := Tags{
		TagEndpoint: endpoint,
		TagMethod:   method,
		TagStatus:   statusCode,
	}
	if errMsg != "" {
		tags[TagError] = errMsg
	}
	// Tags built here are always valid.
	_ = r.Record(ctx, TypeRequestLatency, float64(latency)/float64(time.Millisecond), tags)
}

// RecordQueryTime records one database query's execution time.
func (r *Recorder) RecordQueryTime(ctx context.Context, table, queryOp string, elapsed time.Duration) {
	_ = r.Record(ctx, TypeQueryTime, float64(elapsed)/float64(time.Millisecond), Tags{
		TagTable:   table,
		TagQueryOp: queryOp,
	})
}

// RecordRequestCount records one unit of request throughput.
func (r *Recorder) RecordRequestCount(ctx context.Context) {
	_ = r.Record(ctx, TypeRequestCount, 1, nil)
}

// RecordCacheHit records a cache hit sample.
func (r *Recorder) RecordCacheHit(ctx context.Context) {
	_ = r.Record(ctx, TypeCacheHit, 1, nil)
}

// RecordCacheMiss records a cache miss sample.
func (r *Recorder) RecordCacheMiss(ctx context.Context) {
	_ = r.Record(ctx, TypeCacheMiss, 1, nil)
}

// Query returns stored samples matching the filter, most recent first.
func (r *Recorder) Query(ctx context.Context, f Filter) ([]Sample, error) {
	return r.store.Query(ctx, f)
}

// Cleanup deletes samples older than the retention period. The cutoff
// is computed once, here, so samples recorded while the deletion runs
// are never swept by this pass. Safe to call repeatedly.
func (r *Recorder) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := r.now().Add(-olderThan)
	deleted, err := r.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		r.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Metric retention cleanup")
	}
	return deleted, nil
}
