// Package metrics records and aggregates application performance
// samples.
//
// A Sample is one immutable, timestamped measurement with an open tag
// bag. Samples flow through a Recorder into a Store; the memory store
// serves tests and degraded deployments, the Postgres store makes
// history durable and queryable across processes.
//
// # Recording semantics
//
// Recording is best-effort: a failed insert is logged and dropped, it
// never surfaces to the code path being measured. Tag validation
// errors are different, they indicate caller misuse and propagate as
// ErrInvalidTags.
//
// # Aggregation
//
// The Aggregator derives descriptive statistics (count, avg, min, max,
// p50/p95/p99), per-endpoint latency breakdowns, per-table query
// timings and throughput rates. Percentiles use linear interpolation
// between the two nearest ranks, so repeating a query over unchanged
// data yields identical values. Empty ranges produce zeroed results,
// not errors.
//
// # Retention
//
// Recorder.Cleanup sweeps samples older than a cutoff fixed at the
// moment of invocation. Samples recorded while a cleanup pass runs are
// never swept by it, and a second pass with the same cutoff removes
// nothing.
package metrics
