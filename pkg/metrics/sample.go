package metrics

import (
	"errors"
	"fmt"
	"time"
)

// Well-known metric types. Callers may record arbitrary additional
// types; these are the ones the aggregator has dedicated views for.
const (
	TypeRequestLatency = "api_latency"
	TypeQueryTime      = "db_query_time"
	TypeRequestCount   = "request_count"
	TypeCacheHit       = "cache_hit"
	TypeCacheMiss      = "cache_miss"
)

// Tag keys with aggregator-level meaning.
const (
	TagEndpoint = "endpoint"
	TagMethod   = "method"
	TagStatus   = "status_code"
	TagError    = "error"
	TagTable    = "table"
	TagQueryOp  = "type"
)

// ErrInvalidTags indicates a malformed tag set. Tag errors are caller
// misuse and propagate, unlike store failures which are absorbed.
var ErrInvalidTags = errors.New("invalid tags")

// Tags is an open key-value bag attached to a sample and used for
// grouping. Keys must be non-empty; values must be primitives.
type Tags map[string]any

// Validate checks the tag set for caller misuse.
func (t Tags) Validate() error {
	for key, value := range t {
		if key == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidTags)
		}
		switch value.(type) {
		case string, bool, int, int64, float64, nil:
		default:
			return fmt.Errorf("%w: key %q has non-primitive value %T", ErrInvalidTags, key, value)
		}
	}
	return nil
}

// getString returns a tag's value as a string, or "" if absent or not
// a string.
func (t Tags) getString(key string) string {
	if v, ok := t[key].(string); ok {
		return v
	}
	return ""
}

// isError reports whether the sample is tagged as an error. Both a
// true flag and a non-empty error string count.
func (t Tags) isError() bool {
	switch v := t[TagError].(type) {
	case bool:
		return v
	case string:
		return v != ""
	default:
		return false
	}
}

// Sample is one immutable, timestamped, tagged measurement. Samples
// are append-only; aggregation only ever reads them.
type Sample struct {
	Type       string    `json:"metric_type"`
	Value      float64   `json:"value"`
	Tags       Tags      `json:"tags,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Filter selects samples for a query. Zero fields match everything.
type Filter struct {
	// Type restricts results to one metric type.
	Type string

	// Start and End bound RecordedAt (inclusive).
	Start time.Time
	End   time.Time

	// Limit caps the number of returned samples. Zero applies
	// DefaultQueryLimit; Unlimited disables the cap.
	Limit int
}

// DefaultQueryLimit caps queries that do not set an explicit limit.
const DefaultQueryLimit = 1000

// Unlimited disables the query limit. Aggregation uses it so that
// statistics cover every sample in the requested range.
const Unlimited = -1

func (f Filter) matches(s Sample) bool {
	if f.Type != "" && s.Type != f.Type {
		return false
	}
	if !f.Start.IsZero() && s.RecordedAt.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && s.RecordedAt.After(f.End) {
		return false
	}
	return true
}
