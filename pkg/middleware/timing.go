package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/plannerhq/perflayer/pkg/metrics"
)

// HeaderProcessTime carries the request's wall-clock duration in
// seconds, so callers can see server-side latency without tooling.
const HeaderProcessTime = "X-Process-Time"

// DefaultSlowRequestThreshold marks a request as slow in the logs.
const DefaultSlowRequestThreshold = time.Second

// Timing measures every request's wall-clock duration, exposes it via
// the X-Process-Time header and records latency and throughput
// samples. Recording is best-effort and never delays the response.
type Timing struct {
	recorder *metrics.Recorder
	logger   zerolog.Logger
	excluded []string

	// SlowThreshold is the duration above which a request is logged at
	// warn level. Defaults to DefaultSlowRequestThreshold.
	SlowThreshold time.Duration
}

// NewTiming creates the timing middleware. An empty excludedPaths
// applies DefaultExcludedPaths.
func NewTiming(recorder *metrics.Recorder, logger zerolog.Logger, excludedPaths ...string) *Timing {
	if len(excludedPaths) == 0 {
		excludedPaths = DefaultExcludedPaths
	}
	return &Timing{
		recorder:      recorder,
		logger:        logger,
		excluded:      excludedPaths,
		SlowThreshold: DefaultSlowRequestThreshold,
	}
}

// timingWriter stamps X-Process-Time just before the first byte of
// the response goes out, the last moment a header can still be set.
type timingWriter struct {
	*statusWriter
	start time.Time
}

func (w *timingWriter) WriteHeader(status int) {
	if !w.written {
		w.Header().Set(HeaderProcessTime, strconv.FormatFloat(time.Since(w.start).Seconds(), 'f', 4, 64))
	}
	w.statusWriter.WriteHeader(status)
}

// Flush stamps the header first: flushing commits the headers, so it
// is the last chance to set X-Process-Time.
func (w *timingWriter) Flush() {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	w.statusWriter.Flush()
}

func (w *timingWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.statusWriter.Write(b)
}

// Handler wraps next with timing instrumentation.
func (t *Timing) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pathExcluded(r.URL.Path, t.excluded) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		sw := &timingWriter{statusWriter: newStatusWriter(w), start: start}
		next.ServeHTTP(sw, r)
		elapsed := time.Since(start)

		errMsg := ""
		if sw.status >= 500 {
			errMsg = http.StatusText(sw.status)
		}
		t.recorder.RecordRequestLatency(r.Context(), r.URL.Path, r.Method, sw.status, elapsed, errMsg)
		t.recorder.RecordRequestCount(r.Context())

		if elapsed >= t.SlowThreshold {
			t.logger.Warn().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status_code", sw.status).
				Dur("duration", elapsed).
				Msg("Slow request")
		}
	})
}
