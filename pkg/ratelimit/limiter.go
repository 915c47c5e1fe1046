// Package ratelimit implements fixed-window request limiting backed by
// the distributed key-value store, enforced at two granularities
// (per-minute and per-hour).
//
// Counters live under keys derived from the client identifier and the
// integer window index (unix time divided by the window size), so a new
// window implicitly starts a fresh counter at zero. Each counter
// expires with its window. The per-client state machine is:
//
//	NOT_YET_SEEN -> COUNTING (count < limit) -> AT_LIMIT (rejected)
//	             -> window expires -> NOT_YET_SEEN
//
// If the store is unreachable the limiter fails OPEN: availability of
// the protected service takes priority over quota enforcement during an
// infrastructure outage.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/plannerhq/perflayer/pkg/kvstore"
)

// Prometheus metrics for rate limit decisions.
var (
	requestsAdmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perflayer_ratelimit_admitted_total",
		Help: "Total number of requests admitted by the rate limiter",
	})

	requestsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perflayer_ratelimit_rejected_total",
		Help: "Total number of requests rejected, by blocking window",
	}, []string{"window"}) // "minute", "hour"

	failOpenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perflayer_ratelimit_failopen_total",
		Help: "Total number of requests admitted because the counter store was unreachable",
	})
)

// Window sizes for the two enforcement granularities.
const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour
)

// Config holds rate limiter configuration.
type Config struct {
	// RequestsPerMinute is the per-client minute-window limit.
	RequestsPerMinute int

	// RequestsPerHour is the per-client hour-window limit.
	RequestsPerHour int
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		RequestsPerHour:   1000,
	}
}

// Limiter enforces fixed-window limits per client identifier.
//
// The identifier is an opaque stable string per logical client; how it
// is derived (IP, user ID) is the caller's concern.
type Limiter struct {
	store  kvstore.Store
	cfg    Config
	logger zerolog.Logger

	// failingOpen tracks whether the counter store is currently
	// unreachable, so an outage logs one warning instead of one per
	// request.
	failingOpen atomic.Bool

	// now is swappable for window rollover tests.
	now func() time.Time
}

// New creates a rate limiter over the given counter store. A nil store
// fails open permanently (all requests admitted).
func New(store kvstore.Store, cfg Config, logger zerolog.Logger) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if cfg.RequestsPerHour <= 0 {
		cfg.RequestsPerHour = DefaultConfig().RequestsPerHour
	}
	return &Limiter{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// windowKey builds the counter key for one (identifier, granularity)
// pair in the current window.
func windowKey(granularity, identifier string, index int64) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", granularity, identifier, index)
}

// Check admits or rejects a request for the given client identifier.
//
// Both window counters are read first; the request is admitted only if
// both are below their limits, and only then are the counters
// incremented (a rejected request consumes no quota). The first
// increment in a window sets the counter's expiry to the window size.
func (l *Limiter) Check(ctx context.Context, identifier string) Decision {
	decision := Decision{
		LimitMinute: l.cfg.RequestsPerMinute,
		LimitHour:   l.cfg.RequestsPerHour,
	}

	if l.store == nil {
		return l.failOpen(decision)
	}

	now := l.now().Unix()
	minuteKey := windowKey("minute", identifier, now/60)
	hourKey := windowKey("hour", identifier, now/3600)

	minuteCount, err := l.readCounter(ctx, minuteKey)
	if err != nil {
		return l.failOpen(decision)
	}
	hourCount, err := l.readCounter(ctx, hourKey)
	if err != nil {
		return l.failOpen(decision)
	}

	if l.failingOpen.CompareAndSwap(true, false) {
		l.logger.Info().Msg("Counter store reachable again, rate limiting resumed")
	}

	if minuteCount >= int64(l.cfg.RequestsPerMinute) || hourCount >= int64(l.cfg.RequestsPerHour) {
		window := "minute"
		if minuteCount < int64(l.cfg.RequestsPerMinute) {
			window = "hour"
		}
		requestsRejectedTotal.WithLabelValues(window).Inc()
		l.logger.Debug().
			Str("identifier", identifier).
			Str("window", window).
			Int64("minute_count", minuteCount).
			Int64("hour_count", hourCount).
			Msg("Request rejected by rate limiter")

		decision.Allowed = false
		// The retry hint is always the minute window size, even when
		// the hour window is the blocking factor. Known imprecision,
		// kept for compatibility with existing clients.
		decision.RetryAfter = minuteWindow
		return decision
	}

	l.incrementWindow(ctx, minuteKey, minuteCount, minuteWindow)
	l.incrementWindow(ctx, hourKey, hourCount, hourWindow)

	requestsAdmittedTotal.Inc()

	decision.Allowed = true
	// The just-consumed request accounts for the extra -1.
	decision.RemainingMinute = l.cfg.RequestsPerMinute - int(minuteCount) - 1
	decision.RemainingHour = l.cfg.RequestsPerHour - int(hourCount) - 1
	return decision
}

// readCounter returns the current value of a window counter, zero if
// the window has not been seen yet.
func (l *Limiter) readCounter(ctx context.Context, key string) (int64, error) {
	data, err := l.store.Get(ctx, key)
	if err != nil {
		if kvstore.IsUnavailable(err) {
			return 0, err
		}
		return 0, nil // not found: fresh window
	}
	count, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, nil
	}
	return count, nil
}

// incrementWindow bumps a window counter, arming its expiry on the
// first increment of the window. Increment failures are swallowed:
// admission has already been decided and a lost count is preferable to
// a failed request.
func (l *Limiter) incrementWindow(ctx context.Context, key string, previous int64, window time.Duration) {
	if _, err := l.store.IncrBy(ctx, key, 1); err != nil {
		l.logger.Debug().Err(err).Str("key", key).Msg("Counter increment failed")
		return
	}
	if previous == 0 {
		if err := l.store.Expire(ctx, key, window); err != nil {
			l.logger.Debug().Err(err).Str("key", key).Msg("Counter expiry failed")
		}
	}
}

// failOpen admits the request despite an unreachable counter store.
// Only the transition into the degraded state is logged at warn level.
func (l *Limiter) failOpen(decision Decision) Decision {
	failOpenTotal.Inc()
	if l.failingOpen.CompareAndSwap(false, true) {
		l.logger.Warn().Msg("Counter store unavailable, rate limiter failing open")
	} else {
		l.logger.Debug().Msg("Rate limiter failing open")
	}

	decision.Allowed = true
	decision.FailedOpen = true
	decision.RemainingMinute = decision.LimitMinute - 1
	decision.RemainingHour = decision.LimitHour - 1
	return decision
}
