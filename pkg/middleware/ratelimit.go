package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/plannerhq/perflayer/pkg/ratelimit"
)

// RateLimit enforces per-client request quotas before the handler
// runs. Clients are identified by IP; rejected requests get a 429 with
// quota headers and a Retry-After hint, and consume no quota.
type RateLimit struct {
	limiter  *ratelimit.Limiter
	logger   zerolog.Logger
	excluded []string
}

// NewRateLimit creates the rate limiting middleware. An empty
// excludedPaths applies DefaultExcludedPaths.
func NewRateLimit(limiter *ratelimit.Limiter, logger zerolog.Logger, excludedPaths ...string) *RateLimit {
	if len(excludedPaths) == 0 {
		excludedPaths = DefaultExcludedPaths
	}
	return &RateLimit{limiter: limiter, logger: logger, excluded: excludedPaths}
}

// Handler wraps next with quota enforcement.
func (rl *RateLimit) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pathExcluded(r.URL.Path, rl.excluded) {
			next.ServeHTTP(w, r)
			return
		}

		identifier := "ip:" + clientIP(r)
		decision := rl.limiter.Check(r.Context(), identifier)
		decision.WriteHeaders(w.Header())

		if !decision.Allowed {
			rl.logger.Warn().
				Str("identifier", identifier).
				Str("path", r.URL.Path).
				Msg("Rate limit exceeded")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":       "rate limit exceeded",
				"retry_after": int(decision.RetryAfter.Seconds()),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
