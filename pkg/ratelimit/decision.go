package ratelimit

import (
	"net/http"
	"strconv"
	"time"
)

// Quota header names set on every response passing the limiter.
const (
	HeaderLimitMinute     = "X-RateLimit-Limit-Minute"
	HeaderRemainingMinute = "X-RateLimit-Remaining-Minute"
	HeaderLimitHour       = "X-RateLimit-Limit-Hour"
	HeaderRemainingHour   = "X-RateLimit-Remaining-Hour"
	HeaderRetryAfter      = "Retry-After"
)

// Decision is the outcome of a rate limit check for one request.
type Decision struct {
	// Allowed reports whether the request was admitted.
	Allowed bool

	// FailedOpen is set when the request was admitted only because the
	// counter store was unreachable.
	FailedOpen bool

	// LimitMinute and LimitHour echo the configured limits.
	LimitMinute int
	LimitHour   int

	// RemainingMinute and RemainingHour are the quota left after this
	// request. Zero on rejection.
	RemainingMinute int
	RemainingHour   int

	// RetryAfter is the wait hint for rejected requests, zero otherwise.
	RetryAfter time.Duration
}

// WriteHeaders sets the quota headers on an HTTP response.
func (d Decision) WriteHeaders(h http.Header) {
	h.Set(HeaderLimitMinute, strconv.Itoa(d.LimitMinute))
	h.Set(HeaderRemainingMinute, strconv.Itoa(d.RemainingMinute))
	h.Set(HeaderLimitHour, strconv.Itoa(d.LimitHour))
	h.Set(HeaderRemainingHour, strconv.Itoa(d.RemainingHour))
	if !d.Allowed {
		h.Set(HeaderRetryAfter, strconv.Itoa(int(d.RetryAfter.Seconds())))
	}
}
