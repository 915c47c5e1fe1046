// Package middleware provides the HTTP layer of the performance
// subsystem: request timing, fixed-window rate limiting and response
// caching. All middlewares are mux-compatible (func(http.Handler)
// http.Handler) and fail toward serving the request, a broken backing
// store never turns into a 500.
package middleware

import (
	"bufio"
	"net"
	"net/http"
	"strings"
)

// DefaultExcludedPaths are never timed, limited or cached. They cover
// operational endpoints whose traffic would only distort metrics.
var DefaultExcludedPaths = []string{"/health", "/metrics", "/docs", "/openapi.json", "/favicon.ico"}

// statusWriter captures the status code written by the wrapped
// handler. WriteHeader is recorded once, matching net/http semantics.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.status = http.StatusOK
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

// Flush forwards to the underlying writer so streaming handlers keep
// working behind the wrappers. A flush sends the headers, so it counts
// as the first write.
func (w *statusWriter) Flush() {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Unwrap exposes the underlying writer for http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w, status: http.StatusOK}
}

// pathExcluded reports whether the request path matches one of the
// excluded entries, exactly or as a path prefix.
func pathExcluded(path string, excluded []string) bool {
	for _, e := range excluded {
		if path == e || strings.HasPrefix(path, e+"/") {
			return true
		}
	}
	return false
}

// clientIP extracts the caller's address. X-Forwarded-For wins when a
// proxy sits in front; the first entry is the original client.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
