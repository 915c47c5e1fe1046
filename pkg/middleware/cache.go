package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/plannerhq/perflayer/pkg/cache"
)

// HeaderCache reports whether the response was served from cache.
const HeaderCache = "X-Cache"

// CacheNamespace isolates cached HTTP responses from other cache
// users, so Clear("http_cache") drops responses and nothing else.
const CacheNamespace = "http_cache"

// DefaultResponseTTL bounds how stale a cached response may get.
const DefaultResponseTTL = 5 * time.Minute

// cachedResponse is the serialized form of a cacheable response.
type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// ResponseCache serves repeated GET requests from the cache. Only
// successful (2xx) responses are stored; everything else passes
// through untouched. Served responses carry X-Cache: HIT, freshly
// computed ones X-Cache: MISS.
type ResponseCache struct {
	cache    *cache.Cache
	logger   zerolog.Logger
	ttl      time.Duration
	excluded []string
}

// NewResponseCache creates the caching middleware. A zero ttl applies
// DefaultResponseTTL; an empty excludedPaths applies
// DefaultExcludedPaths.
func NewResponseCache(c *cache.Cache, ttl time.Duration, logger zerolog.Logger, excludedPaths ...string) *ResponseCache {
	if ttl == 0 {
		ttl = DefaultResponseTTL
	}
	if len(excludedPaths) == 0 {
		excludedPaths = DefaultExcludedPaths
	}
	return &ResponseCache{cache: c, logger: logger, ttl: ttl, excluded: excludedPaths}
}

// bufferWriter holds back the response so a 2xx can be stored before
// it is replayed to the client. It deliberately does not implement
// http.Flusher: a streamed response cannot be buffered, so streaming
// endpoints belong on the excluded path list.
type bufferWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferWriter() *bufferWriter {
	return &bufferWriter{header: make(http.Header), status: http.StatusOK}
}

func (w *bufferWriter) Header() http.Header { return w.header }

func (w *bufferWriter) WriteHeader(status int) { w.status = status }

func (w *bufferWriter) Write(b []byte) (int, error) { return w.body.Write(b) }

// Handler wraps next with response caching.
func (rc *ResponseCache) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || pathExcluded(r.URL.Path, rc.excluded) {
			next.ServeHTTP(w, r)
			return
		}

		key := requestKey(r)

		if raw, ok := rc.cache.Get(r.Context(), key, CacheNamespace); ok {
			if resp, ok := decodeResponse(raw); ok {
				if resp.ContentType != "" {
					w.Header().Set("Content-Type", resp.ContentType)
				}
				w.Header().Set(HeaderCache, "HIT")
				w.WriteHeader(resp.Status)
				_, _ = w.Write(resp.Body)
				return
			}
			rc.logger.Debug().Str("key", key).Msg("Undecodable cached response, recomputing")
		}

		buf := newBufferWriter()
		next.ServeHTTP(buf, r)

		if buf.status >= 200 && buf.status < 300 {
			encoded, err := json.Marshal(cachedResponse{
				Status:      buf.status,
				ContentType: buf.header.Get("Content-Type"),
				Body:        buf.body.Bytes(),
			})
			if err == nil {
				// Stored as a string so both cache tiers return the
				// same type on a hit.
				_ = rc.cache.Set(r.Context(), key, string(encoded), rc.ttl, CacheNamespace)
			}
		}

		for k, values := range buf.header {
			for _, v := range values {
				w.Header().Add(k, v)
			}
		}
		w.Header().Set(HeaderCache, "MISS")
		w.WriteHeader(buf.status)
		_, _ = w.Write(buf.body.Bytes())
	})
}

// requestKey derives a deterministic cache key from the request path
// and its query parameters.
func requestKey(r *http.Request) string {
	query := r.URL.Query()
	attrs := make(map[string]string, len(query))
	for k := range query {
		attrs[k] = query.Get(k)
	}
	return cache.BuildKey([]string{r.Method, r.URL.Path}, attrs)
}

func decodeResponse(raw any) (cachedResponse, bool) {
	var resp cachedResponse
	s, ok := raw.(string)
	if !ok {
		return resp, false
	}
	if err := json.Unmarshal([]byte(s), &resp); err != nil {
		return resp, false
	}
	return resp, true
}
