// Command perf-gateway exposes the performance subsystem over HTTP:
// request timing, rate limiting and response caching as middleware,
// plus query endpoints for metric aggregation and cache management.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/plannerhq/perflayer/pkg/cache"
	"github.com/plannerhq/perflayer/pkg/kvstore"
	"github.com/plannerhq/perflayer/pkg/logging"
	"github.com/plannerhq/perflayer/pkg/metrics"
	"github.com/plannerhq/perflayer/pkg/middleware"
	"github.com/plannerhq/perflayer/pkg/ratelimit"
)

func main() {
	cfg := loadConfig()
	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("perf-gateway")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Gateway failed")
	}
}

func run(cfg config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis backs both the distributed cache tier and the rate limit
	// counters. An unreachable Redis degrades the gateway, it does not
	// stop it.
	store := kvstore.NewRedis(kvstore.DefaultRedisConfig(cfg.RedisAddr), logging.NewLogger("kvstore"))
	defer store.Close()

	if err := store.Ping(ctx); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unreachable, starting degraded")
	} else {
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
	}

	sampleStore := newSampleStore(ctx, cfg, logger)
	defer sampleStore.Close()

	appCache := cache.New(store, cfg.Cache, logging.NewLogger("cache"))
	limiter := ratelimit.New(store, cfg.RateLimit, logging.NewLogger("ratelimit"))
	recorder := metrics.NewRecorder(sampleStore, logging.NewLogger("metrics"))
	aggregator := metrics.NewAggregator(sampleStore)

	srv := &server{
		cache:      appCache,
		store:      store,
		recorder:   recorder,
		aggregator: aggregator,
		logger:     logger,
	}

	router := mux.NewRouter()
	router.Use(middleware.NewTiming(recorder, logging.NewLogger("timing")).Handler)
	router.Use(middleware.NewRateLimit(limiter, logging.NewLogger("ratelimit")).Handler)
	router.Use(middleware.NewResponseCache(appCache, cfg.ResponseCacheTTL, logging.NewLogger("response-cache")).Handler)

	router.HandleFunc("/health", srv.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/events", srv.handleListEvents).Methods(http.MethodGet)
	router.HandleFunc("/ready", srv.handleReady).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	perf := router.PathPrefix("/perf").Subrouter()
	perf.HandleFunc("/stats", srv.handleStats).Methods(http.MethodGet)
	perf.HandleFunc("/endpoints", srv.handleEndpoints).Methods(http.MethodGet)
	perf.HandleFunc("/queries", srv.handleQueries).Methods(http.MethodGet)
	perf.HandleFunc("/throughput", srv.handleThroughput).Methods(http.MethodGet)
	perf.HandleFunc("/cache", srv.handleCacheStats).Methods(http.MethodGet)
	perf.HandleFunc("/cache/clear", srv.handleCacheClear).Methods(http.MethodPost)
	perf.HandleFunc("/cache/reset-stats", srv.handleCacheResetStats).Methods(http.MethodPost)
	perf.HandleFunc("/cleanup", srv.handleCleanup).Methods(http.MethodPost)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info().Str("addr", httpServer.Addr).Msg("Starting perf gateway")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		return retentionLoop(ctx, recorder, cfg.MetricsRetention, cfg.RetentionInterval)
	})

	group.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// newSampleStore picks the metric sample backend. Postgres is used when
// configured and reachable. Like Redis above, an unreachable Postgres
// degrades the gateway instead of stopping it, falling back to the
// in-memory store.
func newSampleStore(ctx context.Context, cfg config, logger zerolog.Logger) metrics.Store {
	if cfg.DatabaseURL == "" {
		logger.Info().Msg("No DATABASE_URL, keeping metric samples in memory")
		return metrics.NewMemoryStore()
	}

	pg, err := metrics.NewPostgresStore(ctx, cfg.DatabaseURL, logging.NewLogger("metrics-store"))
	if err != nil {
		logger.Warn().Err(err).Msg("Postgres unreachable, keeping metric samples in memory")
		return metrics.NewMemoryStore()
	}
	return pg
}

// retentionLoop periodically sweeps metric samples past the retention
// period. Sweep failures are logged by the recorder's caller and do
// not stop the loop.
func retentionLoop(ctx context.Context, recorder *metrics.Recorder, retention, interval time.Duration) error {
	logger := logging.NewLogger("retention")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := recorder.Cleanup(ctx, retention); err != nil {
				logger.Warn().Err(err).Msg("Retention cleanup failed")
			}
		}
	}
}
