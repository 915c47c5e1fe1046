package main

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/plannerhq/perflayer/pkg/cache"
	"github.com/plannerhq/perflayer/pkg/logging"
	"github.com/plannerhq/perflayer/pkg/ratelimit"
)

// config holds everything the gateway reads from the environment. A
// .env file is honored when present; real environment variables win.
type config struct {
	Port        string
	RedisAddr   string
	DatabaseURL string

	LogLevel  logging.LogLevel
	LogPretty bool

	Cache     cache.Config
	RateLimit ratelimit.Config

	ResponseCacheTTL  time.Duration
	MetricsRetention  time.Duration
	RetentionInterval time.Duration
}

func loadConfig() config {
	// Missing .env is fine, the environment may be set directly.
	_ = godotenv.Load()

	return config{
		Port:        getEnv("PORT", "8080"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		LogLevel:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		LogPretty: getEnvBool("LOG_PRETTY", false),

		Cache: cache.Config{
			LocalCapacity: getEnvInt("CACHE_LOCAL_CAPACITY", 1000),
			DefaultTTL:    getEnvDuration("CACHE_DEFAULT_TTL", time.Hour),
		},
		RateLimit: ratelimit.Config{
			RequestsPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
			RequestsPerHour:   getEnvInt("RATE_LIMIT_PER_HOUR", 1000),
		},

		ResponseCacheTTL:  getEnvDuration("RESPONSE_CACHE_TTL", 5*time.Minute),
		MetricsRetention:  getEnvDuration("METRICS_RETENTION", 30*24*time.Hour),
		RetentionInterval: getEnvDuration("RETENTION_INTERVAL", time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
