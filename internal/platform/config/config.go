// Package config builds runtime configuration from environment variables so
// main stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "github.com/pagopa/io-functions-admin-sub002/pkg/platform/strings"
)

// Config aggregates every subsystem's settings.
type Config struct {
	Server   Server
	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
	Workflow Workflow
	Recovery Recovery
	Cache    Cache
	Bundle   Bundle
	Audit    Audit
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
}

// Postgres captures connection settings for the entity and instance stores.
type Postgres struct {
	URL string
}

// Redis captures connection settings for the blob store.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures the notification publisher settings.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Workflow captures the per-step retry policy of the orchestration engine.
// Attempt counts and backoff are configuration, not constants: call sites in
// production have historically drifted, so they are pinned here once.
type Workflow struct {
	MaxAttempts        int
	InitialInterval    time.Duration
	BackoffCoefficient float64
}

// Recovery captures the failed-record sweep settings.
type Recovery struct {
	Interval time.Duration
}

// Cache captures the visible-services cache settings.
type Cache struct {
	BlobID        string
	LeaseDuration time.Duration
}

// Bundle captures where exported user-data bundles are published.
type Bundle struct {
	BaseURL string
}

// Audit captures the audit publisher settings. BufferSize is the capacity of
// the async emission channel; events beyond it are dropped, never blocking
// domain logic.
type Audit struct {
	BufferSize int
}

// FromEnv builds a Config from environment variables, with development
// defaults for everything but the postgres URL.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:          envOr("ADMIN_ADDR", ":8080"),
			JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Postgres: Postgres{
			URL: os.Getenv("POSTGRES_URL"),
		},
		Redis: Redis{
			URL:          envOr("REDIS_URL", "redis://localhost:6379/0"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: pstrings.DedupeAndTrim(strings.Split(envOr("KAFKA_BROKERS", "localhost:9092"), ",")),
			Topic:   envOr("KAFKA_NOTIFICATION_TOPIC", "user-data-notifications"),
		},
		Workflow: Workflow{
			MaxAttempts:        envInt("WORKFLOW_MAX_ATTEMPTS", 10),
			InitialInterval:    envDuration("WORKFLOW_INITIAL_INTERVAL", 500*time.Millisecond),
			BackoffCoefficient: envFloat("WORKFLOW_BACKOFF_COEFFICIENT", 1.5),
		},
		Recovery: Recovery{
			Interval: envDuration("RECOVERY_INTERVAL", 5*time.Minute),
		},
		Cache: Cache{
			BlobID:        envOr("VISIBLE_SERVICES_BLOB_ID", "visible-services.json"),
			LeaseDuration: envDuration("VISIBLE_SERVICES_LEASE_DURATION", 15*time.Second),
		},
		Bundle: Bundle{
			BaseURL: envOr("BUNDLE_BASE_URL", "https://example.org/user-data"),
		},
		Audit: Audit{
			BufferSize: envInt("AUDIT_BUFFER_SIZE", 256),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
