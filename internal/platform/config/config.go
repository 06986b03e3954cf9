package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration, one struct per concern.
type Config struct {
	Server   ServerConfig
	Provider ProviderConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Matcher  MatcherConfig
	Ingest   IngestConfig
	Secrets  SecretsConfig
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr          string
	JWTSigningKey string
}

// ProviderConfig selects and configures the active fiscal-document provider.
type ProviderConfig struct {
	// Name is one of: fake, webmania, serpro, oobj. Empty means fake.
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// ExtraAllowedDomains extends the built-in fiscal-authority allow-list.
	// Comma-separated, "*.domain" wildcards allowed.
	ExtraAllowedDomains []string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds Redis connection and queue configuration.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	QueueKey     string
}

// MatcherConfig tunes product resolution.
type MatcherConfig struct {
	// FuzzyThreshold is the minimum weighted-ratio score (0-100) for a
	// catalog match on the ingestion path.
	FuzzyThreshold float64
	// Embedding matching is enabled only when EmbeddingURL is set.
	EmbeddingURL       string
	EmbeddingAPIKey    string
	EmbeddingModel     string
	EmbeddingThreshold float64
}

// IngestConfig bounds the synchronous ingestion path.
type IngestConfig struct {
	// Payloads above DeferredMaxBytes, or with more than DeferredMaxItems
	// items, are handed to the deferred worker instead of processed inline.
	DeferredMaxBytes int
	DeferredMaxItems int
	Workers          int
}

// SecretsConfig holds the key for encrypting raw payloads at rest.
type SecretsConfig struct {
	// EncryptionKey must be 16, 24 or 32 bytes once decoded.
	EncryptionKey string
}

// FromEnv builds the full configuration from environment variables so main
// stays lean. Defaults favor local development: fake provider, no network.
func FromEnv() Config {
	return Config{
		Server: ServerConfig{
			Addr:          getEnv("ECONOMIZA_ADDR", ":8080"),
			JWTSigningKey: getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Provider: ProviderConfig{
			Name:                getEnv("PROVIDER_NAME", "fake"),
			BaseURL:             getEnv("PROVIDER_API_URL", ""),
			APIKey:              getEnv("PROVIDER_API_KEY", ""),
			Timeout:             getEnvDuration("PROVIDER_TIMEOUT", 8*time.Second),
			ExtraAllowedDomains: splitCSV(getEnv("PROVIDER_ALLOWED_DOMAINS", "")),
		},
		Database: DatabaseConfig{
			URL:          getEnv("DATABASE_URL", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 3*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			QueueKey:     getEnv("RECEIPT_QUEUE_KEY", "receipts:pending"),
		},
		Matcher: MatcherConfig{
			FuzzyThreshold:     getEnvFloat("MATCHER_FUZZY_THRESHOLD", 85),
			EmbeddingURL:       getEnv("EMBEDDING_API_URL", ""),
			EmbeddingAPIKey:    getEnv("EMBEDDING_API_KEY", ""),
			EmbeddingModel:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingThreshold: getEnvFloat("EMBEDDING_THRESHOLD", 0.7),
		},
		Ingest: IngestConfig{
			DeferredMaxBytes: getEnvInt("INGEST_DEFERRED_MAX_BYTES", 50*1024),
			DeferredMaxItems: getEnvInt("INGEST_DEFERRED_MAX_ITEMS", 50),
			Workers:          getEnvInt("INGEST_WORKERS", 4),
		},
		Secrets: SecretsConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
