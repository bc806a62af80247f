package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	EdgePort       string
	Environment    string
	LogLevel       string
	AllowedOrigins []string

	DatabaseURL     string
	DatabaseReadURL string // Read replica URL for SELECT queries
	RedisURL        string
	RedisKeyPrefix  string
	BadgerDir       string // empty keeps the embedded store in memory

	AdminJWTSecret string
	AdminTokenTTL  time.Duration

	// Statistics
	StatsRateLimit    int // POSTs per minute per client IP
	StatsTotalContent int // learning items the completion rate is measured against

	// Edge resource cache
	CacheVersion       string
	UpstreamURL        string
	FetchTimeout       time.Duration
	MaxCacheEntryBytes int64
	RefreshEvictAfter  int // consecutive failed background refreshes before eviction, 0 disables

	// Navigation
	TransitionDuration time.Duration
	PageStateTTL       time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8080"),
		EdgePort:       getEnv("EDGE_PORT", "8081"),
		Environment:    getEnv("ENVIRONMENT", "production"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "*")),

		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DatabaseReadURL: getEnv("DATABASE_READ_URL", getEnv("DATABASE_URL", "")), // Falls back to write DB if not set
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisKeyPrefix:  getEnv("REDIS_KEY_PREFIX", ""),
		BadgerDir:       getEnv("BADGER_DIR", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		AdminTokenTTL:  getDurationEnv("ADMIN_TOKEN_TTL", 12*time.Hour),

		StatsRateLimit:    getIntEnv("STATS_RATE_LIMIT", 60),
		StatsTotalContent: getIntEnv("STATS_TOTAL_CONTENT", 10),

		CacheVersion:       getEnv("CACHE_VERSION", "1.0.0"),
		UpstreamURL:        getEnv("UPSTREAM_URL", "http://localhost:8788"),
		FetchTimeout:       getDurationEnv("FETCH_TIMEOUT", 10*time.Second),
		MaxCacheEntryBytes: int64(getIntEnv("MAX_CACHE_ENTRY_BYTES", 32<<20)),
		RefreshEvictAfter:  getIntEnv("REFRESH_EVICT_AFTER", 0),

		TransitionDuration: getDurationEnv("TRANSITION_DURATION", 300*time.Millisecond),
		PageStateTTL:       getDurationEnv("PAGE_STATE_TTL", 24*time.Hour),
	}, nil
}

// IsDevelopment reports whether the service runs outside production
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "local"
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseOrigins parses comma-separated origins into a slice
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getDurationEnv accepts Go durations ("300ms", "24h") or plain milliseconds
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
