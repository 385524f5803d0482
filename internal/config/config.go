package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	Environment    string
	DatabaseURL    string
	RedisURL       string
	JWTSecret      string
	JWTIssuer      string

	SessionDefaultMinutes int
	SessionMaxMinutes     int
	ReconcileInterval     time.Duration
	IdempotencyTTL        time.Duration

	VoteRateLimit float64 // requests per second per IP
	VoteRateBurst int

	// UseMemoryStore is set when no database is configured outside production
	UseMemoryStore bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Environment:    getEnv("ENVIRONMENT", "production"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTIssuer:      getEnv("JWT_ISSUER", "coopvote"),

		SessionDefaultMinutes: getIntEnv("SESSION_DEFAULT_MINUTES", 5),
		SessionMaxMinutes:     getIntEnv("SESSION_MAX_MINUTES", 1440),
		ReconcileInterval:     getDurationEnv("RECONCILE_INTERVAL", 30*time.Second),
		IdempotencyTTL:        getDurationEnv("IDEMPOTENCY_TTL", 5*time.Minute),

		VoteRateLimit: getFloatEnv("VOTE_RATE_LIMIT", 5),
		VoteRateBurst: getIntEnv("VOTE_RATE_BURST", 10),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.DatabaseURL == "" {
		if c.IsProduction() {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
		c.UseMemoryStore = true
	}
	if c.SessionDefaultMinutes > c.SessionMaxMinutes {
		return fmt.Errorf("SESSION_DEFAULT_MINUTES (%d) exceeds SESSION_MAX_MINUTES (%d)",
			c.SessionDefaultMinutes, c.SessionMaxMinutes)
	}
	return nil
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets a positive integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
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
