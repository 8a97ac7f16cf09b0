package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LimitUnbounded is the sentinel for an unbounded fetch limit. Zero is a
// valid limit meaning "collect nothing"; it is never treated as unbounded.
const LimitUnbounded = -1

// Config holds the application configuration
type Config struct {
	// GitHub
	GitHubToken string

	// Collection
	FetchLimit         int
	RetryMaxAttempts   int
	BackoffBase        time.Duration
	RatePauseThreshold int
	AllowPartial       bool

	// Storage
	StorageType string // "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string

	// API Server
	APIPort string
	APIHost string
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	return &Config{
		GitHubToken:        getEnv("GITHUB_TOKEN", ""),
		FetchLimit:         getEnvInt("FETCH_LIMIT", LimitUnbounded),
		RetryMaxAttempts:   getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		BackoffBase:        time.Duration(getEnvInt("BACKOFF_BASE_MS", 500)) * time.Millisecond,
		RatePauseThreshold: getEnvInt("RATE_PAUSE_THRESHOLD", 10),
		AllowPartial:       getEnvBool("ALLOW_PARTIAL", false),
		StorageType:        getEnv("STORAGE_TYPE", "sqlite"),
		SQLitePath:         getEnv("SQLITE_PATH", "./repometrics.db"),
		PostgresURL:        getEnv("POSTGRES_URL", ""),
		APIPort:            getEnv("API_PORT", "8080"),
		APIHost:            getEnv("API_HOST", "localhost"),
	}, nil
}

// getEnv returns the value of an environment variable or a default value
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

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.GitHubToken == "" {
		return &ConfigError{Field: "GITHUB_TOKEN", Message: "GitHub token is required"}
	}
	if c.FetchLimit < LimitUnbounded {
		return &ConfigError{Field: "FETCH_LIMIT", Message: "must be >= -1 (-1 means unbounded)"}
	}
	if c.RetryMaxAttempts < 0 {
		return &ConfigError{Field: "RETRY_MAX_ATTEMPTS", Message: "must be >= 0"}
	}
	if c.StorageType != "sqlite" && c.StorageType != "postgres" {
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'sqlite' or 'postgres'"}
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
