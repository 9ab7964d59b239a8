// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/polyinsider/insiderscan/internal/detector"
)

// Config holds all configuration values for insiderscan.
type Config struct {
	// Polymarket APIs
	GammaAPIURL       string
	PolymarketRESTURL string

	// Aggregation
	MarketLimit      int
	TradesPerMarket  int
	FetchWorkers     int
	FetchTimeout     time.Duration
	DefaultBatchSize int

	// Detection thresholds
	LargeTradeThreshold   float64
	ExtremePriceThreshold float64
	CloseToEndHours       float64
	MinSuspicionScore     float64

	// Database
	PersistResults bool
	DBDriver       string
	DBPath         string
	DatabaseURL    string

	// HTTP API
	HTTPHost string
	HTTPPort int

	// UI
	EnableTUI     bool
	UIRefreshRate time.Duration

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: Environment variables > .env file > hardcoded defaults
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	defaults := detector.DefaultCriteria()

	cfg := &Config{
		// Polymarket
		GammaAPIURL:       getEnv("GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		PolymarketRESTURL: getEnv("POLYMARKET_REST_URL", "https://clob.polymarket.com"),

		// Aggregation
		MarketLimit:      getEnvInt("MARKET_LIMIT", 20),
		TradesPerMarket:  getEnvInt("TRADES_PER_MARKET", 10),
		FetchWorkers:     getEnvInt("FETCH_WORKERS", 4),
		FetchTimeout:     time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 10)) * time.Second,
		DefaultBatchSize: getEnvInt("DEFAULT_BATCH_SIZE", 100),

		// Thresholds
		LargeTradeThreshold:   getEnvFloat("LARGE_TRADE_THRESHOLD", defaults.LargeTradeThreshold),
		ExtremePriceThreshold: getEnvFloat("EXTREME_PRICE_THRESHOLD", defaults.ExtremePriceThreshold),
		CloseToEndHours:       getEnvFloat("CLOSE_TO_END_HOURS", defaults.CloseToEndThreshold),
		MinSuspicionScore:     getEnvFloat("MIN_SUSPICION_SCORE", defaults.MinSuspicionScore),

		// Database
		PersistResults: getEnvBool("PERSIST_RESULTS", true),
		DBDriver:       getEnv("DB_DRIVER", "sqlite"),
		DBPath:         getEnv("DB_PATH", "./data/insiderscan.db"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		// HTTP
		HTTPHost: getEnv("HTTP_HOST", "0.0.0.0"),
		HTTPPort: getEnvInt("HTTP_PORT", 8080),

		// UI
		EnableTUI:     getEnvBool("ENABLE_TUI", true),
		UIRefreshRate: time.Duration(getEnvInt("UI_REFRESH_MS", 500)) * time.Millisecond,

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if c.GammaAPIURL == "" {
		return fmt.Errorf("GAMMA_API_URL is required")
	}

	if c.PolymarketRESTURL == "" {
		return fmt.Errorf("POLYMARKET_REST_URL is required")
	}

	if c.MarketLimit < 1 {
		return fmt.Errorf("MARKET_LIMIT must be at least 1")
	}

	if c.TradesPerMarket < 1 {
		return fmt.Errorf("TRADES_PER_MARKET must be at least 1")
	}

	if c.FetchWorkers < 1 {
		return fmt.Errorf("FETCH_WORKERS must be at least 1")
	}

	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT_SECONDS must be positive")
	}

	if c.DefaultBatchSize < 1 || c.DefaultBatchSize > 500 {
		return fmt.Errorf("DEFAULT_BATCH_SIZE must be between 1 and 500")
	}

	if err := c.Criteria().Validate(); err != nil {
		return err
	}

	if c.PersistResults {
		switch c.DBDriver {
		case "sqlite":
			if c.DBPath == "" {
				return fmt.Errorf("DB_PATH is required for the sqlite driver")
			}
		case "postgres":
			if c.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for the postgres driver")
			}
		default:
			return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
		}
	}

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}

	return nil
}

// Criteria returns the configured detection thresholds.
func (c *Config) Criteria() detector.Criteria {
	return detector.Criteria{
		LargeTradeThreshold:   c.LargeTradeThreshold,
		ExtremePriceThreshold: c.ExtremePriceThreshold,
		CloseToEndThreshold:   c.CloseToEndHours,
		MinSuspicionScore:     c.MinSuspicionScore,
	}
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == "postgres" {
		return c.DatabaseURL
	}
	return c.DBPath
}

// MaskedDatabaseURL returns the database URL with most characters hidden for logging.
func (c *Config) MaskedDatabaseURL() string {
	return maskSecret(c.DatabaseURL)
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as a float64 or returns a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean or returns a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
