// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Price sources
const (
	PriceSourceYahoo = "yahoo"
	PriceSourceCSV   = "csv"
	PriceSourceS3    = "s3"
)

// Solvers accepted by OPTIMIZER_SOLVER.
var validSolvers = map[string]bool{"active_set": true, "penalty": true}

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for all databases (always absolute)
	Port      int
	LogLevel  string
	LogPretty bool
	DevMode   bool

	PriceSource  string
	PriceCSVPath string
	Yahoo        YahooConfig
	S3           S3Config

	Solver              string
	DefaultTargetReturn float64
	DefaultStartDate    time.Time

	PriceCacheTTL        time.Duration
	PriceCacheStaleGrace time.Duration // expired entries are kept this long as a fallback
	CacheCleanupSchedule string
}

// YahooConfig configures the Yahoo chart API client.
type YahooConfig struct {
	BaseURL           string
	RequestsPerSecond float64
}

// S3Config locates per-asset price files in a bucket.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Load reads configuration from the environment, after loading .env if present.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("ALLOCATOR_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	startDate, err := time.Parse("2006-01-02", getEnv("DEFAULT_START_DATE", "2020-01-01"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_START_DATE: %w", err)
	}

	cfg := &Config{
		DataDir:   absDataDir,
		Port:      getEnvAsInt("GO_PORT", 8001),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", true),
		DevMode:   getEnvAsBool("DEV_MODE", false),

		PriceSource:  strings.ToLower(getEnv("PRICE_SOURCE", PriceSourceYahoo)),
		PriceCSVPath: getEnv("PRICE_CSV_PATH", ""),
		Yahoo: YahooConfig{
			BaseURL:           getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
			RequestsPerSecond: getEnvAsFloat("YAHOO_REQUESTS_PER_SECOND", 2),
		},
		S3: S3Config{
			Bucket:          getEnv("S3_BUCKET", ""),
			Prefix:          getEnv("S3_PREFIX", ""),
			Region:          getEnv("S3_REGION", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		},

		Solver:              getEnv("OPTIMIZER_SOLVER", "active_set"),
		DefaultTargetReturn: getEnvAsFloat("DEFAULT_TARGET_RETURN", 0.10),
		DefaultStartDate:    startDate,

		PriceCacheTTL:        getEnvAsDuration("PRICE_CACHE_TTL", 12*time.Hour),
		PriceCacheStaleGrace: getEnvAsDuration("PRICE_CACHE_STALE_GRACE", 7*24*time.Hour),
		CacheCleanupSchedule: getEnv("CACHE_CLEANUP_SCHEDULE", "0 0 3 * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is consistent
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid GO_PORT %d", c.Port)
	}

	switch c.PriceSource {
	case PriceSourceYahoo:
		if c.Yahoo.RequestsPerSecond <= 0 {
			return fmt.Errorf("YAHOO_REQUESTS_PER_SECOND must be positive")
		}
	case PriceSourceCSV:
		if c.PriceCSVPath == "" {
			return fmt.Errorf("PRICE_CSV_PATH is required when PRICE_SOURCE=csv")
		}
	case PriceSourceS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when PRICE_SOURCE=s3")
		}
	default:
		return fmt.Errorf("unknown PRICE_SOURCE %q (expected yahoo, csv or s3)", c.PriceSource)
	}

	if !validSolvers[c.Solver] {
		return fmt.Errorf("unknown OPTIMIZER_SOLVER %q (expected active_set or penalty)", c.Solver)
	}
	if c.PriceCacheTTL <= 0 {
		return fmt.Errorf("PRICE_CACHE_TTL must be positive")
	}
	if c.PriceCacheStaleGrace < 0 {
		return fmt.Errorf("PRICE_CACHE_STALE_GRACE must not be negative")
	}
	if _, err := cron.NewParser(
		cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	).Parse(c.CacheCleanupSchedule); err != nil {
		return fmt.Errorf("invalid CACHE_CLEANUP_SCHEDULE: %w", err)
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
