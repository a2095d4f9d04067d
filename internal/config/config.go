// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir       string // Base directory for the cache database (always absolute)
	PortfolioFile string // Path to the manual portfolios JSON document
	Host          string
	Port          int
	LogLevel      string
	DevMode       bool

	// Upstream providers
	YahooBaseURL        string
	SnapTradeClientID   string
	SnapTradeConsumer   string
	SnapTradeUserID     string // Default user, overridable per request
	SnapTradeUserSecret string
	PerplexityAPIKey    string
	PerplexityModel     string

	// Cache TTLs
	PriceTTL    time.Duration
	FxTTL       time.Duration
	HoldingsTTL time.Duration
	AccountsTTL time.Duration

	// Background refresh intervals
	PriceRefreshInterval    time.Duration
	FxRefreshInterval       time.Duration
	HoldingsRefreshInterval time.Duration

	// Consolidation tuning
	DiscrepancyThresholdPct float64 // Computed vs broker-reported total divergence that triggers a note
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("SUPERFINANCE_DATA_DIR", "")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".superfinance")
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	portfolioFile := getEnv("SUPERFINANCE_PORTFOLIO_FILE", "")
	if portfolioFile == "" {
		portfolioFile = filepath.Join(absDataDir, "portfolios.json")
	}

	cfg := &Config{
		DataDir:       absDataDir,
		PortfolioFile: portfolioFile,
		Host:          getEnv("HOST", "0.0.0.0"),
		Port:          getEnvAsInt("PORT", 8000),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DevMode:       getEnvAsBool("DEV_MODE", false),

		YahooBaseURL:        getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
		SnapTradeClientID:   getEnv("SNAPTRADE_CLIENT_ID", ""),
		SnapTradeConsumer:   getEnv("SNAPTRADE_CONSUMER_KEY", ""),
		SnapTradeUserID:     getEnv("SNAPTRADE_USER_ID", ""),
		SnapTradeUserSecret: getEnv("SNAPTRADE_USER_SECRET", ""),
		PerplexityAPIKey:    getEnv("PERPLEXITY_API_KEY", ""),
		PerplexityModel:     getEnv("PERPLEXITY_MODEL", "sonar"),

		PriceTTL:    getEnvAsDuration("PRICE_CACHE_TTL_SECONDS", 600),
		FxTTL:       getEnvAsDuration("FX_CACHE_TTL_SECONDS", 600),
		HoldingsTTL: getEnvAsDuration("HOLDINGS_CACHE_TTL_SECONDS", 90000),
		AccountsTTL: getEnvAsDuration("ACCOUNTS_CACHE_TTL_SECONDS", 90000),

		PriceRefreshInterval:    getEnvAsDuration("PRICE_REFRESH_SECONDS", 300),
		FxRefreshInterval:       getEnvAsDuration("FX_REFRESH_SECONDS", 300),
		HoldingsRefreshInterval: getEnvAsDuration("HOLDINGS_REFRESH_SECONDS", 43200),

		DiscrepancyThresholdPct: getEnvAsFloat("DISCREPANCY_THRESHOLD_PCT", 2.0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are usable
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.DiscrepancyThresholdPct < 0 {
		return fmt.Errorf("discrepancy threshold must be non-negative, got %f", c.DiscrepancyThresholdPct)
	}
	// SnapTrade client credentials come as a pair
	if (c.SnapTradeClientID == "") != (c.SnapTradeConsumer == "") {
		return fmt.Errorf("SNAPTRADE_CLIENT_ID and SNAPTRADE_CONSUMER_KEY must be set together")
	}
	return nil
}

// HasSnapTrade reports whether brokerage integration is configured
func (c *Config) HasSnapTrade() bool {
	return c.SnapTradeClientID != "" && c.SnapTradeConsumer != ""
}

// HasPerplexity reports whether LLM classification is configured
func (c *Config) HasPerplexity() bool {
	return c.PerplexityAPIKey != ""
}

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

// getEnvAsDuration reads a duration expressed in whole seconds
func getEnvAsDuration(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultSeconds)) * time.Second
}
