// Package config provides configuration management for the crypto assistant.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Upstream  UpstreamConfig
	Cache     CacheConfig
	Scheduler SchedulerConfig
	Chat      ChatConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AutoMigrate     bool
	MigrationsPath  string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	// Driver selects the coin/history store: "postgres" or "memory"
	Driver     string
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns the postgres:// form used by golang-migrate.
func (c PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// ClickHouseConfig holds ClickHouse configuration.
// The price tick archive is only opened when Enabled is set.
type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// UpstreamConfig holds market data provider configuration
type UpstreamConfig struct {
	BaseURL             string
	APIKey              string
	Timeout             time.Duration
	TopCoinsCount       int
	HistoricalDays      int
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
}

// CacheConfig holds read cache configuration
type CacheConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// SchedulerConfig holds refresh scheduler configuration.
// Schedules use cron syntax, including descriptors like "@every 5m".
type SchedulerConfig struct {
	Enabled           bool
	MarketSchedule    string
	HistorySchedule   string
	HistoryStartDelay time.Duration
	HistoryCoinPause  time.Duration
	Timezone          string
}

// ChatConfig holds chat assistant configuration
type ChatConfig struct {
	CoinRegistryFile string
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional, environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "5000"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AutoMigrate:     getEnvAsBool("AUTO_MIGRATE", false),
			MigrationsPath:  getEnv("MIGRATIONS_PATH", "migrations/postgres"),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(getEnv("STORAGE_DRIVER", "postgres")),
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "crypto_assistant"),
				User:           getEnv("POSTGRES_USER", "crypto"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "crypto_assistant"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
		},
		Upstream: UpstreamConfig{
			BaseURL:             getEnv("COINGECKO_API_URL", "https://api.coingecko.com/api/v3"),
			APIKey:              getEnv("COINGECKO_API_KEY", ""),
			Timeout:             getEnvAsDuration("COINGECKO_TIMEOUT", 10*time.Second),
			TopCoinsCount:       getEnvAsInt("TOP_COINS_COUNT", 10),
			HistoricalDays:      getEnvAsInt("HISTORICAL_DAYS", 30),
			BreakerMaxFailures:  getEnvAsInt("COINGECKO_BREAKER_MAX_FAILURES", 5),
			BreakerResetTimeout: getEnvAsDuration("COINGECKO_BREAKER_RESET", time.Minute),
		},
		Cache: CacheConfig{
			TTL:           getEnvAsDuration("CACHE_TTL", 300*time.Second),
			SweepInterval: getEnvAsDuration("CACHE_SWEEP_INTERVAL", 120*time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:           getEnvAsBool("SCHEDULER_ENABLED", true),
			MarketSchedule:    getEnv("CRON_SCHEDULE", "@every 5m"),
			HistorySchedule:   getEnv("HISTORY_CRON_SCHEDULE", "0 2 * * *"),
			HistoryStartDelay: getEnvAsDuration("HISTORY_START_DELAY", 5*time.Second),
			HistoryCoinPause:  getEnvAsDuration("HISTORY_COIN_PAUSE", time.Second),
			Timezone:          getEnv("SCHEDULER_TIMEZONE", "Local"),
		},
		Chat: ChatConfig{
			CoinRegistryFile: getEnv("COIN_REGISTRY_FILE", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsInt("RATE_LIMIT_RPS", 20),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 40),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks values that have no sensible fallback
func (c *Config) Validate() error {
	var problems []string

	if c.Upstream.TopCoinsCount <= 0 {
		problems = append(problems, "TOP_COINS_COUNT must be positive")
	}
	if c.Upstream.HistoricalDays <= 0 {
		problems = append(problems, "HISTORICAL_DAYS must be positive")
	}
	if c.Upstream.Timeout <= 0 {
		problems = append(problems, "COINGECKO_TIMEOUT must be positive")
	}
	if c.Cache.TTL <= 0 {
		problems = append(problems, "CACHE_TTL must be positive")
	}
	if c.Scheduler.HistoryCoinPause < 0 {
		problems = append(problems, "HISTORY_COIN_PAUSE cannot be negative")
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "memory" {
		problems = append(problems, "STORAGE_DRIVER must be postgres or memory")
	}
	if strings.TrimSpace(c.Scheduler.MarketSchedule) == "" {
		problems = append(problems, "CRON_SCHEDULE is required")
	}
	if strings.TrimSpace(c.Scheduler.HistorySchedule) == "" {
		problems = append(problems, "HISTORY_CRON_SCHEDULE is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Location resolves the scheduler timezone, falling back to the local zone
func (c SchedulerConfig) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s") or bare seconds ("300")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
