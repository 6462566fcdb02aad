package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	StoreDriver    string
	DatabaseURL    string
	SQLitePath     string
	DBPoolMaxConns int

	ForecastBaseURL   string
	ForecastTimeout   time.Duration
	ForecastRateLimit float64

	ForecastCacheTTL  time.Duration
	ThresholdCacheTTL time.Duration
	DedupWindow       time.Duration

	AlertSchedule   string
	RunTimeout      time.Duration
	UserConcurrency int

	// Push notifier configuration.
	PushEnabled     bool
	PushEndpoint    string
	PushAccessToken string
	PushTimeout     time.Duration

	// Alert event publishing; disabled when no brokers are set.
	KafkaBrokers    []string
	KafkaAlertTopic string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// KafkaEnabled reports whether dispatched alerts are published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	var err error
	cfg := &Config{
		StoreDriver:     envOrDefault("STORE_DRIVER", DriverSQLite),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SQLitePath:      envOrDefault("SQLITE_PATH", "data/flowalert.db"),
		ForecastBaseURL: envOrDefault("FORECAST_BASE_URL", "https://api.water.noaa.gov/nwps/v1"),
		AlertSchedule:   envOrDefault("ALERT_SCHEDULE", "*/30 * * * *"),
		PushEndpoint:    os.Getenv("PUSH_ENDPOINT"),
		PushAccessToken: os.Getenv("PUSH_ACCESS_TOKEN"),
		KafkaBrokers:    parseList(os.Getenv("KAFKA_BROKERS")),
		KafkaAlertTopic: envOrDefault("KAFKA_ALERT_TOPIC", "flow-alerts"),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
	}

	if cfg.DBPoolMaxConns, err = positiveInt("DB_POOL_MAX_CONNS", 10); err != nil {
		return nil, err
	}
	if cfg.UserConcurrency, err = positiveInt("USER_CONCURRENCY", 8); err != nil {
		return nil, err
	}
	if cfg.ForecastTimeout, err = positiveDuration("FORECAST_TIMEOUT", "12s"); err != nil {
		return nil, err
	}
	if cfg.ForecastCacheTTL, err = positiveDuration("FORECAST_CACHE_TTL", "30m"); err != nil {
		return nil, err
	}
	if cfg.ThresholdCacheTTL, err = positiveDuration("THRESHOLD_CACHE_TTL", "168h"); err != nil {
		return nil, err
	}
	if cfg.DedupWindow, err = positiveDuration("DEDUP_WINDOW", "24h"); err != nil {
		return nil, err
	}
	if cfg.RunTimeout, err = positiveDuration("RUN_TIMEOUT", "25m"); err != nil {
		return nil, err
	}
	if cfg.PushTimeout, err = positiveDuration("PUSH_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = positiveDuration("SHUTDOWN_TIMEOUT", "10s"); err != nil {
		return nil, err
	}

	rate := envOrDefault("FORECAST_RATE_LIMIT", "5")
	cfg.ForecastRateLimit, err = strconv.ParseFloat(rate, 64)
	if err != nil || cfg.ForecastRateLimit <= 0 {
		return nil, fmt.Errorf("invalid FORECAST_RATE_LIMIT %q", rate)
	}

	cfg.PushEnabled = cfg.PushEndpoint != ""
	if v := os.Getenv("PUSH_ENABLED"); v != "" {
		cfg.PushEnabled = v == "true"
	}

	switch cfg.StoreDriver {
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("SQLITE_PATH is required for the sqlite store")
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres store")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.PushEnabled && cfg.PushEndpoint == "" {
		return nil, errors.New("PUSH_ENABLED is true but PUSH_ENDPOINT is not set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func positiveDuration(key, fallback string) (time.Duration, error) {
	s := envOrDefault(key, fallback)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return d, nil
}

func positiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return n, nil
}

func parseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
