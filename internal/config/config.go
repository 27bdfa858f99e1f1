package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/climate-query-service/internal/validation"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	RequestTimeout time.Duration

	DatabaseDriver          string // "sqlite3" or "pgx"
	DatabasePath            string // sqlite file, opened read-only
	DatabaseDSN             string // overrides DatabasePath for sqlite; required for pgx
	DatabaseMaxOpenConns    int
	DatabaseMaxIdleConns    int
	DatabaseConnMaxLifetime time.Duration

	// ReferenceDate anchors the "past year" window. It is a dataset snapshot
	// constant, never the wall clock.
	ReferenceDate time.Time
	WindowDays    int
	// WindowStart is ReferenceDate minus WindowDays in YYYY-MM-DD form.
	WindowStart string

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration
}

type fileConfig struct {
	Server struct {
		Port         string `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Database struct {
		Driver          string `yaml:"driver"`
		Path            string `yaml:"path"`
		DSN             string `yaml:"dsn"`
		MaxOpenConns    int    `yaml:"max_open_conns"`
		MaxIdleConns    *int   `yaml:"max_idle_conns"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	} `yaml:"database"`

	Query struct {
		ReferenceDate string `yaml:"reference_date"`
		WindowDays    *int   `yaml:"window_days"`
	} `yaml:"query"`

	CircuitBreaker struct {
		Enabled          *bool  `yaml:"enabled"`
		FailureThreshold int    `yaml:"failure_threshold"`
		SuccessThreshold int    `yaml:"success_threshold"`
		Timeout          string `yaml:"timeout"`
	} `yaml:"circuit_breaker"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`
}

// MaxDegradedWindow is the longest error-rate window the traffic tracker keeps.
const MaxDegradedWindow = 5 * time.Minute

// DefaultReferenceDate is the last day of the bundled dataset snapshot.
const DefaultReferenceDate = "2017-08-23"

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and applies
// env overrides (SERVER_PORT, DATABASE_DRIVER, DATABASE_DSN, DATABASE_PATH,
// REFERENCE_DATE). Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = envOr("SERVER_PORT", fc.Server.Port)
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.ReadTimeout = parseDuration(fc.Server.ReadTimeout, 10*time.Second)
	cfg.WriteTimeout = parseDuration(fc.Server.WriteTimeout, 10*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)

	cfg.DatabaseDriver = strings.ToLower(envOr("DATABASE_DRIVER", fc.Database.Driver))
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = DriverSQLite
	}
	cfg.DatabasePath = envOr("DATABASE_PATH", fc.Database.Path)
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "Resources/hawaii.sqlite"
	}
	cfg.DatabaseDSN = envOr("DATABASE_DSN", fc.Database.DSN)
	cfg.DatabaseMaxOpenConns = fc.Database.MaxOpenConns
	if cfg.DatabaseMaxOpenConns <= 0 {
		cfg.DatabaseMaxOpenConns = 4
	}
	// Unset means 2; an explicit 0 disables the idle pool.
	cfg.DatabaseMaxIdleConns = 2
	if fc.Database.MaxIdleConns != nil {
		cfg.DatabaseMaxIdleConns = *fc.Database.MaxIdleConns
	}
	cfg.DatabaseConnMaxLifetime = parseDurationOrZero(fc.Database.ConnMaxLifetime, 0)

	refStr := envOr("REFERENCE_DATE", fc.Query.ReferenceDate)
	if refStr == "" {
		refStr = DefaultReferenceDate
	}
	ref, err := time.Parse(validation.DateLayout, refStr)
	if err != nil {
		return nil, fmt.Errorf("query.reference_date %q must be YYYY-MM-DD: %w", refStr, err)
	}
	cfg.ReferenceDate = ref
	cfg.WindowDays = 365
	if fc.Query.WindowDays != nil {
		cfg.WindowDays = *fc.Query.WindowDays
	}

	cfg.CircuitBreakerEnabled = true
	if fc.CircuitBreaker.Enabled != nil {
		cfg.CircuitBreakerEnabled = *fc.CircuitBreaker.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = fc.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.CircuitBreaker.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.CircuitBreaker.Timeout, 30*time.Second)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	cfg.WindowStart = validation.WindowStart(cfg.ReferenceDate, cfg.WindowDays)
	return cfg, nil
}

// envOr returns the trimmed env var when set, else the trimmed fallback.
func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(fallback)
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	switch cfg.DatabaseDriver {
	case DriverSQLite:
	case DriverPostgres:
		if cfg.DatabaseDSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", DriverPostgres)
		}
	default:
		return fmt.Errorf("database.driver must be %s or %s, got %q", DriverSQLite, DriverPostgres, cfg.DatabaseDriver)
	}
	if cfg.DatabaseMaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns must not be negative, got %d", cfg.DatabaseMaxIdleConns)
	}
	if cfg.WindowDays < 0 {
		return fmt.Errorf("query.window_days must not be negative, got %d", cfg.WindowDays)
	}
	if cfg.DegradedWindow > MaxDegradedWindow {
		return fmt.Errorf("health.degraded_window must be <= %s, got %s", MaxDegradedWindow, cfg.DegradedWindow)
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be <= 100, got %d", cfg.DegradedErrorPct)
	}
	if cfg.WriteTimeout <= cfg.RequestTimeout {
		cfg.WriteTimeout = cfg.RequestTimeout + time.Second
	}
	return nil
}
