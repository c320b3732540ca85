package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"invoices/internal/currency"
	"invoices/internal/invoice"
	"invoices/internal/logger"
	"invoices/internal/postgres"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Rate providers.
const (
	FXHTTP   = "http"
	FXStatic = "static"
)

type Config struct {
	// Storage
	DatabaseURL string
	DBMaxConns  int32
	StoreDriver string

	// Currency conversion
	ReportingCurrency string
	FXProvider        string
	FXAPIURL          string
	FXAPIKey          string
	FXTimeout         time.Duration
	FXCacheTTL        time.Duration
	FXRateLimit       float64
	FXMaxRetries      int
	FXStaticRates     string

	// Numbering
	NumberPrefix     string
	NumberBase       int64
	NumberMaxRetries int

	// Overdue sweep and metrics
	SweepInterval time.Duration
	MetricsAddr   string

	// Google Sheets export
	GoogleSheetURL       string
	GoogleSheetWorksheet string

	// Logging
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var errs []error
	p := parser{errs: &errs}

	config := &Config{
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		DBMaxConns:           int32(p.int("DB_MAX_CONNS", 10)),
		StoreDriver:          strings.ToLower(getEnv("STORE_DRIVER", StorePostgres)),
		ReportingCurrency:    strings.ToUpper(getEnv("REPORTING_CURRENCY", "USD")),
		FXProvider:           strings.ToLower(getEnv("FX_PROVIDER", FXHTTP)),
		FXAPIURL:             getEnv("FX_API_URL", currency.DefaultHTTPSourceConfig().BaseURL),
		FXAPIKey:             getEnv("FX_API_KEY", ""),
		FXTimeout:            p.duration("FX_TIMEOUT", 5*time.Second),
		FXCacheTTL:           p.duration("FX_CACHE_TTL", 5*time.Minute),
		FXRateLimit:          p.float("FX_RATE_LIMIT", 5),
		FXMaxRetries:         p.int("FX_MAX_RETRIES", 3),
		FXStaticRates:        getEnv("FX_STATIC_RATES", ""),
		NumberPrefix:         getEnv("NUMBER_PREFIX", invoice.DefaultSequenceConfig().Prefix),
		NumberBase:           int64(p.int("NUMBER_BASE", int(invoice.DefaultSequenceConfig().Base))),
		NumberMaxRetries:     p.int("NUMBER_MAX_RETRIES", invoice.DefaultConfig().MaxAllocationRetries),
		SweepInterval:        p.duration("SWEEP_INTERVAL", time.Minute),
		MetricsAddr:          getEnv("METRICS_ADDR", ""),
		GoogleSheetURL:       getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet: getEnv("GOOGLE_SHEET_WORKSHEET", "Invoices"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:        getEnv("LOG_TIME_FORMAT", time.RFC3339),
		LogOutput:            getEnv("LOG_OUTPUT", "stderr"),
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed: %w", errors.Join(errs...))
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", StorePostgres)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StorePostgres, StoreMemory, c.StoreDriver)
	}

	switch c.FXProvider {
	case FXHTTP, FXStatic:
	default:
		return fmt.Errorf("FX_PROVIDER must be %q or %q, got %q", FXHTTP, FXStatic, c.FXProvider)
	}

	if len(c.ReportingCurrency) != 3 {
		return fmt.Errorf("REPORTING_CURRENCY must be a 3-letter code, got %q", c.ReportingCurrency)
	}
	if c.NumberBase < 1 {
		return fmt.Errorf("NUMBER_BASE must be positive, got %d", c.NumberBase)
	}
	if c.NumberMaxRetries < 1 {
		return fmt.Errorf("NUMBER_MAX_RETRIES must be positive, got %d", c.NumberMaxRetries)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

// EngineConfig returns the invoice engine settings.
func (c *Config) EngineConfig() invoice.Config {
	engine := invoice.DefaultConfig()
	engine.Sequence = invoice.SequenceConfig{Prefix: c.NumberPrefix, Base: c.NumberBase}
	engine.ReportingCurrency = c.ReportingCurrency
	engine.MaxAllocationRetries = c.NumberMaxRetries
	return engine
}

// GatewayConfig returns the currency gateway settings.
func (c *Config) GatewayConfig() currency.GatewayConfig {
	return currency.GatewayConfig{
		Target:   c.ReportingCurrency,
		Timeout:  c.FXTimeout,
		CacheTTL: c.FXCacheTTL,
	}
}

// HTTPSourceConfig returns the HTTP rate source settings.
func (c *Config) HTTPSourceConfig() currency.HTTPSourceConfig {
	source := currency.DefaultHTTPSourceConfig()
	source.BaseURL = c.FXAPIURL
	source.APIKey = c.FXAPIKey
	source.RequestsPerSecond = c.FXRateLimit
	source.MaxRetries = c.FXMaxRetries
	return source
}

// PostgresConfig returns the connection pool settings.
func (c *Config) PostgresConfig() postgres.Config {
	return postgres.Config{
		URL:      c.DatabaseURL,
		MaxConns: c.DBMaxConns,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser collects conversion errors so Load can report all of them at once.
type parser struct {
	errs *[]error
}

func (p parser) int(key string, defaultValue int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid integer %q", key, raw))
		return defaultValue
	}
	return v
}

func (p parser) float(key string, defaultValue float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid number %q", key, raw))
		return defaultValue
	}
	return v
}

func (p parser) duration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return defaultValue
	}
	return v
}
