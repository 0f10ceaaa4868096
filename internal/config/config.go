// Package config provides centralized configuration management for the ETL.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Database DatabaseConfig
	ETL      ETLConfig
	Retry    RetryConfig
	Catalog  CatalogConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds destination store connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// ConnectTimeout bounds the initial connect and ping (default: 10s)
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" default:"10s"`
}

// ETLConfig holds pipeline input/output settings.
type ETLConfig struct {
	// DataDir is the folder holding the raw CSV files (default: data)
	DataDir string `env:"ETL_DATA_DIR" default:"data"`

	CustomersFile string `env:"ETL_CUSTOMERS_FILE" default:"customers_raw.csv"`
	ProductsFile  string `env:"ETL_PRODUCTS_FILE" default:"products_raw.csv"`
	SalesFile     string `env:"ETL_SALES_FILE" default:"sales_raw.csv"`

	// ReportPath is where the text quality report is written
	ReportPath string `env:"ETL_REPORT_PATH" default:"data_quality_report.txt"`

	// RulesFile is an optional YAML file overriding the built-in cleansing rules
	RulesFile string `env:"ETL_RULES_FILE"`

	// RunTimeout bounds a whole pipeline run (default: 10m)
	RunTimeout time.Duration `env:"ETL_RUN_TIMEOUT" default:"10m"`
}

// RetryConfig holds the bounded retry policy for transient storage errors.
type RetryConfig struct {
	// Attempts is the total number of tries per batch, first try included (default: 4)
	Attempts int `env:"STORE_RETRY_ATTEMPTS" default:"4"`

	// InitialDelay is the wait after the first failure (default: 500ms)
	InitialDelay time.Duration `env:"STORE_RETRY_INITIAL_DELAY" default:"500ms"`

	// MaxDelay caps the exponential backoff (default: 8s)
	MaxDelay time.Duration `env:"STORE_RETRY_MAX_DELAY" default:"8s"`

	// Multiplier grows the delay after each failed attempt (default: 2)
	Multiplier float64 `env:"STORE_RETRY_MULTIPLIER" default:"2"`
}

// CatalogConfig holds the optional document-store export settings.
type CatalogConfig struct {
	// MongoURL enables the product catalog export when set
	MongoURL string `env:"MONGO_URL"`

	// Database is the MongoDB database name (default: fleximart)
	Database string `env:"MONGO_DATABASE" default:"fleximart"`

	// Timeout bounds the whole export (default: 30s)
	Timeout time.Duration `env:"MONGO_TIMEOUT" default:"30s"`
}

// ServerConfig holds HTTP settings for `etl serve`.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// SourcePaths maps source keys to the full path of their raw file.
func (c *ETLConfig) SourcePaths() map[string]string {
	return map[string]string{
		"customers": filepath.Join(c.DataDir, c.CustomersFile),
		"products":  filepath.Join(c.DataDir, c.ProductsFile),
		"sales":     filepath.Join(c.DataDir, c.SalesFile),
	}
}
