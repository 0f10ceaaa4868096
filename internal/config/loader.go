package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Every missing or unparseable variable is reported, not just the first.
func Load() (*Config, error) {
	cfg := &Config{}

	if errs := loadStruct(reflect.ValueOf(cfg).Elem()); len(errs) > 0 {
		return nil, fmt.Errorf("config load: %w", errors.Join(errs...))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envField is the parsed env/envAlt/default/required tag set of one field.
type envField struct {
	name     string
	alt      string
	fallback string
	required bool
}

func parseEnvTags(tag reflect.StructTag) (envField, bool) {
	name := tag.Get("env")
	if name == "" {
		return envField{}, false
	}
	return envField{
		name:     name,
		alt:      tag.Get("envAlt"),
		fallback: tag.Get("default"),
		required: tag.Get("required") == "true",
	}, true
}

// lookup resolves the field's raw value: primary var, then alternate, then default.
func (f envField) lookup() (string, error) {
	value := os.Getenv(f.name)
	if value == "" && f.alt != "" {
		value = os.Getenv(f.alt)
	}
	if value != "" {
		return value, nil
	}
	if f.required {
		return "", fmt.Errorf("required environment variable %s is not set", f.name)
	}
	return f.fallback, nil
}

// loadStruct recursively populates struct fields from environment variables
// and collects one error per bad variable.
func loadStruct(v reflect.Value) []error {
	var errs []error
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Nested sections: Database, ETL, Retry...
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			errs = append(errs, loadStruct(fieldVal)...)
			continue
		}

		env, ok := parseEnvTags(field.Tag)
		if !ok {
			continue
		}

		value, err := env.lookup()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			errs = append(errs, fmt.Errorf("invalid value for %s=%q: %w", env.name, value, err))
		}
	}

	return errs
}

var durationType = reflect.TypeOf(time.Duration(0))

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// time.Duration is an int64 but is written as "500ms"
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}

	// Sources and report
	if c.ETL.DataDir == "" {
		errs = append(errs, "ETL_DATA_DIR must not be empty")
	}
	if c.ETL.ReportPath == "" {
		errs = append(errs, "ETL_REPORT_PATH must not be empty")
	}
	if c.ETL.RunTimeout <= 0 {
		errs = append(errs, "ETL_RUN_TIMEOUT must be positive")
	}

	// Retry policy
	if c.Retry.Attempts <= 0 {
		errs = append(errs, "STORE_RETRY_ATTEMPTS must be positive")
	}
	if c.Retry.InitialDelay < 0 {
		errs = append(errs, "STORE_RETRY_INITIAL_DELAY must be non-negative")
	}
	if c.Retry.MaxDelay < c.Retry.InitialDelay {
		errs = append(errs, "STORE_RETRY_MAX_DELAY must be >= STORE_RETRY_INITIAL_DELAY")
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, fmt.Sprintf("STORE_RETRY_MULTIPLIER (%g) must be >= 1", c.Retry.Multiplier))
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Logging
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Connection strings are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Database: {URL: [MASKED], MaxConns: %d}, ", c.Database.MaxConns)
	fmt.Fprintf(&b, "ETL: {DataDir: %q, ReportPath: %q, RulesFile: %q}, ",
		c.ETL.DataDir, c.ETL.ReportPath, c.ETL.RulesFile)
	fmt.Fprintf(&b, "Retry: {Attempts: %d, InitialDelay: %s, Multiplier: %g}, ",
		c.Retry.Attempts, c.Retry.InitialDelay, c.Retry.Multiplier)
	fmt.Fprintf(&b, "Catalog: {Enabled: %v}, ", c.Catalog.MongoURL != "")
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
