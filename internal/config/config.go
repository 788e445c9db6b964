package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/zeek-r/bookflow-gateway/internal/flags"
	"github.com/zeek-r/bookflow-gateway/internal/logger"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the configuration file
const (
	EnvPort            = "PORT"
	EnvLegacyBaseURL   = "LEGACY_BASE_URL"
	EnvBookstackURL    = "BOOKSTACK_BASE_URL"
	EnvDatabaseURL     = "DATABASE_URL"
	EnvCORSOrigin      = "CORS_ORIGIN"
	EnvUpstreamTimeout = "UPSTREAM_TIMEOUT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogFormat       = "LOG_FORMAT"
	envFlagPrefix      = "FLAG_"
)

// Config holds the main application configuration
type Config struct {
	Port            int             `yaml:"port"`
	LegacyBaseURL   string          `yaml:"legacyBaseUrl"`
	Storage         StorageConfig   `yaml:"storage,omitempty"`
	CORS            CORSConfig      `yaml:"cors,omitempty"`
	Flags           map[string]bool `yaml:"flags,omitempty"`           // Initial migration flags per module
	Timeout         int             `yaml:"timeout,omitempty"`         // Upstream response header timeout in seconds
	ShutdownTimeout int             `yaml:"shutdownTimeout,omitempty"` // Drain budget in seconds
	Logging         logger.Config   `yaml:"logging,omitempty"`         // Logging configuration
	Metrics         MetricsConfig   `yaml:"metrics,omitempty"`         // Metrics configuration
}

// StorageConfig describes the database backing migrated modules
type StorageConfig struct {
	URL            string `yaml:"url,omitempty"`
	ConnectTimeout int    `yaml:"connectTimeout,omitempty"` // Seconds allowed for the startup ping
	Migrate        *bool  `yaml:"migrate,omitempty"`        // Apply schema migrations at startup (default true)
	MaxOpenConns   int    `yaml:"maxOpenConns,omitempty"`
	MaxIdleConns   int    `yaml:"maxIdleConns,omitempty"`
}

// ShouldMigrate reports whether schema migrations run at startup
func (s StorageConfig) ShouldMigrate() bool {
	return s.Migrate == nil || *s.Migrate
}

// CORSConfig lists the origins allowed to call the gateway from a browser.
// "*" or "true" reflects any origin.
type CORSConfig struct {
	Origins []string `yaml:"origins,omitempty"`
}

// AllowsAnyOrigin reports whether every origin is accepted
func (c CORSConfig) AllowsAnyOrigin() bool {
	for _, o := range c.Origins {
		if o == "*" || strings.EqualFold(o, "true") {
			return true
		}
	}
	return false
}

// MetricsConfig defines how metrics are collected and exposed
type MetricsConfig struct {
	Enabled          bool   `yaml:"enabled"`          // Whether metrics collection is enabled
	Endpoint         string `yaml:"endpoint"`         // Endpoint path to expose metrics (e.g., /metrics)
	EnablePrometheus bool   `yaml:"enablePrometheus"` // Enable Prometheus format metrics
}

// Error is a configuration problem that must stop the process before it
// accepts traffic
type Error struct {
	Field string
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Msg)
}

// IsConfigError reports whether err is, or wraps, a configuration error
func IsConfigError(err error) bool {
	var cfgErr *Error
	return errors.As(err, &cfgErr)
}

// Default returns the configuration used when nothing else is set
func Default() *Config {
	return &Config{
		Port:          3001,
		LegacyBaseURL: "http://localhost:8081",
		Storage: StorageConfig{
			ConnectTimeout: 5,
			MaxOpenConns:   10,
			MaxIdleConns:   5,
		},
		CORS: CORSConfig{Origins: []string{"*"}},
		Flags: map[string]bool{
			string(flags.Books):    true,
			string(flags.Pages):    false,
			string(flags.Comments): false,
		},
		Timeout:         30,
		ShutdownTimeout: 10,
	}
}

// Load builds the configuration: defaults, then the YAML file (skipped when
// filename is empty), then a .env file if present, then the environment.
// The result is validated.
func Load(filename string) (*Config, error) {
	cfg := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	// A missing .env is normal outside development
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return &Error{Field: EnvPort, Msg: fmt.Sprintf("not a number: %q", v)}
		}
		c.Port = port
	}

	if v, ok := lookup(EnvBookstackURL); ok && v != "" {
		c.LegacyBaseURL = v
	}
	if v, ok := lookup(EnvLegacyBaseURL); ok && v != "" {
		c.LegacyBaseURL = v
	}

	if v, ok := lookup(EnvDatabaseURL); ok && v != "" {
		c.Storage.URL = v
	}

	if v, ok := lookup(EnvCORSOrigin); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORS.Origins = origins
	}

	if v, ok := lookup(EnvUpstreamTimeout); ok && v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return &Error{Field: EnvUpstreamTimeout, Msg: fmt.Sprintf("not a number: %q", v)}
		}
		c.Timeout = secs
	}

	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = logger.Level(strings.ToLower(v))
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		c.Logging.Format = logger.Format(strings.ToLower(v))
	}

	if c.Flags == nil {
		c.Flags = make(map[string]bool)
	}
	for _, m := range flags.Modules {
		key := envFlagPrefix + strings.ToUpper(string(m))
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		c.Flags[string(m)] = strings.EqualFold(v, "true")
	}

	return nil
}

func (c *Config) applyDefaults() {
	// Set default port if not specified
	if c.Port == 0 {
		c.Port = 3001
	}

	// Set default timeout if not specified
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10
	}
	if c.Storage.ConnectTimeout == 0 {
		c.Storage.ConnectTimeout = 5
	}

	// Set default metrics settings if enabled but not configured
	if c.Metrics.Enabled && c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = "/metrics"
	}

	c.LegacyBaseURL = strings.TrimRight(c.LegacyBaseURL, "/")
}

// Validate checks the configuration for problems that must abort startup
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return &Error{Field: "port", Msg: fmt.Sprintf("out of range: %d", c.Port)}
	}

	if c.LegacyBaseURL == "" {
		return &Error{Field: "legacyBaseUrl", Msg: "must not be empty"}
	}
	u, err := url.Parse(c.LegacyBaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &Error{Field: "legacyBaseUrl", Msg: fmt.Sprintf("not an absolute http(s) URL: %q", c.LegacyBaseURL)}
	}

	for name := range c.Flags {
		if !flags.IsKnown(name) {
			return &Error{Field: "flags", Msg: fmt.Sprintf("unknown module %q", name)}
		}
	}

	if c.Timeout < 0 {
		return &Error{Field: "timeout", Msg: "must not be negative"}
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Endpoint, "/") {
		return &Error{Field: "metrics.endpoint", Msg: "must start with /"}
	}

	return nil
}
