// Package main provides the alertcast server CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/alertcast/internal/api/auth"
	"github.com/good-yellow-bee/alertcast/internal/hub"
	"github.com/good-yellow-bee/alertcast/internal/logging"
	"github.com/good-yellow-bee/alertcast/internal/storage"
)

// dataDirEnv overrides storage.data_dir.
const dataDirEnv = "ALERTCAST_DATA_DIR"

// Config represents the server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Hub       HubConfig       `yaml:"hub"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
	Verbose   bool            `yaml:"-"` // set via CLI flag
}

// ServerConfig contains listener and websocket settings.
type ServerConfig struct {
	HTTPAddress    string   `yaml:"http_address"`    // HTTP listen address (default: :8080)
	MetricsAddress string   `yaml:"metrics_address"` // Prometheus listener; empty disables
	AllowedOrigins []string `yaml:"allowed_origins"` // Websocket origins; empty allows any
	PingInterval   string   `yaml:"ping_interval"`   // Websocket keepalive (default: 30s)
	WriteTimeout   string   `yaml:"write_timeout"`   // Per frame write deadline (default: 10s)
}

// StorageConfig selects where alert documents live.
type StorageConfig struct {
	Backend    string `yaml:"backend"`     // file or sqlite
	DataDir    string `yaml:"data_dir"`    // file backend directory
	SQLitePath string `yaml:"sqlite_path"` // sqlite backend database
	Watch      *bool  `yaml:"watch"`       // reload on external file edits (file backend)
}

// HubConfig sizes the broadcast hub.
type HubConfig struct {
	Capacity int `yaml:"capacity"`
}

// AuthConfig lists operators allowed to use the mutating API.
type AuthConfig struct {
	Users            []auth.User `yaml:"users"`
	LockoutThreshold int         `yaml:"lockout_threshold"`
	LockoutDuration  string      `yaml:"lockout_duration"`
}

// RateLimitConfig limits mutating requests per client IP.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Config{
		RateLimit: RateLimitConfig{RequestsPerSecond: -1},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{RateLimit: RateLimitConfig{RequestsPerSecond: -1}}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields. A negative
// rate marks "not configured"; an explicit 0 disables limiting.
func (c *Config) setDefaults() {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = ":8080"
	}
	if c.Server.PingInterval == "" {
		c.Server.PingInterval = "30s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "10s"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = storage.BackendFile
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "./data/alerts"
	}
	if dir := os.Getenv(dataDirEnv); dir != "" {
		c.Storage.DataDir = dir
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "./data/alertcast.db"
	}
	if c.Storage.Watch == nil {
		watch := true
		c.Storage.Watch = &watch
	}
	if c.Hub.Capacity == 0 {
		c.Hub.Capacity = hub.DefaultCapacity
	}
	if c.Auth.LockoutThreshold == 0 {
		c.Auth.LockoutThreshold = 5
	}
	if c.Auth.LockoutDuration == "" {
		c.Auth.LockoutDuration = "15m"
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		c.RateLimit.RequestsPerSecond = 10
		if c.RateLimit.Burst == 0 {
			c.RateLimit.Burst = 20
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = logging.FormatJSON
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.HTTPAddress == "" {
		return fmt.Errorf("server.http_address is required")
	}
	if c.Server.MetricsAddress != "" && c.Server.MetricsAddress == c.Server.HTTPAddress {
		return fmt.Errorf("server.metrics_address must differ from server.http_address")
	}
	if err := validatePositiveDuration("server.ping_interval", c.Server.PingInterval); err != nil {
		return err
	}
	if err := validatePositiveDuration("server.write_timeout", c.Server.WriteTimeout); err != nil {
		return err
	}
	if err := validatePositiveDuration("auth.lockout_duration", c.Auth.LockoutDuration); err != nil {
		return err
	}

	switch c.Storage.Backend {
	case storage.BackendFile:
		if c.Storage.DataDir == "" {
			return fmt.Errorf("storage.data_dir is required for the file backend")
		}
	case storage.BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", storage.BackendFile, storage.BackendSQLite, c.Storage.Backend)
	}

	if c.Hub.Capacity < 1 {
		return fmt.Errorf("hub.capacity must be positive")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	if c.Auth.LockoutThreshold < 0 {
		return fmt.Errorf("auth.lockout_threshold must not be negative")
	}
	for i, u := range c.Auth.Users {
		if u.Username == "" {
			return fmt.Errorf("auth.users[%d].username is required", i)
		}
		if u.PasswordHash == "" {
			return fmt.Errorf("auth.users[%d].password_hash is required", i)
		}
	}
	if !logging.ValidFormat(c.Log.Format) {
		return fmt.Errorf("log.format must be %q or %q", logging.FormatJSON, logging.FormatConsole)
	}
	return nil
}

// WatchEnabled reports whether external edits to the data directory are
// picked up. Only the file backend can be watched.
func (c *Config) WatchEnabled() bool {
	return c.Storage.Backend == storage.BackendFile && c.Storage.Watch != nil && *c.Storage.Watch
}

func validatePositiveDuration(key, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive", key)
	}
	return nil
}

// mustDuration parses a duration already checked by Validate.
func mustDuration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}
