// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iklobato/lightapi/domain/model"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Auth      AuthConfig       `yaml:"auth"`
	Logging   LoggingConfig    `yaml:"logging"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Resources []ResourceConfig `yaml:"resources"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig configures the backing store. The URL scheme selects the
// backend; an empty URL selects the ephemeral in-memory store.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig configures the JWT auth gate.
type AuthConfig struct {
	Enabled    bool          `yaml:"enabled"`
	JWTSecret  string        `yaml:"jwt_secret,omitempty"`
	Expiration time.Duration `yaml:"expiration"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ResourceConfig declares one resource to serve without writing Go.
type ResourceConfig struct {
	Name       string        `yaml:"name"`
	Path       string        `yaml:"path,omitempty"` // default: /<name>
	PrimaryKey string        `yaml:"primary_key"`
	Fields     []FieldConfig `yaml:"fields"`
}

// FieldConfig declares one field of a resource.
type FieldConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
	Unique   bool   `yaml:"unique"`
	Default  any    `yaml:"default,omitempty"`
}

// Descriptor converts the declaration to a model descriptor.
func (r ResourceConfig) Descriptor() *model.Descriptor {
	d := &model.Descriptor{
		Name:       r.Name,
		PrimaryKey: r.PrimaryKey,
	}
	for _, f := range r.Fields {
		ft := model.FieldType(f.Type)
		d.Fields = append(d.Fields, model.Field{
			Name:       f.Name,
			Type:       ft,
			Nullable:   f.Nullable,
			Unique:     f.Unique,
			Default:    normalizeDefault(ft, f.Default),
			HasDefault: f.Default != nil,
		})
	}
	return d
}

// normalizeDefault converts YAML scalars to the field type's native
// representation, the same one JSON bodies coerce to. Values that do not fit
// the type pass through unchanged and fail Descriptor.Validate.
func normalizeDefault(ft model.FieldType, v any) any {
	switch ft {
	case model.Integer:
		switch n := v.(type) {
		case int:
			return int64(n)
		case float64:
			if n == math.Trunc(n) {
				return int64(n)
			}
		}
	case model.Float:
		if n, ok := v.(int); ok {
			return float64(n)
		}
	case model.Timestamp:
		if s, ok := v.(string); ok {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t.UTC()
			}
		}
	}
	return v
}

// Load reads configuration from a YAML file, expands environment variables,
// and applies LIGHTAPI_* / DATABASE_URL overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// FromEnv creates configuration entirely from environment variables.
func FromEnv() *Config {
	var cfg Config
	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	return &cfg
}

// Validate checks the configuration, including every declared resource.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	seen := make(map[string]bool)
	for _, r := range c.Resources {
		if err := r.Descriptor().Validate(); err != nil {
			return err
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate resource %q", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}

// applyEnvOverrides applies environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("LIGHTAPI_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("LIGHTAPI_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LIGHTAPI_AUTH_ENABLED"); v != "" {
		cfg.Auth.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("LIGHTAPI_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("LIGHTAPI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LIGHTAPI_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Auth.Expiration == 0 {
		cfg.Auth.Expiration = time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
