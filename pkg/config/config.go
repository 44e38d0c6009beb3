// Package config loads exporter settings from defaults, an optional YAML
// file, .env files and READWISE_* environment variables, in that order of
// increasing precedence. Command-line flags are applied on top by the caller
// before Validate.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/readwise-export/pkg/cache"
	"github.com/Sternrassler/readwise-export/pkg/client"
	"github.com/Sternrassler/readwise-export/pkg/export"
	"github.com/Sternrassler/readwise-export/pkg/logging"
	"github.com/Sternrassler/readwise-export/pkg/ratelimit"
)

// ErrMissingToken is returned by Validate when no access token is configured.
var ErrMissingToken = errors.New("READWISE_ACCESS_TOKEN not set (environment or .env file)")

// TokenEnv is the environment variable holding the access token.
const TokenEnv = "READWISE_ACCESS_TOKEN"

// DefaultFile is read by Load when no config path is given and it exists.
const DefaultFile = "readwise-export.yaml"

// Config holds all exporter settings.
type Config struct {
	// Token is only read from the environment.
	Token string `yaml:"-"`

	API         APIConfig      `yaml:"api"`
	Cache       CacheConfig    `yaml:"cache"`
	Throttle    ThrottleConfig `yaml:"throttle"`
	Export      ExportConfig   `yaml:"export"`
	Logging     LoggingConfig  `yaml:"logging"`
	MetricsFile string         `yaml:"metrics_file"`
}

// APIConfig holds Reader API settings.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// CacheConfig selects the page cache backend.
type CacheConfig struct {
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	RedisURL string `yaml:"redis_url"`
}

// ThrottleConfig bounds throttle waits. Zero means unbounded.
type ThrottleConfig struct {
	MaxConsecutiveWaits int           `yaml:"max_consecutive_waits"`
	MaxTotalWait        time.Duration `yaml:"max_total_wait"`
}

// ExportConfig holds output settings.
type ExportConfig struct {
	Output          string `yaml:"output"`
	Format          string `yaml:"format"`
	Overwrite       bool   `yaml:"overwrite"`
	AllowDuplicates bool   `yaml:"allow_duplicates"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// DefaultConfig returns a Config with defaults for every field but the token.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:    client.DefaultBaseURL,
			UserAgent:  client.DefaultUserAgent,
			Timeout:    60 * time.Second,
			MaxRetries: client.DefaultRetryConfig().MaxAttempts,
		},
		Cache: CacheConfig{
			Backend: cache.BackendSQLite,
			Path:    cache.DefaultSQLitePath,
		},
		Logging: LoggingConfig{
			Level: string(logging.LevelInfo),
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (or DefaultFile
// if path is empty and the file exists), the given .env files (".env" if
// none) and the environment. It does not validate.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, name := range envFiles {
		// godotenv never overrides variables already set
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFromFile(path); err != nil {
		return nil, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile merges a YAML file into c.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		if _, err := os.Stat(DefaultFile); err != nil {
			return nil
		}
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv applies READWISE_* environment variables.
func (c *Config) LoadFromEnv() error {
	c.Token = strings.TrimSpace(os.Getenv(TokenEnv))

	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setString("READWISE_BASE_URL", &c.API.BaseURL)
	setString("READWISE_CACHE_BACKEND", &c.Cache.Backend)
	setString("READWISE_CACHE_PATH", &c.Cache.Path)
	setString("READWISE_REDIS_URL", &c.Cache.RedisURL)
	setString("READWISE_LOG_LEVEL", &c.Logging.Level)
	setString("READWISE_METRICS_FILE", &c.MetricsFile)

	if v := os.Getenv("READWISE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("READWISE_TIMEOUT: %w", err)
		}
		c.API.Timeout = d
	}
	if v := os.Getenv("READWISE_MAX_THROTTLE_WAITS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("READWISE_MAX_THROTTLE_WAITS: %w", err)
		}
		c.Throttle.MaxConsecutiveWaits = n
	}
	return nil
}

// Validate checks the final configuration. A missing token is reported as
// ErrMissingToken.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Token) == "" {
		errs = append(errs, ErrMissingToken)
	}

	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api timeout must be positive"))
	}
	if c.API.MaxRetries < 1 {
		errs = append(errs, errors.New("api max_retries must be at least 1"))
	}

	switch c.Cache.Backend {
	case cache.BackendSQLite, cache.BackendMemory:
	case cache.BackendRedis:
		if c.Cache.RedisURL == "" {
			errs = append(errs, errors.New("redis cache backend requires a redis url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}

	if c.Throttle.MaxConsecutiveWaits < 0 {
		errs = append(errs, errors.New("max consecutive throttle waits cannot be negative"))
	}
	if c.Throttle.MaxTotalWait < 0 {
		errs = append(errs, errors.New("max total throttle wait cannot be negative"))
	}

	if c.Export.Format != "" {
		if _, err := export.ParseFormat(c.Export.Format); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// OutputPath returns the export path, defaulting from the format when unset.
func (c *Config) OutputPath() string {
	if c.Export.Output != "" {
		return c.Export.Output
	}
	return export.DefaultPath(export.Format(c.Export.Format))
}

// ClientConfig returns the Reader client settings.
func (c *Config) ClientConfig() client.Config {
	retry := client.DefaultRetryConfig()
	retry.MaxAttempts = c.API.MaxRetries

	return client.Config{
		Token:     c.Token,
		BaseURL:   c.API.BaseURL,
		UserAgent: c.API.UserAgent,
		Timeout:   c.API.Timeout,
		Retry:     retry,
	}
}

// CacheOptions returns the page cache settings.
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		Backend:  c.Cache.Backend,
		Path:     c.Cache.Path,
		RedisURL: c.Cache.RedisURL,
	}
}

// ThrottleLimits returns the throttle wait limits.
func (c *Config) ThrottleLimits() ratelimit.Config {
	return ratelimit.Config{
		MaxConsecutiveWaits: c.Throttle.MaxConsecutiveWaits,
		MaxTotalWait:        c.Throttle.MaxTotalWait,
	}
}

// ExportOptions returns the exporter settings.
func (c *Config) ExportOptions() export.Options {
	return export.Options{
		Path:            c.OutputPath(),
		Format:          export.Format(c.Export.Format),
		Overwrite:       c.Export.Overwrite,
		AllowDuplicates: c.Export.AllowDuplicates,
	}
}

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() logging.Config {
	level, _ := logging.ParseLevel(c.Logging.Level)
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Pretty = c.Logging.Pretty
	return cfg
}
