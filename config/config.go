package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Stats     StatsConfig     `mapstructure:"stats"`
	Units     UnitsConfig     `mapstructure:"units"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig defines the HTTP API listener
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	BindAddress    string   `mapstructure:"bind_address"`
	ReadTimeout    string   `mapstructure:"read_timeout"`
	WriteTimeout   string   `mapstructure:"write_timeout"`
	IdleTimeout    string   `mapstructure:"idle_timeout"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StorageConfig defines the SQLite database location
type StorageConfig struct {
	Path string `mapstructure:"path"` // ":memory:" for a throwaway database
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

// StatsConfig defines how renewal statistics are fetched
type StatsConfig struct {
	MaxRetries     int    `mapstructure:"max_retries"`
	RetryDelay     string `mapstructure:"retry_delay"`
	MaxRetryDelay  string `mapstructure:"max_retry_delay"`
	FetchTimeout   string `mapstructure:"fetch_timeout"`
	MaxConcurrency int    `mapstructure:"max_concurrency"` // 0 = one goroutine per renewal
}

// UnitsConfig defines display unit settings
type UnitsConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// SchedulerConfig defines the renewal roller
type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"` // standard 5-field cron expression
}

// Load loads configuration from file and RENEWAL_* environment variables.
// An empty path looks for renewald.yaml in the working directory; a missing
// file is then not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("renewald")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("RENEWAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Storage defaults
	v.SetDefault("storage.path", "renewals.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Stats defaults
	v.SetDefault("stats.max_retries", 2)
	v.SetDefault("stats.retry_delay", "100ms")
	v.SetDefault("stats.max_retry_delay", "2s")
	v.SetDefault("stats.fetch_timeout", "5s")
	v.SetDefault("stats.max_concurrency", 0)

	// Units defaults
	v.SetDefault("units.cache_size", 1024)

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.schedule", "5 0 * * *")
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "text", "json":
	default:
		return fmt.Errorf("logging.format must be console or json: %q", c.Logging.Format)
	}

	durations := map[string]string{
		"server.read_timeout":   c.Server.ReadTimeout,
		"server.write_timeout":  c.Server.WriteTimeout,
		"server.idle_timeout":   c.Server.IdleTimeout,
		"stats.retry_delay":     c.Stats.RetryDelay,
		"stats.max_retry_delay": c.Stats.MaxRetryDelay,
		"stats.fetch_timeout":   c.Stats.FetchTimeout,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if c.Stats.MaxRetries < 0 {
		return fmt.Errorf("stats.max_retries must not be negative")
	}
	if c.Stats.MaxConcurrency < 0 {
		return fmt.Errorf("stats.max_concurrency must not be negative")
	}
	if c.Units.CacheSize <= 0 {
		return fmt.Errorf("units.cache_size must be positive")
	}
	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.Schedule); err != nil {
			return fmt.Errorf("invalid scheduler.schedule: %w", err)
		}
	}
	return nil
}

// Addr is the listen address of the HTTP API.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.BindAddress, s.Port)
}

// Duration parses a duration already checked by Validate.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
