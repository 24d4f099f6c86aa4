// Package config provides configuration management for liquidsoap-go using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort         = 8080
	defaultServerTimeout      = 30 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultMaxLatency         = 60 * time.Second
	defaultHarborMax          = 40 * time.Second
	defaultHarborReadTimeout  = 30 * time.Second
	defaultHousekeepingCron   = "0 * * * * *"
	defaultDatabaseDSN        = "liquidsoap.db"
	defaultConnMaxIdleTime    = 30 * time.Minute
	defaultMetricsSampleEvery = 15 * time.Second
	defaultHarborDumpMaxSize  = 512 * 1024 * 1024 // 512MB
)

// Config holds all configuration for the application.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Clock        ClockConfig        `mapstructure:"clock"`
	Root         RootConfig         `mapstructure:"root"`
	Harbor       HarborConfig       `mapstructure:"harbor"`
	Housekeeping HousekeepingConfig `mapstructure:"housekeeping"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// ServerConfig holds HTTP control-surface configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds the harbor connection-history store configuration.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// ClockConfig holds clock scheduler configuration.
type ClockConfig struct {
	// AllowStreamingErrors keeps a clock running past a source's streaming
	// failure instead of requesting global shutdown.
	AllowStreamingErrors bool `mapstructure:"allow_streaming_errors"`
}

// RootConfig holds root-level streaming configuration.
type RootConfig struct {
	// MaxLatency is the threshold above which active sources are reset.
	MaxLatency time.Duration `mapstructure:"max_latency"`
}

// HarborConfig holds harbor (network ingest) configuration.
type HarborConfig struct {
	// BindAddrs is the list of listen addresses for harbor sockets.
	BindAddrs []string `mapstructure:"bind_addrs"`
	// BindAddr is the legacy singular form; deprecated in favor of BindAddrs.
	BindAddr string `mapstructure:"bind_addr"`
	// Max is the harbor's maximum buffered duration, used to size the
	// Generator (in whole seconds, at least 1) and to compute the
	// backpressure sleep (max/3).
	Max time.Duration `mapstructure:"max"`
	// ReadTimeout is accepted in configuration but not applied: harbor
	// socket reads have no deadline.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// DumpMaxSize caps the optional debug capture file; once exceeded the
	// dump is closed and no further bytes are written for that connection.
	DumpMaxSize ByteSize `mapstructure:"dump_max_size"`
}

// HousekeepingConfig holds periodic registry/collector health-check configuration.
type HousekeepingConfig struct {
	// Cron is a 6-field cron expression for the housekeeping tick.
	Cron    string `mapstructure:"cron"`
	Enabled bool   `mapstructure:"enabled"`
}

// MetricsConfig holds periodic host metrics sampling configuration.
type MetricsConfig struct {
	// SampleEvery is the interval between CPU/memory samples.
	SampleEvery time.Duration `mapstructure:"sample_every"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with LIQUIDSOAP_ and use underscores for nesting.
// Example: LIQUIDSOAP_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/liquidsoap-go")
		v.AddConfigPath("$HOME/.liquidsoap-go")
	}

	v.SetEnvPrefix("LIQUIDSOAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	rewriteLegacyHarborBindAddr(&cfg, slog.Default())

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// rewriteLegacyHarborBindAddr accepts the deprecated singular harbor.bind_addr
// key and folds it into harbor.bind_addrs, logging a deprecation warning.
func rewriteLegacyHarborBindAddr(cfg *Config, logger *slog.Logger) {
	if cfg.Harbor.BindAddr == "" {
		return
	}
	logger.Warn("harbor.bind_addr is deprecated, use harbor.bind_addrs instead",
		slog.String("value", cfg.Harbor.BindAddr))
	cfg.Harbor.BindAddrs = append(cfg.Harbor.BindAddrs, cfg.Harbor.BindAddr)
	cfg.Harbor.BindAddr = ""
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults (harbor connection history store)
	v.SetDefault("database.dsn", defaultDatabaseDSN)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Clock defaults
	v.SetDefault("clock.allow_streaming_errors", false)

	// Root defaults
	v.SetDefault("root.max_latency", defaultMaxLatency)

	// Harbor defaults
	v.SetDefault("harbor.bind_addrs", []string{"0.0.0.0:8005"})
	v.SetDefault("harbor.bind_addr", "")
	v.SetDefault("harbor.max", defaultHarborMax)
	v.SetDefault("harbor.read_timeout", defaultHarborReadTimeout)
	v.SetDefault("harbor.dump_max_size", int64(defaultHarborDumpMaxSize))

	// Housekeeping defaults
	v.SetDefault("housekeeping.cron", defaultHousekeepingCron)
	v.SetDefault("housekeeping.enabled", true)

	// Metrics defaults
	v.SetDefault("metrics.sample_every", defaultMetricsSampleEvery)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Root.MaxLatency <= 0 {
		return fmt.Errorf("root.max_latency must be positive")
	}

	if len(c.Harbor.BindAddrs) == 0 {
		return fmt.Errorf("harbor.bind_addrs must contain at least one address")
	}
	if c.Harbor.Max <= 0 {
		return fmt.Errorf("harbor.max must be positive")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
