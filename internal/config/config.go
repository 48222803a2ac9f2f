// Package config loads service configuration from defaults, an optional
// config.yaml and SATTRACK_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Propagation PropagationConfig `mapstructure:"propagation"`
	Cache       CacheConfig       `mapstructure:"cache"`
	API         APIConfig         `mapstructure:"api"`
	Stream      StreamConfig      `mapstructure:"stream"`
	Valkey      ValkeyConfig      `mapstructure:"valkey"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustProxy      bool          `mapstructure:"trust_proxy"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

type CatalogConfig struct {
	Path           string        `mapstructure:"path"` // file, or directory holding *.tle / *.txt
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
	Watch          bool          `mapstructure:"watch"` // reload when the file changes
}

type PropagationConfig struct {
	Model               string  `mapstructure:"model"`
	Gravity             string  `mapstructure:"gravity"`
	Workers             int     `mapstructure:"workers"`
	KeplerTolerance     float64 `mapstructure:"kepler_tolerance"`
	KeplerMaxIterations int     `mapstructure:"kepler_max_iterations"`
}

type CacheConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type APIConfig struct {
	MaxSamples  int           `mapstructure:"max_samples"`
	DefaultStep time.Duration `mapstructure:"default_step"`
	MaxPassDays int           `mapstructure:"max_pass_days"`
}

type StreamConfig struct {
	MaxConcurrentPerIP int           `mapstructure:"max_concurrent_per_ip"`
	MaxTotal           int           `mapstructure:"max_total"`
	MaxSamples         int           `mapstructure:"max_samples"`
	KeepaliveInterval  time.Duration `mapstructure:"keepalive_interval"`
}

type ValkeyConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Addr    string        `mapstructure:"addr"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load reads configuration. configFile may be empty to search for
// config.yaml in the working directory and ./configs.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		_ = v.ReadInConfig() // OK if missing
	}

	// Environment variables: SATTRACK_CATALOG_PATH → catalog.path
	v.SetEnvPrefix("SATTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")
	v.SetDefault("catalog.path", "./data/tle")
	v.SetDefault("catalog.reload_interval", time.Duration(0))
	v.SetDefault("catalog.watch", false)
	v.SetDefault("propagation.model", "secular")
	v.SetDefault("propagation.gravity", "wgs72")
	v.SetDefault("propagation.workers", 0)
	v.SetDefault("propagation.kepler_tolerance", 1e-8)
	v.SetDefault("propagation.kepler_max_iterations", 50)
	v.SetDefault("cache.capacity", 100000)
	v.SetDefault("api.max_samples", 20000)
	v.SetDefault("api.default_step", 30*time.Second)
	v.SetDefault("api.max_pass_days", 7)
	v.SetDefault("stream.max_concurrent_per_ip", 10)
	v.SetDefault("stream.max_total", 1000)
	v.SetDefault("stream.max_samples", 100000)
	v.SetDefault("stream.keepalive_interval", 30*time.Second)
	v.SetDefault("valkey.enabled", false)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.ttl", 10*time.Minute)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "sattrack")
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Auth.Enabled && c.Auth.Token == "" {
		errs = append(errs, "auth.token is required when auth is enabled")
	}
	if c.Catalog.Path == "" {
		errs = append(errs, "catalog.path is required")
	}
	if c.Catalog.ReloadInterval < 0 {
		errs = append(errs, "catalog.reload_interval must not be negative")
	}
	switch c.Propagation.Model {
	case "secular", "sgp4":
	default:
		errs = append(errs, fmt.Sprintf("propagation.model must be secular or sgp4, got %q", c.Propagation.Model))
	}
	switch strings.ToLower(c.Propagation.Gravity) {
	case "wgs72", "wgs84":
	default:
		errs = append(errs, fmt.Sprintf("propagation.gravity must be wgs72 or wgs84, got %q", c.Propagation.Gravity))
	}
	if c.Propagation.Workers < 0 {
		errs = append(errs, "propagation.workers must not be negative")
	}
	if c.Propagation.KeplerTolerance <= 0 {
		errs = append(errs, "propagation.kepler_tolerance must be positive")
	}
	if c.Propagation.KeplerMaxIterations <= 0 {
		errs = append(errs, "propagation.kepler_max_iterations must be positive")
	}
	if c.Cache.Capacity <= 0 {
		errs = append(errs, "cache.capacity must be positive")
	}
	if c.API.MaxSamples <= 0 {
		errs = append(errs, "api.max_samples must be positive")
	}
	if c.API.DefaultStep <= 0 {
		errs = append(errs, "api.default_step must be positive")
	}
	if c.API.MaxPassDays <= 0 {
		errs = append(errs, "api.max_pass_days must be positive")
	}
	if c.Stream.MaxConcurrentPerIP <= 0 {
		errs = append(errs, "stream.max_concurrent_per_ip must be positive")
	}
	if c.Stream.MaxTotal < c.Stream.MaxConcurrentPerIP {
		errs = append(errs, "stream.max_total must be at least stream.max_concurrent_per_ip")
	}
	if c.Stream.MaxSamples <= 0 {
		errs = append(errs, "stream.max_samples must be positive")
	}
	if c.Stream.KeepaliveInterval <= 0 {
		errs = append(errs, "stream.keepalive_interval must be positive")
	}
	if c.Valkey.Enabled && c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required when valkey is enabled")
	}
	if c.Valkey.TTL <= 0 {
		errs = append(errs, "valkey.ttl must be positive")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_ratio must be 0-1, got %g", c.Tracing.SampleRatio))
	}
	switch strings.ToLower(c.Tracing.Exporter) {
	case "stdout", "otlp", "otlpgrpc":
	default:
		errs = append(errs, fmt.Sprintf("tracing.exporter must be stdout or otlp, got %q", c.Tracing.Exporter))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
