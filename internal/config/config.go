// Package config loads econdash settings from a YAML file, ECONDASH_*
// environment variables and built-in defaults, in that order of precedence
// (environment first).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"econdash/internal/model"
)

const EnvPrefix = "ECONDASH"

type Config struct {
	Upstream UpstreamConfig `mapstructure:"upstream" yaml:"upstream"`
	Store    StoreConfig    `mapstructure:"store"    yaml:"store"`
	Catalog  CatalogConfig  `mapstructure:"catalog"  yaml:"catalog"`
	Forecast ForecastConfig `mapstructure:"forecast" yaml:"forecast"`
	API      APIConfig      `mapstructure:"api"      yaml:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
}

type UpstreamConfig struct {
	BaseURL         string        `mapstructure:"base_url"           yaml:"base_url"`
	PerPage         int           `mapstructure:"per_page"           yaml:"per_page"`
	Timeout         time.Duration `mapstructure:"timeout"            yaml:"timeout"`
	UserAgent       string        `mapstructure:"user_agent"         yaml:"user_agent"`
	RateLimitPerSec float64       `mapstructure:"rate_limit_per_sec" yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"   yaml:"rate_limit_burst"`
	FetchDeadline   time.Duration `mapstructure:"fetch_deadline"     yaml:"fetch_deadline"` // 0 disables
}

type StoreConfig struct {
	Path     string        `mapstructure:"path"      yaml:"path"` // empty disables persistence
	MemoSize int           `mapstructure:"memo_size" yaml:"memo_size"`
	MemoTTL  time.Duration `mapstructure:"memo_ttl"  yaml:"memo_ttl"`
}

type CatalogConfig struct {
	TTL             time.Duration `mapstructure:"ttl"              yaml:"ttl"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval"`
	RefreshOnStart  bool          `mapstructure:"refresh_on_start" yaml:"refresh_on_start"`
}

type ForecastConfig struct {
	Enabled      bool   `mapstructure:"enabled"       yaml:"enabled"`
	DefaultOrder string `mapstructure:"default_order" yaml:"default_order"`
	MinPoints    int    `mapstructure:"min_points"    yaml:"min_points"`
}

type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text or json
}

// Addr is the listen address for the HTTP server.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Order parses DefaultOrder.
func (c ForecastConfig) Order() (model.Order, error) {
	return model.ParseOrder(c.DefaultOrder)
}

// Load reads econdash.yaml from ./config, ~/.econdash or /etc/econdash if present.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("econdash")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.econdash")
	v.AddConfigPath("/etc/econdash")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("upstream.base_url", "http://api.worldbank.org/v2")
	v.SetDefault("upstream.per_page", 1000)
	v.SetDefault("upstream.timeout", 10*time.Second)
	v.SetDefault("upstream.user_agent", "econdash/1.0")
	v.SetDefault("upstream.rate_limit_per_sec", 5.0)
	v.SetDefault("upstream.rate_limit_burst", 5)
	v.SetDefault("upstream.fetch_deadline", time.Duration(0))

	v.SetDefault("store.path", "econdash.db")
	v.SetDefault("store.memo_size", 256)
	v.SetDefault("store.memo_ttl", 10*time.Minute)

	v.SetDefault("catalog.ttl", time.Hour)
	v.SetDefault("catalog.refresh_interval", time.Duration(0))
	v.SetDefault("catalog.refresh_on_start", true)

	v.SetDefault("forecast.enabled", true)
	v.SetDefault("forecast.default_order", "1,1,1")
	v.SetDefault("forecast.min_points", 10)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8000)
	v.SetDefault("api.cors_origins", []string{"*"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		errs = append(errs, errors.New("upstream.base_url is required"))
	}
	if c.Upstream.PerPage <= 0 {
		errs = append(errs, fmt.Errorf("upstream.per_page must be positive, got %d", c.Upstream.PerPage))
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("upstream.timeout must be positive, got %s", c.Upstream.Timeout))
	}
	if c.Upstream.FetchDeadline < 0 {
		errs = append(errs, fmt.Errorf("upstream.fetch_deadline must not be negative, got %s", c.Upstream.FetchDeadline))
	}
	if c.Catalog.TTL <= 0 {
		errs = append(errs, fmt.Errorf("catalog.ttl must be positive, got %s", c.Catalog.TTL))
	}
	if _, err := c.Forecast.Order(); err != nil {
		errs = append(errs, fmt.Errorf("forecast.default_order: %w", err))
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port out of range: %d", c.API.Port))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}
