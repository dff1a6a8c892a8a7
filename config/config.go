// Package config loads tradesim settings from a .env file, an optional
// YAML config file and TRADESIM_-prefixed environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	// Strategy and account
	Capital    float64 `mapstructure:"capital"`
	SMAPeriod  int     `mapstructure:"sma_period"`
	Average    string  `mapstructure:"average"` // SMA or EMA
	Commission float64 `mapstructure:"commission"`

	// History window
	Days     int    `mapstructure:"days"`
	Interval string `mapstructure:"interval"` // multiplier:timespan
	Timezone string `mapstructure:"timezone"`

	// Storage
	SQLitePath  string `mapstructure:"sqlite_path"`
	JournalPath string `mapstructure:"journal_path"`
	CacheDir    string `mapstructure:"cache_dir"`

	// Redis bar cache; empty address disables it
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisTTL      time.Duration `mapstructure:"redis_ttl"`

	// Market data provider
	PolygonAPIKey  string `mapstructure:"polygon_api_key"`
	PolygonBaseURL string `mapstructure:"polygon_base_url"`

	// Runtime
	MetricsAddr string `mapstructure:"metrics_addr"` // empty disables the server
	LogLevel    string `mapstructure:"log_level"`
	Concurrency int    `mapstructure:"concurrency"`
}

// Load reads configuration. envFile and configPath may be empty; a missing
// .env file is not an error.
func Load(envFile, configPath string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("tradesim")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("TRADESIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("capital", 1000.0)
	v.SetDefault("sma_period", 9)
	v.SetDefault("average", "SMA")
	v.SetDefault("commission", 0.01)

	v.SetDefault("days", 15)
	v.SetDefault("interval", "1:minute")
	v.SetDefault("timezone", "America/New_York")

	v.SetDefault("sqlite_path", "data/bars.db")
	v.SetDefault("journal_path", "data/trades.db")
	v.SetDefault("cache_dir", "backtest_cache")

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_ttl", 24*time.Hour)

	v.SetDefault("polygon_api_key", "")
	v.SetDefault("polygon_base_url", "https://api.polygon.io/v2")

	v.SetDefault("metrics_addr", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("concurrency", 4)
}

// overrideFromEnv honours the provider's conventional unprefixed variable.
func overrideFromEnv(cfg *Config) {
	if cfg.PolygonAPIKey == "" {
		cfg.PolygonAPIKey = os.Getenv("POLYGON_API_KEY")
	}
}

// Validate rejects settings no run could use.
func (c *Config) Validate() error {
	var errs []error
	if c.Capital <= 0 {
		errs = append(errs, fmt.Errorf("capital must be positive, got %v", c.Capital))
	}
	if c.SMAPeriod <= 0 {
		errs = append(errs, fmt.Errorf("sma_period must be positive, got %d", c.SMAPeriod))
	}
	if c.Commission < 0 {
		errs = append(errs, fmt.Errorf("commission must not be negative, got %v", c.Commission))
	}
	if c.Days <= 0 {
		errs = append(errs, fmt.Errorf("days must be positive, got %d", c.Days))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("concurrency must be positive, got %d", c.Concurrency))
	}
	switch strings.ToUpper(c.Average) {
	case "SMA", "EMA":
	default:
		errs = append(errs, fmt.Errorf("average must be SMA or EMA, got %q", c.Average))
	}
	return errors.Join(errs...)
}
