package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Shopping ShoppingConfig `mapstructure:"shopping"`
	Search   SearchConfig   `mapstructure:"search"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Registry RegistryConfig `mapstructure:"registry"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ShoppingConfig holds shopping-search provider configuration.
// An empty APIKey is allowed; lookups then fall back to estimates.
type ShoppingConfig struct {
	APIKey        string  `mapstructure:"api_key"`
	BaseURL       string  `mapstructure:"base_url"`
	Country       string  `mapstructure:"country"`
	Language      string  `mapstructure:"language"`
	Location      string  `mapstructure:"location"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
	PageSize      int     `mapstructure:"page_size"`
}

// SearchConfig holds strategy fan-out and selection settings
type SearchConfig struct {
	MaxStrategies           int           `mapstructure:"max_strategies"`
	DefaultTolerancePercent float64       `mapstructure:"default_tolerance_percent"`
	FastTimeout             time.Duration `mapstructure:"fast_timeout"`
	MediumTimeout           time.Duration `mapstructure:"medium_timeout"`
	SlowTimeout             time.Duration `mapstructure:"slow_timeout"`
	MinScore                float64       `mapstructure:"min_score"`
	StretchFactor           float64       `mapstructure:"stretch_factor"`
}

// RetryConfig holds the outbound retry policy
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Jitter      float64       `mapstructure:"jitter"`
}

// ResolverConfig holds direct-URL resolution settings
type ResolverConfig struct {
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	MaxBodyBytes   int           `mapstructure:"max_body_bytes"`
	RaceTimeout    time.Duration `mapstructure:"race_timeout"`
	MaxRaceDomains int           `mapstructure:"max_race_domains"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type       string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL   string        `mapstructure:"redis_url"`
	TTL        time.Duration `mapstructure:"ttl"`
	MemorySize int           `mapstructure:"memory_size"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RegistryConfig points at an optional YAML file extending the embedded tables
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pricelens/")

	// Environment variable settings
	v.SetEnvPrefix("PRICELENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Shopping provider defaults
	v.SetDefault("shopping.api_key", "")
	v.SetDefault("shopping.base_url", "https://serpapi.com")
	v.SetDefault("shopping.country", "us")
	v.SetDefault("shopping.language", "en")
	v.SetDefault("shopping.location", "United States")
	v.SetDefault("shopping.rate_per_second", 5)
	v.SetDefault("shopping.burst", 10)
	v.SetDefault("shopping.page_size", 40)

	// Search defaults
	v.SetDefault("search.max_strategies", 8)
	v.SetDefault("search.default_tolerance_percent", 25)
	v.SetDefault("search.fast_timeout", "8s")
	v.SetDefault("search.medium_timeout", "12s")
	v.SetDefault("search.slow_timeout", "15s")
	v.SetDefault("search.min_score", 0.3)
	v.SetDefault("search.stretch_factor", 1.35)

	// Retry defaults
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "250ms")
	v.SetDefault("retry.max_delay", "2s")
	v.SetDefault("retry.jitter", 0.2)

	// Resolver defaults
	v.SetDefault("resolver.fetch_timeout", "6s")
	v.SetDefault("resolver.max_body_bytes", 2<<20)
	v.SetDefault("resolver.race_timeout", "10s")
	v.SetDefault("resolver.max_race_domains", 3)
	v.SetDefault("resolver.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "12h")
	v.SetDefault("cache.memory_size", 1000)
	v.SetDefault("cache.key_prefix", "pricelens:")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("registry.path", "")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache type is 'redis'")
	}

	if config.Search.DefaultTolerancePercent <= 0 || config.Search.DefaultTolerancePercent > 100 {
		return fmt.Errorf("default tolerance percent must be in (0, 100], got: %v", config.Search.DefaultTolerancePercent)
	}

	timeouts := []struct {
		name  string
		value time.Duration
	}{
		{"search.fast_timeout", config.Search.FastTimeout},
		{"search.medium_timeout", config.Search.MediumTimeout},
		{"search.slow_timeout", config.Search.SlowTimeout},
		{"resolver.fetch_timeout", config.Resolver.FetchTimeout},
		{"resolver.race_timeout", config.Resolver.RaceTimeout},
		{"cache.ttl", config.Cache.TTL},
	}
	for _, t := range timeouts {
		if t.value <= 0 {
			return fmt.Errorf("%s must be positive, got: %v", t.name, t.value)
		}
	}

	if config.Retry.MaxAttempts < 1 || config.Retry.MaxAttempts > 3 {
		return fmt.Errorf("retry max attempts must be between 1 and 3, got: %d", config.Retry.MaxAttempts)
	}

	return nil
}
