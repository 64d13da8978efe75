package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("loads with defaults when no env vars set", func(t *testing.T) {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		// Check defaults
		if cfg.Server.Port != "8080" {
			t.Errorf("Server.Port = %s, want 8080", cfg.Server.Port)
		}
		if cfg.Server.Environment != "development" {
			t.Errorf("Server.Environment = %s, want development", cfg.Server.Environment)
		}
		if cfg.Shopping.APIKey != "" {
			t.Errorf("Shopping.APIKey = %s, want empty", cfg.Shopping.APIKey)
		}
		if cfg.Shopping.BaseURL != "https://serpapi.com" {
			t.Errorf("Shopping.BaseURL = %s, want https://serpapi.com", cfg.Shopping.BaseURL)
		}
		if cfg.Shopping.Location != "United States" {
			t.Errorf("Shopping.Location = %s, want United States", cfg.Shopping.Location)
		}
		if cfg.Shopping.RatePerSecond != 5 || cfg.Shopping.Burst != 10 || cfg.Shopping.PageSize != 40 {
			t.Errorf("Shopping limits = %v/%d/%d, want 5/10/40", cfg.Shopping.RatePerSecond, cfg.Shopping.Burst, cfg.Shopping.PageSize)
		}
		if cfg.Search.MaxStrategies != 8 {
			t.Errorf("Search.MaxStrategies = %d, want 8", cfg.Search.MaxStrategies)
		}
		if cfg.Search.DefaultTolerancePercent != 25 {
			t.Errorf("Search.DefaultTolerancePercent = %v, want 25", cfg.Search.DefaultTolerancePercent)
		}
		if cfg.Search.FastTimeout != 8*time.Second || cfg.Search.MediumTimeout != 12*time.Second || cfg.Search.SlowTimeout != 15*time.Second {
			t.Errorf("Search timeouts = %v/%v/%v, want 8s/12s/15s", cfg.Search.FastTimeout, cfg.Search.MediumTimeout, cfg.Search.SlowTimeout)
		}
		if cfg.Search.StretchFactor != 1.35 {
			t.Errorf("Search.StretchFactor = %v, want 1.35", cfg.Search.StretchFactor)
		}
		if cfg.Retry.MaxAttempts != 3 || cfg.Retry.BaseDelay != 250*time.Millisecond || cfg.Retry.MaxDelay != 2*time.Second {
			t.Errorf("Retry = %+v, want 3 attempts 250ms..2s", cfg.Retry)
		}
		if cfg.Resolver.MaxBodyBytes != 2<<20 {
			t.Errorf("Resolver.MaxBodyBytes = %d, want %d", cfg.Resolver.MaxBodyBytes, 2<<20)
		}
		if !strings.HasPrefix(cfg.Resolver.UserAgent, "Mozilla/5.0") {
			t.Errorf("Resolver.UserAgent = %s, want a browser-like agent", cfg.Resolver.UserAgent)
		}
		if cfg.Cache.Type != "memory" {
			t.Errorf("Cache.Type = %s, want memory", cfg.Cache.Type)
		}
		if cfg.Cache.TTL != 12*time.Hour {
			t.Errorf("Cache.TTL = %v, want 12h", cfg.Cache.TTL)
		}
		if cfg.Cache.MemorySize != 1000 {
			t.Errorf("Cache.MemorySize = %d, want 1000", cfg.Cache.MemorySize)
		}
		if cfg.Cache.KeyPrefix != "pricelens:" {
			t.Errorf("Cache.KeyPrefix = %s, want pricelens:", cfg.Cache.KeyPrefix)
		}
		if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
			t.Errorf("Logging = %+v, want info/json", cfg.Logging)
		}
	})

	t.Run("loads custom values from environment variables", func(t *testing.T) {
		t.Setenv("PRICELENS_SERVER_PORT", "9090")
		t.Setenv("PRICELENS_SERVER_ENVIRONMENT", "production")
		t.Setenv("PRICELENS_SHOPPING_API_KEY", "custom-api-key")
		t.Setenv("PRICELENS_SHOPPING_BASE_URL", "https://custom.api.com")
		t.Setenv("PRICELENS_SEARCH_DEFAULT_TOLERANCE_PERCENT", "15")
		t.Setenv("PRICELENS_SEARCH_FAST_TIMEOUT", "3s")
		t.Setenv("PRICELENS_RETRY_MAX_ATTEMPTS", "2")
		t.Setenv("PRICELENS_CACHE_TYPE", "redis")
		t.Setenv("PRICELENS_CACHE_REDIS_URL", "redis://localhost:6379")
		t.Setenv("PRICELENS_CACHE_TTL", "24h")
		t.Setenv("PRICELENS_LOGGING_FORMAT", "console")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		if cfg.Server.Port != "9090" {
			t.Errorf("Server.Port = %s, want 9090", cfg.Server.Port)
		}
		if cfg.Server.Environment != "production" {
			t.Errorf("Server.Environment = %s, want production", cfg.Server.Environment)
		}
		if cfg.Shopping.APIKey != "custom-api-key" {
			t.Errorf("Shopping.APIKey = %s, want custom-api-key", cfg.Shopping.APIKey)
		}
		if cfg.Shopping.BaseURL != "https://custom.api.com" {
			t.Errorf("Shopping.BaseURL = %s, want https://custom.api.com", cfg.Shopping.BaseURL)
		}
		if cfg.Search.DefaultTolerancePercent != 15 {
			t.Errorf("Search.DefaultTolerancePercent = %v, want 15", cfg.Search.DefaultTolerancePercent)
		}
		if cfg.Search.FastTimeout != 3*time.Second {
			t.Errorf("Search.FastTimeout = %v, want 3s", cfg.Search.FastTimeout)
		}
		if cfg.Retry.MaxAttempts != 2 {
			t.Errorf("Retry.MaxAttempts = %d, want 2", cfg.Retry.MaxAttempts)
		}
		if cfg.Cache.Type != "redis" {
			t.Errorf("Cache.Type = %s, want redis", cfg.Cache.Type)
		}
		if cfg.Cache.RedisURL != "redis://localhost:6379" {
			t.Errorf("Cache.RedisURL = %s, want redis://localhost:6379", cfg.Cache.RedisURL)
		}
		if cfg.Cache.TTL != 24*time.Hour {
			t.Errorf("Cache.TTL = %v, want 24h", cfg.Cache.TTL)
		}
		if cfg.Logging.Format != "console" {
			t.Errorf("Logging.Format = %s, want console", cfg.Logging.Format)
		}
	})

	t.Run("reads a config file from the working directory", func(t *testing.T) {
		originalDir, _ := os.Getwd()
		defer os.Chdir(originalDir)

		tempDir := t.TempDir()
		os.Chdir(tempDir)

		content := `
shopping:
  country: ca
  language: fr
search:
  max_strategies: 5
registry:
  path: /etc/pricelens/registry.yaml
`
		if err := os.WriteFile("config.yaml", []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create test config file: %v", err)
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}
		if cfg.Shopping.Country != "ca" || cfg.Shopping.Language != "fr" {
			t.Errorf("Shopping locale = %s/%s, want ca/fr", cfg.Shopping.Country, cfg.Shopping.Language)
		}
		if cfg.Search.MaxStrategies != 5 {
			t.Errorf("Search.MaxStrategies = %d, want 5", cfg.Search.MaxStrategies)
		}
		if cfg.Registry.Path != "/etc/pricelens/registry.yaml" {
			t.Errorf("Registry.Path = %s", cfg.Registry.Path)
		}
		// untouched keys keep their defaults
		if cfg.Cache.Type != "memory" {
			t.Errorf("Cache.Type = %s, want memory", cfg.Cache.Type)
		}
	})

	t.Run("fails validation for invalid cache type", func(t *testing.T) {
		t.Setenv("PRICELENS_CACHE_TYPE", "invalid")

		_, err := Load()
		if err == nil {
			t.Error("Load() error = nil, want error for invalid cache type")
		}
	})

	t.Run("fails validation when redis URL missing for redis cache", func(t *testing.T) {
		t.Setenv("PRICELENS_CACHE_TYPE", "redis")

		_, err := Load()
		if err == nil {
			t.Error("Load() error = nil, want error for missing Redis URL")
		}
		if err != nil && err.Error() != "invalid configuration: Redis URL is required when cache type is 'redis'" {
			t.Errorf("Load() error = %v", err)
		}
	})
}

func validConfig() *Config {
	return &Config{
		Search: SearchConfig{
			DefaultTolerancePercent: 25,
			FastTimeout:             8 * time.Second,
			MediumTimeout:           12 * time.Second,
			SlowTimeout:             15 * time.Second,
		},
		Retry:    RetryConfig{MaxAttempts: 3},
		Resolver: ResolverConfig{FetchTimeout: 6 * time.Second, RaceTimeout: 10 * time.Second},
		Cache:    CacheConfig{Type: "memory", TTL: 12 * time.Hour},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing api key is allowed", mutate: func(c *Config) { c.Shopping.APIKey = "" }},
		{name: "invalid cache type", mutate: func(c *Config) { c.Cache.Type = "memcached" }, wantErr: "cache type"},
		{name: "redis without url", mutate: func(c *Config) { c.Cache.Type = "redis" }, wantErr: "Redis URL"},
		{name: "redis with url", mutate: func(c *Config) { c.Cache.Type = "redis"; c.Cache.RedisURL = "redis://r:6379" }},
		{name: "zero tolerance", mutate: func(c *Config) { c.Search.DefaultTolerancePercent = 0 }, wantErr: "tolerance"},
		{name: "tolerance over 100", mutate: func(c *Config) { c.Search.DefaultTolerancePercent = 101 }, wantErr: "tolerance"},
		{name: "tolerance of 100", mutate: func(c *Config) { c.Search.DefaultTolerancePercent = 100 }},
		{name: "zero slow timeout", mutate: func(c *Config) { c.Search.SlowTimeout = 0 }, wantErr: "search.slow_timeout"},
		{name: "negative fetch timeout", mutate: func(c *Config) { c.Resolver.FetchTimeout = -time.Second }, wantErr: "resolver.fetch_timeout"},
		{name: "zero retry attempts", mutate: func(c *Config) { c.Retry.MaxAttempts = 0 }, wantErr: "retry"},
		{name: "too many retry attempts", mutate: func(c *Config) { c.Retry.MaxAttempts = 4 }, wantErr: "retry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}
