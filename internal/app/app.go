// Package app wires configuration into a ready price engine for the server and CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/pricelens/backend/config"
	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/infrastructure/cache"
	"github.com/pricelens/backend/internal/infrastructure/fetch"
	"github.com/pricelens/backend/internal/infrastructure/shopping"
	"github.com/pricelens/backend/internal/observability"
	"github.com/pricelens/backend/internal/registry"
	"github.com/pricelens/backend/internal/retry"
	"github.com/pricelens/backend/internal/usecase"
	"github.com/rs/zerolog"
)

// App holds the engine and the resources that must be released on shutdown
type App struct {
	Engine   *usecase.PriceEngine
	Metrics  *observability.Metrics
	Registry *registry.Registry

	closers []func() error
}

// New builds every collaborator from cfg. A missing shopping API key is not
// an error; the engine then answers with estimates.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	reg, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}

	a := &App{
		Metrics:  observability.NewMetrics(),
		Registry: reg,
	}

	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		Jitter:      cfg.Retry.Jitter,
	}

	var provider domain.ShoppingProvider
	if cfg.Shopping.APIKey != "" {
		provider = shopping.NewClient(shopping.Config{
			APIKey:        cfg.Shopping.APIKey,
			BaseURL:       cfg.Shopping.BaseURL,
			Country:       cfg.Shopping.Country,
			Language:      cfg.Shopping.Language,
			Location:      cfg.Shopping.Location,
			PageSize:      cfg.Shopping.PageSize,
			RatePerSecond: cfg.Shopping.RatePerSecond,
			Burst:         cfg.Shopping.Burst,
			Timeout:       cfg.Search.SlowTimeout,
			Retry:         policy,
		}, logger)
	} else {
		logger.Warn().Msg("shopping api key not configured; lookups will return estimates")
	}

	fetcher := fetch.NewCatalogFetcher(fetch.Config{
		UserAgent:    cfg.Resolver.UserAgent,
		Timeout:      cfg.Resolver.FetchTimeout,
		MaxBodyBytes: cfg.Resolver.MaxBodyBytes,
	}, logger)

	priceCache, err := a.buildCache(cfg, logger)
	if err != nil {
		return nil, err
	}

	analyzer := usecase.NewQueryAnalyzer(reg)
	trust := usecase.NewTrustFilter(reg)

	a.Engine = usecase.NewPriceEngine(usecase.PriceEngineDeps{
		Registry: reg,
		Analyzer: analyzer,
		Builder:  usecase.NewStrategyBuilder(reg, cfg.Search.MaxStrategies),
		Orchestrator: usecase.NewSearchOrchestrator(provider, reg.NegativeSites, usecase.OrchestratorConfig{
			FastTimeout:   cfg.Search.FastTimeout,
			MediumTimeout: cfg.Search.MediumTimeout,
			SlowTimeout:   cfg.Search.SlowTimeout,
			Country:       cfg.Shopping.Country,
			Language:      cfg.Shopping.Language,
			Location:      cfg.Shopping.Location,
		}, a.Metrics, logger),
		Scorer:   usecase.NewCandidateScorer(analyzer, trust, usecase.ScorerConfig{MinScore: cfg.Search.MinScore}, logger),
		Selector: usecase.NewBandSelector(cfg.Search.StretchFactor),
		Resolver: usecase.NewURLResolver(reg, provider, fetcher, usecase.ResolverConfig{
			RaceTimeout:    cfg.Resolver.RaceTimeout,
			MaxRaceDomains: cfg.Resolver.MaxRaceDomains,
		}, a.Metrics, logger),
		Estimator: usecase.NewFallbackEstimator(reg),
		Cache:     priceCache,
		Metrics:   a.Metrics,
		Logger:    logger,
	}, usecase.PriceEngineConfig{
		DefaultTolerancePercent: cfg.Search.DefaultTolerancePercent,
	})

	return a, nil
}

func (a *App) buildCache(cfg *config.Config, logger zerolog.Logger) (*cache.TieredCache, error) {
	memory := cache.NewMemoryCache(cfg.Cache.MemorySize, cfg.Cache.TTL)
	if cfg.Cache.Type != "redis" {
		return cache.NewTieredCache(memory, nil, cfg.Cache.TTL, a.Metrics, logger), nil
	}

	shared, err := cache.NewRedisCache(cache.RedisConfig{
		URL:         cfg.Cache.RedisURL,
		Prefix:      cfg.Cache.KeyPrefix,
		DialTimeout: 2 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shared.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := shared.Ping(ctx); err != nil {
		// the tier degrades to misses until redis comes back
		logger.Warn().Err(err).Msg("redis unreachable at startup")
	}
	return cache.NewTieredCache(memory, shared, cfg.Cache.TTL, a.Metrics, logger), nil
}

// Close releases external connections
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
