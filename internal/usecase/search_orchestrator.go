package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/observability"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// OrchestratorConfig holds per-tier timeouts, locale and concurrency for provider calls
type OrchestratorConfig struct {
	FastTimeout   time.Duration
	MediumTimeout time.Duration
	SlowTimeout   time.Duration
	Country       string
	Language      string
	Location      string
	// MaxConcurrency of 0 runs every strategy at once
	MaxConcurrency int
}

// SearchRun summarises one fan-out
type SearchRun struct {
	Tried     int
	Succeeded int
	Terms     []string
	// Failures maps strategy name to the error that dropped it
	Failures map[string]string
}

// SearchOrchestrator runs strategies concurrently against the shopping provider
type SearchOrchestrator struct {
	provider      domain.ShoppingProvider
	negativeSites []string
	cfg           OrchestratorConfig
	metrics       *observability.Metrics
	log           zerolog.Logger
}

// NewSearchOrchestrator creates an orchestrator; a nil provider means no credential is configured
func NewSearchOrchestrator(
	provider domain.ShoppingProvider,
	negativeSites []string,
	cfg OrchestratorConfig,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *SearchOrchestrator {
	if cfg.FastTimeout <= 0 {
		cfg.FastTimeout = 8 * time.Second
	}
	if cfg.MediumTimeout <= 0 {
		cfg.MediumTimeout = 12 * time.Second
	}
	if cfg.SlowTimeout <= 0 {
		cfg.SlowTimeout = 15 * time.Second
	}
	return &SearchOrchestrator{
		provider:      provider,
		negativeSites: negativeSites,
		cfg:           cfg,
		metrics:       metrics,
		log:           logger,
	}
}

// Configured reports whether a provider credential is available
func (o *SearchOrchestrator) Configured() bool {
	return o != nil && o.provider != nil
}

// Timeout returns the per-call timeout for a tier
func (o *SearchOrchestrator) Timeout(tier domain.TimeoutTier) time.Duration {
	switch tier {
	case domain.TierFast:
		return o.cfg.FastTimeout
	case domain.TierSlow:
		return o.cfg.SlowTimeout
	default:
		return o.cfg.MediumTimeout
	}
}

// Run issues one provider call per strategy and merges the surviving results,
// de-duplicated by (title, source, price) in strategy priority order.
// A failed strategy is dropped; Run itself only fails when no credential is configured.
func (o *SearchOrchestrator) Run(ctx context.Context, q domain.ItemQuery, strategies []domain.SearchStrategy) ([]domain.Candidate, SearchRun, error) {
	run := SearchRun{Failures: map[string]string{}}
	if !o.Configured() {
		return nil, run, domain.ErrConfigurationUnavailable
	}

	logger := observability.WithRequest(ctx, o.log)
	results := make([][]domain.Offer, len(strategies))
	var mu sync.Mutex

	// Strategies never fail the group; each one is contained on its own
	var g errgroup.Group
	if o.cfg.MaxConcurrency > 0 {
		g.SetLimit(o.cfg.MaxConcurrency)
	}

	for i, s := range strategies {
		run.Tried++
		run.Terms = append(run.Terms, s.Query)
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, o.Timeout(s.Tier))
			defer cancel()

			offers, err := o.search(callCtx, q, s)
			if err != nil {
				status := errorStatus(err)
				o.metrics.IncProviderCall(s.Name, status)
				logger.Warn().Err(err).Str("strategy", s.Name).Str("query", s.Query).Msg("strategy dropped")
				mu.Lock()
				run.Failures[s.Name] = err.Error()
				mu.Unlock()
				return nil
			}

			o.metrics.IncProviderCall(s.Name, "ok")
			logger.Debug().Str("strategy", s.Name).Int("offers", len(offers)).Msg("strategy returned")
			results[i] = offers
			mu.Lock()
			run.Succeeded++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var merged []domain.Candidate
	seen := map[string]bool{}
	for i, offers := range results {
		for _, offer := range offers {
			key := dedupeKey(offer)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, domain.Candidate{
				Offer:     offer,
				Strategy:  strategies[i].Name,
				Direction: strategies[i].Direction,
			})
		}
	}

	return merged, run, nil
}

// search contains a provider panic to the one strategy that raised it
func (o *SearchOrchestrator) search(ctx context.Context, q domain.ItemQuery, s domain.SearchStrategy) (offers []domain.Offer, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			offers, err = nil, fmt.Errorf("%w: provider panic: %v", domain.ErrProviderFailure, rec)
		}
	}()
	return o.provider.Search(ctx, o.shoppingQuery(q, s))
}

func (o *SearchOrchestrator) shoppingQuery(q domain.ItemQuery, s domain.SearchStrategy) domain.ShoppingQuery {
	sq := domain.ShoppingQuery{
		Text:         s.Query,
		ExcludeSites: o.negativeSites,
		Country:      o.cfg.Country,
		Language:     o.cfg.Language,
		Location:     o.cfg.Location,
	}
	if q.HasTarget() {
		low, high := Band(q)
		sq.MinPrice = math.Floor(low)
		sq.MaxPrice = math.Ceil(high)
	}
	return sq
}

func dedupeKey(o domain.Offer) string {
	return fmt.Sprintf("%s|%s|%.2f", normalizeText(o.Title), strings.ToLower(strings.TrimSpace(o.Source)), o.Price)
}

// errorStatus maps an error to a metric label
func errorStatus(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrNetworkTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrParseFailure):
		return "parse_error"
	default:
		return "error"
	}
}
