package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/observability"
	"github.com/pricelens/backend/internal/registry"
	"github.com/rs/zerolog"
)

// Package-level compiled regex patterns for performance
var (
	nonAlphanumericRegex = regexp.MustCompile(`[^a-z0-9\s]`)
	multipleSpacesRegex  = regexp.MustCompile(`\s+`)
)

const maxCacheKeyLength = 200

// States of one lookup, recorded in the trace path
const (
	StateStart     = "START"
	StateExclusion = "EXCLUSION_CHECK"
	StateCache     = "CACHE_CHECK"
	StateSearch    = "SEARCH"
	StateValidate  = "VALIDATE"
	StateSelect    = "SELECT"
	StateResolve   = "RESOLVE_URL"
	StateCacheSave = "CACHE_WRITE"
	StateEstimate  = "ESTIMATE"
	StateReturn    = "RETURN"
)

// Outcomes, used as the requests_total label
const (
	OutcomeExcluded   = "excluded"
	OutcomeCacheHit   = "cache_hit"
	OutcomeDirect     = "direct"
	OutcomeUnverified = "unverified"
	OutcomeEstimated  = "estimated"
	OutcomeRecovered  = "recovered"
)

// Confidence multipliers per selection tier
var tierConfidence = map[string]float64{
	TierInBand:  1.0,
	TierLowest:  1.0,
	TierStretch: 0.9,
	TierGlobal:  0.75,
}

const (
	maxDirectConfidence     = 0.95
	maxUnverifiedConfidence = 0.5
)

// PriceEngineConfig holds configuration for the price engine
type PriceEngineConfig struct {
	DefaultTolerancePercent float64
}

// PriceEngine turns an item description into a validated price, source and URL
type PriceEngine struct {
	reg          *registry.Registry
	analyzer     *QueryAnalyzer
	builder      *StrategyBuilder
	orchestrator *SearchOrchestrator
	scorer       *CandidateScorer
	selector     *BandSelector
	resolver     *URLResolver
	estimator    *FallbackEstimator
	cache        domain.PriceCache
	metrics      *observability.Metrics
	log          zerolog.Logger
	tolerance    float64
}

// PriceEngineDeps are the collaborators of the engine; Cache and Metrics may be nil
type PriceEngineDeps struct {
	Registry     *registry.Registry
	Analyzer     *QueryAnalyzer
	Builder      *StrategyBuilder
	Orchestrator *SearchOrchestrator
	Scorer       *CandidateScorer
	Selector     *BandSelector
	Resolver     *URLResolver
	Estimator    *FallbackEstimator
	Cache        domain.PriceCache
	Metrics      *observability.Metrics
	Logger       zerolog.Logger
}

// NewPriceEngine creates a price engine with dependencies
func NewPriceEngine(deps PriceEngineDeps, cfg PriceEngineConfig) *PriceEngine {
	tolerance := cfg.DefaultTolerancePercent
	if tolerance <= 0 || tolerance > 100 {
		tolerance = 25
	}
	return &PriceEngine{
		reg:          deps.Registry,
		analyzer:     deps.Analyzer,
		builder:      deps.Builder,
		orchestrator: deps.Orchestrator,
		scorer:       deps.Scorer,
		selector:     deps.Selector,
		resolver:     deps.Resolver,
		estimator:    deps.Estimator,
		cache:        deps.Cache,
		metrics:      deps.Metrics,
		log:          deps.Logger,
		tolerance:    tolerance,
	}
}

// lookup carries the per-request state through the pipeline
type lookup struct {
	ctx    context.Context
	query  domain.ItemQuery
	key    string
	trace  domain.Trace
	logger zerolog.Logger
}

func (l *lookup) enter(state string) {
	l.trace.Path = append(l.trace.Path, state)
}

func (l *lookup) skip(label, reason string) {
	if l.trace.SkipReasons == nil {
		l.trace.SkipReasons = map[string]string{}
	}
	l.trace.SkipReasons[label] = reason
}

// FindBestPrice never fails: every dead end, including a panic, ends in an estimate.
// Flow: exclusion check -> cache -> search -> validate -> select -> resolve -> cache write
func (e *PriceEngine) FindBestPrice(ctx context.Context, req domain.PriceRequest) (result *domain.PriceResult) {
	start := time.Now()
	requestID := observability.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = observability.ContextWithRequestID(ctx, requestID)
	}

	l := &lookup{
		ctx:    ctx,
		query:  e.buildQuery(req),
		trace:  domain.Trace{RequestID: requestID},
		logger: observability.WithRequest(ctx, e.log),
	}
	l.enter(StateStart)
	outcome := OutcomeEstimated

	defer func() {
		if rec := recover(); rec != nil {
			l.logger.Error().Str("panic", fmt.Sprint(rec)).Str("query", req.Query).Msg("lookup recovered")
			l.enter(StateEstimate)
			result = e.estimator.Estimate(l.query, "internal error while searching")
			outcome = OutcomeRecovered
		}
		l.enter(StateReturn)
		l.trace.Elapsed = time.Since(start)
		if result.Trace.ValidationStrategy != "" && l.trace.ValidationStrategy == "" {
			l.trace.ValidationStrategy = result.Trace.ValidationStrategy
		}
		result.Trace = l.trace
		e.metrics.IncRequest(outcome)
		e.metrics.ObserveDuration(l.trace.Elapsed)
		l.logger.Info().
			Str("outcome", outcome).
			Bool("found", result.Found).
			Bool("estimated", result.IsEstimated).
			Float64("price", result.Price).
			Str("source", result.Source).
			Dur("elapsed", l.trace.Elapsed).
			Msg("price lookup finished")
	}()

	result, outcome = e.run(l)
	return result
}

func (e *PriceEngine) run(l *lookup) (*domain.PriceResult, string) {
	q := l.query

	l.enter(StateExclusion)
	if reason := e.reg.ExclusionReason(q.Text); reason != "" {
		return e.estimator.Excluded(q, reason), OutcomeExcluded
	}

	if isEmptyQuery(q.Text) {
		return e.estimate(l, "empty description"), OutcomeEstimated
	}

	l.enter(StateCache)
	l.key = CanonicalKey(q.Text)
	if res, ok := e.fromCache(l); ok {
		return res, OutcomeCacheHit
	}

	l.enter(StateSearch)
	if !e.orchestrator.Configured() {
		l.skip("search", domain.ErrConfigurationUnavailable.Error())
		return e.estimate(l, "shopping provider not configured"), OutcomeEstimated
	}

	strategies := e.builder.Build(q)
	cands, run, err := e.orchestrator.Run(l.ctx, q, strategies)
	l.trace.TermsUsed = run.Terms
	l.trace.StrategiesTried = run.Tried
	l.trace.StrategiesOK = run.Succeeded
	for name, reason := range run.Failures {
		l.skip("strategy "+name, reason)
	}
	if err != nil {
		return e.estimate(l, "shopping search unavailable"), OutcomeEstimated
	}
	if len(cands) == 0 {
		return e.estimate(l, "no shopping results"), OutcomeEstimated
	}

	l.enter(StateValidate)
	l.trace.CandidatesChecked = len(cands)
	accepted, skipped, err := e.scorer.Validate(q, cands)
	for label, reason := range skipped {
		l.skip(label, reason)
	}
	if errors.Is(err, domain.ErrNoQualifyingCandidate) {
		return e.estimate(l, "no qualifying candidate"), OutcomeEstimated
	}

	winner, tier, resolution, ok := e.selectAndResolve(l, accepted)
	if !ok {
		return e.estimate(l, "no candidate survived price selection"), OutcomeEstimated
	}

	result := e.buildResult(q, winner, tier, resolution)
	if !resolution.Direct {
		return result, OutcomeUnverified
	}

	l.enter(StateCacheSave)
	e.toCache(l, result)
	return result, OutcomeDirect
}

// selectAndResolve picks the winner and resolves its URL. A URL that belongs to
// another retailer comes with that retailer's price, so the listing replaces the
// winner in the pool and selection runs again; it only wins if it is still the
// cheapest choice. Each round swaps an unresolved offer for a direct listing, so
// the loop ends within len(pool)+1 rounds.
func (e *PriceEngine) selectAndResolve(l *lookup, pool []domain.Candidate) (*domain.Candidate, string, Resolution, bool) {
	q := l.query
	// step that found each listing; resolving the listing itself only re-reads its own link
	foundBy := map[*domain.Candidate]string{}
	for round := 0; round <= len(pool); round++ {
		l.enter(StateSelect)
		winner, tier, ok := e.selector.Select(q, pool)
		if !ok {
			return nil, "", Resolution{}, false
		}
		l.trace.SelectionTier = tier
		l.trace.ValidationStrategy = winner.Strategy

		l.enter(StateResolve)
		res := e.resolver.Resolve(l.ctx, q, winner)
		if step, ok := foundBy[winner]; ok && res.Step == StepOwnLink {
			res.Step = step
		}
		l.trace.ResolutionStep = res.Step
		if !res.Direct || res.Price <= 0 {
			return winner, tier, res, true
		}

		listing := listingCandidate(winner, res)
		l.logger.Debug().
			Str("offer_source", winner.Source).
			Str("listing_source", listing.Source).
			Float64("listing_price", listing.UnitPrice).
			Msg("direct url found on another retailer; reselecting")
		*winner = listing
		foundBy[winner] = res.Step
	}
	return nil, "", Resolution{}, false
}

// listingCandidate turns another retailer's direct listing into a candidate of its own
func listingCandidate(c *domain.Candidate, res Resolution) domain.Candidate {
	listing := *c
	listing.Offer = domain.Offer{
		Title:  c.Title,
		Price:  res.Price,
		Source: res.Source,
		Link:   res.URL,
	}
	if listing.Source == "" {
		listing.Source = c.Source
	}
	listing.UnitPrice = res.Price
	if c.PackSize > 1 && c.UnitPrice != c.Price {
		listing.UnitPrice = domain.RoundCents(res.Price / float64(c.PackSize))
	}
	listing.Matched = append([]string(nil), c.Matched...)
	listing.ListingOf = c.Source
	return listing
}

func (e *PriceEngine) estimate(l *lookup, reason string) *domain.PriceResult {
	l.enter(StateEstimate)
	return e.estimator.Estimate(l.query, reason)
}

// buildQuery applies defaults: no target when absent or non-positive, default tolerance when out of (0, 100]
func (e *PriceEngine) buildQuery(req domain.PriceRequest) domain.ItemQuery {
	text := strings.TrimSpace(req.Query)
	q := domain.ItemQuery{Text: text, TolerancePercent: e.tolerance}
	if req.TargetPrice != nil && *req.TargetPrice > 0 && !math.IsInf(*req.TargetPrice, 0) && !math.IsNaN(*req.TargetPrice) {
		q.TargetPrice = *req.TargetPrice
	}
	if req.TolerancePercent != nil && *req.TolerancePercent > 0 && *req.TolerancePercent <= 100 {
		q.TolerancePercent = *req.TolerancePercent
	}
	q.Attributes = e.analyzer.Analyze(text)
	return q
}

func (e *PriceEngine) buildResult(q domain.ItemQuery, c *domain.Candidate, tier string, res Resolution) *domain.PriceResult {
	source := c.Source
	if res.Source != "" {
		source = res.Source
	}
	listed, unit := c.Price, c.UnitPrice

	base := (0.5 + 0.45*c.Score) * tierConfidence[tier]
	result := &domain.PriceResult{
		Found:             true,
		Price:             domain.RoundCents(unit),
		Currency:          domain.Currency,
		Source:            source,
		Title:             c.Title,
		Category:          q.Attributes.Category,
		Subcategory:       q.Attributes.ProductType,
		MatchQuality:      matchQuality(q, c),
		MatchedAttributes: append([]string(nil), c.Matched...),
	}
	if c.PackSize > 1 && unit != listed {
		result.Notes = append(result.Notes, fmt.Sprintf("per-unit price of a %d-pack listed at $%.2f", c.PackSize, listed))
	}
	if c.ListingOf != "" && !strings.EqualFold(c.ListingOf, source) {
		result.Notes = append(result.Notes, fmt.Sprintf("price taken from %s listing", source))
	}
	if c.Adjacent {
		result.Notes = append(result.Notes, "sold through a marketplace seller")
	}
	if tier == TierStretch || tier == TierGlobal {
		result.Notes = append(result.Notes, "no listing inside the target price band")
	}

	url := res.URL
	result.URL = &url
	if res.Direct {
		result.Confidence = roundConfidence(math.Min(base, maxDirectConfidence))
		return result
	}

	result.IsEstimated = true
	result.MatchQuality = domain.MatchUnverified
	result.Confidence = roundConfidence(math.Min(base*0.6, maxUnverifiedConfidence))
	result.Notes = append(result.Notes, "direct product page not verified")
	return result
}

func (e *PriceEngine) fromCache(l *lookup) (*domain.PriceResult, bool) {
	if e.cache == nil {
		return nil, false
	}
	entry, tier, ok := e.cache.Lookup(l.ctx, l.key)
	if !ok || entry == nil {
		return nil, false
	}
	// an entry can outlive a registry change; only verified shapes are served
	if !entry.Found || entry.Price <= 0 || !e.reg.IsDirectProductURL(entry.URL) {
		l.logger.Warn().Str("key", l.key).Msg("ignoring stale cache entry")
		return nil, false
	}

	l.trace.CacheTier = tier
	url := entry.URL
	return &domain.PriceResult{
		Found:        true,
		Price:        entry.Price,
		Currency:     domain.Currency,
		Source:       entry.Source,
		URL:          &url,
		Title:        entry.Title,
		Category:     entry.Category,
		Subcategory:  l.query.Attributes.ProductType,
		IsEstimated:  false,
		MatchQuality: entry.MatchQuality,
		Confidence:   entry.Confidence,
		Notes:        []string{fmt.Sprintf("cached %s", entry.CachedAt.UTC().Format(time.RFC3339))},
	}, true
}

// toCache writes only found, non-estimated results with a verified direct URL
func (e *PriceEngine) toCache(l *lookup, r *domain.PriceResult) {
	if e.cache == nil || !r.Found || r.IsEstimated || !e.reg.IsDirectProductURL(r.URLString()) {
		return
	}
	e.cache.Store(l.ctx, l.key, domain.CacheEntry{
		Found:        true,
		Price:        r.Price,
		Source:       r.Source,
		URL:          r.URLString(),
		Title:        r.Title,
		Category:     r.Category,
		MatchQuality: r.MatchQuality,
		Confidence:   r.Confidence,
		CachedAt:     time.Now(),
	})
}

// CanonicalKey normalizes a query for use as cache key: lowercased,
// punctuation stripped, whitespace collapsed, length capped.
func CanonicalKey(text string) string {
	result := strings.ToLower(text)
	result = nonAlphanumericRegex.ReplaceAllString(result, " ")
	result = multipleSpacesRegex.ReplaceAllString(result, " ")
	result = strings.TrimSpace(result)
	if len(result) > maxCacheKeyLength {
		result = strings.TrimSpace(result[:maxCacheKeyLength])
	}
	return result
}

func roundConfidence(c float64) float64 {
	return math.Round(c*100) / 100
}
