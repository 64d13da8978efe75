package usecase

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/observability"
	"github.com/pricelens/backend/internal/registry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Resolution steps, in the order they are tried
const (
	StepOwnLink        = "own_link"
	StepMerchantLink   = "merchant_link"
	StepProductSellers = "product_sellers"
	StepSiteSearch     = "site_search"
	StepRewrite        = "path_rewrite"
	StepPageFetch      = "page_fetch"
	StepUnresolved     = "unresolved"
)

const genericSearchURL = "https://www.google.com/search?tbm=shop&q="

// GenericSearchURL returns a marketplace search URL for text; it is never a direct product URL
func GenericSearchURL(text string) string {
	return genericSearchURL + url.QueryEscape(strings.TrimSpace(text))
}

// Resolution is the outcome of direct URL resolution
type Resolution struct {
	URL    string
	Direct bool
	Step   string
	// Source is the seller behind URL when it differs from the candidate source
	Source string
	// Price is the listing price seen for URL when it belongs to another retailer;
	// zero keeps the candidate's own price
	Price float64
}

// ResolverConfig bounds the race and the number of pages fetched
type ResolverConfig struct {
	RaceTimeout    time.Duration
	MaxRaceDomains int
	MaxPageFetches int
}

// URLResolver upgrades catalog/aggregator links into direct product-page URLs
type URLResolver struct {
	reg      *registry.Registry
	trust    *TrustFilter
	provider domain.ShoppingProvider
	fetcher  domain.PageFetcher
	cfg      ResolverConfig
	metrics  *observability.Metrics
	log      zerolog.Logger
}

// NewURLResolver creates a resolver. provider and fetcher may be nil, which skips the steps that need them.
func NewURLResolver(
	reg *registry.Registry,
	provider domain.ShoppingProvider,
	fetcher domain.PageFetcher,
	cfg ResolverConfig,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *URLResolver {
	if cfg.RaceTimeout <= 0 {
		cfg.RaceTimeout = 10 * time.Second
	}
	if cfg.MaxRaceDomains <= 0 {
		cfg.MaxRaceDomains = 3
	}
	if cfg.MaxPageFetches <= 0 {
		cfg.MaxPageFetches = 2
	}
	return &URLResolver{
		reg:      reg,
		trust:    NewTrustFilter(reg),
		provider: provider,
		fetcher:  fetcher,
		cfg:      cfg,
		metrics:  metrics,
		log:      logger,
	}
}

// Resolve tries each step in order and stops at the first verified direct URL.
// A result is Direct only when it matches a known retailer's product pattern.
func (r *URLResolver) Resolve(ctx context.Context, q domain.ItemQuery, c *domain.Candidate) Resolution {
	logger := observability.WithRequest(ctx, r.log)

	steps := []struct {
		name string
		fn   func(context.Context, domain.ItemQuery, *domain.Candidate) (Resolution, bool)
	}{
		{StepOwnLink, r.ownLink},
		{StepMerchantLink, r.merchantLink},
		{StepProductSellers, r.productSellers},
		{StepSiteSearch, r.siteSearch},
		{StepRewrite, r.rewrite},
		{StepPageFetch, r.pageFetch},
	}

	for _, step := range steps {
		if ctx.Err() != nil {
			break
		}
		res, ok := step.fn(ctx, q, c)
		if ok && r.reg.IsDirectProductURL(res.URL) {
			res.Direct = true
			res.Step = step.name
			r.metrics.IncResolution(step.name)
			logger.Debug().Str("step", step.name).Str("url", res.URL).Msg("direct url resolved")
			return res
		}
	}

	r.metrics.IncResolution(StepUnresolved)
	logger.Debug().Str("title", c.Title).Str("source", c.Source).Msg("no direct url")
	return Resolution{URL: GenericSearchURL(c.Title), Step: StepUnresolved}
}

// (a) the candidate's own link, after unwrapping redirects
func (r *URLResolver) ownLink(_ context.Context, _ domain.ItemQuery, c *domain.Candidate) (Resolution, bool) {
	for _, link := range []string{c.Link, c.ProductLink} {
		if u := registry.UnwrapRedirect(link); r.reg.IsDirectProductURL(u) {
			return Resolution{URL: u}, true
		}
	}
	return Resolution{}, false
}

// (b) an alternate merchant entry; the candidate's own retailer wins, then the lowest price
func (r *URLResolver) merchantLink(_ context.Context, q domain.ItemQuery, c *domain.Candidate) (Resolution, bool) {
	return r.pickMerchant(q, c, c.Merchants)
}

// (c) provider product-detail lookup by product id
func (r *URLResolver) productSellers(ctx context.Context, q domain.ItemQuery, c *domain.Candidate) (Resolution, bool) {
	if r.provider == nil || c.ProductID == "" {
		return Resolution{}, false
	}
	sellers, err := r.provider.ProductSellers(ctx, c.ProductID)
	if err != nil {
		log := observability.WithRequest(ctx, r.log)
		log.Warn().Err(err).Str("product_id", c.ProductID).Msg("seller lookup failed")
		return Resolution{}, false
	}
	return r.pickMerchant(q, c, sellers)
}

func (r *URLResolver) pickMerchant(q domain.ItemQuery, c *domain.Candidate, merchants []domain.Merchant) (Resolution, bool) {
	own := r.candidateRetailer(c)
	var best *domain.Merchant
	var bestName, bestURL string
	var bestForeign bool
	bestRank := math.Inf(1)

	for i := range merchants {
		m := &merchants[i]
		u := registry.UnwrapRedirect(m.Link)
		if !r.reg.IsDirectProductURL(u) {
			continue
		}
		rt, _ := r.reg.RetailerForURL(u)
		name := m.Name
		if name == "" && rt != nil {
			name = rt.Name
		}
		if class, _ := r.trust.ClassifySource(name); class == domain.Blocked {
			continue
		}
		foreign := own == nil || rt != own
		if foreign && !r.foreignPriceOK(q, c, m.Price) {
			continue
		}
		// the candidate's own retailer first, then the cheapest other listing
		rank := m.Price
		if !foreign {
			rank = -1
		}
		if rank < bestRank {
			best, bestName, bestURL, bestForeign, bestRank = m, name, u, foreign, rank
		}
	}

	if best == nil {
		return Resolution{}, false
	}
	res := Resolution{URL: bestURL}
	if bestForeign {
		res.Price = best.Price
	}
	if !strings.EqualFold(bestName, c.Source) {
		res.Source = bestName
	}
	return res, true
}

// (d) a site-restricted search, raced across the candidate's retailer domains
func (r *URLResolver) siteSearch(ctx context.Context, q domain.ItemQuery, c *domain.Candidate) (Resolution, bool) {
	if r.provider == nil || strings.TrimSpace(c.Title) == "" {
		return Resolution{}, false
	}
	domains := r.raceDomains(c)
	if len(domains) == 0 {
		return Resolution{}, false
	}
	own := r.candidateRetailer(c)

	raceCtx, cancel := context.WithTimeout(ctx, r.cfg.RaceTimeout)
	defer cancel()

	found := make(chan Resolution, len(domains))
	g, gctx := errgroup.WithContext(raceCtx)
	for _, d := range domains {
		g.Go(func() error {
			offers, err := r.search(gctx, domain.ShoppingQuery{
				Text: fmt.Sprintf(`site:%s "%s"`, d, strings.ReplaceAll(c.Title, `"`, "")),
			})
			if err != nil {
				return nil
			}
			rt, u, price, ok := r.directOnDomain(offers, d)
			if !ok {
				return nil
			}
			res, ok := r.settle(q, c, own, rt, u, price)
			if !ok {
				return nil
			}
			found <- res
			// first verified URL wins the race
			cancel()
			return nil
		})
	}
	_ = g.Wait()
	close(found)

	res, ok := <-found
	return res, ok
}

// settle pairs u with the candidate's price when rt is the candidate's own
// retailer. Another retailer's URL carries that retailer's name and listed price.
func (r *URLResolver) settle(q domain.ItemQuery, c *domain.Candidate, own, rt *registry.Retailer, u string, listed float64) (Resolution, bool) {
	res := Resolution{URL: u}
	if own != nil && rt == own {
		return res, true
	}
	if rt == nil || !r.foreignPriceOK(q, c, listed) {
		return Resolution{}, false
	}
	res.Price = listed
	if !strings.EqualFold(rt.Name, c.Source) {
		res.Source = rt.Name
	}
	return res, true
}

// foreignPriceOK reports whether a price listed by another retailer can stand in
// for the candidate's. An in-band candidate is only replaced by an in-band price.
func (r *URLResolver) foreignPriceOK(q domain.ItemQuery, c *domain.Candidate, listed float64) bool {
	if listed <= 0 {
		return false
	}
	if !q.HasTarget() {
		return true
	}
	low, high := Band(q)
	if c.UnitPrice < low || c.UnitPrice > high {
		return true
	}
	unit := listed
	if c.PackSize > 1 {
		unit /= float64(c.PackSize)
	}
	return unit >= low && unit <= high
}

// search contains a provider panic raised inside a race goroutine
func (r *URLResolver) search(ctx context.Context, sq domain.ShoppingQuery) (offers []domain.Offer, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			offers, err = nil, fmt.Errorf("%w: provider panic: %v", domain.ErrProviderFailure, rec)
			r.log.Error().Interface("panic", rec).Str("query", sq.Text).Msg("site search panicked")
		}
	}()
	return r.provider.Search(ctx, sq)
}

// directOnDomain returns the first direct product URL on d with the price listed next to it
func (r *URLResolver) directOnDomain(offers []domain.Offer, d string) (*registry.Retailer, string, float64, bool) {
	for _, o := range offers {
		links := []pricedLink{{o.Link, o.Price}, {o.ProductLink, o.Price}}
		for _, m := range o.Merchants {
			links = append(links, pricedLink{m.Link, m.Price})
		}
		for _, l := range links {
			u := registry.UnwrapRedirect(l.url)
			rt, _ := r.reg.RetailerForURL(u)
			if rt != nil && rt.Domain == d && r.reg.IsDirectProductURL(u) {
				return rt, u, l.price, true
			}
		}
	}
	return nil, "", 0, false
}

// raceDomains lists the candidate's retailer domain first, then merchant domains
func (r *URLResolver) raceDomains(c *domain.Candidate) []string {
	var out []string
	seen := map[string]bool{}
	add := func(rt *registry.Retailer) {
		if rt == nil || seen[rt.Domain] || len(out) >= r.cfg.MaxRaceDomains {
			return
		}
		seen[rt.Domain] = true
		out = append(out, rt.Domain)
	}
	add(r.candidateRetailer(c))
	for _, m := range c.Merchants {
		rt, _ := r.reg.RetailerForURL(registry.UnwrapRedirect(m.Link))
		if rt == nil {
			rt = r.reg.RetailerForSource(m.Name)
		}
		add(rt)
	}
	return out
}

// (e) rewrite a catalog/search path into a product path, only when the id is already in the URL
func (r *URLResolver) rewrite(_ context.Context, q domain.ItemQuery, c *domain.Candidate) (Resolution, bool) {
	own := r.candidateRetailer(c)
	for _, link := range r.allLinks(c) {
		rt, u := r.reg.RetailerForURL(link.url)
		if rt == nil {
			continue
		}
		rewritten, ok := rt.Rewrite(u)
		if !ok || !r.reg.IsDirectProductURL(rewritten) {
			continue
		}
		if res, ok := r.settle(q, c, own, rt, rewritten, link.price); ok {
			return res, true
		}
	}
	return Resolution{}, false
}

// (f) fetch catalog pages of known retailers and pick the product link closest to target
func (r *URLResolver) pageFetch(ctx context.Context, q domain.ItemQuery, c *domain.Candidate) (Resolution, bool) {
	if r.fetcher == nil {
		return Resolution{}, false
	}

	target := c.Price
	if q.HasTarget() {
		target = q.TargetPrice
	}

	own := r.candidateRetailer(c)
	fetched := 0
	for _, link := range r.allLinks(c) {
		if fetched >= r.cfg.MaxPageFetches {
			break
		}
		rt, _ := r.reg.RetailerForURL(link.url)
		if rt == nil {
			continue
		}
		fetched++

		pageLinks, err := r.fetcher.FetchLinks(ctx, link.url, rt.Selectors)
		if err != nil {
			log := observability.WithRequest(ctx, r.log)
			log.Warn().Err(err).Str("url", link.url).Msg("catalog fetch failed")
			continue
		}
		u, price, ok := r.closestDirect(pageLinks, target)
		if !ok {
			continue
		}
		if price <= 0 {
			price = link.price
		}
		found, _ := r.reg.RetailerForURL(u)
		if res, ok := r.settle(q, c, own, found, u, price); ok {
			return res, true
		}
	}
	return Resolution{}, false
}

// closestDirect prefers the page's own canonical product URL, then the
// priced link closest to target, then the first unpriced direct link.
func (r *URLResolver) closestDirect(links []domain.PageLink, target float64) (string, float64, bool) {
	var best string
	var bestPrice float64
	bestRank := math.Inf(1)
	for _, l := range links {
		u := registry.UnwrapRedirect(l.URL)
		if !r.reg.IsDirectProductURL(u) {
			continue
		}
		var rank float64
		switch {
		case l.Kind == "canonical" || l.Kind == "og":
			rank = -1
		case l.Price > 0:
			rank = math.Abs(l.Price - target)
		default:
			rank = 1e9
		}
		if rank < bestRank {
			best, bestPrice, bestRank = u, l.Price, rank
		}
	}
	return best, bestPrice, best != ""
}

func (r *URLResolver) candidateRetailer(c *domain.Candidate) *registry.Retailer {
	if rt := r.reg.RetailerForSource(c.Source); rt != nil {
		return rt
	}
	rt, _ := r.reg.RetailerForURL(registry.UnwrapRedirect(c.Link))
	return rt
}

// pricedLink is a link with the price listed beside it
type pricedLink struct {
	url   string
	price float64
}

func (r *URLResolver) allLinks(c *domain.Candidate) []pricedLink {
	var links []pricedLink
	seen := map[string]bool{}
	add := func(raw string, price float64) {
		u := registry.UnwrapRedirect(raw)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		links = append(links, pricedLink{url: u, price: price})
	}
	add(c.Link, c.Price)
	add(c.ProductLink, c.Price)
	for _, m := range c.Merchants {
		add(m.Link, m.Price)
	}
	return links
}
