// Package fetch downloads retailer catalog pages and extracts product links from them.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/pricelens/backend/internal/domain"
	"github.com/rs/zerolog"
)

const (
	KindCanonical = "canonical"
	KindOpenGraph = "og"
	KindJSONLD    = "jsonld"
	KindAnchor    = "anchor"
)

const defaultSelector = "a[href]"

// a display price next to a product tile, e.g. "$1,299.99"
var displayPriceRegex = regexp.MustCompile(`\$\s?\d{1,3}(?:,\d{3})*(?:\.\d{2})?|\$\s?\d+(?:\.\d{2})?`)

// Config controls catalog page fetching
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
	// MaxLinks caps the anchors collected per page
	MaxLinks int
}

// CatalogFetcher implements domain.PageFetcher on top of colly
type CatalogFetcher struct {
	cfg       Config
	transport http.RoundTripper
	log       zerolog.Logger
}

// NewCatalogFetcher builds a fetcher with a pooled transport
func NewCatalogFetcher(cfg Config, logger zerolog.Logger) *CatalogFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 6 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 2 << 20
	}
	if cfg.MaxLinks <= 0 {
		cfg.MaxLinks = 60
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (compatible; PriceLens/1.0)"
	}

	return &CatalogFetcher{
		cfg: cfg,
		transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		},
		log: logger.With().Str("component", "catalog_fetcher").Logger(),
	}
}

// WithTransport swaps the round tripper, used by tests
func (f *CatalogFetcher) WithTransport(rt http.RoundTripper) *CatalogFetcher {
	f.transport = rt
	return f
}

// FetchLinks loads pageURL once and returns the product links it exposes in
// the order canonical, og:url, JSON-LD, then anchors matching selectors.
func (f *CatalogFetcher) FetchLinks(ctx context.Context, pageURL string, selectors []string) ([]domain.PageLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(selectors) == 0 {
		selectors = []string{defaultSelector}
	}

	c := colly.NewCollector(
		colly.UserAgent(f.cfg.UserAgent),
		colly.MaxBodySize(f.cfg.MaxBodyBytes),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(f.cfg.Timeout)
	c.WithTransport(contextTransport{ctx: ctx, next: f.transport})

	var (
		mu      sync.Mutex
		head    []domain.PageLink
		anchors []domain.PageLink
		seen    = map[string]bool{}
	)
	add := func(dst *[]domain.PageLink, l domain.PageLink) {
		if l.URL == "" || seen[l.URL] {
			return
		}
		seen[l.URL] = true
		*dst = append(*dst, l)
	}

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
	})

	c.OnHTML(`link[rel="canonical"]`, func(e *colly.HTMLElement) {
		mu.Lock()
		defer mu.Unlock()
		add(&head, domain.PageLink{URL: e.Request.AbsoluteURL(e.Attr("href")), Kind: KindCanonical})
	})

	c.OnHTML(`meta[property="og:url"]`, func(e *colly.HTMLElement) {
		mu.Lock()
		defer mu.Unlock()
		add(&head, domain.PageLink{URL: e.Request.AbsoluteURL(e.Attr("content")), Kind: KindOpenGraph})
	})

	c.OnHTML(`script[type="application/ld+json"]`, func(e *colly.HTMLElement) {
		links := parseJSONLD(e.Text)
		mu.Lock()
		defer mu.Unlock()
		for _, l := range links {
			l.URL = e.Request.AbsoluteURL(l.URL)
			add(&head, l)
		}
	})

	for _, sel := range selectors {
		c.OnHTML(sel, func(e *colly.HTMLElement) {
			href := strings.TrimSpace(e.Attr("href"))
			if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
				return
			}
			link := domain.PageLink{
				URL:   e.Request.AbsoluteURL(href),
				Price: nearbyPrice(e.DOM),
				Kind:  KindAnchor,
			}
			mu.Lock()
			defer mu.Unlock()
			if len(anchors) < f.cfg.MaxLinks {
				add(&anchors, link)
			}
		})
	}

	if err := c.Visit(pageURL); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: fetch %s: %v", domain.ErrResolutionFailure, pageURL, err)
	}
	c.Wait()

	links := append(head, anchors...)
	f.log.Debug().Str("url", pageURL).Int("links", len(links)).Msg("catalog page fetched")
	return links, nil
}

// nearbyPrice looks for a display price in the anchor itself or its
// nearest enclosing product tile, at most three levels up. Climbing stops
// at the first ancestor holding other links.
func nearbyPrice(s *goquery.Selection) float64 {
	node := s
	for depth := 0; depth < 4 && node.Length() > 0; depth++ {
		if depth > 0 && node.Find("a").Length() > 1 {
			break
		}
		if m := displayPriceRegex.FindString(node.Text()); m != "" {
			if p, ok := domain.ParsePrice(m); ok {
				return p
			}
		}
		node = node.Parent()
	}
	return 0
}

// parseJSONLD pulls product urls and their offer price out of a JSON-LD block.
// Offer urls count too since some retailers only put the link there.
func parseJSONLD(text string) []domain.PageLink {
	var doc any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &doc); err != nil {
		return nil
	}
	var out []domain.PageLink
	walkJSONLD(doc, &out, 0)
	return out
}

func walkJSONLD(node any, out *[]domain.PageLink, depth int) {
	if depth > 6 {
		return
	}
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			walkJSONLD(item, out, depth+1)
		}
	case map[string]any:
		if graph, ok := v["@graph"]; ok {
			walkJSONLD(graph, out, depth+1)
		}
		if items, ok := v["itemListElement"]; ok {
			walkJSONLD(items, out, depth+1)
		}
		if item, ok := v["item"]; ok {
			walkJSONLD(item, out, depth+1)
		}
		if !isProductType(v["@type"]) {
			if u, ok := v["url"].(string); ok && hasType(v, "ListItem") {
				*out = append(*out, domain.PageLink{URL: u, Kind: KindJSONLD})
			}
			return
		}
		price := offerPrice(v["offers"])
		if u, ok := v["url"].(string); ok && u != "" {
			*out = append(*out, domain.PageLink{URL: u, Price: price, Kind: KindJSONLD})
		}
		if offer, ok := v["offers"].(map[string]any); ok {
			if u, ok := offer["url"].(string); ok && u != "" {
				*out = append(*out, domain.PageLink{URL: u, Price: price, Kind: KindJSONLD})
			}
		}
	}
}

func isProductType(t any) bool {
	switch v := t.(type) {
	case string:
		return strings.EqualFold(v, "Product")
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.EqualFold(s, "Product") {
				return true
			}
		}
	}
	return false
}

func hasType(m map[string]any, name string) bool {
	s, ok := m["@type"].(string)
	return ok && strings.EqualFold(s, name)
}

func offerPrice(offers any) float64 {
	switch v := offers.(type) {
	case []any:
		for _, o := range v {
			if p := offerPrice(o); p > 0 {
				return p
			}
		}
	case map[string]any:
		for _, key := range []string{"price", "lowPrice"} {
			switch p := v[key].(type) {
			case float64:
				if p > 0 {
					return domain.RoundCents(p)
				}
			case string:
				if parsed, ok := domain.ParsePrice(p); ok {
					return parsed
				}
			}
		}
	}
	return 0
}

// contextTransport binds every request of one fetch to the caller's context
type contextTransport struct {
	ctx  context.Context
	next http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.next.RoundTrip(req.WithContext(t.ctx))
}
