package shopping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/retry"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	searchEngine  = "google_shopping"
	productEngine = "google_product"
	// Provider error text for a query with no hits; not a failure
	noResultsMarker = "hasn't returned any results"
	maxBodyBytes    = 4 << 20
)

// Config holds configuration for the shopping-search client
type Config struct {
	APIKey        string
	BaseURL       string
	Country       string
	Language      string
	Location      string
	PageSize      int
	RatePerSecond float64
	Burst         int
	Timeout       time.Duration
	Retry         retry.Policy
}

// Client handles communication with the shopping-search API
type Client struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	cfg         Config
	rateLimiter *rate.Limiter
	retry       retry.Policy
	log         zerolog.Logger
}

// NewClient creates a new shopping-search API client
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://serpapi.com"
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 40
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultPolicy()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		cfg:         cfg,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		retry:       cfg.Retry,
		log:         logger.With().Str("component", "shopping").Logger(),
	}
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// Search runs one shopping query and returns the raw offers
func (c *Client) Search(ctx context.Context, q domain.ShoppingQuery) ([]domain.Offer, error) {
	params := c.baseParams(searchEngine, q.Country, q.Language)
	params.Set("q", buildQueryText(q.Text, q.ExcludeSites))
	params.Set("num", strconv.Itoa(c.cfg.PageSize))
	location := q.Location
	if location == "" {
		location = c.cfg.Location
	}
	if location != "" {
		params.Set("location", location)
	}
	if tbs := priceFilter(q.MinPrice, q.MaxPrice); tbs != "" {
		params.Set("tbs", tbs)
	}

	var resp searchResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		if strings.Contains(resp.Error, noResultsMarker) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderFailure, resp.Error)
	}

	offers := MapOffers(append(resp.ShoppingResults, resp.InlineShoppingResults...))
	c.log.Debug().Str("query", q.Text).Int("offers", len(offers)).Msg("shopping search")
	return offers, nil
}

// ProductSellers returns the merchant list for a provider product id
func (c *Client) ProductSellers(ctx context.Context, productID string) ([]domain.Merchant, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, fmt.Errorf("%w: empty product id", domain.ErrInvalidRequest)
	}
	params := c.baseParams(productEngine, "", "")
	params.Set("product_id", productID)

	var resp productResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		if strings.Contains(resp.Error, noResultsMarker) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderFailure, resp.Error)
	}
	return MapSellers(resp.SellersResults.OnlineSellers), nil
}

func (c *Client) baseParams(engine, country, language string) url.Values {
	if country == "" {
		country = c.cfg.Country
	}
	if language == "" {
		language = c.cfg.Language
	}
	params := url.Values{}
	params.Set("engine", engine)
	params.Set("api_key", c.apiKey)
	if country != "" {
		params.Set("gl", country)
	}
	if language != "" {
		params.Set("hl", language)
	}
	return params
}

// get executes the call under the rate limiter and retry policy and decodes the JSON body into out
func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	if c.apiKey == "" {
		return domain.ErrConfigurationUnavailable
	}
	reqURL := fmt.Sprintf("%s/search.json?%s", c.baseURL, params.Encode())
	engine := params.Get("engine")

	var body []byte
	err := c.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		// Wait for rate limiter
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limiter: %v", domain.ErrNetworkTimeout, err)
		}

		b, err := c.doRequest(ctx, reqURL)
		if err != nil {
			c.log.Warn().Err(err).Str("engine", engine).Int("attempt", attempt).Msg("shopping request failed")
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrParseFailure, err)
	}
	return nil
}

// doRequest executes an HTTP GET request and maps the status to a domain error
func (c *Client) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "PriceLens/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetworkTimeout, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", domain.ErrNetworkTimeout, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{Wait: parseRetryAfter(resp.Header)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", domain.ErrConfigurationUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusBadGateway ||
		resp.StatusCode == http.StatusServiceUnavailable ||
		resp.StatusCode == http.StatusGatewayTimeout:
		return nil, fmt.Errorf("%w: status %d", domain.ErrNetworkTimeout, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d, body: %s", domain.ErrProviderFailure, resp.StatusCode, truncate(string(body), 200))
	}
}

// RateLimitError is a 429 answer, carrying the server-requested wait
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	if e.Wait > 0 {
		return fmt.Sprintf("%s: retry after %s", domain.ErrRateLimited, e.Wait)
	}
	return domain.ErrRateLimited.Error()
}

func (e *RateLimitError) Unwrap() error { return domain.ErrRateLimited }

// RetryAfter implements retry.RetryAfter
func (e *RateLimitError) RetryAfter() time.Duration { return e.Wait }

// IsRateLimited reports whether err is a provider rate-limit answer
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

func parseRetryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// buildQueryText appends one -site: operator per excluded marketplace
func buildQueryText(text string, exclude []string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(text))
	for _, site := range exclude {
		if site = strings.TrimSpace(site); site != "" {
			b.WriteString(" -site:")
			b.WriteString(site)
		}
	}
	return b.String()
}

// priceFilter renders the provider price-range filter; zero bounds are open
func priceFilter(minPrice, maxPrice float64) string {
	if minPrice <= 0 && maxPrice <= 0 {
		return ""
	}
	parts := []string{"mr:1", "price:1"}
	if minPrice > 0 {
		parts = append(parts, "ppr_min:"+strconv.FormatFloat(minPrice, 'f', -1, 64))
	}
	if maxPrice > 0 {
		parts = append(parts, "ppr_max:"+strconv.FormatFloat(maxPrice, 'f', -1, 64))
	}
	return strings.Join(parts, ",")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
