package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/registry"
	"github.com/rs/zerolog"
)

// MockShoppingProvider is a mock implementation of domain.ShoppingProvider
type MockShoppingProvider struct {
	mu sync.Mutex

	// results by exact query text; defaultOffers answers everything else
	results       map[string][]domain.Offer
	defaultOffers []domain.Offer
	errs          map[string]error
	searchError   error
	sellers       map[string][]domain.Merchant
	sellersError  error
	// delays by query prefix; the call honours ctx while waiting
	delays map[string]time.Duration
	// handler overrides every other field when set
	handler func(ctx context.Context, q domain.ShoppingQuery) ([]domain.Offer, error)

	queries     []domain.ShoppingQuery
	sellerCalls []string
}

func NewMockShoppingProvider(offers ...domain.Offer) *MockShoppingProvider {
	return &MockShoppingProvider{
		results:       map[string][]domain.Offer{},
		defaultOffers: offers,
		errs:          map[string]error{},
		sellers:       map[string][]domain.Merchant{},
		delays:        map[string]time.Duration{},
	}
}

func (m *MockShoppingProvider) Search(ctx context.Context, q domain.ShoppingQuery) ([]domain.Offer, error) {
	m.mu.Lock()
	m.queries = append(m.queries, q)
	handler := m.handler
	var delay time.Duration
	for prefix, d := range m.delays {
		if strings.HasPrefix(q.Text, prefix) {
			delay = d
		}
	}
	m.mu.Unlock()

	if handler != nil {
		return handler(ctx, q)
	}

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchError != nil {
		return nil, m.searchError
	}
	if err, ok := m.errs[q.Text]; ok {
		return nil, err
	}
	if offers, ok := m.results[q.Text]; ok {
		return offers, nil
	}
	return m.defaultOffers, nil
}

func (m *MockShoppingProvider) ProductSellers(ctx context.Context, productID string) ([]domain.Merchant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sellerCalls = append(m.sellerCalls, productID)
	if m.sellersError != nil {
		return nil, m.sellersError
	}
	return m.sellers[productID], nil
}

func (m *MockShoppingProvider) Queries() []domain.ShoppingQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ShoppingQuery(nil), m.queries...)
}

// MockPageFetcher is a mock implementation of domain.PageFetcher
type MockPageFetcher struct {
	pages   map[string][]domain.PageLink
	err     error
	fetched []string
}

func NewMockPageFetcher() *MockPageFetcher {
	return &MockPageFetcher{pages: map[string][]domain.PageLink{}}
}

func (m *MockPageFetcher) FetchLinks(ctx context.Context, pageURL string, selectors []string) ([]domain.PageLink, error) {
	m.fetched = append(m.fetched, pageURL)
	if m.err != nil {
		return nil, m.err
	}
	return m.pages[pageURL], nil
}

// MockPriceCache is a mock implementation of domain.PriceCache
type MockPriceCache struct {
	mu       sync.Mutex
	data     map[string]domain.CacheEntry
	lookups  int
	stores   int
	panicked bool
}

func NewMockPriceCache() *MockPriceCache {
	return &MockPriceCache{data: map[string]domain.CacheEntry{}}
}

func (m *MockPriceCache) Lookup(ctx context.Context, key string) (*domain.CacheEntry, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.panicked {
		panic("cache exploded")
	}
	entry, ok := m.data[key]
	if !ok {
		return nil, "", false
	}
	return &entry, "memory", true
}

func (m *MockPriceCache) Store(ctx context.Context, key string, entry domain.CacheEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores++
	m.data[key] = entry
}

// testRegistry returns the embedded default tables
func testRegistry() *registry.Registry {
	return registry.MustDefault()
}

// testQuery builds an analysed query the way the engine does
func testQuery(reg *registry.Registry, text string, target, tolerance float64) domain.ItemQuery {
	return domain.ItemQuery{
		Text:             text,
		TargetPrice:      target,
		TolerancePercent: tolerance,
		Attributes:       NewQueryAnalyzer(reg).Analyze(text),
	}
}

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}
