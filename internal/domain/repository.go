package domain

import (
	"context"
	"time"
)

// ShoppingQuery is one request to the shopping-search provider
type ShoppingQuery struct {
	Text string
	// MinPrice and MaxPrice of 0 mean unbounded
	MinPrice     float64
	MaxPrice     float64
	ExcludeSites []string
	Country      string
	Language     string
	Location     string
}

// ShoppingProvider defines the interface for the third-party shopping-search API
type ShoppingProvider interface {
	Search(ctx context.Context, query ShoppingQuery) ([]Offer, error)
	ProductSellers(ctx context.Context, productID string) ([]Merchant, error)
}

// PageLink is a product link discovered on a fetched catalog page
type PageLink struct {
	URL   string  `json:"url"`
	Price float64 `json:"price,omitempty"`
	// Kind is one of canonical, og, jsonld, anchor
	Kind string `json:"kind"`
}

// PageFetcher fetches a catalog/listing page and extracts candidate product links
type PageFetcher interface {
	FetchLinks(ctx context.Context, pageURL string, selectors []string) ([]PageLink, error)
}

// CacheStore defines the persistent cache tier
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// PriceCache defines the layered cache used by the engine
type PriceCache interface {
	Lookup(ctx context.Context, key string) (*CacheEntry, string, bool)
	Store(ctx context.Context, key string, entry CacheEntry)
}
