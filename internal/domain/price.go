package domain

import "time"

// Match quality labels
const (
	MatchExact       = "exact"
	MatchClose       = "close"
	MatchAlternative = "alternative"
	MatchUnverified  = "unverified"
	MatchEstimated   = "estimated"
	MatchExcluded    = "excluded"
)

// Trace explains how a result was produced
type Trace struct {
	RequestID          string            `json:"requestId"`
	TermsUsed          []string          `json:"termsUsed,omitempty"`
	StrategiesTried    int               `json:"strategiesTried"`
	StrategiesOK       int               `json:"strategiesOk"`
	CandidatesChecked  int               `json:"candidatesChecked"`
	SkipReasons        map[string]string `json:"skipReasons,omitempty"`
	ValidationStrategy string            `json:"validationStrategy,omitempty"`
	SelectionTier      string            `json:"selectionTier,omitempty"`
	ResolutionStep     string            `json:"resolutionStep,omitempty"`
	CacheTier          string            `json:"cacheTier,omitempty"`
	Path               []string          `json:"path"`
	Elapsed            time.Duration     `json:"elapsed"`
}

// PriceResult is the self-describing output of the engine
type PriceResult struct {
	Found             bool     `json:"found"`
	Excluded          bool     `json:"excluded"`
	Price             float64  `json:"price,omitempty"`
	Currency          string   `json:"currency"`
	Source            string   `json:"source"`
	URL               *string  `json:"url"`
	Title             string   `json:"title,omitempty"`
	Category          string   `json:"category,omitempty"`
	Subcategory       string   `json:"subcategory,omitempty"`
	IsEstimated       bool     `json:"isEstimated"`
	MatchQuality      string   `json:"matchQuality"`
	Confidence        float64  `json:"confidence"`
	Notes             []string `json:"notes,omitempty"`
	MatchedAttributes []string `json:"matchedAttributes,omitempty"`
	Trace             Trace    `json:"trace"`
}

// URLString returns the url or an empty string
func (r *PriceResult) URLString() string {
	if r == nil || r.URL == nil {
		return ""
	}
	return *r.URL
}

// CacheEntry is the persisted form of a verified result
type CacheEntry struct {
	Found        bool      `json:"found"`
	Price        float64   `json:"price"`
	Source       string    `json:"source"`
	URL          string    `json:"url"`
	Title        string    `json:"title,omitempty"`
	Category     string    `json:"category,omitempty"`
	MatchQuality string    `json:"matchQuality,omitempty"`
	Confidence   float64   `json:"confidence,omitempty"`
	CachedAt     time.Time `json:"cachedAt"`
}
