package usecase

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/registry"
)

// Estimate methods, reported as the validation strategy
const (
	EstimateStatedPrice = "stated_price"
	EstimateCategory    = "category_midpoint"
	EstimateHeuristic   = "base_price_heuristic"
)

// Confidence per estimate method
const (
	confidenceStated    = 0.55
	confidenceCategory  = 0.35
	confidenceHeuristic = 0.2
	minimumEstimate     = 1.0
)

var (
	statedAmountRegex = regexp.MustCompile(`(?i)(?:\$\s?(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)(\s*/\s*[a-z]+)?|\b(\d+(?:\.\d{1,2})?)\s*(?:dollars|usd)\b|\b(?:paid|cost|price|msrp|retail(?:s| price)?)\s*:?\s*(\d+(?:\.\d{1,2})?)\b)`)
)

// size-word rank -> price factor
var sizeFactors = map[int]float64{0: 0.6, 1: 0.8, 2: 1.0, 3: 1.3, 4: 1.6}

// FallbackEstimator produces deterministic estimates when no market listing qualifies
type FallbackEstimator struct {
	reg *registry.Registry
}

// NewFallbackEstimator creates an estimator over the registry price tables
func NewFallbackEstimator(reg *registry.Registry) *FallbackEstimator {
	return &FallbackEstimator{reg: reg}
}

// Estimate always returns a positive, estimated price with a generic search URL
func (e *FallbackEstimator) Estimate(q domain.ItemQuery, reason string) *domain.PriceResult {
	attrs := q.Attributes
	price, method, confidence, note := e.estimate(q)

	price = domain.RoundCents(price)
	if price < minimumEstimate {
		price = minimumEstimate
	}

	searchURL := GenericSearchURL(cleanQueryText(q.Text))
	notes := []string{note}
	if reason != "" {
		notes = append([]string{reason}, notes...)
	}

	return &domain.PriceResult{
		Found:        false,
		Price:        price,
		Currency:     domain.Currency,
		Source:       "Estimated",
		URL:          &searchURL,
		Category:     attrs.Category,
		Subcategory:  attrs.ProductType,
		IsEstimated:  true,
		MatchQuality: domain.MatchEstimated,
		Confidence:   confidence,
		Notes:        notes,
		Trace:        domain.Trace{ValidationStrategy: method},
	}
}

// Excluded returns the sentinel result for categories that are never priced
func (e *FallbackEstimator) Excluded(q domain.ItemQuery, reason string) *domain.PriceResult {
	return &domain.PriceResult{
		Excluded:     true,
		Currency:     domain.Currency,
		Category:     q.Attributes.Category,
		Subcategory:  q.Attributes.ProductType,
		IsEstimated:  true,
		MatchQuality: domain.MatchExcluded,
		Notes:        []string{"excluded category: " + reason},
		Trace:        domain.Trace{ValidationStrategy: "exclusion"},
	}
}

func (e *FallbackEstimator) estimate(q domain.ItemQuery) (price float64, method string, confidence float64, note string) {
	if amount, ok := StatedPrice(q.Text); ok {
		return amount, EstimateStatedPrice, confidenceStated, "price stated in description"
	}

	attrs := q.Attributes
	packs := 1.0
	if attrs.PackSize > 1 {
		packs = float64(attrs.PackSize)
	}

	if cat := e.reg.CategoryByName(attrs.ProductType); cat != nil && cat.Midpoint() > 0 {
		return cat.Midpoint() * packs, EstimateCategory, confidenceCategory,
			fmt.Sprintf("typical %s price range $%.0f-$%.0f", cat.Name, cat.Price[0], cat.Price[1])
	}

	base, ok := e.reg.GroupBasePrices[attrs.Category]
	if !ok || base <= 0 {
		base = e.reg.DefaultBasePrice
	}
	if base <= 0 {
		base = 50
	}

	factor := 1.0
	if rank, ok := e.reg.SizeRank(attrs.Size); ok {
		if f, ok := sizeFactors[rank]; ok {
			factor *= f
		}
	}
	if m := e.reg.MaterialByName(attrs.Material); m != nil && m.Factor > 0 {
		factor *= m.Factor
	}

	group := attrs.Category
	if group == "" {
		group = "general"
	}
	return base * factor * packs, EstimateHeuristic, confidenceHeuristic,
		fmt.Sprintf("%s base price adjusted for size and material", group)
}

// StatedPrice extracts an explicit price already present in a description.
// Rates such as "$45/mo" are not prices.
func StatedPrice(text string) (float64, bool) {
	for _, m := range statedAmountRegex.FindAllStringSubmatch(text, -1) {
		if m[2] != "" {
			continue
		}
		for _, g := range []string{m[1], m[3], m[4]} {
			if g == "" {
				continue
			}
			if amount, ok := domain.ParsePrice(g); ok {
				return amount, true
			}
		}
	}
	return 0, false
}

// isEmptyQuery reports whether text has nothing to search for
func isEmptyQuery(text string) bool {
	return strings.TrimSpace(cleanQueryText(text)) == ""
}
