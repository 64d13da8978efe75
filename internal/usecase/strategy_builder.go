package usecase

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/registry"
)

// Strategy names, in priority order
const (
	StrategyBrandTypeSpecs    = "brand_type_specs"
	StrategyBrandType         = "brand_type"
	StrategyTypeSpecsMaterial = "type_specs_material"
	StrategyBrandOriginal     = "brand_original"
	StrategyOriginal          = "original"
	StrategyAltBrand          = "alt_brand"
	StrategyLowerCapacity     = "lower_capacity"
	StrategyHigherCapacity    = "higher_capacity"
)

const (
	lowerCapacityFactor  = 0.7
	higherCapacityFactor = 1.3
	maxAltBrands         = 2
	maxQueryLength       = 120
)

var (
	// Prices and payment terms carry no search signal
	statedPriceRegex = regexp.MustCompile(`(?i)(?:\$\s?\d[\d,]*(?:\.\d{1,2})?(?:\s*/\s*\w+)?|\b\d+(?:\.\d{1,2})?\s*(?:dollars|usd)\b)`)
	queryNoiseRegex  = regexp.MustCompile(`[\(\)\[\]\{\}<>|\\~^*=#!?;"]+`)
)

var unitDisplay = map[string]string{
	"cu_ft":  "cu ft",
	"quart":  "qt",
	"gallon": "gallon",
	"liter":  "L",
	"inch":   "inch",
	"piece":  "piece",
	"watt":   "W",
}

// StrategyBuilder builds ranked query variants from parsed attributes
type StrategyBuilder struct {
	reg           *registry.Registry
	maxStrategies int
}

// NewStrategyBuilder creates a builder; maxStrategies <= 0 means 8
func NewStrategyBuilder(reg *registry.Registry, maxStrategies int) *StrategyBuilder {
	if maxStrategies <= 0 {
		maxStrategies = 8
	}
	return &StrategyBuilder{reg: reg, maxStrategies: maxStrategies}
}

// Build returns the ordered, de-duplicated strategies for a query
func (b *StrategyBuilder) Build(q domain.ItemQuery) []domain.SearchStrategy {
	attrs := q.Attributes
	original := cleanQueryText(q.Text)
	specs := strings.Join(attrs.Specs, " ")

	var out []domain.SearchStrategy
	seen := map[string]bool{}
	add := func(name string, direction domain.Direction, tier domain.TimeoutTier, parts ...string) {
		query := joinQuery(parts...)
		if query == "" || len(out) >= b.maxStrategies {
			return
		}
		key := strings.ToLower(query)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, domain.SearchStrategy{
			Name:        name,
			Priority:    len(out) + 1,
			Query:       query,
			Direction:   direction,
			Tier:        tier,
			Alternative: direction != domain.DirectionExact,
		})
	}

	if attrs.Brand != "" && attrs.ProductType != "" && specs != "" {
		add(StrategyBrandTypeSpecs, domain.DirectionExact, domain.TierFast, attrs.Brand, attrs.ProductType, specs)
	}
	if attrs.Brand != "" && attrs.ProductType != "" {
		add(StrategyBrandType, domain.DirectionExact, domain.TierFast, attrs.Brand, attrs.ProductType, attrs.Capacity.Raw)
	}
	if attrs.ProductType != "" && (specs != "" || attrs.Material != "") {
		add(StrategyTypeSpecsMaterial, domain.DirectionExact, domain.TierMedium, attrs.Material, attrs.ProductType, specs)
	}
	if attrs.Brand != "" {
		if containsFold(original, attrs.Brand) {
			add(StrategyBrandOriginal, domain.DirectionExact, domain.TierMedium, original)
		} else {
			add(StrategyBrandOriginal, domain.DirectionExact, domain.TierMedium, attrs.Brand, original)
		}
	}
	add(StrategyOriginal, domain.DirectionExact, domain.TierMedium, original)

	if brand := b.reg.BrandByName(attrs.Brand); brand != nil && attrs.ProductType != "" {
		for i, alt := range brand.Alternates {
			if i >= maxAltBrands {
				break
			}
			add(StrategyAltBrand, domain.DirectionAny, domain.TierSlow, alt, attrs.ProductType, attrs.Capacity.Raw)
		}
	}

	if !attrs.Capacity.IsZero() {
		subject := attrs.ProductType
		if subject == "" {
			subject = stripCapacity(original, attrs.Capacity.Raw)
		}
		lower := formatCapacity(attrs.Capacity.Value*lowerCapacityFactor, attrs.Capacity.Unit)
		higher := formatCapacity(attrs.Capacity.Value*higherCapacityFactor, attrs.Capacity.Unit)
		add(StrategyLowerCapacity, domain.DirectionLower, domain.TierSlow, attrs.Brand, lower, subject)
		add(StrategyHigherCapacity, domain.DirectionHigher, domain.TierSlow, attrs.Brand, higher, subject)
	}

	return out
}

// cleanQueryText strips stated prices and query-breaking punctuation from a description
func cleanQueryText(text string) string {
	s := statedPriceRegex.ReplaceAllString(text, " ")
	s = queryNoiseRegex.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " ,-:")
	if len(s) > maxQueryLength {
		s = s[:maxQueryLength]
		if i := strings.LastIndex(s, " "); i > maxQueryLength/2 {
			s = s[:i]
		}
	}
	return s
}

func joinQuery(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(strings.Fields(strings.Join(kept, " ")), " ")
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func stripCapacity(text, raw string) string {
	if raw == "" {
		return text
	}
	i := strings.Index(strings.ToLower(text), strings.ToLower(raw))
	if i < 0 {
		return text
	}
	return strings.Join(strings.Fields(text[:i]+" "+text[i+len(raw):]), " ")
}

// formatCapacity renders a capacity with at most one decimal, e.g. "12.6 cu ft"
func formatCapacity(value float64, unit string) string {
	v := strconv.FormatFloat(value, 'f', 1, 64)
	v = strings.TrimSuffix(v, ".0")
	display := unitDisplay[unit]
	if display == "" {
		display = unit
	}
	return v + " " + display
}
