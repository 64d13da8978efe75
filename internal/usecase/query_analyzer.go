package usecase

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/registry"
)

// Compiled regex patterns for attribute extraction
var (
	// Matches multi-unit packs like "set of 2", "2-pack", "pack of 6", "4 pk", "24 count"
	packPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bset\s+of\s+(\d{1,3})\b`),
		regexp.MustCompile(`(?i)\bpack\s+of\s+(\d{1,3})\b`),
		regexp.MustCompile(`(?i)\b(\d{1,3})\s*-?\s*(?:pack|pk)\b`),
		regexp.MustCompile(`(?i)\b(\d{1,3})\s*-?\s*(?:count|ct)\b`),
	}

	// Token splitter; keeps hyphens and dots inside codes like "A-1234"
	tokenSplitRegex = regexp.MustCompile(`[^A-Za-z0-9\-\.]+`)

	// A number followed by a short unit suffix ("18gal", "128gb") is a measurement, not a model code
	measurementTokenRegex = regexp.MustCompile(`(?i)^\d+(?:\.\d+)?[a-z]{1,4}$`)

	wordRegex  = regexp.MustCompile(`[a-z0-9]+`)
	digitRegex = regexp.MustCompile(`\d`)
)

type namedTerm struct {
	term *registry.Term
	name string
}

// QueryAnalyzer parses free-text item descriptions into structured attributes
type QueryAnalyzer struct {
	reg       *registry.Registry
	brands    []namedTerm
	types     []namedTerm
	materials []namedTerm
	colors    []namedTerm
	finishes  []namedTerm
	sizes     []namedTerm
}

// NewQueryAnalyzer creates an analyzer over the given registry tables
func NewQueryAnalyzer(reg *registry.Registry) *QueryAnalyzer {
	a := &QueryAnalyzer{reg: reg}

	for _, b := range reg.Brands {
		a.brands = append(a.brands, namedTerm{registry.NewTerm(b.Name), b.Name})
		for _, alias := range b.Aliases {
			a.brands = append(a.brands, namedTerm{registry.NewTerm(alias), b.Name})
		}
	}
	for _, c := range reg.Categories {
		for _, term := range c.Terms {
			a.types = append(a.types, namedTerm{registry.NewTerm(term), c.Name})
		}
	}
	for _, m := range reg.Materials {
		for _, term := range m.Terms {
			a.materials = append(a.materials, namedTerm{registry.NewTerm(term), m.Name})
		}
	}
	for _, c := range reg.Colors {
		a.colors = append(a.colors, namedTerm{registry.NewTerm(c), c})
	}
	for _, f := range reg.Finishes {
		a.finishes = append(a.finishes, namedTerm{registry.NewTerm(f), f})
	}
	for _, sw := range reg.SizeWords {
		a.sizes = append(a.sizes, namedTerm{registry.NewTerm(sw.Word), sw.Word})
	}

	// Longest terms first so multi-word matches win
	for _, list := range [][]namedTerm{a.brands, a.types, a.materials, a.colors, a.finishes, a.sizes} {
		sort.SliceStable(list, func(i, j int) bool {
			return len(list[i].term.Text) > len(list[j].term.Text)
		})
	}

	return a
}

// Registry returns the tables the analyzer was built with
func (a *QueryAnalyzer) Registry() *registry.Registry {
	return a.reg
}

// Analyze extracts brand, product type, capacity, size, material, color,
// finish, model codes and pack size from text. It is a pure function of text.
func (a *QueryAnalyzer) Analyze(text string) domain.Attributes {
	attrs := domain.Attributes{}
	if strings.TrimSpace(text) == "" {
		return attrs
	}

	attrs.Brand = longestMatch(a.brands, text)
	attrs.ProductType = longestMatch(a.types, text)
	if cat := a.reg.CategoryByName(attrs.ProductType); cat != nil {
		attrs.Category = cat.Group
	} else if b := a.reg.BrandByName(attrs.Brand); b != nil {
		attrs.Category = b.Category
	}

	attrs.Capacity = a.extractCapacity(text)
	attrs.Size = longestMatch(a.sizes, text)
	attrs.Material = longestMatch(a.materials, text)
	attrs.Color = longestMatch(a.colors, text)
	attrs.Finish = longestMatch(a.finishes, text)
	attrs.Specs = extractSpecs(text)
	attrs.PackSize = extractPackSize(text)
	attrs.Words = a.significantWords(text)
	attrs.HasDigits = digitRegex.MatchString(text)

	return attrs
}

func longestMatch(terms []namedTerm, text string) string {
	for _, t := range terms {
		if t.term.In(text) {
			return t.name
		}
	}
	return ""
}

// extractCapacity returns the first unit-aware measurement, in registry unit order
func (a *QueryAnalyzer) extractCapacity(text string) domain.Capacity {
	for i := range a.reg.Units {
		unit := &a.reg.Units[i]
		m := unit.Regexp().FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil || v <= 0 {
			continue
		}
		return domain.Capacity{Raw: strings.TrimSpace(m[0]), Value: v, Unit: unit.Name}
	}
	return domain.Capacity{}
}

// extractSpecs returns model-like codes: tokens mixing letters and digits, e.g. KSM150PS
func extractSpecs(text string) []string {
	var specs []string
	seen := map[string]bool{}
	for _, tok := range tokenSplitRegex.Split(text, -1) {
		tok = strings.Trim(tok, "-.")
		if len(tok) < 4 || measurementTokenRegex.MatchString(tok) {
			continue
		}
		if !strings.ContainsAny(tok, "0123456789") || !containsLetter(tok) {
			continue
		}
		code := strings.ToUpper(tok)
		if !seen[code] {
			seen[code] = true
			specs = append(specs, code)
		}
	}
	return specs
}

func containsLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}

// extractPackSize returns N for "set of N" style phrases, 0 when not a multi-pack
func extractPackSize(text string) int {
	for _, re := range packPatterns {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 1 {
			return n
		}
	}
	return 0
}

// significantWords returns lowercase tokens that carry search signal
func (a *QueryAnalyzer) significantWords(text string) []string {
	var words []string
	for _, w := range wordRegex.FindAllString(strings.ToLower(text), -1) {
		if len(w) < 2 && !digitRegex.MatchString(w) {
			continue
		}
		if a.reg.IsStopWord(w) {
			continue
		}
		words = append(words, w)
	}
	return words
}

// normalizeSpec strips separators so "KSM-150PS" and "ksm150ps" compare equal
func normalizeSpec(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
