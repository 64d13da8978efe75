package usecase

import (
	"net/url"
	"strings"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/registry"
)

// TrustFilter classifies seller/source strings with a block-list.
// Anything the block-list does not match is trusted.
type TrustFilter struct {
	reg *registry.Registry
}

// NewTrustFilter creates a trust filter over the registry block-list
func NewTrustFilter(reg *registry.Registry) *TrustFilter {
	return &TrustFilter{reg: reg}
}

// ClassifySource returns Trusted or Blocked for a source string, with the matching rule as reason
func (f *TrustFilter) ClassifySource(source string) (domain.TrustClass, string) {
	s := strings.TrimSpace(source)
	if s == "" {
		return domain.Blocked, "missing source"
	}
	// Registry retailers are never blocked ("Costco Wholesale")
	if f.reg.RetailerForSource(s) != nil {
		return domain.Trusted, ""
	}
	for _, term := range f.reg.BlockTerms() {
		if term.In(s) {
			return domain.Blocked, "blocked keyword: " + term.Text
		}
	}
	for _, re := range f.reg.BlockPatterns() {
		if re.MatchString(s) {
			return domain.Blocked, "blocked pattern: " + re.String()
		}
	}
	return domain.Trusted, ""
}

// ClassifyOffer checks the source string and the host of the offer link
func (f *TrustFilter) ClassifyOffer(offer domain.Offer) (domain.TrustClass, string) {
	if class, reason := f.ClassifySource(offer.Source); class == domain.Blocked {
		return class, reason
	}
	if host := linkHost(registry.UnwrapRedirect(offer.Link)); host != "" {
		for _, site := range f.reg.NegativeSites {
			if host == site || strings.HasSuffix(host, "."+site) {
				return domain.Blocked, "blocked site: " + site
			}
		}
	}
	return domain.Trusted, ""
}

// IsAdjacent reports whether a trusted source routes third-party marketplace sellers
func (f *TrustFilter) IsAdjacent(source string) bool {
	for _, re := range f.reg.AdjacentPatterns() {
		if re.MatchString(source) {
			return true
		}
	}
	return false
}

func linkHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
