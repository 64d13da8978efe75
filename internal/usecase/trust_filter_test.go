package usecase

import (
	"testing"

	"github.com/pricelens/backend/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestTrustFilter_ClassifySource(t *testing.T) {
	f := NewTrustFilter(testRegistry())

	tests := []struct {
		source string
		want   domain.TrustClass
	}{
		{"Amazon", domain.Trusted},
		{"Best Buy", domain.Trusted},
		{"Costco Wholesale", domain.Trusted},
		{"Walmart - Seller", domain.Trusted},
		{"Bob's Hardware", domain.Trusted},
		{"eBay - hotdeals", domain.Blocked},
		{"Etsy", domain.Blocked},
		{"Shenzhen Bright Lighting", domain.Blocked},
		{"Global Trading Co", domain.Blocked},
		{"XK29QL7PZ4TR", domain.Blocked},
		{"Store 4821", domain.Blocked},
		{"seller42", domain.Blocked},
		{"", domain.Blocked},
		{"   ", domain.Blocked},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			got, reason := f.ClassifySource(tt.source)
			assert.Equal(t, tt.want, got)
			if got == domain.Blocked {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestTrustFilter_ClassifyOffer(t *testing.T) {
	f := NewTrustFilter(testRegistry())

	t.Run("blocked marketplace link under a clean source", func(t *testing.T) {
		class, reason := f.ClassifyOffer(domain.Offer{Source: "Joe's Shop", Link: "https://www.ebay.com/itm/1234"})
		assert.Equal(t, domain.Blocked, class)
		assert.Contains(t, reason, "ebay.com")
	})

	t.Run("redirect target is inspected", func(t *testing.T) {
		class, _ := f.ClassifyOffer(domain.Offer{
			Source: "Joe's Shop",
			Link:   "https://www.google.com/url?url=https%3A%2F%2Fwww.etsy.com%2Flisting%2F1",
		})
		assert.Equal(t, domain.Blocked, class)
	})

	t.Run("clean offer", func(t *testing.T) {
		class, _ := f.ClassifyOffer(domain.Offer{Source: "Target", Link: "https://www.target.com/p/-/A-12345678"})
		assert.Equal(t, domain.Trusted, class)
	})
}

func TestTrustFilter_IsAdjacent(t *testing.T) {
	f := NewTrustFilter(testRegistry())

	assert.True(t, f.IsAdjacent("Walmart - Seller"))
	assert.True(t, f.IsAdjacent("Sold by GadgetHub"))
	assert.False(t, f.IsAdjacent("Walmart"))
	assert.False(t, f.IsAdjacent("The Home Depot"))
}
