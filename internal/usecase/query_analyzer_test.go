package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryAnalyzer_Analyze(t *testing.T) {
	a := NewQueryAnalyzer(testRegistry())

	t.Run("branded appliance with model code and capacity", func(t *testing.T) {
		attrs := a.Analyze("KitchenAid Artisan Stand Mixer KSM150PS 5 qt")

		assert.Equal(t, "KitchenAid", attrs.Brand)
		assert.Equal(t, "stand mixer", attrs.ProductType)
		assert.Equal(t, "kitchen", attrs.Category)
		assert.Equal(t, "quart", attrs.Capacity.Unit)
		assert.Equal(t, 5.0, attrs.Capacity.Value)
		assert.Equal(t, []string{"KSM150PS"}, attrs.Specs)
		assert.True(t, attrs.HasDigits)
		assert.Contains(t, attrs.Words, "mixer")
	})

	t.Run("brand alias resolves to canonical name", func(t *testing.T) {
		attrs := a.Analyze("kitchen aid hand mixer")
		assert.Equal(t, "KitchenAid", attrs.Brand)
		assert.Equal(t, "hand mixer", attrs.ProductType)
	})

	t.Run("generic item", func(t *testing.T) {
		attrs := a.Analyze("storage bin")
		assert.Empty(t, attrs.Brand)
		assert.Equal(t, "storage bin", attrs.ProductType)
		assert.Equal(t, "storage", attrs.Category)
		assert.True(t, attrs.Capacity.IsZero())
		assert.False(t, attrs.HasDigits)
		assert.Equal(t, []string{"storage", "bin"}, attrs.Words)
	})

	t.Run("longest product type wins", func(t *testing.T) {
		attrs := a.Analyze("Breville toaster oven")
		assert.Equal(t, "toaster oven", attrs.ProductType)
	})

	t.Run("material and size words", func(t *testing.T) {
		attrs := a.Analyze("large stainless steel trash can")
		assert.Equal(t, "large", attrs.Size)
		assert.Equal(t, "stainless steel", attrs.Material)
	})

	t.Run("empty text", func(t *testing.T) {
		assert.Equal(t, "", a.Analyze("   ").Brand)
	})

	t.Run("is pure", func(t *testing.T) {
		assert.Equal(t, a.Analyze("Ninja air fryer 4 qt"), a.Analyze("Ninja air fryer 4 qt"))
	})
}

func TestExtractPackSize(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"Storage Bin, Set of 2", 2},
		{"pack of 6 towels", 6},
		{"4-pack light bulbs", 4},
		{"24 ct trash bags", 24},
		{"10 pc cookware set", 0},
		{"set of 1", 0},
		{"storage bin", 0},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, extractPackSize(tt.text))
		})
	}
}

func TestExtractSpecs(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"KitchenAid KSM150PS mixer", []string{"KSM150PS"}},
		{"Rubbermaid 18gal tote", nil},
		{"Dyson V15 Detect", nil},
		{"Whirlpool WRS325SDHZ fridge wrs325sdhz", []string{"WRS325SDHZ"}},
		{"A-1234 bracket", []string{"A-1234"}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, extractSpecs(tt.text))
		})
	}
}

func TestExtractCapacity(t *testing.T) {
	a := NewQueryAnalyzer(testRegistry())

	tests := []struct {
		text  string
		unit  string
		value float64
	}{
		{"Whirlpool 25 cu ft refrigerator", "cu_ft", 25},
		{"Frigidaire 4.5 Cu. Ft. mini fridge", "cu_ft", 4.5},
		{"Instant Pot 6 Quart", "quart", 6},
		{"Husky 27 gallon tote", "gallon", 27},
		{"Samsung 55 inch TV", "inch", 55},
		{"plain chair", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			c := a.extractCapacity(tt.text)
			assert.Equal(t, tt.unit, c.Unit)
			assert.Equal(t, tt.value, c.Value)
		})
	}
}
