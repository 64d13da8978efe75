package domain

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is the only currency the engine prices in
const Currency = "USD"

var priceNumberRegex = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?`)

// ParsePrice extracts the first amount from a display string such as "$1,299.99" or "299.00 USD"
func ParsePrice(text string) (float64, bool) {
	m := priceNumberRegex.FindString(text)
	if m == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m, ",", ""))
	if err != nil || !d.IsPositive() {
		return 0, false
	}
	return d.Round(2).InexactFloat64(), true
}

// RoundCents rounds an amount half-away-from-zero to whole cents
func RoundCents(amount float64) float64 {
	return decimal.NewFromFloat(amount).Round(2).InexactFloat64()
}
