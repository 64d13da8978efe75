package domain

// Capacity is a numeric size/capacity parsed from free text, e.g. "4.5 cu ft"
type Capacity struct {
	Raw   string  `json:"raw"`
	Value float64 `json:"value"`
	// Unit is canonical: cu_ft, inch, gallon, quart, liter, ...
	Unit string `json:"unit"`
}

// IsZero reports whether no capacity was parsed
func (c Capacity) IsZero() bool {
	return c.Value <= 0 || c.Unit == ""
}

// Attributes are the structured attributes derived from a free-text description
type Attributes struct {
	Brand       string   `json:"brand,omitempty"`
	ProductType string   `json:"productType,omitempty"`
	Category    string   `json:"category,omitempty"`
	Capacity    Capacity `json:"capacity"`
	// Size is a class word: mini, compact, standard, large
	Size     string `json:"size,omitempty"`
	Material string `json:"material,omitempty"`
	Color    string `json:"color,omitempty"`
	Finish   string `json:"finish,omitempty"`
	// Specs holds model-like codes, e.g. KSM150PS
	Specs []string `json:"specs,omitempty"`
	// PackSize is the unit count of a multi-pack ("set of 2" -> 2), 0 otherwise
	PackSize int `json:"packSize,omitempty"`
	// Words are the significant lowercase tokens of the text
	Words     []string `json:"words,omitempty"`
	HasDigits bool     `json:"hasDigits"`
}

// ItemQuery is a single request to price an item
type ItemQuery struct {
	Text string `json:"text"`
	// TargetPrice of 0 means no target
	TargetPrice      float64    `json:"targetPrice,omitempty"`
	TolerancePercent float64    `json:"tolerancePercent"`
	Attributes       Attributes `json:"attributes"`
}

// HasTarget reports whether the caller supplied a positive target price
func (q *ItemQuery) HasTarget() bool {
	return q.TargetPrice > 0
}

// Tolerance returns the tolerance as a fraction (15% -> 0.15)
func (q *ItemQuery) Tolerance() float64 {
	return q.TolerancePercent / 100
}

// PriceRequest is the public input to the engine
type PriceRequest struct {
	Query            string   `json:"query" binding:"required"`
	TargetPrice      *float64 `json:"targetPrice,omitempty"`
	TolerancePercent *float64 `json:"tolerancePercent,omitempty"`
}
