package domain

// TrustClass is the outcome of source classification
type TrustClass string

const (
	Trusted TrustClass = "trusted"
	Blocked TrustClass = "blocked"
)

// Merchant is an alternate seller attached to a provider result
type Merchant struct {
	Name  string  `json:"name"`
	Link  string  `json:"link"`
	Price float64 `json:"price,omitempty"`
}

// Offer is one raw result returned by the shopping-search provider
type Offer struct {
	Title       string     `json:"title"`
	Price       float64    `json:"price"`
	PriceText   string     `json:"priceText,omitempty"`
	Source      string     `json:"source"`
	Link        string     `json:"link"`
	ProductLink string     `json:"productLink,omitempty"`
	ProductID   string     `json:"productId,omitempty"`
	Merchants   []Merchant `json:"merchants,omitempty"`
}

// Candidate is an offer under evaluation by the validator
type Candidate struct {
	Offer
	Strategy    string     `json:"strategy"`
	Direction   Direction  `json:"direction"`
	Trust       TrustClass `json:"trust"`
	TrustReason string     `json:"trustReason,omitempty"`
	// Adjacent marks marketplace-adjacent sources, which are penalised
	Adjacent     bool       `json:"adjacent"`
	PackSize     int        `json:"packSize"`
	UnitPrice    float64    `json:"unitPrice"`
	Attributes   Attributes `json:"attributes"`
	Score        float64    `json:"score"`
	Matched      []string   `json:"matched,omitempty"`
	Disqualified bool       `json:"disqualified"`
	Reasons      []string   `json:"reasons,omitempty"`
	// ListingOf names the source of the offer this listing was found through
	ListingOf string `json:"listingOf,omitempty"`
}

// Disqualify marks the candidate as discarded with a reason
func (c *Candidate) Disqualify(reason string) {
	c.Disqualified = true
	c.Reasons = append(c.Reasons, reason)
}
