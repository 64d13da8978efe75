package domain

// Direction is the expected price movement of a strategy relative to the exact item
type Direction string

const (
	DirectionExact  Direction = "exact"
	DirectionLower  Direction = "lower"
	DirectionHigher Direction = "higher"
	DirectionAny    Direction = "any"
)

// TimeoutTier selects the per-call timeout used for a strategy
type TimeoutTier string

const (
	TierFast   TimeoutTier = "fast"
	TierMedium TimeoutTier = "medium"
	TierSlow   TimeoutTier = "slow"
)

// SearchStrategy is one tagged query variant sent to the shopping provider
type SearchStrategy struct {
	Name      string      `json:"name"`
	Priority  int         `json:"priority"`
	Query     string      `json:"query"`
	Direction Direction   `json:"direction"`
	Tier      TimeoutTier `json:"tier"`
	// Alternative strategies surface substitutes rather than the exact item
	Alternative bool `json:"alternative"`
}
