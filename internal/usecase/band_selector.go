package usecase

import (
	"sort"

	"github.com/pricelens/backend/internal/domain"
)

// Selection tiers
const (
	TierInBand  = "in_band"
	TierStretch = "stretch_band"
	TierGlobal  = "global_lowest"
	TierLowest  = "lowest_no_target"
)

const (
	defaultStretchFactor = 1.35
	// short generic queries drop candidates under this share of target
	accessoryGuardFactor = 0.5
	shortQueryWords      = 2
	bandEpsilon          = 1e-6
)

// BandSelector chooses the winning candidate given an optional target price
type BandSelector struct {
	stretch float64
}

// NewBandSelector creates a selector; stretch <= 1 means 1.35
func NewBandSelector(stretch float64) *BandSelector {
	if stretch <= 1 {
		stretch = defaultStretchFactor
	}
	return &BandSelector{stretch: stretch}
}

// Band returns the [low, high] acceptance window for a query with a target
func Band(q domain.ItemQuery) (float64, float64) {
	t, tau := q.TargetPrice, q.Tolerance()
	return t * (1 - tau), t * (1 + tau)
}

// Select returns the winning candidate and the tier it was chosen from.
// Prices compared are per-unit prices. ok is false when nothing survives
// the short-query guardrail.
func (s *BandSelector) Select(q domain.ItemQuery, cands []domain.Candidate) (winner *domain.Candidate, tier string, ok bool) {
	pool := make([]*domain.Candidate, 0, len(cands))
	for i := range cands {
		if cands[i].Disqualified || cands[i].Trust == domain.Blocked || cands[i].UnitPrice <= 0 {
			continue
		}
		pool = append(pool, &cands[i])
	}

	if q.HasTarget() && isShortGeneric(q) {
		floor := q.TargetPrice * accessoryGuardFactor
		kept := pool[:0]
		for _, c := range pool {
			if c.UnitPrice >= floor {
				kept = append(kept, c)
			}
		}
		pool = kept
	}

	if len(pool) == 0 {
		return nil, "", false
	}

	// cheapest first; ties go to the better score, then to the earlier strategy
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].UnitPrice != pool[j].UnitPrice {
			return pool[i].UnitPrice < pool[j].UnitPrice
		}
		return pool[i].Score > pool[j].Score
	})

	if !q.HasTarget() {
		return pool[0], TierLowest, true
	}

	low, high := Band(q)
	if c := firstWithin(pool, low, high); c != nil {
		return c, TierInBand, true
	}
	if c := firstWithin(pool, low, q.TargetPrice*s.stretch); c != nil {
		return c, TierStretch, true
	}
	return pool[0], TierGlobal, true
}

// firstWithin returns the cheapest candidate of a price-sorted pool inside [low, high]
func firstWithin(pool []*domain.Candidate, low, high float64) *domain.Candidate {
	for _, c := range pool {
		if c.UnitPrice >= low-bandEpsilon && c.UnitPrice <= high+bandEpsilon {
			return c
		}
	}
	return nil
}

func isShortGeneric(q domain.ItemQuery) bool {
	return len(q.Attributes.Words) <= shortQueryWords && !q.Attributes.HasDigits
}
