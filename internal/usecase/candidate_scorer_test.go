package usecase

import (
	"errors"
	"testing"

	"github.com/pricelens/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScorer() *CandidateScorer {
	reg := testRegistry()
	return NewCandidateScorer(NewQueryAnalyzer(reg), NewTrustFilter(reg), ScorerConfig{}, nopLogger())
}

func candidate(title, source string, price float64) domain.Candidate {
	return domain.Candidate{
		Offer:     domain.Offer{Title: title, Source: source, Price: price},
		Direction: domain.DirectionExact,
	}
}

func TestCandidateScorer_Score(t *testing.T) {
	reg := testRegistry()
	s := newTestScorer()

	t.Run("multi-pack is priced per unit", func(t *testing.T) {
		q := testQuery(reg, "storage bin", 0, 25)
		c := candidate("Sterilite Storage Bin, Set of 2", "Target", 20)
		s.Score(q, &c)

		require.False(t, c.Disqualified, c.Reasons)
		assert.Equal(t, 2, c.PackSize)
		assert.Equal(t, 10.0, c.UnitPrice)
		assert.Equal(t, 1.0, c.Score)
		assert.Contains(t, c.Matched, "productType:storage bin")
	})

	t.Run("same pack size as the query keeps the listed price", func(t *testing.T) {
		q := testQuery(reg, "storage bin set of 2", 0, 25)
		c := candidate("Sterilite Storage Bin, Set of 2", "Target", 20)
		s.Score(q, &c)
		assert.Equal(t, 20.0, c.UnitPrice)
	})

	t.Run("brand conflict is a hard mismatch for exact strategies", func(t *testing.T) {
		q := testQuery(reg, "KitchenAid stand mixer", 0, 25)
		c := candidate("Cuisinart 5.5 Qt Stand Mixer", "Amazon", 249.99)
		s.Score(q, &c)

		assert.True(t, c.Disqualified)
		assert.Contains(t, c.Reasons[0], "brand conflict")
	})

	t.Run("alternate-brand strategies may return other brands", func(t *testing.T) {
		q := testQuery(reg, "KitchenAid stand mixer", 0, 25)
		c := candidate("Cuisinart 5.5 Qt Stand Mixer", "Amazon", 249.99)
		c.Direction = domain.DirectionAny
		s.Score(q, &c)

		assert.False(t, c.Disqualified, c.Reasons)
		assert.Equal(t, domain.MatchAlternative, matchQuality(q, &c))
	})

	t.Run("capacity class mismatch", func(t *testing.T) {
		q := testQuery(reg, "Whirlpool refrigerator 25 cu ft", 0, 25)
		c := candidate("Whirlpool 4.5 cu ft refrigerator", "Lowe's", 299)
		s.Score(q, &c)

		assert.True(t, c.Disqualified)
		assert.Contains(t, c.Reasons[0], "capacity class mismatch")
	})

	t.Run("capacity variants are not held to the class rule", func(t *testing.T) {
		q := testQuery(reg, "Whirlpool refrigerator 25 cu ft", 0, 25)
		c := candidate("Whirlpool 4.5 cu ft refrigerator", "Lowe's", 299)
		c.Direction = domain.DirectionLower
		s.Score(q, &c)

		assert.False(t, c.Disqualified, c.Reasons)
	})

	t.Run("size rank gap of two is a hard mismatch", func(t *testing.T) {
		q := testQuery(reg, "mini storage bin", 0, 25)
		c := candidate("Large Storage Bin", "Target", 15)
		s.Score(q, &c)

		assert.True(t, c.Disqualified)
		assert.Contains(t, c.Reasons[0], "size class mismatch")
	})

	t.Run("blocked source", func(t *testing.T) {
		q := testQuery(reg, "storage bin", 0, 25)
		c := candidate("Storage Bin", "eBay", 9)
		s.Score(q, &c)

		assert.True(t, c.Disqualified)
		assert.Equal(t, domain.Blocked, c.Trust)
		assert.Contains(t, c.Reasons[0], "untrusted source")
	})

	t.Run("missing price", func(t *testing.T) {
		q := testQuery(reg, "storage bin", 0, 25)
		c := candidate("Storage Bin", "Target", 0)
		s.Score(q, &c)

		assert.True(t, c.Disqualified)
		assert.Equal(t, []string{"missing price"}, c.Reasons)
	})

	t.Run("marketplace-adjacent sources are penalised", func(t *testing.T) {
		q := testQuery(reg, "Rubbermaid storage bin", 0, 25)
		direct := candidate("Rubbermaid Storage Bin", "Walmart", 12)
		adjacent := candidate("Rubbermaid Storage Bin", "Walmart - Seller", 12)
		s.Score(q, &direct)
		s.Score(q, &adjacent)

		assert.True(t, adjacent.Adjacent)
		assert.InDelta(t, direct.Score*adjacentPenalty, adjacent.Score, 0.001)
	})

	t.Run("price outliers are penalised", func(t *testing.T) {
		q := testQuery(reg, "storage bin", 10, 25)
		near := candidate("Storage Bin", "Target", 11)
		far := candidate("Storage Bin", "Target", 50)
		s.Score(q, &near)
		s.Score(q, &far)

		assert.Equal(t, 1.0, near.Score)
		assert.Equal(t, extremeOutlierFactor, far.Score)
	})

	t.Run("model code match is recorded", func(t *testing.T) {
		q := testQuery(reg, "KitchenAid stand mixer KSM150PS", 0, 25)
		c := candidate("KitchenAid Artisan Stand Mixer KSM150PSER", "Best Buy", 329.99)
		s.Score(q, &c)

		require.False(t, c.Disqualified, c.Reasons)
		assert.Contains(t, c.Matched, "model:KSM150PS")
		assert.Contains(t, c.Matched, "brand:KitchenAid")
		assert.Equal(t, domain.MatchExact, matchQuality(q, &c))
	})

	t.Run("score stays within bounds", func(t *testing.T) {
		q := testQuery(reg, "KitchenAid Artisan Stand Mixer KSM150PS 5 qt", 300, 15)
		for _, title := range []string{"KitchenAid Mixer", "Bowl", "KitchenAid Artisan Stand Mixer KSM150PS 5 qt"} {
			c := candidate(title, "Amazon", 299)
			s.Score(q, &c)
			assert.GreaterOrEqual(t, c.Score, 0.0)
			assert.LessOrEqual(t, c.Score, 1.0)
		}
	})
}

func TestCandidateScorer_Validate(t *testing.T) {
	reg := testRegistry()
	s := newTestScorer()
	q := testQuery(reg, "storage bin", 0, 25)

	t.Run("returns only accepted candidates", func(t *testing.T) {
		cands := []domain.Candidate{
			candidate("Sterilite Storage Bin", "Target", 9.99),
			candidate("Storage Bin", "AliExpress", 2),
		}
		accepted, skipped, err := s.Validate(q, cands)

		require.NoError(t, err)
		require.Len(t, accepted, 1)
		assert.Equal(t, "Target", accepted[0].Source)
		assert.Len(t, skipped, 1)
	})

	t.Run("nothing qualifies", func(t *testing.T) {
		cands := []domain.Candidate{candidate("Storage Bin", "eBay", 5)}
		accepted, skipped, err := s.Validate(q, cands)

		assert.True(t, errors.Is(err, domain.ErrNoQualifyingCandidate))
		assert.Empty(t, accepted)
		assert.Contains(t, skipped, "Storage Bin @ eBay ($5.00)")
	})
}

func TestOutlierFactor(t *testing.T) {
	tests := []struct {
		ratio float64
		want  float64
	}{
		{1.0, 1.0},
		{0.7, 1.0},
		{1.5, 1.0},
		{0.6, 0.9},
		{1.9, 0.9},
		{0.3, 0.75},
		{3.5, 0.75},
		{0.1, 0.5},
		{10, 0.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, outlierFactor(tt.ratio), "ratio %v", tt.ratio)
	}
}

func TestWordOverlap(t *testing.T) {
	assert.Equal(t, 1.0, wordOverlap([]string{"storage", "bins"}, []string{"storage", "bin"}))
	assert.Equal(t, 0.5, wordOverlap([]string{"glass", "vase"}, []string{"glass", "bowl"}))
	assert.Equal(t, 0.0, wordOverlap(nil, []string{"anything"}))
}
