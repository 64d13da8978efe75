package usecase

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/registry"
	"github.com/rs/zerolog"
)

// Package-level compiled regex pattern for performance
var punctuationRegex = regexp.MustCompile(`[^\w\s]`)

// Dimension weights; they sum to 1.0 and are renormalised over the
// dimensions the query actually specifies
const (
	weightText     = 0.30
	weightBrand    = 0.22
	weightType     = 0.23
	weightSize     = 0.15
	weightMaterial = 0.10
)

// Penalties
const (
	adjacentPenalty = 0.8
	// model codes make up this share of the text dimension when present
	specShare   = 0.4
	unknownCred = 0.5
	// size class rank gap that counts as a hard mismatch
	sizeRankHardGap = 2
)

// Price-vs-target outlier multipliers, tightest band first
var outlierBands = []struct {
	low, high, factor float64
}{
	{0.7, 1.5, 1.0},
	{0.5, 2.0, 0.9},
	{0.25, 4.0, 0.75},
}

const extremeOutlierFactor = 0.5

// ScorerConfig holds configuration for the candidate scorer
type ScorerConfig struct {
	MinScore float64
}

// CandidateScorer scores offers against the query and discards hard mismatches
type CandidateScorer struct {
	analyzer *QueryAnalyzer
	trust    *TrustFilter
	reg      *registry.Registry
	minScore float64
	log      zerolog.Logger
}

// NewCandidateScorer creates a scorer; MinScore <= 0 means 0.3
func NewCandidateScorer(analyzer *QueryAnalyzer, trust *TrustFilter, cfg ScorerConfig, logger zerolog.Logger) *CandidateScorer {
	minScore := cfg.MinScore
	if minScore <= 0 {
		minScore = 0.3
	}
	return &CandidateScorer{
		analyzer: analyzer,
		trust:    trust,
		reg:      analyzer.Registry(),
		minScore: minScore,
		log:      logger,
	}
}

// Validate scores every candidate in place and returns the accepted ones.
// skip maps a candidate label to the reason it was discarded.
func (s *CandidateScorer) Validate(q domain.ItemQuery, cands []domain.Candidate) (accepted []domain.Candidate, skip map[string]string, err error) {
	skip = map[string]string{}
	for i := range cands {
		c := &cands[i]
		s.Score(q, c)
		if c.Disqualified {
			skip[candidateLabel(c)] = strings.Join(c.Reasons, "; ")
			s.log.Debug().Str("title", c.Title).Str("source", c.Source).Strs("reasons", c.Reasons).Msg("candidate discarded")
			continue
		}
		s.log.Debug().Str("title", c.Title).Str("source", c.Source).Float64("score", c.Score).Float64("unit_price", c.UnitPrice).Msg("candidate accepted")
		accepted = append(accepted, *c)
	}
	if len(accepted) == 0 {
		return nil, skip, domain.ErrNoQualifyingCandidate
	}
	return accepted, skip, nil
}

// Score derives candidate attributes, normalises multi-pack prices, applies
// the hard-mismatch rules and computes the weighted score.
func (s *CandidateScorer) Score(q domain.ItemQuery, c *domain.Candidate) {
	c.Attributes = s.analyzer.Analyze(c.Title)
	c.PackSize = c.Attributes.PackSize
	c.UnitPrice = c.Price
	// A multi-pack is priced per unit unless the query asks for the same pack
	if c.PackSize > 1 && q.Attributes.PackSize != c.PackSize {
		c.UnitPrice = domain.RoundCents(c.Price / float64(c.PackSize))
	}
	if c.Trust == "" {
		c.Trust, c.TrustReason = s.trust.ClassifyOffer(c.Offer)
	}
	c.Adjacent = s.trust.IsAdjacent(c.Source)

	if c.Trust == domain.Blocked {
		c.Disqualify("untrusted source: " + c.TrustReason)
		return
	}
	if c.UnitPrice <= 0 || math.IsNaN(c.UnitPrice) || math.IsInf(c.UnitPrice, 0) {
		c.Disqualify("missing price")
		return
	}
	if reason := s.hardMismatch(q, c); reason != "" {
		c.Disqualify(reason)
		return
	}

	qa := q.Attributes
	var total, weight float64
	c.Matched = c.Matched[:0]

	text, specHit := s.textScore(q, c)
	total += weightText * text
	weight += weightText
	if specHit {
		c.Matched = append(c.Matched, "model:"+strings.Join(qa.Specs, " "))
	}

	if qa.Brand != "" {
		b := s.brandScore(qa, c)
		total += weightBrand * b
		weight += weightBrand
		if b >= 1 {
			c.Matched = append(c.Matched, "brand:"+qa.Brand)
		}
	}

	if qa.ProductType != "" {
		t := s.typeScore(qa, c.Attributes)
		total += weightType * t
		weight += weightType
		if t >= 1 {
			c.Matched = append(c.Matched, "productType:"+qa.ProductType)
		}
	}

	if !qa.Capacity.IsZero() || qa.Size != "" {
		sz := s.sizeScore(qa, c.Attributes)
		total += weightSize * sz
		weight += weightSize
		if sz >= 1 {
			if !qa.Capacity.IsZero() {
				c.Matched = append(c.Matched, "capacity:"+qa.Capacity.Raw)
			} else {
				c.Matched = append(c.Matched, "size:"+qa.Size)
			}
		}
	}

	if qa.Material != "" || qa.Finish != "" {
		m := materialScore(qa, c.Attributes)
		total += weightMaterial * m
		weight += weightMaterial
		if m >= 1 {
			if qa.Material != "" {
				c.Matched = append(c.Matched, "material:"+qa.Material)
			} else {
				c.Matched = append(c.Matched, "finish:"+qa.Finish)
			}
		}
	}

	score := total / weight
	if c.Adjacent {
		score *= adjacentPenalty
	}
	if q.HasTarget() {
		score *= outlierFactor(c.UnitPrice / q.TargetPrice)
	}
	c.Score = math.Round(score*1000) / 1000

	if c.Score < s.minScore {
		c.Disqualify(fmt.Sprintf("score %.2f below minimum %.2f", c.Score, s.minScore))
	}
}

// hardMismatch returns a reason when the candidate is a different product outright
func (s *CandidateScorer) hardMismatch(q domain.ItemQuery, c *domain.Candidate) string {
	qa, ca := q.Attributes, c.Attributes
	alternative := c.Direction != "" && c.Direction != domain.DirectionExact

	// Alternate-brand strategies exist to surface other brands
	if !alternative && qa.Brand != "" && ca.Brand != "" && !strings.EqualFold(qa.Brand, ca.Brand) {
		if !s.mentionsBrand(c.Title, qa.Brand) {
			return fmt.Sprintf("brand conflict: %s vs %s", qa.Brand, ca.Brand)
		}
	}

	// Capacity-variant strategies deliberately look across capacity classes
	if c.Direction != domain.DirectionLower && c.Direction != domain.DirectionHigher {
		if !qa.Capacity.IsZero() && qa.Capacity.Unit == ca.Capacity.Unit && !ca.Capacity.IsZero() {
			if unit := s.reg.UnitByName(qa.Capacity.Unit); unit != nil {
				delta := relativeDelta(qa.Capacity.Value, ca.Capacity.Value)
				if unit.ClassOf(qa.Capacity.Value) != unit.ClassOf(ca.Capacity.Value) && delta > unit.MaxDelta+1e-9 {
					return fmt.Sprintf("capacity class mismatch: %s vs %s", qa.Capacity.Raw, ca.Capacity.Raw)
				}
			}
		}
	}

	if qa.Size != "" && ca.Size != "" {
		qr, qok := s.reg.SizeRank(qa.Size)
		cr, cok := s.reg.SizeRank(ca.Size)
		if qok && cok && absInt(qr-cr) >= sizeRankHardGap {
			return fmt.Sprintf("size class mismatch: %s vs %s", qa.Size, ca.Size)
		}
	}

	return ""
}

func (s *CandidateScorer) mentionsBrand(title, brand string) bool {
	if registry.NewTerm(brand).In(title) {
		return true
	}
	if b := s.reg.BrandByName(brand); b != nil {
		for _, alias := range b.Aliases {
			if registry.NewTerm(alias).In(title) {
				return true
			}
		}
	}
	return false
}

// textScore is substring or word-overlap match, blended with model-code hits.
func (s *CandidateScorer) textScore(q domain.ItemQuery, c *domain.Candidate) (float64, bool) {
	queryNorm := normalizeText(cleanQueryText(q.Text))
	titleNorm := normalizeText(c.Title)

	var overlap float64
	switch {
	case queryNorm != "" && strings.Contains(titleNorm, queryNorm):
		overlap = 1
	default:
		overlap = wordOverlap(q.Attributes.Words, c.Attributes.Words)
	}

	if len(q.Attributes.Specs) == 0 {
		return overlap, false
	}

	titleCode := normalizeSpec(c.Title)
	hits := 0
	for _, spec := range q.Attributes.Specs {
		if n := normalizeSpec(spec); n != "" && strings.Contains(titleCode, n) {
			hits++
		}
	}
	specFrac := float64(hits) / float64(len(q.Attributes.Specs))
	return (1-specShare)*overlap + specShare*specFrac, hits == len(q.Attributes.Specs)
}

func (s *CandidateScorer) brandScore(qa domain.Attributes, c *domain.Candidate) float64 {
	switch {
	case strings.EqualFold(qa.Brand, c.Attributes.Brand), s.mentionsBrand(c.Title, qa.Brand):
		return 1
	case c.Attributes.Brand == "":
		return unknownCred
	default:
		// only reachable for alternate-brand strategies
		return 0
	}
}

func (s *CandidateScorer) typeScore(qa, ca domain.Attributes) float64 {
	switch {
	case strings.EqualFold(qa.ProductType, ca.ProductType):
		return 1
	case ca.ProductType == "":
		return 0.3
	case qa.Category != "" && qa.Category == ca.Category:
		return 0.4
	default:
		return 0
	}
}

func (s *CandidateScorer) sizeScore(qa, ca domain.Attributes) float64 {
	var sum float64
	n := 0

	if !qa.Capacity.IsZero() {
		n++
		switch {
		case ca.Capacity.IsZero() || ca.Capacity.Unit != qa.Capacity.Unit:
			sum += unknownCred
		default:
			maxDelta := 0.3
			if unit := s.reg.UnitByName(qa.Capacity.Unit); unit != nil {
				maxDelta = unit.MaxDelta
			}
			delta := relativeDelta(qa.Capacity.Value, ca.Capacity.Value)
			sum += math.Max(0, 1-delta/(2*maxDelta))
		}
	}

	if qa.Size != "" {
		n++
		qr, _ := s.reg.SizeRank(qa.Size)
		if cr, ok := s.reg.SizeRank(ca.Size); ok {
			sum += math.Max(0, 1-0.5*float64(absInt(qr-cr)))
		} else {
			sum += unknownCred
		}
	}

	if n == 0 {
		return 1
	}
	return sum / float64(n)
}

func materialScore(qa, ca domain.Attributes) float64 {
	var sum float64
	n := 0
	for _, pair := range [][2]string{{qa.Material, ca.Material}, {qa.Finish, ca.Finish}} {
		if pair[0] == "" {
			continue
		}
		n++
		switch {
		case strings.EqualFold(pair[0], pair[1]):
			sum++
		case pair[1] == "":
			sum += unknownCred
		}
	}
	if n == 0 {
		return 1
	}
	return sum / float64(n)
}

// outlierFactor penalises unit prices far from the target
func outlierFactor(ratio float64) float64 {
	for _, band := range outlierBands {
		if ratio >= band.low && ratio <= band.high {
			return band.factor
		}
	}
	return extremeOutlierFactor
}

// wordOverlap is the share of query words found in the title, with plural tolerance
func wordOverlap(queryWords, titleWords []string) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	title := make(map[string]bool, len(titleWords))
	for _, w := range titleWords {
		title[singular(w)] = true
	}
	matched := 0
	for _, w := range queryWords {
		if title[singular(w)] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryWords))
}

func singular(w string) string {
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return w[:len(w)-1]
	}
	return w
}

func normalizeText(s string) string {
	s = punctuationRegex.ReplaceAllString(strings.ToLower(s), " ")
	return strings.Join(strings.Fields(s), " ")
}

func relativeDelta(a, b float64) float64 {
	hi := math.Max(a, b)
	if hi <= 0 {
		return 0
	}
	return math.Abs(a-b) / hi
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func candidateLabel(c *domain.Candidate) string {
	return fmt.Sprintf("%s @ %s ($%.2f)", c.Title, c.Source, c.Price)
}

// matchQuality labels an accepted winner
func matchQuality(q domain.ItemQuery, c *domain.Candidate) string {
	if c.Direction != "" && c.Direction != domain.DirectionExact {
		return domain.MatchAlternative
	}
	brandOK := q.Attributes.Brand == "" || hasMatched(c, "brand:")
	switch {
	case c.Score >= 0.75 && brandOK:
		return domain.MatchExact
	case c.Score >= 0.5:
		return domain.MatchClose
	default:
		return domain.MatchAlternative
	}
}

func hasMatched(c *domain.Candidate, prefix string) bool {
	for _, m := range c.Matched {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}
