package matcher

import (
	"math"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"

	"github.com/place-matcher/app/models"
	"github.com/place-matcher/internal/normalizer"
)

// OverrideScore is the sentinel assigned when the hard-override rule fires.
// It sits far above any weighted score, so an override always wins selection
// and always clears the acceptance threshold.
const OverrideScore = 1000.0

// Weights are the blend shares of each signal. Distance and postal agreement
// are meant to dominate; text similarity refines; Brand and Locality default
// to zero and exist for the run profile that scores brand evidence directly
// instead of relying on the hard override.
type Weights struct {
	Distance float64 `yaml:"distance"`
	Postal   float64 `yaml:"postal"`
	Name     float64 `yaml:"name"`
	Address  float64 `yaml:"address"`
	Category float64 `yaml:"category"`
	Brand    float64 `yaml:"brand"`
	Locality float64 `yaml:"locality"`
}

// DefaultWeights mirror the production tuning: 45/25/20/10/3.
func DefaultWeights() Weights {
	return Weights{Distance: 0.45, Postal: 0.25, Name: 0.20, Address: 0.10, Category: 0.03}
}

// ReviewTier grants a flat bonus at or above a review count.
type ReviewTier struct {
	MinReviews int     `yaml:"min_reviews"`
	Bonus      float64 `yaml:"bonus"`
}

// ScorerConfig tunes the blended score and the hard-override rule.
type ScorerConfig struct {
	Weights       Weights
	ReviewTiers   []ReviewTier
	BrandTokens   []string
	OverrideOn    bool
	OverrideMaxKm float64
}

// DefaultScorerConfig returns the production defaults; brand tokens come from
// the vocabulary table and are left empty here.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		Weights: DefaultWeights(),
		ReviewTiers: []ReviewTier{
			{MinReviews: 1000, Bonus: 3.0},
			{MinReviews: 200, Bonus: 1.0},
		},
		OverrideOn:    true,
		OverrideMaxKm: 0.8,
	}
}

// ScoreInput is the slice of an input record the scorer needs.
type ScoreInput struct {
	FacilityName  string
	TaggedAddress string
	PostalCode    string
	Lat, Lon      float64
}

// Scorer computes the blended confidence score of a candidate against one
// input record.
type Scorer struct {
	cfg        ScorerConfig
	normalizer *normalizer.TextNormalizer
	classifier *CategoryClassifier
	brands     map[string]struct{}
}

// NewScorer wires the scorer with its text normalizer and the category
// classifier used for the category bonus.
func NewScorer(cfg ScorerConfig, tn *normalizer.TextNormalizer, cc *CategoryClassifier) *Scorer {
	brands := make(map[string]struct{}, len(cfg.BrandTokens))
	for _, b := range cfg.BrandTokens {
		b = strings.ToLower(strings.TrimSpace(b))
		if b != "" {
			brands[b] = struct{}{}
		}
	}
	return &Scorer{cfg: cfg, normalizer: tn, classifier: cc, brands: brands}
}

// Score blends distance, postal agreement, name/address similarity and the
// category and popularity bonuses into one open-ended score. The hard
// override, when it fires, short-circuits to OverrideScore.
func (s *Scorer) Score(in ScoreInput, cand models.Candidate) models.ScoredCandidate {
	dKm := HaversineKm(in.Lat, in.Lon, cand.Lat, cand.Lon)
	ds := DistanceScore(dKm)
	postalOK := normalizer.PostalAgrees(in.PostalCode, cand.PostalCode, cand.Address)
	nameSim := s.fuzzyRatio(in.FacilityName, cand.Name)
	addrSim := s.fuzzyRatio(in.TaggedAddress, cand.Address)
	catOK := s.classifier.Classify(cand.Category) == Allowed
	hits := s.brandHits(in.FacilityName, in.TaggedAddress, cand.Name, cand.Address)
	revBonus := s.reviewBonus(cand.Reviews)

	bd := models.ScoreBreakdown{
		DistanceKm:    dKm,
		DistanceScore: ds,
		PostalMatch:   postalOK,
		NameSim:       nameSim,
		AddrSim:       addrSim,
		BrandHits:     hits,
		CategoryOK:    catOK,
		ReviewBonus:   revBonus,
	}

	if s.cfg.OverrideOn && hits > 0 && dKm <= s.cfg.OverrideMaxKm && postalOK {
		bd.Override = true
		return models.ScoredCandidate{Candidate: cand, Score: OverrideScore, Breakdown: bd}
	}

	w := s.cfg.Weights
	score := w.Distance*ds +
		w.Postal*boolScore(postalOK) +
		w.Name*nameSim +
		w.Address*addrSim +
		w.Category*boolScore(catOK) +
		revBonus
	if w.Brand > 0 {
		score += w.Brand * math.Min(100.0, float64(hits)*50.0)
	}
	if w.Locality > 0 {
		score += w.Locality * s.localityHits(in.TaggedAddress, cand.Address)
	}

	return models.ScoredCandidate{Candidate: cand, Score: score, Breakdown: bd}
}

// fuzzyRatio is a 0-100 similarity over normalized strings: the better of
// Jaro-Winkler and a length-normalized Levenshtein ratio.
func (s *Scorer) fuzzyRatio(a, b string) float64 {
	na, nb := s.normalizer.Normalize(a), s.normalizer.Normalize(b)
	if na == "" || nb == "" {
		return 0.0
	}
	jw := smetrics.JaroWinkler(na, nb, 0.7, 4) * 100.0

	maxLen := math.Max(float64(len(na)), float64(len(nb)))
	lev := 100.0 * (1.0 - float64(levenshtein.ComputeDistance(na, nb))/maxLen)

	return math.Max(jw, lev)
}

// brandHits counts brand tokens shared between the record's name/address and
// the candidate's name/address.
func (s *Scorer) brandHits(facility, tagged, candName, candAddr string) int {
	if len(s.brands) == 0 {
		return 0
	}
	in := s.normalizer.TokenSet(facility)
	for tok := range s.normalizer.TokenSet(tagged) {
		in[tok] = struct{}{}
	}
	cand := s.normalizer.TokenSet(candName)
	for tok := range s.normalizer.TokenSet(candAddr) {
		cand[tok] = struct{}{}
	}

	hits := 0
	for b := range s.brands {
		if _, ok := in[b]; !ok {
			continue
		}
		if _, ok := cand[b]; ok {
			hits++
		}
	}
	return hits
}

// localityHits is a 0-100 Jaccard over non-brand tokens of 3+ characters.
func (s *Scorer) localityHits(tagged, candAddr string) float64 {
	ta := s.localityTokens(tagged)
	ca := s.localityTokens(candAddr)
	if len(ta) == 0 || len(ca) == 0 {
		return 0.0
	}
	inter := 0
	for tok := range ta {
		if _, ok := ca[tok]; ok {
			inter++
		}
	}
	union := len(ta) + len(ca) - inter
	return 100.0 * float64(inter) / float64(union)
}

func (s *Scorer) localityTokens(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for tok := range s.normalizer.TokenSet(text) {
		if len(tok) < 3 {
			continue
		}
		if _, brand := s.brands[tok]; brand {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

func (s *Scorer) reviewBonus(reviews int) float64 {
	best := 0.0
	for _, tier := range s.cfg.ReviewTiers {
		if reviews >= tier.MinReviews && tier.Bonus > best {
			best = tier.Bonus
		}
	}
	return best
}

func boolScore(ok bool) float64 {
	if ok {
		return 100.0
	}
	return 0.0
}
