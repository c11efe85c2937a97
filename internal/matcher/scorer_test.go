package matcher

import (
	"testing"

	"github.com/place-matcher/app/models"
	"github.com/place-matcher/internal/normalizer"
)

func newTestScorer(cfg ScorerConfig) *Scorer {
	tn := normalizer.NewTextNormalizer(nil)
	cc := NewCategoryClassifier([]string{"Hospital", "Medical Center"}, false)
	return NewScorer(cfg, tn, cc)
}

func baseInput() ScoreInput {
	return ScoreInput{
		FacilityName:  "City General Hospital",
		TaggedAddress: "12 MG Road, Bangalore, Karnataka 560001, India",
		PostalCode:    "560001",
		Lat:           12.9716,
		Lon:           77.5946,
	}
}

func TestScoreDistanceDominates(t *testing.T) {
	s := newTestScorer(DefaultScorerConfig())
	in := baseInput()

	near := models.Candidate{
		Name: "City General Hospital", Address: "MG Road, Bangalore 560001",
		Lat: 12.9717, Lon: 77.5947, Category: "Hospital",
	}
	far := near
	far.Lat, far.Lon = 12.9850, 77.6100 // roughly 2 km away

	nearScore := s.Score(in, near)
	farScore := s.Score(in, far)
	if nearScore.Score <= farScore.Score {
		t.Errorf("near candidate %.2f not above far candidate %.2f",
			nearScore.Score, farScore.Score)
	}
	if nearScore.Breakdown.DistanceScore <= farScore.Breakdown.DistanceScore {
		t.Errorf("distance sub-score not ordered: %.2f vs %.2f",
			nearScore.Breakdown.DistanceScore, farScore.Breakdown.DistanceScore)
	}
}

func TestScorePostalAgreement(t *testing.T) {
	s := newTestScorer(DefaultScorerConfig())
	in := baseInput()

	agreeing := models.Candidate{
		Name: "City General Hospital", Address: "MG Road, Bangalore 560001, India",
		Lat: 12.9717, Lon: 77.5947, PostalCode: "560001", Category: "Hospital",
	}
	disagreeing := agreeing
	disagreeing.PostalCode = "560017"
	disagreeing.Address = "MG Road, Bangalore 560017, India"

	a := s.Score(in, agreeing)
	d := s.Score(in, disagreeing)
	if !a.Breakdown.PostalMatch {
		t.Fatal("agreeing candidate not flagged as postal match")
	}
	if d.Breakdown.PostalMatch {
		t.Fatal("disagreeing candidate flagged as postal match")
	}
	if a.Score <= d.Score {
		t.Errorf("postal agreement did not raise score: %.2f vs %.2f", a.Score, d.Score)
	}
}

func TestScoreReviewBonus(t *testing.T) {
	s := newTestScorer(DefaultScorerConfig())
	in := baseInput()
	cand := models.Candidate{
		Name: "City General Hospital", Address: "MG Road 560001",
		Lat: 12.9717, Lon: 77.5947, Category: "Hospital",
	}

	tests := []struct {
		reviews int
		want    float64
	}{
		{0, 0}, {199, 0}, {200, 1.0}, {999, 1.0}, {1000, 3.0}, {5000, 3.0},
	}
	for _, tt := range tests {
		c := cand
		c.Reviews = tt.reviews
		got := s.Score(in, c).Breakdown.ReviewBonus
		if got != tt.want {
			t.Errorf("reviews=%d bonus = %v, want %v", tt.reviews, got, tt.want)
		}
	}
}

func TestScoreHardOverride(t *testing.T) {
	cfg := DefaultScorerConfig()
	cfg.BrandTokens = []string{"apollo"}
	s := newTestScorer(cfg)

	in := ScoreInput{
		FacilityName:  "Apollo Clinic Indiranagar",
		TaggedAddress: "100 Feet Road, Indiranagar, Bangalore 560038, India",
		PostalCode:    "560038",
		Lat:           12.9784,
		Lon:           77.6408,
	}
	cand := models.Candidate{
		Name:    "Apollo Hospital",
		Address: "100 Feet Road, Indiranagar, Bangalore 560038",
		Lat:     12.9790, Lon: 77.6415,
		Category: "Hospital",
	}

	got := s.Score(in, cand)
	if !got.Breakdown.Override {
		t.Fatal("override did not fire for brand + proximity + postal agreement")
	}
	if got.Score != OverrideScore {
		t.Errorf("override score = %v, want %v", got.Score, OverrideScore)
	}

	t.Run("disabled", func(t *testing.T) {
		off := cfg
		off.OverrideOn = false
		s := newTestScorer(off)
		got := s.Score(in, cand)
		if got.Breakdown.Override || got.Score == OverrideScore {
			t.Errorf("override fired while disabled: %+v", got)
		}
	})

	t.Run("too far", func(t *testing.T) {
		farCand := cand
		farCand.Lat, farCand.Lon = 13.05, 77.70 // well beyond the override radius
		got := s.Score(in, farCand)
		if got.Breakdown.Override {
			t.Error("override fired beyond the distance gate")
		}
	})

	t.Run("postal disagreement", func(t *testing.T) {
		noPin := in
		noPin.PostalCode = "110001"
		got := s.Score(noPin, cand)
		if got.Breakdown.Override {
			t.Error("override fired without postal agreement")
		}
	})
}

func TestScoreIdenticalNameOutranksDifferent(t *testing.T) {
	s := newTestScorer(DefaultScorerConfig())
	in := baseInput()

	exact := models.Candidate{
		Name: "City General Hospital", Address: "12 MG Road, Bangalore 560001",
		Lat: 12.9717, Lon: 77.5947, Category: "Hospital",
	}
	other := exact
	other.Name = "Sunrise Multispeciality Hospital"

	a, b := s.Score(in, exact), s.Score(in, other)
	if a.Breakdown.NameSim <= b.Breakdown.NameSim {
		t.Errorf("name similarity not ordered: %.2f vs %.2f",
			a.Breakdown.NameSim, b.Breakdown.NameSim)
	}
	if a.Score <= b.Score {
		t.Errorf("exact name %.2f not above different name %.2f", a.Score, b.Score)
	}
}

func TestScoreLegacyBrandLocalityTerms(t *testing.T) {
	cfg := DefaultScorerConfig()
	cfg.BrandTokens = []string{"fortis"}
	cfg.Weights.Brand = 0.15
	cfg.Weights.Locality = 0.12
	cfg.OverrideOn = false
	s := newTestScorer(cfg)

	in := ScoreInput{
		FacilityName:  "Fortis Hospital BG Road",
		TaggedAddress: "Bannerghatta Road, Bangalore 560076, India",
		PostalCode:    "560076",
		Lat:           12.8910,
		Lon:           77.5970,
	}
	branded := models.Candidate{
		Name: "Fortis Hospital", Address: "Bannerghatta Road, Bangalore 560076",
		Lat: 12.8915, Lon: 77.5975, Category: "Hospital",
	}
	unbranded := branded
	unbranded.Name = "General Hospital"

	a, b := s.Score(in, branded), s.Score(in, unbranded)
	if a.Breakdown.BrandHits == 0 {
		t.Fatal("brand hit not counted")
	}
	if a.Score <= b.Score {
		t.Errorf("brand term did not raise score: %.2f vs %.2f", a.Score, b.Score)
	}
}
