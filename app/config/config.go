package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/place-matcher/internal/matcher"
)

type Thresholds struct {
	Accept        float64 `yaml:"accept" json:"accept"`
	OverrideMaxKm float64 `yaml:"override_max_km" json:"override_max_km"`
}

type ReviewPolicy struct {
	MinReviews int                  `yaml:"min_reviews" json:"min_reviews"`
	Tiers      []matcher.ReviewTier `yaml:"tiers" json:"tiers"`
}

type RegionBox struct {
	LatMin float64 `yaml:"lat_min" json:"lat_min"`
	LatMax float64 `yaml:"lat_max" json:"lat_max"`
	LonMin float64 `yaml:"lon_min" json:"lon_min"`
	LonMax float64 `yaml:"lon_max" json:"lon_max"`
}

type SearchCfg struct {
	Keyword      string `yaml:"keyword" json:"keyword"`
	Country      string `yaml:"country" json:"country"`
	ResultLimit  int    `yaml:"result_limit" json:"result_limit"`
	RadiusMeters int    `yaml:"radius_meters" json:"radius_meters"`
}

type MatcherCfg struct {
	Search       SearchCfg         `yaml:"search" json:"search"`
	Weights      matcher.Weights   `yaml:"weights" json:"weights"`
	Thresholds   Thresholds        `yaml:"thresholds" json:"thresholds"`
	Reviews      ReviewPolicy      `yaml:"reviews" json:"reviews"`
	Region       RegionBox         `yaml:"region" json:"region"`
	RegionTokens []string          `yaml:"region_tokens" json:"region_tokens"`
	Allowlist    []string          `yaml:"allowlist" json:"allowlist"`
	SubstringCat bool              `yaml:"substring_categories" json:"substring_categories"`
	Brands       []string          `yaml:"brands" json:"brands"`
	Synonyms     map[string]string `yaml:"synonyms" json:"synonyms"`
	Shortlist    int               `yaml:"shortlist" json:"shortlist"`
	RoundDigits  int               `yaml:"round_digits" json:"round_digits"`
	OverrideOn   bool              `yaml:"override_on" json:"override_on"`
	LegacyTerms  bool              `yaml:"legacy_terms" json:"legacy_terms"`
}

var C MatcherCfg

// EffectiveWeights returns the blend weights actually in force: the brand and
// locality terms only count when the legacy profile is switched on, so a yaml
// that carries their tuning values cannot activate them by accident.
func (c MatcherCfg) EffectiveWeights() matcher.Weights {
	w := c.Weights
	if !c.LegacyTerms {
		w.Brand = 0
		w.Locality = 0
	}
	return w
}

// Defaults returns the production tuning profile. Load starts from this, so a
// partial yaml file only overrides what it names.
func Defaults() MatcherCfg {
	return MatcherCfg{
		Search:     SearchCfg{Keyword: "hospital", Country: "India", ResultLimit: 20, RadiusMeters: 200},
		Weights:    matcher.DefaultWeights(),
		Thresholds: Thresholds{Accept: 75.0, OverrideMaxKm: 0.8},
		Reviews: ReviewPolicy{
			MinReviews: 0,
			Tiers: []matcher.ReviewTier{
				{MinReviews: 1000, Bonus: 3.0},
				{MinReviews: 200, Bonus: 1.0},
			},
		},
		Region:       RegionBox{LatMin: 6.0, LatMax: 37.5, LonMin: 68.0, LonMax: 97.5},
		RegionTokens: []string{"india"},
		Allowlist:    []string{"Hospital", "Government hospital", "General hospital", "Private hospital", "Medical Center", "Medical clinic", "University hospital", "Children's hospital", "Specialized hospital"},
		SubstringCat: true,
		Brands:       []string{"apollo", "fortis", "manipal", "max", "aiims", "medanta", "narayana", "cmc", "jipmer", "sparsh", "aster", "care", "kims", "nims", "government", "district", "civil", "esic", "railway"},
		Shortlist:    5,
		RoundDigits:  3,
		OverrideOn:   true,
	}
}

func Load(path string) error {
	C = Defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides()
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(b, &C); err != nil {
		return err
	}
	applyEnvOverrides()
	return nil
}

// ENV overrides for the knobs operators flip without editing the file.
func applyEnvOverrides() {
	if v := os.Getenv("MIN_REVIEWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			C.Reviews.MinReviews = n
		}
	}
	switch os.Getenv("HARD_OVERRIDE") {
	case "0":
		C.OverrideOn = false
	case "1":
		C.OverrideOn = true
	}
	if v := os.Getenv("ACCEPT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			C.Thresholds.Accept = f
		}
	}
}

func SearchTimeout() time.Duration { return 30 * time.Second }
