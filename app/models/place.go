package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Candidate is one place returned by the search provider, decorated with the
// postal code derived from its address. Candidates are transient: they live in
// output rows and inside cache/ledger keys, never as stored entities.
type Candidate struct {
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Website    string  `json:"website,omitempty"`
	PostalCode string  `json:"postal_code,omitempty"`
	Category   string  `json:"category,omitempty"`
	ExternalID string  `json:"external_id,omitempty"`
	Rating     float64 `json:"rating,omitempty"`
	Reviews    int     `json:"reviews,omitempty"`
	InputIndex int     `json:"input_index"`
}

// Identity derives the stable dedupe key for this candidate. The external
// identifier wins when present; otherwise the normalized (name, address) pair
// stands in. norm must be deterministic - two candidates for the same physical
// place must produce the same key no matter which input record surfaced them.
func (c Candidate) Identity(norm func(string) string) string {
	if id := strings.TrimSpace(c.ExternalID); id != "" {
		return "cid:" + id
	}
	return fmt.Sprintf("na:%s|%s", norm(c.Name), norm(c.Address))
}

// ScoreBreakdown carries the per-signal diagnostics behind a blended score.
type ScoreBreakdown struct {
	DistanceKm    float64 `json:"d_km"`
	DistanceScore float64 `json:"distance_score"`
	PostalMatch   bool    `json:"postal_match"`
	NameSim       float64 `json:"name_sim"`
	AddrSim       float64 `json:"addr_sim"`
	BrandHits     int     `json:"brand_hits,omitempty"`
	CategoryOK    bool    `json:"category_ok"`
	ReviewBonus   float64 `json:"review_bonus"`
	Override      bool    `json:"override,omitempty"`
}

// ScoredCandidate pairs a candidate with its blended score for one input
// record. Not persisted.
type ScoredCandidate struct {
	Candidate Candidate      `json:"candidate"`
	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// ParseReviewCount tolerates the thousand-separated strings the provider
// returns ("1,024"). Anything unparseable counts as zero.
func ParseReviewCount(s string) int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
