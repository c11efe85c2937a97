package matcher

import (
	"strings"

	"github.com/place-matcher/internal/normalizer"
)

// Classification is the bucket a candidate category falls into.
type Classification int

const (
	Eliminated Classification = iota
	Allowed
)

func (c Classification) String() string {
	if c == Allowed {
		return "allowed"
	}
	return "eliminated"
}

// CategoryClassifier partitions candidate categories against a fixed
// allowlist. Matching is case- and accent-insensitive; with substring mode on, a label
// that contains an allowlisted term ("General Hospital" vs "hospital") also
// passes. Total: empty or unknown labels classify as Eliminated.
type CategoryClassifier struct {
	allowed   []string
	rank      map[string]int
	substring bool
}

// NewCategoryClassifier builds a classifier from the allowlist in preference
// order: earlier entries outrank later ones when breaking score ties.
func NewCategoryClassifier(allowlist []string, substring bool) *CategoryClassifier {
	cc := &CategoryClassifier{
		rank:      make(map[string]int, len(allowlist)),
		substring: substring,
	}
	for _, cat := range allowlist {
		cat = normalizer.FoldCase(strings.TrimSpace(cat))
		if cat == "" {
			continue
		}
		if _, dup := cc.rank[cat]; dup {
			continue
		}
		cc.rank[cat] = len(cc.allowed)
		cc.allowed = append(cc.allowed, cat)
	}
	return cc
}

// Classify buckets a raw category label.
func (cc *CategoryClassifier) Classify(label string) Classification {
	norm := normalizer.FoldCase(strings.TrimSpace(label))
	if norm == "" {
		return Eliminated
	}
	if _, ok := cc.rank[norm]; ok {
		return Allowed
	}
	if cc.substring {
		for _, cat := range cc.allowed {
			if strings.Contains(norm, cat) {
				return Allowed
			}
		}
	}
	return Eliminated
}

// Rank returns the preference rank of a label (0 is best). Labels outside the
// allowlist rank last.
func (cc *CategoryClassifier) Rank(label string) int {
	norm := normalizer.FoldCase(strings.TrimSpace(label))
	if r, ok := cc.rank[norm]; ok {
		return r
	}
	if cc.substring {
		for _, cat := range cc.allowed {
			if strings.Contains(norm, cat) {
				return cc.rank[cat]
			}
		}
	}
	return len(cc.allowed)
}
