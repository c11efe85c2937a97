package normalizer

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/unicode/norm"
)

const memoSize = 65536

// TextNormalizer canonicalizes free text for similarity scoring: NFKC, ASCII
// folding, lower case, punctuation to whitespace, synonym canonicalization,
// whitespace collapse. Pure and deterministic, so results are memoized by
// value in an LRU.
type TextNormalizer struct {
	synonyms map[string]string
	punct    *regexp.Regexp
	memo     *lru.Cache[string, string]
}

// NewTextNormalizer builds a normalizer with a token->canonical table.
// synonyms may be nil.
func NewTextNormalizer(synonyms map[string]string) *TextNormalizer {
	memo, _ := lru.New[string, string](memoSize)
	return &TextNormalizer{
		synonyms: synonyms,
		punct:    regexp.MustCompile(`[^\p{L}\p{N}]+`),
		memo:     memo,
	}
}

// Normalize returns the canonical form of s. Empty input yields "".
func (tn *TextNormalizer) Normalize(s string) string {
	if s == "" {
		return ""
	}
	if out, ok := tn.memo.Get(s); ok {
		return out
	}
	out := tn.normalize(s)
	tn.memo.Add(s, out)
	return out
}

func (tn *TextNormalizer) normalize(s string) string {
	s = norm.NFKC.String(s)
	s = unidecode.Unidecode(s)
	s = strings.ToLower(s)
	s = tn.punct.ReplaceAllString(s, " ")

	fields := strings.Fields(s)
	for i, tok := range fields {
		if canon, ok := tn.synonyms[tok]; ok {
			fields[i] = canon
		}
	}
	return strings.Join(fields, " ")
}

// TokenSet splits the normalized form of s into a set of tokens.
func (tn *TextNormalizer) TokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(tn.Normalize(s)) {
		out[tok] = struct{}{}
	}
	return out
}
