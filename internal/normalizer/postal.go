package normalizer

import (
	"regexp"
	"strings"

	"github.com/place-matcher/internal/external"
)

// postalPattern matches a 6-digit Indian PIN; a leading zero is not a valid
// PIN prefix.
var postalPattern = regexp.MustCompile(`\b[1-9]\d{5}\b`)

// ExtractPostal pulls a postal code from a formatted address. The penultimate
// comma segment is preferred ("..., Karnataka 560017, India"), then anywhere
// in the string. When the binary is built with libpostal the componentizer's
// postcode label takes precedence over the regex. Returns "" when nothing
// matches.
func ExtractPostal(address string) string {
	if address == "" {
		return ""
	}
	if comps, ok := external.ParseAddress(address); ok && comps.Postcode != "" {
		if pin := postalPattern.FindString(comps.Postcode); pin != "" {
			return pin
		}
	}

	parts := splitSegments(address)
	if len(parts) >= 2 {
		if pin := postalPattern.FindString(parts[len(parts)-2]); pin != "" {
			return pin
		}
	}
	return postalPattern.FindString(address)
}

// PostalAgrees reports whether the input postal code agrees with a candidate:
// exact equality with the candidate's extracted code, or verbatim presence in
// the candidate address. An empty input code never agrees.
func PostalAgrees(inputPostal, candidatePostal, candidateAddress string) bool {
	p := strings.TrimSpace(inputPostal)
	if p == "" {
		return false
	}
	if c := strings.TrimSpace(candidatePostal); c != "" && c == p {
		return true
	}
	return strings.Contains(candidateAddress, p)
}

func splitSegments(address string) []string {
	var parts []string
	for _, p := range strings.Split(address, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
