//go:build !libpostal

package external

// Components is the subset of libpostal labels the matcher cares about.
type Components struct {
	House    string
	Road     string
	City     string
	State    string
	Postcode string
}

// ParseAddress is a no-op without the libpostal build tag; callers fall back
// to regex extraction.
func ParseAddress(raw string) (Components, bool) {
	return Components{}, false
}
