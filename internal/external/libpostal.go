//go:build libpostal

package external

import (
	"github.com/openvenues/gopostal/parser"
)

// Components is the subset of libpostal labels the matcher cares about.
type Components struct {
	House    string
	Road     string
	City     string
	State    string
	Postcode string
}

// ParseAddress runs libpostal's parser over a formatted address. The second
// return is true, marking that a real componentizer ran.
func ParseAddress(raw string) (Components, bool) {
	comps := parser.ParseAddress(raw)
	out := Components{}
	for _, c := range comps {
		switch c.Label {
		case "house_number":
			out.House = c.Value
		case "road":
			out.Road = c.Value
		case "city":
			out.City = c.Value
		case "state":
			out.State = c.Value
		case "postcode":
			out.Postcode = c.Value
		}
	}
	return out, true
}
