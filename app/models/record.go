package models

import "strconv"

// InputRecord is one row of the batch input. Required fields are promoted to
// named fields; every other input column is preserved verbatim in Extra so it
// can be passed through to the result output untouched. Coordinates stay raw
// strings here - validation belongs to the resolver, which logs and skips
// records it cannot parse.
type InputRecord struct {
	Index         int               `json:"index"`
	FacilityName  string            `json:"facility_name"`
	RawLat        string            `json:"origin_lat"`
	RawLon        string            `json:"origin_lon"`
	PostalCode    string            `json:"postal_code"`
	TaggedAddress string            `json:"tagged_address"`
	Extra         map[string]string `json:"extra,omitempty"`
	ExtraOrder    []string          `json:"-"`
}

// Coordinates parses the raw coordinate pair. ok is false when either side is
// not a number.
func (r InputRecord) Coordinates() (lat, lon float64, ok bool) {
	lat, err1 := strconv.ParseFloat(r.RawLat, 64)
	lon, err2 := strconv.ParseFloat(r.RawLon, 64)
	return lat, lon, err1 == nil && err2 == nil
}
