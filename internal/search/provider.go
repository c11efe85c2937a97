package search

import "context"

// Query is one place-search request. Limit and RadiusMeters affect result
// content and therefore participate in the vicinity cache key.
type Query struct {
	Text         string `json:"q"`
	Lat          float64
	Lon          float64
	Postal       string
	Limit        int
	RadiusMeters int
}

// Place is one raw place record from a provider. Optional fields stay zero
// when the provider omits them.
type Place struct {
	Title       string  `json:"title"`
	Address     string  `json:"address"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Category    string  `json:"category,omitempty"`
	CID         string  `json:"cid,omitempty"`
	Website     string  `json:"website,omitempty"`
	Rating      float64 `json:"rating,omitempty"`
	RatingCount int     `json:"ratingCount,omitempty"`
}

// Response is a provider result set, kept whole so it can be cached as the
// raw value of a vicinity key.
type Response struct {
	Places []Place `json:"places"`
}

// Provider is the external place-search service. Failures are transient and
// retryable; the retry loop belongs to the caller, not the provider.
type Provider interface {
	Search(ctx context.Context, q Query) (*Response, error)
}
