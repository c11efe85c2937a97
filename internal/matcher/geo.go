package matcher

import "math"

// earthRadiusKm is the IUGG mean earth radius.
const earthRadiusKm = 6371.0088

// HaversineKm returns the great-circle distance between two coordinate pairs
// in kilometers.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dlat := radians(lat2 - lat1)
	dlon := radians(lon2 - lon1)
	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dlon/2)*math.Sin(dlon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// DistanceScore maps a distance to 0-100: full score at or under 50 m,
// linear decay to zero at 1.5 km, zero beyond.
func DistanceScore(dKm float64) float64 {
	switch {
	case dKm <= 0.05:
		return 100.0
	case dKm >= 1.5:
		return 0.0
	default:
		return 100.0 * (1.5 - dKm) / 1.5
	}
}

func radians(deg float64) float64 { return deg * math.Pi / 180.0 }

// BoundingBox is a coarse lat/lon rectangle used as the region guard.
type BoundingBox struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
}

// Contains reports whether the point falls inside the box.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.LatMin && lat <= b.LatMax && lon >= b.LonMin && lon <= b.LonMax
}
