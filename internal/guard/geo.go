package guard

import "math"

// earthRadiusMeters is the mean Earth radius used for great-circle math
const earthRadiusMeters = 6371000

// Haversine returns the great-circle distance in meters between two
// lat/lng points. It is the deterministic fallback when the routing API
// is unavailable: for any finite inputs it returns a finite, non-negative
// result with no external dependency.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}
