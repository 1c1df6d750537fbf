package matching

import "math"

const earthRadiusKm = 6371

// Distance returns the great-circle distance in kilometers between two
// points using the haversine formula. ok is false when either coordinate
// is unknown; callers must then drop the distance factor entirely rather
// than score the pair as adjacent.
func Distance(a, b *Coordinates) (km float64, ok bool) {
	if a == nil || b == nil {
		return 0, false
	}

	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Latitude*math.Pi/180)*math.Cos(b.Latitude*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c, true
}
