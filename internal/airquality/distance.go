package airquality

import (
	"math"
	"slices"
)

// EarthRadiusKM is the mean Earth radius used for great-circle distances.
const EarthRadiusKM = 6371.0

// HaversineKM returns the great-circle distance between two coordinates
// given in degrees.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKM * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// WithinRadius returns the points whose distance from (lat, lon) is at most
// radiusKM, nearest first. Equal distances keep snapshot order. A limit of
// zero or less means no limit.
func WithinRadius(points []AQIPoint, lat, lon, radiusKM float64, limit int) []ScoredPoint {
	var matched []ScoredPoint
	for _, p := range points {
		d := HaversineKM(lat, lon, p.Latitude, p.Longitude)
		if d <= radiusKM {
			matched = append(matched, ScoredPoint{AQIPoint: p, DistanceKM: d})
		}
	}

	slices.SortStableFunc(matched, func(a, b ScoredPoint) int {
		switch {
		case a.DistanceKM < b.DistanceKM:
			return -1
		case a.DistanceKM > b.DistanceKM:
			return 1
		default:
			return 0
		}
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

// ValidateCoordinates checks that lat and lon are on the globe.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return &ValidationError{Field: "lat", Message: "must be between -90 and 90"}
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return &ValidationError{Field: "lon", Message: "must be between -180 and 180"}
	}
	return nil
}
