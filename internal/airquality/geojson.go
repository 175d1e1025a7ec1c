package airquality

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection renders query results as GeoJSON points. Distance is
// included only for spatial results.
func FeatureCollection(result *QueryResult) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range result.Points {
		f := geojson.NewFeature(orb.Point{p.Longitude, p.Latitude})
		f.Properties["location"] = p.Location
		f.Properties["aqi"] = p.AQI
		f.Properties["category"] = p.Category
		f.Properties["color"] = p.Color
		f.Properties["no2_concentration"] = p.Concentration
		f.Properties["timestamp"] = p.Timestamp
		if result.Spatial {
			f.Properties["distance_km"] = p.DistanceKM
		}
		fc.Append(f)
	}
	fc.ExtraMembers = geojson.Properties{
		"source":            string(result.Tier),
		"sampled":           result.Sampled,
		"points_considered": result.PointsConsidered,
		"total_points":      result.TotalPoints,
	}
	return fc
}
