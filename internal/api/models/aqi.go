package models

import (
	"github.com/skyaware/skyaware/internal/airquality"
)

// LatestParams are the query parameters of the latest and geojson
// endpoints. Pairing of Lat and Lon is checked by the query service.
// A zero RadiusKM or Limit means the parameter was omitted.
type LatestParams struct {
	Lat      *float64 `query:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lon      *float64 `query:"lon" validate:"omitempty,gte=-180,lte=180"`
	RadiusKM float64  `query:"radius_km" validate:"gte=0"`
	Limit    int      `query:"limit" validate:"gte=0"`
}

// PointParams are the query parameters of the nearest and cell endpoints.
type PointParams struct {
	Lat      *float64 `query:"lat" validate:"required,gte=-90,lte=90"`
	Lon      *float64 `query:"lon" validate:"required,gte=-180,lte=180"`
	RadiusKM float64  `query:"radius_km" validate:"gte=0"`
}

// AQIPoint is a single AQI observation as served to clients.
type AQIPoint struct {
	Timestamp        Timestamp `json:"timestamp"`
	Location         string    `json:"location"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	AQI              int       `json:"aqi"`
	NO2Concentration float64   `json:"no2_concentration"`
	Category         string    `json:"category"`
	Color            string    `json:"color"`
	DistanceKM       *float64  `json:"distance_km,omitempty"`
}

// AQIQueryResponse is the body of the latest and nearest endpoints.
type AQIQueryResponse struct {
	Source           string     `json:"source"`
	Timestamp        Timestamp  `json:"timestamp"`
	Sampled          bool       `json:"sampled"`
	PointsConsidered int        `json:"points_considered"`
	TotalPoints      int        `json:"total_points"`
	Returned         int        `json:"returned"`
	Data             []AQIPoint `json:"data"`
}

// Location is one distinct observation position.
type Location struct {
	Location    string    `json:"location"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	LastUpdated Timestamp `json:"last_updated"`
}

// LocationsResponse is the body of the locations endpoint.
type LocationsResponse struct {
	Count     int        `json:"count"`
	Locations []Location `json:"locations"`
}

// NewAQIPoint converts a domain point. distance is attached only when set.
func NewAQIPoint(p airquality.AQIPoint, distance *float64) AQIPoint {
	return AQIPoint{
		Timestamp:        Timestamp(p.Timestamp),
		Location:         p.Location,
		Latitude:         p.Latitude,
		Longitude:        p.Longitude,
		AQI:              p.AQI,
		NO2Concentration: p.Concentration,
		Category:         p.Category,
		Color:            p.Color,
		DistanceKM:       distance,
	}
}

// NewAQIQueryResponse converts a query result. Distances are included only
// for spatial queries.
func NewAQIQueryResponse(result *airquality.QueryResult) AQIQueryResponse {
	data := make([]AQIPoint, len(result.Points))
	for i, sp := range result.Points {
		var distance *float64
		if result.Spatial {
			d := sp.DistanceKM
			distance = &d
		}
		data[i] = NewAQIPoint(sp.AQIPoint, distance)
	}

	return AQIQueryResponse{
		Source:           string(result.Tier),
		Timestamp:        Timestamp(result.Timestamp),
		Sampled:          result.Sampled,
		PointsConsidered: result.PointsConsidered,
		TotalPoints:      result.TotalPoints,
		Returned:         len(data),
		Data:             data,
	}
}

// NewLocationsResponse converts domain locations.
func NewLocationsResponse(locations []airquality.Location) LocationsResponse {
	out := make([]Location, len(locations))
	for i, l := range locations {
		out[i] = Location{
			Location:    l.ID,
			Latitude:    l.Latitude,
			Longitude:   l.Longitude,
			LastUpdated: Timestamp(l.LastUpdated),
		}
	}
	return LocationsResponse{Count: len(out), Locations: out}
}
