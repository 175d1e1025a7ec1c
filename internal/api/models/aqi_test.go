package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyaware/skyaware/internal/airquality"
	"github.com/skyaware/skyaware/internal/api/models"
)

var ts = time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

func point(lat, lon float64, aqi int) airquality.AQIPoint {
	return airquality.AQIPoint{
		Timestamp:     ts,
		Location:      airquality.LocationID(lat, lon),
		Latitude:      lat,
		Longitude:     lon,
		AQI:           aqi,
		Concentration: 2.5e16,
		Category:      "Moderate",
		Color:         "#FFFF00",
	}
}

func TestNewAQIQueryResponse_Spatial(t *testing.T) {
	result := &airquality.QueryResult{
		Tier:             airquality.TierDatabase,
		Timestamp:        ts,
		Points:           []airquality.ScoredPoint{{AQIPoint: point(40.7, -74, 60), DistanceKM: 1.25}},
		Spatial:          true,
		Sampled:          true,
		PointsConsidered: 5000,
		TotalPoints:      120000,
	}

	data, err := json.Marshal(models.NewAQIQueryResponse(result))
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "database", body["source"])
	assert.Equal(t, "2024-06-01T18:00:00Z", body["timestamp"])
	assert.Equal(t, true, body["sampled"])
	assert.Equal(t, float64(5000), body["points_considered"])
	assert.Equal(t, float64(120000), body["total_points"])
	assert.Equal(t, float64(1), body["returned"])

	first := body["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "TEMPO_40.7000_-74.0000", first["location"])
	assert.Equal(t, 1.25, first["distance_km"])
	assert.Equal(t, 2.5e16, first["no2_concentration"])
}

func TestNewAQIQueryResponse_NonSpatialOmitsDistance(t *testing.T) {
	result := &airquality.QueryResult{
		Tier:             airquality.TierCache,
		Timestamp:        ts,
		Points:           []airquality.ScoredPoint{{AQIPoint: point(40, -74, 20)}},
		PointsConsidered: 1,
		TotalPoints:      1,
	}

	data, err := json.Marshal(models.NewAQIQueryResponse(result))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "distance_km")
	assert.Contains(t, string(data), `"source":"cache"`)
}

func TestNewLocationsResponse(t *testing.T) {
	resp := models.NewLocationsResponse([]airquality.Location{
		{ID: "TEMPO_40.0000_-74.0000", Latitude: 40, Longitude: -74, LastUpdated: ts},
	})
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "TEMPO_40.0000_-74.0000", resp.Locations[0].Location)

	empty := models.NewLocationsResponse(nil)
	data, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":0,"locations":[]}`, string(data))
}

func TestTimestamp_RoundTrip(t *testing.T) {
	in := models.Timestamp(ts)
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, `"2024-06-01T18:00:00Z"`, string(data))

	var out models.Timestamp
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, out.Time().Equal(ts))

	assert.Error(t, json.Unmarshal([]byte(`5`), &out))
	assert.Nil(t, models.TimestampPtr(nil))
	assert.Nil(t, models.TimestampPtr(&time.Time{}))
}
