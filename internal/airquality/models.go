// Package airquality turns NO2 column-density swaths into AQI points and
// answers spatial queries against the latest published snapshot.
package airquality

import (
	"fmt"
	"time"
)

// Category is the display band an AQI score falls in.
type Category struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// AQIPoint is a single derived air quality record. Points are only built
// from valid measurement cells and are never mutated afterwards.
type AQIPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	Location      string    `json:"location"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	AQI           int       `json:"aqi"`
	Concentration float64   `json:"no2_concentration"`
	Category      string    `json:"category"`
	Color         string    `json:"color"`
}

// LocationID returns the stable identifier for a grid position.
func LocationID(lat, lon float64) string {
	return fmt.Sprintf("TEMPO_%.4f_%.4f", lat, lon)
}

// Snapshot is the full set of points produced by one pipeline run.
type Snapshot struct {
	Timestamp   time.Time  `json:"timestamp"`
	TotalPoints int        `json:"total_points"`
	Points      []AQIPoint `json:"data_points"`
}

// NewSnapshot builds a snapshot, deriving the point count from the slice.
func NewSnapshot(ts time.Time, points []AQIPoint) *Snapshot {
	return &Snapshot{
		Timestamp:   ts,
		TotalPoints: len(points),
		Points:      points,
	}
}

// MeasurementCell is one position of the aligned swath grid.
type MeasurementCell struct {
	Latitude      float64
	Longitude     float64
	Concentration float64 // molecules/cm², NaN when missing
	QualityFlag   int
}

// ScoredPoint is an AQIPoint together with its distance from a query origin.
type ScoredPoint struct {
	AQIPoint
	DistanceKM float64 `json:"distance_km"`
}

// Location is one distinct measurement position of the latest snapshot.
type Location struct {
	ID          string    `json:"location"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	LastUpdated time.Time `json:"last_updated"`
}

// SnapshotInfo describes the latest durable snapshot without its payload.
type SnapshotInfo struct {
	Timestamp   time.Time
	TotalPoints int
}
