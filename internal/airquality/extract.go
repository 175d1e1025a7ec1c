package airquality

import (
	"iter"
	"math"
	"time"
)

// DefaultChunkSize bounds how many points are buffered before a chunk is
// handed to the consumer.
const DefaultChunkSize = 5000

// Valid reports whether a cell can produce a point.
func (c MeasurementCell) Valid() bool {
	return c.QualityFlag == 0 && !math.IsNaN(c.Concentration)
}

// NewPoint converts a valid cell into an AQIPoint stamped with ts.
// The second result is false when the cell is not emittable.
func NewPoint(c MeasurementCell, ts time.Time) (AQIPoint, bool) {
	if !c.Valid() {
		return AQIPoint{}, false
	}
	score, cat := AQIOf(ColumnDensityToPPB(c.Concentration))
	return AQIPoint{
		Timestamp:     ts,
		Location:      LocationID(c.Latitude, c.Longitude),
		Latitude:      c.Latitude,
		Longitude:     c.Longitude,
		AQI:           score,
		Concentration: c.Concentration,
		Category:      cat.Label,
		Color:         cat.Color,
	}, true
}

// Extract filters cells and yields AQI points in chunks of at most
// chunkSize, preserving traversal order. Each yielded slice is freshly
// allocated and may be retained by the consumer. Ranging over the result
// again restarts from the first cell.
func Extract(cells iter.Seq[MeasurementCell], ts time.Time, chunkSize int) iter.Seq[[]AQIPoint] {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return func(yield func([]AQIPoint) bool) {
		chunk := make([]AQIPoint, 0, chunkSize)
		for cell := range cells {
			p, ok := NewPoint(cell, ts)
			if !ok {
				continue
			}
			chunk = append(chunk, p)
			if len(chunk) == chunkSize {
				if !yield(chunk) {
					return
				}
				chunk = make([]AQIPoint, 0, chunkSize)
			}
		}
		if len(chunk) > 0 {
			yield(chunk)
		}
	}
}

// ExtractAll drains Extract into a single slice. It returns ErrNoValidData
// when every cell is filtered out.
func ExtractAll(cells iter.Seq[MeasurementCell], ts time.Time, chunkSize int) ([]AQIPoint, error) {
	var points []AQIPoint
	for chunk := range Extract(cells, ts, chunkSize) {
		points = append(points, chunk...)
	}
	if len(points) == 0 {
		return nil, ErrNoValidData
	}
	return points, nil
}
