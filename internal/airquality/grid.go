package airquality

import (
	"fmt"
	"iter"
)

// Grid is a dense two-dimensional array stored row-major.
type Grid[T any] struct {
	rows, cols int
	data       []T
}

// NewGrid wraps data as a rows x cols grid.
func NewGrid[T any](rows, cols int, data []T) (*Grid[T], error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("negative grid dimensions %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("grid %dx%d needs %d values, got %d", rows, cols, rows*cols, len(data))
	}
	return &Grid[T]{rows: rows, cols: cols, data: data}, nil
}

// Shape returns (rows, cols).
func (g *Grid[T]) Shape() [2]int {
	return [2]int{g.rows, g.cols}
}

// At returns the value at row i, column j.
func (g *Grid[T]) At(i, j int) T {
	return g.data[i*g.cols+j]
}

// Len is rows*cols.
func (g *Grid[T]) Len() int {
	return len(g.data)
}

// CoordinateAxes holds the 1-D latitude and longitude axes of a swath.
// The measurement grid's first dimension follows Latitudes and its second
// follows Longitudes.
type CoordinateAxes struct {
	Latitudes  []float64
	Longitudes []float64
}

// AlignedGrid pairs every measurement with its position.
type AlignedGrid struct {
	lat     *Grid[float64]
	lon     *Grid[float64]
	conc    *Grid[float64]
	quality *Grid[int]
}

// Align expands the coordinate axes into latitude and longitude grids of
// shape (len(Latitudes), len(Longitudes)) and checks that the measurement
// and quality grids have exactly that shape.
func Align(axes CoordinateAxes, conc *Grid[float64], quality *Grid[int]) (*AlignedGrid, error) {
	rows, cols := len(axes.Latitudes), len(axes.Longitudes)

	latData := make([]float64, rows*cols)
	lonData := make([]float64, rows*cols)
	for i, lat := range axes.Latitudes {
		row := i * cols
		for j, lon := range axes.Longitudes {
			latData[row+j] = lat
			lonData[row+j] = lon
		}
	}
	latGrid := &Grid[float64]{rows: rows, cols: cols, data: latData}
	lonGrid := &Grid[float64]{rows: rows, cols: cols, data: lonData}

	want := latGrid.Shape()
	if lonGrid.Shape() != want {
		return nil, &ShapeMismatchError{Variable: "longitude", Want: want, Got: lonGrid.Shape()}
	}
	if conc == nil {
		return nil, &ShapeMismatchError{Variable: "concentration", Want: want}
	}
	if conc.Shape() != want {
		return nil, &ShapeMismatchError{Variable: "concentration", Want: want, Got: conc.Shape()}
	}
	if quality == nil {
		return nil, &ShapeMismatchError{Variable: "quality_flag", Want: want}
	}
	if quality.Shape() != want {
		return nil, &ShapeMismatchError{Variable: "quality_flag", Want: want, Got: quality.Shape()}
	}

	return &AlignedGrid{lat: latGrid, lon: lonGrid, conc: conc, quality: quality}, nil
}

// LatitudeGrid returns the expanded latitude grid.
func (a *AlignedGrid) LatitudeGrid() *Grid[float64] { return a.lat }

// LongitudeGrid returns the expanded longitude grid.
func (a *AlignedGrid) LongitudeGrid() *Grid[float64] { return a.lon }

// Len is the number of cells.
func (a *AlignedGrid) Len() int { return a.conc.Len() }

// Cells yields one cell per grid index in row-major order: latitude-major,
// then longitude. The sequence can be iterated any number of times.
func (a *AlignedGrid) Cells() iter.Seq[MeasurementCell] {
	return func(yield func(MeasurementCell) bool) {
		for k := range a.conc.data {
			cell := MeasurementCell{
				Latitude:      a.lat.data[k],
				Longitude:     a.lon.data[k],
				Concentration: a.conc.data[k],
				QualityFlag:   a.quality.data[k],
			}
			if !yield(cell) {
				return
			}
		}
	}
}
