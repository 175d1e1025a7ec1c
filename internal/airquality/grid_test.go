package airquality_test

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyaware/skyaware/internal/airquality"
)

func mustGrid[T any](t *testing.T, rows, cols int, data []T) *airquality.Grid[T] {
	t.Helper()
	g, err := airquality.NewGrid(rows, cols, data)
	require.NoError(t, err)
	return g
}

func TestNewGrid_RejectsWrongLength(t *testing.T) {
	_, err := airquality.NewGrid(2, 3, []float64{1, 2, 3})
	assert.Error(t, err)
}

func TestAlign_ShapesAndOrder(t *testing.T) {
	axes := airquality.CoordinateAxes{
		Latitudes:  []float64{10, 20},
		Longitudes: []float64{-1, -2, -3},
	}
	conc := mustGrid(t, 2, 3, []float64{1, 2, 3, 4, 5, 6})
	quality := mustGrid(t, 2, 3, []int{0, 0, 0, 0, 0, 0})

	aligned, err := airquality.Align(axes, conc, quality)
	require.NoError(t, err)

	assert.Equal(t, [2]int{2, 3}, aligned.LatitudeGrid().Shape())
	assert.Equal(t, [2]int{2, 3}, aligned.LongitudeGrid().Shape())
	assert.Equal(t, 6, aligned.Len())

	// Latitude varies along rows, longitude along columns.
	assert.Equal(t, 20.0, aligned.LatitudeGrid().At(1, 0))
	assert.Equal(t, -3.0, aligned.LongitudeGrid().At(0, 2))

	cells := slices.Collect(aligned.Cells())
	require.Len(t, cells, 6)
	assert.Equal(t, airquality.MeasurementCell{Latitude: 10, Longitude: -1, Concentration: 1}, cells[0])
	assert.Equal(t, airquality.MeasurementCell{Latitude: 10, Longitude: -3, Concentration: 3}, cells[2])
	assert.Equal(t, airquality.MeasurementCell{Latitude: 20, Longitude: -1, Concentration: 4}, cells[3])
}

func TestAlign_CellCountProperty(t *testing.T) {
	for _, shape := range [][2]int{{1, 1}, {3, 7}, {16, 5}, {0, 4}} {
		la, lo := shape[0], shape[1]
		axes := airquality.CoordinateAxes{
			Latitudes:  make([]float64, la),
			Longitudes: make([]float64, lo),
		}
		conc := mustGrid(t, la, lo, make([]float64, la*lo))
		quality := mustGrid(t, la, lo, make([]int, la*lo))

		aligned, err := airquality.Align(axes, conc, quality)
		require.NoError(t, err)
		assert.Equal(t, la*lo, len(slices.Collect(aligned.Cells())))
		assert.Equal(t, shape, aligned.LatitudeGrid().Shape())
		assert.Equal(t, shape, aligned.LongitudeGrid().Shape())
	}
}

func TestAlign_TransposedGridIsShapeMismatch(t *testing.T) {
	axes := airquality.CoordinateAxes{
		Latitudes:  []float64{10, 20},
		Longitudes: []float64{-1, -2, -3},
	}
	conc := mustGrid(t, 3, 2, []float64{1, 2, 3, 4, 5, 6})
	quality := mustGrid(t, 2, 3, make([]int, 6))

	_, err := airquality.Align(axes, conc, quality)
	require.ErrorIs(t, err, airquality.ErrShapeMismatch)

	var shapeErr *airquality.ShapeMismatchError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, "concentration", shapeErr.Variable)
	assert.Equal(t, [2]int{2, 3}, shapeErr.Want)
	assert.Equal(t, [2]int{3, 2}, shapeErr.Got)
}

func TestAlign_QualityShapeMismatch(t *testing.T) {
	axes := airquality.CoordinateAxes{Latitudes: []float64{1}, Longitudes: []float64{1, 2}}
	conc := mustGrid(t, 1, 2, []float64{math.NaN(), 1})
	quality := mustGrid(t, 2, 1, []int{0, 0})

	_, err := airquality.Align(axes, conc, quality)
	var shapeErr *airquality.ShapeMismatchError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, "quality_flag", shapeErr.Variable)
}

func TestAlignedGrid_CellsRestartable(t *testing.T) {
	axes := airquality.CoordinateAxes{Latitudes: []float64{1, 2}, Longitudes: []float64{3, 4}}
	aligned, err := airquality.Align(axes,
		mustGrid(t, 2, 2, []float64{1, 2, 3, 4}),
		mustGrid(t, 2, 2, []int{0, 1, 0, 1}),
	)
	require.NoError(t, err)

	assert.Equal(t, slices.Collect(aligned.Cells()), slices.Collect(aligned.Cells()))
}
