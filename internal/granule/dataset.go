// Package granule decodes exported TEMPO NO2 granules into aligned swaths.
package granule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/skyaware/skyaware/internal/airquality"
	"github.com/skyaware/skyaware/internal/compress"
)

// Variable names read from a granule.
const (
	VarLatitude      = "latitude"
	VarLongitude     = "longitude"
	VarNO2Column     = "product/vertical_column_troposphere"
	VarQualityFlag   = "product/main_data_quality_flag"
	qualityFillValue = -1
)

// Variable is one named n-dimensional array, stored row-major.
type Variable struct {
	Shape  []int
	Values []float64
}

// Dataset is an in-memory granule: named variables plus acquisition time.
type Dataset struct {
	Time      time.Time
	Variables map[string]*Variable
}

// Var returns a variable by name.
func (d *Dataset) Var(name string) (*Variable, error) {
	v, ok := d.Variables[name]
	if !ok {
		return nil, fmt.Errorf("%w: variable %q missing", airquality.ErrUpstreamAcquisition, name)
	}
	return v, nil
}

// grid2D returns the first time step of a (time, y, x) or (y, x) variable.
func (v *Variable) grid2D(name string) (rows, cols int, values []float64, err error) {
	steps := 1
	switch len(v.Shape) {
	case 2:
		rows, cols = v.Shape[0], v.Shape[1]
	case 3:
		steps, rows, cols = v.Shape[0], v.Shape[1], v.Shape[2]
	default:
		return 0, 0, nil, fmt.Errorf("%w: %s has %d dimensions, want 2 or 3",
			airquality.ErrUpstreamAcquisition, name, len(v.Shape))
	}
	n := rows * cols
	if steps < 1 || len(v.Values) != steps*n {
		return 0, 0, nil, fmt.Errorf("%w: %s holds %d values for shape %v",
			airquality.ErrUpstreamAcquisition, name, len(v.Values), v.Shape)
	}
	return rows, cols, v.Values[:n], nil
}

func (v *Variable) axis(name string) ([]float64, error) {
	if len(v.Shape) != 1 || len(v.Values) != v.Shape[0] {
		return nil, fmt.Errorf("%w: %s is not a 1-D axis (shape %v)",
			airquality.ErrUpstreamAcquisition, name, v.Shape)
	}
	return v.Values, nil
}

// Swath is a granule's first time step ready for alignment.
type Swath struct {
	Time          time.Time
	Axes          airquality.CoordinateAxes
	Concentration *airquality.Grid[float64]
	Quality       *airquality.Grid[int]
}

// Align aligns the swath's grids with its coordinate axes.
func (s *Swath) Align() (*airquality.AlignedGrid, error) {
	return airquality.Align(s.Axes, s.Concentration, s.Quality)
}

// Swath extracts the coordinate axes, the tropospheric NO2 column and the
// quality flags. Missing quality values become a non-zero flag.
func (d *Dataset) Swath() (*Swath, error) {
	latVar, err := d.Var(VarLatitude)
	if err != nil {
		return nil, err
	}
	lonVar, err := d.Var(VarLongitude)
	if err != nil {
		return nil, err
	}
	no2Var, err := d.Var(VarNO2Column)
	if err != nil {
		return nil, err
	}
	qaVar, err := d.Var(VarQualityFlag)
	if err != nil {
		return nil, err
	}

	lats, err := latVar.axis(VarLatitude)
	if err != nil {
		return nil, err
	}
	lons, err := lonVar.axis(VarLongitude)
	if err != nil {
		return nil, err
	}

	rows, cols, no2, err := no2Var.grid2D(VarNO2Column)
	if err != nil {
		return nil, err
	}
	conc, err := airquality.NewGrid(rows, cols, no2)
	if err != nil {
		return nil, err
	}

	qRows, qCols, qa, err := qaVar.grid2D(VarQualityFlag)
	if err != nil {
		return nil, err
	}
	flags := make([]int, len(qa))
	for i, f := range qa {
		if math.IsNaN(f) {
			flags[i] = qualityFillValue
			continue
		}
		flags[i] = int(f)
	}
	quality, err := airquality.NewGrid(qRows, qCols, flags)
	if err != nil {
		return nil, err
	}

	return &Swath{
		Time:          d.Time,
		Axes:          airquality.CoordinateAxes{Latitudes: lats, Longitudes: lons},
		Concentration: conc,
		Quality:       quality,
	}, nil
}

// Wire format: {"time": RFC3339, "variables": {name: {"shape": [...], "values": [...]}}}
// with JSON null standing in for NaN.

type wireDataset struct {
	Time      time.Time                `json:"time"`
	Variables map[string]*wireVariable `json:"variables"`
}

type wireVariable struct {
	Shape  []int       `json:"shape"`
	Values []jsonFloat `json:"values"`
}

type jsonFloat float64

func (f *jsonFloat) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = jsonFloat(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, float64(f), 'g', -1, 64), nil
}

// Decode parses a granule export, transparently decompressing zstd.
func Decode(data []byte) (*Dataset, error) {
	raw, err := compress.MaybeDecode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", airquality.ErrUpstreamAcquisition, err)
	}

	var w wireDataset
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: decode granule: %w", airquality.ErrUpstreamAcquisition, err)
	}
	if w.Time.IsZero() {
		return nil, fmt.Errorf("%w: granule has no acquisition time", airquality.ErrUpstreamAcquisition)
	}

	ds := &Dataset{Time: w.Time.UTC(), Variables: make(map[string]*Variable, len(w.Variables))}
	for name, wv := range w.Variables {
		if wv == nil {
			continue
		}
		values := make([]float64, len(wv.Values))
		for i, v := range wv.Values {
			values[i] = float64(v)
		}
		ds.Variables[name] = &Variable{Shape: wv.Shape, Values: values}
	}
	return ds, nil
}

// Encode serialises a dataset in the export format, optionally as zstd.
func Encode(ds *Dataset, compressed bool) ([]byte, error) {
	w := wireDataset{Time: ds.Time, Variables: make(map[string]*wireVariable, len(ds.Variables))}
	for name, v := range ds.Variables {
		values := make([]jsonFloat, len(v.Values))
		for i, f := range v.Values {
			values[i] = jsonFloat(f)
		}
		w.Variables[name] = &wireVariable{Shape: v.Shape, Values: values}
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	if compressed {
		return compress.Encode(data), nil
	}
	return data, nil
}
