package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/skyaware/skyaware/internal/airquality"
	"github.com/skyaware/skyaware/internal/api/handler"
)

type failingService struct {
	err error
}

func (f failingService) GetLatest(context.Context, airquality.LatestQuery) (*airquality.QueryResult, error) {
	return nil, f.err
}

func (f failingService) Nearest(context.Context, float64, float64, float64) (*airquality.QueryResult, error) {
	return nil, f.err
}

func (f failingService) Cell(context.Context, float64, float64) (*airquality.AQIPoint, error) {
	return nil, f.err
}

func (f failingService) Locations(context.Context) ([]airquality.Location, error) {
	return nil, f.err
}

func TestAQIHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &airquality.ValidationError{Field: "lat", Message: "out of range"}, http.StatusBadRequest},
		{"no data", airquality.ErrNoData, http.StatusNotFound},
		{"not found", airquality.ErrNotFound, http.StatusNotFound},
		{"store down", airquality.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewAQIHandler(failingService{err: tt.err}, zerolog.Nop())

			rec := httptest.NewRecorder()
			h.Locations(rec, httptest.NewRequest(http.MethodGet, "/v1/aqi/locations", http.NoBody))
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			assert.NotContains(t, rec.Body.String(), "boom")
		})
	}
}

func TestAQIHandler_NearestRequiresCoordinates(t *testing.T) {
	h := handler.NewAQIHandler(failingService{err: errors.New("unreachable")}, zerolog.Nop())

	for _, target := range []string{
		"/v1/aqi/nearest",
		"/v1/aqi/nearest?lat=40",
		"/v1/aqi/nearest?lat=40&lon=-74&radius_km=-1",
		"/v1/aqi/nearest?lat=40&lon=-74&radius_km=0",
		"/v1/aqi/nearest?lat=40&lon=Inf",
	} {
		rec := httptest.NewRecorder()
		h.Nearest(rec, httptest.NewRequest(http.MethodGet, target, http.NoBody))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}
