// Package handler provides HTTP handlers for the SkyAware API.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/skyaware/skyaware/internal/airquality"
	"github.com/skyaware/skyaware/internal/api/middleware"
	"github.com/skyaware/skyaware/internal/api/models"
	"github.com/skyaware/skyaware/internal/api/response"
)

// AQIService answers AQI queries.
type AQIService interface {
	GetLatest(ctx context.Context, q airquality.LatestQuery) (*airquality.QueryResult, error)
	Nearest(ctx context.Context, lat, lon, radiusKM float64) (*airquality.QueryResult, error)
	Cell(ctx context.Context, lat, lon float64) (*airquality.AQIPoint, error)
	Locations(ctx context.Context) ([]airquality.Location, error)
}

// AQIHandler handles the AQI query endpoints.
type AQIHandler struct {
	service AQIService
	logger  zerolog.Logger
}

// NewAQIHandler creates a new AQIHandler.
func NewAQIHandler(service AQIService, logger zerolog.Logger) *AQIHandler {
	return &AQIHandler{service: service, logger: logger}
}

// Latest handles GET /v1/aqi/latest.
func (h *AQIHandler) Latest(w http.ResponseWriter, r *http.Request) {
	result, ok := h.latest(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewAQIQueryResponse(result))
}

// GeoJSON handles GET /v1/aqi/geojson. It accepts the same parameters as
// Latest and renders the result as a FeatureCollection.
func (h *AQIHandler) GeoJSON(w http.ResponseWriter, r *http.Request) {
	result, ok := h.latest(w, r)
	if !ok {
		return
	}
	response.GeoJSON(w, r, http.StatusOK, airquality.FeatureCollection(result))
}

func (h *AQIHandler) latest(w http.ResponseWriter, r *http.Request) (*airquality.QueryResult, bool) {
	params, errs := parseLatestParams(r.URL.Query())
	if len(errs) > 0 {
		response.BadRequest(w, r, firstMessage(errs), errs)
		return nil, false
	}

	result, err := h.service.GetLatest(r.Context(), airquality.LatestQuery{
		Lat:      params.Lat,
		Lon:      params.Lon,
		RadiusKM: params.RadiusKM,
		Limit:    params.Limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return result, true
}

// Nearest handles GET /v1/aqi/nearest.
func (h *AQIHandler) Nearest(w http.ResponseWriter, r *http.Request) {
	params, errs := parsePointParams(r.URL.Query())
	if len(errs) > 0 {
		response.BadRequest(w, r, firstMessage(errs), errs)
		return
	}

	result, err := h.service.Nearest(r.Context(), *params.Lat, *params.Lon, params.RadiusKM)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewAQIQueryResponse(result))
}

// Cell handles GET /v1/aqi/cell, the per-location cache lookup.
func (h *AQIHandler) Cell(w http.ResponseWriter, r *http.Request) {
	params, errs := parsePointParams(r.URL.Query())
	if len(errs) > 0 {
		response.BadRequest(w, r, firstMessage(errs), errs)
		return
	}

	p, err := h.service.Cell(r.Context(), *params.Lat, *params.Lon)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewAQIPoint(*p, nil))
}

// Locations handles GET /v1/aqi/locations.
func (h *AQIHandler) Locations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.service.Locations(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewLocationsResponse(locations))
}

// writeError maps query errors onto problem responses.
func (h *AQIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *airquality.ValidationError
	switch {
	case errors.As(err, &verr):
		response.BadRequest(w, r, verr.Error(), []models.FieldError{
			{Field: verr.Field, Message: verr.Message, Code: "invalid"},
		})
	case errors.Is(err, airquality.ErrNoData):
		response.NoData(w, r, "no air quality snapshot has been published yet")
	case errors.Is(err, airquality.ErrNotFound):
		response.NotFound(w, r, err.Error())
	case errors.Is(err, airquality.ErrStoreUnavailable):
		h.logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("durable store unavailable")
		response.ServiceUnavailable(w, r, "air quality data is temporarily unavailable")
	default:
		h.logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("query failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
