package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyaware/skyaware/internal/airquality"
	"github.com/skyaware/skyaware/internal/api"
	"github.com/skyaware/skyaware/internal/api/handler"
	"github.com/skyaware/skyaware/internal/api/models"
	"github.com/skyaware/skyaware/internal/auth"
	"github.com/skyaware/skyaware/internal/resilience"
	"github.com/skyaware/skyaware/internal/snapshot"
)

var snapshotTS = time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

type testEnv struct {
	store    *snapshot.MemoryStore
	cache    *snapshot.MemoryCache
	tokens   *auth.TokenService
	registry *resilience.Registry
	router   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	env := &testEnv{
		store:    snapshot.NewMemoryStore(),
		cache:    snapshot.NewMemoryCache(),
		registry: resilience.NewRegistry(),
		tokens: auth.NewTokenService(auth.TokenConfig{
			SigningKey: "test-secret-key-for-testing-only-0123456789",
			Issuer:     "skyaware",
			Audience:   "skyaware-ops",
		}),
	}

	service := airquality.NewService(airquality.ServiceConfig{
		Store:      env.store,
		Cache:      env.cache,
		Logger:     logger,
		MaxProcess: 10,
	})

	env.router = api.NewRouter(api.RouterConfig{
		Logger:     logger,
		AQIService: service,
		Ops: handler.OpsHandlerConfig{
			Version:   "test",
			BuildTime: "2024-01-01T00:00:00Z",
			Checks: []handler.Check{
				{Name: "postgres", Pinger: env.store, Required: true},
				{Name: "redis", Pinger: env.cache},
			},
			Registry:  env.registry,
			Snapshots: env.store,
		},
		TokenValidator: env.tokens,
		QueryRateLimit: 1000,
	})
	return env
}

// publish writes a 5x5 grid around (40, -74) at 0.1 degree spacing.
func (e *testEnv) publish(t *testing.T) []airquality.AQIPoint {
	t.Helper()
	var points []airquality.AQIPoint
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			lat := math.Round((39.8+float64(i)*0.1)*10) / 10
			lon := math.Round((-74.2+float64(j)*0.1)*10) / 10
			score := 10 * (i*5 + j)
			cat := airquality.CategoryOf(score)
			points = append(points, airquality.AQIPoint{
				Timestamp: snapshotTS,
				Location:  airquality.LocationID(lat, lon),
				Latitude:  lat,
				Longitude: lon,
				AQI:       score,
				Category:  cat.Label,
				Color:     cat.Color,
			})
		}
	}

	publisher := airquality.NewPublisher(airquality.PublisherConfig{
		Store:  e.store,
		Cache:  e.cache,
		Logger: zerolog.Nop(),
	})
	_, err := publisher.Publish(context.Background(), points, snapshotTS)
	require.NoError(t, err)
	return points
}

func (e *testEnv) get(t *testing.T, path string, header ...string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var body map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}
	return rec, body
}

func TestLatest_FromCache(t *testing.T) {
	env := newTestEnv(t)
	env.publish(t)

	rec, body := env.get(t, "/v1/aqi/latest?lat=40&lon=-74&radius_km=15&limit=3")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "cache", body["source"])
	assert.Equal(t, false, body["sampled"])
	assert.Equal(t, float64(25), body["points_considered"])
	assert.Equal(t, float64(25), body["total_points"])
	assert.Equal(t, float64(3), body["returned"])

	data := body["data"].([]interface{})
	require.Len(t, data, 3)
	first := data[0].(map[string]interface{})
	assert.Equal(t, "TEMPO_40.0000_-74.0000", first["location"])
	assert.Equal(t, float64(0), first["distance_km"])

	prev := -1.0
	for _, d := range data {
		dist := d.(map[string]interface{})["distance_km"].(float64)
		assert.GreaterOrEqual(t, dist, prev)
		prev = dist
	}
}

func TestLatest_DatabaseFallbackIsSampled(t *testing.T) {
	env := newTestEnv(t)
	env.publish(t)
	env.cache.SetError(errors.New("connection refused"))

	rec, body := env.get(t, "/v1/aqi/latest?lat=40&lon=-74&radius_km=500")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "database", body["source"])
	assert.Equal(t, true, body["sampled"])
	// stride 25/10 = 2, capped at MaxProcess.
	assert.Equal(t, float64(10), body["points_considered"])
	assert.Equal(t, float64(25), body["total_points"])
}

func TestLatest_WithoutCoordinates(t *testing.T) {
	env := newTestEnv(t)
	env.publish(t)

	rec, body := env.get(t, "/v1/aqi/latest?limit=4")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, float64(4), body["returned"])
	for _, d := range body["data"].([]interface{}) {
		assert.NotContains(t, d.(map[string]interface{}), "distance_km")
	}
}

func TestLatest_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	env.publish(t)

	tests := []struct {
		name  string
		path  string
		field string
	}{
		{"lat out of range", "/v1/aqi/latest?lat=91&lon=0", "lat"},
		{"lon out of range", "/v1/aqi/latest?lat=0&lon=-181", "lon"},
		{"lat not a number", "/v1/aqi/latest?lat=north&lon=0", "lat"},
		{"nan rejected", "/v1/aqi/latest?lat=NaN&lon=0", "lat"},
		{"negative radius", "/v1/aqi/latest?lat=40&lon=-74&radius_km=-5", "radius_km"},
		{"zero radius", "/v1/aqi/latest?lat=40&lon=-74&radius_km=0", "radius_km"},
		{"negative limit", "/v1/aqi/latest?limit=-1", "limit"},
		{"limit over max", "/v1/aqi/latest?limit=5000", "limit"},
		{"lon without lat", "/v1/aqi/latest?lon=-74", "lat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.get(t, tt.path)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			assert.Equal(t, models.ProblemTypeValidation, body["type"])

			errs := body["errors"].([]interface{})
			require.NotEmpty(t, errs)
			assert.Equal(t, tt.field, errs[0].(map[string]interface{})["field"])
		})
	}
}

func TestLatest_NoData(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.get(t, "/v1/aqi/latest?lat=40&lon=-74")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, models.ProblemTypeNoData, body["type"])
}

func TestLatest_NotFoundOutsideRadius(t *testing.T) {
	env := newTestEnv(t)
	env.publish(t)

	rec, body := env.get(t, "/v1/aqi/latest?lat=10&lon=10&radius_km=5")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, models.ProblemTypeNotFound, body["type"])
}

func TestLatest_StoreUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.publish(t)
	env.cache.SetError(errors.New("connection refused"))
	env.store.SetError(errors.New("too many connections"))

	rec, body := env.get(t, "/v1/aqi/latest?lat=40&lon=-74")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, models.ProblemTypeUnavailable, body["type"])
	assert.NotContains(t, body["detail"], "too many connections")
}

func TestNearest(t *testing.T) {
	env := newTestEnv(t)
	env.publish(t)

	rec, body := env.get(t, "/v1/aqi/nearest?lat=40.01&lon=-74.01")
	require.Equal(t, http.StatusOK, rec.Code)

	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	assert.Equal(t, "TEMPO_40.0000_-74.0000", data[0].(map[string]interface{})["location"])

	rec, body = env.get(t, "/v1/aqi/nearest?lon=-74")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "lat", body["errors"].([]interface{})[0].(map[string]interface{})["field"])
}

func TestCell(t *testing.T) {
	env := newTestEnv(t)
	env.publish(t)

	rec, body := env.get(t, "/v1/aqi/cell?lat=40.00001&lon=-74.00001")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "TEMPO_40.0000_-74.0000", body["location"])
	assert.NotContains(t, body, "distance_km")

	rec, body = env.get(t, "/v1/aqi/cell?lat=41.5&lon=-74")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, models.ProblemTypeNotFound, body["type"])
}

func TestLocations(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.get(t, "/v1/aqi/locations")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["count"])
	assert.Empty(t, body["locations"])

	env.publish(t)
	rec, body = env.get(t, "/v1/aqi/locations")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(25), body["count"])
}

func TestGeoJSON(t *testing.T) {
	env := newTestEnv(t)
	env.publish(t)

	rec, body := env.get(t, "/v1/aqi/geojson?lat=40&lon=-74&radius_km=15&limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "FeatureCollection", body["type"])

	features := body["features"].([]interface{})
	require.Len(t, features, 2)
	geometry := features[0].(map[string]interface{})["geometry"].(map[string]interface{})
	assert.Equal(t, "Point", geometry["type"])
	assert.Equal(t, []interface{}{-74.0, 40.0}, geometry["coordinates"])
}

func TestOps_HealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.get(t, "/v1/ops/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", body["status"])

	rec, body = env.get(t, "/v1/ops/ready")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", body["status"])

	env.cache.SetError(errors.New("connection refused"))
	rec, body = env.get(t, "/v1/ops/ready")
	require.Equal(t, http.StatusOK, rec.Code, "the cache is optional")
	assert.Equal(t, "DEGRADED", body["status"])

	env.store.SetError(errors.New("connection refused"))
	rec, body = env.get(t, "/v1/ops/ready")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "FAIL", body["status"])
}

func TestOps_StatusRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.get(t, "/v1/ops/status")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = env.get(t, "/v1/ops/status", "Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOps_Status(t *testing.T) {
	env := newTestEnv(t)
	env.publish(t)
	env.registry.Register("granules", closedBreaker{})
	env.registry.RecordFailure("granules", errors.New("503 from upstream"))

	token, _, err := env.tokens.Generate("oncall", time.Hour)
	require.NoError(t, err)

	rec, body := env.get(t, "/v1/ops/status", "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "test", body["version"])
	assert.Len(t, body["subsystems"], 2)

	snap := body["snapshot"].(map[string]interface{})
	assert.Equal(t, "2024-06-01T18:00:00Z", snap["timestamp"])
	assert.Equal(t, float64(25), snap["totalPoints"])

	deps := body["dependencies"].([]interface{})
	require.Len(t, deps, 1)
	dep := deps[0].(map[string]interface{})
	assert.Equal(t, "granules", dep["name"])
	assert.Equal(t, "closed", dep["circuitState"])
	assert.Equal(t, "503 from upstream", dep["lastError"])
}

type closedBreaker struct{}

func (closedBreaker) BreakerState() gobreaker.State   { return gobreaker.StateClosed }
func (closedBreaker) BreakerCounts() gobreaker.Counts { return gobreaker.Counts{} }

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/routes", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
