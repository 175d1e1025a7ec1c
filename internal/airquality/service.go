package airquality

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skyaware/skyaware/internal/telemetry"
)

// Tier identifies which snapshot store served a query.
type Tier string

const (
	TierCache    Tier = "cache"
	TierDatabase Tier = "database"
)

// SnapshotStore is the durable, timestamp-keyed snapshot store.
type SnapshotStore interface {
	// Upsert writes the snapshot under its timestamp, replacing any payload
	// already stored for that timestamp.
	Upsert(ctx context.Context, snap *Snapshot) error

	// Latest describes the most recent snapshot. Returns ErrNoData when the
	// store is empty.
	Latest(ctx context.Context) (SnapshotInfo, error)

	// Sample returns every stride-th point of the snapshot at ts in storage
	// order, stopping after limit points. A limit <= 0 means no limit.
	Sample(ctx context.Context, ts time.Time, stride, limit int) ([]AQIPoint, error)

	Ping(ctx context.Context) error
}

// SnapshotCache is the best-effort, expiring fast path.
type SnapshotCache interface {
	// GetLatest returns the cached latest snapshot or ErrCacheMiss.
	GetLatest(ctx context.Context) (*Snapshot, error)

	// SetLatest replaces the latest snapshot blob.
	SetLatest(ctx context.Context, snap *Snapshot, ttl time.Duration) error

	// SetPoints writes one entry per point keyed by its rounded coordinates.
	SetPoints(ctx context.Context, points []AQIPoint, ttl time.Duration) error

	// GetPoint returns the per-location entry for (lat, lon) or ErrCacheMiss.
	GetPoint(ctx context.Context, lat, lon float64) (*AQIPoint, error)

	Ping(ctx context.Context) error
}

// ServiceConfig holds configuration for the spatial query service.
type ServiceConfig struct {
	Store   SnapshotStore
	Cache   SnapshotCache
	Logger  zerolog.Logger
	Metrics *telemetry.AQIMetrics
	Tracer  trace.Tracer

	// MaxProcess caps how many points a durable fallback evaluates (default: 5000).
	MaxProcess int

	// DefaultRadiusKM applies when a query omits the radius (default: 50).
	DefaultRadiusKM float64

	// DefaultLimit applies when a query omits the limit (default: 100).
	DefaultLimit int

	// MaxLimit bounds the limit a caller may request (default: 1000).
	MaxLimit int
}

// Service answers spatial queries against the latest snapshot, preferring
// the cache and falling back to a sampled read of the durable store.
type Service struct {
	store   SnapshotStore
	cache   SnapshotCache
	logger  zerolog.Logger
	metrics *telemetry.AQIMetrics
	tracer  trace.Tracer

	maxProcess    int
	defaultRadius float64
	defaultLimit  int
	maxLimit      int
}

// NewService creates a new spatial query service.
func NewService(cfg ServiceConfig) *Service {
	maxProcess := cfg.MaxProcess
	if maxProcess <= 0 {
		maxProcess = 5000
	}

	defaultRadius := cfg.DefaultRadiusKM
	if defaultRadius <= 0 {
		defaultRadius = 50
	}

	defaultLimit := cfg.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = 100
	}

	maxLimit := cfg.MaxLimit
	if maxLimit <= 0 {
		maxLimit = 1000
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer("airquality")
	}

	return &Service{
		store:         cfg.Store,
		cache:         cfg.Cache,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		tracer:        tracer,
		maxProcess:    maxProcess,
		defaultRadius: defaultRadius,
		defaultLimit:  defaultLimit,
		maxLimit:      maxLimit,
	}
}

// QueryResult carries the matched points and how they were obtained.
type QueryResult struct {
	Tier      Tier
	Timestamp time.Time
	Points    []ScoredPoint

	// Spatial is false for unfiltered latest queries, whose DistanceKM is unset.
	Spatial bool

	// Sampled is true when the durable fallback skipped points.
	Sampled bool

	// PointsConsidered counts the points actually evaluated.
	PointsConsidered int

	// TotalPoints is the size of the snapshot that served the query.
	TotalPoints int
}

// LatestQuery describes a GetLatest request. Lat and Lon must be both set
// or both nil; zero RadiusKM and Limit take the service defaults.
type LatestQuery struct {
	Lat      *float64
	Lon      *float64
	RadiusKM float64
	Limit    int
}

// GetLatest runs a radius query when coordinates are given and an
// unfiltered latest query otherwise.
func (s *Service) GetLatest(ctx context.Context, q LatestQuery) (*QueryResult, error) {
	limit, err := s.resolveLimit(q.Limit)
	if err != nil {
		return nil, err
	}

	switch {
	case q.Lat == nil && q.Lon == nil:
		return s.Latest(ctx, limit)
	case q.Lat == nil:
		return nil, &ValidationError{Field: "lat", Message: "required when lon is given"}
	case q.Lon == nil:
		return nil, &ValidationError{Field: "lon", Message: "required when lat is given"}
	}

	radius := q.RadiusKM
	if radius == 0 {
		radius = s.defaultRadius
	}
	return s.WithinRadius(ctx, *q.Lat, *q.Lon, radius, limit)
}

// WithinRadius returns up to limit points within radiusKM of (lat, lon),
// nearest first.
func (s *Service) WithinRadius(ctx context.Context, lat, lon, radiusKM float64, limit int) (*QueryResult, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}
	if radiusKM <= 0 {
		return nil, &ValidationError{Field: "radius_km", Message: "must be positive"}
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}

	ctx, span := s.tracer.Start(ctx, "airquality.WithinRadius",
		trace.WithAttributes(
			attribute.Float64("aqi.lat", lat),
			attribute.Float64("aqi.lon", lon),
			attribute.Float64("aqi.radius_km", radiusKM),
		),
	)
	defer span.End()

	result, err := s.query(ctx, func(points []AQIPoint) []ScoredPoint {
		return WithinRadius(points, lat, lon, radiusKM, limit)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	result.Spatial = true

	span.SetAttributes(
		attribute.String("aqi.tier", string(result.Tier)),
		attribute.Bool("aqi.sampled", result.Sampled),
		attribute.Int("aqi.points_considered", result.PointsConsidered),
	)

	if len(result.Points) == 0 {
		return nil, fmt.Errorf("%w: %.1fkm around (%.4f, %.4f)", ErrNotFound, radiusKM, lat, lon)
	}
	return result, nil
}

// Nearest returns the single closest point within radiusKM. The result's
// Points slice holds exactly one element.
func (s *Service) Nearest(ctx context.Context, lat, lon, radiusKM float64) (*QueryResult, error) {
	if radiusKM == 0 {
		radiusKM = s.defaultRadius
	}
	return s.WithinRadius(ctx, lat, lon, radiusKM, 1)
}

// Latest returns up to limit points of the latest snapshot in snapshot
// order, without spatial filtering.
func (s *Service) Latest(ctx context.Context, limit int) (*QueryResult, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}

	ctx, span := s.tracer.Start(ctx, "airquality.Latest")
	defer span.End()

	if snap, ok := s.cachedSnapshot(ctx); ok {
		points := snap.Points
		if len(points) > limit {
			points = points[:limit]
		}
		result := &QueryResult{
			Tier:             TierCache,
			Timestamp:        snap.Timestamp,
			Points:           unscored(points),
			PointsConsidered: len(points),
			TotalPoints:      snap.TotalPoints,
		}
		s.metrics.RecordQuery(ctx, string(result.Tier), false, result.PointsConsidered)
		return result, nil
	}

	info, err := s.latestInfo(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	points, err := s.store.Sample(ctx, info.Timestamp, 1, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	result := &QueryResult{
		Tier:             TierDatabase,
		Timestamp:        info.Timestamp,
		Points:           unscored(points),
		PointsConsidered: len(points),
		TotalPoints:      info.TotalPoints,
	}
	s.metrics.RecordQuery(ctx, string(result.Tier), false, result.PointsConsidered)
	return result, nil
}

// Cell returns the cached per-location entry for the grid position that
// rounds to (lat, lon).
func (s *Service) Cell(ctx context.Context, lat, lon float64) (*AQIPoint, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}
	if s.cache == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, LocationID(lat, lon))
	}

	p, err := s.cache.GetPoint(ctx, lat, lon)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.cacheFailed(ctx, "get_point", err)
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, LocationID(lat, lon))
	}
	return p, nil
}

// Locations lists the distinct positions of the latest durable snapshot.
// It never consults the cache and returns an empty list when no snapshot
// exists.
func (s *Service) Locations(ctx context.Context) ([]Location, error) {
	info, err := s.store.Latest(ctx)
	if errors.Is(err, ErrNoData) {
		return []Location{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	points, err := s.store.Sample(ctx, info.Timestamp, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	seen := make(map[string]struct{}, len(points))
	locations := make([]Location, 0, len(points))
	for _, p := range points {
		if _, ok := seen[p.Location]; ok {
			continue
		}
		seen[p.Location] = struct{}{}
		locations = append(locations, Location{
			ID:          p.Location,
			Latitude:    p.Latitude,
			Longitude:   p.Longitude,
			LastUpdated: p.Timestamp,
		})
	}
	return locations, nil
}

// query runs match against the cached snapshot, or against a strided
// sample of the latest durable snapshot when the cache cannot serve.
func (s *Service) query(ctx context.Context, match func([]AQIPoint) []ScoredPoint) (*QueryResult, error) {
	if snap, ok := s.cachedSnapshot(ctx); ok {
		result := &QueryResult{
			Tier:             TierCache,
			Timestamp:        snap.Timestamp,
			Points:           match(snap.Points),
			PointsConsidered: len(snap.Points),
			TotalPoints:      snap.TotalPoints,
		}
		s.metrics.RecordQuery(ctx, string(result.Tier), false, result.PointsConsidered)
		return result, nil
	}

	info, err := s.latestInfo(ctx)
	if err != nil {
		return nil, err
	}

	stride := SampleStride(info.TotalPoints, s.maxProcess)
	points, err := s.store.Sample(ctx, info.Timestamp, stride, s.maxProcess)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	result := &QueryResult{
		Tier:             TierDatabase,
		Timestamp:        info.Timestamp,
		Points:           match(points),
		Sampled:          len(points) < info.TotalPoints,
		PointsConsidered: len(points),
		TotalPoints:      info.TotalPoints,
	}

	s.logger.Debug().
		Int("total_points", info.TotalPoints).
		Int("stride", stride).
		Int("points_considered", result.PointsConsidered).
		Bool("sampled", result.Sampled).
		Msg("served query from durable store")

	s.metrics.RecordQuery(ctx, string(result.Tier), result.Sampled, result.PointsConsidered)
	return result, nil
}

// SampleStride returns the step that keeps a scan of total points within
// maxProcess evaluations.
func SampleStride(total, maxProcess int) int {
	if maxProcess <= 0 {
		return 1
	}
	return max(1, total/maxProcess)
}

func (s *Service) cachedSnapshot(ctx context.Context) (*Snapshot, bool) {
	if s.cache == nil {
		return nil, false
	}
	snap, err := s.cache.GetLatest(ctx)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.cacheFailed(ctx, "get_latest", err)
		}
		return nil, false
	}
	return snap, true
}

func (s *Service) latestInfo(ctx context.Context) (SnapshotInfo, error) {
	info, err := s.store.Latest(ctx)
	if errors.Is(err, ErrNoData) {
		return SnapshotInfo{}, err
	}
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return info, nil
}

func (s *Service) cacheFailed(ctx context.Context, op string, err error) {
	s.logger.Warn().Err(err).Str("op", op).Msg("cache unavailable, bypassing")
	s.metrics.RecordCacheError(ctx, op)
}

func (s *Service) resolveLimit(limit int) (int, error) {
	switch {
	case limit == 0:
		return s.defaultLimit, nil
	case limit < 0:
		return 0, &ValidationError{Field: "limit", Message: "must be positive"}
	case limit > s.maxLimit:
		return 0, &ValidationError{Field: "limit", Message: fmt.Sprintf("must not exceed %d", s.maxLimit)}
	}
	return limit, nil
}

func unscored(points []AQIPoint) []ScoredPoint {
	out := make([]ScoredPoint, len(points))
	for i, p := range points {
		out[i] = ScoredPoint{AQIPoint: p}
	}
	return out
}
