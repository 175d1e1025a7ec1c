package airquality

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skyaware/skyaware/internal/resilience"
	"github.com/skyaware/skyaware/internal/telemetry"
)

// DefaultCacheTTL is the expiry of every cache entry written by a publish.
const DefaultCacheTTL = time.Hour

// PublisherConfig holds configuration for the snapshot publisher.
type PublisherConfig struct {
	Store   SnapshotStore
	Cache   SnapshotCache
	Logger  zerolog.Logger
	Metrics *telemetry.AQIMetrics
	Tracer  trace.Tracer

	// CacheTTL is the expiry of the latest blob and per-location entries (default: 1h).
	CacheTTL time.Duration

	// StoreRetry bounds retries of the durable upsert.
	StoreRetry resilience.RetryConfig
}

// Publisher writes a finished snapshot to the durable store and the cache.
type Publisher struct {
	store    SnapshotStore
	cache    SnapshotCache
	logger   zerolog.Logger
	metrics  *telemetry.AQIMetrics
	tracer   trace.Tracer
	cacheTTL time.Duration
	retry    resilience.RetryConfig
}

// NewPublisher creates a new snapshot publisher.
func NewPublisher(cfg PublisherConfig) *Publisher {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer("airquality")
	}

	return &Publisher{
		store:    cfg.Store,
		cache:    cfg.Cache,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		tracer:   tracer,
		cacheTTL: ttl,
		retry:    cfg.StoreRetry,
	}
}

// PublishResult reports what a publish wrote.
type PublishResult struct {
	Timestamp    time.Time
	Points       int
	LatestCached bool
	PointsCached bool

	// Superseded is true when the store already held a newer snapshot. The
	// cache is left untouched so it keeps serving the newer one.
	Superseded bool

	Duration time.Duration
}

// CacheWarm reports whether both cache writes succeeded.
func (r *PublishResult) CacheWarm() bool {
	return r.LatestCached && r.PointsCached
}

// Publish upserts the durable snapshot and then refreshes the cache. A
// durable failure fails the publish with ErrStoreUnavailable. Cache
// failures are logged and reflected in the result only.
func (p *Publisher) Publish(ctx context.Context, points []AQIPoint, ts time.Time) (*PublishResult, error) {
	start := time.Now()
	if len(points) == 0 {
		return nil, ErrNoValidData
	}

	ctx, span := p.tracer.Start(ctx, "airquality.Publish",
		trace.WithAttributes(
			attribute.Int("aqi.points", len(points)),
			attribute.String("aqi.timestamp", ts.UTC().Format(time.RFC3339)),
		),
	)
	defer span.End()

	// Postgres keeps microseconds; keep cache and durable copies identical.
	ts = ts.UTC().Truncate(time.Microsecond)
	snap := NewSnapshot(ts, points)

	err := resilience.Retry(ctx, p.retry, func() error {
		return p.store.Upsert(ctx, snap)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error().Err(err).
			Time("timestamp", ts).
			Int("points", len(points)).
			Msg("durable snapshot upsert failed")
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	result := &PublishResult{Timestamp: ts, Points: len(points)}

	if p.cache != nil && p.superseded(ctx, ts) {
		result.Superseded = true
		p.logger.Info().
			Time("timestamp", ts).
			Msg("newer snapshot already published, leaving cache untouched")
	} else if p.cache != nil {
		if err := p.cache.SetLatest(ctx, snap, p.cacheTTL); err != nil {
			p.cacheFailed(ctx, "set_latest", err)
		} else {
			result.LatestCached = true
		}

		if err := p.cache.SetPoints(ctx, points, p.cacheTTL); err != nil {
			p.cacheFailed(ctx, "set_points", err)
		} else {
			result.PointsCached = true
		}
	}

	result.Duration = time.Since(start)
	p.metrics.RecordPublish(ctx, result.Duration, result.Points, result.CacheWarm())

	p.logger.Info().
		Time("timestamp", ts).
		Int("points", result.Points).
		Bool("latest_cached", result.LatestCached).
		Bool("points_cached", result.PointsCached).
		Bool("superseded", result.Superseded).
		Dur("duration", result.Duration).
		Msg("snapshot published")

	return result, nil
}

// superseded reports whether the durable store holds a snapshot newer than
// ts. A failed lookup is logged and treated as not superseded, since ts was
// just written and is the most likely latest.
func (p *Publisher) superseded(ctx context.Context, ts time.Time) bool {
	info, err := p.store.Latest(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("latest snapshot lookup failed after upsert")
		return false
	}
	return info.Timestamp.After(ts)
}

func (p *Publisher) cacheFailed(ctx context.Context, op string, err error) {
	p.logger.Warn().Err(err).Str("op", op).Msg("cache write failed, durable snapshot remains authoritative")
	p.metrics.RecordCacheError(ctx, op)
}
