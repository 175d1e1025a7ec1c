package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AQIMetrics holds the domain instruments for the ingestion pipeline and the
// spatial query path. A nil *AQIMetrics is valid and records nothing.
type AQIMetrics struct {
	queries          metric.Int64Counter
	pointsConsidered metric.Int64Histogram
	publishDuration  metric.Float64Histogram
	publishedPoints  metric.Int64Counter
	cacheErrors      metric.Int64Counter
}

// NewAQIMetrics registers the AQI instruments on meter.
func NewAQIMetrics(meter metric.Meter) (*AQIMetrics, error) {
	queries, err := meter.Int64Counter(
		"aqi.query.total",
		metric.WithDescription("Spatial queries served, by tier"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, err
	}

	pointsConsidered, err := meter.Int64Histogram(
		"aqi.query.points_considered",
		metric.WithDescription("Points evaluated per spatial query"),
		metric.WithUnit("{point}"),
		metric.WithExplicitBucketBoundaries(10, 100, 1000, 5000, 10000, 50000, 100000, 500000),
	)
	if err != nil {
		return nil, err
	}

	publishDuration, err := meter.Float64Histogram(
		"aqi.publish.duration",
		metric.WithDescription("Snapshot publish duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	publishedPoints, err := meter.Int64Counter(
		"aqi.publish.points",
		metric.WithDescription("Points written by snapshot publishes"),
		metric.WithUnit("{point}"),
	)
	if err != nil {
		return nil, err
	}

	cacheErrors, err := meter.Int64Counter(
		"aqi.cache.errors",
		metric.WithDescription("Cache operations that failed and were bypassed"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &AQIMetrics{
		queries:          queries,
		pointsConsidered: pointsConsidered,
		publishDuration:  publishDuration,
		publishedPoints:  publishedPoints,
		cacheErrors:      cacheErrors,
	}, nil
}

// RecordQuery records one served query.
func (m *AQIMetrics) RecordQuery(ctx context.Context, tier string, sampled bool, considered int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.Bool("sampled", sampled),
	)
	m.queries.Add(ctx, 1, attrs)
	m.pointsConsidered.Record(ctx, int64(considered), attrs)
}

// RecordPublish records a completed snapshot publish.
func (m *AQIMetrics) RecordPublish(ctx context.Context, d time.Duration, points int, cacheWarm bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("cache_warm", cacheWarm))
	m.publishDuration.Record(ctx, d.Seconds(), attrs)
	m.publishedPoints.Add(ctx, int64(points), attrs)
}

// RecordCacheError records a bypassed cache failure.
func (m *AQIMetrics) RecordCacheError(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.cacheErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
