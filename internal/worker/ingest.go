package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skyaware/skyaware/internal/airquality"
	"github.com/skyaware/skyaware/internal/granule"
)

// ErrIngestInProgress is returned when a run is requested while another is
// still going.
var ErrIngestInProgress = errors.New("ingest already in progress")

// GranuleSource provides the latest granule.
type GranuleSource interface {
	Fetch(ctx context.Context) (*granule.Dataset, error)
}

// SnapshotPublisher persists a finished point set.
type SnapshotPublisher interface {
	Publish(ctx context.Context, points []airquality.AQIPoint, ts time.Time) (*airquality.PublishResult, error)
}

// IngestJob runs fetch, align, extract and publish as one unit.
type IngestJob struct {
	config    IngestConfig
	source    GranuleSource
	publisher SnapshotPublisher
	logger    zerolog.Logger

	running sync.Mutex
	metrics *IngestMetrics
}

// IngestJobConfig holds configuration for creating an IngestJob.
type IngestJobConfig struct {
	Config    IngestConfig
	Source    GranuleSource
	Publisher SnapshotPublisher
	Logger    zerolog.Logger
}

// NewIngestJob creates a new ingestion job.
func NewIngestJob(cfg IngestJobConfig) *IngestJob {
	return &IngestJob{
		config:    cfg.Config.withDefaults(),
		source:    cfg.Source,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		metrics:   &IngestMetrics{},
	}
}

// IngestResult contains the outcome of one run.
type IngestResult struct {
	RunID     string
	Timestamp time.Time
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Cells     int
	Points    int
	Chunks    int
	Publish   *airquality.PublishResult
}

// Run executes the pipeline once. Overlapping calls fail fast with
// ErrIngestInProgress instead of racing on the same timestamp.
func (j *IngestJob) Run(ctx context.Context) (*IngestResult, error) {
	if !j.running.TryLock() {
		return nil, ErrIngestInProgress
	}
	defer j.running.Unlock()

	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	result := &IngestResult{RunID: uuid.NewString(), StartTime: time.Now()}
	logger := j.logger.With().Str("run_id", result.RunID).Logger()
	logger.Info().Int("chunk_size", j.config.ChunkSize).Msg("starting ingest run")

	err := j.run(ctx, logger, result)

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	j.updateMetrics(result, err)

	if err != nil {
		logger.Error().Err(err).Dur("duration", result.Duration).Msg("ingest run failed")
		return result, err
	}

	logger.Info().
		Time("timestamp", result.Timestamp).
		Int("cells", result.Cells).
		Int("points", result.Points).
		Int("chunks", result.Chunks).
		Bool("cache_warm", result.Publish.CacheWarm()).
		Dur("duration", result.Duration).
		Msg("ingest run completed")

	return result, nil
}

func (j *IngestJob) run(ctx context.Context, logger zerolog.Logger, result *IngestResult) error {
	ds, err := j.source.Fetch(ctx)
	if err != nil {
		if !errors.Is(err, airquality.ErrUpstreamAcquisition) {
			err = fmt.Errorf("%w: %w", airquality.ErrUpstreamAcquisition, err)
		}
		return err
	}

	swath, err := ds.Swath()
	if err != nil {
		return err
	}
	aligned, err := swath.Align()
	if err != nil {
		return err
	}
	result.Timestamp = swath.Time
	result.Cells = aligned.Len()

	points := make([]airquality.AQIPoint, 0, min(aligned.Len(), 1<<20))
	for chunk := range airquality.Extract(aligned.Cells(), swath.Time, j.config.ChunkSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		points = append(points, chunk...)
		result.Chunks++
		logger.Debug().
			Int("chunk", result.Chunks).
			Int("chunk_points", len(chunk)).
			Int("total_points", len(points)).
			Msg("extracted chunk")
	}
	if len(points) == 0 {
		return airquality.ErrNoValidData
	}
	result.Points = len(points)

	pub, err := j.publisher.Publish(ctx, points, swath.Time)
	if err != nil {
		return err
	}
	result.Publish = pub
	return nil
}

// IngestMetrics tracks ingest job statistics.
type IngestMetrics struct {
	mu sync.RWMutex

	TotalRuns      int64
	SuccessfulRuns int64
	FailedRuns     int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
	LastTimestamp   time.Time
	LastPoints      int
	LastError       string
}

func (j *IngestJob) updateMetrics(result *IngestResult, err error) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	if err != nil {
		j.metrics.FailedRuns++
		j.metrics.LastError = err.Error()
		return
	}
	j.metrics.SuccessfulRuns++
	j.metrics.LastTimestamp = result.Timestamp
	j.metrics.LastPoints = result.Points
	j.metrics.LastError = ""
}

// GetMetrics returns a copy of the current metrics.
func (j *IngestJob) GetMetrics() IngestMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return IngestMetrics{
		TotalRuns:       j.metrics.TotalRuns,
		SuccessfulRuns:  j.metrics.SuccessfulRuns,
		FailedRuns:      j.metrics.FailedRuns,
		LastRunAt:       j.metrics.LastRunAt,
		LastRunDuration: j.metrics.LastRunDuration,
		LastTimestamp:   j.metrics.LastTimestamp,
		LastPoints:      j.metrics.LastPoints,
		LastError:       j.metrics.LastError,
	}
}

// MetricsSnapshot returns the current metrics as a map.
func (j *IngestJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":        m.TotalRuns,
		"successful_runs":   m.SuccessfulRuns,
		"failed_runs":       m.FailedRuns,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
		"last_timestamp":    m.LastTimestamp,
		"last_points":       m.LastPoints,
		"last_error":        m.LastError,
	}
}
