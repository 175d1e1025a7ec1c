package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/skyaware/skyaware/internal/airquality"
)

// Job types accepted on the trigger subscription.
const (
	JobIngest      = "ingest"
	JobHealthCheck = "health_check"
)

// ErrUnknownJob is returned for messages with an unrecognised job_type.
var ErrUnknownJob = errors.New("unknown job type")

// TriggerMessage is the payload of an ingest trigger.
type TriggerMessage struct {
	JobType string `json:"job_type"`
}

// HealthCheck verifies the worker's dependencies.
type HealthCheck func(ctx context.Context) error

// Dispatcher routes trigger messages to jobs.
type Dispatcher struct {
	job    *IngestJob
	health HealthCheck
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher. health may be nil.
func NewDispatcher(job *IngestJob, health HealthCheck, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{job: job, health: health, logger: logger}
}

// Dispatch runs the job named in data. The returned bool reports whether
// the message should be acknowledged; failures that would repeat on
// redelivery are acknowledged.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) (bool, error) {
	var msg TriggerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return true, fmt.Errorf("parse message: %w", err)
	}

	switch msg.JobType {
	case JobIngest:
		_, err := d.job.Run(ctx)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, ErrIngestInProgress),
			errors.Is(err, airquality.ErrNoValidData),
			errors.Is(err, airquality.ErrShapeMismatch):
			return true, err
		default:
			return false, err
		}
	case JobHealthCheck:
		if d.health == nil {
			return true, nil
		}
		if err := d.health(ctx); err != nil {
			return false, fmt.Errorf("health check: %w", err)
		}
		return true, nil
	default:
		return true, fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}
