package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skyaware/skyaware/internal/airquality"
	"github.com/skyaware/skyaware/internal/api/models"
	"github.com/skyaware/skyaware/internal/api/response"
	"github.com/skyaware/skyaware/internal/resilience"
)

// Pinger is a backing service that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check is one readiness check. A failed optional check degrades the
// service instead of failing it.
type Check struct {
	Name     string
	Pinger   Pinger
	Required bool
}

// SnapshotInfoSource reports the latest durable snapshot.
type SnapshotInfoSource interface {
	Latest(ctx context.Context) (airquality.SnapshotInfo, error)
}

// OpsHandlerConfig holds configuration for the OpsHandler.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string
	Checks    []Check
	Registry  *resilience.Registry
	Snapshots SnapshotInfoSource

	// CheckTimeout bounds each ping (default: 2s).
	CheckTimeout time.Duration
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version      string
	buildTime    string
	checks       []Check
	registry     *resilience.Registry
	snapshots    SnapshotInfoSource
	checkTimeout time.Duration
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	timeout := cfg.CheckTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &OpsHandler{
		version:      cfg.Version,
		buildTime:    cfg.BuildTime,
		checks:       cfg.Checks,
		registry:     cfg.Registry,
		snapshots:    cfg.Snapshots,
		checkTimeout: timeout,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. It answers 503 only when a
// required dependency is unreachable.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	checks := h.runChecks(r.Context())
	status := overall(checks, nil)

	code := http.StatusOK
	if status == models.HealthStatusFail {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, models.Health{
		Status: status,
		Time:   models.Timestamp(time.Now()),
		Checks: checks,
	})
}

// SystemStatus handles GET /v1/ops/status - subsystem, dependency and
// snapshot status. It always answers 200; the body carries the verdict.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	checks := h.runChecks(r.Context())
	deps := h.dependencies()

	status := models.SystemStatus{
		Status:       overall(checks, deps),
		Time:         models.Timestamp(time.Now()),
		Version:      h.version,
		Subsystems:   checks,
		Dependencies: deps,
	}

	if h.snapshots != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
		info, err := h.snapshots.Latest(ctx)
		cancel()
		if err == nil {
			status.Snapshot = &models.SnapshotStatus{
				Timestamp:   models.Timestamp(info.Timestamp),
				TotalPoints: info.TotalPoints,
			}
		} else if !errors.Is(err, airquality.ErrNoData) && status.Status == models.HealthStatusOK {
			status.Status = models.HealthStatusDegraded
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

// runChecks pings every dependency concurrently.
func (h *OpsHandler) runChecks(ctx context.Context) []models.SubsystemStatus {
	results := make([]models.SubsystemStatus, len(h.checks))

	var g errgroup.Group
	for i, c := range h.checks {
		g.Go(func() error {
			pingCtx, cancel := context.WithTimeout(ctx, h.checkTimeout)
			defer cancel()

			results[i] = models.SubsystemStatus{Name: c.Name, Status: models.HealthStatusOK, Required: c.Required}
			if err := c.Pinger.Ping(pingCtx); err != nil {
				detail := err.Error()
				results[i].Detail = &detail
				results[i].Status = models.HealthStatusDegraded
				if c.Required {
					results[i].Status = models.HealthStatusFail
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (h *OpsHandler) dependencies() []models.DependencyStatus {
	if h.registry == nil {
		return []models.DependencyStatus{}
	}

	all := h.registry.All()
	deps := make([]models.DependencyStatus, 0, len(all))
	for _, d := range all {
		status := models.HealthStatusOK
		switch {
		case d.IsUnhealthy():
			status = models.HealthStatusFail
		case d.IsDegraded():
			status = models.HealthStatusDegraded
		}

		dep := models.DependencyStatus{
			Name:                d.Name,
			Status:              status,
			CircuitState:        d.CircuitState.String(),
			ConsecutiveFailures: d.Counts.ConsecutiveFailures,
			LastSuccessAt:       models.TimestampPtr(d.LastSuccessAt),
			LastFailureAt:       models.TimestampPtr(d.LastFailureAt),
		}
		if d.LastError != "" {
			lastErr := d.LastError
			dep.LastError = &lastErr
		}
		deps = append(deps, dep)
	}
	return deps
}

// overall folds check and dependency statuses. An open breaker on a
// dependency degrades the service; only required checks can fail it.
func overall(checks []models.SubsystemStatus, deps []models.DependencyStatus) models.HealthStatus {
	status := models.HealthStatusOK
	for _, c := range checks {
		switch c.Status {
		case models.HealthStatusFail:
			return models.HealthStatusFail
		case models.HealthStatusDegraded:
			status = models.HealthStatusDegraded
		}
	}
	for _, d := range deps {
		if d.Status != models.HealthStatusOK {
			status = models.HealthStatusDegraded
		}
	}
	return status
}
