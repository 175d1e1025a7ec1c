package models

// Health is the body of the liveness and readiness endpoints.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
	Checks  []SubsystemStatus      `json:"checks,omitempty"`
}

// SystemStatus is the body of the authenticated status endpoint.
type SystemStatus struct {
	Status       HealthStatus       `json:"status"`
	Time         Timestamp          `json:"time"`
	Version      string             `json:"version,omitempty"`
	Subsystems   []SubsystemStatus  `json:"subsystems"`
	Dependencies []DependencyStatus `json:"dependencies"`
	Snapshot     *SnapshotStatus    `json:"snapshot,omitempty"`
}

// SubsystemStatus reports one pinged backing service.
type SubsystemStatus struct {
	Name     string       `json:"name"`
	Status   HealthStatus `json:"status"`
	Required bool         `json:"required"`
	Detail   *string      `json:"detail,omitempty"`
}

// DependencyStatus reports one circuit-broken dependency.
type DependencyStatus struct {
	Name                string       `json:"name"`
	Status              HealthStatus `json:"status"`
	CircuitState        string       `json:"circuitState"`
	ConsecutiveFailures uint32       `json:"consecutiveFailures"`
	LastSuccessAt       *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *Timestamp   `json:"lastFailureAt,omitempty"`
	LastError           *string      `json:"lastError,omitempty"`
}

// SnapshotStatus describes the latest durable snapshot.
type SnapshotStatus struct {
	Timestamp   Timestamp `json:"timestamp"`
	TotalPoints int       `json:"totalPoints"`
}
