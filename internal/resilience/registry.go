package resilience

import (
	"slices"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Monitored is anything guarded by a circuit breaker.
type Monitored interface {
	BreakerState() gobreaker.State
	BreakerCounts() gobreaker.Counts
}

// DependencyHealth is the health of one guarded dependency.
type DependencyHealth struct {
	Name          string
	CircuitState  gobreaker.State
	Counts        gobreaker.Counts
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// IsHealthy reports a closed breaker.
func (h *DependencyHealth) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// IsDegraded reports a half-open breaker.
func (h *DependencyHealth) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}

// IsUnhealthy reports an open breaker.
func (h *DependencyHealth) IsUnhealthy() bool {
	return h.CircuitState == gobreaker.StateOpen
}

// Registry tracks guarded dependencies and their recent outcomes.
type Registry struct {
	mu   sync.RWMutex
	deps map[string]*registered
}

type registered struct {
	target        Monitored
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{deps: make(map[string]*registered)}
}

// Register adds or replaces a dependency.
func (r *Registry) Register(name string, m Monitored) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deps[name] = &registered{target: m}
}

// Unregister removes a dependency.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.deps, name)
}

// RecordSuccess notes a successful call.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.deps[name]; ok {
		now := time.Now()
		d.lastSuccessAt = &now
	}
}

// RecordFailure notes a failed call.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.deps[name]; ok {
		now := time.Now()
		d.lastFailureAt = &now
		if err != nil {
			d.lastError = err.Error()
		}
	}
}

// Health returns the health of one dependency, or nil if unknown.
func (r *Registry) Health(name string) *DependencyHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.deps[name]
	if !ok {
		return nil
	}
	return d.health(name)
}

// All returns the health of every dependency ordered by name.
func (r *Registry) All() []*DependencyHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*DependencyHealth, 0, len(r.deps))
	for name, d := range r.deps {
		out = append(out, d.health(name))
	}
	slices.SortFunc(out, func(a, b *DependencyHealth) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

// Len returns the number of registered dependencies.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.deps)
}

func (d *registered) health(name string) *DependencyHealth {
	return &DependencyHealth{
		Name:          name,
		CircuitState:  d.target.BreakerState(),
		Counts:        d.target.BreakerCounts(),
		LastSuccessAt: d.lastSuccessAt,
		LastFailureAt: d.lastFailureAt,
		LastError:     d.lastError,
	}
}
