package proxy

import (
	"log/slog"
	"sync"
	"time"
)

// ModelState represents the health state of an upstream model.
type ModelState string

const (
	StateHealthy  ModelState = "healthy"
	StateDegraded ModelState = "degraded"
)

// modelHealth tracks one model's recent behaviour.
type modelHealth struct {
	State               ModelState `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	TotalRequests       int64      `json:"total_requests"`
	TotalFailures       int64      `json:"total_failures"`
	LastFailure         time.Time  `json:"last_failure,omitzero"`
	DegradedAt          time.Time  `json:"degraded_at,omitzero"`
}

const (
	healthFailureThreshold = 3
	healthCooldown         = 5 * time.Minute
)

// HealthRegistry remembers which upstream models have been failing so the
// fallback traversal can prefer models that recently worked. A degraded
// model becomes eligible again after a cooldown. State is in-memory only.
type HealthRegistry struct {
	mu     sync.RWMutex
	models map[string]*modelHealth
	logger *slog.Logger
	now    func() time.Time
}

// NewHealthRegistry creates an empty registry.
func NewHealthRegistry(logger *slog.Logger) *HealthRegistry {
	return &HealthRegistry{
		models: make(map[string]*modelHealth),
		logger: logger.With("component", "model-health"),
		now:    time.Now,
	}
}

// RecordSuccess resets the failure streak for a model.
func (r *HealthRegistry) RecordSuccess(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.get(model)
	h.TotalRequests++
	h.ConsecutiveFailures = 0
	if h.State == StateDegraded {
		r.logger.Info("model recovered", "model", model)
	}
	h.State = StateHealthy
}

// RecordFailure counts a failure and degrades the model once the streak
// crosses the threshold.
func (r *HealthRegistry) RecordFailure(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.get(model)
	h.TotalRequests++
	h.TotalFailures++
	h.ConsecutiveFailures++
	h.LastFailure = r.now()
	if h.ConsecutiveFailures >= healthFailureThreshold && h.State != StateDegraded {
		h.State = StateDegraded
		h.DegradedAt = r.now()
		r.logger.Warn("model degraded",
			"model", model,
			"consecutive_failures", h.ConsecutiveFailures,
		)
	}
}

// Available reports whether a model should be attempted. Degraded models
// come back after the cooldown.
func (r *HealthRegistry) Available(model string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.models[model]
	if !ok || h.State == StateHealthy {
		return true
	}
	return r.now().Sub(h.DegradedAt) >= healthCooldown
}

// PreferHealthy reorders a fallback chain so currently available models
// come first, preserving relative order within each group. The chain is
// never shortened: if everything is degraded the original order stands.
func (r *HealthRegistry) PreferHealthy(chain []string) []string {
	healthy := make([]string, 0, len(chain))
	degraded := make([]string, 0)
	for _, id := range chain {
		if r.Available(id) {
			healthy = append(healthy, id)
		} else {
			degraded = append(degraded, id)
		}
	}
	return append(healthy, degraded...)
}

func (r *HealthRegistry) get(model string) *modelHealth {
	h, ok := r.models[model]
	if !ok {
		h = &modelHealth{State: StateHealthy}
		r.models[model] = h
	}
	return h
}
