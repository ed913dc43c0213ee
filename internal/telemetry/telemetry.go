// Package telemetry is the callback surface between the proxy pipeline and
// whatever the host wants to do with routing events. All hooks are
// optional; nil hooks are skipped. Hooks must not block: slow consumers
// (dashboards, ledgers) buffer or drop on their side.
package telemetry

import (
	"log/slog"

	"github.com/clawinfra/clawrouter/internal/catalog"
	"github.com/clawinfra/clawrouter/internal/router"
)

// UsageRecord is emitted once per finished request.
type UsageRecord struct {
	RequestID        string       `json:"requestId"`
	Model            string       `json:"model"`
	Tier             catalog.Tier `json:"tier"`
	PromptTokens     int          `json:"promptTokens"`
	CompletionTokens int          `json:"completionTokens"`
	CostUSD          float64      `json:"costUsd"`
	SavingsUSD       float64      `json:"savingsUsd"`
	DurationMs       int64        `json:"durationMs"`
	Status           string       `json:"status"` // "completed" or "failed"
}

// Hooks is the telemetry callback bundle.
type Hooks struct {
	OnReady    func(addr string)
	OnRouted   func(requestID string, decision router.RoutingDecision)
	OnError    func(requestID, kind string, err error)
	OnComplete func(rec UsageRecord)
}

// Ready fires the readiness hook, if any.
func (h Hooks) Ready(addr string) {
	if h.OnReady != nil {
		h.OnReady(addr)
	}
}

// Routed fires the routing hook, if any.
func (h Hooks) Routed(requestID string, decision router.RoutingDecision) {
	if h.OnRouted != nil {
		h.OnRouted(requestID, decision)
	}
}

// Error fires the error hook, if any.
func (h Hooks) Error(requestID, kind string, err error) {
	if h.OnError != nil {
		h.OnError(requestID, kind, err)
	}
}

// Complete fires the usage hook, if any.
func (h Hooks) Complete(rec UsageRecord) {
	if h.OnComplete != nil {
		h.OnComplete(rec)
	}
}

// Merge fans events out to every hook bundle in order.
func Merge(bundles ...Hooks) Hooks {
	return Hooks{
		OnReady: func(addr string) {
			for _, b := range bundles {
				b.Ready(addr)
			}
		},
		OnRouted: func(id string, d router.RoutingDecision) {
			for _, b := range bundles {
				b.Routed(id, d)
			}
		},
		OnError: func(id, kind string, err error) {
			for _, b := range bundles {
				b.Error(id, kind, err)
			}
		},
		OnComplete: func(rec UsageRecord) {
			for _, b := range bundles {
				b.Complete(rec)
			}
		},
	}
}

// SlogHooks logs every event through the given logger. This is the default
// sink when the host supplies nothing else.
func SlogHooks(logger *slog.Logger) Hooks {
	logger = logger.With("component", "telemetry")
	return Hooks{
		OnReady: func(addr string) {
			logger.Info("proxy ready", "addr", addr)
		},
		OnRouted: func(id string, d router.RoutingDecision) {
			logger.Info("request routed",
				"request_id", id,
				"tier", d.Tier.String(),
				"model", d.Model,
				"method", string(d.Method),
				"savings", d.Savings,
			)
		},
		OnError: func(id, kind string, err error) {
			logger.Warn("request failed",
				"request_id", id,
				"kind", kind,
				"error", err,
			)
		},
		OnComplete: func(rec UsageRecord) {
			logger.Info("request completed",
				"request_id", rec.RequestID,
				"model", rec.Model,
				"tier", rec.Tier.String(),
				"prompt_tokens", rec.PromptTokens,
				"completion_tokens", rec.CompletionTokens,
				"cost_usd", rec.CostUSD,
				"duration_ms", rec.DurationMs,
				"status", rec.Status,
			)
		},
	}
}
