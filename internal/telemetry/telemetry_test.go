package telemetry

import (
	"testing"

	"github.com/clawinfra/clawrouter/internal/router"
)

func TestNilHooksAreSafe(t *testing.T) {
	var h Hooks
	h.Ready("addr")
	h.Routed("id", router.RoutingDecision{})
	h.Error("id", "kind", nil)
	h.Complete(UsageRecord{})
}

func TestMergeFansOutInOrder(t *testing.T) {
	var order []string
	first := Hooks{OnComplete: func(UsageRecord) { order = append(order, "first") }}
	second := Hooks{OnComplete: func(UsageRecord) { order = append(order, "second") }}

	merged := Merge(first, second)
	merged.Complete(UsageRecord{})
	merged.Ready("addr") // no hooks registered; must not panic

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("expected ordered fan-out, got %v", order)
	}
}
