package router

import (
	"github.com/clawinfra/clawrouter/internal/catalog"
)

// Selection is the selector's output for a tier: the primary model, the
// ordered fallback chain, and the cost accounting against the baseline.
type Selection struct {
	Model         catalog.ModelEntry
	Chain         []string // primary first
	CostEstimate  float64  // USD
	BaselineCost  float64  // USD
	Savings       float64  // fraction in [0,1]
	SavingsClamped bool    // estimate exceeded baseline; savings pinned to 0
}

// Selector resolves tiers to concrete models and prices requests.
type Selector struct {
	cat *catalog.Catalog
}

// NewSelector creates a Selector over the process catalog.
func NewSelector(cat *catalog.Catalog) *Selector {
	return &Selector{cat: cat}
}

// Select picks the tier's primary model and computes the cost estimate,
// the baseline cost on the canonical expensive model, and the savings
// fraction. maxTokens ≤ 0 means the request did not cap output.
func (s *Selector) Select(tier catalog.Tier, inputTokens, maxTokens int) Selection {
	model := s.cat.Primary(tier)

	// Estimate and baseline price the same expected output count, so any
	// model cheaper per token than the baseline keeps estimate ≤ baseline.
	expected := ExpectedOutputTokens(maxTokens, s.cat.TierCap(tier))

	estimate := Price(model, inputTokens, expected)
	baseline := Price(s.cat.Baseline(), inputTokens, expected)

	savings := 0.0
	clamped := false
	if baseline > 0 {
		savings = (baseline - estimate) / baseline
	}
	if savings < 0 {
		savings = 0
		clamped = true
	}

	return Selection{
		Model:          model,
		Chain:          s.cat.Chain(tier),
		CostEstimate:   estimate,
		BaselineCost:   baseline,
		Savings:        savings,
		SavingsClamped: clamped,
	}
}

// ExpectedOutputTokens resolves the output-token count a request is priced
// at: the request cap when present, bounded by the tier's output cap.
func ExpectedOutputTokens(maxTokens, tierCap int) int {
	expected := maxTokens
	if expected <= 0 {
		expected = catalog.DefaultMaxTokens
	}
	if expected > tierCap {
		expected = tierCap
	}
	return expected
}

// Price computes the USD cost of a request on a model.
func Price(model catalog.ModelEntry, inputTokens, outputTokens int) float64 {
	return (float64(inputTokens)*model.InputPerMTok + float64(outputTokens)*model.OutputPerMTok) / 1_000_000
}
