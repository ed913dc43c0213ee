// Package router classifies chat requests into complexity tiers and picks
// the cheapest capable model. The rule classifier handles the common case
// without I/O; ambiguous prompts fall through to a cached one-shot LLM
// classification. The selector prices the decision against the catalog's
// canonical expensive model.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/clawinfra/clawrouter/internal/catalog"
)

// Method records which stage produced a routing decision.
type Method string

const (
	MethodRules    Method = "rules"
	MethodLLM      Method = "llm"
	MethodFastPath Method = "fastpath"
)

// Signals appended by the post-classification override steps.
const (
	SignalForcedComplexLargeContext = "forced-complex-large-context"
	SignalForcedMediumStructured    = "forced-medium-structured"
)

// largeContextTokens is the estimated-token count above which a request is
// forced to at least the COMPLEX tier.
const largeContextTokens = 100_000

// Message is the subset of an OpenAI chat message the router reads.
type Message struct {
	Role    string
	Content string
}

// Request is the routing view of a chat-completion request.
type Request struct {
	Model     string
	Messages  []Message
	MaxTokens int
	Stream    bool
}

// RoutingDecision describes the classified tier, the chosen model, and the
// cost rationale. Attached to each forwarded request as telemetry.
type RoutingDecision struct {
	Model         string       `json:"model"`
	Tier          catalog.Tier `json:"tier"`
	Confidence    float64      `json:"confidence"`
	Method        Method       `json:"method"`
	Reasoning     string       `json:"reasoning"`
	CostEstimate  float64      `json:"costEstimate"`
	BaselineCost  float64      `json:"baselineCost"`
	Savings       float64      `json:"savings"`
	FallbackChain []string     `json:"fallbackChain"`
	Signals       []string     `json:"signals,omitempty"`
}

// Router orchestrates rule classification, LLM fallback, and model
// selection into a RoutingDecision.
type Router struct {
	scorer   *Scorer
	llm      *LLMClassifier
	selector *Selector
	logger   *slog.Logger
}

// New creates a Router from already-constructed stages.
func New(scorer *Scorer, llm *LLMClassifier, selector *Selector, logger *slog.Logger) *Router {
	return &Router{
		scorer:   scorer,
		llm:      llm,
		selector: selector,
		logger:   logger.With("component", "router"),
	}
}

// Route classifies the request and produces a decision. The only possible
// suspension point is the LLM classifier; everything else is CPU-only.
func (r *Router) Route(ctx context.Context, req Request) RoutingDecision {
	start := time.Now()

	userText := concatRole(req.Messages, "user")
	systemPrompt := concatRole(req.Messages, "system")
	estimatedTokens := EstimateTokens(userText + systemPrompt)

	var (
		tier       catalog.Tier
		confidence float64
		method     Method
	)

	result := r.scorer.Classify(userText, systemPrompt, estimatedTokens)
	signals := result.Signals

	switch {
	case result.Tier != nil && result.FastPath:
		tier, confidence, method = *result.Tier, result.Confidence, MethodFastPath
	case result.Tier != nil:
		tier, confidence, method = *result.Tier, result.Confidence, MethodRules
	case r.llm != nil:
		tier, confidence = r.llm.Classify(ctx, userText)
		method = MethodLLM
	default:
		// LLM fallback disabled; an ambiguous prompt lands on MEDIUM.
		tier, confidence, method = catalog.TierMedium, 0.60, MethodRules
	}

	// Post-classification overrides, in order.
	if estimatedTokens > largeContextTokens {
		tier = catalog.MaxTier(tier, catalog.TierComplex)
		signals = append(signals, SignalForcedComplexLargeContext)
	}
	if systemWantsStructured(systemPrompt) {
		tier = catalog.MaxTier(tier, catalog.TierMedium)
		signals = append(signals, SignalForcedMediumStructured)
	}

	sel := r.selector.Select(tier, estimatedTokens, req.MaxTokens)

	reasoning := fmt.Sprintf("%s via %s (score=%.2f, confidence=%.2f, est_tokens=%d)",
		tier, method, result.Score, confidence, estimatedTokens)
	if sel.SavingsClamped {
		reasoning += "; cost estimate exceeds baseline, savings clamped to 0"
	}

	decision := RoutingDecision{
		Model:         sel.Model.ID,
		Tier:          tier,
		Confidence:    confidence,
		Method:        method,
		Reasoning:     reasoning,
		CostEstimate:  sel.CostEstimate,
		BaselineCost:  sel.BaselineCost,
		Savings:       sel.Savings,
		FallbackChain: sel.Chain,
		Signals:       signals,
	}

	r.logger.Debug("routing decision",
		"tier", tier.String(),
		"model", decision.Model,
		"method", string(method),
		"confidence", fmt.Sprintf("%.2f", confidence),
		"savings", fmt.Sprintf("%.3f", decision.Savings),
		"duration_us", time.Since(start).Microseconds(),
	)

	return decision
}

func concatRole(messages []Message, role string) string {
	var b strings.Builder
	for _, m := range messages {
		if m.Role != role {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}

func systemWantsStructured(systemPrompt string) bool {
	lower := strings.ToLower(systemPrompt)
	return strings.Contains(lower, "json") || strings.Contains(lower, "structured")
}
