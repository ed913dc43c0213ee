package router

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/clawinfra/clawrouter/internal/catalog"
)

// CompletionFunc performs a one-shot completion against an upstream model
// and returns the raw text of the first choice.
type CompletionFunc func(ctx context.Context, model, prompt string, maxTokens int) (string, error)

const (
	llmClassifyTimeout   = 5 * time.Second
	llmClassifyMaxTokens = 10

	llmHitConfidence     = 0.75
	llmFreshConfidence   = 0.70
	llmDefaultConfidence = 0.60
)

const classifyPrompt = `Classify the complexity of the following request. Answer with exactly one word: SIMPLE, MEDIUM, COMPLEX, or REASONING.

Request:
`

var reTierWord = regexp.MustCompile(`\b(SIMPLE|MEDIUM|COMPLEX|REASONING)\b`)

// LLMClassifier resolves prompts the rule classifier found ambiguous by
// asking the cheapest catalog model for a single-word verdict. Failures are
// swallowed: classification always terminates with a decision.
type LLMClassifier struct {
	cache  Cache
	call   CompletionFunc
	model  string
	group  singleflight.Group
	logger *slog.Logger
}

// NewLLMClassifier wires the fallback classifier. model is the catalog's
// SIMPLE primary; call is the upstream one-shot completion.
func NewLLMClassifier(cache Cache, call CompletionFunc, model string, logger *slog.Logger) *LLMClassifier {
	return &LLMClassifier{
		cache:  cache,
		call:   call,
		model:  model,
		logger: logger.With("component", "llm-classifier"),
	}
}

// Classify returns a tier and a confidence in [0.6, 0.8]. It never returns
// an error; network trouble degrades to MEDIUM.
func (c *LLMClassifier) Classify(ctx context.Context, userText string) (catalog.Tier, float64) {
	fp := Fingerprint(userText)
	if tier, ok := c.cache.Lookup(fp); ok {
		return tier, llmHitConfidence
	}

	// Concurrent identical misses share one upstream call.
	v, _, _ := c.group.Do(fp, func() (any, error) {
		return c.classifyUpstream(ctx, fp, userText), nil
	})
	verdict := v.(llmVerdict)
	return verdict.tier, verdict.confidence
}

type llmVerdict struct {
	tier       catalog.Tier
	confidence float64
}

func (c *LLMClassifier) classifyUpstream(ctx context.Context, fingerprint, userText string) llmVerdict {
	// The call is shared by every deduped waiter, so it must not die with
	// whichever caller happened to start it. The deadline still bounds it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), llmClassifyTimeout)
	defer cancel()

	out, err := c.call(ctx, c.model, classifyPrompt+userText, llmClassifyMaxTokens)
	if err != nil {
		c.logger.Warn("upstream classification failed, defaulting to MEDIUM",
			"model", c.model,
			"error", err,
		)
		return llmVerdict{tier: catalog.TierMedium, confidence: llmDefaultConfidence}
	}

	match := reTierWord.FindString(strings.ToUpper(out))
	if match == "" {
		c.logger.Warn("unparseable classification output, defaulting to MEDIUM",
			"model", c.model,
			"output", out,
		)
		return llmVerdict{tier: catalog.TierMedium, confidence: llmDefaultConfidence}
	}

	var tier catalog.Tier
	switch match {
	case "SIMPLE":
		tier = catalog.TierSimple
	case "MEDIUM":
		tier = catalog.TierMedium
	case "COMPLEX":
		tier = catalog.TierComplex
	case "REASONING":
		tier = catalog.TierReasoning
	}

	c.cache.Insert(fingerprint, tier)
	return llmVerdict{tier: tier, confidence: llmFreshConfidence}
}
