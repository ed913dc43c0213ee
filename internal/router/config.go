package router

import "fmt"

// Dimension names, used as keys for weight overrides.
const (
	DimTokenCount          = "token_count"
	DimCodePresence        = "code_presence"
	DimReasoningMarkers    = "reasoning_markers"
	DimTechnicalTerms      = "technical_terms"
	DimCreativeMarkers     = "creative_markers"
	DimSimpleIndicators    = "simple_indicators"
	DimMultiStepPatterns   = "multi_step_patterns"
	DimQuestionComplexity  = "question_complexity"
	DimImperativeVerbs     = "imperative_verbs"
	DimConstraintCount     = "constraint_count"
	DimOutputFormat        = "output_format"
	DimReferenceComplexity = "reference_complexity"
	DimNegationComplexity  = "negation_complexity"
	DimDomainSpecificity   = "domain_specificity"
	DimAgenticTask         = "agentic_task"
)

// TokenThresholds are the coarse prompt-size buckets for the token_count
// dimension.
type TokenThresholds struct {
	Simple  int `json:"simple"`
	Complex int `json:"complex"`
}

// ScoringConfig bundles everything the rule classifier needs. Built once at
// startup via DefaultScoringConfig plus per-instance overrides; treated as
// read-only afterwards.
type ScoringConfig struct {
	Weights map[string]float64 `json:"weights"`

	CodeKeywords        []string `json:"codeKeywords"`
	ReasoningKeywords   []string `json:"reasoningKeywords"`
	TechnicalTerms      []string `json:"technicalTerms"`
	CreativeMarkers     []string `json:"creativeMarkers"`
	SimpleIndicators    []string `json:"simpleIndicators"`
	ImperativeVerbs     []string `json:"imperativeVerbs"`
	ConstraintMarkers   []string `json:"constraintMarkers"`
	OutputFormatMarkers []string `json:"outputFormatMarkers"`
	ReferenceMarkers    []string `json:"referenceMarkers"`
	NegationMarkers     []string `json:"negationMarkers"`
	DomainTerms         []string `json:"domainTerms"`
	AgenticMarkers      []string `json:"agenticMarkers"`

	Tokens TokenThresholds `json:"tokens"`

	// Boundaries are the weighted-score cut points:
	// [0] simple/medium, [1] medium/complex, [2] complex/reasoning.
	// Must be strictly increasing.
	Boundaries [3]float64 `json:"boundaries"`

	// ConfidenceSteepness is the sigmoid slope applied to the distance from
	// the nearest boundary.
	ConfidenceSteepness float64 `json:"confidenceSteepness"`

	// ConfidenceThreshold is the floor below which the rule classifier
	// declines to answer and the caller escalates to the LLM classifier.
	ConfidenceThreshold float64 `json:"confidenceThreshold"`
}

// DefaultScoringConfig returns the shipped defaults. The weight values are
// tunable configuration, not contract.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Weights: map[string]float64{
			DimTokenCount:          1.00,
			DimCodePresence:        1.20,
			DimReasoningMarkers:    1.50,
			DimTechnicalTerms:      0.80,
			DimCreativeMarkers:     0.50,
			DimSimpleIndicators:    1.00,
			DimMultiStepPatterns:   0.70,
			DimQuestionComplexity:  0.50,
			DimImperativeVerbs:     0.60,
			DimConstraintCount:     0.70,
			DimOutputFormat:        0.60,
			DimReferenceComplexity: 0.50,
			DimNegationComplexity:  0.40,
			DimDomainSpecificity:   0.80,
			DimAgenticTask:         0.90,
		},
		CodeKeywords: []string{
			"function", "func ", "def ", "class ", "import ", "return ",
			"struct ", "interface ", "async ", "await ", "compile", "runtime",
			"variable", "array", "loop", "recursion", "regex", "sql",
			"python", "golang", "javascript", "typescript", "rust", "java ",
		},
		ReasoningKeywords: []string{
			"prove", "proof", "theorem", "lemma", "derive", "derivation",
			"deduce", "axiom", "induction", "contradiction", "formally",
			"rigorous", "step by step", "chain of thought", "logically",
			"q.e.d", "corollary",
		},
		TechnicalTerms: []string{
			"algorithm", "database", "schema", "architecture", "latency",
			"throughput", "concurrency", "mutex", "deadlock", "encryption",
			"protocol", "kubernetes", "container", "pipeline", "embedding",
			"gradient", "tensor", "eigenvalue", "bayesian", "stochastic",
			"compiler", "kernel", "cache", "sharding", "replication",
		},
		CreativeMarkers: []string{
			"story", "poem", "song", "script", "fiction", "narrative",
			"imagine", "creative", "character", "dialogue", "plot",
		},
		SimpleIndicators: []string{
			"hello", "hi there", "thanks", "thank you", "good morning",
			"good night", "bye", "goodbye", "how are you", "what's up",
			"ok", "okay", "yes", "no",
		},
		ImperativeVerbs: []string{
			"write", "build", "create", "implement", "add", "fix", "make",
			"update", "convert", "translate", "summarize", "summarise",
			"generate", "explain",
		},
		ConstraintMarkers: []string{
			"must", "should", "require", "ensure", "at least", "at most",
			"no more than", "exactly", "only if", "unless", "within",
			"constraint", "limit",
		},
		OutputFormatMarkers: []string{
			"json", "xml", "csv", "yaml", "markdown", "table", "bullet",
			"format as", "output as", "return as", "numbered list",
		},
		ReferenceMarkers: []string{
			"according to", "based on", "as described", "refer to",
			"see above", "the previous", "the following", "given that",
			"assuming", "with respect to",
		},
		NegationMarkers: []string{
			"not", "don't", "doesn't", "shouldn't", "cannot", "can't",
			"never", "neither", "nor", "without", "except", "exclude",
			"avoid", "instead of",
		},
		DomainTerms: []string{
			"portfolio", "derivative", "arbitrage", "liquidity", "volatility",
			"diagnosis", "pathology", "pharmacology", "clinical",
			"statute", "precedent", "jurisdiction", "liability", "tort",
			"hypothesis", "methodology", "control group",
			"loss function", "overfitting", "regularization", "hyperparameter",
		},
		AgenticMarkers: []string{
			"use the tool", "call the api", "browse", "search the web",
			"run the command", "execute", "file system", "read the file",
			"write to", "agent", "autonomous", "multi-step task",
			"tool call", "function call",
		},
		Tokens:              TokenThresholds{Simple: 50, Complex: 1000},
		Boundaries:          [3]float64{0.5, 1.5, 2.5},
		ConfidenceSteepness: 2.0,
		ConfidenceThreshold: 0.60,
	}
}

// Validate checks the structural invariants of the config.
func (c *ScoringConfig) Validate() error {
	if !(c.Boundaries[0] < c.Boundaries[1] && c.Boundaries[1] < c.Boundaries[2]) {
		return fmt.Errorf("router: tier boundaries must be strictly increasing, got %v", c.Boundaries)
	}
	if c.ConfidenceSteepness <= 0 {
		return fmt.Errorf("router: confidence steepness must be positive, got %v", c.ConfidenceSteepness)
	}
	if c.ConfidenceThreshold < 0.5 || c.ConfidenceThreshold > 1.0 {
		return fmt.Errorf("router: confidence threshold must be in [0.5, 1.0], got %v", c.ConfidenceThreshold)
	}
	return nil
}

// MergeWeights applies weight overrides for known dimensions. Unknown
// dimension names are ignored, matching how unknown config fields are
// treated elsewhere.
func (c *ScoringConfig) MergeWeights(overrides map[string]float64) {
	merged := make(map[string]float64, len(c.Weights))
	for k, v := range c.Weights {
		merged[k] = v
	}
	for k, v := range overrides {
		if _, ok := merged[k]; ok {
			merged[k] = v
		}
	}
	c.Weights = merged
}
