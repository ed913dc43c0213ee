package router

import (
	"strings"
	"testing"

	"github.com/clawinfra/clawrouter/internal/catalog"
)

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	cfg := DefaultScoringConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	return NewScorer(cfg)
}

func classify(t *testing.T, s *Scorer, text string) ScoringResult {
	t.Helper()
	return s.Classify(text, "", EstimateTokens(text))
}

func TestFastPathSimple(t *testing.T) {
	s := newTestScorer(t)

	prompts := []string{
		"",
		"   ",
		"hi",
		"hello",
		"thanks!",
		"ok",
		"hello there, how are you doing today my friend",
		"What is the capital of France?",
		"are you there?",
	}
	for _, p := range prompts {
		res := classify(t, s, p)
		if res.Tier == nil {
			t.Errorf("%q: expected a tier, got nil", p)
			continue
		}
		if *res.Tier != catalog.TierSimple {
			t.Errorf("%q: expected SIMPLE, got %s", p, *res.Tier)
		}
		if !res.FastPath {
			t.Errorf("%q: expected fast path", p)
		}
		if res.Confidence != 0.95 {
			t.Errorf("%q: expected confidence 0.95, got %.2f", p, res.Confidence)
		}
	}
}

func TestFastPathSimpleLongStem(t *testing.T) {
	s := newTestScorer(t)

	// Q&A-stem matching is not length-capped; a long "what is" question
	// still short-circuits scoring.
	res := classify(t, s, "What is the difference between a mutex and a semaphore in concurrent programs, and when should each be used?")
	if res.Tier == nil || *res.Tier != catalog.TierSimple {
		t.Fatalf("expected SIMPLE, got %v", res.Tier)
	}
	if !res.FastPath {
		t.Error("expected fast path")
	}
	if res.Confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %.2f", res.Confidence)
	}
}

func TestFastPathReasoning(t *testing.T) {
	s := newTestScorer(t)

	res := classify(t, s, "Prove that the square root of 2 is irrational using contradiction")
	if res.Tier == nil || *res.Tier != catalog.TierReasoning {
		t.Fatalf("expected REASONING, got %v", res.Tier)
	}
	if !res.FastPath {
		t.Error("expected fast path")
	}
	if res.Confidence != 0.90 {
		t.Errorf("expected confidence 0.90, got %.2f", res.Confidence)
	}
}

func TestFastPathComplex(t *testing.T) {
	s := newTestScorer(t)

	res := classify(t, s, "Design a distributed system architecture for real-time analytics ingestion")
	if res.Tier == nil || *res.Tier != catalog.TierComplex {
		t.Fatalf("expected COMPLEX, got %v", res.Tier)
	}
	if !res.FastPath {
		t.Error("expected fast path")
	}
	if res.Confidence != 0.85 {
		t.Errorf("expected confidence 0.85, got %.2f", res.Confidence)
	}
}

func TestFastPathMedium(t *testing.T) {
	s := newTestScorer(t)

	res := classify(t, s, "Write a function that reverses a linked list in place")
	if res.Tier == nil || *res.Tier != catalog.TierMedium {
		t.Fatalf("expected MEDIUM, got %v", res.Tier)
	}
	if !res.FastPath {
		t.Error("expected fast path")
	}
	if res.Confidence != 0.80 {
		t.Errorf("expected confidence 0.80, got %.2f", res.Confidence)
	}
}

func TestFastPathOrderReasoningBeatsMedium(t *testing.T) {
	s := newTestScorer(t)

	// Matches both the imperative-medium and the reasoning patterns; the
	// reasoning group is tested first.
	res := classify(t, s, "Write a proof and prove the theorem holds for all n")
	if res.Tier == nil || *res.Tier != catalog.TierReasoning {
		t.Fatalf("expected REASONING to win, got %v", res.Tier)
	}
}

func TestWeightedScoringMedium(t *testing.T) {
	s := newTestScorer(t)

	prompt := "How does the regex engine in python handle backtracking when a pattern contains nested quantifiers, and what happens to matching performance for long input strings when the engine retries many alternative branches during evaluation of the whole expression?"
	res := classify(t, s, prompt)
	if res.FastPath {
		t.Fatal("expected weighted path, got fast path")
	}
	if res.Tier == nil {
		t.Fatalf("expected a tier, got nil (confidence %.2f)", res.Confidence)
	}
	if *res.Tier != catalog.TierMedium {
		t.Errorf("expected MEDIUM, got %s (score %.2f)", *res.Tier, res.Score)
	}
	if res.Confidence < 0.60 {
		t.Errorf("expected confidence above threshold, got %.2f", res.Confidence)
	}
	if len(res.Signals) == 0 {
		t.Error("expected contributing-dimension signals")
	}
}

func TestReasoningKeywordOverride(t *testing.T) {
	s := newTestScorer(t)

	// Two distinct reasoning keywords without touching the fast-path set.
	prompt := "Using induction on the sequence length, deduce the closed form of the recurrence relation and state the conditions under which the closed form stays valid for every positive input value."
	res := classify(t, s, prompt)
	if res.FastPath {
		t.Fatal("expected weighted path")
	}
	if res.Tier == nil || *res.Tier != catalog.TierReasoning {
		t.Fatalf("expected REASONING override, got %v", res.Tier)
	}
	if res.Confidence < 0.85 {
		t.Errorf("expected confidence >= 0.85, got %.2f", res.Confidence)
	}
	found := false
	for _, sig := range res.Signals {
		if sig == "reasoning-override" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected reasoning-override signal, got %v", res.Signals)
	}
}

func TestAmbiguousPromptReturnsNilTier(t *testing.T) {
	s := newTestScorer(t)

	// Lands near the simple/medium boundary: one imperative verb, one
	// output-format marker, neutral prose otherwise.
	prompt := "Please summarize the quarterly report from our regional offices in markdown. The report covers staffing changes, office relocations, travel spending, and a recap of the town hall meetings held across the northern and southern districts during the spring period."
	res := classify(t, s, prompt)
	if res.FastPath {
		t.Fatal("expected weighted path")
	}
	if res.Tier != nil {
		t.Fatalf("expected nil tier for ambiguous prompt, got %s (score %.2f, confidence %.2f)",
			*res.Tier, res.Score, res.Confidence)
	}
	if res.Confidence >= 0.60 {
		t.Errorf("expected confidence below threshold, got %.2f", res.Confidence)
	}
}

func TestMapBoundaries(t *testing.T) {
	b := [3]float64{0.5, 1.5, 2.5}

	tests := []struct {
		score float64
		tier  catalog.Tier
	}{
		{-2.0, catalog.TierSimple},
		{0.0, catalog.TierSimple},
		{0.49, catalog.TierSimple},
		{0.5, catalog.TierMedium},
		{1.0, catalog.TierMedium},
		{1.5, catalog.TierComplex},
		{2.0, catalog.TierComplex},
		{2.5, catalog.TierReasoning},
		{5.0, catalog.TierReasoning},
	}
	for _, tt := range tests {
		tier, distance := mapBoundaries(tt.score, b)
		if tier != tt.tier {
			t.Errorf("score %.2f: expected %s, got %s", tt.score, tt.tier, tier)
		}
		if distance < 0 {
			t.Errorf("score %.2f: negative boundary distance %.2f", tt.score, distance)
		}
	}
}

func TestCalibrateRange(t *testing.T) {
	for _, d := range []float64{0, 0.1, 0.5, 1, 3, 10} {
		c := calibrate(d, 2.0)
		if c < 0.5 || c > 1.0 {
			t.Errorf("distance %.2f: confidence %.3f outside [0.5, 1.0]", d, c)
		}
	}
	if calibrate(0, 2.0) != 0.5 {
		t.Errorf("zero distance should give 0.5, got %.3f", calibrate(0, 2.0))
	}
	if calibrate(0.1, 2.0) >= calibrate(1.0, 2.0) {
		t.Error("confidence should grow with boundary distance")
	}
}

func TestContainsWordBoundaries(t *testing.T) {
	tests := []struct {
		s, word string
		want    bool
	}{
		{"i cannot do this", "not", false},
		{"that is not right", "not", true},
		{"northern lights", "nor", false},
		{"neither this nor that", "nor", true},
		{"use recursion here", "recursion", true},
		{"preprocessing step", "process", false},
	}
	for _, tt := range tests {
		if got := containsWord(tt.s, tt.word); got != tt.want {
			t.Errorf("containsWord(%q, %q) = %v, want %v", tt.s, tt.word, got, tt.want)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(tt.text), got, tt.want)
		}
	}
}

func TestLargePromptScoresHigh(t *testing.T) {
	s := newTestScorer(t)

	// Over the complex token threshold with no other markers: the token
	// dimension alone puts it in the MEDIUM band.
	prompt := strings.Repeat("lorem ipsum dolor sit amet consectetur adipiscing elit sed do ", 100)
	res := s.Classify(prompt, "", EstimateTokens(prompt))
	if res.FastPath {
		t.Fatal("expected weighted path")
	}
	if res.Score < 1.0 {
		t.Errorf("expected token dimension to contribute, score %.2f", res.Score)
	}
}

func TestMergeWeightsIgnoresUnknown(t *testing.T) {
	cfg := DefaultScoringConfig()
	cfg.MergeWeights(map[string]float64{
		DimCodePresence: 2.0,
		"bogus_dim":     9.9,
	})
	if cfg.Weights[DimCodePresence] != 2.0 {
		t.Errorf("expected override applied, got %.2f", cfg.Weights[DimCodePresence])
	}
	if _, ok := cfg.Weights["bogus_dim"]; ok {
		t.Error("unknown dimension should be ignored")
	}
	if cfg.Weights[DimTokenCount] != 1.0 {
		t.Errorf("untouched weight changed: %.2f", cfg.Weights[DimTokenCount])
	}
}

func TestValidateRejectsBadBoundaries(t *testing.T) {
	cfg := DefaultScoringConfig()
	cfg.Boundaries = [3]float64{1.5, 0.5, 2.5}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-increasing boundaries")
	}

	cfg = DefaultScoringConfig()
	cfg.ConfidenceThreshold = 0.3
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for out-of-range threshold")
	}
}
