package router

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/clawinfra/clawrouter/internal/catalog"
)

// ScoringResult is the rule classifier's verdict. Tier is nil when the
// calibrated confidence falls below the configured threshold and the caller
// should escalate to the LLM classifier.
type ScoringResult struct {
	Score        float64      `json:"score"`
	Tier         *catalog.Tier `json:"tier"`
	Confidence   float64      `json:"confidence"`
	Signals      []string     `json:"signals"`
	AgenticScore float64      `json:"agenticScore"`
	FastPath     bool         `json:"fastPath"`
}

// Scorer is the rule classifier: a regex fast path for obvious prompts,
// then weighted scoring across 15 dimensions for everything else. CPU-only;
// never blocks on I/O.
type Scorer struct {
	cfg ScoringConfig
}

// NewScorer creates a Scorer over an already-validated config.
func NewScorer(cfg ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Fast-path pattern groups, tested in order against the lowercased trimmed
// user text. A hit short-circuits scoring entirely.
var (
	reQuickGreeting = regexp.MustCompile(`^(hello|hi|hey|yo|howdy|hola|bonjour|ciao|hallo|salut|olá|namaste|privet)\b`)
	reQuickQA       = regexp.MustCompile(`^(what|who)\s+(is|are|was|were)\b`)
	reQuickAck      = regexp.MustCompile(`^(thanks|thank you|ok|okay|got it|great|cool|nice|perfect|sounds good)[.!]*$`)
	reQuickCheckIn  = regexp.MustCompile(`\b(are you (there|alive|awake|online)|you there|still there)\b`)

	reQuickReasoning = regexp.MustCompile(`\b(prove|theorem|derive|formally verify|chain of thought|mathematical proof)\b`)

	reQuickComplex = regexp.MustCompile(`\b(architect\w*|design\s+(a\s+|the\s+)?system|microservice\w*|distributed|scalab\w+|infrastructure|optimi[sz]e|refactor\w*|migrate|overhaul)\b`)

	reQuickMedium = regexp.MustCompile(`\b(write|build|create|implement|add|fix|make|update)\s+(a|an|the)\b`)

	reMultiStep = regexp.MustCompile(`first\b.*\bthen\b|\bstep\s+\d|(?m)^\s*\d+\.\s`)
)

const (
	fastPathSimpleConf    = 0.95
	fastPathReasoningConf = 0.90
	fastPathComplexConf   = 0.85
	fastPathMediumConf    = 0.80

	shortMessageLen = 20
)

// Classify runs the full rule pipeline over the user text (system prompt is
// consulted only by the agentic dimension).
func (s *Scorer) Classify(userText, systemPrompt string, estimatedTokens int) ScoringResult {
	trimmed := strings.TrimSpace(strings.ToLower(userText))

	if tier, conf, ok := quickMatch(trimmed); ok {
		return ScoringResult{
			Score:      0,
			Tier:       &tier,
			Confidence: conf,
			Signals:    []string{"quick-match: " + tier.String()},
			FastPath:   true,
		}
	}

	lower := strings.ToLower(userText)
	combined := strings.ToLower(systemPrompt + "\n" + userText)

	type dim struct {
		name string
		raw  float64
	}

	agentic := scaleCount(countMarkers(combined, s.cfg.AgenticMarkers), [][2]float64{{4, 1.0}, {3, 0.6}, {1, 0.2}})

	dims := []dim{
		{DimTokenCount, scoreTokenBucket(estimatedTokens, s.cfg.Tokens)},
		{DimCodePresence, scaleCount(countMarkers(lower, s.cfg.CodeKeywords), [][2]float64{{2, 1.0}, {1, 0.5}})},
		{DimReasoningMarkers, scaleCount(countMarkers(lower, s.cfg.ReasoningKeywords), [][2]float64{{2, 1.0}, {1, 0.7}})},
		{DimTechnicalTerms, scaleCount(countMarkers(lower, s.cfg.TechnicalTerms), [][2]float64{{4, 1.0}, {2, 0.5}})},
		{DimCreativeMarkers, scaleCount(countMarkers(lower, s.cfg.CreativeMarkers), [][2]float64{{2, 0.7}, {1, 0.5}})},
		{DimSimpleIndicators, scaleCount(countMarkers(lower, s.cfg.SimpleIndicators), [][2]float64{{1, -1.0}})},
		{DimMultiStepPatterns, boolScore(reMultiStep.MatchString(lower), 0.5)},
		{DimQuestionComplexity, boolScore(strings.Count(lower, "?") > 3, 0.5)},
		{DimImperativeVerbs, scaleCount(countMarkers(lower, s.cfg.ImperativeVerbs), [][2]float64{{2, 0.5}, {1, 0.3}})},
		{DimConstraintCount, scaleCount(countMarkers(lower, s.cfg.ConstraintMarkers), [][2]float64{{3, 0.7}, {1, 0.3}})},
		{DimOutputFormat, scaleCount(countMarkers(lower, s.cfg.OutputFormatMarkers), [][2]float64{{2, 0.7}, {1, 0.4}})},
		{DimReferenceComplexity, scaleCount(countMarkers(lower, s.cfg.ReferenceMarkers), [][2]float64{{2, 0.5}, {1, 0.3}})},
		{DimNegationComplexity, scaleCount(countMarkers(lower, s.cfg.NegationMarkers), [][2]float64{{3, 0.5}, {2, 0.3}})},
		{DimDomainSpecificity, scaleCount(countMarkers(lower, s.cfg.DomainTerms), [][2]float64{{2, 0.8}, {1, 0.5}})},
		{DimAgenticTask, agentic},
	}

	var score float64
	var signals []string
	for _, d := range dims {
		if d.raw == 0 {
			continue
		}
		score += d.raw * s.cfg.Weights[d.name]
		signals = append(signals, fmt.Sprintf("%s=%.2f", d.name, d.raw))
	}

	tier, distance := mapBoundaries(score, s.cfg.Boundaries)
	confidence := calibrate(distance, s.cfg.ConfidenceSteepness)

	// Two or more distinct reasoning keywords force the reasoning tier
	// regardless of the weighted score.
	if countMarkers(lower, s.cfg.ReasoningKeywords) >= 2 {
		tier = catalog.TierReasoning
		confidence = math.Max(confidence, 0.85)
		signals = append(signals, "reasoning-override")
		return ScoringResult{
			Score:        score,
			Tier:         &tier,
			Confidence:   confidence,
			Signals:      signals,
			AgenticScore: agentic,
		}
	}

	res := ScoringResult{
		Score:        score,
		Confidence:   confidence,
		Signals:      signals,
		AgenticScore: agentic,
	}
	if confidence >= s.cfg.ConfidenceThreshold {
		res.Tier = &tier
	}
	return res
}

// quickMatch tests the four ordered fast-path groups.
func quickMatch(trimmed string) (catalog.Tier, float64, bool) {
	if utf8.RuneCountInString(trimmed) <= shortMessageLen {
		return catalog.TierSimple, fastPathSimpleConf, true
	}
	if reQuickGreeting.MatchString(trimmed) || reQuickQA.MatchString(trimmed) ||
		reQuickAck.MatchString(trimmed) || reQuickCheckIn.MatchString(trimmed) {
		return catalog.TierSimple, fastPathSimpleConf, true
	}
	if reQuickReasoning.MatchString(trimmed) {
		return catalog.TierReasoning, fastPathReasoningConf, true
	}
	if reQuickComplex.MatchString(trimmed) {
		return catalog.TierComplex, fastPathComplexConf, true
	}
	if reQuickMedium.MatchString(trimmed) {
		return catalog.TierMedium, fastPathMediumConf, true
	}
	return 0, 0, false
}

// mapBoundaries maps a weighted score onto a tier and returns the distance
// to the nearest boundary of the chosen band.
func mapBoundaries(score float64, b [3]float64) (catalog.Tier, float64) {
	switch {
	case score < b[0]:
		return catalog.TierSimple, b[0] - score
	case score < b[1]:
		return catalog.TierMedium, math.Min(score-b[0], b[1]-score)
	case score < b[2]:
		return catalog.TierComplex, math.Min(score-b[1], b[2]-score)
	default:
		return catalog.TierReasoning, score - b[2]
	}
}

// calibrate maps a boundary distance to a confidence in [0.5, 1.0].
func calibrate(distance, steepness float64) float64 {
	return 1.0 / (1.0 + math.Exp(-steepness*distance))
}

// scoreTokenBucket implements the coarse prompt-size dimension.
func scoreTokenBucket(estimated int, t TokenThresholds) float64 {
	switch {
	case estimated < t.Simple:
		return -1.0
	case estimated > t.Complex:
		return 1.0
	default:
		return 0
	}
}

// scaleCount maps a marker count onto a score through ordered
// (minCount, score) steps; the first step whose threshold the count meets
// wins. Steps must be sorted by descending minCount.
func scaleCount(count int, steps [][2]float64) float64 {
	for _, step := range steps {
		if float64(count) >= step[0] {
			return step[1]
		}
	}
	return 0
}

func boolScore(hit bool, score float64) float64 {
	if hit {
		return score
	}
	return 0
}

// countMarkers counts how many distinct markers occur in the text.
// Single-word markers are matched on word boundaries so that e.g. "not"
// does not count inside "cannot".
func countMarkers(lower string, markers []string) int {
	count := 0
	for _, m := range markers {
		if containsWord(lower, m) {
			count++
		}
	}
	return count
}

// containsWord checks if a word/phrase appears as a whole word (not as a
// substring of another word). Uses simple boundary checking.
func containsWord(s, word string) bool {
	idx := 0
	for {
		pos := strings.Index(s[idx:], word)
		if pos == -1 {
			return false
		}
		absPos := idx + pos
		endPos := absPos + len(word)

		leftOK := absPos == 0 || !isWordChar(s[absPos-1])
		rightOK := endPos >= len(s) || !isWordChar(s[endPos])

		if leftOK && rightOK {
			return true
		}

		idx = absPos + 1
		if idx >= len(s) {
			return false
		}
	}
}

func isWordChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '_'
}
