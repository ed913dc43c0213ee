package router

import (
	"math"
	"testing"

	"github.com/clawinfra/clawrouter/internal/catalog"
)

func TestSelectSimpleTierSavings(t *testing.T) {
	s := NewSelector(catalog.Default())

	sel := s.Select(catalog.TierSimple, 100, 0)

	if sel.Model.ID != "gpt-4o-mini" {
		t.Errorf("expected SIMPLE primary, got %s", sel.Model.ID)
	}
	if len(sel.Chain) != 3 || sel.Chain[0] != "gpt-4o-mini" {
		t.Errorf("unexpected chain %v", sel.Chain)
	}

	// SIMPLE output is capped at 512 tokens; the baseline prices the same
	// expected output.
	wantEstimate := (100*0.15 + 512*0.60) / 1_000_000
	wantBaseline := (100*3.00 + 512*15.00) / 1_000_000
	if math.Abs(sel.CostEstimate-wantEstimate) > 1e-12 {
		t.Errorf("estimate %.8f, want %.8f", sel.CostEstimate, wantEstimate)
	}
	if math.Abs(sel.BaselineCost-wantBaseline) > 1e-12 {
		t.Errorf("baseline %.8f, want %.8f", sel.BaselineCost, wantBaseline)
	}

	if sel.Savings < 0.90 {
		t.Errorf("expected savings >= 0.90 for a simple prompt, got %.3f", sel.Savings)
	}
	if sel.Savings > 1.0 {
		t.Errorf("savings fraction above 1: %.3f", sel.Savings)
	}
	if sel.SavingsClamped {
		t.Error("savings should not be clamped")
	}
}

func TestSelectRespectsRequestMaxTokens(t *testing.T) {
	s := NewSelector(catalog.Default())

	sel := s.Select(catalog.TierSimple, 100, 256)
	wantEstimate := (100*0.15 + 256*0.60) / 1_000_000
	if math.Abs(sel.CostEstimate-wantEstimate) > 1e-12 {
		t.Errorf("estimate %.8f, want %.8f", sel.CostEstimate, wantEstimate)
	}
	wantBaseline := (100*3.00 + 256*15.00) / 1_000_000
	if math.Abs(sel.BaselineCost-wantBaseline) > 1e-12 {
		t.Errorf("baseline %.8f, want %.8f", sel.BaselineCost, wantBaseline)
	}
}

func TestSelectComplexTierZeroSavings(t *testing.T) {
	s := NewSelector(catalog.Default())

	// COMPLEX primary is the baseline itself.
	sel := s.Select(catalog.TierComplex, 500, 0)
	if sel.Model.ID != "claude-sonnet-4" {
		t.Errorf("expected baseline model, got %s", sel.Model.ID)
	}
	if sel.Savings != 0 {
		t.Errorf("expected zero savings on the baseline, got %.4f", sel.Savings)
	}
}

func TestSelectEstimateNeverExceedsBaseline(t *testing.T) {
	s := NewSelector(catalog.Default())

	for _, tier := range catalog.Tiers() {
		if tier == catalog.TierComplex {
			continue
		}
		for _, maxTokens := range []int{0, 64, 512, 1024, 4096, 8192, 100_000} {
			for _, input := range []int{0, 10, 1000, 200_000} {
				sel := s.Select(tier, input, maxTokens)
				if sel.CostEstimate > sel.BaselineCost {
					t.Errorf("tier %s max %d in %d: estimate %.6f exceeds baseline %.6f",
						tier, maxTokens, input, sel.CostEstimate, sel.BaselineCost)
				}
				if sel.Savings < 0 || sel.Savings > 1 {
					t.Errorf("tier %s max %d in %d: savings %.4f outside [0,1]",
						tier, maxTokens, input, sel.Savings)
				}
				if sel.SavingsClamped {
					t.Errorf("tier %s max %d in %d: unexpected clamp", tier, maxTokens, input)
				}
			}
		}
	}
}

func TestSelectClampsSavingsWhenPrimaryPricierThanBaseline(t *testing.T) {
	// A catalog whose MEDIUM primary is pricier per token than the
	// baseline; the clamp keeps savings at 0 instead of going negative.
	models := []catalog.ModelEntry{
		{ID: "s", Provider: "p", Tier: catalog.TierSimple, InputPerMTok: 0.10, OutputPerMTok: 0.40},
		{ID: "m", Provider: "p", Tier: catalog.TierMedium, InputPerMTok: 20.00, OutputPerMTok: 80.00},
		{ID: "c", Provider: "p", Tier: catalog.TierComplex, InputPerMTok: 3.00, OutputPerMTok: 15.00},
		{ID: "r", Provider: "p", Tier: catalog.TierReasoning, InputPerMTok: 2.00, OutputPerMTok: 8.00},
	}
	providers := []catalog.ProviderInfo{{Name: "p", BaseURL: "http://x"}}
	chains := map[catalog.Tier][]string{
		catalog.TierSimple:    {"s"},
		catalog.TierMedium:    {"m"},
		catalog.TierComplex:   {"c"},
		catalog.TierReasoning: {"r"},
	}
	cat, err := catalog.New(models, providers, chains, nil)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	sel := NewSelector(cat).Select(catalog.TierMedium, 100, 0)
	if sel.Savings != 0 {
		t.Errorf("expected clamped savings 0, got %.4f", sel.Savings)
	}
	if !sel.SavingsClamped {
		t.Error("expected SavingsClamped to be set")
	}
}

func TestSelectSavingsAlwaysInRange(t *testing.T) {
	s := NewSelector(catalog.Default())

	for _, tier := range catalog.Tiers() {
		for _, tokens := range []int{0, 10, 1000, 200_000} {
			sel := s.Select(tier, tokens, 0)
			if sel.Savings < 0 || sel.Savings > 1 {
				t.Errorf("tier %s tokens %d: savings %.4f outside [0,1]", tier, tokens, sel.Savings)
			}
			if sel.CostEstimate < 0 || sel.BaselineCost < 0 {
				t.Errorf("tier %s tokens %d: negative cost", tier, tokens)
			}
		}
	}
}
