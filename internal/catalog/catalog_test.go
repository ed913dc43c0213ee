package catalog

import (
	"encoding/json"
	"testing"
)

func TestDefaultCatalogShape(t *testing.T) {
	c := Default()

	for _, tier := range Tiers() {
		chain := c.Chain(tier)
		if len(chain) != 3 {
			t.Errorf("tier %s: expected 3 chain entries, got %d", tier, len(chain))
		}
		primary := c.Primary(tier)
		if primary.ID != chain[0] {
			t.Errorf("tier %s: primary %s is not the chain head %s", tier, primary.ID, chain[0])
		}
		for _, id := range chain {
			m, ok := c.Model(id)
			if !ok {
				t.Errorf("chain model %s missing from catalog", id)
				continue
			}
			if m.Tier != tier {
				t.Errorf("model %s is tier %s but sits in the %s chain", id, m.Tier, tier)
			}
			if _, ok := c.Provider(m.Provider); !ok {
				t.Errorf("model %s references unknown provider %s", id, m.Provider)
			}
		}
	}

	if c.Baseline().ID != "claude-sonnet-4" {
		t.Errorf("expected claude-sonnet-4 baseline, got %s", c.Baseline().ID)
	}
	if c.Cheapest().ID != c.Primary(TierSimple).ID {
		t.Error("cheapest should be the SIMPLE primary")
	}
}

func TestTierCaps(t *testing.T) {
	c := Default()

	caps := map[Tier]int{
		TierSimple:    512,
		TierMedium:    1024,
		TierComplex:   4096,
		TierReasoning: 8192,
	}
	for tier, want := range caps {
		if got := c.TierCap(tier); got != want {
			t.Errorf("tier %s: cap %d, want %d", tier, got, want)
		}
	}
}

func TestNewRejectsCrossTierChain(t *testing.T) {
	models := []ModelEntry{
		{ID: "a", Provider: "p", Tier: TierSimple},
		{ID: "b", Provider: "p", Tier: TierMedium},
		{ID: "c", Provider: "p", Tier: TierComplex},
		{ID: "d", Provider: "p", Tier: TierReasoning},
	}
	providers := []ProviderInfo{{Name: "p", BaseURL: "http://x"}}
	chains := map[Tier][]string{
		TierSimple:    {"b"}, // wrong tier
		TierMedium:    {"b"},
		TierComplex:   {"c"},
		TierReasoning: {"d"},
	}

	if _, err := New(models, providers, chains, nil); err == nil {
		t.Error("expected error for cross-tier chain entry")
	}
}

func TestNewRequiresAllTiers(t *testing.T) {
	models := []ModelEntry{{ID: "a", Provider: "p", Tier: TierSimple}}
	providers := []ProviderInfo{{Name: "p"}}
	chains := map[Tier][]string{TierSimple: {"a"}}

	if _, err := New(models, providers, chains, nil); err == nil {
		t.Error("expected error for missing tier chains")
	}
}

func TestOverridePrimary(t *testing.T) {
	c := Default()

	if err := c.OverridePrimary(TierSimple, "gemini-2.5-flash"); err != nil {
		t.Fatalf("override failed: %v", err)
	}
	if c.Primary(TierSimple).ID != "gemini-2.5-flash" {
		t.Errorf("primary not updated: %s", c.Primary(TierSimple).ID)
	}
	chain := c.Chain(TierSimple)
	if chain[0] != "gemini-2.5-flash" || len(chain) != 3 {
		t.Errorf("chain not reordered: %v", chain)
	}

	if err := c.OverridePrimary(TierSimple, "gpt-4o"); err == nil {
		t.Error("expected error for wrong-tier override")
	}
	if err := c.OverridePrimary(TierSimple, "nope"); err == nil {
		t.Error("expected error for unknown model")
	}
}

func TestOverrideComplexPrimaryMovesBaseline(t *testing.T) {
	c := Default()

	if err := c.OverridePrimary(TierComplex, "gpt-4.1"); err != nil {
		t.Fatalf("override failed: %v", err)
	}
	if c.Baseline().ID != "gpt-4.1" {
		t.Errorf("baseline should follow the COMPLEX primary, got %s", c.Baseline().ID)
	}
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		in      string
		want    Tier
		wantErr bool
	}{
		{"SIMPLE", TierSimple, false},
		{"medium", TierMedium, false},
		{"Complex", TierComplex, false},
		{"REASONING", TierReasoning, false},
		{"galaxy", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTier(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTier(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseTier(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestTierJSONRoundTrip(t *testing.T) {
	for _, tier := range Tiers() {
		data, err := json.Marshal(tier)
		if err != nil {
			t.Fatalf("marshal %s: %v", tier, err)
		}
		var back Tier
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if back != tier {
			t.Errorf("round trip %s -> %s", tier, back)
		}
	}
}
