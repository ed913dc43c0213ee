// Package catalog holds the static model table the router selects from.
// Entries are constructed once at startup and never mutated afterwards;
// everything here is safe for concurrent reads.
package catalog

import (
	"fmt"
	"sort"
)

// ModelEntry describes one upstream model.
type ModelEntry struct {
	ID                string  `json:"id"`
	Provider          string  `json:"provider"`
	Tier              Tier    `json:"tier"`
	InputPerMTok      float64 `json:"inputPerMTok"`  // USD per million input tokens
	OutputPerMTok     float64 `json:"outputPerMTok"` // USD per million output tokens
	ContextWindow     int     `json:"contextWindow"`
	SupportsStreaming bool    `json:"supportsStreaming"`
}

// ProviderInfo describes how to reach an upstream provider.
type ProviderInfo struct {
	Name       string
	BaseURL    string
	AuthHeader string // header carrying the credential
	AuthPrefix string // value prefix, e.g. "Bearer "
	// ExtraHeaders are sent verbatim with every request to this provider.
	ExtraHeaders map[string]string
}

// DefaultMaxTokens is assumed when a request carries no max_tokens.
const DefaultMaxTokens = 4096

// Catalog is the process-wide model table. Immutable after New/Default.
type Catalog struct {
	models    map[string]ModelEntry
	providers map[string]ProviderInfo
	primaries map[Tier]string
	chains    map[Tier][]string // primary first, then fallbacks
	tierCaps  map[Tier]int      // expected output-token cap per tier
	baseline  string            // canonical expensive reference model
}

// New builds a catalog from explicit tables. Every chain entry must name a
// model of the chain's tier; the baseline must be the COMPLEX primary.
func New(models []ModelEntry, providers []ProviderInfo, chains map[Tier][]string, tierCaps map[Tier]int) (*Catalog, error) {
	c := &Catalog{
		models:    make(map[string]ModelEntry, len(models)),
		providers: make(map[string]ProviderInfo, len(providers)),
		primaries: make(map[Tier]string, len(chains)),
		chains:    make(map[Tier][]string, len(chains)),
		tierCaps:  make(map[Tier]int, len(tierCaps)),
	}
	for _, m := range models {
		if m.ID == "" {
			return nil, fmt.Errorf("catalog: model with empty id")
		}
		c.models[m.ID] = m
	}
	for _, p := range providers {
		c.providers[p.Name] = p
	}
	for tier, chain := range chains {
		if len(chain) == 0 {
			return nil, fmt.Errorf("catalog: empty chain for tier %s", tier)
		}
		for _, id := range chain {
			m, ok := c.models[id]
			if !ok {
				return nil, fmt.Errorf("catalog: chain for %s names unknown model %q", tier, id)
			}
			if m.Tier != tier {
				return nil, fmt.Errorf("catalog: model %q is tier %s, listed in %s chain", id, m.Tier, tier)
			}
			if _, ok := c.providers[m.Provider]; !ok {
				return nil, fmt.Errorf("catalog: model %q references unknown provider %q", id, m.Provider)
			}
		}
		c.primaries[tier] = chain[0]
		c.chains[tier] = append([]string(nil), chain...)
	}
	for _, tier := range Tiers() {
		if _, ok := c.primaries[tier]; !ok {
			return nil, fmt.Errorf("catalog: no chain for tier %s", tier)
		}
	}
	for tier, cap := range tierCaps {
		c.tierCaps[tier] = cap
	}
	c.baseline = c.primaries[TierComplex]
	return c, nil
}

// Default returns the catalog shipped with the proxy. Prices are USD per
// million tokens.
func Default() *Catalog {
	models := []ModelEntry{
		// SIMPLE
		{ID: "gemini-2.5-flash", Provider: "blockrun", Tier: TierSimple, InputPerMTok: 0.30, OutputPerMTok: 2.50, ContextWindow: 1_048_576, SupportsStreaming: true},
		{ID: "gpt-4o-mini", Provider: "openai", Tier: TierSimple, InputPerMTok: 0.15, OutputPerMTok: 0.60, ContextWindow: 128_000, SupportsStreaming: true},
		{ID: "deepseek-chat", Provider: "blockrun", Tier: TierSimple, InputPerMTok: 0.27, OutputPerMTok: 1.10, ContextWindow: 65_536, SupportsStreaming: true},
		// MEDIUM
		{ID: "gpt-4o", Provider: "openai", Tier: TierMedium, InputPerMTok: 2.50, OutputPerMTok: 10.00, ContextWindow: 128_000, SupportsStreaming: true},
		{ID: "claude-3-5-haiku", Provider: "anthropic", Tier: TierMedium, InputPerMTok: 0.80, OutputPerMTok: 4.00, ContextWindow: 200_000, SupportsStreaming: true},
		{ID: "gemini-2.5-pro", Provider: "blockrun", Tier: TierMedium, InputPerMTok: 1.25, OutputPerMTok: 10.00, ContextWindow: 1_048_576, SupportsStreaming: true},
		// COMPLEX
		{ID: "claude-sonnet-4", Provider: "anthropic", Tier: TierComplex, InputPerMTok: 3.00, OutputPerMTok: 15.00, ContextWindow: 200_000, SupportsStreaming: true},
		{ID: "gpt-4.1", Provider: "openai", Tier: TierComplex, InputPerMTok: 2.00, OutputPerMTok: 8.00, ContextWindow: 1_047_576, SupportsStreaming: true},
		{ID: "claude-opus-4", Provider: "anthropic", Tier: TierComplex, InputPerMTok: 15.00, OutputPerMTok: 75.00, ContextWindow: 200_000, SupportsStreaming: true},
		// REASONING
		{ID: "o3", Provider: "openai", Tier: TierReasoning, InputPerMTok: 2.00, OutputPerMTok: 8.00, ContextWindow: 200_000, SupportsStreaming: true},
		{ID: "deepseek-reasoner", Provider: "blockrun", Tier: TierReasoning, InputPerMTok: 0.55, OutputPerMTok: 2.19, ContextWindow: 65_536, SupportsStreaming: true},
		{ID: "o4-mini", Provider: "openai", Tier: TierReasoning, InputPerMTok: 1.10, OutputPerMTok: 4.40, ContextWindow: 200_000, SupportsStreaming: true},
	}
	providers := []ProviderInfo{
		{Name: "blockrun", BaseURL: "https://api.blockrun.xyz/v1", AuthHeader: "Authorization", AuthPrefix: "Bearer "},
		{Name: "openai", BaseURL: "https://api.openai.com/v1", AuthHeader: "Authorization", AuthPrefix: "Bearer "},
		{Name: "anthropic", BaseURL: "https://api.anthropic.com/v1", AuthHeader: "x-api-key", ExtraHeaders: map[string]string{"anthropic-version": "2023-06-01"}},
	}
	chains := map[Tier][]string{
		TierSimple:    {"gpt-4o-mini", "gemini-2.5-flash", "deepseek-chat"},
		TierMedium:    {"gpt-4o", "claude-3-5-haiku", "gemini-2.5-pro"},
		TierComplex:   {"claude-sonnet-4", "gpt-4.1", "claude-opus-4"},
		TierReasoning: {"o3", "deepseek-reasoner", "o4-mini"},
	}
	tierCaps := map[Tier]int{
		TierSimple:    512,
		TierMedium:    1024,
		TierComplex:   4096,
		TierReasoning: 8192,
	}
	c, err := New(models, providers, chains, tierCaps)
	if err != nil {
		// Default tables are static; a failure here is a programming error.
		panic(err)
	}
	return c
}

// Model looks up a model by id.
func (c *Catalog) Model(id string) (ModelEntry, bool) {
	m, ok := c.models[id]
	return m, ok
}

// Primary returns the primary model for a tier.
func (c *Catalog) Primary(tier Tier) ModelEntry {
	return c.models[c.primaries[tier]]
}

// Chain returns the ordered model ids for a tier, primary first.
func (c *Catalog) Chain(tier Tier) []string {
	return append([]string(nil), c.chains[tier]...)
}

// Baseline returns the canonical expensive reference model used as the
// savings denominator.
func (c *Catalog) Baseline() ModelEntry {
	return c.models[c.baseline]
}

// Cheapest returns the model the LLM classifier uses for its one-shot call.
func (c *Catalog) Cheapest() ModelEntry {
	return c.Primary(TierSimple)
}

// TierCap returns the expected output-token cap for a tier.
func (c *Catalog) TierCap(tier Tier) int {
	if cap, ok := c.tierCaps[tier]; ok && cap > 0 {
		return cap
	}
	return DefaultMaxTokens
}

// Provider returns the provider info for a model entry.
func (c *Catalog) Provider(name string) (ProviderInfo, bool) {
	p, ok := c.providers[name]
	return p, ok
}

// Providers returns the names of all registered providers, sorted.
func (c *Catalog) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IDs returns all model ids, sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.models))
	for id := range c.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OverridePrimary replaces the primary model for a tier. The replacement
// must already be in the catalog and belong to the same tier. Only called
// during startup, before the catalog is shared.
func (c *Catalog) OverridePrimary(tier Tier, id string) error {
	m, ok := c.models[id]
	if !ok {
		return fmt.Errorf("catalog: unknown model %q", id)
	}
	if m.Tier != tier {
		return fmt.Errorf("catalog: model %q is tier %s, cannot lead the %s chain", id, m.Tier, tier)
	}
	chain := []string{id}
	for _, existing := range c.chains[tier] {
		if existing != id {
			chain = append(chain, existing)
		}
	}
	c.chains[tier] = chain
	c.primaries[tier] = id
	if tier == TierComplex {
		c.baseline = id
	}
	return nil
}
