package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tier represents the model complexity tier.
type Tier int

const (
	TierSimple    Tier = iota // greetings, simple factual questions
	TierMedium                // summarisation, light code, moderate Q&A
	TierComplex               // deep analysis, complex code, multi-step tasks
	TierReasoning             // math proofs, logic chains, planning
)

var tierNames = [...]string{"SIMPLE", "MEDIUM", "COMPLEX", "REASONING"}

func (t Tier) String() string {
	if int(t) >= 0 && int(t) < len(tierNames) {
		return tierNames[t]
	}
	return "UNKNOWN"
}

// MarshalJSON implements json.Marshaler.
func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Try as integer
		var i int
		if err2 := json.Unmarshal(data, &i); err2 != nil {
			return err
		}
		*t = Tier(i)
		return nil
	}
	switch s {
	case "SIMPLE":
		*t = TierSimple
	case "MEDIUM":
		*t = TierMedium
	case "COMPLEX":
		*t = TierComplex
	case "REASONING":
		*t = TierReasoning
	default:
		*t = TierComplex // safe default
	}
	return nil
}

// ParseTier converts a tier name to a Tier. Unlike UnmarshalJSON it rejects
// unknown names, which is what config validation wants.
func ParseTier(s string) (Tier, error) {
	for i, name := range tierNames {
		if strings.EqualFold(s, name) {
			return Tier(i), nil
		}
	}
	return 0, fmt.Errorf("catalog: unknown tier %q", s)
}

// MaxTier returns the higher (more capable) of two tiers.
func MaxTier(a, b Tier) Tier {
	if a > b {
		return a
	}
	return b
}

// Tiers lists all tiers in ascending cost/capability order.
func Tiers() []Tier {
	return []Tier{TierSimple, TierMedium, TierComplex, TierReasoning}
}
