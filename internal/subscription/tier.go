package subscription

import "fmt"

// Tier is an ordered subscription level. Higher values unlock more content.
type Tier int

const (
	TierFree Tier = iota
	TierBronze
	TierSilver
	TierGold
)

var tierNames = map[Tier]string{
	TierFree:   "free",
	TierBronze: "bronze",
	TierSilver: "silver",
	TierGold:   "gold",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// AtLeast reports whether t meets the given minimum tier.
func (t Tier) AtLeast(min Tier) bool {
	return t >= min
}

// ParseTier converts a stored tier name into a Tier. An empty name maps to
// TierFree so that viewers without a subscription row resolve to the lowest level.
func ParseTier(name string) (Tier, error) {
	if name == "" {
		return TierFree, nil
	}
	for tier, n := range tierNames {
		if n == name {
			return tier, nil
		}
	}
	return TierFree, fmt.Errorf("unknown subscription tier: %q", name)
}
