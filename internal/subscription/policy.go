package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	ErrNoPolicyForContentType = errors.New("no access policy for content type")
	ErrInvalidPolicy          = errors.New("preview tier must not exceed full tier")
)

// AccessPolicy holds the two thresholds gating a piece of content: the minimum
// tier that may see the watermarked variant and the minimum tier that may see
// the original.
type AccessPolicy struct {
	PreviewTier Tier `json:"preview_tier"`
	FullTier    Tier `json:"full_tier"`
}

// Validate checks the PreviewTier <= FullTier invariant.
func (p AccessPolicy) Validate() error {
	if p.PreviewTier > p.FullTier {
		return ErrInvalidPolicy
	}
	return nil
}

// PolicySet maps a content type to its access policy. Thresholds are a product
// decision, so they are loaded as data rather than hard-coded in branches.
type PolicySet map[string]AccessPolicy

// DefaultPolicies returns the thresholds used when no policy file is configured:
// anyone may see the watermarked photo, only gold subscribers see the original.
func DefaultPolicies() PolicySet {
	return PolicySet{
		"photo": {PreviewTier: TierFree, FullTier: TierGold},
	}
}

// LoadPolicies reads a policy set from a JSON file keyed by content type, with
// tier names as values, e.g. {"photo": {"preview_tier": "free", "full_tier": "gold"}}.
func LoadPolicies(path string) (PolicySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var raw map[string]struct {
		PreviewTier string `json:"preview_tier"`
		FullTier    string `json:"full_tier"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	policies := make(PolicySet, len(raw))
	for contentType, entry := range raw {
		preview, err := ParseTier(entry.PreviewTier)
		if err != nil {
			return nil, fmt.Errorf("policy for %s: %w", contentType, err)
		}
		full, err := ParseTier(entry.FullTier)
		if err != nil {
			return nil, fmt.Errorf("policy for %s: %w", contentType, err)
		}
		policy := AccessPolicy{PreviewTier: preview, FullTier: full}
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("policy for %s: %w", contentType, err)
		}
		policies[contentType] = policy
	}

	return policies, nil
}

// ForContentType returns the policy for the given content type.
func (ps PolicySet) ForContentType(contentType string) (AccessPolicy, error) {
	policy, ok := ps[contentType]
	if !ok {
		return AccessPolicy{}, ErrNoPolicyForContentType
	}
	return policy, nil
}
