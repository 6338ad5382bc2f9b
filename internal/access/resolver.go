package access

import (
	"errors"

	mediarepo "github.com/lenslock/lenslock-backend/internal/repository/media"
	"github.com/lenslock/lenslock-backend/internal/subscription"
)

// ErrPolicyViolation signals that a decision would hand the premium variant to
// a viewer below the full-access tier. Given how Resolve is structured this is
// unreachable; it exists so callers can assert the invariant instead of
// silently serving a leaked URL.
var ErrPolicyViolation = errors.New("access decision violates tier policy")

// State is the viewer-facing outcome of an access decision.
type State string

const (
	StateLocked  State = "locked"
	StatePreview State = "preview"
	StateFull    State = "full"
)

// Decision says which variant, if any, a viewer may be shown. URL is empty
// exactly when State is StateLocked. It is a pure value, no side effects.
type Decision struct {
	State State  `json:"state"`
	URL   string `json:"url,omitempty"`
}

// Resolve decides which variant of an asset the viewer may see.
//
// Full access requires the policy's full tier. Preview requires the preview
// tier and an existing watermarked variant; while the watermark is pending
// there is no safe derivative, so anyone below full tier stays locked. The
// premium URL is never returned to a viewer below the full tier.
func Resolve(asset mediarepo.Asset, policy subscription.AccessPolicy, viewerTier subscription.Tier) Decision {
	if viewerTier.AtLeast(policy.FullTier) {
		return Decision{State: StateFull, URL: asset.PremiumURL}
	}
	if viewerTier.AtLeast(policy.PreviewTier) && asset.WatermarkedURL != "" {
		return Decision{State: StatePreview, URL: asset.WatermarkedURL}
	}
	return Decision{State: StateLocked}
}

// ResolveForViewer applies the owner rule on top of Resolve: owners always get
// full access to their own content, so a pending watermark stays invisible to
// the uploader.
func ResolveForViewer(asset mediarepo.Asset, policy subscription.AccessPolicy, viewerTier subscription.Tier, viewerID int) Decision {
	if viewerID != 0 && viewerID == asset.OwnerID {
		return Decision{State: StateFull, URL: asset.PremiumURL}
	}
	return Resolve(asset, policy, viewerTier)
}

// Check verifies a decision against the leak invariant. A non-nil error means
// broken code, not a normal runtime condition; callers should fail hard.
func Check(d Decision, asset mediarepo.Asset, policy subscription.AccessPolicy, viewerTier subscription.Tier, viewerID int) error {
	if d.State != StateFull {
		return nil
	}
	if viewerID != 0 && viewerID == asset.OwnerID {
		return nil
	}
	if !viewerTier.AtLeast(policy.FullTier) {
		return ErrPolicyViolation
	}
	return nil
}
