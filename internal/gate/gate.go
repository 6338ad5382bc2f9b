package gate

import (
	"context"
	"sync"

	"github.com/lenslock/lenslock-backend/internal/access"
	mediarepo "github.com/lenslock/lenslock-backend/internal/repository/media"
	"github.com/lenslock/lenslock-backend/internal/subscription"
)

// State mirrors the three render modes of a gated media view.
type State string

const (
	StateLocked     State = "locked"
	StatePreviewing State = "previewing"
	StateFullAccess State = "full_access"
)

// View is the render contract handed to the presentation layer. When State is
// StateLocked, ImageURL is empty: a locked view fetches neither variant, it
// only shows the upgrade prompt. ShowOverlay asks for the cosmetic display-tier
// mark on previews; it is branding, not an access control.
type View struct {
	State         State  `json:"state"`
	AssetID       string `json:"asset_id"`
	ImageURL      string `json:"image_url,omitempty"`
	ShowOverlay   bool   `json:"show_overlay"`
	UpgradePrompt bool   `json:"upgrade_prompt"`
}

// Gate derives what to render for one viewer looking at one asset. It keeps no
// transition history: every relevant event (tier refresh, opening a gallery
// view, prev/next navigation) recomputes the decision from current inputs, so
// a stale decision from a list view is never reused.
type Gate struct {
	mu       sync.Mutex
	snapshot *subscription.Snapshot
	policies subscription.PolicySet
	viewerID int
	asset    mediarepo.Asset
	view     View
	mounted  bool
}

// Mount creates a gate for the given asset and computes its initial state.
func Mount(snapshot *subscription.Snapshot, policies subscription.PolicySet, viewerID int, asset mediarepo.Asset) (*Gate, error) {
	g := &Gate{
		snapshot: snapshot,
		policies: policies,
		viewerID: viewerID,
		asset:    asset,
		mounted:  true,
	}
	if err := g.recompute(); err != nil {
		return nil, err
	}
	return g, nil
}

// View returns the current render contract.
func (g *Gate) View() View {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.view
}

// State returns the current gate state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.view.State
}

// OnTierChanged re-derives the view after the subscription snapshot was
// refreshed, e.g. when an upgrade completes mid-session.
func (g *Gate) OnTierChanged() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.recompute()
}

// Open points the gate at a specific asset before it is first painted, e.g.
// when entering a full-screen view from a list.
func (g *Gate) Open(asset mediarepo.Asset) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.asset = asset
	return g.recompute()
}

// Navigate moves to the previous or next asset in a gallery. Each asset may
// have a different pending status, so the decision is recomputed per asset.
func (g *Gate) Navigate(asset mediarepo.Asset) error {
	return g.Open(asset)
}

// Refresh refreshes the underlying snapshot and, if the tier changed,
// re-derives the view in the same step.
func (g *Gate) Refresh(ctx context.Context) error {
	changed, err := g.snapshot.Refresh(ctx)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return g.OnTierChanged()
}

// Unmount marks the gate's view as gone. Later events become no-ops instead of
// touching state that no longer backs a live view.
func (g *Gate) Unmount() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mounted = false
}

// recompute rebuilds the view from the current asset, policy and tier.
// Callers hold g.mu.
func (g *Gate) recompute() error {
	if !g.mounted {
		return nil
	}

	policy, err := g.policies.ForContentType(g.asset.ContentType)
	if err != nil {
		return err
	}

	tier := g.snapshot.CurrentTier()
	decision := access.ResolveForViewer(g.asset, policy, tier, g.viewerID)
	if err := access.Check(decision, g.asset, policy, tier, g.viewerID); err != nil {
		return err
	}

	g.view = viewFor(g.asset.ID, decision)
	return nil
}

func viewFor(assetID string, decision access.Decision) View {
	switch decision.State {
	case access.StateFull:
		return View{State: StateFullAccess, AssetID: assetID, ImageURL: decision.URL}
	case access.StatePreview:
		return View{State: StatePreviewing, AssetID: assetID, ImageURL: decision.URL, ShowOverlay: true}
	default:
		return View{State: StateLocked, AssetID: assetID, UpgradePrompt: true}
	}
}
