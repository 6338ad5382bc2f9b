package subscription

import (
	"context"
	"sync"
)

// TierStore reads the persisted tier name for a user. Implemented by the
// subscription repository; billing writes the rows, this core only reads them.
type TierStore interface {
	TierForUser(ctx context.Context, userID int) (string, error)
}

// Snapshot is a read-only view of one viewer's current tier. Consumers read
// CurrentTier; only the owning collaborator (a refresh timer or an explicit
// user action) calls Refresh. Tier changes never originate here.
type Snapshot struct {
	mu     sync.RWMutex
	store  TierStore
	userID int
	tier   Tier
}

// NewSnapshot creates a snapshot for the given viewer. A userID of 0 denotes an
// unauthenticated viewer, who is always TierFree and never refreshed.
func NewSnapshot(store TierStore, userID int) *Snapshot {
	return &Snapshot{
		store:  store,
		userID: userID,
		tier:   TierFree,
	}
}

// UserID returns the viewer this snapshot belongs to.
func (s *Snapshot) UserID() int {
	return s.userID
}

// CurrentTier returns the tier as of the last refresh.
func (s *Snapshot) CurrentTier() Tier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tier
}

// Refresh re-reads the tier from the store and reports whether it changed.
func (s *Snapshot) Refresh(ctx context.Context) (bool, error) {
	if s.userID == 0 {
		return false, nil
	}

	name, err := s.store.TierForUser(ctx, s.userID)
	if err != nil {
		return false, err
	}
	tier, err := ParseTier(name)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	changed := tier != s.tier
	s.tier = tier
	return changed, nil
}
