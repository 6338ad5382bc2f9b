package gate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lenslock/lenslock-backend/internal/auth"
	gatepkg "github.com/lenslock/lenslock-backend/internal/gate"
	mediarepo "github.com/lenslock/lenslock-backend/internal/repository/media"
	"github.com/lenslock/lenslock-backend/internal/subscription"
)

// fakeTierStore is a settable in-memory tier store
type fakeTierStore struct {
	mu    sync.Mutex
	tiers map[int]string
}

func newFakeTierStore() *fakeTierStore {
	return &fakeTierStore{tiers: map[int]string{}}
}

func (s *fakeTierStore) set(userID int, tier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[userID] = tier
}

func (s *fakeTierStore) TierForUser(ctx context.Context, userID int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tiers[userID], nil
}

// fakeAssetProvider serves assets from a fixed map
type fakeAssetProvider struct {
	assets map[string]mediarepo.Asset
}

func (p *fakeAssetProvider) GetAsset(ctx context.Context, assetID string) (*mediarepo.Asset, error) {
	asset, ok := p.assets[assetID]
	if !ok {
		return nil, mediarepo.ErrAssetNotFound
	}
	return &asset, nil
}

// dialTestServer serves the handler behind a middleware that injects the user
// id, the same shape the JWT middleware produces.
func dialTestServer(t *testing.T, handler *Handler, userID int) (*websocket.Conn, func()) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), auth.ContextKeyUserID, userID)
		handler.HandleWebSocket(w, r.WithContext(ctx))
	}))

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "failed to dial test server")

	return conn, func() {
		conn.Close()
		server.Close()
	}
}

func readGateState(t *testing.T, conn *websocket.Conn) GateStateMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg GateStateMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, MsgTypeGateState, msg.Type)
	return msg
}

func newTestHandler(store *fakeTierStore, assets map[string]mediarepo.Asset) *Handler {
	// No ticker in tests, refresh is driven by explicit messages
	return NewHandler(&fakeAssetProvider{assets: assets}, store, subscription.DefaultPolicies(), 0)
}

func TestWatchPushesInitialGateState(t *testing.T) {
	store := newFakeTierStore()
	store.set(1, "free")

	handler := newTestHandler(store, map[string]mediarepo.Asset{
		"a1": {
			ID:             "a1",
			OwnerID:        7,
			ContentType:    "photo",
			PremiumURL:     "https://cdn.example.com/premium/a1.jpg",
			WatermarkedURL: "https://cdn.example.com/watermarked/a1.jpg",
		},
	})

	conn, cleanup := dialTestServer(t, handler, 1)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MsgTypeWatch, AssetID: "a1"}))

	msg := readGateState(t, conn)
	assert.Equal(t, gatepkg.StatePreviewing, msg.View.State)
	assert.Equal(t, "https://cdn.example.com/watermarked/a1.jpg", msg.View.ImageURL)
	assert.True(t, msg.View.ShowOverlay)
}

// TestRefreshPushesUpgradedState: upgrading mid-session and asking for a
// refresh must push the full-access view for every watched asset.
func TestRefreshPushesUpgradedState(t *testing.T) {
	store := newFakeTierStore()
	store.set(1, "free")

	handler := newTestHandler(store, map[string]mediarepo.Asset{
		"a1": {
			ID:             "a1",
			OwnerID:        7,
			ContentType:    "photo",
			PremiumURL:     "https://cdn.example.com/premium/a1.jpg",
			WatermarkedURL: "https://cdn.example.com/watermarked/a1.jpg",
		},
	})

	conn, cleanup := dialTestServer(t, handler, 1)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MsgTypeWatch, AssetID: "a1"}))
	initial := readGateState(t, conn)
	require.Equal(t, gatepkg.StatePreviewing, initial.View.State)

	store.set(1, "gold")
	require.NoError(t, conn.WriteJSON(WSMessage{Type: MsgTypeRefresh}))

	upgraded := readGateState(t, conn)
	assert.Equal(t, gatepkg.StateFullAccess, upgraded.View.State)
	assert.Equal(t, "https://cdn.example.com/premium/a1.jpg", upgraded.View.ImageURL)
	assert.False(t, upgraded.View.ShowOverlay)
}

func TestRefreshWithoutChangePushesNothing(t *testing.T) {
	store := newFakeTierStore()
	store.set(1, "free")

	handler := newTestHandler(store, map[string]mediarepo.Asset{
		"a1": {
			ID:             "a1",
			OwnerID:        7,
			ContentType:    "photo",
			PremiumURL:     "https://cdn.example.com/premium/a1.jpg",
			WatermarkedURL: "https://cdn.example.com/watermarked/a1.jpg",
		},
	})

	conn, cleanup := dialTestServer(t, handler, 1)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MsgTypeWatch, AssetID: "a1"}))
	readGateState(t, conn)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MsgTypeRefresh}))

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var msg GateStateMessage
	err := conn.ReadJSON(&msg)
	assert.Error(t, err, "an unchanged tier must not push gate state")
}

func TestWatchUnknownAssetReturnsError(t *testing.T) {
	store := newFakeTierStore()
	store.set(1, "free")

	handler := newTestHandler(store, map[string]mediarepo.Asset{})

	conn, cleanup := dialTestServer(t, handler, 1)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MsgTypeWatch, AssetID: "missing"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg ErrorMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MsgTypeError, msg.Type)
	assert.Equal(t, "missing", msg.AssetID)
}

func TestAnonymousConnectionRejected(t *testing.T) {
	store := newFakeTierStore()
	handler := newTestHandler(store, map[string]mediarepo.Asset{})

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if conn != nil {
		conn.Close()
	}

	assert.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}
