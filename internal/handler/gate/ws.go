package gate

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lenslock/lenslock-backend/internal/auth"
	"github.com/lenslock/lenslock-backend/internal/gate"
	mediarepo "github.com/lenslock/lenslock-backend/internal/repository/media"
	"github.com/lenslock/lenslock-backend/internal/subscription"
)

// Message types for WebSocket communication
const (
	MsgTypeWatch     = "watch"
	MsgTypeUnwatch   = "unwatch"
	MsgTypeRefresh   = "refresh"
	MsgTypeGateState = "gate_state"
	MsgTypeError     = "error"
)

// WSMessage is the envelope for inbound client messages.
type WSMessage struct {
	Type    string `json:"type"`
	AssetID string `json:"asset_id,omitempty"`
}

// GateStateMessage pushes a re-derived gate view to the client.
type GateStateMessage struct {
	Type string    `json:"type"`
	View gate.View `json:"view"`
}

// ErrorMessage reports a failed client request.
type ErrorMessage struct {
	Type    string `json:"type"`
	AssetID string `json:"asset_id,omitempty"`
	Error   string `json:"error"`
}

// AssetProvider reads stored asset records.
type AssetProvider interface {
	GetAsset(ctx context.Context, assetID string) (*mediarepo.Asset, error)
}

// Handler maintains one WebSocket per viewer and keeps their mounted gates in
// sync with the subscription snapshot. When a tier refresh reports a change,
// every watched asset is re-resolved and the new gate state is pushed, so an
// upgrade mid-session flips a Previewing view to FullAccess without a reload.
type Handler struct {
	assets          AssetProvider
	tiers           subscription.TierStore
	policies        subscription.PolicySet
	upgrader        websocket.Upgrader
	refreshInterval time.Duration
	clients         map[int]*Client
	clientsMutex    sync.RWMutex
}

// Client is one connected viewer with their watched gates.
type Client struct {
	conn       *websocket.Conn
	userID     int
	snapshot   *subscription.Snapshot
	gates      map[string]*gate.Gate // assetID -> mounted gate
	gatesMutex sync.Mutex
	writeMutex sync.Mutex
	done       chan struct{}
}

func NewHandler(assets AssetProvider, tiers subscription.TierStore, policies subscription.PolicySet, refreshInterval time.Duration) *Handler {
	return &Handler{
		assets:   assets,
		tiers:    tiers,
		policies: policies,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // In production, implement proper origin check
			},
		},
		refreshInterval: refreshInterval,
		clients:         make(map[int]*Client),
	}
}

// HandleWebSocket upgrades the connection and starts the client's loops.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == 0 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading connection: %v", err)
		return
	}

	snapshot := subscription.NewSnapshot(h.tiers, userID)
	if _, err := snapshot.Refresh(r.Context()); err != nil {
		log.Printf("Error loading tier for user %d: %v", userID, err)
		conn.Close()
		return
	}

	client := &Client{
		conn:     conn,
		userID:   userID,
		snapshot: snapshot,
		gates:    make(map[string]*gate.Gate),
		done:     make(chan struct{}),
	}

	h.clientsMutex.Lock()
	h.clients[userID] = client
	h.clientsMutex.Unlock()

	go h.refreshLoop(client)
	go h.handleClient(client)
}

// handleClient reads messages from a specific client until disconnect.
func (h *Handler) handleClient(client *Client) {
	defer func() {
		close(client.done)
		client.conn.Close()

		client.gatesMutex.Lock()
		for _, g := range client.gates {
			g.Unmount()
		}
		client.gates = make(map[string]*gate.Gate)
		client.gatesMutex.Unlock()

		h.clientsMutex.Lock()
		delete(h.clients, client.userID)
		h.clientsMutex.Unlock()
	}()

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Error reading message from user %d: %v", client.userID, err)
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(client, "", "invalid message")
			continue
		}

		switch msg.Type {
		case MsgTypeWatch:
			h.handleWatch(client, msg)
		case MsgTypeUnwatch:
			h.handleUnwatch(client, msg)
		case MsgTypeRefresh:
			h.refreshClient(client)
		default:
			h.sendError(client, "", "unknown message type")
		}
	}
}

// handleWatch mounts a gate for the asset and pushes its initial state.
func (h *Handler) handleWatch(client *Client, msg WSMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	asset, err := h.assets.GetAsset(ctx, msg.AssetID)
	if err != nil {
		h.sendError(client, msg.AssetID, "asset not found")
		return
	}

	g, err := gate.Mount(client.snapshot, h.policies, client.userID, *asset)
	if err != nil {
		log.Printf("Error mounting gate for asset %s: %v", msg.AssetID, err)
		h.sendError(client, msg.AssetID, "could not resolve access")
		return
	}

	client.gatesMutex.Lock()
	if old, ok := client.gates[msg.AssetID]; ok {
		old.Unmount()
	}
	client.gates[msg.AssetID] = g
	client.gatesMutex.Unlock()

	h.sendGateState(client, g.View())
}

func (h *Handler) handleUnwatch(client *Client, msg WSMessage) {
	client.gatesMutex.Lock()
	if g, ok := client.gates[msg.AssetID]; ok {
		g.Unmount()
		delete(client.gates, msg.AssetID)
	}
	client.gatesMutex.Unlock()
}

// refreshLoop periodically re-reads the viewer's tier. An explicit refresh
// message triggers the same path immediately.
func (h *Handler) refreshLoop(client *Client) {
	if h.refreshInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-client.done:
			return
		case <-ticker.C:
			h.refreshClient(client)
		}
	}
}

// refreshClient refreshes the snapshot and, if the tier changed, re-derives
// and pushes every watched gate.
func (h *Handler) refreshClient(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	changed, err := client.snapshot.Refresh(ctx)
	if err != nil {
		log.Printf("Error refreshing tier for user %d: %v", client.userID, err)
		return
	}
	if !changed {
		return
	}

	client.gatesMutex.Lock()
	views := make([]gate.View, 0, len(client.gates))
	for assetID, g := range client.gates {
		if err := g.OnTierChanged(); err != nil {
			log.Printf("Error re-deriving gate for asset %s: %v", assetID, err)
			continue
		}
		views = append(views, g.View())
	}
	client.gatesMutex.Unlock()

	for _, view := range views {
		h.sendGateState(client, view)
	}
}

func (h *Handler) sendGateState(client *Client, view gate.View) {
	h.sendJSON(client, GateStateMessage{Type: MsgTypeGateState, View: view})
}

func (h *Handler) sendError(client *Client, assetID, message string) {
	h.sendJSON(client, ErrorMessage{Type: MsgTypeError, AssetID: assetID, Error: message})
}

func (h *Handler) sendJSON(client *Client, v interface{}) {
	client.writeMutex.Lock()
	defer client.writeMutex.Unlock()
	if err := client.conn.WriteJSON(v); err != nil {
		log.Printf("Error writing to user %d: %v", client.userID, err)
	}
}
