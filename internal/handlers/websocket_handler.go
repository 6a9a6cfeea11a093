package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pocketledger/syncengine/internal/observability"
	"github.com/pocketledger/syncengine/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// control API binds to loopback and is key-protected
		return true
	},
}

// WebSocketHandler streams sync state to UI clients
type WebSocketHandler struct {
	hub  *services.StateHub
	sync *services.SyncService
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *services.StateHub, sync *services.SyncService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:  hub,
		sync: sync,
	}
}

// HandleConnection upgrades to a websocket, sends the current state, then
// every transition until the client disconnects.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	client := h.hub.NewClient(uuid.New().String(), conn)

	// register before snapshotting so no transition falls between the two
	h.hub.Register(client)

	initial, err := services.EncodeState(h.sync.GetState())
	if err == nil {
		err = client.WriteMessage(initial)
	}
	if err != nil {
		client.Close()
		return
	}

	go client.WritePump()

	client.ReadPump(h.handleMessage)
}

// handleMessage answers pings; the stream is otherwise one-way
func (h *WebSocketHandler) handleMessage(client *services.WSClient, data []byte) {
	var msg services.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		observability.Debugf("Invalid WebSocket message: %v", err)
		return
	}

	switch msg.Type {
	case services.WSTypePing:
		if resp, err := json.Marshal(services.WSMessage{Type: services.WSTypePong}); err == nil {
			client.WriteMessage(resp)
		}

	case services.WSTypeSyncState:
		if resp, err := services.EncodeState(h.sync.GetState()); err == nil {
			client.WriteMessage(resp)
		}

	default:
		observability.Debugf("Unknown WebSocket message type: %s", msg.Type)
	}
}
