package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pocketledger/syncengine/internal/models"
	"github.com/pocketledger/syncengine/internal/observability"
)

// WSMessage is the envelope of every message sent on the state stream
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Message types
const (
	WSTypeSyncState = "sync_state"
	WSTypePing      = "ping"
	WSTypePong      = "pong"
)

const (
	wsSendBuffer   = 64
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsMaxMessage   = 4 * 1024
)

// WSClient is one connected state stream
type WSClient struct {
	ID         string
	Conn       *websocket.Conn
	Send       chan []byte
	hub        *StateHub
	mu         sync.Mutex
	closedOnce sync.Once
}

// StateHub fans SyncState transitions out to websocket clients
type StateHub struct {
	clients    map[*WSClient]bool
	register   chan *WSClient
	unregister chan *WSClient
	broadcast  chan []byte
	done       chan struct{}
	mu         sync.RWMutex
}

// NewStateHub creates a new StateHub
func NewStateHub() *StateHub {
	return &StateHub{
		clients:    make(map[*WSClient]bool),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop; it returns when ctx is done
func (h *StateHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.Debugf("State stream client connected: %s", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			observability.Debugf("State stream client disconnected: %s", client.ID)

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// slow consumer
					go h.Unregister(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a client to the hub
func (h *StateHub) Register(client *WSClient) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client from the hub
func (h *StateHub) Unregister(client *WSClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastState sends state to every client. It never blocks the caller;
// when the queue is full the update is dropped.
func (h *StateHub) BroadcastState(state models.SyncState) {
	data, err := EncodeState(state)
	if err != nil {
		observability.Errorf("Error marshaling sync state: %v", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		observability.Warn("State stream queue full, dropping update")
	}
}

// Attach subscribes the hub to svc until the returned func is called
func (h *StateHub) Attach(svc *SyncService) (detach func()) {
	return svc.Subscribe(h.BroadcastState)
}

// GetClientCount returns the number of connected clients
func (h *StateHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NewClient creates a new client connected to this hub
func (h *StateHub) NewClient(id string, conn *websocket.Conn) *WSClient {
	return &WSClient{
		ID:   id,
		Conn: conn,
		Send: make(chan []byte, wsSendBuffer),
		hub:  h,
	}
}

// EncodeState wraps state in a sync_state message
func EncodeState(state models.SyncState) ([]byte, error) {
	return json.Marshal(WSMessage{Type: WSTypeSyncState, Payload: state})
}

// Close closes the client connection
func (c *WSClient) Close() {
	c.closedOnce.Do(func() {
		c.hub.Unregister(c)
		c.Conn.Close()
	})
}

// WriteMessage writes directly to the connection, serialized with WritePump
func (c *WSClient) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// WritePump pumps messages from the hub to the websocket connection
func (c *WSClient) WritePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				c.mu.Lock()
				c.Conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.mu.Unlock()
				return
			}
			if err := c.WriteMessage(message); err != nil {
				return
			}

		case <-ticker.C:
			c.mu.Lock()
			c.Conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			err := c.Conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// ReadPump reads client messages until the connection closes
func (c *WSClient) ReadPump(onMessage func(client *WSClient, data []byte)) {
	defer c.Close()

	c.Conn.SetReadLimit(wsMaxMessage)
	c.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				observability.Warnf("State stream error: %v", err)
			}
			return
		}
		if onMessage != nil {
			onMessage(c, message)
		}
	}
}
