package ui

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lampd/internal/color"
	"github.com/dokzlo13/lampd/internal/eventbus"
)

// WebSocket message types.
const (
	WSTypeSet   = "set"   // client -> server: picker color
	WSTypeColor = "color" // server -> client: current color
	WSTypeError = "error" // server -> client: edit rejected
)

const (
	wsSendBufferSize = 32
	wsMaxMessageSize = 1 << 10
	wsPingInterval   = 30 * time.Second
	wsPongWait       = 10 * time.Second
)

// WSMessage is sent to and from pages.
type WSMessage struct {
	Type      string          `json:"type"`
	EventType string          `json:"event_type,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// wsSetPayload is the payload of a "set" message. Final marks the picker's
// change event, which is applied without waiting for the coalesce window.
type wsSetPayload struct {
	Color string `json:"color"`
	Final bool   `json:"final"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub tracks connected pages and broadcasts to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// WSClient is one connected page.
type WSClient struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// mu orders the greeting against broadcasts. sawColor is set once a
	// broadcast color has been queued, after which the greeting is stale.
	mu       sync.Mutex
	sawColor bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{clients: make(map[*WSClient]struct{})}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Debug().Str("client", c.id).Int("clients", n).Msg("Websocket client connected")
}

// Unregister removes a client. Only the caller that removes it closes send.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(c.send)
		log.Debug().Str("client", c.id).Int("clients", n).Msg("Websocket client disconnected")
	}
}

// Broadcast sends one message to every client. Slow clients drop messages.
func (h *Hub) Broadcast(eventType string, payload any) {
	data, err := encodeMessage(eventType, payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal broadcast message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.mu.Lock()
		if eventType != WSTypeError {
			c.sawColor = true
		}
		c.trySend(data)
		c.mu.Unlock()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, c)
	}
}

func encodeMessage(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	msgType := WSTypeColor
	if eventType == WSTypeError {
		msgType = WSTypeError
		eventType = ""
	}
	return json.Marshal(WSMessage{
		Type:      msgType,
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   raw,
	})
}

// trySend must be called with the hub lock and c.mu held, so send is not
// closed underneath it and the greeting cannot interleave with a broadcast.
func (c *WSClient) trySend(data []byte) {
	select {
	case c.send <- data:
	default:
		log.Warn().Str("client", c.id).Msg("Websocket client too slow, dropping message")
	}
}

// handleWebSocket upgrades the connection and sends the current color, if
// any. The client is registered before the snapshot is taken, so a change
// landing in between reaches it as a broadcast and the greeting is skipped.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := &WSClient{
		id:   uuid.NewString(),
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}

	s.hub.Register(client)

	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	state, err := s.engine.Snapshot(ctx)
	cancel()

	if err == nil && state.Initialized {
		if data, err := encodeMessage(string(eventbus.EventTypeColorInitialized), newColorPayload(state.Current)); err == nil {
			s.hub.mu.RLock()
			if _, ok := s.hub.clients[client]; ok {
				client.mu.Lock()
				if !client.sawColor {
					client.trySend(data)
				}
				client.mu.Unlock()
			}
			s.hub.mu.RUnlock()
		}
	}

	go client.writePump()
	go client.readPump(s)
}

func (c *WSClient) readPump(s *Server) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("client", c.id).Msg("Websocket read error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongWait)) //nolint:errcheck
		s.handleMessage(c, data)
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsPongWait)) //nolint:errcheck
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsPongWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage feeds picker colors into the coalescer.
func (s *Server) handleMessage(c *WSClient, data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != WSTypeSet {
		s.replyError(c, "expected a set message")
		return
	}

	var set wsSetPayload
	if err := json.Unmarshal(msg.Payload, &set); err != nil {
		s.replyError(c, "invalid set payload")
		return
	}

	var col color.Color
	if err := col.UnmarshalText([]byte(set.Color)); err != nil {
		s.replyError(c, err.Error())
		return
	}

	s.picks.Add(pick{color: col, from: c})
	if set.Final {
		s.picks.Flush()
	}
}

func (s *Server) replyError(c *WSClient, message string) {
	data, err := encodeMessage(WSTypeError, map[string]string{"message": message})
	if err != nil {
		return
	}
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	if _, ok := s.hub.clients[c]; ok {
		c.mu.Lock()
		c.trySend(data)
		c.mu.Unlock()
	}
}
