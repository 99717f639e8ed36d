package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Keekuk/notesnook/internal/infrastructure/config"
	"github.com/Keekuk/notesnook/internal/infrastructure/database"
	"github.com/Keekuk/notesnook/internal/infrastructure/logging"
)

// Message types on the push channel.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize bounds the messages queued per client. Events for a
	// client whose queue is full are dropped.
	wsSendBufferSize = 256
)

// Broadcast channels.
const (
	ChannelNoteCreated   = "note.created"
	ChannelNoteUpdated   = "note.updated"
	ChannelNoteDeleted   = "note.deleted"
	ChannelDatabaseState = "database.state"
)

var knownChannels = map[string]struct{}{
	ChannelNoteCreated:   {},
	ChannelNoteUpdated:   {},
	ChannelNoteDeleted:   {},
	ChannelDatabaseState: {},
}

// DatabaseStatePayload is the payload of database.state events.
// The file path stays server-side.
type DatabaseStatePayload struct {
	State      database.State `json:"state"`
	Extensions []string       `json:"extensions,omitempty"`
}

// WSMessage is the envelope of every frame the server sends.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsRequest is a frame sent by a client. The payload is decoded per type.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// WSSubscribePayload names the channels of a subscribe or unsubscribe.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

func encodeMessage(msgType, id, eventType string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// corsMiddleware has already vetted the origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub tracks connected clients and fans events out to their subscriptions.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// NewHub creates an empty hub. Call Run to tie its lifetime to a context.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run waits for ctx to end, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Register starts delivering events to client.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister stops delivery to client and ends its writer.
// Unregistering an unknown client is a no-op.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	client.shutdown()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// Broadcast sends payload as an event on channel to every subscriber.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeMessage(WSTypeEvent, "", channel, payload)
	if err != nil {
		h.logger.Error("encoding websocket event failed", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	recipients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		if c.subscribed(channel) {
			recipients = append(recipients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range recipients {
		c.enqueue(data)
	}
	if len(recipients) > 0 {
		h.logger.Debug("websocket event sent", "channel", channel, "recipients", len(recipients))
	}
}

// BroadcastDatabaseState publishes a connection lifecycle change on
// database.state. It can be passed to database.Connection.SetOnStateChange.
func (h *Hub) BroadcastDatabaseState(change database.StateChange) {
	h.Broadcast(ChannelDatabaseState, DatabaseStatePayload{
		State:      change.State,
		Extensions: change.Extensions,
	})
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WSClient is one push-channel connection.
//
// send is closed exactly once, by shutdown, under mu. enqueue checks closed
// under the same lock, so a broadcast racing a disconnect never writes to a
// closed channel.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions map[string]struct{}
	closed        bool
}

func newWSClient(hub *Hub, conn *websocket.Conn, bufSize int) *WSClient {
	return &WSClient{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, bufSize),
		subscriptions: make(map[string]struct{}),
	}
}

// handleWebSocket upgrades an authenticated request and starts the
// client's reader and writer.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn, wsSendBufferSize)
	s.hub.Register(client)

	ka := newKeepalive(s.wsCfg)
	go client.writeLoop(ka)
	go client.readLoop(ka, int64(s.wsCfg.MaxMessageSize))
}

// keepalive holds the ping schedule derived from config.
type keepalive struct {
	pingEvery time.Duration
	writeWait time.Duration
	readWait  time.Duration // silence tolerated before the peer is dropped
}

func newKeepalive(cfg config.WebSocketConfig) keepalive {
	ping := time.Duration(cfg.PingInterval) * time.Second
	pong := time.Duration(cfg.PongTimeout) * time.Second
	return keepalive{pingEvery: ping, writeWait: pong, readWait: ping + pong}
}

func (c *WSClient) readLoop(ka keepalive, limit int64) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(ka.readWait)) }

	c.conn.SetReadLimit(limit)
	extend() //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Application pings count as liveness too; browsers cannot answer
		// protocol pings from script.
		extend() //nolint:errcheck // a failed deadline surfaces on the next read
		c.handleMessage(frame)
	}
}

func (c *WSClient) writeLoop(ka keepalive) {
	ticker := time.NewTicker(ka.pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(ka.writeWait)) //nolint:errcheck // reported by the write
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // peer may already be gone
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage answers one client frame.
func (c *WSClient) handleMessage(frame []byte) {
	var req wsRequest
	if err := json.Unmarshal(frame, &req); err != nil {
		c.reply("", WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch req.Type {
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.updateSubscriptions(req)
	default:
		c.reply(req.ID, WSTypeError, errorPayload("unknown message type: "+req.Type))
	}
}

// updateSubscriptions applies a subscribe or unsubscribe request.
// Subscribing to an unknown channel rejects the whole request.
func (c *WSClient) updateSubscriptions(req wsRequest) {
	var sub WSSubscribePayload
	if len(req.Payload) == 0 || json.Unmarshal(req.Payload, &sub) != nil {
		c.reply(req.ID, WSTypeError, errorPayload("invalid "+req.Type+" payload"))
		return
	}

	subscribe := req.Type == WSTypeSubscribe
	if subscribe {
		for _, ch := range sub.Channels {
			if _, ok := knownChannels[ch]; !ok {
				c.reply(req.ID, WSTypeError, errorPayload("unknown channel: "+ch))
				return
			}
		}
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		if subscribe {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	key := "unsubscribed"
	if subscribe {
		key = "subscribed"
	}
	c.reply(req.ID, WSTypeResponse, map[string][]string{key: sub.Channels})
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := encodeMessage(msgType, id, "", payload)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// enqueue queues data for the writer, dropping it when the queue is full
// or the client is gone.
func (c *WSClient) enqueue(data []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// shutdown closes send so the writer exits. Safe to call more than once.
func (c *WSClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}
