package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stakedeck/stakedeck/internal/ledger"
	"github.com/stakedeck/stakedeck/internal/logging"
	"github.com/stakedeck/stakedeck/internal/util"
	"github.com/stakedeck/stakedeck/pkg/types"
)

// Channel names clients can subscribe to.
const (
	ChannelEvents     = "events"
	userChannelPrefix = "user:"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsReadLimit  = 4 * 1024
	wsSendBuffer = 64
)

// UserChannel is the channel carrying invalidations for one user.
func UserChannel(id types.UserID) string {
	return userChannelPrefix + id.String()
}

// validChannel accepts the events channel and user channels with a
// well-formed ID.
func validChannel(ch string) bool {
	if ch == ChannelEvents {
		return true
	}
	raw, ok := strings.CutPrefix(ch, userChannelPrefix)
	if !ok {
		return false
	}
	_, err := types.EncodeUserID(raw)
	return err == nil
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// inboundMessage is what clients send: subscribe, unsubscribe or ping.
type inboundMessage struct {
	Type string `json:"type"`
	Data struct {
		Channels []string `json:"channels"`
	} `json:"data"`
}

// WebSocketClient represents a connected WebSocket client
type WebSocketClient struct {
	hub        *WebSocketHub
	conn       *websocket.Conn
	send       chan []byte
	subscribed map[string]bool
	mu         sync.RWMutex
}

// WebSocketHub manages WebSocket clients and channel broadcasts
type WebSocketHub struct {
	clients    map[*WebSocketClient]bool
	broadcast  chan *WebSocketMessage
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	done       chan struct{}
	mu         sync.RWMutex

	onConnect    func()
	onDisconnect func()
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*WebSocketClient]bool),
		broadcast:  make(chan *WebSocketMessage, 256),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled, then closes every client.
func (h *WebSocketHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			if h.onConnect != nil {
				h.onConnect()
			}
			logging.Debug("WebSocket client connected",
				"total_clients", total,
				logging.Component("websocket"))

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client] {
				h.drop(client)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("WebSocket client disconnected",
				"total_clients", total,
				logging.Component("websocket"))

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// drop removes client; callers hold h.mu.
func (h *WebSocketHub) drop(client *WebSocketClient) {
	delete(h.clients, client)
	close(client.send)
	if h.onDisconnect != nil {
		h.onDisconnect()
	}
}

func (h *WebSocketHub) deliver(msg *WebSocketMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Warn("WebSocket message encode failed",
			"type", msg.Type,
			logging.Err(err),
			logging.Component("websocket"))
		return
	}

	var slow []*WebSocketClient
	h.mu.RLock()
	for client := range h.clients {
		if msg.Channel != "" && !client.isSubscribed(msg.Channel) {
			continue
		}
		select {
		case client.send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, client := range slow {
		if h.clients[client] {
			h.drop(client)
		}
	}
	h.mu.Unlock()
	logging.Warn("dropped slow WebSocket clients",
		"count", len(slow),
		logging.Component("websocket"))
}

// join hands client to the hub. It reports false once the hub has stopped.
func (h *WebSocketHub) join(client *WebSocketClient) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *WebSocketHub) leave(client *WebSocketClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToChannel sends a message to clients subscribed to channel
func (h *WebSocketHub) BroadcastToChannel(channel, eventType string, data any) {
	msg := &WebSocketMessage{
		Type:    eventType,
		Channel: channel,
		Data:    data,
	}

	select {
	case h.broadcast <- msg:
	default:
		logging.Warn("WebSocket broadcast buffer full",
			"channel", channel,
			logging.Component("websocket"))
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func newWebSocketClient(hub *WebSocketHub, conn *websocket.Conn) *WebSocketClient {
	return &WebSocketClient{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, wsSendBuffer),
		subscribed: make(map[string]bool),
	}
}

func (c *WebSocketClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribed[channel]
}

// readPump reads subscription requests until the connection fails.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug("WebSocket read error",
					logging.Err(err),
					logging.Component("websocket"))
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendMessage(&WebSocketMessage{Type: "error", Data: "malformed message"})
			continue
		}
		c.handleMessage(&msg)
	}
}

// writePump drains send to the connection and keeps it alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WebSocketClient) handleMessage(msg *inboundMessage) {
	switch msg.Type {
	case "subscribe":
		var rejected []string
		c.mu.Lock()
		for _, ch := range msg.Data.Channels {
			if validChannel(ch) {
				c.subscribed[ch] = true
			} else {
				rejected = append(rejected, ch)
			}
		}
		c.mu.Unlock()
		if len(rejected) > 0 {
			c.sendMessage(&WebSocketMessage{
				Type: "error",
				Data: map[string]any{"invalid_channels": rejected},
			})
		}
		c.sendMessage(&WebSocketMessage{
			Type: "subscribed",
			Data: map[string]any{"channels": c.subscribedChannels()},
		})

	case "unsubscribe":
		c.mu.Lock()
		for _, ch := range msg.Data.Channels {
			delete(c.subscribed, ch)
		}
		c.mu.Unlock()
		c.sendMessage(&WebSocketMessage{
			Type: "unsubscribed",
			Data: map[string]any{"channels": c.subscribedChannels()},
		})

	case "ping":
		c.sendMessage(&WebSocketMessage{Type: "pong"})

	default:
		c.sendMessage(&WebSocketMessage{Type: "error", Data: "unknown message type"})
	}
}

// sendMessage queues msg for this client only. It drops the message when
// the buffer is full.
func (c *WebSocketClient) sendMessage(msg *WebSocketMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *WebSocketClient) subscribedChannels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	channels := make([]string, 0, len(c.subscribed))
	for ch := range c.subscribed {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return channels
}

// handleWebSocket upgrades the request. A ?user=ID query subscribes the
// connection to that user's channel up front.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var initial []string
	if raw := r.URL.Query().Get("user"); raw != "" {
		id, err := ledger.ParseUserID(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		initial = append(initial, UserChannel(id))
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed",
			logging.Err(err),
			logging.Component("websocket"))
		return
	}

	client := newWebSocketClient(s.wsHub, conn)
	for _, ch := range initial {
		client.subscribed[ch] = true
	}
	if !s.wsHub.join(client) {
		conn.Close()
		return
	}

	util.SafeGoWithName("ws-write", client.writePump)
	util.SafeGoWithName("ws-read", client.readPump)
}

// HandleLedgerEvent invalidates the users an event touches and relays the
// event on the events channel. Wire it as the EventWatcher handler.
func (s *Server) HandleLedgerEvent(ev ledger.Event) {
	if !ev.UserID.IsZero() {
		s.dashboards.Invalidate(ev.UserID)
	}
	if ev.Kind == ledger.EventRegistered && !ev.Referrer.IsZero() {
		s.dashboards.Invalidate(ev.Referrer)
	}
	if s.wsHub != nil {
		s.wsHub.BroadcastToChannel(ChannelEvents, "event", ev)
	}
}

// broadcastInvalidation tells subscribers of id to refetch its dashboard.
func (s *Server) broadcastInvalidation(id types.UserID) {
	s.wsHub.BroadcastToChannel(UserChannel(id), "invalidate", map[string]any{
		"user_id": id,
	})
}
