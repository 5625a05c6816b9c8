// Package hub fans realtime channel messages out to connected sync clients.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/opsdeck/syncline/internal/server/jwt"
	"github.com/opsdeck/syncline/pkg/api"
)

const writeTimeout = 5 * time.Second

// Hub tracks live websocket connections keyed by client identity and
// delivers channel messages to all of them or to one of them. Delivery is
// best-effort: a client that misses a message catches up on its next pull.
type Hub struct {
	logger *slog.Logger
	tokens *jwt.Service

	mu      sync.RWMutex
	clients map[*websocket.Conn]string
	closed  bool
}

func New(logger *slog.Logger, tokens *jwt.Service) *Hub {
	return &Hub{
		logger:  logger,
		tokens:  tokens,
		clients: make(map[*websocket.Conn]string),
	}
}

// ServeHTTP upgrades the request to a websocket connection. The channel
// carries no client-to-server traffic beyond pings, so the read loop exists
// only to notice the peer going away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("channel auth rejected", "error", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	h.clients[conn] = claims.ClientID
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("channel client connected", "client_id", claims.ClientID, "connections", count)

	h.readLoop(r.Context(), conn, claims.ClientID)
}

func (h *Hub) readLoop(ctx context.Context, conn *websocket.Conn, clientID string) {
	defer h.remove(conn, clientID)
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn, clientID string) {
	h.mu.Lock()
	delete(h.clients, conn)
	count := len(h.clients)
	h.mu.Unlock()

	conn.Close(websocket.StatusNormalClosure, "")
	h.logger.Info("channel client disconnected", "client_id", clientID, "connections", count)
}

// Broadcast sends a message to every connected client except the named one.
// The originator already holds the state the message describes.
func (h *Hub) Broadcast(ctx context.Context, msg api.ChannelMessage, exceptClientID string) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal channel message", "error", err)
		return
	}

	for _, target := range h.snapshot(func(id string) bool { return id != exceptClientID }) {
		h.write(ctx, target, data)
	}
}

// SendTo sends a message to every connection held by one client.
func (h *Hub) SendTo(ctx context.Context, clientID string, msg api.ChannelMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal channel message", "error", err)
		return
	}

	for _, target := range h.snapshot(func(id string) bool { return id == clientID }) {
		h.write(ctx, target, data)
	}
}

// ClientCount returns how many connections are live.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) snapshot(want func(clientID string) bool) []*websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn, id := range h.clients {
		if want(id) {
			conns = append(conns, conn)
		}
	}
	return conns
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, data []byte) {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
		// The read loop will reap the connection.
		h.logger.Warn("channel write failed", "error", err)
	}
}

// Shutdown closes every connection and refuses new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clients = make(map[*websocket.Conn]string)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
