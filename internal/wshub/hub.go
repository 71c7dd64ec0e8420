// Package wshub broadcasts BatchApplied and metrics-summary events to
// dashboard websocket clients (§12 supplemented feature). Connection
// bookkeeping follows the usual gorilla/websocket hub shape: a mutex
// guarding the live connection set, and a dedicated write lock per
// connection since gorilla/websocket forbids concurrent writers on one
// conn.
package wshub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeTimeout bounds each broadcast write, so a client that stops
// reading fails its write and is dropped instead of blocking Broadcast.
const writeTimeout = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Hub tracks connected dashboard clients and fans out events to all of
// them. A slow or dead client is dropped rather than allowed to stall
// the broadcast for everyone else.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// ServeHTTP upgrades the request to a websocket connection and
// registers it with the hub. The connection is read from only to detect
// closure; the dashboard protocol is server-to-client broadcast only.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{conn: conn}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.drainUntilClosed(c)
}

// drainUntilClosed blocks on reads from c until the client disconnects,
// then deregisters it. Dashboard clients send nothing, so any returned
// message or error just signals it's time to clean up.
func (h *Hub) drainUntilClosed(c *client) {
	defer h.remove(c)
	defer c.conn.Close()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Broadcast JSON-encodes v once and sends it to every connected client.
// A client whose write fails is dropped immediately.
func (h *Hub) Broadcast(v any) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("wshub: failed to marshal broadcast payload", slog.Any("error", err))
		return
	}

	for _, c := range targets {
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		writeErr := c.conn.WriteMessage(websocket.TextMessage, payload)
		c.writeMu.Unlock()
		if writeErr != nil {
			h.remove(c)
		}
	}
}

// ClientCount reports the number of currently connected dashboards.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
