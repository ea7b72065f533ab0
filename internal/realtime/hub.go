package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"alert-bulletin-service/internal/logging"
	"alert-bulletin-service/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	maxConnections = 200
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event is what dashboards receive for every finished dispatch.
type Event struct {
	Type    string                      `json:"type"`
	Summary models.DisseminationSummary `json:"summary"`
}

// client is one dashboard connection. Only its writePump writes to conn.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans dissemination summaries out to connected dashboards. Broadcast
// never blocks on a slow peer: each connection has a bounded queue and
// messages that do not fit are dropped.
type Hub struct {
	clients map[*websocket.Conn]*client
	mutex   sync.Mutex
	logger  *logging.Logger
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]*client),
		logger:  logger,
	}
}

// AddConnection registers conn and starts its writer. Returns false when the
// hub is full.
func (h *Hub) AddConnection(conn *websocket.Conn) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if len(h.clients) >= maxConnections {
		h.logger.Warnf("Max WebSocket connections reached (%d)", maxConnections)
		return false
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.clients[conn] = c
	go h.writePump(c)
	h.logger.Infof("Added WebSocket connection (total: %d)", len(h.clients))
	return true
}

// RemoveConnection drops conn if present and stops its writer.
func (h *Hub) RemoveConnection(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if c, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(c.send)
		h.logger.Infof("Removed WebSocket connection (remaining: %d)", len(h.clients))
	}
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// Broadcast queues summary for every connection.
func (h *Hub) Broadcast(summary models.DisseminationSummary) {
	message, err := json.Marshal(Event{Type: "dissemination", Summary: summary})
	if err != nil {
		h.logger.Errorf("Failed to encode dissemination summary %s: %v", summary.BulletinID, err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for _, c := range h.clients {
		select {
		case c.send <- message:
		default:
			h.logger.Warnf("WebSocket send buffer full, dropping summary %s", summary.BulletinID)
		}
	}
}

// writePump writes queued messages and keepalive pings until the send queue
// is closed or a write fails.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Errorf("Failed to send WebSocket message: %v", err)
				h.RemoveConnection(c.conn)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.RemoveConnection(c.conn)
				return
			}
		}
	}
}

// ServeWS upgrades the request and keeps the connection registered until the
// peer goes away. Incoming messages are ignored.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	if !h.AddConnection(conn) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many connections"))
		_ = conn.Close()
		return
	}

	go func() {
		defer h.RemoveConnection(conn)
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Close disconnects every dashboard.
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn, c := range h.clients {
		delete(h.clients, conn)
		close(c.send)
	}
}
