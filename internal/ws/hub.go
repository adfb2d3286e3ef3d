package ws

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// defaultWriteTimeout bounds how long one slow client can hold its own
// write; it never blocks writes to other connections, which each have
// their own lock.
const defaultWriteTimeout = 10 * time.Second

// wsConn pairs a websocket connection with a write lock. gorilla/websocket
// allows at most one concurrent writer per connection.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Hub is the connection table for live subscriber connections. It
// implements the notifier's Transport: Send and Close address
// connections by ID so the notifier never touches a raw socket.
type Hub struct {
	mu           sync.RWMutex
	conns        map[uuid.UUID]*wsConn
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		conns:        make(map[uuid.UUID]*wsConn),
		writeTimeout: defaultWriteTimeout,
		logger:       logger.With("component", "ws_hub"),
	}
}

// Register adds a connection to the table under the given ID.
func (h *Hub) Register(connectionID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[connectionID] = &wsConn{conn: conn}
}

// Send writes a text frame to the given connection. Returns an error for
// unknown connections or transport failures; the caller decides whether
// that warrants cleanup.
func (h *Hub) Send(connectionID uuid.UUID, payload []byte) error {
	h.mu.RLock()
	wc, ok := h.conns[connectionID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection %s is not registered", connectionID)
	}

	wc.writeMu.Lock()
	defer wc.writeMu.Unlock()

	if err := wc.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := wc.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Close sends a close control frame, closes the underlying connection,
// and removes it from the table. Idempotent.
func (h *Hub) Close(connectionID uuid.UUID) error {
	h.mu.Lock()
	wc, ok := h.conns[connectionID]
	delete(h.conns, connectionID)
	h.mu.Unlock()
	if !ok {
		return nil
	}

	wc.writeMu.Lock()
	defer wc.writeMu.Unlock()

	deadline := time.Now().Add(h.writeTimeout)
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := wc.conn.WriteControl(websocket.CloseMessage, closeMsg, deadline); err != nil {
		h.logger.Debug("failed to write close frame", "connection_id", connectionID, "error", err)
	}
	return wc.conn.Close()
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
