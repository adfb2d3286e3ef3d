package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	apimiddleware "github.com/phrazzld/taskstate/internal/api/middleware"
	"github.com/phrazzld/taskstate/internal/api/shared"
	"github.com/phrazzld/taskstate/internal/notifier"
	"github.com/phrazzld/taskstate/internal/platform/logger"
	"github.com/phrazzld/taskstate/internal/registry"
)

// readLimit bounds inbound frame size; watch requests are tiny.
const readLimit = 64 * 1024

// Handler serves the two subscriber endpoints: the status-watch socket
// and the seen-mark socket. Both require an authenticated user who owns
// at least one task; connections failing either check are closed before
// any frame is processed.
type Handler struct {
	upgrader websocket.Upgrader
	registry *registry.Registry
	hub      *Hub
	logger   *slog.Logger
}

// NewHandler creates a Handler wired to the given registry and hub.
func NewHandler(reg *registry.Registry, hub *Hub, logger *slog.Logger) *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		registry: reg,
		hub:      hub,
		logger:   logger.With("component", "ws_handler"),
	}
}

// WatchStatus handles GET /ws/get-task-status. Each inbound frame
// replaces the connection's watch set and receives an immediate snapshot
// in response; subsequent pushes arrive through the hub as watched jobs
// change.
func (h *Handler) WatchStatus(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.handleWatchFrame)
}

// MarkSeen handles GET /ws/set-task-seen. Each inbound frame marks the
// listed complete jobs as seen; no response payload is sent.
func (h *Handler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.handleSeenFrame)
}

// frameHandler processes one inbound frame. A returned error closes the
// connection.
type frameHandler func(r *http.Request, connectionID uuid.UUID, data []byte) error

// serve runs the shared connection lifecycle: authenticate, upgrade,
// register, loop over inbound frames, and tear everything down when the
// connection ends for any reason.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, handle frameHandler) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := apimiddleware.GetUserID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response.
		log.Debug("websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(readLimit)

	connectionID := uuid.New()

	if err := h.registry.Open(r.Context(), connectionID, userID); err != nil {
		if errors.Is(err, registry.ErrNoTasks) {
			log.Debug("rejecting connection: owner has no tasks", "owner_id", userID)
		} else {
			log.Warn("failed to open subscription", "owner_id", userID, "error", err)
		}
		h.reject(conn)
		return
	}

	h.hub.Register(connectionID, conn)
	defer func() {
		// Best-effort teardown; a crash between these leaves a stale
		// registry entry, which is tolerated.
		h.registry.Close(connectionID)
		_ = h.hub.Close(connectionID)
	}()

	log.Debug("subscriber connected",
		"connection_id", connectionID,
		"owner_id", userID,
		"path", r.URL.Path)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("subscriber read failed", "connection_id", connectionID, "error", err)
			}
			return
		}

		if err := handle(r, connectionID, data); err != nil {
			log.Debug("closing connection after protocol error",
				"connection_id", connectionID,
				"error", err)
			return
		}
	}
}

// handleWatchFrame replaces the watch set and sends the race-closing
// synchronous snapshot back on the same connection.
func (h *Handler) handleWatchFrame(r *http.Request, connectionID uuid.UUID, data []byte) error {
	jobIDs, err := ParsePKListFrame(data)
	if err != nil {
		return err
	}

	records, err := h.registry.SetWatch(r.Context(), connectionID, jobIDs)
	if err != nil {
		return err
	}

	payload, err := notifier.NewTasksFrame(records).Encode()
	if err != nil {
		return err
	}
	return h.hub.Send(connectionID, payload)
}

// handleSeenFrame marks the listed jobs seen. Incomplete jobs are
// filtered out by the store, not treated as protocol errors.
func (h *Handler) handleSeenFrame(r *http.Request, connectionID uuid.UUID, data []byte) error {
	jobIDs, err := ParsePKListFrame(data)
	if err != nil {
		return err
	}

	_, err = h.registry.MarkSeenRequest(r.Context(), connectionID, jobIDs)
	return err
}

// reject closes a just-upgraded connection that failed the registry's
// admission check.
func (h *Handler) reject(conn *websocket.Conn) {
	deadline := time.Now().Add(time.Second)
	closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "no tasks")
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, deadline)
	_ = conn.Close()
}
