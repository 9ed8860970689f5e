package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"gotrip-be/internal/container"
	"gotrip-be/internal/middleware"
	"gotrip-be/internal/realtime"
	apperrors "gotrip-be/pkg/errors"
)

const (
	streamWriteWait   = 10 * time.Second
	streamPingPeriod  = 30 * time.Second
	streamReadTimeout = 60 * time.Second

	// Clients only send control frames on this socket, votes go over HTTP
	streamReadLimit = 512
)

// StreamHandler streams approval status snapshots over WebSocket
type StreamHandler struct {
	container *container.Container
	upgrader  websocket.Upgrader
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(c *container.Container) *StreamHandler {
	allowedOrigins := make(map[string]bool)
	for _, origin := range c.GetConfig().AllowedOrigins {
		allowedOrigins[origin] = true
	}

	return &StreamHandler{
		container: c,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Non-browser clients send no Origin header
					return true
				}
				if len(allowedOrigins) == 0 || allowedOrigins["*"] {
					return true
				}
				return allowedOrigins[origin]
			},
		},
	}
}

// Stream handles GET /api/groups/{groupID}/approval/stream. The client
// receives the current snapshot on connect and a fresh one whenever the
// group's approval status changes.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, logger, apperrors.NewAuthenticationError("User not authenticated"))
		return
	}

	groupID := chi.URLParam(r, "groupID")
	if groupID == "" {
		writeError(w, logger, apperrors.NewValidationError("Group ID is required", nil))
		return
	}

	// Gate membership while this is still a plain HTTP request
	if _, err := h.container.GetServices().Group.GetGroup(r.Context(), groupID, user.Sub); err != nil {
		writeServiceError(w, logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response
		logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	sub, err := h.container.GetFeed().Subscribe(r.Context(), groupID)
	if err != nil {
		logger.WithError(err).Error("Failed to subscribe to approval feed")
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"),
			time.Now().Add(streamWriteWait))
		conn.Close()
		return
	}

	logger.WithFields(map[string]interface{}{
		"group_id": groupID,
		"user_id":  user.Sub,
	}).Info("Approval stream opened")

	done := make(chan struct{})
	go readLoop(conn, done)
	writeLoop(conn, sub, done)

	h.container.GetFeed().Unsubscribe(sub)
	conn.Close()

	logger.WithFields(map[string]interface{}{
		"group_id": groupID,
		"user_id":  user.Sub,
	}).Debug("Approval stream closed")
}

// readLoop consumes the connection until the client goes away. Inbound
// frames carry nothing of interest, reading is only for pong and close
// detection.
func readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	conn.SetReadLimit(streamReadLimit)
	conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop forwards snapshot payloads and keeps the connection alive with
// pings
func writeLoop(conn *websocket.Conn, sub *realtime.Subscriber, done chan struct{}) {
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case payload, ok := <-sub.Events():
			if !ok {
				// Dropped as a slow consumer or the feed shut down
				conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"),
					time.Now().Add(streamWriteWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
