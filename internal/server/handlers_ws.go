package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ParashDev/sprintor-sub000/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Guests join via shared links from any origin
	},
}

// handleWebSocket attaches a client to a session's snapshot stream. The
// connection is write-only from the server's perspective: clients mutate
// state through the REST API and receive the resulting snapshots here.
func (s *Server) handleWebSocket(c echo.Context) error {
	sessionID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	ip := c.RealIP()
	allowed, reason := s.connLimits.Acquire(ip)
	if !allowed {
		metrics.WebSocketConnectionsRejected.WithLabelValues(string(reason)).Inc()
		metrics.WebSocketConnectionsTotal.WithLabelValues("rejected").Inc()
		if reason == LimitReasonRate {
			return c.String(429, "Too many connection attempts")
		}
		return c.String(503, "Connection limit reached")
	}

	exists, err := s.app.SessionExists(c.Request().Context(), sessionID)
	if err != nil {
		s.connLimits.Release(ip)
		metrics.WebSocketConnectionsTotal.WithLabelValues("error").Inc()
		return c.String(500, "Internal error")
	}
	if !exists {
		s.connLimits.Release(ip)
		return c.String(404, "Session not found")
	}

	snapshot, err := s.app.GetSnapshot(c.Request().Context(), sessionID)
	if err != nil {
		s.connLimits.Release(ip)
		metrics.WebSocketConnectionsTotal.WithLabelValues("error").Inc()
		return c.String(500, "Internal error")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.connLimits.Release(ip)
		metrics.WebSocketConnectionsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	// Initial snapshot goes out before the writer goroutine exists, so
	// writing on the raw conn here is safe.
	if err := conn.WriteJSON(snapshot); err != nil {
		s.connLimits.Release(ip)
		conn.Close()
		metrics.WebSocketConnectionsTotal.WithLabelValues("error").Inc()
		return nil
	}

	if err := s.broadcaster.Register(sessionID, conn); err != nil {
		slog.Warn("Failed to register with broadcaster", "session_id", sessionID.String(), "error", err)
		s.connLimits.Release(ip)
		metrics.WebSocketConnectionsTotal.WithLabelValues("rejected").Inc()
		return nil
	}

	metrics.WebSocketConnectionsTotal.WithLabelValues("success").Inc()
	metrics.WebSocketConnectionsCurrent.Inc()

	// Read pump blocks until the connection closes. Inbound frames are
	// ignored apart from keeping the pong handler fed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.broadcaster.Unregister(sessionID, conn)
	s.connLimits.Release(ip)
	metrics.WebSocketConnectionsCurrent.Dec()

	return nil //nolint:nilerr // ReadMessage err is block-scoped; outer err is nil
}
