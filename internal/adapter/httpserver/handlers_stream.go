package httpserver

import (
	"context"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/starpush/internal/domain"
	"github.com/pscheid92/starpush/internal/notify"
	apperrors "github.com/pscheid92/starpush/internal/platform/errors"
)

const wsReadLimit = 512

type liveStream interface {
	domain.Stream
	Done() <-chan struct{}
}

type connectionData struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

func (s *Server) registerStreamRoutes() {
	s.echo.GET("/notifications/stream", s.handleSSE)
	s.echo.GET("/notifications/ws", s.handleWebSocket)
}

func (s *Server) handleSSE(c echo.Context) error {
	userID, release, err := s.admitStream(c)
	if err != nil {
		return err
	}
	defer release()

	stream, err := notify.NewSSEStream(c.Response())
	if err != nil {
		return apperrors.InternalError("failed to open event stream", err)
	}

	s.serveStream(c.Request().Context(), userID, "sse", stream, nil)
	return nil
}

func (s *Server) handleWebSocket(c echo.Context) error {
	userID, release, err := s.admitStream(c)
	if err != nil {
		return err
	}
	defer release()

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader already wrote the handshake error.
		slog.DebugContext(c.Request().Context(), "WebSocket upgrade failed", "user_id", userID, "error", err)
		return nil
	}
	conn.SetReadLimit(wsReadLimit)
	stream := notify.NewWSStream(conn)

	// Clients never send data; reading only processes control frames and notices
	// the peer going away.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.serveStream(c.Request().Context(), userID, "ws", stream, readerDone)
	return nil
}

// admitStream validates the user and reserves a connection slot. The returned release
// func must be called once the stream ends.
func (s *Server) admitStream(c echo.Context) (string, func(), error) {
	userID := strings.TrimSpace(c.QueryParam("user_id"))
	if userID == "" {
		return "", nil, apperrors.ValidationError("user_id is required")
	}

	ip := c.RealIP()
	ok, reason := s.limits.Acquire(ip)
	if !ok {
		s.metrics.Stream.Reject(string(reason))
		if reason == LimitRate {
			return "", nil, apperrors.RateLimitedError("too many stream connections").WithField("reason", string(reason))
		}
		return "", nil, apperrors.UnavailableError("stream capacity reached").WithField("reason", string(reason))
	}
	return userID, func() { s.limits.Release(ip) }, nil
}

// serveStream registers stream for userID and blocks until the client disconnects, the
// stream is closed by the server, or gone fires.
func (s *Server) serveStream(ctx context.Context, userID, transport string, stream liveStream, gone <-chan struct{}) {
	if prev := s.registry.Register(userID, stream); prev != nil {
		_ = prev.Close()
	}
	defer func() {
		s.registry.UnregisterStream(userID, stream)
		_ = stream.Close()
		slog.InfoContext(ctx, "Stream disconnected", "user_id", userID, "transport", transport)
	}()

	slog.InfoContext(ctx, "Stream connected", "user_id", userID, "transport", transport)
	s.broadcaster.SendEvent(ctx, userID, domain.Event{
		Type:      domain.EventConnection,
		Data:      connectionData{UserID: userID, Status: "connected"},
		Timestamp: s.clock.Now(),
	})

	select {
	case <-ctx.Done():
	case <-stream.Done():
	case <-gone:
	}
}
