package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/starpush/internal/domain"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsCloseTimeout = time.Second
)

// WSStream carries the same event bodies as SSEStream over a WebSocket, one text
// message per event.
type WSStream struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	done   chan struct{}
}

func NewWSStream(conn *websocket.Conn) *WSStream {
	return &WSStream{conn: conn, done: make(chan struct{})}
}

func (s *WSStream) Send(event []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrStreamClosed
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, event); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close sends a best-effort close frame and closes the connection. Safe to call more
// than once.
func (s *WSStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseTimeout))
	return s.conn.Close()
}

func (s *WSStream) Done() <-chan struct{} {
	return s.done
}
