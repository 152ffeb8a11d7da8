package notify

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pscheid92/starpush/internal/domain"
)

const sseWriteTimeout = 10 * time.Second

// SSEStream writes Server-Sent-Events frames to an HTTP response. Writes are serialized,
// so events sent to the same user keep their call order.
type SSEStream struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	rc     *http.ResponseController
	closed bool
	done   chan struct{}
}

// NewSSEStream sets the event-stream headers on w and flushes them so the client sees
// the stream open before the first event.
func NewSSEStream(w http.ResponseWriter) (*SSEStream, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("response does not support flushing: %w", err)
	}

	return &SSEStream{w: w, rc: rc, done: make(chan struct{})}, nil
}

func (s *SSEStream) Send(event []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrStreamClosed
	}

	// Deadline support depends on the underlying connection; recorders lack it.
	if err := s.rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := s.w.Write(SSEFrame(event)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("flush frame: %w", err)
	}
	return nil
}

// Close marks the stream closed and releases the handler blocked on Done. The response
// itself ends when the handler returns. Safe to call more than once.
func (s *SSEStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// Done is closed once the stream has been closed by the server side.
func (s *SSEStream) Done() <-chan struct{} {
	return s.done
}
