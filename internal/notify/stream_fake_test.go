package notify

import (
	"errors"
	"sync"

	"github.com/pscheid92/starpush/internal/domain"
)

var errBrokenPipe = errors.New("broken pipe")

// fakeStream records every event body it receives. Setting fail makes Send return
// errBrokenPipe; setting panics makes it panic.
type fakeStream struct {
	mu     sync.Mutex
	events [][]byte
	fail   bool
	panics bool
	closed bool
}

func (f *fakeStream) Send(event []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.panics {
		panic("writer exploded")
	}
	if f.closed {
		return domain.ErrStreamClosed
	}
	if f.fail {
		return errBrokenPipe
	}
	f.events = append(f.events, append([]byte(nil), event...))
	return nil
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeStream) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = string(e)
	}
	return out
}

func (f *fakeStream) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
