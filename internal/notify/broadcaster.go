package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/starpush/internal/domain"
	"github.com/pscheid92/starpush/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentWrites caps the goroutines a single SendToAll runs at once.
const maxConcurrentWrites = 64

// Broadcaster writes events to streams held in a Registry.
type Broadcaster struct {
	registry *Registry
	clock    clockwork.Clock
	metrics  *metrics.StreamMetrics

	writes   atomic.Uint64
	failures atomic.Uint64
}

// DeliveryStats counts frame writes attempted and writes that failed since start.
type DeliveryStats struct {
	Writes   uint64 `json:"writes"`
	Failures uint64 `json:"failures"`
}

func (b *Broadcaster) DeliveryStats() DeliveryStats {
	return DeliveryStats{Writes: b.writes.Load(), Failures: b.failures.Load()}
}

func NewBroadcaster(registry *Registry, clock clockwork.Clock, m *metrics.StreamMetrics) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		clock:    clock,
		metrics:  m,
	}
}

// SendToUser pushes payload as a notification event to userID's stream. It reports
// whether a frame was written; an offline user or a failed write yields false.
func (b *Broadcaster) SendToUser(ctx context.Context, userID string, payload any) bool {
	return b.SendEvent(ctx, userID, newEvent(domain.EventNotification, payload, b.clock.Now()))
}

// SendEvent pushes an arbitrary event to userID's stream.
func (b *Broadcaster) SendEvent(ctx context.Context, userID string, e domain.Event) bool {
	s, ok := b.registry.Get(userID)
	if !ok {
		return false
	}

	body, err := EncodeEvent(e)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode event", "user_id", userID, "type", string(e.Type), "error", err)
		return false
	}
	return b.deliver(ctx, userID, s, body, e.Type)
}

// SendToAll pushes payload as a notification event to every registered user and
// returns how many frames were written.
func (b *Broadcaster) SendToAll(ctx context.Context, payload any) int {
	return b.broadcastEvent(ctx, newEvent(domain.EventNotification, payload, b.clock.Now()))
}

// RunHeartbeat sends a heartbeat event to every registered user each interval until ctx
// is done. Heartbeats keep proxies from timing out idle streams and let clients detect
// a dead server.
func (b *Broadcaster) RunHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := b.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			n := b.broadcastEvent(ctx, newEvent(domain.EventHeartbeat, nil, b.clock.Now()))
			slog.DebugContext(ctx, "Heartbeat sent", "count", n)
		}
	}
}

// broadcastEvent encodes e once and writes it to a snapshot of the registered users
// concurrently. Recipients are independent: a failed write only evicts that recipient.
func (b *Broadcaster) broadcastEvent(ctx context.Context, e domain.Event) int {
	ids := b.registry.UserIDs()
	if len(ids) == 0 {
		return 0
	}

	body, err := EncodeEvent(e)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode broadcast event", "type", string(e.Type), "error", err)
		return 0
	}

	delivered := make([]bool, len(ids))
	var g errgroup.Group
	g.SetLimit(maxConcurrentWrites)
	for i, id := range ids {
		g.Go(func() error {
			s, ok := b.registry.Get(id)
			if !ok {
				return nil
			}
			delivered[i] = b.deliver(ctx, id, s, body, e.Type)
			return nil
		})
	}
	_ = g.Wait()

	count := 0
	for _, ok := range delivered {
		if ok {
			count++
		}
	}
	return count
}

// deliver writes body to s. A failing or panicking stream is evicted and closed.
func (b *Broadcaster) deliver(ctx context.Context, userID string, s domain.Stream, body []byte, t domain.EventType) (ok bool) {
	b.writes.Add(1)
	defer func() {
		if r := recover(); r != nil {
			b.evict(ctx, userID, s, fmt.Errorf("stream panicked: %v", r))
			ok = false
		}
	}()

	if err := s.Send(body); err != nil {
		b.evict(ctx, userID, s, err)
		return false
	}
	b.metrics.FrameSent(string(t))
	return true
}

func (b *Broadcaster) evict(ctx context.Context, userID string, s domain.Stream, cause error) {
	b.failures.Add(1)
	b.metrics.WriteFailed()
	if b.registry.UnregisterStream(userID, s) {
		slog.WarnContext(ctx, "Evicted stream after failed write", "user_id", userID, "error", cause)
	}
	_ = s.Close()
}
