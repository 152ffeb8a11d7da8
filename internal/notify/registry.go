package notify

import (
	"sort"
	"sync"

	"github.com/pscheid92/starpush/internal/domain"
	"github.com/pscheid92/starpush/internal/metrics"
)

// Registry maps a user ID to that user's single open stream. A later Register for the
// same user replaces the earlier stream (last write wins).
type Registry struct {
	mu      sync.RWMutex
	streams map[string]domain.Stream
	metrics *metrics.StreamMetrics
}

func NewRegistry(m *metrics.StreamMetrics) *Registry {
	return &Registry{
		streams: make(map[string]domain.Stream),
		metrics: m,
	}
}

// Register stores s for userID and returns the stream it displaced, if any. Closing the
// displaced stream is left to the caller.
func (r *Registry) Register(userID string, s domain.Stream) domain.Stream {
	r.mu.Lock()
	prev := r.streams[userID]
	r.streams[userID] = s
	n := len(r.streams)
	r.mu.Unlock()

	r.metrics.SetActive(n)
	if prev == s {
		return nil
	}
	return prev
}

// Unregister removes the entry for userID. Unknown users are a no-op.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	delete(r.streams, userID)
	n := len(r.streams)
	r.mu.Unlock()

	r.metrics.SetActive(n)
}

// UnregisterStream removes the entry only while s is still the registered stream, so the
// teardown of a replaced connection does not evict its successor. Reports whether it
// removed anything.
func (r *Registry) UnregisterStream(userID string, s domain.Stream) bool {
	r.mu.Lock()
	cur, ok := r.streams[userID]
	if !ok || cur != s {
		r.mu.Unlock()
		return false
	}
	delete(r.streams, userID)
	n := len(r.streams)
	r.mu.Unlock()

	r.metrics.SetActive(n)
	return true
}

func (r *Registry) Get(userID string) (domain.Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[userID]
	return s, ok
}

// UserIDs returns a sorted snapshot of the registered user IDs.
func (r *Registry) UserIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.streams))
	for id := range r.streams {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// CloseAll closes and removes every registered stream. Used on shutdown.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	streams := r.streams
	r.streams = make(map[string]domain.Stream)
	r.mu.Unlock()

	for _, s := range streams {
		_ = s.Close()
	}
	r.metrics.SetActive(0)
	return len(streams)
}
