package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pscheid92/starpush/internal/adapter/memory"
	"github.com/pscheid92/starpush/internal/domain"
)

type sentMessage struct {
	UserID  string
	Payload any
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	online map[string]bool
	sent   []sentMessage
	toAll  []any
}

func newFakeBroadcaster(online ...string) *fakeBroadcaster {
	b := &fakeBroadcaster{online: make(map[string]bool)}
	for _, id := range online {
		b.online[id] = true
	}
	return b
}

func (b *fakeBroadcaster) SendToUser(_ context.Context, userID string, payload any) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.online[userID] {
		return false
	}
	b.sent = append(b.sent, sentMessage{UserID: userID, Payload: payload})
	return true
}

func (b *fakeBroadcaster) SendToAll(_ context.Context, payload any) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toAll = append(b.toAll, payload)
	return len(b.online)
}

func (b *fakeBroadcaster) UserIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.online))
	for id := range b.online {
		ids = append(ids, id)
	}
	return ids
}

func (b *fakeBroadcaster) messages() []sentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sentMessage(nil), b.sent...)
}

type fakeRelay struct {
	mu        sync.Mutex
	published []sentMessage
	err       error
}

func (r *fakeRelay) Publish(_ context.Context, userID string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.published = append(r.published, sentMessage{UserID: userID, Payload: payload})
	return nil
}

var errStoreDown = errors.New("store down")

// flakyRepo wraps the in-memory repository and fails reads while failing is set. With
// gate set, ListRecent reads, signals entered, then holds its result until gate closes.
type flakyRepo struct {
	*memory.NotificationRepo
	failing atomic.Bool
	reads   atomic.Int32
	gate    chan struct{}
	entered chan struct{}
}

func newFlakyRepo() *flakyRepo {
	return &flakyRepo{NotificationRepo: memory.NewNotificationRepo()}
}

func (r *flakyRepo) Create(ctx context.Context, n *domain.Notification) error {
	if r.failing.Load() {
		return errStoreDown
	}
	return r.NotificationRepo.Create(ctx, n)
}

func (r *flakyRepo) ListRecent(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	r.reads.Add(1)
	if r.failing.Load() {
		return nil, errStoreDown
	}
	list, err := r.NotificationRepo.ListRecent(ctx, userID, limit)
	if r.gate != nil {
		select {
		case r.entered <- struct{}{}:
		default:
		}
		<-r.gate
	}
	return list, err
}

func (r *flakyRepo) ListRecentAll(ctx context.Context, limit int) ([]domain.Notification, error) {
	r.reads.Add(1)
	if r.failing.Load() {
		return nil, errStoreDown
	}
	return r.NotificationRepo.ListRecentAll(ctx, limit)
}

func (r *flakyRepo) MarkRead(ctx context.Context, userID string, id uuid.UUID) error {
	return r.NotificationRepo.MarkRead(ctx, userID, id)
}
