// Package memory provides process-local repository implementations, used when no
// database is configured and in tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/pscheid92/starpush/internal/domain"
)

// NotificationRepo keeps notifications in insertion order in memory.
type NotificationRepo struct {
	mu    sync.RWMutex
	items []domain.Notification
}

func NewNotificationRepo() *NotificationRepo {
	return &NotificationRepo{}
}

func (r *NotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, *n)
	return nil
}

// ListRecent returns userID's notifications, newest first.
func (r *NotificationRepo) ListRecent(_ context.Context, userID string, limit int) ([]domain.Notification, error) {
	return r.newest(limit, func(n *domain.Notification) bool { return n.UserID == userID }), nil
}

func (r *NotificationRepo) ListRecentAll(_ context.Context, limit int) ([]domain.Notification, error) {
	return r.newest(limit, func(*domain.Notification) bool { return true }), nil
}

func (r *NotificationRepo) MarkRead(_ context.Context, userID string, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.items {
		if r.items[i].ID == id && r.items[i].UserID == userID {
			r.items[i].IsRead = true
			return nil
		}
	}
	return domain.ErrNotificationNotFound
}

func (r *NotificationRepo) Ping(context.Context) error {
	return nil
}

func (r *NotificationRepo) newest(limit int, keep func(*domain.Notification) bool) []domain.Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Notification, 0, min(limit, len(r.items)))
	for i := len(r.items) - 1; i >= 0 && len(out) < limit; i-- {
		if keep(&r.items[i]) {
			out = append(out, r.items[i])
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}
