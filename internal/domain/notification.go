package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification is a message addressed to one user, or to everyone when UserID is empty.
type Notification struct {
	ID        uuid.UUID       `json:"id"`
	UserID    string          `json:"user_id,omitempty"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	EntityID  string          `json:"entity_id,omitempty"`
	ActorID   string          `json:"actor_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	IsRead    bool            `json:"is_read"`
	CreatedAt time.Time       `json:"created_at"`
}

// NotificationRepository is the durable store notifications are persisted to before
// real-time delivery. Pull-based retrieval reads from here.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListRecent(ctx context.Context, userID string, limit int) ([]Notification, error)
	ListRecentAll(ctx context.Context, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, userID string, id uuid.UUID) error
	Ping(ctx context.Context) error
}
