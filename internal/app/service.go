package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/starpush/internal/cache"
	"github.com/pscheid92/starpush/internal/domain"
	"github.com/pscheid92/starpush/internal/metrics"
)

const (
	// RecentKey caches the newest notifications across all users.
	RecentKey = "notifications:recent"

	listLimit   = 50
	listTTL     = 5 * time.Minute
	maxTitleLen = 200
	maxBodyLen  = 2000

	announcementType = "system_announcement"
)

// UserKey is the cache key of one user's recent notifications.
func UserKey(userID string) string {
	return "notifications:user:" + userID
}

type CreateRequest struct {
	UserID   string          `json:"user_id"`
	Type     string          `json:"type"`
	Title    string          `json:"title"`
	Message  string          `json:"message"`
	EntityID string          `json:"entity_id,omitempty"`
	ActorID  string          `json:"actor_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type BroadcastRequest struct {
	Type    string          `json:"type,omitempty"`
	Title   string          `json:"title"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NotificationService persists notifications and pushes them to connected users.
// Persistence comes first: real-time delivery is best-effort and clients recover
// anything missed from ListRecent.
type NotificationService struct {
	repo        domain.NotificationRepository
	cache       *cache.TTLCache
	broadcaster domain.Broadcaster
	relay       domain.Relay
	dedup       *Deduplicator
	limiter     *Limiter
	clock       clockwork.Clock
	metrics     *metrics.NotificationMetrics
}

// NewNotificationService creates the service. relay may be nil on a single node.
func NewNotificationService(
	repo domain.NotificationRepository,
	c *cache.TTLCache,
	broadcaster domain.Broadcaster,
	relay domain.Relay,
	dedup *Deduplicator,
	limiter *Limiter,
	clock clockwork.Clock,
	m *metrics.NotificationMetrics,
) *NotificationService {
	return &NotificationService{
		repo:        repo,
		cache:       c,
		broadcaster: broadcaster,
		relay:       relay,
		dedup:       dedup,
		limiter:     limiter,
		clock:       clock,
		metrics:     m,
	}
}

// Create stores a notification for one user and pushes it to them if connected.
// Duplicates inside the type's window fail with domain.ErrDuplicateNotification and
// users over their rate fail with domain.ErrRateLimited; neither is persisted.
func (s *NotificationService) Create(ctx context.Context, req CreateRequest) (*domain.Notification, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	if !s.dedup.Reserve(req) {
		s.metrics.RecordSuppressed("duplicate")
		slog.DebugContext(ctx, "Suppressed duplicate notification", "user_id", req.UserID, "type", req.Type)
		return nil, domain.ErrDuplicateNotification
	}
	if !s.limiter.Allow(req.UserID) {
		s.dedup.Release(req)
		s.metrics.RecordSuppressed("rate_limited")
		slog.WarnContext(ctx, "Notification rate limit exceeded", "user_id", req.UserID, "type", req.Type)
		return nil, domain.ErrRateLimited
	}

	n := &domain.Notification{
		ID:        uuid.New(),
		UserID:    req.UserID,
		Type:      req.Type,
		Title:     req.Title,
		Message:   req.Message,
		EntityID:  req.EntityID,
		ActorID:   req.ActorID,
		Data:      req.Data,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		s.dedup.Release(req)
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}
	s.metrics.RecordCreated(n.Type)

	s.cache.Delete(UserKey(n.UserID))
	s.cache.Delete(RecentKey)

	delivered := s.broadcaster.SendToUser(ctx, n.UserID, n)
	s.metrics.RecordDelivery(delivered)
	s.publish(ctx, n.UserID, n)

	slog.InfoContext(ctx, "Notification created", "notification_id", n.ID, "user_id", n.UserID, "type", n.Type, "delivered", delivered)
	return n, nil
}

// Broadcast pushes an announcement to every connected user without persisting it.
// Returns the number of local recipients.
func (s *NotificationService) Broadcast(ctx context.Context, req BroadcastRequest) (*domain.Notification, int, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, 0, fmt.Errorf("%w: title is required", domain.ErrInvalidNotification)
	}
	if len(req.Title) > maxTitleLen || len(req.Message) > maxBodyLen {
		return nil, 0, fmt.Errorf("%w: title or message too long", domain.ErrInvalidNotification)
	}
	if req.Type == "" {
		req.Type = announcementType
	}

	n := &domain.Notification{
		ID:        uuid.New(),
		Type:      req.Type,
		Title:     req.Title,
		Message:   req.Message,
		Data:      req.Data,
		CreatedAt: s.clock.Now().UTC(),
	}

	count := s.broadcaster.SendToAll(ctx, n)
	s.publish(ctx, "", n)

	slog.InfoContext(ctx, "Announcement broadcast", "notification_id", n.ID, "recipients", count)
	return n, count, nil
}

// ListRecent returns a user's newest notifications, served from the cache when fresh.
func (s *NotificationService) ListRecent(ctx context.Context, userID string) ([]domain.Notification, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrInvalidNotification)
	}
	list, err := cache.Wrap(ctx, s.cache, UserKey(userID), listTTL, func(ctx context.Context) ([]domain.Notification, error) {
		return s.repo.ListRecent(ctx, userID, listLimit)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return list, nil
}

// ListRecentAll returns the newest notifications across users.
func (s *NotificationService) ListRecentAll(ctx context.Context) ([]domain.Notification, error) {
	list, err := cache.Wrap(ctx, s.cache, RecentKey, listTTL, func(ctx context.Context) ([]domain.Notification, error) {
		return s.repo.ListRecentAll(ctx, listLimit)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list recent notifications: %w", err)
	}
	return list, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID string, id uuid.UUID) error {
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", domain.ErrInvalidNotification)
	}
	if err := s.repo.MarkRead(ctx, userID, id); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	s.cache.Delete(UserKey(userID))
	s.cache.Delete(RecentKey)
	return nil
}

// publish forwards n to other nodes. Failures only cost remote real-time delivery.
func (s *NotificationService) publish(ctx context.Context, userID string, n *domain.Notification) {
	if s.relay == nil {
		return
	}
	if err := s.relay.Publish(ctx, userID, n); err != nil {
		slog.WarnContext(ctx, "Failed to relay notification", "notification_id", n.ID, "user_id", userID, "error", err)
	}
}

func validateCreate(req CreateRequest) error {
	switch {
	case strings.TrimSpace(req.UserID) == "":
		return fmt.Errorf("%w: user_id is required", domain.ErrInvalidNotification)
	case strings.TrimSpace(req.Type) == "":
		return fmt.Errorf("%w: type is required", domain.ErrInvalidNotification)
	case strings.TrimSpace(req.Title) == "":
		return fmt.Errorf("%w: title is required", domain.ErrInvalidNotification)
	case len(req.Title) > maxTitleLen:
		return fmt.Errorf("%w: title exceeds %d bytes", domain.ErrInvalidNotification, maxTitleLen)
	case len(req.Message) > maxBodyLen:
		return fmt.Errorf("%w: message exceeds %d bytes", domain.ErrInvalidNotification, maxBodyLen)
	case len(req.Data) > 0 && !json.Valid(req.Data):
		return fmt.Errorf("%w: data is not valid JSON", domain.ErrInvalidNotification)
	}
	return nil
}
