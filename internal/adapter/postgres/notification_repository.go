package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/starpush/internal/domain"
)

const notificationColumns = `id, user_id, type, title, message, entity_id, actor_id, data, is_read, created_at`

type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	var data []byte
	if len(n.Data) > 0 {
		data = n.Data
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.EntityID, n.ActorID, data, n.IsRead, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) ListRecent(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	return collect(rows)
}

func (r *NotificationRepo) ListRecentAll(ctx context.Context, limit int) ([]domain.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent notifications: %w", err)
	}
	return collect(rows)
}

// MarkRead flags one of userID's notifications as read. Another user's notification is
// reported as not found.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID string, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func collect(rows pgx.Rows) ([]domain.Notification, error) {
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Notification, error) {
		var n domain.Notification
		var data []byte
		err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.EntityID, &n.ActorID, &data, &n.IsRead, &n.CreatedAt)
		if len(data) > 0 {
			n.Data = data
		}
		n.CreatedAt = n.CreatedAt.UTC()
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan notifications: %w", err)
	}
	return list, nil
}
