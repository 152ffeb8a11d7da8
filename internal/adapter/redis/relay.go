package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pscheid92/starpush/internal/domain"
	"github.com/pscheid92/starpush/internal/platform/correlation"
	goredis "github.com/redis/go-redis/v9"
)

const relayChannel = "notifications:relay"

type relayMessage struct {
	Origin        string          `json:"origin"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	UserID        string          `json:"user_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Relay forwards notifications between nodes. Each node delivers what it publishes
// itself; Start hands messages from other nodes to the local broadcaster.
type Relay struct {
	rdb    *goredis.Client
	local  domain.Broadcaster
	origin string
}

func NewRelay(rdb *goredis.Client, local domain.Broadcaster) *Relay {
	return &Relay{rdb: rdb, local: local, origin: uuid.NewString()}
}

// Publish sends payload to the other nodes. An empty userID addresses every user. The
// caller's correlation ID travels along so receiving nodes log under the same ID.
func (r *Relay) Publish(ctx context.Context, userID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode relay payload: %w", err)
	}
	corrID, _ := correlation.ID(ctx)
	msg, err := json.Marshal(relayMessage{Origin: r.origin, CorrelationID: corrID, UserID: userID, Payload: body})
	if err != nil {
		return fmt.Errorf("failed to encode relay message: %w", err)
	}

	if err := r.rdb.Publish(ctx, relayChannel, msg).Err(); err != nil {
		return fmt.Errorf("failed to publish relay message: %w", err)
	}
	return nil
}

// Start subscribes and delivers relayed messages until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) {
	pubsub := r.rdb.Subscribe(ctx, relayChannel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		slog.Error("Failed to subscribe to relay channel", "channel", relayChannel, "error", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case msg := <-ch:
			if msg == nil {
				return
			}
			r.handleMessage(ctx, msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Relay) handleMessage(ctx context.Context, raw string) {
	var msg relayMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		slog.Warn("Malformed relay message", "error", err)
		return
	}
	if msg.Origin == r.origin {
		return
	}

	ctx, _ = correlation.Adopt(ctx, correlation.OriginRelay, msg.CorrelationID)
	if isEmptyPayload(msg.Payload) {
		slog.WarnContext(ctx, "Empty relay payload", "node", msg.Origin)
		return
	}

	if msg.UserID == "" {
		n := r.local.SendToAll(ctx, msg.Payload)
		slog.DebugContext(ctx, "Relayed broadcast delivered", "node", msg.Origin, "recipients", n)
		return
	}
	delivered := r.local.SendToUser(ctx, msg.UserID, msg.Payload)
	slog.DebugContext(ctx, "Relayed notification handled", "node", msg.Origin, "user_id", msg.UserID, "delivered", delivered)
}

// isEmptyPayload reports a missing payload. A nil json.RawMessage marshals as null, so
// that counts as missing too.
func isEmptyPayload(p json.RawMessage) bool {
	p = bytes.TrimSpace(p)
	return len(p) == 0 || bytes.Equal(p, []byte("null"))
}
