package domain

import (
	"context"
	"time"
)

// EventType is the "type" field of a pushed event.
type EventType string

const (
	EventConnection   EventType = "connection"
	EventNotification EventType = "notification"
	EventHeartbeat    EventType = "heartbeat"
)

// Event is one frame pushed to a connected client.
type Event struct {
	Type      EventType
	Data      any
	Timestamp time.Time
}

// Stream is the outbound side of one client connection. Send receives the JSON
// encoding of an Event; the stream applies its own transport framing.
// Implementations must be safe for concurrent use and must be comparable
// (pointer types), since registries compare streams by identity.
type Stream interface {
	Send(event []byte) error
	Close() error
}

// Broadcaster pushes payloads to connected users. Delivery is best-effort.
type Broadcaster interface {
	SendToUser(ctx context.Context, userID string, payload any) bool
	SendToAll(ctx context.Context, payload any) int
}

// Relay forwards a payload to other nodes. An empty userID addresses everyone.
type Relay interface {
	Publish(ctx context.Context, userID string, payload any) error
}
