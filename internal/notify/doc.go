// Package notify holds the per-process connection registry and the broadcaster that
// pushes events to registered streams.
//
// Delivery is best-effort and at-most-once per connected user. A stream whose write
// fails is evicted and closed; the caller never sees the error. Missed events are
// recovered by clients through pull-based retrieval from durable storage.
package notify
