// Package correlation scopes work to an ID and the origin that started it: an HTTP
// request, a sync tick or a message relayed from another node. The slog handler stamps
// both onto every record logged with that context.
package correlation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Header is the HTTP header an inbound correlation ID is read from and echoed back on.
const Header = "X-Request-ID"

type Origin string

const (
	OriginHTTP  Origin = "http"
	OriginSync  Origin = "sync"
	OriginRelay Origin = "relay"
)

const (
	idLength         = 12
	maxInboundLength = 64
)

type scope struct {
	id     string
	origin Origin
}

type contextKey struct{}

// NewID returns a 12-character hex ID cut from a random UUID.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:idLength]
}

// Start opens a fresh scope for work begun by origin.
func Start(ctx context.Context, origin Origin) (context.Context, string) {
	id := NewID()
	return context.WithValue(ctx, contextKey{}, scope{id: id, origin: origin}), id
}

// Adopt continues the scope another party started when inbound is a usable ID, and
// opens a fresh one otherwise. Inbound IDs come from clients or other nodes, so only
// short values made of letters, digits, '-', '_' and '.' are kept.
func Adopt(ctx context.Context, origin Origin, inbound string) (context.Context, string) {
	if !valid(inbound) {
		return Start(ctx, origin)
	}
	return context.WithValue(ctx, contextKey{}, scope{id: inbound, origin: origin}), inbound
}

func valid(id string) bool {
	if id == "" || len(id) > maxInboundLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// ID returns the correlation ID carried by ctx.
func ID(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(contextKey{}).(scope)
	return s.id, ok
}

// OriginOf returns what started the scope carried by ctx.
func OriginOf(ctx context.Context) (Origin, bool) {
	s, ok := ctx.Value(contextKey{}).(scope)
	return s.origin, ok
}

// Handler wraps a slog.Handler and adds "correlation_id" and "origin" when the
// context carries a scope.
type Handler struct {
	inner slog.Handler
}

func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if s, ok := ctx.Value(contextKey{}).(scope); ok {
		r.AddAttrs(slog.String("correlation_id", s.id), slog.String("origin", string(s.origin)))
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}
