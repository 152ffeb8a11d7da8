package httpserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/starpush/internal/app"
	"github.com/pscheid92/starpush/internal/cache"
	"github.com/pscheid92/starpush/internal/domain"
	"github.com/pscheid92/starpush/internal/notify"
	"github.com/pscheid92/starpush/internal/platform/config"
	"github.com/pscheid92/starpush/internal/syncer"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// --- Mock implementations ---

type mockNotificationService struct {
	createFn        func(ctx context.Context, req app.CreateRequest) (*domain.Notification, error)
	broadcastFn     func(ctx context.Context, req app.BroadcastRequest) (*domain.Notification, int, error)
	listRecentFn    func(ctx context.Context, userID string) ([]domain.Notification, error)
	listRecentAllFn func(ctx context.Context) ([]domain.Notification, error)
	markReadFn      func(ctx context.Context, userID string, id uuid.UUID) error
}

func (m *mockNotificationService) Create(ctx context.Context, req app.CreateRequest) (*domain.Notification, error) {
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockNotificationService) Broadcast(ctx context.Context, req app.BroadcastRequest) (*domain.Notification, int, error) {
	if m.broadcastFn != nil {
		return m.broadcastFn(ctx, req)
	}
	return nil, 0, errors.New("not implemented")
}

func (m *mockNotificationService) ListRecent(ctx context.Context, userID string) ([]domain.Notification, error) {
	if m.listRecentFn != nil {
		return m.listRecentFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockNotificationService) ListRecentAll(ctx context.Context) ([]domain.Notification, error) {
	if m.listRecentAllFn != nil {
		return m.listRecentAllFn(ctx)
	}
	return nil, nil
}

func (m *mockNotificationService) MarkRead(ctx context.Context, userID string, id uuid.UUID) error {
	if m.markReadFn != nil {
		return m.markReadFn(ctx, userID, id)
	}
	return nil
}

type mockSyncController struct {
	manualSyncFn func(ctx context.Context) (bool, error)
	status       syncer.Status
}

func (m *mockSyncController) ManualSync(ctx context.Context) (bool, error) {
	if m.manualSyncFn != nil {
		return m.manualSyncFn(ctx)
	}
	return true, nil
}

func (m *mockSyncController) Status() syncer.Status {
	return m.status
}

type mockCacheStatter struct {
	stats cache.Stats
}

func (m *mockCacheStatter) Stats() cache.Stats {
	return m.stats
}

type mockBreaker struct {
	state string
}

func (m *mockBreaker) BreakerState() string {
	return m.state
}

type mockSizer struct {
	n int
}

func (m *mockSizer) Len() int {
	return m.n
}

// --- Test server ---

type testServerOption func(*config.Config, *Deps)

func withHealthChecks(checks ...HealthCheck) testServerOption {
	return func(_ *config.Config, d *Deps) { d.HealthChecks = checks }
}

func withSync(sc syncController) testServerOption {
	return func(_ *config.Config, d *Deps) { d.Sync = sc }
}

func withCache(cs cacheStatter) testServerOption {
	return func(_ *config.Config, d *Deps) { d.Cache = cs }
}

func withHealthSources(breaker breakerReporter, dedup, limiter sizer) testServerOption {
	return func(_ *config.Config, d *Deps) {
		d.Breaker = breaker
		d.Dedup = dedup
		d.Limiter = limiter
	}
}

func withAPIRate(perSecond float64, burst int) testServerOption {
	return func(cfg *config.Config, _ *Deps) {
		cfg.APIRatePerSecond = perSecond
		cfg.APIBurst = burst
	}
}

func withStreamLimits(global, perIP int) testServerOption {
	return func(cfg *config.Config, _ *Deps) {
		cfg.MaxStreamConnections = global
		cfg.MaxStreamsPerIP = perIP
	}
}

func newTestServer(t *testing.T, svc notificationService, opts ...testServerOption) *Server {
	t.Helper()

	cfg := &config.Config{
		AppEnv:               "test",
		Port:                 "0",
		MaxStreamConnections: 100,
		MaxStreamsPerIP:      20,
	}

	clock := clockwork.NewFakeClockAt(testNow)
	registry := notify.NewRegistry(nil)
	deps := Deps{
		Notifications: svc,
		Registry:      registry,
		Broadcaster:   notify.NewBroadcaster(registry, clock, nil),
		Sync:          &mockSyncController{},
		Cache:         &mockCacheStatter{},
		Clock:         clock,
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}

	return NewServer(cfg, deps)
}
