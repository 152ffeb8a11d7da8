// Package httpserver exposes notification streams (SSE and WebSocket), the notification
// API, sync controls, and health and metrics endpoints over echo.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/starpush/internal/app"
	"github.com/pscheid92/starpush/internal/cache"
	"github.com/pscheid92/starpush/internal/domain"
	"github.com/pscheid92/starpush/internal/metrics"
	"github.com/pscheid92/starpush/internal/notify"
	"github.com/pscheid92/starpush/internal/platform/config"
	"github.com/pscheid92/starpush/internal/syncer"
)

type notificationService interface {
	Create(ctx context.Context, req app.CreateRequest) (*domain.Notification, error)
	Broadcast(ctx context.Context, req app.BroadcastRequest) (*domain.Notification, int, error)
	ListRecent(ctx context.Context, userID string) ([]domain.Notification, error)
	ListRecentAll(ctx context.Context) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID string, id uuid.UUID) error
}

type syncController interface {
	ManualSync(ctx context.Context) (bool, error)
	Status() syncer.Status
}

type cacheStatter interface {
	Stats() cache.Stats
}

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Notifications notificationService
	Registry      *notify.Registry
	Broadcaster   *notify.Broadcaster
	Sync          syncController
	Cache         cacheStatter
	Breaker       breakerReporter
	Dedup         sizer
	Limiter       sizer
	Metrics       *metrics.Set
	Gatherer      prometheus.Gatherer
	HealthChecks  []HealthCheck
	Clock         clockwork.Clock
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	notifications notificationService
	registry      *notify.Registry
	broadcaster   *notify.Broadcaster
	sync          syncController
	cache         cacheStatter
	breaker       breakerReporter
	dedup         sizer
	limiter       sizer
	metrics       *metrics.Set
	gatherer      prometheus.Gatherer

	limits       *ConnectionLimits
	apiLimiter   *ConnectionRateLimiter
	upgrader     websocket.Upgrader
	healthChecks []HealthCheck
	clock        clockwork.Clock
	startTime    time.Time
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	m := deps.Metrics
	if m == nil {
		m = &metrics.Set{}
	}

	srv := &Server{
		echo:          e,
		config:        cfg,
		notifications: deps.Notifications,
		registry:      deps.Registry,
		broadcaster:   deps.Broadcaster,
		sync:          deps.Sync,
		cache:         deps.Cache,
		breaker:       deps.Breaker,
		dedup:         deps.Dedup,
		limiter:       deps.Limiter,
		metrics:       m,
		gatherer:      deps.Gatherer,
		limits: NewConnectionLimits(
			int64(cfg.MaxStreamConnections),
			cfg.MaxStreamsPerIP,
			streamConnectRate,
			streamConnectBurst,
			clock,
		),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Any origin may subscribe; streams carry no credentials.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		healthChecks: deps.HealthChecks,
		clock:        clock,
		startTime:    clock.Now(),
	}

	srv.apiLimiter = newAPIRateLimiter(srv)
	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones. Open streams only
// end once their registry entries are closed, so callers close the registry first.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}
