package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/starpush/internal/adapter/httpserver"
	"github.com/pscheid92/starpush/internal/adapter/memory"
	"github.com/pscheid92/starpush/internal/adapter/postgres"
	"github.com/pscheid92/starpush/internal/adapter/redis"
	"github.com/pscheid92/starpush/internal/app"
	"github.com/pscheid92/starpush/internal/cache"
	"github.com/pscheid92/starpush/internal/domain"
	"github.com/pscheid92/starpush/internal/metrics"
	"github.com/pscheid92/starpush/internal/notify"
	"github.com/pscheid92/starpush/internal/platform/config"
	"github.com/pscheid92/starpush/internal/platform/logging"
	"github.com/pscheid92/starpush/internal/syncer"
)

const shutdownTimeout = 10 * time.Second

type shutdownDeps struct {
	srv          *httpserver.Server
	registry     *notify.Registry
	scheduler    *syncer.Scheduler
	cancelBg     context.CancelFunc
	stopEviction func()
}

func runGracefulShutdown(d shutdownDeps) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		// Streams block their handlers, so they go first or Shutdown waits them out.
		closed := d.registry.CloseAll()
		slog.Info("Closed notification streams", "count", closed)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := d.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		d.scheduler.Disable()
		d.cancelBg()
		d.stopEviction()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	promRegistry := metrics.NewRegistry()
	m := metrics.NewSet(promRegistry)

	var healthChecks []httpserver.HealthCheck

	var repo domain.NotificationRepository
	if cfg.UsesPostgres() {
		pool := setupDB(cfg)
		defer pool.Close()
		repo = postgres.NewNotificationRepo(pool)
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "postgres", Check: pool.Ping})
	} else {
		slog.Warn("DATABASE_URL not set, notifications are kept in memory")
		repo = memory.NewNotificationRepo()
	}

	registry := notify.NewRegistry(m.Stream)
	broadcaster := notify.NewBroadcaster(registry, clock, m.Stream)

	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	// Assigned only when configured so the service sees a nil interface otherwise.
	var relay domain.Relay
	if cfg.UsesRedis() {
		redisClient := setupRedis(cfg)
		defer func() { _ = redisClient.Close() }()

		r := redis.NewRelay(redisClient, broadcaster)
		go r.Start(bgCtx)
		relay = r
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	notificationCache := cache.New(clock,
		cache.WithMaxEntries(cfg.CacheMaxEntries),
		cache.WithDefaultTTL(cfg.CacheDefaultTTL),
		cache.WithMetrics(m.Cache),
	)
	stopEviction := notificationCache.StartEvictionTimer(cfg.CacheSweepInterval)
	defer stopEviction()

	dedup := app.NewDeduplicator(app.DefaultDedupRules, clock)
	limiter := app.NewLimiter(cfg.NotifyRatePerMinute, cfg.NotifyBurst, clock)
	notifications := app.NewNotificationService(repo, notificationCache, broadcaster, relay, dedup, limiter, clock, m.Notification)

	loader := app.NewLoader(repo, notificationCache, registry, cfg.CacheDefaultTTL, dedup, limiter)
	scheduler := syncer.New(loader, notificationCache,
		syncer.WithInterval(cfg.SyncInterval),
		syncer.WithInitialDelay(cfg.SyncInitialDelay),
		syncer.WithClock(clock),
		syncer.WithMetrics(m.Sync),
	)
	scheduler.Enable(bgCtx)

	go broadcaster.RunHeartbeat(bgCtx, cfg.HeartbeatInterval)

	srv := httpserver.NewServer(cfg, httpserver.Deps{
		Notifications: notifications,
		Registry:      registry,
		Broadcaster:   broadcaster,
		Sync:          scheduler,
		Cache:         notificationCache,
		Breaker:       loader,
		Dedup:         dedup,
		Limiter:       limiter,
		Metrics:       m,
		Gatherer:      promRegistry,
		HealthChecks:  healthChecks,
		Clock:         clock,
	})

	done := runGracefulShutdown(shutdownDeps{
		srv:          srv,
		registry:     registry,
		scheduler:    scheduler,
		cancelBg:     cancelBg,
		stopEviction: stopEviction,
	})

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
