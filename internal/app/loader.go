package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/pscheid92/starpush/internal/cache"
	"github.com/pscheid92/starpush/internal/domain"
)

const (
	breakerFailureThreshold = 3
	breakerOpenDuration     = 5 * time.Minute
)

// UserLister yields the users whose lists are worth keeping warm.
type UserLister interface {
	UserIDs() []string
}

// Pruner drops stale in-memory state.
type Pruner interface {
	Prune() int
}

// Loader refreshes cached notification lists for the sync scheduler. A circuit breaker
// stops it from querying a store that keeps failing; while open, Load fails fast.
type Loader struct {
	repo    domain.NotificationRepository
	cache   *cache.TTLCache
	users   UserLister
	pruners []Pruner
	ttl     time.Duration
	cb      circuitbreaker.CircuitBreaker[any]
	loading atomic.Bool
}

func NewLoader(repo domain.NotificationRepository, c *cache.TTLCache, users UserLister, ttl time.Duration, pruners ...Pruner) *Loader {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(breakerFailureThreshold).
		WithDelay(breakerOpenDuration).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "notification_loader",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
		}).
		Build()

	return &Loader{
		repo:    repo,
		cache:   c,
		users:   users,
		pruners: pruners,
		ttl:     ttl,
		cb:      cb,
	}
}

// IsLoading reports whether a Load is running.
func (l *Loader) IsLoading() bool {
	return l.loading.Load()
}

// Load refreshes the global and per-user lists. A concurrent call returns nil without
// doing anything.
func (l *Loader) Load(ctx context.Context) error {
	if !l.loading.CompareAndSwap(false, true) {
		return nil
	}
	defer l.loading.Store(false)

	for _, p := range l.pruners {
		p.Prune()
	}

	if !l.cb.TryAcquirePermit() {
		return fmt.Errorf("notification store circuit open: %w", circuitbreaker.ErrOpen)
	}

	refreshed, err := l.refresh(ctx)
	if err != nil {
		l.cb.RecordError(err)
		return err
	}
	l.cb.RecordSuccess()

	slog.DebugContext(ctx, "Notification lists refreshed", "lists", refreshed)
	return nil
}

func (l *Loader) refresh(ctx context.Context) (int, error) {
	err := l.fill(RecentKey, func() ([]domain.Notification, error) {
		return l.repo.ListRecentAll(ctx, listLimit)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to load recent notifications: %w", err)
	}
	refreshed := 1

	for _, userID := range l.users.UserIDs() {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		err := l.fill(UserKey(userID), func() ([]domain.Notification, error) {
			return l.repo.ListRecent(ctx, userID, listLimit)
		})
		if err != nil {
			return refreshed, fmt.Errorf("failed to load notifications for %s: %w", userID, err)
		}
		refreshed++
	}
	return refreshed, nil
}

// fill loads one list into the cache. A list invalidated while loading is dropped
// and left for the next reader to fetch.
func (l *Loader) fill(key string, load func() ([]domain.Notification, error)) error {
	f := l.cache.BeginFill(key)
	defer f.Abandon()

	list, err := load()
	if err != nil {
		return err
	}
	f.Commit(list, l.ttl)
	return nil
}

// BreakerState is the loader's circuit breaker state, for status endpoints.
func (l *Loader) BreakerState() string {
	return l.cb.State().String()
}
