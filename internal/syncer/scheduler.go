// Package syncer runs the periodic background refresh: load fresh data through a
// Loader, then sweep expired cache entries.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/starpush/internal/metrics"
	"github.com/pscheid92/starpush/internal/platform/correlation"
)

const (
	DefaultInterval     = 3 * time.Minute
	DefaultInitialDelay = 5 * time.Second
)

// Loader is the data-loading collaborator. IsLoading reports a load already running on
// the loader's own initiative; the scheduler skips its tick while it is true.
type Loader interface {
	Load(ctx context.Context) error
	IsLoading() bool
}

type Sweeper interface {
	EvictExpired() int
}

// Scheduler calls PerformSync once after an initial delay and then on a fixed
// interval. Runs never overlap.
type Scheduler struct {
	loader       Loader
	sweeper      Sweeper
	clock        clockwork.Clock
	interval     time.Duration
	initialDelay time.Duration
	metrics      *metrics.SyncMetrics

	inFlight atomic.Bool

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	lastSync time.Time
	lastErr  error
	runs     uint64
	failures uint64
	skipped  uint64
}

type Option func(*Scheduler)

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithInitialDelay sets the wait before the first run. Zero runs it right away.
func WithInitialDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.initialDelay = d
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func New(loader Loader, sweeper Sweeper, opts ...Option) *Scheduler {
	s := &Scheduler{
		loader:       loader,
		sweeper:      sweeper,
		clock:        clockwork.NewRealClock(),
		interval:     DefaultInterval,
		initialDelay: DefaultInitialDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enable starts the timer loop. It stops when Disable is called or ctx is cancelled.
// Enabling an enabled scheduler does nothing.
func (s *Scheduler) Enable(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(loopCtx, s.done)

	slog.InfoContext(ctx, "Sync scheduler enabled", "interval", s.interval, "initial_delay", s.initialDelay)
}

// Disable stops the timer loop and waits for it to exit, including a run in progress.
// No run starts from the timer after Disable returns. Safe to call repeatedly or
// before Enable.
func (s *Scheduler) Disable() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	slog.Info("Sync scheduler disabled")
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer s.exited(done)

	delay := s.clock.NewTimer(s.initialDelay)
	defer delay.Stop()

	select {
	case <-ctx.Done():
		return
	case <-delay.Chan():
	}
	_, _ = s.PerformSync(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			_, _ = s.PerformSync(ctx)
		}
	}
}

// exited clears the loop state unless Disable or a newer Enable replaced it, so a loop
// ended by its parent context leaves the scheduler re-enableable.
func (s *Scheduler) exited(done chan struct{}) {
	s.mu.Lock()
	if s.done == done {
		s.cancel()
		s.cancel, s.done = nil, nil
	}
	s.mu.Unlock()
	close(done)
}

// PerformSync loads and then sweeps, unless the loader is busy or another run is in
// flight, in which case it reports ran=false. A failed load skips the sweep; the error
// is logged, recorded in Status and returned.
func (s *Scheduler) PerformSync(ctx context.Context) (ran bool, err error) {
	if s.loader.IsLoading() {
		s.skip(ctx, "loader busy")
		return false, nil
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.skip(ctx, "sync in flight")
		return false, nil
	}
	defer s.inFlight.Store(false)

	ctx, _ = correlation.Start(ctx, correlation.OriginSync)
	start := s.clock.Now()

	err = s.load(ctx)
	evicted := 0
	if err == nil {
		evicted = s.sweeper.EvictExpired()
	}

	finished := s.clock.Now()
	took := finished.Sub(start)
	s.record(finished, err)
	s.metrics.Finished(err, took, finished)

	if err != nil {
		slog.ErrorContext(ctx, "Background sync failed", "error", err, "duration", took)
		return true, err
	}
	slog.DebugContext(ctx, "Background sync completed", "evicted", evicted, "duration", took)
	return true, nil
}

// ManualSync runs a sync now, outside the timer cadence, under the same guard.
func (s *Scheduler) ManualSync(ctx context.Context) (bool, error) {
	return s.PerformSync(ctx)
}

func (s *Scheduler) load(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loader panicked: %v", r)
		}
	}()
	return s.loader.Load(ctx)
}

func (s *Scheduler) skip(ctx context.Context, reason string) {
	s.mu.Lock()
	s.skipped++
	s.mu.Unlock()
	s.metrics.Skipped()
	slog.DebugContext(ctx, "Background sync skipped", "reason", reason)
}

func (s *Scheduler) record(at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs++
	s.lastErr = err
	if err != nil {
		s.failures++
		return
	}
	s.lastSync = at
}

type Status struct {
	Enabled   bool       `json:"enabled"`
	InFlight  bool       `json:"in_flight"`
	Interval  string     `json:"interval"`
	LastSync  *time.Time `json:"last_sync,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Runs      uint64     `json:"runs"`
	Failures  uint64     `json:"failures"`
	Skipped   uint64     `json:"skipped"`
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Enabled:  s.cancel != nil,
		InFlight: s.inFlight.Load(),
		Interval: s.interval.String(),
		Runs:     s.runs,
		Failures: s.failures,
		Skipped:  s.skipped,
	}
	if !s.lastSync.IsZero() {
		last := s.lastSync
		st.LastSync = &last
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
