package app

import (
	"context"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/starpush/internal/cache"
	"github.com/pscheid92/starpush/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPruner struct{ calls int }

func (p *countingPruner) Prune() int {
	p.calls++
	return 0
}

func TestLoader_RefreshesRecentAndUserLists(t *testing.T) {
	ctx := context.Background()
	repo := newFlakyRepo()
	require.NoError(t, repo.Create(ctx, &domain.Notification{ID: uuid.New(), UserID: "alice", Type: "follow", CreatedAt: time.Now()}))
	c := cache.New(clockwork.NewFakeClock())
	pruner := &countingPruner{}
	l := NewLoader(repo, c, newFakeBroadcaster("alice", "bob"), time.Minute, pruner)

	require.NoError(t, l.Load(ctx))

	recent, ok := c.Get(RecentKey)
	require.True(t, ok)
	assert.Len(t, recent, 1)

	alice, ok := c.Get(UserKey("alice"))
	require.True(t, ok)
	assert.Len(t, alice, 1)

	bob, ok := c.Get(UserKey("bob"))
	require.True(t, ok)
	assert.Empty(t, bob)

	assert.Equal(t, 1, pruner.calls)
	assert.False(t, l.IsLoading())
}

func TestLoader_DropsListInvalidatedWhileLoading(t *testing.T) {
	repo := newFlakyRepo()
	repo.gate = make(chan struct{})
	repo.entered = make(chan struct{}, 1)
	c := cache.New(clockwork.NewFakeClock())
	l := NewLoader(repo, c, newFakeBroadcaster("alice"), time.Minute)

	done := make(chan error, 1)
	go func() { done <- l.Load(context.Background()) }()
	<-repo.entered

	c.Delete(UserKey("alice"))
	close(repo.gate)

	require.NoError(t, <-done)
	assert.False(t, c.Has(UserKey("alice")))
	assert.True(t, c.Has(RecentKey))
}

func TestLoader_FailureKeepsOldEntries(t *testing.T) {
	repo := newFlakyRepo()
	c := cache.New(clockwork.NewFakeClock())
	c.Set(RecentKey, []domain.Notification{{Title: "stale"}}, 600)
	l := NewLoader(repo, c, newFakeBroadcaster(), time.Minute)
	repo.failing.Store(true)

	err := l.Load(context.Background())

	assert.ErrorIs(t, err, errStoreDown)
	assert.True(t, c.Has(RecentKey))
}

func TestLoader_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	repo := newFlakyRepo()
	l := NewLoader(repo, cache.New(clockwork.NewFakeClock()), newFakeBroadcaster(), time.Minute)
	repo.failing.Store(true)

	for range breakerFailureThreshold {
		assert.ErrorIs(t, l.Load(context.Background()), errStoreDown)
	}
	reads := repo.reads.Load()

	err := l.Load(context.Background())

	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, reads, repo.reads.Load(), "open breaker must not reach the store")
	assert.True(t, l.cb.IsOpen())
}
