package app

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeduplicator_WindowPerType(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := NewDeduplicator(DefaultDedupRules, clock)
	req := CreateRequest{UserID: "alice", Type: "discussion_mention", EntityID: "d1"}

	assert.False(t, d.IsDuplicate(req))
	assert.True(t, d.Reserve(req))
	assert.False(t, d.Reserve(req))
	assert.True(t, d.IsDuplicate(req))

	clock.Advance(9 * time.Minute)
	assert.True(t, d.IsDuplicate(req))

	clock.Advance(time.Minute)
	assert.False(t, d.IsDuplicate(req))
}

func TestDeduplicator_ActorMattersOnlyWhenMultipleAllowed(t *testing.T) {
	d := NewDeduplicator(DefaultDedupRules, clockwork.NewFakeClock())

	d.Reserve(CreateRequest{UserID: "alice", Type: "comment_reply", EntityID: "c1", ActorID: "bob"})
	assert.False(t, d.IsDuplicate(CreateRequest{UserID: "alice", Type: "comment_reply", EntityID: "c1", ActorID: "carol"}))
	assert.True(t, d.IsDuplicate(CreateRequest{UserID: "alice", Type: "comment_reply", EntityID: "c1", ActorID: "bob"}))

	d.Reserve(CreateRequest{UserID: "alice", Type: "comment_like", EntityID: "c1", ActorID: "bob"})
	assert.True(t, d.IsDuplicate(CreateRequest{UserID: "alice", Type: "comment_like", EntityID: "c1", ActorID: "carol"}))
}

func TestDeduplicator_UnknownTypeNeverSuppressed(t *testing.T) {
	d := NewDeduplicator(DefaultDedupRules, clockwork.NewFakeClock())
	req := CreateRequest{UserID: "alice", Type: "custom"}

	d.Reserve(req)
	assert.False(t, d.IsDuplicate(req))
}

func TestDeduplicator_Prune(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := NewDeduplicator(DefaultDedupRules, clock)
	d.Reserve(CreateRequest{UserID: "alice", Type: "discussion_mention"})
	d.Reserve(CreateRequest{UserID: "alice", Type: "welcome"})

	clock.Advance(time.Hour)

	assert.Equal(t, 1, d.Prune())
	assert.True(t, d.IsDuplicate(CreateRequest{UserID: "alice", Type: "welcome"}))
}

func TestDeduplicator_ReleaseReopens(t *testing.T) {
	d := NewDeduplicator(DefaultDedupRules, clockwork.NewFakeClock())
	req := CreateRequest{UserID: "alice", Type: "follow", EntityID: "profile-alice", ActorID: "bob"}

	require.True(t, d.Reserve(req))
	d.Release(req)

	assert.False(t, d.IsDuplicate(req))
	assert.True(t, d.Reserve(req))
	assert.Equal(t, 1, d.Len())
}

func TestDeduplicator_ConcurrentReserveAdmitsOne(t *testing.T) {
	d := NewDeduplicator(DefaultDedupRules, clockwork.NewFakeClock())
	req := CreateRequest{UserID: "alice", Type: "follow", EntityID: "profile-alice", ActorID: "bob"}

	var admitted atomic.Int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if d.Reserve(req) {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
}
