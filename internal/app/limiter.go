package app

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// limiterIdleTimeout is how long an unused per-user bucket is kept. Any bucket idle this
// long has refilled completely, so dropping it changes nothing.
const limiterIdleTimeout = time.Hour

type userBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-user token bucket on notification creation.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*userBucket
	limit   rate.Limit
	burst   int
	clock   clockwork.Clock
}

func NewLimiter(perMinute, burst int, clock clockwork.Clock) *Limiter {
	return &Limiter{
		buckets: make(map[string]*userBucket),
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		clock:   clock,
	}
}

// Allow takes one token from userID's bucket.
func (l *Limiter) Allow(userID string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[userID]
	if !ok {
		b = &userBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[userID] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Prune drops buckets unused for limiterIdleTimeout.
func (l *Limiter) Prune() int {
	cutoff := l.clock.Now().Add(-limiterIdleTimeout)

	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for id, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, id)
			n++
		}
	}
	return n
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
