package httpserver

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	streamConnectRate  = 5.0
	streamConnectBurst = 10

	connectLimiterIdle    = 10 * time.Minute
	connectLimiterCleanup = 5 * time.Minute
)

// LimitReason names the limit that rejected a stream connection.
type LimitReason string

const (
	LimitNone   LimitReason = ""
	LimitGlobal LimitReason = "global_capacity"
	LimitPerIP  LimitReason = "ip_capacity"
	LimitRate   LimitReason = "connect_rate"
)

// GlobalConnectionLimiter caps concurrent streams on this instance. A max of zero or
// less disables the cap.
type GlobalConnectionLimiter struct {
	current atomic.Int64
	max     int64
}

func NewGlobalConnectionLimiter(max int64) *GlobalConnectionLimiter {
	return &GlobalConnectionLimiter{max: max}
}

func (l *GlobalConnectionLimiter) Acquire() bool {
	for {
		current := l.current.Load()
		if l.max > 0 && current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *GlobalConnectionLimiter) Release() {
	l.current.Add(-1)
}

func (l *GlobalConnectionLimiter) Current() int64 {
	return l.current.Load()
}

func (l *GlobalConnectionLimiter) Max() int64 {
	return l.max
}

// IPConnectionLimiter caps concurrent streams per client IP.
type IPConnectionLimiter struct {
	mu     sync.Mutex
	ips    map[string]int
	maxPer int
}

func NewIPConnectionLimiter(maxPer int) *IPConnectionLimiter {
	return &IPConnectionLimiter{
		ips:    make(map[string]int),
		maxPer: maxPer,
	}
}

func (l *IPConnectionLimiter) Acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxPer > 0 && l.ips[ip] >= l.maxPer {
		return false
	}
	l.ips[ip]++
	return true
}

func (l *IPConnectionLimiter) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count := l.ips[ip]; count > 1 {
		l.ips[ip] = count - 1
	} else {
		delete(l.ips, ip)
	}
}

func (l *IPConnectionLimiter) Count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ips[ip]
}

// ConnectionRateLimiter throttles how fast a single IP may open new streams.
type ConnectionRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*rateLimiterEntry
	rate      rate.Limit
	burst     int
	clock     clockwork.Clock
	cleanupAt time.Time
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewConnectionRateLimiter(perSecond float64, burst int, clock clockwork.Clock) *ConnectionRateLimiter {
	return &ConnectionRateLimiter{
		limiters:  make(map[string]*rateLimiterEntry),
		rate:      rate.Limit(perSecond),
		burst:     burst,
		clock:     clock,
		cleanupAt: clock.Now().Add(connectLimiterCleanup),
	}
}

func (l *ConnectionRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.cleanupAt) {
		l.cleanup(now)
		l.cleanupAt = now.Add(connectLimiterCleanup)
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Must be called with mu held.
func (l *ConnectionRateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-connectLimiterIdle)
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}

func (l *ConnectionRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// ConnectionLimits combines the connect rate, per-IP and global limits that guard
// the stream endpoints.
type ConnectionLimits struct {
	global *GlobalConnectionLimiter
	perIP  *IPConnectionLimiter
	rate   *ConnectionRateLimiter
}

func NewConnectionLimits(globalMax int64, perIP int, perSecond float64, burst int, clock clockwork.Clock) *ConnectionLimits {
	return &ConnectionLimits{
		global: NewGlobalConnectionLimiter(globalMax),
		perIP:  NewIPConnectionLimiter(perIP),
		rate:   NewConnectionRateLimiter(perSecond, burst, clock),
	}
}

// Acquire reserves a stream slot for ip. On success the caller must Release it.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	if !l.rate.Allow(ip) {
		return false, LimitRate
	}
	if !l.global.Acquire() {
		return false, LimitGlobal
	}
	if !l.perIP.Acquire(ip) {
		l.global.Release()
		return false, LimitPerIP
	}
	return true, LimitNone
}

func (l *ConnectionLimits) Release(ip string) {
	l.perIP.Release(ip)
	l.global.Release()
}

func (l *ConnectionLimits) Global() *GlobalConnectionLimiter {
	return l.global
}
