package cache

import (
	"container/list"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mohae/deepcopy"
	"github.com/pscheid92/starpush/internal/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxEntries = 2000
	DefaultTTL        = 5 * time.Minute
)

type entry struct {
	key       string
	value     any
	expiresAt time.Time
	elem      *list.Element
}

// expired reports whether the entry is past its expiry at now. An entry expires at
// expiresAt itself, so a zero TTL is never readable.
func (e *entry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// TTLCache is a bounded map of values with absolute expiry times. When full, inserting a
// new key drops expired entries first and then the oldest-inserted key.
type TTLCache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	order      *list.List // keys in insertion order, oldest at the front
	clock      clockwork.Clock
	maxEntries int
	defaultTTL time.Duration
	copyOnRead bool
	metrics    *metrics.CacheMetrics
	group      singleflight.Group

	fills map[string]int    // running fills per key
	gens  map[string]uint64 // invalidation generation per key with running fills
	epoch uint64            // bumped by Clear

	hits      uint64
	misses    uint64
	evictions uint64
}

type Option func(*TTLCache)

// WithMaxEntries bounds the number of entries. Values below 1 keep the default.
func WithMaxEntries(n int) Option {
	return func(c *TTLCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithDefaultTTL sets the TTL Preload uses for entries without one.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *TTLCache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

func WithMetrics(m *metrics.CacheMetrics) Option {
	return func(c *TTLCache) { c.metrics = m }
}

// WithCopyOnRead makes Get return a deep copy, so callers may mutate what they read
// without corrupting the cached value.
func WithCopyOnRead() Option {
	return func(c *TTLCache) { c.copyOnRead = true }
}

func New(clock clockwork.Clock, opts ...Option) *TTLCache {
	c := &TTLCache{
		entries:    make(map[string]*entry),
		order:      list.New(),
		fills:      make(map[string]int),
		gens:       make(map[string]uint64),
		clock:      clock,
		maxEntries: DefaultMaxEntries,
		defaultTTL: DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set stores value under key for ttlSeconds whole seconds. Negative TTLs are treated
// as zero, which makes the entry expire immediately.
func (c *TTLCache) Set(key string, value any, ttlSeconds int) {
	c.SetWithTTL(key, value, time.Duration(max(ttlSeconds, 0))*time.Second)
}

// SetWithTTL stores value under key, overwriting any existing entry. Overwriting keeps
// the key's original position in the eviction order.
func (c *TTLCache) SetWithTTL(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value, ttl)
	c.metrics.SetSize(len(c.entries))
}

func (c *TTLCache) setLocked(key string, value any, ttl time.Duration) {
	now := c.clock.Now()
	expiresAt := now.Add(max(ttl, 0))

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		return
	}

	if len(c.entries) >= c.maxEntries {
		c.makeRoomLocked(now)
	}

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	e.elem = c.order.PushBack(e)
	c.entries[key] = e
}

func (c *TTLCache) makeRoomLocked(now time.Time) {
	if n := c.evictExpiredLocked(now); n > 0 {
		c.metrics.Evicted("expired", n)
	}

	dropped := 0
	for len(c.entries) >= c.maxEntries {
		front := c.order.Front()
		if front == nil {
			break
		}
		c.removeLocked(front.Value.(*entry))
		dropped++
	}
	if dropped > 0 {
		c.evictions += uint64(dropped)
		c.metrics.Evicted("capacity", dropped)
	}
}

// Get returns the value for key if it is present and unexpired. A stale entry found
// here is removed.
func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		c.metrics.Miss()
		return nil, false
	}
	if e.expired(c.clock.Now()) {
		c.removeLocked(e)
		c.misses++
		c.evictions++
		c.metrics.Miss()
		c.metrics.Evicted("expired", 1)
		c.metrics.SetSize(len(c.entries))
		return nil, false
	}

	c.hits++
	c.metrics.Hit()
	if c.copyOnRead {
		return deepcopy.Copy(e.value), true
	}
	return e.value, true
}

// Has reports whether Get would return a value, with the same lazy eviction.
func (c *TTLCache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key and reports whether it was present. Loads of key already running
// will not store their result.
func (c *TTLCache) Delete(key string) bool {
	c.mu.Lock()
	c.invalidateLocked(key)
	e, ok := c.entries[key]
	if ok {
		c.removeLocked(e)
		c.metrics.SetSize(len(c.entries))
	}
	c.mu.Unlock()

	c.group.Forget(key)
	return ok
}

// Clear removes every entry and returns how many there were. Running loads will not
// store their results.
func (c *TTLCache) Clear() int {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]*entry)
	c.order.Init()
	c.epoch++
	pending := make([]string, 0, len(c.fills))
	for key := range c.fills {
		pending = append(pending, key)
	}
	c.metrics.SetSize(0)
	c.mu.Unlock()

	for _, key := range pending {
		c.group.Forget(key)
	}
	return n
}

// Len returns the number of held entries, including expired ones not yet removed.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// EvictExpired removes all expired entries and returns how many it removed.
func (c *TTLCache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.evictExpiredLocked(c.clock.Now())
	c.metrics.Evicted("expired", n)
	c.metrics.SetSize(len(c.entries))
	return n
}

func (c *TTLCache) evictExpiredLocked(now time.Time) int {
	n := 0
	for _, e := range c.entries {
		if e.expired(now) {
			c.removeLocked(e)
			n++
		}
	}
	c.evictions += uint64(n)
	return n
}

// InvalidatePattern removes every key matching re and returns how many it removed.
// Running loads of matching keys will not store their results.
func (c *TTLCache) InvalidatePattern(re *regexp.Regexp) int {
	c.mu.Lock()
	n := 0
	for key, e := range c.entries {
		if re.MatchString(key) {
			c.removeLocked(e)
			n++
		}
	}
	var pending []string
	for key := range c.fills {
		if re.MatchString(key) && c.invalidateLocked(key) {
			pending = append(pending, key)
		}
	}
	c.metrics.SetSize(len(c.entries))
	c.mu.Unlock()

	for _, key := range pending {
		c.group.Forget(key)
	}
	return n
}

// Entry is one item for Preload. A zero TTL selects the cache's default TTL.
type Entry struct {
	Key   string
	Value any
	TTL   time.Duration
}

// Preload stores entries in order, as if Set were called for each.
func (c *TTLCache) Preload(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range entries {
		ttl := e.TTL
		if ttl == 0 {
			ttl = c.defaultTTL
		}
		c.setLocked(e.Key, e.Value, ttl)
	}
	c.metrics.SetSize(len(c.entries))
}

func (c *TTLCache) removeLocked(e *entry) {
	c.order.Remove(e.elem)
	delete(c.entries, e.key)
}

type Stats struct {
	TotalEntries   int     `json:"total_entries"`
	ValidEntries   int     `json:"valid_entries"`
	ExpiredEntries int     `json:"expired_entries"`
	MaxEntries     int     `json:"max_entries"`
	Hits           uint64  `json:"hits"`
	Misses         uint64  `json:"misses"`
	Evictions      uint64  `json:"evictions"`
	HitRate        float64 `json:"hit_rate"`
}

func (c *TTLCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	s := Stats{
		TotalEntries: len(c.entries),
		MaxEntries:   c.maxEntries,
		Hits:         c.hits,
		Misses:       c.misses,
		Evictions:    c.evictions,
	}
	for _, e := range c.entries {
		if e.expired(now) {
			s.ExpiredEntries++
		} else {
			s.ValidEntries++
		}
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// StartEvictionTimer evicts expired entries every interval in a background goroutine.
// The returned stop function may be called more than once.
func (c *TTLCache) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if evicted := c.EvictExpired(); evicted > 0 {
					slog.Debug("Evicted expired cache entries", "count", evicted, "remaining", c.Len())
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
