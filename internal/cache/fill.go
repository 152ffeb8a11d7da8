package cache

import "time"

// Fill is one in-progress load of a key. Commit stores the loaded value only if the key
// was not deleted, pattern-invalidated or cleared after BeginFill, so a slow load can
// never overwrite a newer invalidation with data read before it.
type Fill struct {
	c     *TTLCache
	key   string
	gen   uint64
	epoch uint64
	done  bool
}

// BeginFill marks the start of a load for key. Every Fill must end with Commit or
// Abandon; Abandon after Commit is a no-op, so it can be deferred.
func (c *TTLCache) BeginFill(key string) *Fill {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fills[key]++
	return &Fill{c: c, key: key, gen: c.gens[key], epoch: c.epoch}
}

// Commit stores value for ttl and reports whether it was stored.
func (f *Fill) Commit(value any, ttl time.Duration) bool {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if f.done {
		return false
	}
	current := c.gens[f.key] == f.gen && c.epoch == f.epoch
	f.finishLocked()
	if !current {
		return false
	}
	c.setLocked(f.key, value, ttl)
	c.metrics.SetSize(len(c.entries))
	return true
}

// Abandon ends the fill without storing anything.
func (f *Fill) Abandon() {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	f.finishLocked()
}

func (f *Fill) finishLocked() {
	if f.done {
		return
	}
	f.done = true

	c := f.c
	if n := c.fills[f.key] - 1; n > 0 {
		c.fills[f.key] = n
		return
	}
	// No fill holds this key's generation any more.
	delete(c.fills, f.key)
	delete(c.gens, f.key)
}

// invalidateLocked makes every running fill of key stale.
func (c *TTLCache) invalidateLocked(key string) bool {
	if c.fills[key] == 0 {
		return false
	}
	c.gens[key]++
	return true
}
