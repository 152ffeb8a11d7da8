package app

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DedupRule is the suppression window for one notification type. With AllowMultiple,
// different actors on the same entity are not duplicates of each other.
type DedupRule struct {
	Window        time.Duration
	AllowMultiple bool
}

// DefaultDedupRules covers the notification types the product emits. Types without a
// rule are never suppressed.
var DefaultDedupRules = map[string]DedupRule{
	"discussion_like":     {Window: time.Hour},
	"discussion_reply":    {Window: 30 * time.Minute, AllowMultiple: true},
	"discussion_mention":  {Window: 10 * time.Minute},
	"comment_like":        {Window: time.Hour},
	"comment_reply":       {Window: 30 * time.Minute, AllowMultiple: true},
	"welcome":             {Window: 24 * time.Hour},
	"system_announcement": {Window: 2 * time.Hour},
	"chart_like":          {Window: time.Hour},
	"follow":              {Window: time.Hour},
}

// Deduplicator remembers recent notification fingerprints in memory.
type Deduplicator struct {
	mu    sync.Mutex
	rules map[string]DedupRule
	seen  map[string]time.Time // fingerprint -> end of suppression window
	clock clockwork.Clock
}

func NewDeduplicator(rules map[string]DedupRule, clock clockwork.Clock) *Deduplicator {
	return &Deduplicator{
		rules: rules,
		seen:  make(map[string]time.Time),
		clock: clock,
	}
}

// IsDuplicate reports whether an equivalent notification was reserved inside the
// type's window.
func (d *Deduplicator) IsDuplicate(req CreateRequest) bool {
	fp, _, ok := d.fingerprint(req)
	if !ok {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	until, found := d.seen[fp]
	return found && d.clock.Now().Before(until)
}

// Reserve starts the suppression window for req unless an equivalent notification
// holds one already, and reports whether it did. Check and record happen under one
// lock, so of two identical concurrent requests only one gets through.
func (d *Deduplicator) Reserve(req CreateRequest) bool {
	fp, rule, ok := d.fingerprint(req)
	if !ok {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	if until, found := d.seen[fp]; found && now.Before(until) {
		return false
	}
	d.seen[fp] = now.Add(rule.Window)
	return true
}

// Release drops the window Reserve started for req, for a notification that was not
// stored after all.
func (d *Deduplicator) Release(req CreateRequest) {
	fp, _, ok := d.fingerprint(req)
	if !ok {
		return
	}

	d.mu.Lock()
	delete(d.seen, fp)
	d.mu.Unlock()
}

// Len returns the number of tracked fingerprints, including closed windows not yet pruned.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Prune drops fingerprints whose window has closed.
func (d *Deduplicator) Prune() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	n := 0
	for fp, until := range d.seen {
		if !now.Before(until) {
			delete(d.seen, fp)
			n++
		}
	}
	return n
}

func (d *Deduplicator) fingerprint(req CreateRequest) (string, DedupRule, bool) {
	rule, ok := d.rules[req.Type]
	if !ok {
		return "", DedupRule{}, false
	}

	actor := ""
	if rule.AllowMultiple {
		actor = req.ActorID
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{req.UserID, req.Type, req.EntityID, actor}, "\x00")))
	return hex.EncodeToString(sum[:]), rule, true
}
