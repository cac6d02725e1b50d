package webhook

import (
	"sync"
	"time"
)

// Deduplicator remembers recently processed delivery keys for a TTL.
// Keys are only marked after successful processing so a retried delivery
// that previously failed is processed again.
type Deduplicator struct {
	ttl  time.Duration
	max  int
	now  func() time.Time
	mu   sync.RWMutex
	seen map[string]time.Time
}

// NewDeduplicator creates a deduplicator; ttl <= 0 disables it
func NewDeduplicator(ttl time.Duration) *Deduplicator {
	return &Deduplicator{
		ttl:  ttl,
		max:  10000,
		now:  time.Now,
		seen: make(map[string]time.Time),
	}
}

// Seen reports whether key was marked within the TTL
func (d *Deduplicator) Seen(key string) bool {
	if d == nil || key == "" || d.ttl <= 0 {
		return false
	}
	d.mu.RLock()
	ts, exists := d.seen[key]
	d.mu.RUnlock()
	return exists && d.now().Sub(ts) < d.ttl
}

// Mark records key as processed
func (d *Deduplicator) Mark(key string) {
	if d == nil || key == "" || d.ttl <= 0 {
		return
	}
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[key] = now

	// Sweep expired entries once the map grows large
	if len(d.seen) > d.max {
		for k, ts := range d.seen {
			if now.Sub(ts) >= d.ttl {
				delete(d.seen, k)
			}
		}
	}
}

// Len reports how many keys are currently held
func (d *Deduplicator) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.seen)
}
