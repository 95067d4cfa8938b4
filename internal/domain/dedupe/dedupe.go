// Package dedupe tracks keys that are in flight for a limited time window.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultWindow  = 5 * time.Minute
	defaultMaxSize = 50_000
)

// Deduper records keys so that concurrent work on the same key is refused
// until the key is released or its window expires.
type Deduper interface {
	// SeenAndRecord atomically checks if id is recorded and records it if not.
	// Returns true if id was already recorded and has not expired.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord releases id before its window expires.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper keeps each key with its expiry. In bounded mode
// (maxSize > 0) the entry closest to expiry is evicted when full.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	window  time.Duration
	maxSize int
	now     func() time.Time
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		window:  defaultWindow,
		maxSize: defaultMaxSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]time.Time)
	return d
}

// SeenAndRecord implements Deduper.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.seen[id]; ok {
		if now.Before(exp) {
			return true
		}
		delete(d.seen, id)
	}

	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.purgeExpired(now)
		if len(d.seen) >= d.maxSize {
			d.evictOldest()
		}
	}
	d.seen[id] = now.Add(d.window)
	d.size.Store(int64(len(d.seen)))
	return false
}

// Unrecord implements Deduper.
func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.seen, id)
	d.size.Store(int64(len(d.seen)))
}

// purgeExpired must be called with d.mu held.
func (d *inMemoryDeduper) purgeExpired(now time.Time) {
	for id, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, id)
		}
	}
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	var (
		oldestID  string
		oldestExp time.Time
		found     bool
	)
	for id, exp := range d.seen {
		if !found || exp.Before(oldestExp) {
			oldestID, oldestExp, found = id, exp, true
		}
	}
	if found {
		delete(d.seen, oldestID)
	}
}

// Size returns the number of recorded keys, expired ones included until
// they are purged.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
