package capture

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/pennywise/observability/internal/clock"
)

const (
	DefaultDedupWindow   = 5 * time.Minute
	DefaultDedupCapacity = 1000
)

// DedupCache remembers recently seen fingerprints. Capacity bounds memory
// under a stream of distinct errors; entries older than the window count
// as absent and are removed when a lookup or insert meets them.
type DedupCache struct {
	mu     sync.Mutex
	lru    *simplelru.LRU[string, time.Time]
	window time.Duration
	clock  clock.Clock
}

// NewDedupCache creates a cache. Non-positive arguments fall back to the
// defaults.
func NewDedupCache(window time.Duration, capacity int, clk clock.Clock) *DedupCache {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	if clk == nil {
		clk = clock.Real()
	}
	lru, err := simplelru.NewLRU[string, time.Time](capacity, nil)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &DedupCache{lru: lru, window: window, clock: clk}
}

// Observe records fingerprint and reports whether it was already seen
// within the window. A repeat refreshes the entry's timestamp.
func (d *DedupCache) Observe(fingerprint string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()

	if seen, ok := d.lru.Peek(fingerprint); ok {
		if d.fresh(seen, now) {
			d.lru.Add(fingerprint, now)
			return true
		}
		d.lru.Remove(fingerprint)
	}

	d.sweep(now)
	d.lru.Add(fingerprint, now)
	return false
}

// Len returns the number of resident entries, stale ones included.
func (d *DedupCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lru.Len()
}

func (d *DedupCache) fresh(seen, now time.Time) bool {
	return now.Sub(seen) < d.window
}

// sweep drops stale entries from the least recently used end. Every write
// stamps the current time, so recency order is timestamp order and the
// sweep can stop at the first fresh entry.
func (d *DedupCache) sweep(now time.Time) {
	for {
		_, seen, ok := d.lru.GetOldest()
		if !ok || d.fresh(seen, now) {
			return
		}
		d.lru.RemoveOldest()
	}
}
