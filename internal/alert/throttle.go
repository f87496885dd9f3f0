// Package alert decides when an escalation-worthy client event may page an
// operator, and delivers those pages.
package alert

import (
	"sort"
	"sync"
	"time"

	"github.com/pennywise/observability/internal/clock"
)

// Alert categories
const (
	CategoryError         = "error"
	CategoryPerformance   = "performance"
	CategoryAccessibility = "accessibility"
	CategoryGeneral       = "general"
)

// Categories is the known category set, pre-populated in snapshots so
// dashboards show zero rows instead of gaps.
var Categories = []string{CategoryError, CategoryPerformance, CategoryAccessibility, CategoryGeneral}

// Policy caps alerts for one category per fixed window.
type Policy struct {
	Cap    int
	Window time.Duration
}

// DefaultPolicy applies to categories without an override.
var DefaultPolicy = Policy{Cap: 10, Window: 15 * time.Minute}

// State of a category within its current window
type State string

const (
	StateOpen      State = "open"
	StateSaturated State = "saturated"
)

type counter struct {
	windowStart time.Time
	allowed     int
	suppressed  int
}

// Throttle is a fixed-window, per-category alert limiter. All counters sit
// behind one mutex so allowed/suppressed never drift under concurrent
// requests.
type Throttle struct {
	mu       sync.Mutex
	clock    clock.Clock
	def      Policy
	policies map[string]Policy
	counters map[string]*counter
}

// NewThrottle creates a throttle. overrides may be nil.
func NewThrottle(clk clock.Clock, def Policy, overrides map[string]Policy) *Throttle {
	if clk == nil {
		clk = clock.Real()
	}
	if def.Window <= 0 {
		def.Window = DefaultPolicy.Window
	}
	if def.Cap < 0 {
		def.Cap = 0
	}
	policies := make(map[string]Policy, len(overrides))
	for category, p := range overrides {
		if p.Window <= 0 {
			p.Window = def.Window
		}
		policies[category] = p
	}
	return &Throttle{
		clock:    clk,
		def:      def,
		policies: policies,
		counters: make(map[string]*counter),
	}
}

// PolicyFor returns the effective policy for category.
func (t *Throttle) PolicyFor(category string) Policy {
	if p, ok := t.policies[category]; ok {
		return p
	}
	return t.def
}

// ShouldAlert records one alert-worthy event. It returns true and counts
// the event as allowed while the window is open, otherwise counts it as
// suppressed and returns false. An elapsed window is rolled over first.
func (t *Throttle) ShouldAlert(category string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	policy := t.PolicyFor(category)

	c, ok := t.counters[category]
	if !ok {
		c = &counter{windowStart: now}
		t.counters[category] = c
	} else if now.After(c.windowStart.Add(policy.Window)) {
		c.windowStart = now
		c.allowed = 0
		c.suppressed = 0
	}

	if c.allowed < policy.Cap {
		c.allowed++
		return true
	}
	c.suppressed++
	return false
}

// ThrottledCount returns the suppressed count of the current window
// without mutating state. An elapsed window reports zero.
func (t *Throttle) ThrottledCount(category string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.counters[category]
	if !ok || t.expired(category, c) {
		return 0
	}
	return c.suppressed
}

// CategorySnapshot is a read-only view of one category's window.
type CategorySnapshot struct {
	Category    string    `json:"category"`
	State       State     `json:"state"`
	WindowStart time.Time `json:"window_start,omitempty"`
	Window      string    `json:"window"`
	Cap         int       `json:"cap"`
	Allowed     int       `json:"allowed"`
	Suppressed  int       `json:"suppressed"`
}

// Snapshot returns every known category plus any seen at runtime, sorted
// by name. Elapsed windows are reported as open with zero counts.
func (t *Throttle) Snapshot() []CategorySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make(map[string]struct{}, len(Categories)+len(t.counters))
	for _, c := range Categories {
		names[c] = struct{}{}
	}
	for c := range t.counters {
		names[c] = struct{}{}
	}

	out := make([]CategorySnapshot, 0, len(names))
	for category := range names {
		policy := t.PolicyFor(category)
		snap := CategorySnapshot{
			Category: category,
			State:    StateOpen,
			Window:   policy.Window.String(),
			Cap:      policy.Cap,
		}
		if c, ok := t.counters[category]; ok && !t.expired(category, c) {
			snap.WindowStart = c.windowStart
			snap.Allowed = c.allowed
			snap.Suppressed = c.suppressed
			if c.allowed >= policy.Cap {
				snap.State = StateSaturated
			}
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// expired must be called with t.mu held.
func (t *Throttle) expired(category string, c *counter) bool {
	return t.clock.Now().After(c.windowStart.Add(t.PolicyFor(category).Window))
}
