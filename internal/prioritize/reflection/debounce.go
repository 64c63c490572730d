package reflection

import (
	"sync"
	"time"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/clockutil"
)

// DebounceWait is how long to wait after the last toggle before firing
// a re-adjustment (§4.5).
const DebounceWait = 2 * time.Second

// MinRunInterval is the minimum time between adjustment runs for a
// given user, even under continuous toggling (§5 rate-limiting).
const MinRunInterval = 10 * time.Second

// Debouncer coalesces reflection-toggle-triggered re-adjustments per
// user: each ToggleReflection call resets a 2s timer; firing is also
// rate-limited to once per 10s. Built as an explicit injected state
// machine rather than an implicit global, matching the retry queue's
// injected-clock style (internal/prioritize/scoring.RetryQueue).
type Debouncer struct {
	mu       sync.Mutex
	clock    clockutil.Clock
	lastRun  map[string]time.Time
	pending  map[string]chan struct{} // closed to cancel a stale pending fire
	fn       func(userID string)
}

// NewDebouncer constructs a Debouncer that calls fn after the debounce
// window elapses for a given user, subject to MinRunInterval throttling.
func NewDebouncer(clock clockutil.Clock, fn func(userID string)) *Debouncer {
	return &Debouncer{
		clock:   clock,
		lastRun: make(map[string]time.Time),
		pending: make(map[string]chan struct{}),
		fn:      fn,
	}
}

// Trigger records a toggle for userID, scheduling fn to run DebounceWait
// after the most recent Trigger call for that user (resetting any
// still-pending timer), unless MinRunInterval hasn't elapsed since the
// last actual run, in which case the fire is deferred to respect the
// floor.
func (d *Debouncer) Trigger(userID string) {
	d.mu.Lock()
	if cancel, ok := d.pending[userID]; ok {
		close(cancel)
	}
	cancel := make(chan struct{})
	d.pending[userID] = cancel
	d.mu.Unlock()

	go d.wait(userID, cancel)
}

func (d *Debouncer) wait(userID string, cancel chan struct{}) {
	select {
	case <-d.clock.After(DebounceWait):
	case <-cancel:
		return
	}

	d.mu.Lock()
	if cur, ok := d.pending[userID]; ok && cur == cancel {
		delete(d.pending, userID)
	}
	last, hasRun := d.lastRun[userID]
	now := d.clock.Now()
	if hasRun && now.Sub(last) < MinRunInterval {
		wait := MinRunInterval - now.Sub(last)
		d.mu.Unlock()
		select {
		case <-d.clock.After(wait):
		case <-cancel:
			return
		}
		d.mu.Lock()
	}
	d.lastRun[userID] = d.clock.Now()
	d.mu.Unlock()

	if d.fn != nil {
		d.fn(userID)
	}
}
