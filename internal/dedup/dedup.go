package dedup

import (
	"sync"
	"time"

	"github.com/harborlabs/cruisesync/internal/clock"
)

// Window drops repeat webhook notifications for the same cruise line inside
// a short TTL. The upstream supplier fires several notifications per pricing
// refresh; one sync run covers them all.
type Window struct {
	mu       sync.Mutex
	clock    clock.Clock
	ttl      time.Duration
	lastSeen map[string]time.Time
}

func NewWindow(ttl time.Duration, c clock.Clock) *Window {
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &Window{
		clock:    c,
		ttl:      ttl,
		lastSeen: make(map[string]time.Time),
	}
}

// Observe records the line code and reports whether the event is a
// duplicate within the window. First sight of a line is never a duplicate.
func (w *Window) Observe(lineCode string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	if seen, ok := w.lastSeen[lineCode]; ok && now.Sub(seen) < w.ttl {
		return true
	}
	w.lastSeen[lineCode] = now

	// opportunistic sweep keeps the map from accumulating dead lines
	for code, seen := range w.lastSeen {
		if now.Sub(seen) >= w.ttl {
			delete(w.lastSeen, code)
		}
	}
	return false
}

// Forget clears a line so a follow-up event is processed immediately.
func (w *Window) Forget(lineCode string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.lastSeen, lineCode)
}
