package xspine

import (
	"sync"
	"time"
)

// seenWindow is the idempotency window: event IDs observed within the last
// ttl are duplicates. Entries are pruned lazily on every observation, so the
// map stays bounded by the publish rate times the window length.
type seenWindow struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock Clock
	seen  map[string]time.Time
}

func newSeenWindow(ttl time.Duration, clock Clock) *seenWindow {
	return &seenWindow{
		ttl:   ttl,
		clock: clock,
		seen:  make(map[string]time.Time),
	}
}

// observe records id and reports whether it was already present within the
// window. The ID is recorded even when the subsequent enqueue fails, so a
// retry of a rejected publish inside the window is still a duplicate.
func (w *seenWindow) observe(id string) bool {
	now := w.clock.Now()
	cutoff := now.Add(-w.ttl)

	w.mu.Lock()
	defer w.mu.Unlock()

	for k, ts := range w.seen {
		if ts.Before(cutoff) {
			delete(w.seen, k)
		}
	}

	if _, dup := w.seen[id]; dup {
		return true
	}
	w.seen[id] = now
	return false
}

// size returns the current number of tracked IDs.
func (w *seenWindow) size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}

// reset drops all tracked IDs.
func (w *seenWindow) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen = make(map[string]time.Time)
}
