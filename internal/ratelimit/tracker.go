package ratelimit

import (
	"sync"
	"time"
)

// tracker counts calls per namespace in fixed windows.
type tracker struct {
	mu     sync.Mutex
	starts map[string]time.Time
	counts map[string]int
}

func newTracker() *tracker {
	return &tracker{
		starts: make(map[string]time.Time),
		counts: make(map[string]int),
	}
}

// take returns the count before this call and records the call if it is
// still under max. An expired window is reset first.
func (t *tracker) take(ns string, l *Limit, now time.Time) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Sub(t.starts[ns]) >= l.Window {
		t.starts[ns] = now
		t.counts[ns] = 0
	}
	count := t.counts[ns]
	if count >= l.MaxRequests {
		return count, false
	}
	t.counts[ns]++
	return count, true
}
