package events

import (
	"sync"

	"browsercore/internal/coretypes"
)

// Ring is a fixed-capacity circular buffer of events, the in-memory
// counterpart to the rotating trace files a flight recorder keeps on disk.
type Ring struct {
	mu   sync.Mutex
	buf  []coretypes.Event
	next int
	size int
}

// NewRing builds a Ring holding at most capacity events.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]coretypes.Event, capacity)}
}

// Add appends an event, overwriting the oldest entry once full.
func (r *Ring) Add(evt coretypes.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = evt
	r.next = (r.next + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// Query returns up to limit events in insertion order (oldest first among
// the returned slice), filtered by session id and/or kind when given.
func (r *Ring) Query(sessionID string, kinds []coretypes.EventKind, limit int) []coretypes.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	kindSet := make(map[coretypes.EventKind]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}

	start := (r.next - r.size + len(r.buf)) % len(r.buf)
	out := make([]coretypes.Event, 0, r.size)
	for i := 0; i < r.size; i++ {
		evt := r.buf[(start+i)%len(r.buf)]
		if sessionID != "" && evt.SessionID != sessionID {
			continue
		}
		if len(kindSet) > 0 && !kindSet[evt.Kind] {
			continue
		}
		out = append(out, evt)
	}

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
