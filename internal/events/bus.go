// Package events implements the coordination layer's publish/subscribe bus:
// topic-filtered subscriptions over bounded queues that drop on overflow
// rather than block a publisher, plus a ring-buffer history adapted from
// the flight recorder's rotating trace files.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"browsercore/internal/coretypes"
)

// Subscription delivers events matching a topic filter to a bounded queue.
type Subscription struct {
	id      int64
	kinds   map[coretypes.EventKind]bool
	ch      chan coretypes.Event
	limiter *rate.Limiter
}

// Events returns the channel to range over for delivered events.
func (s *Subscription) Events() <-chan coretypes.Event { return s.ch }

// Bus is a non-blocking, topic-filtered publish/subscribe hub.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int64]*Subscription
	nextID int64
	log    *zap.Logger

	history *Ring
}

// New builds a Bus with a bounded ring-buffer history of the last
// historySize published events, used for RetrieveHistory lookups.
func New(historySize int, log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		subs:    make(map[int64]*Subscription),
		log:     log,
		history: NewRing(historySize),
	}
}

// Subscribe registers a bounded-queue listener for the given event kinds
// (empty means all kinds), optionally rate-limited to ratePerSec events/s.
func (b *Bus) Subscribe(kinds []coretypes.EventKind, queueSize int, ratePerSec float64) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	filter := make(map[coretypes.EventKind]bool, len(kinds))
	for _, k := range kinds {
		filter[k] = true
	}
	var limiter *rate.Limiter
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), int(ratePerSec)+1)
	}
	sub := &Subscription{
		id:      b.nextID,
		kinds:   filter,
		ch:      make(chan coretypes.Event, queueSize),
		limiter: limiter,
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.ch)
	}
}

// Publish fans an event out to every matching subscriber without blocking;
// a subscriber whose queue is full simply misses the event.
func (b *Bus) Publish(evt coretypes.Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	b.history.Add(evt)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if len(sub.kinds) > 0 && !sub.kinds[evt.Kind] {
			continue
		}
		if sub.limiter != nil && !sub.limiter.Allow() {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.log.Debug("dropping event for slow subscriber", zap.String("kind", string(evt.Kind)))
		}
	}
}

// History returns up to limit of the most recent events, newest last,
// optionally filtered to a session and/or kind set.
func (b *Bus) History(sessionID string, kinds []coretypes.EventKind, limit int) []coretypes.Event {
	return b.history.Query(sessionID, kinds, limit)
}

// WaitFor blocks until a matching event is published or ctx is done,
// backing the wait_for_condition tool's event-driven path.
func WaitFor(ctx context.Context, sub *Subscription, match func(coretypes.Event) bool) (coretypes.Event, bool) {
	for {
		select {
		case <-ctx.Done():
			return coretypes.Event{}, false
		case evt, ok := <-sub.Events():
			if !ok {
				return coretypes.Event{}, false
			}
			if match == nil || match(evt) {
				return evt, true
			}
		}
	}
}
