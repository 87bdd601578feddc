// Package coordinator wires the browser pool, session registry, event
// bus, and unified cache together: it is the glue that reacts to
// coordination-bus events with the side effects other packages can't
// perform on their own (cache invalidation on navigation and on session
// close, periodic pool liveness sweeps).
package coordinator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"browsercore/internal/cache"
	"browsercore/internal/coretypes"
	"browsercore/internal/events"
	"browsercore/internal/pool"
	"browsercore/internal/session"
)

// Coordinator owns the background loops tying the engine's components
// together once they've each been constructed.
type Coordinator struct {
	pool     *pool.Pool
	sessions *session.Manager
	bus      *events.Bus
	cache    *cache.Cache
	log      *zap.Logger

	livenessInterval time.Duration

	sub *events.Subscription
}

// New builds a Coordinator. cache may be nil if the engine runs with
// caching disabled.
func New(p *pool.Pool, sessions *session.Manager, bus *events.Bus, c *cache.Cache, livenessInterval time.Duration, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		pool:             p,
		sessions:         sessions,
		bus:              bus,
		cache:            c,
		log:              log,
		livenessInterval: livenessInterval,
	}
}

// Run subscribes to the bus and starts the liveness-sweep ticker; it
// blocks until ctx is canceled, so callers should run it in its own
// goroutine.
func (c *Coordinator) Run(ctx context.Context) {
	c.sub = c.bus.Subscribe([]coretypes.EventKind{
		coretypes.EventNavigationCompleted,
		coretypes.EventSessionClosed,
		coretypes.EventHandleCondemned,
	}, 64, 0)
	defer c.bus.Unsubscribe(c.sub)

	interval := c.livenessInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.sub.Events():
			if !ok {
				return
			}
			c.handle(evt)
		case <-ticker.C:
			c.pool.LivenessSweep()
		}
	}
}

func (c *Coordinator) handle(evt coretypes.Event) {
	switch evt.Kind {
	case coretypes.EventNavigationCompleted:
		if c.cache == nil {
			return
		}
		if origin, ok := evt.Data["origin"].(string); ok && origin != "" {
			c.cache.InvalidateTag(origin)
		}
		c.cache.InvalidateTag("session:" + evt.SessionID)
	case coretypes.EventSessionClosed:
		if c.cache != nil {
			c.cache.InvalidateTag("session:" + evt.SessionID)
		}
	case coretypes.EventHandleCondemned:
		c.log.Warn("handle condemned", zap.String("session_id", evt.SessionID))
	}
}

// CloseSession tears a session down end to end: closes its page/handle
// via the session manager, then publishes the event the rest of the
// coordination layer reacts to.
func (c *Coordinator) CloseSession(id string, handleBad bool) error {
	if err := c.sessions.Close(id, handleBad); err != nil {
		return err
	}
	c.bus.Publish(coretypes.Event{Kind: coretypes.EventSessionClosed, SessionID: id})
	return nil
}

// Health summarizes pool occupancy, active sessions, and cache hit ratio
// for the external SystemHealth operation.
func (c *Coordinator) Health() coretypes.HealthReport {
	idle, bound := c.pool.Stats()
	report := coretypes.HealthReport{
		PoolSize:       idle + bound,
		IdleHandles:    idle,
		BoundHandles:   bound,
		ActiveSessions: c.sessions.Count(),
	}
	if c.cache != nil {
		report.CacheHitRatio = c.cache.HitRatio()
	}
	return report
}
