// Package metrics exposes the engine's Prometheus collectors: pool
// occupancy, perception latency, tool outcomes, cache hit ratio, and
// circuit-breaker state, registered the way the domain stack's other
// services wire client_golang.
package metrics

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every collector the engine publishes.
type Registry struct {
	PoolIdle        prometheus.Gauge
	PoolBound       prometheus.Gauge
	PerceptionLatency *prometheus.HistogramVec
	ToolOutcomes    *prometheus.CounterVec
	ToolDuration    *prometheus.HistogramVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	CircuitOpen     *prometheus.GaugeVec
	SessionsActive  prometheus.Gauge
}

// New registers and returns a Registry on reg (use prometheus.NewRegistry
// in tests to avoid colliding with the global default registerer).
func New(reg prometheus.Registerer) *Registry {
	f := promauto.With(reg)
	return &Registry{
		PoolIdle: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "browsercore", Subsystem: "pool", Name: "idle_handles",
			Help: "Number of idle browser handles in the pool.",
		}),
		PoolBound: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "browsercore", Subsystem: "pool", Name: "bound_handles",
			Help: "Number of browser handles currently bound to a session.",
		}),
		PerceptionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "browsercore", Subsystem: "perception", Name: "latency_seconds",
			Help:    "Perception pipeline latency by mode.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"mode"}),
		ToolOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "browsercore", Subsystem: "tool", Name: "outcomes_total",
			Help: "Tool execution outcomes by tool name and result.",
		}, []string{"tool", "outcome"}),
		ToolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "browsercore", Subsystem: "tool", Name: "duration_seconds",
			Help:    "Tool execution duration by tool name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "browsercore", Subsystem: "cache", Name: "hits_total",
			Help: "Unified cache hits.",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "browsercore", Subsystem: "cache", Name: "misses_total",
			Help: "Unified cache misses.",
		}),
		CircuitOpen: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "browsercore", Subsystem: "tool", Name: "circuit_open",
			Help: "1 when a tool's circuit breaker is open, 0 otherwise.",
		}, []string{"tool"}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "browsercore", Subsystem: "session", Name: "active",
			Help: "Number of active sessions.",
		}),
	}
}

// CacheHitRatio computes hits / (hits + misses), returning 0 when no
// samples have been recorded yet.
func (r *Registry) CacheHitRatio() float64 {
	hits := getCounterValue(r.CacheHits)
	misses := getCounterValue(r.CacheMisses)
	total := hits + misses
	if total == 0 {
		return 0
	}
	return hits / total
}

func getCounterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	if m.Counter == nil {
		return 0
	}
	return m.Counter.GetValue()
}
