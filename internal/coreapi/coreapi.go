// Package coreapi is the engine's public façade: the fixed surface
// everything else (an MCP front door, a CLI, a future HTTP handler)
// calls into. It exposes the engine's session, perception, and tool
// operations and nothing else — no package outside this one should
// reach into pool, session, perception, or tools directly.
package coreapi

import (
	"context"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"go.uber.org/zap"

	"browsercore/internal/config"
	"browsercore/internal/coordinator"
	"browsercore/internal/coreerr"
	"browsercore/internal/coretypes"
	"browsercore/internal/events"
	"browsercore/internal/metrics"
	"browsercore/internal/perception"
	"browsercore/internal/pool"
	"browsercore/internal/session"
	"browsercore/internal/tools"
)

// Engine composes every core package behind the façade's eight
// operations.
type Engine struct {
	pool        *pool.Pool
	sessions    *session.Manager
	perception  *perception.Pipeline
	tools       *tools.Registry
	coordinator *coordinator.Coordinator
	bus         *events.Bus
	metrics     *metrics.Registry
	bcfg        config.BrowserConfig
	log         *zap.Logger

	startedAt time.Time
}

// New assembles an Engine from its already-constructed collaborators.
func New(
	p *pool.Pool,
	sessions *session.Manager,
	perc *perception.Pipeline,
	reg *tools.Registry,
	coord *coordinator.Coordinator,
	bus *events.Bus,
	m *metrics.Registry,
	bcfg config.BrowserConfig,
	log *zap.Logger,
) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		pool:        p,
		sessions:    sessions,
		perception:  perc,
		tools:       reg,
		coordinator: coord,
		bus:         bus,
		metrics:     m,
		bcfg:        bcfg,
		log:         log,
		startedAt:   time.Now(),
	}
}

// CreateSession checks out a pooled browser instance, opens url, and
// returns the new session's metadata.
func (e *Engine) CreateSession(ctx context.Context, targetURL string) (session.Session, error) {
	s, err := e.sessions.Create(ctx, targetURL, e.bcfg.Stealth, func(h *pool.Handle, u string) (*rod.Page, error) {
		return h.StealthPage(e.bcfg, u)
	})
	if err != nil {
		return session.Session{}, err
	}
	e.bus.Publish(coretypes.Event{Kind: coretypes.EventSessionCreated, SessionID: s.ID, Data: map[string]interface{}{"url": targetURL}})
	if e.metrics != nil {
		e.metrics.SessionsActive.Set(float64(e.sessions.Count()))
	}
	return *s, nil
}

// TerminateSession closes a session and releases its handle back to
// the pool (or condemns it, when handleBad is set).
func (e *Engine) TerminateSession(ctx context.Context, sessionID string, handleBad bool) error {
	err := e.coordinator.CloseSession(sessionID, handleBad)
	if e.metrics != nil {
		e.metrics.SessionsActive.Set(float64(e.sessions.Count()))
	}
	return err
}

// Perceive runs the perception pipeline at the requested mode (or lets
// it resolve ModeAdaptive itself) for an existing session.
func (e *Engine) Perceive(ctx context.Context, sessionID string, mode coretypes.PerceptionMode) (coretypes.PerceptionResult, error) {
	result, err := e.perception.Perceive(ctx, sessionID, mode)
	if err == nil {
		e.bus.Publish(coretypes.Event{Kind: coretypes.EventPerceptionCompleted, SessionID: sessionID, Data: map[string]interface{}{"mode": string(result.Mode)}})
		if e.metrics != nil {
			e.metrics.PerceptionLatency.WithLabelValues(string(result.Mode)).Observe(result.Latency.Seconds())
		}
	}
	return result, err
}

// NavigateAndPerceive navigates an existing session to a new URL and
// immediately runs perception at the requested mode, publishing a
// navigation_completed event other components invalidate caches on.
func (e *Engine) NavigateAndPerceive(ctx context.Context, sessionID, targetURL string, mode coretypes.PerceptionMode) (coretypes.PerceptionResult, error) {
	navResult := e.tools.Execute(ctx, coretypes.ToolCall{
		SessionID: sessionID,
		Tool:      "navigate_to_url",
		Args:      map[string]interface{}{"url": targetURL},
		Options:   coretypes.ExecutionOptions{Verify: true},
	})
	if !navResult.Success {
		return coretypes.PerceptionResult{}, coreerr.Wrap(coreerr.NavigationError, "navigate_to_url failed", navResult.Err)
	}

	// navigation_completed is published by the tool registry itself for
	// every successful navigate_to_url call, including this one.

	return e.Perceive(ctx, sessionID, mode)
}

// ExecuteTool dispatches a single tool call through the registry.
func (e *Engine) ExecuteTool(ctx context.Context, call coretypes.ToolCall) coretypes.ToolResult {
	result := e.tools.Execute(ctx, call)
	if e.metrics != nil {
		outcome := "success"
		if !result.Success {
			outcome = "failure"
		}
		e.metrics.ToolOutcomes.WithLabelValues(call.Tool, outcome).Inc()
		e.metrics.ToolDuration.WithLabelValues(call.Tool).Observe(result.Duration.Seconds())
	}
	return result
}

// ExecuteToolsBatch runs a sequence of dependent tool calls against the
// same session, stopping at the first failure.
func (e *Engine) ExecuteToolsBatch(ctx context.Context, calls []coretypes.ToolCall) []coretypes.ToolResult {
	results := e.tools.ExecuteBatch(ctx, calls)
	if e.metrics != nil {
		for i, result := range results {
			outcome := "success"
			if !result.Success {
				outcome = "failure"
			}
			e.metrics.ToolOutcomes.WithLabelValues(calls[i].Tool, outcome).Inc()
		}
	}
	return results
}

// SystemHealth reports pool occupancy, active session count, cache hit
// ratio, and process uptime.
func (e *Engine) SystemHealth() coretypes.HealthReport {
	report := e.coordinator.Health()
	report.Uptime = time.Since(e.startedAt)
	return report
}

// Metrics returns the Prometheus registry backing the engine's
// /metrics endpoint, or nil when metrics are disabled.
func (e *Engine) Metrics() *metrics.Registry { return e.metrics }

// originTag derives the cache-invalidation tag for a navigated-to URL, the
// same "origin:<scheme>://<host>" form the tool registry publishes with
// navigation events. It returns "" for a URL with no host.
func originTag(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return "origin:" + u.Scheme + "://" + u.Host
}
