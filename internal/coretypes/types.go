// Package coretypes holds the data model shared by every core package:
// browser handles, sessions, perception results, element descriptors,
// tool calls/results, cache entries, and bus events.
package coretypes

import "time"

// HandleState is the lifecycle state of a pooled browser instance.
type HandleState string

const (
	HandleIdle      HandleState = "idle"
	HandleBound     HandleState = "bound"
	HandleCondemned HandleState = "condemned"
)

// PerceptionMode selects which layer of the perception pipeline a caller
// wants. Lightning is never requested directly: it is always embedded as
// the first phase of Quick/Standard/Deep.
type PerceptionMode string

const (
	ModeLightning PerceptionMode = "lightning"
	ModeQuick     PerceptionMode = "quick"
	ModeStandard  PerceptionMode = "standard"
	ModeDeep      PerceptionMode = "deep"
	ModeAdaptive  PerceptionMode = "adaptive"
)

// ElementDescriptor is a stable, re-resolvable reference to a DOM element
// surfaced by the perception pipeline or returned by a locator strategy.
type ElementDescriptor struct {
	Ref         string            `json:"ref"`
	Tag         string            `json:"tag"`
	Role        string            `json:"role,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	BoundingBox *BoundingBox      `json:"bounding_box,omitempty"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	Category    string            `json:"category,omitempty"`
	Disabled    bool              `json:"disabled,omitempty"`
}

// BoundingBox is a viewport-relative element rectangle.
type BoundingBox struct {
	X, Y, Width, Height float64
}

// Point is a viewport-relative pixel coordinate.
type Point struct {
	X, Y float64
}

// LocatorQuery carries every locator strategy a tool call can supply for
// a single target element. Strategies are independently settable and
// tried in priority order by the locator package, so a caller can give a
// CSS selector as the primary strategy and a text match as a fallback in
// the same call.
type LocatorQuery struct {
	Ref         string  `json:"ref,omitempty"`
	Selector    string  `json:"selector,omitempty"`
	XPath       string  `json:"xpath,omitempty"`
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name,omitempty"`
	Placeholder string  `json:"placeholder,omitempty"`
	Role        string  `json:"role,omitempty"`
	Text        string  `json:"text,omitempty"`
	Coordinate  *Point  `json:"coordinate,omitempty"`
	Phrase      string  `json:"phrase,omitempty"`
}

// Empty reports whether the query carries no locator strategy at all.
func (q LocatorQuery) Empty() bool {
	return q.Ref == "" && q.Selector == "" && q.XPath == "" && q.ID == "" &&
		q.Name == "" && q.Placeholder == "" && q.Role == "" && q.Text == "" &&
		q.Coordinate == nil && q.Phrase == ""
}

// PerceptionResult is the unified output of every perception stage. Lower
// stages populate fewer fields; Deep populates all of them.
type PerceptionResult struct {
	SessionID         string              `json:"session_id"`
	Mode              PerceptionMode      `json:"mode"`
	URL               string              `json:"url"`
	Title             string              `json:"title,omitempty"`
	ReadyState        string              `json:"ready_state,omitempty"`
	Elements          []ElementDescriptor `json:"elements,omitempty"`
	HiddenRegions     []ElementDescriptor `json:"hidden_regions,omitempty"`
	Screenshot        []byte              `json:"-"`
	DOMHash           string              `json:"dom_hash,omitempty"`
	TakenAt           time.Time           `json:"taken_at"`
	Latency           time.Duration       `json:"latency"`
	FromCache         bool                `json:"from_cache"`
	TimeoutDegraded   bool                `json:"timeout_degraded,omitempty"`
	DecisionContext   *DecisionContext    `json:"decision_context,omitempty"`
	ProcessingMetrics ProcessingMetrics   `json:"processing_metrics"`
}

// DecisionContext records why the adaptive mode selector landed on the
// mode it did. Populated only when perception.tracing is "on"; nil
// otherwise so untraced callers don't pay for bindings they never read.
type DecisionContext struct {
	Reason         string                 `json:"reason"`
	Confidence     float64                `json:"confidence,omitempty"`
	RecentFailures int                    `json:"recent_failures,omitempty"`
	Bindings       map[string]interface{} `json:"bindings,omitempty"`
}

// ProcessingMetrics breaks a Perceive call down by pipeline stage, so a
// caller can tell which stage a degraded or slow result came from.
type ProcessingMetrics struct {
	StageDurations map[PerceptionMode]time.Duration `json:"stage_durations,omitempty"`
	DegradedStage  PerceptionMode                    `json:"degraded_stage,omitempty"`
}

// ToolCall is a single invocation request dispatched through the tool
// registry.
type ToolCall struct {
	SessionID string                 `json:"session_id"`
	Tool      string                 `json:"tool"`
	Args      map[string]interface{} `json:"args"`
	Options   ExecutionOptions       `json:"options"`
}

// ExecutionOptions controls per-call retry and verification behavior.
type ExecutionOptions struct {
	RetryCount     int           `json:"retry_count,omitempty"`
	Timeout        time.Duration `json:"timeout,omitempty"`
	Verify         bool          `json:"verify"`
	PerceptionMode PerceptionMode `json:"perception_mode,omitempty"`
}

// ToolResult is the unified outcome of a tool invocation.
type ToolResult struct {
	SessionID string                 `json:"session_id"`
	Tool      string                 `json:"tool"`
	Success   bool                   `json:"success"`
	Output    map[string]interface{} `json:"output,omitempty"`
	Verified  bool                   `json:"verified"`
	Attempts  int                    `json:"attempts"`
	Err       error                  `json:"-"`
	StartedAt time.Time              `json:"started_at"`
	Duration  time.Duration          `json:"duration"`
}

// CacheEntry is a unified-cache record. Tags drive pattern invalidation
// (e.g. invalidating every entry tagged with a session id on close).
type CacheEntry struct {
	Key       string
	Value     interface{}
	Tags      []string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionMemory is free-form scratch state a session accumulates across
// tool calls (e.g. remember_value / recall_value), distinct from the
// decision-trace log.
type SessionMemory struct {
	Values map[string]interface{}
}

// EventKind enumerates the coordination bus's topics.
type EventKind string

const (
	EventNavigationCompleted EventKind = "navigation_completed"
	EventSessionCreated      EventKind = "session_created"
	EventSessionClosed       EventKind = "session_closed"
	EventHandleCondemned     EventKind = "handle_condemned"
	EventToolExecuted        EventKind = "tool_executed"
	EventPerceptionCompleted EventKind = "perception_completed"
	EventCircuitOpened       EventKind = "circuit_opened"
)

// Event is a single coordination-bus message.
type Event struct {
	ID        string                 `json:"id"`
	Kind      EventKind              `json:"kind"`
	SessionID string                 `json:"session_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	At        time.Time              `json:"at"`
}

// HealthReport is the external snapshot returned by SystemHealth.
type HealthReport struct {
	PoolSize       int            `json:"pool_size"`
	IdleHandles    int            `json:"idle_handles"`
	BoundHandles   int            `json:"bound_handles"`
	ActiveSessions int            `json:"active_sessions"`
	OpenCircuits   []string       `json:"open_circuits,omitempty"`
	CacheHitRatio  float64        `json:"cache_hit_ratio"`
	Uptime         time.Duration  `json:"uptime"`
}
