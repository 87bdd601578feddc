// Package tools implements the canonical twelve-tool action registry
// across five categories (Navigation, Interaction, Synchronization,
// Memory, Meta-cognitive). Every tool goes through the same dispatch
// path: retry/backoff with a per-tool circuit breaker, an optional
// post-action verification pass, and an event-bus notification, the way
// the teacher's fine-grained MCP tools each wired into a shared engine
// and session manager.
package tools

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"go.uber.org/zap"

	"browsercore/internal/coreerr"
	"browsercore/internal/coretypes"
	"browsercore/internal/events"
	"browsercore/internal/mangle"
	"browsercore/internal/retry"
	"browsercore/internal/session"
)

// pageHandle bundles a session's live page with its element registry so
// tools can resolve refs without reaching back into the session manager.
type pageHandle struct {
	page     *rod.Page
	registry *session.ElementRegistry
}

// Deps bundles the collaborators a Tool needs to do its work. Held by
// value in the registry and passed through by pointer to every tool.
type Deps struct {
	Sessions *session.Manager
	Engine   *mangle.Engine // optional, nil-safe
	// Reperceive refreshes a session's element registry after a
	// Kind.Recoverable failure (stale ref, unmet precondition), so the
	// retry engine's recovery pass has something to re-locate against.
	// Optional; nil disables the re-perceive step but retries still run.
	Reperceive func(ctx context.Context, sessionID string) error
}

// Tool is a single entry in the twelve-tool action registry.
type Tool interface {
	Name() string
	Category() string
	Run(ctx context.Context, deps *Deps, call coretypes.ToolCall) (map[string]interface{}, error)
}

// Verifiable is implemented by tools whose claimed effect can be checked
// after the fact; the registry runs Verify through the retry engine's
// verification pass when call.Options.Verify is set.
type Verifiable interface {
	Verify(ctx context.Context, deps *Deps, call coretypes.ToolCall, output map[string]interface{}) error
}

// Registry dispatches ToolCalls to registered Tools through the shared
// retry engine, emitting a tool_executed event once per call.
type Registry struct {
	deps  Deps
	tools map[string]Tool
	retry *retry.Engine
	bus   *events.Bus
	cfg   ToolPolicy
	log   *zap.Logger
}

// ToolPolicy carries the default retry/verification policy for calls
// that don't override it.
type ToolPolicy struct {
	DefaultRetries  int
	DefaultTimeout  time.Duration
	VerifyByDefault bool
}

// New builds a Registry with every canonical tool pre-registered.
func New(deps Deps, retryEngine *retry.Engine, bus *events.Bus, policy ToolPolicy, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		deps:  deps,
		tools: make(map[string]Tool),
		retry: retryEngine,
		bus:   bus,
		cfg:   policy,
		log:   log,
	}
	for _, t := range defaultTools(bus) {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool in the registry.
func (r *Registry) Register(t Tool) { r.tools[t.Name()] = t }

// Names lists every registered tool name.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

// Describe groups every registered tool name by category, for the
// front-door adapter's tool listing.
func (r *Registry) Describe() map[string][]string {
	out := make(map[string][]string)
	for name, t := range r.tools {
		out[t.Category()] = append(out[t.Category()], name)
	}
	return out
}

// Execute dispatches a single ToolCall through retry/backoff and
// optional verification, returning a unified ToolResult.
func (r *Registry) Execute(ctx context.Context, call coretypes.ToolCall) coretypes.ToolResult {
	started := time.Now()
	result := coretypes.ToolResult{SessionID: call.SessionID, Tool: call.Tool, StartedAt: started}

	tool, ok := r.tools[call.Tool]
	if !ok {
		result.Err = coreerr.New(coreerr.InvalidInput, fmt.Sprintf("unknown tool: %s", call.Tool))
		result.Duration = time.Since(started)
		return result
	}

	timeout := call.Options.Timeout
	if timeout <= 0 {
		timeout = r.cfg.DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	retries := call.Options.RetryCount
	if retries <= 0 {
		retries = r.cfg.DefaultRetries
	}

	verify := call.Options.Verify || r.cfg.VerifyByDefault
	var output map[string]interface{}

	var verifier retry.Verifier
	if verify {
		if v, ok := tool.(Verifiable); ok {
			verifier = func(ctx context.Context) error {
				return v.Verify(ctx, &r.deps, call, output)
			}
		}
	}

	var recover retry.Recoverer
	if r.deps.Reperceive != nil {
		recover = func(ctx context.Context) error {
			return r.deps.Reperceive(ctx, call.SessionID)
		}
	}

	outcome := r.retry.Do(cctx, call.Tool, retries, func(ctx context.Context) error {
		out, err := tool.Run(ctx, &r.deps, call)
		output = out
		return err
	}, verifier, recover)

	result.Output = output
	result.Attempts = outcome.Attempts
	result.Verified = outcome.Verified
	result.Err = outcome.Err
	result.Success = outcome.Err == nil
	result.Duration = time.Since(started)

	r.emit(cctx, call, result)
	return result
}

// ExecuteBatch runs every call in order against the same session
// (tools in a batch are assumed sequential and dependent, the way a
// caller chains perceive -> click -> wait_for_element).
func (r *Registry) ExecuteBatch(ctx context.Context, calls []coretypes.ToolCall) []coretypes.ToolResult {
	out := make([]coretypes.ToolResult, 0, len(calls))
	for _, call := range calls {
		res := r.Execute(ctx, call)
		out = append(out, res)
		if !res.Success {
			break
		}
	}
	return out
}

func (r *Registry) emit(ctx context.Context, call coretypes.ToolCall, result coretypes.ToolResult) {
	if r.bus != nil {
		r.bus.Publish(coretypes.Event{
			Kind:      coretypes.EventToolExecuted,
			SessionID: call.SessionID,
			Data: map[string]interface{}{
				"tool":     call.Tool,
				"success":  result.Success,
				"attempts": result.Attempts,
			},
		})
		if call.Tool == "navigate_to_url" && result.Success {
			navURL, _ := result.Output["url"].(string)
			r.bus.Publish(coretypes.Event{
				Kind:      coretypes.EventNavigationCompleted,
				SessionID: call.SessionID,
				Data:      map[string]interface{}{"url": navURL, "origin": originTag(navURL)},
			})
		}
	}
	if r.deps.Engine == nil {
		return
	}
	predicate := "tool_success"
	args := []interface{}{call.SessionID, call.Tool, result.Attempts}
	if !result.Success {
		predicate = "tool_failure"
		msg := ""
		if result.Err != nil {
			msg = result.Err.Error()
		}
		args = []interface{}{call.SessionID, call.Tool, msg}
	}
	_ = r.deps.Engine.AddFacts(ctx, []mangle.Fact{{Predicate: predicate, Args: args, Timestamp: time.Now()}})
}

func defaultTools(bus *events.Bus) []Tool {
	return []Tool{
		&NavigateToURL{},
		&ScrollPage{},
		&Click{},
		&TypeText{},
		&SelectOption{},
		&WaitForElement{},
		&WaitForCondition{Bus: bus},
		&GetElementInfo{},
		&TakeScreenshot{},
		&RetrieveHistory{Bus: bus},
		&ReportInsight{},
		&CompleteTask{},
	}
}

func argString(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argInt(args map[string]interface{}, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func argBool(args map[string]interface{}, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}

// queryFromArgs builds a LocatorQuery from a tool call's args, accepting
// either the legacy flat "ref" string or any of the independently-settable
// locator fields spec.md names (selector, xpath, id, name, placeholder,
// role, text, phrase, coordinate). A call may set more than one; locator.Resolve
// tries them in priority order and falls through on a miss.
func queryFromArgs(args map[string]interface{}) coretypes.LocatorQuery {
	q := coretypes.LocatorQuery{
		Ref:         argString(args, "ref"),
		Selector:    argString(args, "selector"),
		XPath:       argString(args, "xpath"),
		ID:          argString(args, "id"),
		Name:        argString(args, "name"),
		Placeholder: argString(args, "placeholder"),
		Role:        argString(args, "role"),
		Text:        argString(args, "text"),
		Phrase:      argString(args, "phrase"),
	}
	if coord, ok := args["coordinate"].(map[string]interface{}); ok {
		q.Coordinate = &coretypes.Point{X: floatArg(coord, "x"), Y: floatArg(coord, "y")}
	}
	return q
}

func floatArg(args map[string]interface{}, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// originTag derives the cache-invalidation tag for a navigated-to URL,
// matching the tag the perception pipeline attaches to cached results
// for the same origin.
func originTag(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return "origin:" + u.Scheme + "://" + u.Host
}

func pageFor(deps *Deps, sessionID string) (*pageHandle, error) {
	page, ok := deps.Sessions.Page(sessionID)
	if !ok {
		return nil, coreerr.New(coreerr.NotFound, fmt.Sprintf("session %s not found", sessionID))
	}
	return &pageHandle{page: page, registry: deps.Sessions.Registry(sessionID)}, nil
}
