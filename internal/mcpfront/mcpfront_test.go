package mcpfront

import (
	"testing"
	"time"

	"browsercore/internal/cache"
	"browsercore/internal/config"
	"browsercore/internal/coordinator"
	"browsercore/internal/coreapi"
	"browsercore/internal/coretypes"
	"browsercore/internal/diagnostics"
	"browsercore/internal/events"
	"browsercore/internal/mangle"
	"browsercore/internal/perception"
	"browsercore/internal/pool"
	"browsercore/internal/retry"
	"browsercore/internal/session"
	"browsercore/internal/tools"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	p := pool.New(config.PoolConfig{MinSize: 0, MaxSize: 1}, config.BrowserConfig{}, nil)
	sessions := session.New(p, t.TempDir(), 3, nil, false, nil)
	bus := events.New(16, nil)
	c, err := cache.New(16, time.Minute, nil)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	var eng *mangle.Engine
	perc := perception.New(sessions, c, eng, nil, config.PerceptionConfig{}, nil)
	retryEngine := retry.New(0, 5, time.Second, nil)
	reg := tools.New(tools.Deps{Sessions: sessions}, retryEngine, bus, tools.ToolPolicy{DefaultRetries: 0, DefaultTimeout: time.Second}, nil)
	coord := coordinator.New(p, sessions, bus, c, time.Minute, nil)
	engine := coreapi.New(p, sessions, perc, reg, coord, bus, nil, config.BrowserConfig{}, nil)

	cfg := config.DefaultConfig()
	return NewServer(cfg, engine, nil, nil)
}

func TestNewServerRegistersSessionPerceptionAndActionTools(t *testing.T) {
	s := newTestServer(t)
	names := s.ToolNames()

	want := []string{
		"create_session", "terminate_session", "system_health",
		"perceive", "navigate_and_perceive",
		"navigate_to_url", "scroll_page", "click", "type_text", "select_option",
		"wait_for_element", "wait_for_condition", "get_element_info", "take_screenshot",
		"retrieve_history", "report_insight", "complete_task",
		"execute_tools_batch",
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, w := range want {
		if !seen[w] {
			t.Errorf("expected tool %q to be registered", w)
		}
	}
}

func TestNewServerRegistersDiagnosticToolWhenCorrelatorEnabled(t *testing.T) {
	eng, err := mangle.NewEngine(config.MangleConfig{Enable: true, FactBufferLimit: 16}, nil)
	if err != nil {
		t.Fatalf("mangle.NewEngine: %v", err)
	}
	corr := diagnostics.New(config.DockerConfig{Enabled: true, Containers: []string{"backend"}, LogWindow: "30s"}, eng, nil)

	p := pool.New(config.PoolConfig{MinSize: 0, MaxSize: 1}, config.BrowserConfig{}, nil)
	sessions := session.New(p, t.TempDir(), 3, nil, false, nil)
	bus := events.New(16, nil)
	c, err := cache.New(16, time.Minute, nil)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	perc := perception.New(sessions, c, eng, nil, config.PerceptionConfig{}, nil)
	retryEngine := retry.New(0, 5, time.Second, nil)
	reg := tools.New(tools.Deps{Sessions: sessions}, retryEngine, bus, tools.ToolPolicy{DefaultRetries: 0, DefaultTimeout: time.Second}, nil)
	coord := coordinator.New(p, sessions, bus, c, time.Minute, nil)
	engine := coreapi.New(p, sessions, perc, reg, coord, bus, nil, config.BrowserConfig{}, nil)

	s := NewServer(config.DefaultConfig(), engine, nil, corr)
	names := s.ToolNames()
	found := false
	for _, n := range names {
		if n == "correlate_server_errors" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected correlate_server_errors to be registered when a correlator is supplied, got %v", names)
	}
}

func TestModeArgDefaultsToAdaptive(t *testing.T) {
	if got := modeArg(map[string]interface{}{}); got != coretypes.ModeAdaptive {
		t.Fatalf("expected adaptive default, got %v", got)
	}
	if got := modeArg(map[string]interface{}{"mode": "deep"}); got != coretypes.ModeDeep {
		t.Fatalf("expected deep mode passthrough, got %v", got)
	}
}

func TestStringArgMissingKeyReturnsEmpty(t *testing.T) {
	if got := stringArg(map[string]interface{}{}, "session_id"); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestArgStringHandlesNonString(t *testing.T) {
	if got := argString(42); got != "" {
		t.Fatalf("expected empty string for non-string value, got %q", got)
	}
}

func TestAsIntParsesFloatAndString(t *testing.T) {
	if got := asInt(float64(7)); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if got := asInt("12"); got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
	if got := asInt(nil); got != 0 {
		t.Fatalf("expected 0 for nil, got %d", got)
	}
}
