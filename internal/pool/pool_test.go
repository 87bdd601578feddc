package pool

import (
	"testing"

	"browsercore/internal/config"
	"browsercore/internal/coretypes"
)

func TestHandleStateTransitions(t *testing.T) {
	h := &Handle{ID: "h1", State: coretypes.HandleIdle}

	if got := h.getState(); got != coretypes.HandleIdle {
		t.Fatalf("expected idle, got %v", got)
	}

	h.setState(coretypes.HandleBound)
	if got := h.getState(); got != coretypes.HandleBound {
		t.Fatalf("expected bound, got %v", got)
	}

	h.setState(coretypes.HandleCondemned)
	if got := h.getState(); got != coretypes.HandleCondemned {
		t.Fatalf("expected condemned, got %v", got)
	}
}

func TestResolveControlURLRequiresDebuggerOrLaunch(t *testing.T) {
	p := New(config.DefaultConfig().Pool, config.BrowserConfig{}, nil)
	if _, err := p.resolveControlURL(); err == nil {
		t.Fatal("expected error when neither debugger_url nor launch is set")
	}
}

func TestResolveControlURLUsesDebuggerURL(t *testing.T) {
	p := New(config.DefaultConfig().Pool, config.BrowserConfig{DebuggerURL: "ws://localhost:9222"}, nil)
	url, err := p.resolveControlURL()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "ws://localhost:9222" {
		t.Fatalf("expected debugger url passthrough, got %q", url)
	}
}

func TestStatsCountsByState(t *testing.T) {
	p := New(config.DefaultConfig().Pool, config.BrowserConfig{}, nil)
	p.handles["a"] = &Handle{ID: "a", State: coretypes.HandleIdle}
	p.handles["b"] = &Handle{ID: "b", State: coretypes.HandleBound}
	p.handles["c"] = &Handle{ID: "c", State: coretypes.HandleBound}

	idle, bound := p.Stats()
	if idle != 1 || bound != 2 {
		t.Fatalf("expected 1 idle / 2 bound, got %d/%d", idle, bound)
	}
}
