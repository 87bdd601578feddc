package coreapi

import (
	"context"
	"testing"
	"time"

	"browsercore/internal/cache"
	"browsercore/internal/config"
	"browsercore/internal/coordinator"
	"browsercore/internal/events"
	"browsercore/internal/mangle"
	"browsercore/internal/perception"
	"browsercore/internal/pool"
	"browsercore/internal/retry"
	"browsercore/internal/session"
	"browsercore/internal/tools"
)

func newTestEngine(t *testing.T) *Engine {
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

	return New(p, sessions, perc, reg, coord, bus, nil, config.BrowserConfig{}, nil)
}

func TestOriginTagExtractsSchemeAndHost(t *testing.T) {
	got := originTag("https://example.com/page")
	want := "origin:https://example.com"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestOriginTagInvalidURLReturnsEmpty(t *testing.T) {
	if got := originTag("not a url %%"); got != "" {
		t.Fatalf("expected empty origin for unparsable url, got %q", got)
	}
}

func TestSystemHealthReflectsEmptyEngine(t *testing.T) {
	e := newTestEngine(t)
	report := e.SystemHealth()
	if report.ActiveSessions != 0 {
		t.Fatalf("expected 0 active sessions, got %d", report.ActiveSessions)
	}
	if report.Uptime <= 0 {
		t.Fatal("expected positive uptime")
	}
}

func TestMetricsReturnsNilWhenDisabled(t *testing.T) {
	e := newTestEngine(t)
	if e.Metrics() != nil {
		t.Fatal("expected nil metrics registry when none was wired")
	}
}

func TestTerminateSessionUnknownSessionReturnsError(t *testing.T) {
	e := newTestEngine(t)
	if err := e.TerminateSession(context.Background(), "missing", false); err == nil {
		t.Fatal("expected error terminating unknown session")
	}
}
