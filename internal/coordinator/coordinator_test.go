package coordinator

import (
	"testing"
	"time"

	"browsercore/internal/cache"
	"browsercore/internal/config"
	"browsercore/internal/coretypes"
	"browsercore/internal/events"
	"browsercore/internal/pool"
	"browsercore/internal/session"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *cache.Cache) {
	t.Helper()
	p := pool.New(config.PoolConfig{MinSize: 0, MaxSize: 1}, config.BrowserConfig{}, nil)
	sessions := session.New(p, t.TempDir(), 3, nil, false, nil)
	bus := events.New(16, nil)
	c, err := cache.New(16, time.Minute, nil)
	if err != nil {
		t.Fatalf("unexpected cache error: %v", err)
	}
	return New(p, sessions, bus, c, time.Minute, nil), c
}

func TestHandleInvalidatesCacheOnNavigationCompleted(t *testing.T) {
	co, c := newTestCoordinator(t)
	c.Set("origin:https://example.com:perception", "stale", []string{"origin:https://example.com"}, 0)

	co.handle(coretypes.Event{Kind: coretypes.EventNavigationCompleted, SessionID: "s1", Data: map[string]interface{}{"origin": "origin:https://example.com"}})

	if _, ok := c.Get("origin:https://example.com:perception"); ok {
		t.Fatal("expected entry to be invalidated by origin tag")
	}
}

func TestHandleInvalidatesCacheOnSessionClosed(t *testing.T) {
	co, c := newTestCoordinator(t)
	c.Set("k", "v", []string{"session:s1"}, 0)

	co.handle(coretypes.Event{Kind: coretypes.EventSessionClosed, SessionID: "s1"})

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected entry to be invalidated on session close")
	}
}

func TestHealthReportsEmptyPool(t *testing.T) {
	co, _ := newTestCoordinator(t)
	report := co.Health()
	if report.PoolSize != 0 || report.ActiveSessions != 0 {
		t.Fatalf("expected empty pool/session counts, got %+v", report)
	}
}
