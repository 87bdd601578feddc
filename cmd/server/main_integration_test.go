package main

import (
	"context"
	"testing"
	"time"

	"browsercore/internal/cache"
	"browsercore/internal/config"
	"browsercore/internal/coordinator"
	"browsercore/internal/coreapi"
	"browsercore/internal/coretypes"
	"browsercore/internal/events"
	"browsercore/internal/mangle"
	"browsercore/internal/mcpfront"
	"browsercore/internal/perception"
	"browsercore/internal/pool"
	"browsercore/internal/retry"
	"browsercore/internal/session"
	"browsercore/internal/tools"
)

// TestCompositionRootWiring exercises the same constructor sequence as
// main(), minus an actual Chrome launch (MinSize/MaxSize 0 keeps the pool
// from dialing out), to catch wiring mistakes between packages that unit
// tests in each package can't see.
func TestCompositionRootWiring(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Pool.MinSize = 0
	cfg.Pool.MaxSize = 0
	cfg.Browser.SessionStore = t.TempDir() + "/sessions.json"
	cfg.Mangle.SchemaPath = "../../schemas/decisions.mg"
	cfg.Advisor.Enable = false
	cfg.Metrics.Enable = false

	mangleEngine, err := mangle.NewEngine(cfg.Mangle, nil)
	if err != nil {
		t.Fatalf("mangle.NewEngine: %v", err)
	}
	if !mangleEngine.Ready() {
		t.Fatal("expected mangle engine to be ready after schema load")
	}

	browserPool := pool.New(cfg.Pool, cfg.Browser, nil)
	sessions := session.New(browserPool, t.TempDir(), cfg.Session.DecisionTraceSize, mangleEngine, cfg.Browser.EnableNetworkIngestion, nil)
	bus := events.New(64, nil)

	unifiedCache, err := cache.New(cfg.Cache.InProcessSize, cfg.Cache.TTL(), nil)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}

	perceptionPipeline := perception.New(sessions, unifiedCache, mangleEngine, nil, cfg.Perception, nil)
	retryEngine := retry.New(cfg.Tool.DefaultRetryCount, cfg.Tool.BreakerThreshold, cfg.Tool.Cooldown(), nil)
	toolRegistry := tools.New(
		tools.Deps{
			Sessions: sessions,
			Engine:   mangleEngine,
			Reperceive: func(ctx context.Context, sessionID string) error {
				_, err := perceptionPipeline.Perceive(ctx, sessionID, coretypes.ModeStandard)
				return err
			},
		},
		retryEngine,
		bus,
		tools.ToolPolicy{DefaultRetries: cfg.Tool.DefaultRetryCount, DefaultTimeout: cfg.Tool.Timeout(), VerifyByDefault: cfg.Tool.VerifyByDefault},
		nil,
	)

	coord := coordinator.New(browserPool, sessions, bus, unifiedCache, cfg.Pool.Liveness(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go coord.Run(ctx)

	engine := coreapi.New(browserPool, sessions, perceptionPipeline, toolRegistry, coord, bus, nil, cfg.Browser, nil)

	if got := engine.SystemHealth(); got.ActiveSessions != 0 {
		t.Errorf("expected 0 active sessions on a fresh engine, got %d", got.ActiveSessions)
	}

	mcpSrv := mcpfront.NewServer(cfg, engine, nil, nil)
	if mcpSrv == nil {
		t.Fatal("expected non-nil MCP server")
	}

	<-ctx.Done()
	browserPool.Shutdown()
}
