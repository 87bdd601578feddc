package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"browsercore/internal/advisor"
	"browsercore/internal/cache"
	"browsercore/internal/config"
	"browsercore/internal/coordinator"
	"browsercore/internal/coreapi"
	"browsercore/internal/corelog"
	"browsercore/internal/coretypes"
	"browsercore/internal/diagnostics"
	"browsercore/internal/events"
	"browsercore/internal/mangle"
	"browsercore/internal/mcpfront"
	"browsercore/internal/metrics"
	"browsercore/internal/perception"
	"browsercore/internal/pool"
	"browsercore/internal/retry"
	"browsercore/internal/session"
	"browsercore/internal/tools"
)

func main() {
	configPath := flag.String("config", "", "Path to the browsercore config file (overrides workspace config)")
	ssePort := flag.Int("sse-port", 0, "Optional SSE port override (falls back to config)")
	noWorkspace := flag.Bool("no-workspace", false, "Disable .browsercore/ workspace discovery")
	workspaceDir := flag.String("workspace-dir", "", "Explicit workspace root (skip walk-up discovery)")
	initWorkspace := flag.Bool("init-workspace", false, "Create .browsercore/ template in current directory and exit")
	flag.Parse()

	if *initWorkspace {
		root := "."
		if *workspaceDir != "" {
			root = *workspaceDir
		}
		if err := config.InitWorkspace(root); err != nil {
			log.Fatalf("failed to initialize workspace: %v", err)
		}
		log.Printf("created .browsercore/ workspace in %s", root)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := config.WorkspaceOptions{
		Disable:     *noWorkspace,
		ExplicitDir: *workspaceDir,
	}

	cfg, wsDir, err := config.LoadWithWorkspace(*configPath, opts)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *ssePort != 0 {
		cfg.MCP.SSEPort = *ssePort
	}

	// Redirect logging to file for stdio mode, since stderr interferes
	// with the MCP protocol frames on stdout/stdin.
	redirect := ""
	if cfg.MCP.SSEPort == 0 {
		redirect = cfg.Server.LogFile
	}
	logger, err := corelog.New(cfg.Server.LogLevel, redirect)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if wsDir != "" {
		logger.Info("using workspace config", zap.String("workspace_dir", wsDir))
	}

	mangleEngine, err := mangle.NewEngine(cfg.Mangle, logger.Named("mangle"))
	if err != nil {
		log.Fatalf("failed to initialize mangle engine: %v", err)
	}

	browserPool := pool.New(cfg.Pool, cfg.Browser, logger.Named("pool"))
	traceDir := filepath.Dir(cfg.Browser.SessionStore)
	if traceDir == "" {
		traceDir = "."
	}
	sessions := session.New(browserPool, traceDir, cfg.Session.DecisionTraceSize, mangleEngine, cfg.Browser.EnableNetworkIngestion, logger.Named("session"))

	if cfg.Browser.AutoStart {
		if err := browserPool.Warm(ctx); err != nil {
			log.Fatalf("failed to warm browser pool: %v", err)
		}
	} else {
		logger.Info("browser auto-start disabled; handles launch lazily on first checkout")
	}

	bus := events.New(1024, logger.Named("events"))

	unifiedCache, err := cache.New(cfg.Cache.InProcessSize, cfg.Cache.TTL(), nil)
	if err != nil {
		log.Fatalf("failed to initialize cache: %v", err)
	}

	var adv advisor.Advisor = advisor.Noop{}
	if cfg.Advisor.Enable {
		adv = advisor.NewAnthropic(cfg.Advisor.Model)
	}

	perceptionPipeline := perception.New(sessions, unifiedCache, mangleEngine, adv, cfg.Perception, logger.Named("perception"))

	retryEngine := retry.New(cfg.Tool.DefaultRetryCount, cfg.Tool.BreakerThreshold, cfg.Tool.Cooldown(), logger.Named("retry"))
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
		tools.ToolPolicy{
			DefaultRetries:  cfg.Tool.DefaultRetryCount,
			DefaultTimeout:  cfg.Tool.Timeout(),
			VerifyByDefault: cfg.Tool.VerifyByDefault,
		},
		logger.Named("tools"),
	)

	coord := coordinator.New(browserPool, sessions, bus, unifiedCache, cfg.Pool.Liveness(), logger.Named("coordinator"))
	go coord.Run(ctx)

	var metricsRegistry *metrics.Registry
	if cfg.Metrics.Enable {
		reg := prometheus.NewRegistry()
		metricsRegistry = metrics.New(reg)
		go serveMetrics(ctx, cfg.Metrics.Addr, cfg.Metrics.Path, reg, logger.Named("metrics"))
	}

	engine := coreapi.New(browserPool, sessions, perceptionPipeline, toolRegistry, coord, bus, metricsRegistry, cfg.Browser, logger.Named("engine"))

	correlator := diagnostics.New(cfg.Docker, mangleEngine, logger.Named("diagnostics"))

	mcpSrv := mcpfront.NewServer(cfg, engine, logger.Named("mcp"), correlator)

	var startErr error
	if cfg.MCP.SSEPort > 0 {
		logger.Info("starting browsercore MCP SSE server", zap.Int("port", cfg.MCP.SSEPort))
		startErr = mcpSrv.StartSSE(ctx, cfg.MCP.SSEPort)
	} else {
		logger.Info("starting browsercore MCP stdio server")
		startErr = mcpSrv.Start(ctx)
	}

	browserPool.Shutdown()

	if startErr != nil && !errors.Is(startErr, context.Canceled) {
		log.Fatalf("server exited with error: %v", startErr)
	}
}

// serveMetrics hosts the Prometheus exporter until ctx is canceled. Run
// in its own goroutine; a failed bind is logged rather than fatal, since
// metrics are diagnostic and shouldn't take the MCP server down with them.
func serveMetrics(ctx context.Context, addr, path string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("metrics server exited", zap.Error(err))
	}
}
