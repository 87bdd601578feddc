// Package mcpfront is the thin MCP-protocol adapter: it translates
// mark3labs/mcp-go tool calls into coreapi façade calls and back,
// carrying no core logic of its own, the way the engine this package is
// adapted from kept its MCP server a dispatch table over a session
// manager and fact engine.
package mcpfront

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"browsercore/internal/config"
	"browsercore/internal/coreapi"
	"browsercore/internal/coretypes"
	"browsercore/internal/diagnostics"
)

// Server exposes the engine's session lifecycle, perception pipeline,
// and twelve-tool registry over the Model Context Protocol.
type Server struct {
	cfg        config.Config
	engine     *coreapi.Engine
	correlator *diagnostics.Correlator
	log        *zap.Logger
	mcpServer  *mcpserver.MCPServer
	toolNames  []string
}

// NewServer builds the MCP server and registers every front-door
// operation as an MCP tool. correlator may be nil when Docker log
// integration is disabled in configuration, in which case
// correlate_server_errors is not registered.
func NewServer(cfg config.Config, engine *coreapi.Engine, log *zap.Logger, correlator *diagnostics.Correlator) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	mcpSrv := mcpserver.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithRecovery(),
	)

	s := &Server{cfg: cfg, engine: engine, correlator: correlator, log: log, mcpServer: mcpSrv}
	s.registerSessionTools()
	s.registerPerceptionTools()
	s.registerActionTools()
	s.registerDiagnosticResources()
	if s.correlator.Enabled() {
		s.registerDiagnosticTools()
	}
	return s
}

// Start runs the stdio transport (the default for CLI-hosted agents).
func (s *Server) Start(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// StartSSE hosts the server over HTTP using SSE endpoints, shutting
// down gracefully when ctx is canceled.
func (s *Server) StartSSE(ctx context.Context, port int) error {
	sseServer := mcpserver.NewSSEServer(s.mcpServer, mcpserver.WithBaseURL("http://localhost:"+strconv.Itoa(port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{Addr: ":" + strconv.Itoa(port), Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("mcp sse server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) addTool(name, description string, schema map[string]interface{}, handler mcpserver.ToolHandlerFunc) {
	raw, err := json.Marshal(schema)
	if err != nil {
		raw = json.RawMessage(`{"type":"object"}`)
	}
	s.mcpServer.AddTool(mcp.NewToolWithRawSchema(name, description, raw), s.wrap(name, handler))
	s.toolNames = append(s.toolNames, name)
}

// ToolNames returns the names of every tool registered so far, for tests
// that want to assert on the front door's surface without driving a full
// MCP round trip.
func (s *Server) ToolNames() []string {
	return s.toolNames
}

// wrap adds uniform error-to-MCP-result translation around a handler so
// individual registrations don't repeat it.
func (s *Server) wrap(name string, handler mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := handler(ctx, request)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf("tool %s failed: %v", name, err))},
				IsError: true,
			}, nil
		}
		return result, nil
	}
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(string(payload))}}, nil
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func modeArg(args map[string]interface{}) coretypes.PerceptionMode {
	mode := stringArg(args, "mode")
	if mode == "" {
		return coretypes.ModeAdaptive
	}
	return coretypes.PerceptionMode(mode)
}
