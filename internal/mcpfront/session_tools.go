package mcpfront

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerSessionTools() {
	s.addTool("create_session", "Launch a new browser session at the given URL, returning its session_id.",
		map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"url": map[string]interface{}{"type": "string"}},
			"required":   []string{"url"},
		},
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			sess, err := s.engine.CreateSession(ctx, stringArg(args, "url"))
			if err != nil {
				return nil, err
			}
			return jsonResult(sess)
		})

	s.addTool("terminate_session", "Close a session and release its browser handle back to the pool.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"session_id": map[string]interface{}{"type": "string"},
				"handle_bad": map[string]interface{}{"type": "boolean"},
			},
			"required": []string{"session_id"},
		},
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			handleBad, _ := args["handle_bad"].(bool)
			if err := s.engine.TerminateSession(ctx, stringArg(args, "session_id"), handleBad); err != nil {
				return nil, err
			}
			return jsonResult(map[string]interface{}{"closed": true})
		})

	s.addTool("system_health", "Report pool occupancy, active session count, cache hit ratio, and uptime.",
		map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return jsonResult(s.engine.SystemHealth())
		})
}
