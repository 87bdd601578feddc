package mcpfront

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPerceptionTools() {
	s.addTool("perceive", "Run the layered perception pipeline (lightning/quick/standard/deep/adaptive) against a session's current page.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"session_id": map[string]interface{}{"type": "string"},
				"mode": map[string]interface{}{
					"type": "string",
					"enum": []string{"lightning", "quick", "standard", "deep", "adaptive"},
				},
			},
			"required": []string{"session_id"},
		},
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			result, err := s.engine.Perceive(ctx, stringArg(args, "session_id"), modeArg(args))
			if err != nil {
				return nil, err
			}
			return jsonResult(result)
		})

	s.addTool("navigate_and_perceive", "Navigate a session to a new URL and immediately run perception at the requested mode.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"session_id": map[string]interface{}{"type": "string"},
				"url":        map[string]interface{}{"type": "string"},
				"mode": map[string]interface{}{
					"type": "string",
					"enum": []string{"lightning", "quick", "standard", "deep", "adaptive"},
				},
			},
			"required": []string{"session_id", "url"},
		},
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			result, err := s.engine.NavigateAndPerceive(ctx, stringArg(args, "session_id"), stringArg(args, "url"), modeArg(args))
			if err != nil {
				return nil, err
			}
			return jsonResult(result)
		})
}
