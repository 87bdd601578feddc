package mcpfront

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"browsercore/internal/coretypes"
)

const resourceMIMEJSON = "application/json"

// registerDiagnosticResources exposes read-only engine state as MCP
// resources: a static about resource, live system health, and a
// session-scoped event history template.
func (s *Server) registerDiagnosticResources() {
	s.mcpServer.AddResource(
		mcp.NewResource("browsercore://about", "Engine info",
			mcp.WithResourceDescription("Static identification of this browser automation engine."),
			mcp.WithMIMEType(resourceMIMEJSON),
		),
		s.handleAboutResource,
	)

	s.mcpServer.AddResource(
		mcp.NewResource("browsercore://health", "System health",
			mcp.WithResourceDescription("Pool occupancy, active sessions, and cache hit ratio."),
			mcp.WithMIMEType(resourceMIMEJSON),
		),
		s.handleHealthResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"browsercore://session/{sessionId}/history{?limit}",
			"Session event history",
			mcp.WithTemplateMIMEType(resourceMIMEJSON),
			mcp.WithTemplateDescription("Recent coordination-bus events recorded for a session."),
		),
		s.handleSessionHistoryResource,
	)
}

func (s *Server) handleAboutResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"name":    s.cfg.Server.Name,
		"version": s.cfg.Server.Version,
	})
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: request.Params.URI, MIMEType: resourceMIMEJSON, Text: string(payload)},
	}, nil
}

func (s *Server) handleHealthResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload, err := json.Marshal(s.engine.SystemHealth())
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: request.Params.URI, MIMEType: resourceMIMEJSON, Text: string(payload)},
	}, nil
}

func (s *Server) handleSessionHistoryResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sessionID := argString(request.Params.Arguments["sessionId"])
	if sessionID == "" {
		return nil, fmt.Errorf("missing sessionId")
	}
	limit := asInt(request.Params.Arguments["limit"])
	if limit <= 0 {
		limit = 50
	}

	result := s.engine.ExecuteTool(ctx, coretypes.ToolCall{
		SessionID: sessionID,
		Tool:      "retrieve_history",
		Args:      map[string]interface{}{"limit": float64(limit)},
	})

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: request.Params.URI, MIMEType: resourceMIMEJSON, Text: string(payload)},
	}, nil
}

func argString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		var out int
		if _, err := fmt.Sscanf(n, "%d", &out); err == nil {
			return out
		}
	}
	return 0
}
