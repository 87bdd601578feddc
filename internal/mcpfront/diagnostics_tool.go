package mcpfront

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerDiagnosticTools exposes full-stack error correlation: matching
// recent backend container log lines against the network requests the
// perception pipeline has recorded, so a failing tool call can be explained
// by server-side behavior rather than just by what the browser saw.
func (s *Server) registerDiagnosticTools() {
	s.addTool(
		"correlate_server_errors",
		"Correlate recent backend container logs with recorded network requests by shared trace/request/correlation IDs.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"since_seconds": map[string]interface{}{
					"type":        "integer",
					"description": "How far back to query container logs, in seconds. Defaults to 30.",
				},
			},
		},
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			since := time.Now().Add(-30 * time.Second)
			if secs := asInt(args["since_seconds"]); secs > 0 {
				since = time.Now().Add(-time.Duration(secs) * time.Second)
			}

			findings, err := s.correlator.CorrelateSince(ctx, since)
			if err != nil {
				return nil, err
			}
			return jsonResult(map[string]interface{}{
				"since":    since,
				"findings": findings,
			})
		},
	)
}
