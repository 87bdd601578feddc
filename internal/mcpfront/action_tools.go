package mcpfront

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"browsercore/internal/coretypes"
)

// actionToolSpec describes one of the twelve canonical tools as an MCP
// tool: the call always forwards straight through to coreapi.ExecuteTool
// with Tool pinned to name, so this package carries no tool logic beyond
// shaping the args schema a caller sees for that tool.
type actionToolSpec struct {
	name        string
	description string
	argsSchema  map[string]interface{}
}

// locatorProperties is the args-schema fragment shared by every tool
// that resolves a target element through the multi-strategy locator.
// A call may set more than one field; the locator tries them in
// priority order and falls through on a miss.
func locatorProperties() map[string]interface{} {
	return map[string]interface{}{
		"ref":         map[string]interface{}{"type": "string", "description": "Opaque element reference returned by a prior perceive or get_element_info call."},
		"selector":    map[string]interface{}{"type": "string", "description": "CSS selector."},
		"xpath":       map[string]interface{}{"type": "string"},
		"id":          map[string]interface{}{"type": "string", "description": "Element id attribute."},
		"name":        map[string]interface{}{"type": "string", "description": "Element name attribute."},
		"placeholder": map[string]interface{}{"type": "string"},
		"role":        map[string]interface{}{"type": "string", "description": "ARIA role."},
		"text":        map[string]interface{}{"type": "string", "description": "Visible text to match."},
		"phrase":      map[string]interface{}{"type": "string", "description": "Natural-language description resolved against the perceived element map."},
		"coordinate": map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"x": map[string]interface{}{"type": "number"}, "y": map[string]interface{}{"type": "number"}},
			"description": "Viewport pixel coordinate, tried via elementFromPoint.",
		},
	}
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func merge(dst map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
	for k, v := range extra {
		dst[k] = v
	}
	return dst
}

var actionTools = []actionToolSpec{
	{
		name:        "navigate_to_url",
		description: "Load a new URL into a session's existing page.",
		argsSchema: objectSchema(map[string]interface{}{
			"url": map[string]interface{}{"type": "string"},
		}, "url"),
	},
	{
		name:        "scroll_page",
		description: "Scroll the page by a pixel delta or to a named edge (top/bottom).",
		argsSchema: objectSchema(map[string]interface{}{
			"direction": map[string]interface{}{"type": "string", "enum": []string{"up", "down", "top", "bottom"}},
			"amount":    map[string]interface{}{"type": "integer", "description": "Pixels to scroll for up/down; ignored for top/bottom."},
		}),
	},
	{
		name:        "click",
		description: "Click the element resolved by the given locator strategy.",
		argsSchema: objectSchema(merge(locatorProperties(), map[string]interface{}{
			"click_type":    map[string]interface{}{"type": "string", "enum": []string{"left", "right", "double"}, "description": "Defaults to left."},
			"modifiers":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string", "enum": []string{"shift", "ctrl", "alt", "meta"}}},
			"wait_after_ms": map[string]interface{}{"type": "integer", "description": "Pause after the click to let a resulting animation or navigation settle."},
		})),
	},
	{
		name:        "type_text",
		description: "Type text into the element resolved by the given locator strategy.",
		argsSchema: objectSchema(merge(locatorProperties(), map[string]interface{}{
			"text":           map[string]interface{}{"type": "string"},
			"clear":          map[string]interface{}{"type": "boolean", "description": "Clear the existing value first. Defaults to true."},
			"typing_speed":   map[string]interface{}{"type": "string", "enum": []string{"instant", "human"}, "description": "instant (default) paints the whole value at once; human paces keystrokes."},
			"trigger_events": map[string]interface{}{"type": "boolean", "description": "Also dispatch input/change/blur DOM events for frameworks that ignore synthetic input."},
		}), "text"),
	},
	{
		name:        "select_option",
		description: "Choose an option in a select-like element resolved by the given locator strategy.",
		argsSchema: objectSchema(merge(locatorProperties(), map[string]interface{}{
			"value":  map[string]interface{}{"type": "string"},
			"method": map[string]interface{}{"type": "string", "enum": []string{"smart", "value", "text", "index"}, "description": "smart (default) tries value then visible text."},
			"index":  map[string]interface{}{"type": "integer", "description": "Zero-based option position, used when method is index."},
		})),
	},
	{
		name:        "wait_for_element",
		description: "Poll the locator until its target reaches the requested condition, or time out.",
		argsSchema: objectSchema(merge(locatorProperties(), map[string]interface{}{
			"condition":   map[string]interface{}{"type": "string", "enum": []string{"present", "visible", "clickable", "hidden", "removed", "stable"}, "description": "Defaults to present."},
			"want_absent": map[string]interface{}{"type": "boolean", "description": "Deprecated synonym for condition=removed."},
		})),
	},
	{
		name:        "wait_for_condition",
		description: "Block until a coordination-bus event matching event_kind is published.",
		argsSchema: objectSchema(map[string]interface{}{
			"event_kind":  map[string]interface{}{"type": "string"},
			"match_key":   map[string]interface{}{"type": "string", "description": "Event data key to compare against match_value."},
			"match_value": map[string]interface{}{"type": "string"},
		}, "event_kind"),
	},
	{
		name:        "get_element_info",
		description: "Read the current text, visibility, and bounding box of an element.",
		argsSchema:  objectSchema(locatorProperties()),
	},
	{
		name:        "take_screenshot",
		description: "Capture the full page, or a single element when a locator strategy is given, as a base64 PNG.",
		argsSchema: objectSchema(merge(locatorProperties(), map[string]interface{}{
			"full_page": map[string]interface{}{"type": "boolean", "description": "Ignored when a locator strategy is given. Defaults to true."},
		})),
	},
	{
		name:        "retrieve_history",
		description: "Read the coordination bus's recent event history for a session.",
		argsSchema: objectSchema(map[string]interface{}{
			"event_kind": map[string]interface{}{"type": "string", "description": "Filter to a single event kind; omit for all kinds."},
			"limit":      map[string]interface{}{"type": "integer"},
		}),
	},
	{
		name:        "report_insight",
		description: "Record an advisory observation about the page or task.",
		argsSchema: objectSchema(map[string]interface{}{
			"insight": map[string]interface{}{"type": "string"},
		}, "insight"),
	},
	{
		name:        "complete_task",
		description: "Mark the caller's task finished and record its outcome.",
		argsSchema: objectSchema(map[string]interface{}{
			"outcome":           map[string]interface{}{"type": "string", "enum": []string{"success", "failure", "partial"}, "description": "Defaults to success."},
			"extract_learnings": map[string]interface{}{"type": "string", "description": "Free-form observation recorded as an advisory fact for future sessions."},
		}),
	},
}

func (s *Server) registerActionTools() {
	for _, spec := range actionTools {
		toolName := spec.name
		schema := objectSchema(map[string]interface{}{
			"session_id":  map[string]interface{}{"type": "string"},
			"args":        spec.argsSchema,
			"retry_count": map[string]interface{}{"type": "integer"},
			"verify":      map[string]interface{}{"type": "boolean"},
		}, "session_id")
		s.addTool(toolName, spec.description, schema, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			toolArgs, _ := args["args"].(map[string]interface{})
			if toolArgs == nil {
				toolArgs = map[string]interface{}{}
			}
			verify, _ := args["verify"].(bool)
			retries := 0
			if v, ok := args["retry_count"].(float64); ok {
				retries = int(v)
			}
			result := s.engine.ExecuteTool(ctx, coretypes.ToolCall{
				SessionID: stringArg(args, "session_id"),
				Tool:      toolName,
				Args:      toolArgs,
				Options:   coretypes.ExecutionOptions{Verify: verify, RetryCount: retries},
			})
			return jsonResult(result)
		})
	}

	s.addTool("execute_tools_batch", "Run a sequence of dependent tool calls against the same session, stopping at the first failure.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"calls": map[string]interface{}{"type": "array"},
			},
			"required": []string{"calls"},
		},
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			raw, _ := args["calls"].([]interface{})
			calls := make([]coretypes.ToolCall, 0, len(raw))
			for _, item := range raw {
				m, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				toolArgs, _ := m["args"].(map[string]interface{})
				calls = append(calls, coretypes.ToolCall{
					SessionID: stringArg(m, "session_id"),
					Tool:      stringArg(m, "tool"),
					Args:      toolArgs,
				})
			}
			results := s.engine.ExecuteToolsBatch(ctx, calls)
			return jsonResult(results)
		})
}
