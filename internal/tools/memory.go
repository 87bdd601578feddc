package tools

import (
	"context"
	"encoding/base64"

	"github.com/go-rod/rod/lib/proto"

	"browsercore/internal/coreerr"
	"browsercore/internal/coretypes"
	"browsercore/internal/events"
	"browsercore/internal/locator"
)

// GetElementInfo resolves its target and returns its current text,
// visibility and bounding box, the read-only counterpart to the perception pipeline's
// bulk element extraction.
type GetElementInfo struct{}

func (t *GetElementInfo) Name() string     { return "get_element_info" }
func (t *GetElementInfo) Category() string { return "Memory" }

func (t *GetElementInfo) Run(ctx context.Context, deps *Deps, call coretypes.ToolCall) (map[string]interface{}, error) {
	query := queryFromArgs(call.Args)
	if query.Empty() {
		return nil, coreerr.New(coreerr.InvalidInput, "at least one locator strategy is required")
	}
	ph, err := pageFor(deps, call.SessionID)
	if err != nil {
		return nil, err
	}
	el, err := locator.Resolve(ph.page, query, ph.registry)
	if err != nil {
		return nil, err
	}
	box := map[string]interface{}{}
	if res, err := el.Context(ctx).Eval(`() => { const r = this.getBoundingClientRect(); return {x: r.x, y: r.y, width: r.width, height: r.height}; }`); err == nil {
		if m, ok := res.Value.Val().(map[string]interface{}); ok {
			box = m
		}
	}
	text, _ := el.Context(ctx).Text()
	visible, _ := el.Context(ctx).Visible()
	return map[string]interface{}{
		"text":    text,
		"visible": visible,
		"box":     box,
	}, nil
}

// TakeScreenshot captures the full page (or a single element when ref is
// given) as a base64-encoded PNG.
type TakeScreenshot struct{}

func (t *TakeScreenshot) Name() string     { return "take_screenshot" }
func (t *TakeScreenshot) Category() string { return "Memory" }

func (t *TakeScreenshot) Run(ctx context.Context, deps *Deps, call coretypes.ToolCall) (map[string]interface{}, error) {
	ph, err := pageFor(deps, call.SessionID)
	if err != nil {
		return nil, err
	}

	var img []byte
	if query := queryFromArgs(call.Args); !query.Empty() {
		el, err := locator.Resolve(ph.page, query, ph.registry)
		if err != nil {
			return nil, err
		}
		img, err = el.Context(ctx).Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.InternalError, "element screenshot failed", err)
		}
	} else {
		fullPage := argBool(call.Args, "full_page", true)
		img, err = ph.page.Context(ctx).Screenshot(fullPage, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
		if err != nil {
			return nil, coreerr.Wrap(coreerr.InternalError, "screenshot failed", err)
		}
	}
	return map[string]interface{}{"image_base64": base64.StdEncoding.EncodeToString(img), "bytes": len(img)}, nil
}

// RetrieveHistory returns the coordination bus's recent event history for
// a session, optionally filtered by event kind, giving a tool a way to
// recall what already happened without re-perceiving the page.
type RetrieveHistory struct {
	Bus *events.Bus
}

func (t *RetrieveHistory) Name() string     { return "retrieve_history" }
func (t *RetrieveHistory) Category() string { return "Memory" }

func (t *RetrieveHistory) Run(ctx context.Context, deps *Deps, call coretypes.ToolCall) (map[string]interface{}, error) {
	if t.Bus == nil {
		return nil, coreerr.New(coreerr.PreconditionFailed, "retrieve_history requires an event bus")
	}
	limit := argInt(call.Args, "limit", 20)
	var kinds []coretypes.EventKind
	if k := argString(call.Args, "event_kind"); k != "" {
		kinds = []coretypes.EventKind{coretypes.EventKind(k)}
	}
	events := t.Bus.History(call.SessionID, kinds, limit)
	out := make([]map[string]interface{}, 0, len(events))
	for _, e := range events {
		out = append(out, map[string]interface{}{
			"kind": string(e.Kind),
			"at":   e.At,
			"data": e.Data,
		})
	}
	return map[string]interface{}{"events": out, "count": len(out)}, nil
}
