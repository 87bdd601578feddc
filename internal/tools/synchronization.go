package tools

import (
	"context"
	"time"

	"browsercore/internal/coreerr"
	"browsercore/internal/coretypes"
	"browsercore/internal/events"
	"browsercore/internal/locator"
)

// WaitForElement polls the locator until its target reaches the
// requested condition or the call times out. condition defaults to
// "present" (the old want_absent=false behavior); want_absent=true is
// kept as a synonym for condition="removed" so existing callers don't
// break.
type WaitForElement struct{}

func (t *WaitForElement) Name() string     { return "wait_for_element" }
func (t *WaitForElement) Category() string { return "Synchronization" }

func (t *WaitForElement) Run(ctx context.Context, deps *Deps, call coretypes.ToolCall) (map[string]interface{}, error) {
	query := queryFromArgs(call.Args)
	if query.Empty() {
		return nil, coreerr.New(coreerr.InvalidInput, "at least one locator strategy is required")
	}
	condition := argString(call.Args, "condition")
	if condition == "" {
		if argBool(call.Args, "want_absent", false) {
			condition = "removed"
		} else {
			condition = "present"
		}
	}

	ph, err := pageFor(deps, call.SessionID)
	if err != nil {
		return nil, err
	}

	var lastBox *coretypes.BoundingBox
	stableStreak := 0
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()
	for {
		satisfied, box, checkErr := evalWaitCondition(ctx, ph, query, condition, lastBox, &stableStreak)
		if checkErr == nil && satisfied {
			return map[string]interface{}{"condition": condition, "satisfied": true}, nil
		}
		lastBox = box
		select {
		case <-ctx.Done():
			return nil, coreerr.Wrap(coreerr.Timeout, "timed out waiting for element condition: "+condition, ctx.Err())
		case <-ticker.C:
		}
	}
}

// evalWaitCondition resolves query once and reports whether condition is
// currently satisfied. "stable" tracks bounding-box equality across
// calls via stableStreak, requiring three polls in a row that report the
// same box (300ms of no movement at the 150ms poll interval) before it is
// considered settled.
func evalWaitCondition(ctx context.Context, ph *pageHandle, query coretypes.LocatorQuery, condition string, lastBox *coretypes.BoundingBox, stableStreak *int) (bool, *coretypes.BoundingBox, error) {
	el, resolveErr := locator.Resolve(ph.page, query, ph.registry)
	found := resolveErr == nil

	switch condition {
	case "removed":
		return !found, nil, nil
	case "present":
		return found, nil, nil
	case "hidden":
		if !found {
			return false, nil, nil
		}
		visible, _ := el.Context(ctx).Visible()
		return !visible, nil, nil
	case "visible":
		if !found {
			return false, nil, nil
		}
		visible, _ := el.Context(ctx).Visible()
		return visible, nil, nil
	case "clickable":
		if !found {
			return false, nil, nil
		}
		visible, _ := el.Context(ctx).Visible()
		if !visible {
			return false, nil, nil
		}
		res, err := el.Context(ctx).Eval(`() => !this.disabled && getComputedStyle(this).pointerEvents !== 'none'`)
		if err != nil {
			return false, nil, nil
		}
		clickable, _ := res.Value.Val().(bool)
		return clickable, nil, nil
	case "stable":
		if !found {
			*stableStreak = 0
			return false, nil, nil
		}
		res, err := el.Context(ctx).Eval(`() => { const r = this.getBoundingClientRect(); return {x: r.x, y: r.y, width: r.width, height: r.height}; }`)
		if err != nil {
			*stableStreak = 0
			return false, nil, nil
		}
		data, _ := res.Value.Val().(map[string]interface{})
		box := &coretypes.BoundingBox{
			X:      floatArg(data, "x"),
			Y:      floatArg(data, "y"),
			Width:  floatArg(data, "width"),
			Height: floatArg(data, "height"),
		}
		if lastBox != nil && *lastBox == *box {
			*stableStreak++
		} else {
			*stableStreak = 1
		}
		return *stableStreak >= 3, box, nil
	default:
		return found, nil, coreerr.New(coreerr.InvalidInput, "unknown wait condition: "+condition)
	}
}

// WaitForCondition blocks until a bus event matching the requested kind
// (and optional data predicate expressed as a key/value pair) is
// published, or the call times out. This is the event-driven counterpart
// to WaitForElement's polling loop.
type WaitForCondition struct {
	Bus *events.Bus
}

func (t *WaitForCondition) Name() string     { return "wait_for_condition" }
func (t *WaitForCondition) Category() string { return "Synchronization" }

func (t *WaitForCondition) Run(ctx context.Context, deps *Deps, call coretypes.ToolCall) (map[string]interface{}, error) {
	if t.Bus == nil {
		return nil, coreerr.New(coreerr.PreconditionFailed, "wait_for_condition requires an event bus")
	}
	kind := coretypes.EventKind(argString(call.Args, "event_kind"))
	if kind == "" {
		return nil, coreerr.New(coreerr.InvalidInput, "event_kind is required")
	}
	matchKey := argString(call.Args, "match_key")
	matchValue := argString(call.Args, "match_value")

	sub := t.Bus.Subscribe([]coretypes.EventKind{kind}, 8, 0)
	defer t.Bus.Unsubscribe(sub)

	evt, ok := events.WaitFor(ctx, sub, func(e coretypes.Event) bool {
		if e.SessionID != call.SessionID {
			return false
		}
		if matchKey == "" {
			return true
		}
		v, ok := e.Data[matchKey]
		if !ok {
			return false
		}
		s, _ := v.(string)
		return s == matchValue
	})
	if !ok {
		return nil, coreerr.New(coreerr.Timeout, "timed out waiting for condition")
	}
	return map[string]interface{}{"matched": true, "event_at": evt.At}, nil
}
