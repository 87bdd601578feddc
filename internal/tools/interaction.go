package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/input"

	"browsercore/internal/coreerr"
	"browsercore/internal/coretypes"
	"browsercore/internal/locator"
)

// Click resolves its target via the multi-strategy locator and clicks
// it. click_type selects the mouse button ("left", the default, "right",
// or "double" for a double left-click); modifiers is a set of held keys
// ("shift", "ctrl", "alt", "meta"); wait_after_ms pauses after the click
// to let a resulting animation or navigation settle.
type Click struct{}

func (t *Click) Name() string     { return "click" }
func (t *Click) Category() string { return "Interaction" }

func (t *Click) Run(ctx context.Context, deps *Deps, call coretypes.ToolCall) (map[string]interface{}, error) {
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
	keyboard := ph.page.Context(ctx).Keyboard
	keys := modifierKeys(call.Args)
	for _, k := range keys {
		_ = keyboard.Press(k)
	}
	button, count := clickButton(argString(call.Args, "click_type"))
	clickErr := el.Context(ctx).Click(button, count)
	for i := len(keys) - 1; i >= 0; i-- {
		_ = keyboard.Release(keys[i])
	}
	if clickErr != nil {
		return nil, coreerr.Wrap(coreerr.InternalError, "click failed", clickErr)
	}
	if waitMs := argInt(call.Args, "wait_after_ms", 0); waitMs > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(waitMs) * time.Millisecond):
		}
	}
	return map[string]interface{}{"clicked": true}, nil
}

// clickButton maps click_type to a rod mouse button and click count.
func clickButton(clickType string) (string, int) {
	switch clickType {
	case "right":
		return "right", 1
	case "double":
		return "left", 2
	default:
		return "left", 1
	}
}

// modifierKeys maps the modifiers arg ("shift", "ctrl", "alt", "meta")
// to the CDP keys rod's keyboard holds for the duration of a click.
func modifierKeys(args map[string]interface{}) []input.Key {
	raw, _ := args["modifiers"].([]interface{})
	var keys []input.Key
	for _, m := range raw {
		name, _ := m.(string)
		switch name {
		case "shift":
			keys = append(keys, input.ShiftLeft)
		case "ctrl", "control":
			keys = append(keys, input.ControlLeft)
		case "alt":
			keys = append(keys, input.AltLeft)
		case "meta", "cmd":
			keys = append(keys, input.MetaLeft)
		}
	}
	return keys
}

// TypeText resolves its target and types the given text into it,
// optionally clearing the existing value first. typing_speed selects
// how the input is dispatched ("instant", the default, paints the whole
// value in one call; "human" paces keystrokes to emulate typing) and
// trigger_events additionally fires input/change/blur after typing for
// frameworks that only react to real DOM events.
type TypeText struct{}

func (t *TypeText) Name() string     { return "type_text" }
func (t *TypeText) Category() string { return "Interaction" }

func (t *TypeText) Run(ctx context.Context, deps *Deps, call coretypes.ToolCall) (map[string]interface{}, error) {
	query := queryFromArgs(call.Args)
	text := argString(call.Args, "text")
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
	if argBool(call.Args, "clear", true) {
		if err := el.Context(ctx).SelectAllText(); err == nil {
			_ = el.Context(ctx).Input("")
		}
	}
	if argString(call.Args, "typing_speed") == "human" {
		if err := el.Context(ctx).Type([]rune(text)...); err != nil {
			return nil, coreerr.Wrap(coreerr.InternalError, "type failed", err)
		}
	} else if err := el.Context(ctx).Input(text); err != nil {
		return nil, coreerr.Wrap(coreerr.InternalError, "type failed", err)
	}
	if argBool(call.Args, "trigger_events", false) {
		_, _ = el.Context(ctx).Eval(`() => {
			this.dispatchEvent(new Event('input', {bubbles: true}));
			this.dispatchEvent(new Event('change', {bubbles: true}));
			this.dispatchEvent(new Event('blur', {bubbles: true}));
		}`)
	}
	return map[string]interface{}{"text": text}, nil
}

func (t *TypeText) Verify(ctx context.Context, deps *Deps, call coretypes.ToolCall, output map[string]interface{}) error {
	ph, err := pageFor(deps, call.SessionID)
	if err != nil {
		return err
	}
	el, err := locator.Resolve(ph.page, queryFromArgs(call.Args), ph.registry)
	if err != nil {
		return err
	}
	got, err := el.Context(ctx).Property("value")
	if err != nil {
		return coreerr.Wrap(coreerr.VerificationFailed, "reading value failed", err)
	}
	if got.String() != argString(call.Args, "text") {
		return coreerr.New(coreerr.VerificationFailed, "typed value does not match requested text")
	}
	return nil
}

// SelectOption resolves a <select>-like target and chooses an option.
// method picks the matching strategy: "smart" (the default) tries value
// then visible text, "value" and "text" pin one strategy, "index"
// matches by zero-based option position.
type SelectOption struct{}

func (t *SelectOption) Name() string     { return "select_option" }
func (t *SelectOption) Category() string { return "Interaction" }

func (t *SelectOption) Run(ctx context.Context, deps *Deps, call coretypes.ToolCall) (map[string]interface{}, error) {
	query := queryFromArgs(call.Args)
	value := argString(call.Args, "value")
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

	method := argString(call.Args, "method")
	if method == "" {
		method = "smart"
	}
	switch method {
	case "value":
		err = el.Context(ctx).Select([]string{value}, true, "value")
	case "text":
		err = el.Context(ctx).Select([]string{value}, true, "text")
	case "index":
		idx := argInt(call.Args, "index", 0)
		_, evalErr := el.Context(ctx).Eval(fmt.Sprintf(`() => { this.selectedIndex = %d; this.dispatchEvent(new Event('change', {bubbles: true})); }`, idx))
		err = evalErr
	default: // smart
		err = el.Context(ctx).Select([]string{value}, true, "value")
		if err != nil {
			err = el.Context(ctx).Select([]string{value}, true, "text")
		}
	}
	if err != nil {
		return nil, coreerr.Wrap(coreerr.InternalError, "select failed", err)
	}
	return map[string]interface{}{"value": value, "method": method}, nil
}
