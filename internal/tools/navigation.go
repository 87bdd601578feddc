package tools

import (
	"context"
	"fmt"

	"browsercore/internal/coreerr"
	"browsercore/internal/coretypes"
	"browsercore/internal/session"
)

// NavigateToURL loads a new URL into a session's existing page, waiting
// for the page's load event before returning.
type NavigateToURL struct{}

func (t *NavigateToURL) Name() string     { return "navigate_to_url" }
func (t *NavigateToURL) Category() string { return "Navigation" }

func (t *NavigateToURL) Run(ctx context.Context, deps *Deps, call coretypes.ToolCall) (map[string]interface{}, error) {
	url := argString(call.Args, "url")
	if url == "" {
		return nil, coreerr.New(coreerr.InvalidInput, "url is required")
	}
	ph, err := pageFor(deps, call.SessionID)
	if err != nil {
		return nil, err
	}
	if err := ph.page.Context(ctx).Navigate(url); err != nil {
		return nil, coreerr.Wrap(coreerr.NavigationError, "navigate failed", err)
	}
	if err := ph.page.Context(ctx).WaitLoad(); err != nil {
		return nil, coreerr.Wrap(coreerr.NavigationError, "waiting for load failed", err)
	}
	if ph.registry != nil {
		ph.registry.Clear()
	}
	info, _ := ph.page.Info()
	deps.Sessions.UpdateMetadata(call.SessionID, func(s session.Session) session.Session {
		s.URL = url
		if info != nil {
			s.Title = info.Title
		}
		return s
	})
	out := map[string]interface{}{"url": url}
	if info != nil {
		out["title"] = info.Title
	}
	return out, nil
}

func (t *NavigateToURL) Verify(ctx context.Context, deps *Deps, call coretypes.ToolCall, output map[string]interface{}) error {
	ph, err := pageFor(deps, call.SessionID)
	if err != nil {
		return err
	}
	info, err := ph.page.Info()
	if err != nil {
		return coreerr.Wrap(coreerr.VerificationFailed, "reading page info failed", err)
	}
	want := argString(call.Args, "url")
	if info.URL != want && want != "" {
		return coreerr.New(coreerr.VerificationFailed, fmt.Sprintf("expected url %s, page is at %s", want, info.URL))
	}
	return nil
}

// ScrollPage scrolls the page window by a pixel delta ("up", or down by
// default) or to a named edge ("top"/"bottom"); no target element is
// scrolled.
type ScrollPage struct{}

func (t *ScrollPage) Name() string     { return "scroll_page" }
func (t *ScrollPage) Category() string { return "Navigation" }

func (t *ScrollPage) Run(ctx context.Context, deps *Deps, call coretypes.ToolCall) (map[string]interface{}, error) {
	ph, err := pageFor(deps, call.SessionID)
	if err != nil {
		return nil, err
	}
	direction := argString(call.Args, "direction")
	amount := argInt(call.Args, "amount", 600)

	var js string
	switch direction {
	case "top":
		js = `() => window.scrollTo({top: 0, behavior: 'instant'})`
	case "bottom":
		js = `() => window.scrollTo({top: document.body.scrollHeight, behavior: 'instant'})`
	case "up":
		js = fmt.Sprintf(`() => window.scrollBy({top: -%d, behavior: 'instant'})`, amount)
	default:
		js = fmt.Sprintf(`() => window.scrollBy({top: %d, behavior: 'instant'})`, amount)
	}
	if _, err := ph.page.Context(ctx).Eval(js); err != nil {
		return nil, coreerr.Wrap(coreerr.InternalError, "scroll failed", err)
	}
	return map[string]interface{}{"direction": direction, "amount": amount}, nil
}
