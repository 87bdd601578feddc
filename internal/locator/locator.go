// Package locator implements the multi-strategy element locator: it
// resolves an ElementDescriptor's ref back to a live DOM element using a
// fallback priority order (fingerprint data first, then structural
// attributes, then raw CSS), the same order the perception pipeline's ref
// generation favors when minting refs in the first place.
package locator

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"browsercore/internal/coreerr"
	"browsercore/internal/coretypes"
	"browsercore/internal/session"
)

// DefaultTimeout bounds each individual resolution attempt.
const DefaultTimeout = 2 * time.Second

// strategy is one independently-triable locator strategy: a name for
// error reporting and a thunk that either finds an element or reports
// ok=false without treating the miss as fatal.
type strategy struct {
	name string
	try  func() (*rod.Element, bool)
}

// Resolve finds a live element for query, trying every strategy the
// query sets in a fixed priority order and falling through to the next
// on a miss. This is what lets a single call supply a primary selector
// plus a text fallback and still succeed when the selector alone would
// have failed: id, css selector, xpath, name, placeholder, role, text,
// NL phrase, viewport coordinate, then the legacy ref (prefixed refs or
// registry fingerprint lookup, kept for refs minted by the perception
// pipeline before this query carried typed fields).
func Resolve(page *rod.Page, query coretypes.LocatorQuery, registry *session.ElementRegistry) (*rod.Element, error) {
	p := page.Timeout(DefaultTimeout)

	var strategies []strategy

	if query.ID != "" {
		id := query.ID
		strategies = append(strategies, strategy{"id", func() (*rod.Element, bool) {
			el, err := p.Element("#" + escapeCSS(id))
			return el, err == nil
		}})
	}
	if query.Selector != "" {
		sel := query.Selector
		strategies = append(strategies, strategy{"selector", func() (*rod.Element, bool) {
			el, err := p.Element(sel)
			return el, err == nil
		}})
	}
	if query.XPath != "" {
		xp := query.XPath
		strategies = append(strategies, strategy{"xpath", func() (*rod.Element, bool) {
			el, err := p.ElementX(xp)
			return el, err == nil
		}})
	}
	if query.Name != "" {
		name := query.Name
		strategies = append(strategies, strategy{"name", func() (*rod.Element, bool) {
			el, err := p.Element(`[name="` + escapeAttr(name) + `"]`)
			return el, err == nil
		}})
	}
	if query.Placeholder != "" {
		placeholder := query.Placeholder
		strategies = append(strategies, strategy{"placeholder", func() (*rod.Element, bool) {
			el, err := p.Element(`[placeholder="` + escapeAttr(placeholder) + `"]`)
			return el, err == nil
		}})
	}
	if query.Role != "" {
		role := query.Role
		strategies = append(strategies, strategy{"role", func() (*rod.Element, bool) {
			el, err := p.Element(`[role="` + escapeAttr(role) + `"]`)
			return el, err == nil
		}})
	}
	if query.Text != "" {
		text := query.Text
		strategies = append(strategies, strategy{"text", func() (*rod.Element, bool) {
			el, err := p.ElementR("*", text)
			return el, err == nil
		}})
	}
	if query.Phrase != "" {
		phrase := query.Phrase
		strategies = append(strategies, strategy{"phrase", func() (*rod.Element, bool) {
			el, err := p.ElementR("*", phrase)
			return el, err == nil
		}})
	}
	if query.Coordinate != nil {
		coord := query.Coordinate
		strategies = append(strategies, strategy{"coordinate", func() (*rod.Element, bool) {
			el, err := p.ElementFromPoint(int(coord.X), int(coord.Y))
			return el, err == nil
		}})
	}
	if query.Ref != "" {
		ref := query.Ref
		strategies = append(strategies, strategy{"ref", func() (*rod.Element, bool) {
			el, err := resolveRef(p, ref, registry)
			return el, err == nil
		}})
	}

	for _, s := range strategies {
		if el, ok := s.try(); ok {
			return el, nil
		}
	}

	hint := "element not found"
	if desc := describeQuery(query); desc != "" {
		hint = "element not found: " + desc
	}
	return nil, coreerr.New(coreerr.NotFound, hint).WithHint("re-run perception to refresh element refs")
}

// resolveRef implements the locator's legacy single-string strategy:
// testid:/aria:/role:/text:/xpath: prefixes parsed directly, then the
// registry fingerprint's data-testid/aria-label/id/name, then the ref
// itself as an id, a name attribute, or a raw CSS selector.
func resolveRef(p *rod.Page, ref string, registry *session.ElementRegistry) (*rod.Element, error) {
	if strings.HasPrefix(ref, "testid:") {
		testID := strings.TrimPrefix(ref, "testid:")
		if el, err := p.Element(`[data-testid="` + escapeAttr(testID) + `"]`); err == nil {
			return el, nil
		}
		if el, err := p.Element(`[data-test-id="` + escapeAttr(testID) + `"]`); err == nil {
			return el, nil
		}
	}

	if strings.HasPrefix(ref, "aria:") {
		ariaRef := strings.TrimPrefix(ref, "aria:")
		if els, err := p.Elements(`[aria-label]`); err == nil {
			for _, el := range els {
				label, _ := el.Attribute("aria-label")
				if label != nil && (sanitizeAria(*label) == ariaRef || strings.HasPrefix(sanitizeAria(*label), ariaRef)) {
					return el, nil
				}
			}
		}
	}

	if strings.HasPrefix(ref, "role:") {
		parts := strings.SplitN(strings.TrimPrefix(ref, "role:"), ":", 2)
		if len(parts) == 2 {
			if el, err := p.Element(fmt.Sprintf(`[role="%s"]`, escapeAttr(parts[0]))); err == nil {
				return el, nil
			}
		}
	}

	if strings.HasPrefix(ref, "text:") {
		text := strings.TrimPrefix(ref, "text:")
		if el, err := p.ElementR("*", text); err == nil {
			return el, nil
		}
	}

	if strings.HasPrefix(ref, "xpath:") {
		if el, err := p.ElementX(strings.TrimPrefix(ref, "xpath:")); err == nil {
			return el, nil
		}
	}

	var fp *coretypes.ElementDescriptor
	if registry != nil {
		fp = registry.Get(ref)
	}

	if fp != nil {
		if testID := fp.Attributes["data-testid"]; testID != "" {
			if el, err := p.Element(`[data-testid="` + escapeAttr(testID) + `"]`); err == nil {
				return el, nil
			}
		}
		if aria := fp.Attributes["aria-label"]; aria != "" {
			if el, err := p.Element(`[aria-label="` + escapeAttr(aria) + `"]`); err == nil {
				return el, nil
			}
		}
		if id := fp.Attributes["id"]; id != "" {
			if el, err := p.Element("#" + escapeCSS(id)); err == nil {
				return el, nil
			}
		}
		if name := fp.Attributes["name"]; name != "" {
			if el, err := p.Element(`[name="` + escapeAttr(name) + `"]`); err == nil {
				return el, nil
			}
		}
	}

	if el, err := p.Element("#" + escapeCSS(ref)); err == nil {
		return el, nil
	}
	if el, err := p.Element(`[name="` + escapeAttr(ref) + `"]`); err == nil {
		return el, nil
	}
	if el, err := p.Element(ref); err == nil {
		return el, nil
	}

	hint := "element not found: " + ref
	if fp != nil {
		hint = fmt.Sprintf("element not found: %s (fingerprint: tag=%s)", ref, fp.Tag)
	}
	return nil, coreerr.New(coreerr.NotFound, hint)
}

func describeQuery(q coretypes.LocatorQuery) string {
	switch {
	case q.Selector != "":
		return "selector=" + q.Selector
	case q.ID != "":
		return "id=" + q.ID
	case q.XPath != "":
		return "xpath=" + q.XPath
	case q.Text != "":
		return "text=" + q.Text
	case q.Ref != "":
		return "ref=" + q.Ref
	default:
		return ""
	}
}

func sanitizeAria(label string) string {
	var b strings.Builder
	for _, r := range label {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	s := b.String()
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}

func escapeAttr(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

func escapeCSS(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteString(`\`)
			b.WriteRune(r)
		}
	}
	return b.String()
}
