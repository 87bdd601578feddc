// Package perception implements the four-stage layered perception
// pipeline: Lightning (URL/title/ready-state), Quick (+ interactive
// element counts), Standard (+ full element descriptors registered for
// later resolution), and Deep (+ screenshot, DOM hash, hidden regions).
// Lightning is never requested directly; it is the first phase every
// other stage embeds, the same way the element-extraction tools this
// package is grounded on always start from a cheap readyState probe
// before paying for a full DOM walk.
package perception

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"browsercore/internal/advisor"
	"browsercore/internal/cache"
	"browsercore/internal/config"
	"browsercore/internal/coreerr"
	"browsercore/internal/coretypes"
	"browsercore/internal/mangle"
	"browsercore/internal/session"
)

// Pipeline runs the layered perception stages against a session's page.
type Pipeline struct {
	sessions *session.Manager
	cache    *cache.Cache
	engine   *mangle.Engine // optional, nil-safe
	advisor  advisor.Advisor
	cfg      config.PerceptionConfig
	log      *zap.Logger
}

// New builds a Pipeline. engine and adv may be nil.
func New(sessions *session.Manager, c *cache.Cache, engine *mangle.Engine, adv advisor.Advisor, cfg config.PerceptionConfig, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if adv == nil {
		adv = advisor.Noop{}
	}
	return &Pipeline{sessions: sessions, cache: c, engine: engine, advisor: adv, cfg: cfg, log: log}
}

// Perceive runs the requested stage (or resolves ModeAdaptive to a
// concrete stage first) and returns a unified result. A stage that
// exceeds its configured budget degrades the result rather than failing
// the call outright: TimeoutDegraded is set and whatever the stage
// produced before its deadline is kept. Lightning is the one exception,
// since there is no partial data below it to fall back to.
func (p *Pipeline) Perceive(ctx context.Context, sessionID string, mode coretypes.PerceptionMode) (coretypes.PerceptionResult, error) {
	page, ok := p.sessions.Page(sessionID)
	if !ok {
		return coretypes.PerceptionResult{}, coreerr.New(coreerr.NotFound, fmt.Sprintf("session %s not found", sessionID))
	}

	resolved := mode
	var decision *coretypes.DecisionContext
	if mode == coretypes.ModeAdaptive || mode == "" {
		resolved, decision = p.selectMode(ctx, sessionID)
	}

	cacheKey := fmt.Sprintf("perception:%s:%s", sessionID, resolved)
	if p.cache != nil {
		if cached, ok := p.cache.Get(cacheKey); ok {
			if result, ok := cached.(coretypes.PerceptionResult); ok {
				result.FromCache = true
				return result, nil
			}
		}
	}

	start := time.Now()
	result := coretypes.PerceptionResult{
		SessionID:         sessionID,
		Mode:              resolved,
		TakenAt:           start,
		ProcessingMetrics: coretypes.ProcessingMetrics{StageDurations: make(map[coretypes.PerceptionMode]time.Duration)},
	}
	if p.cfg.TracingEnabled() {
		result.DecisionContext = decision
	}

	lightning, lightningElapsed, err := stageWithBudget(ctx, p.cfg.Lightning(), func(sctx context.Context) (lightningResult, error) {
		return p.lightning(page.Context(sctx))
	})
	result.ProcessingMetrics.StageDurations[coretypes.ModeLightning] = lightningElapsed
	if err != nil {
		return coretypes.PerceptionResult{}, coreerr.Wrap(coreerr.Timeout, "lightning stage failed", err)
	}
	result.URL = lightning.URL
	result.Title = lightning.Title
	result.ReadyState = lightning.ReadyState

	switch resolved {
	case coretypes.ModeLightning:
		// nothing further
	case coretypes.ModeQuick:
		elems, elapsed, sctxErr := stageWithBudget(ctx, p.cfg.Quick(), func(sctx context.Context) ([]coretypes.ElementDescriptor, error) {
			return p.extractElements(page.Context(sctx), false)
		})
		result.ProcessingMetrics.StageDurations[coretypes.ModeQuick] = elapsed
		if sctxErr != nil {
			result.TimeoutDegraded = true
			result.ProcessingMetrics.DegradedStage = coretypes.ModeQuick
		} else {
			result.Elements = elems
		}
	case coretypes.ModeStandard:
		elems, elapsed, sctxErr := stageWithBudget(ctx, p.cfg.Standard(), func(sctx context.Context) ([]coretypes.ElementDescriptor, error) {
			return p.extractElements(page.Context(sctx), true)
		})
		result.ProcessingMetrics.StageDurations[coretypes.ModeStandard] = elapsed
		if sctxErr != nil {
			result.TimeoutDegraded = true
			result.ProcessingMetrics.DegradedStage = coretypes.ModeStandard
		} else {
			result.Elements = elems
			if registry := p.sessions.Registry(sessionID); registry != nil {
				registry.RegisterBatch(elems)
			}
		}
	case coretypes.ModeDeep:
		deepStart := time.Now()
		deepCtx, cancel := context.WithTimeout(ctx, p.cfg.Deep())
		deepPage := page.Context(deepCtx)
		degraded := false
		if elems, err := p.extractElements(deepPage, true); err == nil {
			result.Elements = elems
			if registry := p.sessions.Registry(sessionID); registry != nil {
				registry.RegisterBatch(elems)
			}
		} else if deepCtx.Err() != nil {
			degraded = true
		}
		if !degraded {
			result.HiddenRegions = p.extractHiddenRegions(deepPage)
			if shot, err := deepPage.Screenshot(true, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}); err == nil {
				result.Screenshot = shot
			} else if deepCtx.Err() != nil {
				degraded = true
			}
		}
		if !degraded {
			if hash, err := p.domHash(deepPage); err == nil {
				result.DOMHash = hash
			} else if deepCtx.Err() != nil {
				degraded = true
			}
		}
		cancel()
		result.ProcessingMetrics.StageDurations[coretypes.ModeDeep] = time.Since(deepStart)
		if degraded {
			result.TimeoutDegraded = true
			result.ProcessingMetrics.DegradedStage = coretypes.ModeDeep
		}
	default:
		return coretypes.PerceptionResult{}, coreerr.New(coreerr.InvalidInput, "unknown perception mode: "+string(resolved))
	}

	result.Latency = time.Since(start)

	p.emitFact(ctx, sessionID, resolved, result.Latency)

	if p.cache != nil {
		tag := "session:" + sessionID
		if origin := originOf(result.URL); origin != "" {
			tag = origin
		}
		p.cache.Set(cacheKey, result, []string{"session:" + sessionID, tag}, ttlFor(resolved))
	}

	return result, nil
}

// stageWithBudget runs fn under a per-stage deadline derived from budget,
// returning whatever fn produced alongside the elapsed time. A non-nil
// error with sctx.Err() set means the stage missed its budget rather
// than failing outright; callers treat that as a degrade, not a hard
// failure.
func stageWithBudget[T any](ctx context.Context, budget time.Duration, fn func(context.Context) (T, error)) (T, time.Duration, error) {
	start := time.Now()
	sctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	out, err := fn(sctx)
	elapsed := time.Since(start)
	if err != nil && sctx.Err() != nil {
		return out, elapsed, sctx.Err()
	}
	return out, elapsed, err
}

// selectMode picks a concrete stage for ModeAdaptive, preferring the
// advisor's recommendation, escalating toward Standard/Deep under
// repeated tool failures, and downgrading a Deep candidate back to
// Standard when recent Deep-stage latency has been running over budget
// ("budget_pressure"). The returned DecisionContext is always built; the
// caller decides whether tracing is on before attaching it to a result.
func (p *Pipeline) selectMode(ctx context.Context, sessionID string) (coretypes.PerceptionMode, *coretypes.DecisionContext) {
	meta, _ := p.sessions.Get(sessionID)

	var recentFailures []string
	if p.engine != nil {
		facts := p.engine.FactsByPredicate("tool_failure")
		for _, f := range facts {
			if len(f.Args) >= 2 {
				if sid, ok := f.Args[0].(string); ok && sid == sessionID {
					if tool, ok := f.Args[1].(string); ok {
						recentFailures = append(recentFailures, tool)
					}
				}
			}
		}
	}

	advice, err := p.advisor.SuggestPerceptionMode(ctx, meta.URL, "", recentFailures)
	if err == nil && advice.Recommendation != "" && advice.Confidence >= 0.5 {
		switch coretypes.PerceptionMode(advice.Recommendation) {
		case coretypes.ModeLightning, coretypes.ModeQuick, coretypes.ModeStandard, coretypes.ModeDeep:
			return coretypes.PerceptionMode(advice.Recommendation), &coretypes.DecisionContext{
				Reason:         "advisor",
				Confidence:     advice.Confidence,
				RecentFailures: len(recentFailures),
			}
		}
	}

	candidate := coretypes.ModeQuick
	reason := "default"
	switch {
	case len(recentFailures) >= 4:
		candidate = coretypes.ModeDeep
		reason = "escalation"
	case len(recentFailures) >= 2:
		candidate = coretypes.ModeStandard
		reason = "escalation"
	}

	if candidate == coretypes.ModeDeep {
		if avg, samples := p.recentDeepLatency(sessionID); samples > 0 && avg > p.cfg.Deep() {
			return coretypes.ModeStandard, &coretypes.DecisionContext{
				Reason:         "budget_pressure",
				RecentFailures: len(recentFailures),
				Bindings: map[string]interface{}{
					"recent_deep_avg_ms": avg.Milliseconds(),
					"deep_budget_ms":     p.cfg.Deep().Milliseconds(),
				},
			}
		}
	}

	return candidate, &coretypes.DecisionContext{Reason: reason, RecentFailures: len(recentFailures)}
}

// recentDeepLatency averages the latency of up to the last 5
// perception_escalated Deep-stage samples recorded for sessionID.
func (p *Pipeline) recentDeepLatency(sessionID string) (time.Duration, int) {
	if p.engine == nil {
		return 0, 0
	}
	facts := p.engine.FactsByPredicate("perception_escalated")
	var samples []int64
	for _, f := range facts {
		if len(f.Args) < 3 {
			continue
		}
		sid, ok := f.Args[0].(string)
		if !ok || sid != sessionID {
			continue
		}
		if mode, ok := f.Args[1].(string); !ok || mode != string(coretypes.ModeDeep) {
			continue
		}
		if ms, ok := toMillis(f.Args[2]); ok {
			samples = append(samples, ms)
		}
	}
	if len(samples) == 0 {
		return 0, 0
	}
	if len(samples) > 5 {
		samples = samples[len(samples)-5:]
	}
	var sum int64
	for _, s := range samples {
		sum += s
	}
	return time.Duration(sum/int64(len(samples))) * time.Millisecond, len(samples)
}

func toMillis(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func (p *Pipeline) emitFact(ctx context.Context, sessionID string, mode coretypes.PerceptionMode, latency time.Duration) {
	if p.engine == nil {
		return
	}
	predicate := "perception_sampled"
	if mode == coretypes.ModeDeep || mode == coretypes.ModeStandard {
		predicate = "perception_escalated"
	}
	_ = p.engine.AddFacts(ctx, []mangle.Fact{{
		Predicate: predicate,
		Args:      []interface{}{sessionID, string(mode), latency.Milliseconds()},
		Timestamp: time.Now(),
	}})
}

type lightningResult struct {
	URL        string
	Title      string
	ReadyState string
}

func (p *Pipeline) lightning(page *rod.Page) (lightningResult, error) {
	res, err := page.Eval(`() => ({ url: window.location.href, title: document.title, readyState: document.readyState })`)
	if err != nil {
		return lightningResult{}, coreerr.Wrap(coreerr.InternalError, "lightning probe failed", err)
	}
	data, _ := res.Value.Val().(map[string]interface{})
	return lightningResult{
		URL:        stringField(data, "url"),
		Title:      stringField(data, "title"),
		ReadyState: stringField(data, "readyState"),
	}, nil
}

const extractElementsJS = `
(fullDetail) => {
	const selector = 'button, input:not([type="hidden"]), textarea, select, a[href], [role="button"], [role="combobox"], [role="listbox"], [contenteditable="true"]';
	const out = [];
	const seen = new Set();
	let idx = 0;
	document.querySelectorAll(selector).forEach((el) => {
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 && rect.height === 0) return;
		let ref = el.id || el.getAttribute('data-testid') || el.name || (el.tagName.toLowerCase() + '_' + idx);
		if (seen.has(ref)) { ref = ref + '_' + idx; }
		seen.add(ref);
		idx++;
		const item = {
			ref: ref,
			tag: el.tagName.toLowerCase(),
			role: el.getAttribute('role') || '',
			text: (el.innerText || el.value || '').trim().substring(0, 80),
			x: rect.x, y: rect.y, width: rect.width, height: rect.height,
			disabled: !!el.disabled,
		};
		if (fullDetail) {
			item.attributes = {
				id: el.id || '',
				name: el.name || '',
				'data-testid': el.getAttribute('data-testid') || '',
				'aria-label': el.getAttribute('aria-label') || '',
				class: el.className || '',
			};
		}
		out.push(item);
	});
	return out;
}
`

func (p *Pipeline) extractElements(page *rod.Page, fullDetail bool) ([]coretypes.ElementDescriptor, error) {
	res, err := page.Eval(extractElementsJS, fullDetail)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.InternalError, "element extraction failed", err)
	}
	raw, _ := res.Value.Val().([]interface{})
	out := make([]coretypes.ElementDescriptor, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		d := coretypes.ElementDescriptor{
			Ref:      stringField(m, "ref"),
			Tag:      stringField(m, "tag"),
			Role:     stringField(m, "role"),
			Text:     stringField(m, "text"),
			Disabled: boolField(m, "disabled"),
			BoundingBox: &coretypes.BoundingBox{
				X:      floatField(m, "x"),
				Y:      floatField(m, "y"),
				Width:  floatField(m, "width"),
				Height: floatField(m, "height"),
			},
		}
		if attrs, ok := m["attributes"].(map[string]interface{}); ok {
			d.Attributes = make(map[string]string, len(attrs))
			for k, v := range attrs {
				if s, ok := v.(string); ok && s != "" {
					d.Attributes[k] = s
				}
			}
		}
		out = append(out, d)
	}
	return out, nil
}

const hiddenRegionsJS = `
() => {
	const out = [];
	document.querySelectorAll('[aria-hidden="true"], [hidden], [style*="display: none"], [style*="display:none"]').forEach((el, idx) => {
		const text = (el.innerText || '').trim();
		if (!text) return;
		out.push({ ref: 'hidden_' + idx, tag: el.tagName.toLowerCase(), text: text.substring(0, 80) });
	});
	return out;
}
`

func (p *Pipeline) extractHiddenRegions(page *rod.Page) []coretypes.ElementDescriptor {
	res, err := page.Eval(hiddenRegionsJS)
	if err != nil {
		return nil
	}
	raw, _ := res.Value.Val().([]interface{})
	out := make([]coretypes.ElementDescriptor, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, coretypes.ElementDescriptor{
			Ref:      stringField(m, "ref"),
			Tag:      stringField(m, "tag"),
			Text:     stringField(m, "text"),
			Category: "hidden",
		})
	}
	return out
}

func (p *Pipeline) domHash(page *rod.Page) (string, error) {
	res, err := page.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", err
	}
	html, _ := res.Value.Val().(string)
	sum := sha256.Sum256([]byte(html))
	return hex.EncodeToString(sum[:]), nil
}

// ttlFor shortens cache lifetime for cheaper, more volatile stages and
// lengthens it for expensive ones, so a Deep capture isn't thrown away
// after one Quick-sized interval.
func ttlFor(mode coretypes.PerceptionMode) time.Duration {
	switch mode {
	case coretypes.ModeLightning:
		return 2 * time.Second
	case coretypes.ModeQuick:
		return 5 * time.Second
	case coretypes.ModeStandard:
		return 15 * time.Second
	case coretypes.ModeDeep:
		return 30 * time.Second
	default:
		return 5 * time.Second
	}
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return "origin:" + u.Scheme + "://" + u.Host
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func boolField(m map[string]interface{}, key string) bool {
	if m == nil {
		return false
	}
	v, _ := m[key].(bool)
	return v
}

func floatField(m map[string]interface{}, key string) float64 {
	if m == nil {
		return 0
	}
	v, _ := m[key].(float64)
	return v
}
