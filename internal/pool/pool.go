// Package pool manages a bounded set of browser instances (BrowserHandles),
// launched and supervised the way the session manager this package is
// adapted from launches and supervises its single shared browser, but
// generalized to a guarded checkout/release pool of N instances with
// liveness probing and condemned-handle retirement.
package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"browsercore/internal/config"
	"browsercore/internal/coreerr"
	"browsercore/internal/coretypes"
)

// Handle wraps a single launched Chrome instance plus its lifecycle state.
type Handle struct {
	ID         string
	Browser    *rod.Browser
	ControlURL string
	State      coretypes.HandleState
	LaunchedAt time.Time
	BoundTo    string // session id, empty when idle

	mu sync.Mutex
}

func (h *Handle) setState(s coretypes.HandleState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.State = s
}

func (h *Handle) getState() coretypes.HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.State
}

// Pool owns a set of Handles, dispensed via guarded Checkout/Release.
type Pool struct {
	cfg config.PoolConfig
	bcfg config.BrowserConfig
	log *zap.Logger

	sem     *semaphore.Weighted
	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool
}

// New builds a Pool that lazily launches handles up to MaxSize on demand.
// It launches nothing itself: Warm pre-launches MinSize handles when a
// caller invokes it, and no background task keeps the pool topped up.
func New(cfg config.PoolConfig, bcfg config.BrowserConfig, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pool{
		cfg:     cfg,
		bcfg:    bcfg,
		log:     log,
		sem:     semaphore.NewWeighted(int64(maxInt(cfg.MaxSize, 1))),
		handles: make(map[string]*Handle),
	}
	return p
}

// Warm launches MinSize handles eagerly so the first checkout doesn't pay
// launch latency.
func (p *Pool) Warm(ctx context.Context) error {
	for i := 0; i < p.cfg.MinSize; i++ {
		h, err := p.launch(ctx)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.handles[h.ID] = h
		p.mu.Unlock()
	}
	return nil
}

// Guard is a RAII-style checkout: callers must call Release exactly once.
type Guard struct {
	pool   *Pool
	handle *Handle
}

// Handle returns the checked-out handle.
func (g *Guard) Handle() *Handle { return g.handle }

// Release returns the handle to the pool, or condemns it if markBad is true.
func (g *Guard) Release(markBad bool) {
	g.pool.release(g.handle, markBad)
}

// Checkout blocks (respecting ctx) until a handle is available, launching
// a fresh one if under MaxSize and none are idle.
func (p *Pool) Checkout(ctx context.Context, sessionID string) (*Guard, error) {
	cctx, cancel := context.WithTimeout(ctx, p.cfg.Checkout())
	defer cancel()

	if err := p.sem.Acquire(cctx, 1); err != nil {
		return nil, coreerr.Wrap(coreerr.ResourceExhausted, "pool checkout timed out", err).
			WithHint("increase pool.max_size or retry later")
	}

	p.mu.Lock()
	var picked *Handle
	for _, h := range p.handles {
		if h.getState() == coretypes.HandleIdle {
			picked = h
			break
		}
	}
	p.mu.Unlock()

	if picked == nil {
		h, err := p.launch(ctx)
		if err != nil {
			p.sem.Release(1)
			return nil, err
		}
		picked = h
		p.mu.Lock()
		p.handles[h.ID] = h
		p.mu.Unlock()
	}

	picked.setState(coretypes.HandleBound)
	picked.mu.Lock()
	picked.BoundTo = sessionID
	picked.mu.Unlock()

	return &Guard{pool: p, handle: picked}, nil
}

func (p *Pool) release(h *Handle, markBad bool) {
	defer p.sem.Release(1)

	if markBad || !p.isAlive(h) {
		p.condemn(h)
		return
	}

	h.mu.Lock()
	h.BoundTo = ""
	h.mu.Unlock()
	h.setState(coretypes.HandleIdle)
}

func (p *Pool) isAlive(h *Handle) bool {
	if h.Browser == nil {
		return false
	}
	_, err := h.Browser.Version()
	return err == nil
}

func (p *Pool) condemn(h *Handle) {
	h.setState(coretypes.HandleCondemned)
	p.log.Warn("condemning browser handle", zap.String("handle_id", h.ID))
	if h.Browser != nil {
		_ = h.Browser.Close()
	}
	p.mu.Lock()
	delete(p.handles, h.ID)
	p.mu.Unlock()
}

// LivenessSweep probes every idle handle and condemns dead ones; intended
// to run on a ticker owned by the coordinator.
func (p *Pool) LivenessSweep() {
	p.mu.Lock()
	idle := make([]*Handle, 0, len(p.handles))
	for _, h := range p.handles {
		if h.getState() == coretypes.HandleIdle {
			idle = append(idle, h)
		}
	}
	p.mu.Unlock()

	for _, h := range idle {
		if !p.isAlive(h) {
			p.condemn(h)
		} else if time.Since(h.LaunchedAt) > p.cfg.MaxAge() {
			p.condemn(h)
		}
	}
}

func (p *Pool) launch(ctx context.Context) (*Handle, error) {
	var browser *rod.Browser
	var controlURL string

	op := func() (*rod.Browser, error) {
		url, err := p.resolveControlURL()
		if err != nil {
			return nil, err
		}
		controlURL = url
		b := rod.New().ControlURL(url).Context(ctx)
		if err := b.Connect(); err != nil {
			return nil, fmt.Errorf("connect to chrome: %w", err)
		}
		return b, nil
	}

	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = 500 * time.Millisecond
	boff.Multiplier = 2
	result, err := backoff.Retry(ctx, op, backoff.WithMaxTries(5), backoff.WithBackOff(boff))
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ResourceExhausted, "launching browser instance failed", err)
	}
	browser = result

	h := &Handle{
		ID:         uuid.NewString(),
		Browser:    browser,
		ControlURL: controlURL,
		State:      coretypes.HandleIdle,
		LaunchedAt: time.Now(),
	}
	p.log.Info("launched browser handle", zap.String("handle_id", h.ID), zap.String("control_url", controlURL))
	return h, nil
}

func (p *Pool) resolveControlURL() (string, error) {
	if p.bcfg.DebuggerURL != "" {
		return p.bcfg.DebuggerURL, nil
	}
	if len(p.bcfg.Launch) == 0 {
		return "", errors.New("no debugger_url or launch command provided")
	}

	bin := p.bcfg.Launch[0]
	l := launcher.New().Bin(bin).Headless(p.bcfg.IsHeadless())
	for _, rawFlag := range p.bcfg.Launch[1:] {
		flagStr := strings.TrimLeft(rawFlag, "-")
		name, val, hasVal := strings.Cut(flagStr, "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	url, err := l.Launch()
	if err != nil {
		fallback := launcher.New().Bin(bin).Headless(p.bcfg.IsHeadless())
		alt, altErr := fallback.Launch()
		if altErr != nil {
			return "", fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
		}
		return alt, nil
	}
	return url, nil
}

// StealthPage opens a new incognito page, optionally patched with stealth
// evasions, sized to the configured viewport.
func (h *Handle) StealthPage(bcfg config.BrowserConfig, url string) (*rod.Page, error) {
	incognito, err := h.Browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	var page *rod.Page
	if bcfg.Stealth {
		page, err = stealth.Page(incognito)
		if err != nil {
			return nil, fmt.Errorf("stealth page: %w", err)
		}
		if url != "" {
			if err := page.Timeout(bcfg.NavigationTimeout()).Navigate(url); err != nil {
				return page, fmt.Errorf("navigate: %w", err)
			}
		}
	} else {
		page, err = incognito.Page(emptyTarget(url))
		if err != nil {
			return nil, fmt.Errorf("create page: %w", err)
		}
	}
	return page, nil
}

// Stats summarizes the pool's current occupancy for SystemHealth.
func (p *Pool) Stats() (idle, bound int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.handles {
		switch h.getState() {
		case coretypes.HandleIdle:
			idle++
		case coretypes.HandleBound:
			bound++
		}
	}
	return idle, bound
}

// Shutdown closes every handle and releases pool resources.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, h := range p.handles {
		if h.Browser != nil {
			_ = h.Browser.Close()
		}
		delete(p.handles, id)
	}
}

func emptyTarget(url string) proto.TargetCreateTarget {
	return proto.TargetCreateTarget{URL: url}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
