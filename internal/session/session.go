package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"browsercore/internal/coreerr"
	"browsercore/internal/coretypes"
	"browsercore/internal/mangle"
	"browsercore/internal/pool"
	"browsercore/internal/recorder"
)

// Session is the public metadata describing a bound browser context.
type Session struct {
	ID         string    `json:"id"`
	HandleID   string    `json:"handle_id"`
	URL        string    `json:"url,omitempty"`
	Title      string    `json:"title,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

type record struct {
	meta     Session
	page     *rod.Page
	guard    *pool.Guard
	registry *ElementRegistry
	memory   coretypes.SessionMemory
	trace    *recorder.Recorder
}

// Manager binds request streams to pinned browser handles and tracks
// every active session's element registry, memory, and decision trace.
type Manager struct {
	pool   *pool.Pool
	log    *zap.Logger
	engine *mangle.Engine // optional, nil-safe

	mu               sync.RWMutex
	sessions         map[string]*record
	traceDir         string
	traceMaxFile     int
	networkIngestion bool
}

// New builds a session Manager over the given browser pool. engine and
// networkIngestion are optional: a nil engine or networkIngestion=false
// simply skips CDP network-fact recording for every session it creates.
func New(p *pool.Pool, traceDir string, traceMaxFiles int, engine *mangle.Engine, networkIngestion bool, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		pool:             p,
		log:              log,
		engine:           engine,
		sessions:         make(map[string]*record),
		traceDir:         traceDir,
		traceMaxFile:     traceMaxFiles,
		networkIngestion: networkIngestion,
	}
}

// Create checks out a browser handle, opens a page at url, and registers a
// new session bound to that handle for the session's lifetime.
func (m *Manager) Create(ctx context.Context, url string, bcfgStealth bool, stealthPage func(*pool.Handle, string) (*rod.Page, error)) (*Session, error) {
	id := uuid.NewString()

	guard, err := m.pool.Checkout(ctx, id)
	if err != nil {
		return nil, err
	}

	page, err := stealthPage(guard.Handle(), url)
	if err != nil {
		guard.Release(true)
		return nil, coreerr.Wrap(coreerr.NavigationError, "opening session page failed", err)
	}

	trace, err := recorder.NewRecorder(m.traceDir, m.traceMaxFile)
	if err != nil {
		m.log.Warn("decision trace unavailable", zap.Error(err))
	} else {
		_ = trace.Start(id)
	}

	meta := Session{
		ID:         id,
		HandleID:   guard.Handle().ID,
		URL:        url,
		Status:     "active",
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}

	m.mu.Lock()
	m.sessions[id] = &record{
		meta:     meta,
		page:     page,
		guard:    guard,
		registry: NewElementRegistry(),
		memory:   coretypes.SessionMemory{Values: make(map[string]interface{})},
		trace:    trace,
	}
	m.mu.Unlock()

	m.watchNetwork(id, page)

	return &meta, nil
}

// Fork opens a new session on a freshly checked-out handle at the source
// session's URL. Only the URL carries over: the new session starts with
// an empty element registry and memory and shares no live browser state.
func (m *Manager) Fork(ctx context.Context, sourceID string, stealthPage func(*pool.Handle, string) (*rod.Page, error)) (*Session, error) {
	m.mu.RLock()
	src, ok := m.sessions[sourceID]
	m.mu.RUnlock()
	if !ok {
		return nil, coreerr.New(coreerr.NotFound, fmt.Sprintf("session %s not found", sourceID))
	}
	return m.Create(ctx, src.meta.URL, false, stealthPage)
}

// Get returns session metadata.
func (m *Manager) Get(id string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return rec.meta, true
}

// Page returns the underlying Rod page for a session.
func (m *Manager) Page(id string) (*rod.Page, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return rec.page, true
}

// Registry returns the element registry for a session.
func (m *Manager) Registry(id string) *ElementRegistry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[id]
	if !ok {
		return nil
	}
	return rec.registry
}

// Memory returns the mutable scratch memory for a session.
func (m *Manager) Memory(id string) (*coretypes.SessionMemory, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return &rec.memory, true
}

// Trace logs a decision-trace entry for a session, a no-op if tracing
// failed to initialize.
func (m *Manager) Trace(id, eventType string, data interface{}) {
	m.mu.RLock()
	rec, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || rec.trace == nil {
		return
	}
	rec.trace.Log(eventType, id, data)
}

// UpdateMetadata applies updater to a session's metadata, e.g. after
// navigation changes URL/title.
func (m *Manager) UpdateMetadata(id string, updater func(Session) Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return
	}
	rec.meta = updater(rec.meta)
	rec.meta.LastActive = time.Now()
}

// List returns metadata for every active session.
func (m *Manager) List() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Session, 0, len(m.sessions))
	for _, rec := range m.sessions {
		out = append(out, rec.meta)
	}
	return out
}

// Close releases a session's handle back to the pool and tears down
// its page and trace file.
func (m *Manager) Close(id string, handleBad bool) error {
	m.mu.Lock()
	rec, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return errors.New("session not found")
	}

	if rec.page != nil {
		_ = rec.page.Close()
	}
	if rec.trace != nil {
		_ = rec.trace.Close()
	}
	rec.guard.Release(handleBad)
	return nil
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
