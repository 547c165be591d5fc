package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/prismrun/prism/internal/event"
	"github.com/prismrun/prism/internal/logging"
	"github.com/prismrun/prism/internal/perr"
	"github.com/prismrun/prism/pkg/types"
)

// DefaultTTL is how long a session may sit idle before the sweep evicts it.
const DefaultTTL = 30 * time.Minute

// DefaultMaxTurns bounds a session's agentic loop when the caller doesn't
// specify one explicitly.
const DefaultMaxTurns = 50

// sweepInterval is how often the eviction sweep runs.
const sweepInterval = 5 * time.Minute

// entry pairs a session with the per-session bus its Agent Loop publishes
// to and its SSE Emitter subscribes from.
type entry struct {
	session *types.Session
	bus     *event.Bus
}

// Manager is the Session Manager: an in-memory, TTL-evicted registry of
// active sessions, per spec.md §4.1. It holds no disk-backed state —
// sessions are gone once evicted or the process exits.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	ttl      time.Duration
	loop     *Loop

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewManager creates a Manager that runs turns through loop and evicts
// sessions idle for longer than ttl (DefaultTTL if ttl <= 0).
func NewManager(loop *Loop, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		loop:     loop,
		stopCh:   make(chan struct{}),
	}
	go m.evictLoop()
	return m
}

// Create registers a new session rooted at projectRoot under profile, and
// returns it immediately idle.
func (m *Manager) Create(projectRoot string, profile *types.AgentProfile, maxTurns int) *types.Session {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	id := ulid.Make().String()
	sess := types.NewSession(id, projectRoot, profile, maxTurns)

	m.mu.Lock()
	m.sessions[id] = &entry{session: sess, bus: event.NewBus()}
	m.mu.Unlock()

	logging.Info().Str("session", id).Str("projectRoot", projectRoot).Msg("session created")
	return sess
}

// Get looks up a session by id.
func (m *Manager) Get(id string) (*types.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Bus returns the event bus feeding a session's SSE Emitter.
func (m *Manager) Bus(id string) (*event.Bus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return e.bus, true
}

// Delete drops a session, cancelling any in-flight turn and closing its bus.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return
	}
	e.session.Cancel()
	e.bus.Close()
	logging.Info().Str("session", id).Msg("session deleted")
}

// Abort cancels a session's in-flight turn, if any, without deleting it.
func (m *Manager) Abort(id string) error {
	sess, ok := m.Get(id)
	if !ok {
		return perr.New(perr.Validation, fmt.Sprintf("session %q not found", id))
	}
	sess.Cancel()
	return nil
}

// List returns a read-only summary of every active session.
func (m *Manager) List() []types.Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Summary, 0, len(m.sessions))
	for _, e := range m.sessions {
		out = append(out, e.session.ToSummary())
	}
	return out
}

// Stats summarizes the session population, per spec.md §4.1.
func (m *Manager) Stats() types.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := types.Stats{Total: len(m.sessions)}
	for _, e := range m.sessions {
		s := e.session.ToSummary()
		if stats.Oldest.IsZero() || s.CreatedAt.Before(stats.Oldest) {
			stats.Oldest = s.CreatedAt
		}
		if s.CreatedAt.After(stats.Newest) {
			stats.Newest = s.CreatedAt
		}
		if time.Since(s.LastActivity) <= 5*time.Minute {
			stats.ActiveWithin5Min++
		}
	}
	return stats
}

// Process runs one user turn against sessionID's Agent Loop, holding the
// session's lock for the duration so at most one turn is ever in flight
// per session. ctx is re-armed as the session's cancellation source: a
// caller that passes its HTTP request context means a client disconnect
// cancels the in-flight turn exactly as Manager.Abort would.
func (m *Manager) Process(ctx context.Context, sessionID, userText string) (*types.Message, error) {
	sess, ok := m.Get(sessionID)
	if !ok {
		return nil, perr.New(perr.Validation, fmt.Sprintf("session %q not found", sessionID))
	}
	bus, _ := m.Bus(sessionID)

	sess.Lock()
	defer sess.Unlock()

	sess.Rearm(ctx)
	return m.loop.Run(sess.Context(), sess, bus, userText)
}

func (m *Manager) evictLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *Manager) evictIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.sessions {
		if e.session.IdleSince() > m.ttl {
			e.session.Cancel()
			e.bus.Close()
			delete(m.sessions, id)
			logging.Info().Str("session", id).Dur("ttl", m.ttl).Msg("session evicted")
		}
	}
}

// Close stops the eviction sweep. Active sessions are left in place.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}
