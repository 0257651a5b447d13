// Package console keeps per-identity state for the operator console: the
// resolved scope, the reference cache and the open report presentations.
// A session is rebuilt from scratch whenever the identity changes, so no
// state computed under an old role or assignment survives.
package console

import (
	"errors"
	"sync"
	"time"

	"ebdconsole.org/internal/access"
	"ebdconsole.org/internal/live"
	"ebdconsole.org/internal/obs"
	"ebdconsole.org/internal/reference"
	"ebdconsole.org/internal/report"
)

var (
	ErrPresentationNotFound = errors.New("presentation not found")
	ErrUnknownCommand       = errors.New("unknown presentation command")
	ErrSessionClosed        = errors.New("session closed")
)

// Option configures a Manager.
type Option func(*Manager)

// WithHub makes sessions refetch their reference data on invalidations.
func WithHub(h *live.Hub) Option {
	return func(m *Manager) { m.hub = h }
}

// WithRefetchTimeout bounds refetches triggered by invalidations.
func WithRefetchTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refetchTimeout = d
		}
	}
}

// WithIdleTimeout sets how long an unused session stays resident.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.idleTimeout = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

type Manager struct {
	store          reference.DocumentStore
	reports        report.Service
	hub            *live.Hub
	refetchTimeout time.Duration
	idleTimeout    time.Duration
	now            func() time.Time

	mu        sync.Mutex
	sessions  map[string]*Session
	lastSweep time.Time
}

func NewManager(store reference.DocumentStore, reports report.Service, opts ...Option) *Manager {
	m := &Manager{
		store:          store,
		reports:        reports,
		refetchTimeout: 10 * time.Second,
		idleTimeout:    30 * time.Minute,
		now:            func() time.Time { return time.Now().UTC() },
		sessions:       make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Session returns the session for identity, replacing it when the identity
// changed since the session was built. An identity that resolves to no scope
// gets no session and any previous one is dropped.
func (m *Manager) Session(identity access.Identity) (*Session, error) {
	scope, err := access.Resolve(identity)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Sub(m.lastSweep) >= m.idleTimeout/sweepFraction {
		m.evictLocked(now)
	}

	prev := m.sessions[identity.ID]
	if err != nil {
		if prev != nil {
			delete(m.sessions, identity.ID)
			prev.close("identity_incomplete")
		}
		return nil, err
	}
	if prev != nil && prev.fingerprint == identity.Fingerprint() {
		prev.touch(now)
		return prev, nil
	}
	if prev != nil {
		prev.close("identity_changed")
	}

	s := newSession(m, identity, scope)
	s.touch(now)
	m.sessions[identity.ID] = s
	obs.Info("console_session_started", map[string]any{
		"identity_id": identity.ID,
		"tier":        scope.Tier().String(),
		"scope":       scope.String(),
	})
	return s, nil
}

// End drops the session of identityID, closing its presentations.
func (m *Manager) End(identityID string) {
	m.mu.Lock()
	s := m.sessions[identityID]
	delete(m.sessions, identityID)
	m.mu.Unlock()
	if s != nil {
		s.close("ended")
	}
}

// Sessions returns the number of live sessions.
func (m *Manager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// sweepFraction spreads idle sweeps over the timeout window.
const sweepFraction = 4

// EvictIdle closes sessions unused for longer than the idle timeout and
// returns how many were closed. Session calls sweep on their own as well.
func (m *Manager) EvictIdle() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictLocked(now)
}

func (m *Manager) evictLocked(now time.Time) int {
	m.lastSweep = now
	evicted := 0
	for id, s := range m.sessions {
		if now.Sub(s.lastUsed()) <= m.idleTimeout {
			continue
		}
		delete(m.sessions, id)
		s.close("idle")
		evicted++
	}
	return evicted
}

// Close ends every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.close("shutdown")
	}
}
