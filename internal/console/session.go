package console

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"ebdconsole.org/internal/access"
	"ebdconsole.org/internal/audit"
	"ebdconsole.org/internal/live"
	"ebdconsole.org/internal/obs"
	"ebdconsole.org/internal/reference"
)

// Session is the console state of one identity version.
type Session struct {
	manager     *Manager
	identity    access.Identity
	scope       access.Scope
	fingerprint string
	cache       *reference.Cache
	startedAt   time.Time
	stop        context.CancelFunc
	used        atomic.Int64

	mu            sync.Mutex
	presentations map[string]*Presentation
	closed        bool
}

func newSession(m *Manager, identity access.Identity, scope access.Scope) *Session {
	s := &Session{
		manager:       m,
		identity:      identity,
		scope:         scope,
		fingerprint:   identity.Fingerprint(),
		cache:         reference.NewCache(m.store, reference.WithClock(m.now)),
		startedAt:     m.now(),
		presentations: make(map[string]*Presentation),
	}
	if m.hub != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.stop = cancel
		go s.follow(ctx, m.hub.Subscribe(ctx, scope))
	}
	return s
}

func (s *Session) touch(t time.Time)   { s.used.Store(t.UnixNano()) }
func (s *Session) lastUsed() time.Time { return time.Unix(0, s.used.Load()) }

func (s *Session) Identity() access.Identity { return s.identity }
func (s *Session) Scope() access.Scope       { return s.scope }
func (s *Session) StartedAt() time.Time      { return s.startedAt }

// Reference returns the reference snapshot, loading it on first use.
func (s *Session) Reference(ctx context.Context) (reference.Snapshot, error) {
	if snap, ok := s.cache.Snapshot(); ok {
		return snap, nil
	}
	return s.cache.Load(ctx, s.scope, reference.HintsFor(s.identity))
}

// Refetch reloads reference data. On failure the previous snapshot is kept.
func (s *Session) Refetch(ctx context.Context) (reference.Snapshot, error) {
	snap, err := s.cache.Refetch(ctx)
	if errors.Is(err, reference.ErrNotLoaded) {
		snap, err = s.cache.Load(ctx, s.scope, reference.HintsFor(s.identity))
	}
	_ = audit.LogEvent(ctx, "reference.refetch", map[string]any{
		"scope":   s.scope.String(),
		"ok":      err == nil,
		"version": snap.Version,
	})
	return snap, err
}

// follow refetches on every invalidation until the session closes. Sessions
// that never loaded reference data have nothing to refresh.
func (s *Session) follow(ctx context.Context, events <-chan live.Invalidation) {
	for evt := range events {
		if _, loaded := s.cache.Snapshot(); !loaded {
			continue
		}
		rctx, cancel := context.WithTimeout(ctx, s.manager.refetchTimeout)
		rctx = access.ContextWithIdentity(rctx, s.identity)
		_, err := s.Refetch(rctx)
		cancel()
		if err != nil {
			obs.Warn("invalidation_refetch_failed", map[string]any{
				"identity_id": s.identity.ID,
				"collection":  evt.Collection,
				"error":       err.Error(),
			})
		}
	}
}

// Presentations lists open presentation ids, oldest first.
func (s *Session) Presentations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.presentations))
	for id := range s.presentations {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Session) presentation(id string) (*Presentation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.presentations[id]
	if !ok {
		return nil, ErrPresentationNotFound
	}
	return p, nil
}

func (s *Session) close(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	n := len(s.presentations)
	for id := range s.presentations {
		delete(s.presentations, id)
		obs.PresentationClosed()
	}
	s.mu.Unlock()

	if s.stop != nil {
		s.stop()
	}
	obs.Info("console_session_closed", map[string]any{
		"identity_id":   s.identity.ID,
		"reason":        reason,
		"presentations": n,
	})
}
