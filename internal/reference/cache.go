package reference

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"ebdconsole.org/internal/access"
	"ebdconsole.org/internal/obs"
)

// Cache holds the reference entities visible under a scope. Every screen reads
// the same snapshot; only Load and Refetch replace it, atomically.
//
// Each load takes a sequence token when it is issued. A response is applied
// only if its token is newer than the one behind the current snapshot, so the
// last issued request wins regardless of arrival order.
type Cache struct {
	store DocumentStore
	now   func() time.Time

	issued atomic.Uint64

	mu       sync.RWMutex
	applied  uint64
	snapshot Snapshot
	loaded   bool
	scope    access.Scope
	hints    Hints
	hasScope bool
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) CacheOption {
	return func(c *Cache) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCache creates an empty cache reading from store.
func NewCache(store DocumentStore, opts ...CacheOption) *Cache {
	c := &Cache{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load fetches the entities visible under scope and replaces the snapshot.
// On failure the previous snapshot is kept and a *FetchError is returned. A
// response overtaken by a newer request is dropped and the newer snapshot is
// returned instead.
func (c *Cache) Load(ctx context.Context, scope access.Scope, hints Hints) (Snapshot, error) {
	c.mu.Lock()
	c.scope, c.hints, c.hasScope = scope, hints, true
	c.mu.Unlock()
	return c.load(ctx, scope, hints)
}

// Refetch re-runs the last Load.
func (c *Cache) Refetch(ctx context.Context) (Snapshot, error) {
	c.mu.RLock()
	scope, hints, ok := c.scope, c.hints, c.hasScope
	c.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrNotLoaded
	}
	return c.load(ctx, scope, hints)
}

// Snapshot returns a copy of the current snapshot.
func (c *Cache) Snapshot() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return Snapshot{}, false
	}
	return c.snapshot.clone(), true
}

func (c *Cache) load(ctx context.Context, scope access.Scope, hints Hints) (Snapshot, error) {
	token := c.issued.Add(1)
	tier := scope.Tier().String()

	congregations, classes, err := c.fetch(ctx, scope, hints)
	if err != nil {
		obs.ObserveReferenceLoad(tier, "error")
		obs.Warn("reference_fetch_failed", map[string]any{
			"scope": scope.String(),
			"token": token,
			"error": err.Error(),
		})
		return Snapshot{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if token <= c.applied {
		obs.ObserveStaleDiscard()
		obs.Debug("reference_stale_response", map[string]any{
			"scope":   scope.String(),
			"token":   token,
			"applied": c.applied,
		})
		return c.snapshot.clone(), nil
	}
	c.applied = token
	c.loaded = true
	c.snapshot = Snapshot{
		Scope:         scope,
		Congregations: congregations,
		Classes:       classes,
		Version:       token,
		LoadedAt:      c.now(),
	}
	obs.ObserveReferenceLoad(tier, "ok")
	return c.snapshot.clone(), nil
}

// fetch narrows the round trips by tier: the ministry tier queries both
// collections, the congregation tier only its classes, the class tier nothing.
func (c *Cache) fetch(ctx context.Context, scope access.Scope, hints Hints) ([]Congregation, []Class, error) {
	if !scope.Valid() {
		return nil, nil, &FetchError{Collection: CollectionCongregations, Err: ErrUnscopedQuery}
	}

	switch scope.Tier() {
	case access.TierClassSecretary:
		return []Congregation{synthCongregation(scope, hints)}, []Class{synthClass(scope, hints)}, nil

	case access.TierCongregationAdmin:
		classes, err := c.queryClasses(ctx, scope)
		if err != nil {
			return nil, nil, err
		}
		return []Congregation{synthCongregation(scope, hints)}, classes, nil

	default:
		var (
			congregations []Congregation
			classes       []Class
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			congregations, err = c.queryCongregations(gctx, scope)
			return err
		})
		g.Go(func() error {
			var err error
			classes, err = c.queryClasses(gctx, scope)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
		return congregations, classes, nil
	}
}

func (c *Cache) queryCongregations(ctx context.Context, scope access.Scope) ([]Congregation, error) {
	p, err := NewQuery(CollectionCongregations, scope).Compile()
	if err != nil {
		return nil, &FetchError{Collection: CollectionCongregations, Err: err}
	}
	items, err := c.store.Congregations(ctx, p)
	if err != nil {
		return nil, &FetchError{Collection: CollectionCongregations, Err: err}
	}
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			return nil, &FetchError{Collection: CollectionCongregations, Err: ErrDuplicateID}
		}
		if !p.MatchCongregation(item) {
			return nil, &FetchError{Collection: CollectionCongregations, Err: ErrOutsideScope}
		}
		seen[item.ID] = struct{}{}
	}
	return items, nil
}

func (c *Cache) queryClasses(ctx context.Context, scope access.Scope) ([]Class, error) {
	p, err := NewQuery(CollectionClasses, scope).Compile()
	if err != nil {
		return nil, &FetchError{Collection: CollectionClasses, Err: err}
	}
	items, err := c.store.Classes(ctx, p)
	if err != nil {
		return nil, &FetchError{Collection: CollectionClasses, Err: err}
	}
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			return nil, &FetchError{Collection: CollectionClasses, Err: ErrDuplicateID}
		}
		if !p.MatchClass(item) {
			return nil, &FetchError{Collection: CollectionClasses, Err: ErrOutsideScope}
		}
		seen[item.ID] = struct{}{}
	}
	return items, nil
}

func synthCongregation(scope access.Scope, hints Hints) Congregation {
	name := hints.CongregationName
	if name == "" {
		name = scope.CongregationID
	}
	return Congregation{ID: scope.CongregationID, Name: name, MinistryID: scope.MinistryID}
}

func synthClass(scope access.Scope, hints Hints) Class {
	name := hints.ClassName
	if name == "" {
		name = scope.ClassID
	}
	return Class{
		ID:             scope.ClassID,
		Name:           name,
		MinistryID:     scope.MinistryID,
		CongregationID: scope.CongregationID,
	}
}
