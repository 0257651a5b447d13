package reference

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ebdconsole.org/internal/access"
)

func seededStore() *InMemoryStore {
	s := NewInMemoryStore()
	s.PutCongregation(Congregation{ID: "c1", Name: "Central", MinistryID: "m1"})
	s.PutCongregation(Congregation{ID: "c2", Name: "Norte", MinistryID: "m1"})
	s.PutCongregation(Congregation{ID: "cx", Name: "Other ministry", MinistryID: "m2"})
	s.PutClass(Class{ID: "k1", Name: "Adultos", MinistryID: "m1", CongregationID: "c1"})
	s.PutClass(Class{ID: "k2", Name: "Jovens", MinistryID: "m1", CongregationID: "c1"})
	s.PutClass(Class{ID: "k3", Name: "Juniores", MinistryID: "m1", CongregationID: "c2"})
	s.PutClass(Class{ID: "kx", Name: "Foreign", MinistryID: "m2", CongregationID: "cx"})
	return s
}

func TestClassSecretaryLoadSynthesizesWithoutRoundTrip(t *testing.T) {
	identity := access.Identity{ID: "u1", Role: "secretario_classe", MinistryID: "m1", CongregationID: "c1", ClassID: "k1", ClassName: "Adultos"}
	scope, err := access.Resolve(identity)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if scope != (access.Scope{MinistryID: "m1", CongregationID: "c1", ClassID: "k1"}) {
		t.Fatalf("unexpected scope: %+v", scope)
	}

	store := seededStore()
	snap, err := NewCache(store).Load(context.Background(), scope, HintsFor(identity))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Congregations) != 1 || snap.Congregations[0].ID != "c1" {
		t.Fatalf("expected only c1, got %+v", snap.Congregations)
	}
	if len(snap.Classes) != 1 || snap.Classes[0].ID != "k1" || snap.Classes[0].Name != "Adultos" {
		t.Fatalf("expected only k1, got %+v", snap.Classes)
	}
	if store.Queries() != 0 {
		t.Fatalf("expected no round trips, got %d", store.Queries())
	}
}

func TestCongregationAdminLoadFetchesOnlyOwnClasses(t *testing.T) {
	store := seededStore()
	scope := access.Scope{MinistryID: "m1", CongregationID: "c1"}
	snap, err := NewCache(store).Load(context.Background(), scope, Hints{CongregationName: "Central"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Congregations) != 1 || snap.Congregations[0].Name != "Central" {
		t.Fatalf("unexpected congregations: %+v", snap.Congregations)
	}
	if len(snap.Classes) != 2 {
		t.Fatalf("expected 2 classes, got %+v", snap.Classes)
	}
	for _, c := range snap.Classes {
		if c.CongregationID != "c1" {
			t.Fatalf("sibling class leaked: %+v", c)
		}
	}
	if store.Queries() != 1 {
		t.Fatalf("expected one round trip, got %d", store.Queries())
	}
}

func TestTenantOwnerLoadFetchesWholeMinistry(t *testing.T) {
	store := seededStore()
	snap, err := NewCache(store).Load(context.Background(), access.Scope{MinistryID: "m1"}, Hints{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Congregations) != 2 || len(snap.Classes) != 3 {
		t.Fatalf("unexpected snapshot: %d congregations, %d classes", len(snap.Congregations), len(snap.Classes))
	}
	if _, ok := snap.Class("kx"); ok {
		t.Fatal("class from another ministry leaked")
	}
	if got := snap.ClassesOf("c2"); len(got) != 1 || got[0].ID != "k3" {
		t.Fatalf("ClassesOf(c2)=%+v", got)
	}
	if store.Queries() != 2 {
		t.Fatalf("expected two round trips, got %d", store.Queries())
	}
}

type flakyStore struct {
	*InMemoryStore
	mu   sync.Mutex
	fail bool
}

func (f *flakyStore) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *flakyStore) Classes(ctx context.Context, p Predicate) ([]Class, error) {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset")
	}
	return f.InMemoryStore.Classes(ctx, p)
}

func TestRefetchFailureKeepsSnapshot(t *testing.T) {
	store := &flakyStore{InMemoryStore: seededStore()}
	cache := NewCache(store)
	ctx := context.Background()

	if _, err := cache.Refetch(ctx); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}

	first, err := cache.Load(ctx, access.Scope{MinistryID: "m1", CongregationID: "c1"}, Hints{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	store.setFail(true)
	_, err = cache.Refetch(ctx)
	if !errors.Is(err, ErrTransientFetch) {
		t.Fatalf("expected ErrTransientFetch, got %v", err)
	}
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Message() == "" {
		t.Fatalf("expected FetchError with message, got %v", err)
	}
	current, ok := cache.Snapshot()
	if !ok || current.Version != first.Version || len(current.Classes) != len(first.Classes) {
		t.Fatalf("snapshot changed after failed refetch: %+v", current)
	}

	store.setFail(false)
	store.PutClass(Class{ID: "k9", Name: "Novos", MinistryID: "m1", CongregationID: "c1"})
	next, err := cache.Refetch(ctx)
	if err != nil {
		t.Fatalf("Refetch: %v", err)
	}
	if next.Version <= first.Version || len(next.Classes) != 3 {
		t.Fatalf("refetch did not replace snapshot: %+v", next)
	}
}

// gatedStore blocks the first classes query until released.
type gatedStore struct {
	*InMemoryStore
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
	stale   []Class
}

func (g *gatedStore) Classes(ctx context.Context, p Predicate) ([]Class, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.mu.Unlock()
	if call == 1 {
		close(g.entered)
		<-g.release
		return g.stale, nil
	}
	return g.InMemoryStore.Classes(ctx, p)
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	store := &gatedStore{
		InMemoryStore: seededStore(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
		stale:         []Class{{ID: "old", Name: "Old", MinistryID: "m1", CongregationID: "c1"}},
	}
	cache := NewCache(store)
	scope := access.Scope{MinistryID: "m1", CongregationID: "c1"}
	ctx := context.Background()

	done := make(chan Snapshot, 1)
	go func() {
		snap, err := cache.Load(ctx, scope, Hints{})
		if err != nil {
			t.Errorf("slow Load: %v", err)
		}
		done <- snap
	}()
	<-store.entered

	fresh, err := cache.Refetch(ctx)
	if err != nil {
		t.Fatalf("Refetch: %v", err)
	}
	close(store.release)

	select {
	case late := <-done:
		if late.Version != fresh.Version {
			t.Fatalf("late caller should observe the newer snapshot, got version %d want %d", late.Version, fresh.Version)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("slow load did not return")
	}

	current, _ := cache.Snapshot()
	if _, ok := current.Class("old"); ok {
		t.Fatal("stale response overwrote a newer snapshot")
	}
	if len(current.Classes) != 2 {
		t.Fatalf("unexpected classes: %+v", current.Classes)
	}
}

type dupStore struct{ *InMemoryStore }

func (d dupStore) Classes(context.Context, Predicate) ([]Class, error) {
	c := Class{ID: "k1", MinistryID: "m1", CongregationID: "c1"}
	return []Class{c, c}, nil
}

type leakyStore struct{ *InMemoryStore }

func (l leakyStore) Classes(context.Context, Predicate) ([]Class, error) {
	return []Class{{ID: "k3", MinistryID: "m1", CongregationID: "c2"}}, nil
}

func TestLoadRejectsDuplicateAndOutOfScopeDocuments(t *testing.T) {
	scope := access.Scope{MinistryID: "m1", CongregationID: "c1"}
	if _, err := NewCache(dupStore{seededStore()}).Load(context.Background(), scope, Hints{}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if _, err := NewCache(leakyStore{seededStore()}).Load(context.Background(), scope, Hints{}); !errors.Is(err, ErrOutsideScope) {
		t.Fatalf("expected ErrOutsideScope, got %v", err)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	cache := NewCache(seededStore())
	if _, err := cache.Load(context.Background(), access.Scope{MinistryID: "m1"}, Hints{}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap, _ := cache.Snapshot()
	snap.Classes[0].Name = "mutated"
	again, _ := cache.Snapshot()
	if again.Classes[0].Name == "mutated" {
		t.Fatal("snapshot shares memory with the cache")
	}
}
