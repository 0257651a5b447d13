package reference

import (
	"context"
	"sort"
	"sync"
)

// DocumentStore is the read side of the live document store. Implementations
// must reject predicates that fail Predicate.Check.
type DocumentStore interface {
	Congregations(ctx context.Context, p Predicate) ([]Congregation, error)
	Classes(ctx context.Context, p Predicate) ([]Class, error)
}

// InMemoryStore implements DocumentStore for tests and local runs.
type InMemoryStore struct {
	mu            sync.RWMutex
	congregations map[string]Congregation
	classes       map[string]Class
	queries       int
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		congregations: make(map[string]Congregation),
		classes:       make(map[string]Class),
	}
}

// PutCongregation inserts or replaces a congregation.
func (s *InMemoryStore) PutCongregation(c Congregation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.congregations[c.ID] = c
}

// PutClass inserts or replaces a class.
func (s *InMemoryStore) PutClass(c Class) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[c.ID] = c
}

// Queries reports how many round trips the store has served.
func (s *InMemoryStore) Queries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries
}

func (s *InMemoryStore) Congregations(ctx context.Context, p Predicate) ([]Congregation, error) {
	if err := p.Check(CollectionCongregations); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++

	var out []Congregation
	for _, c := range s.congregations {
		if p.MatchCongregation(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return byNameThenID(out[i].Name, out[i].ID, out[j].Name, out[j].ID) })
	return out, nil
}

func (s *InMemoryStore) Classes(ctx context.Context, p Predicate) ([]Class, error) {
	if err := p.Check(CollectionClasses); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++

	var out []Class
	for _, c := range s.classes {
		if p.MatchClass(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return byNameThenID(out[i].Name, out[i].ID, out[j].Name, out[j].ID) })
	return out, nil
}

func byNameThenID(nameA, idA, nameB, idB string) bool {
	if nameA != nameB {
		return nameA < nameB
	}
	return idA < idB
}
