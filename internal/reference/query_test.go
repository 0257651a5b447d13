package reference

import (
	"context"
	"errors"
	"testing"

	"ebdconsole.org/internal/access"
)

func TestCompileRefusesUnscopedQueries(t *testing.T) {
	cases := []Query{
		NewQuery(CollectionClasses, access.Scope{}),
		NewQuery(CollectionClasses, access.Scope{ClassID: "k1", MinistryID: "m1"}),
		NewQuery(Collection("members"), access.Scope{MinistryID: "m1"}),
	}
	for _, q := range cases {
		if _, err := q.Compile(); !errors.Is(err, ErrUnscopedQuery) {
			t.Fatalf("Compile(%+v) err=%v, want ErrUnscopedQuery", q, err)
		}
	}
}

func TestCompiledPredicateCarriesScope(t *testing.T) {
	scope := access.Scope{MinistryID: "m1", CongregationID: "c1", ClassID: "k1"}
	p, err := NewQuery(CollectionClasses, scope).Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if p.Scope() != scope || p.Collection() != CollectionClasses {
		t.Fatalf("unexpected predicate: %+v", p)
	}
	if err := p.Check(CollectionCongregations); !errors.Is(err, ErrUnscopedQuery) {
		t.Fatalf("predicate used on the wrong collection: %v", err)
	}
}

func TestStoreRejectsUncompiledPredicate(t *testing.T) {
	store := seededStore()
	if _, err := store.Classes(context.Background(), Predicate{}); !errors.Is(err, ErrUnscopedQuery) {
		t.Fatalf("expected ErrUnscopedQuery, got %v", err)
	}
	if _, err := store.Congregations(context.Background(), Predicate{}); !errors.Is(err, ErrUnscopedQuery) {
		t.Fatalf("expected ErrUnscopedQuery, got %v", err)
	}
}
