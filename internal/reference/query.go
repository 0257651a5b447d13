package reference

import (
	"fmt"

	"ebdconsole.org/internal/access"
)

// Collection names a reference collection in the document store.
type Collection string

const (
	CollectionCongregations Collection = "congregations"
	CollectionClasses       Collection = "classes"
)

// Query is an uncompiled request against a collection under a scope.
type Query struct {
	Collection Collection
	Scope      access.Scope
}

// NewQuery starts a scoped query.
func NewQuery(collection Collection, scope access.Scope) Query {
	return Query{Collection: collection, Scope: scope}
}

// Predicate is a compiled scope filter. It can only be produced by
// Query.Compile, so every store query carries the full scope.
type Predicate struct {
	collection     Collection
	ministryID     string
	congregationID string
	classID        string
	compiled       bool
}

// Compile validates the query and freezes its filter. A scope missing the
// fields its tier requires is refused.
func (q Query) Compile() (Predicate, error) {
	switch q.Collection {
	case CollectionCongregations, CollectionClasses:
	default:
		return Predicate{}, fmt.Errorf("%w: unknown collection %q", ErrUnscopedQuery, q.Collection)
	}
	if !q.Scope.Valid() {
		return Predicate{}, fmt.Errorf("%w: invalid scope %s", ErrUnscopedQuery, q.Scope)
	}
	return Predicate{
		collection:     q.Collection,
		ministryID:     q.Scope.MinistryID,
		congregationID: q.Scope.CongregationID,
		classID:        q.Scope.ClassID,
		compiled:       true,
	}, nil
}

func (p Predicate) Collection() Collection { return p.collection }
func (p Predicate) MinistryID() string     { return p.ministryID }
func (p Predicate) CongregationID() string { return p.congregationID }
func (p Predicate) ClassID() string        { return p.classID }

// Scope returns the scope the predicate was compiled from.
func (p Predicate) Scope() access.Scope {
	return access.Scope{MinistryID: p.ministryID, CongregationID: p.congregationID, ClassID: p.classID}
}

// Check is called by stores before running a predicate.
func (p Predicate) Check(collection Collection) error {
	if !p.compiled {
		return ErrUnscopedQuery
	}
	if p.collection != collection {
		return fmt.Errorf("%w: predicate for %s used on %s", ErrUnscopedQuery, p.collection, collection)
	}
	return nil
}

// MatchCongregation reports whether a congregation satisfies the predicate.
func (p Predicate) MatchCongregation(c Congregation) bool {
	if c.MinistryID != p.ministryID {
		return false
	}
	return p.congregationID == "" || c.ID == p.congregationID
}

// MatchClass reports whether a class satisfies the predicate.
func (p Predicate) MatchClass(c Class) bool {
	if c.MinistryID != p.ministryID {
		return false
	}
	if p.congregationID != "" && c.CongregationID != p.congregationID {
		return false
	}
	return p.classID == "" || c.ID == p.classID
}
