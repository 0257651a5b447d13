package pg

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"ebdconsole.org/internal/access"
	"ebdconsole.org/internal/reference"
)

func compile(t *testing.T, collection reference.Collection, scope access.Scope) reference.Predicate {
	t.Helper()
	p, err := reference.NewQuery(collection, scope).Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return p
}

func TestCongregationsFiltersByMinistry(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := New(db)

	mock.ExpectQuery(regexp.QuoteMeta("from congregations")).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "ministry_id"}).
			AddRow("c1", "Central", "m1").
			AddRow("c2", "Norte", "m1"))

	got, err := store.Congregations(context.Background(), compile(t, reference.CollectionCongregations, access.Scope{MinistryID: "m1"}))
	if err != nil {
		t.Fatalf("Congregations: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c1" || got[1].MinistryID != "m1" {
		t.Fatalf("unexpected congregations: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestClassesFiltersByCongregation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := New(db)

	mock.ExpectQuery(regexp.QuoteMeta("where ministry_id = $1 and congregation_id = $2")).
		WithArgs("m1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "ministry_id", "congregation_id", "age_min", "age_max"}).
			AddRow("k1", "Adultos", "m1", "c1", 18, nil).
			AddRow("k2", "Jovens", "m1", "c1", nil, nil))

	got, err := store.Classes(context.Background(), compile(t, reference.CollectionClasses, access.Scope{MinistryID: "m1", CongregationID: "c1"}))
	if err != nil {
		t.Fatalf("Classes: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 classes, got %d", len(got))
	}
	if got[0].AgeMin == nil || *got[0].AgeMin != 18 || got[0].AgeMax != nil {
		t.Fatalf("age bounds not mapped: %+v", got[0])
	}
	if got[1].AgeMin != nil {
		t.Fatalf("expected nil AgeMin, got %v", *got[1].AgeMin)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUncompiledPredicateNeverReachesDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := New(db)

	if _, err := store.Classes(context.Background(), reference.Predicate{}); !errors.Is(err, reference.ErrUnscopedQuery) {
		t.Fatalf("expected ErrUnscopedQuery, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected database activity: %v", err)
	}
}

func TestMissingTableMapsToSchemaMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := New(db)

	mock.ExpectQuery("from congregations").
		WithArgs("m1").
		WillReturnError(&pgconn.PgError{Code: pgErrUndefinedTable, Message: `relation "congregations" does not exist`})

	_, err = store.Congregations(context.Background(), compile(t, reference.CollectionCongregations, access.Scope{MinistryID: "m1"}))
	if !errors.Is(err, ErrSchemaMissing) {
		t.Fatalf("expected ErrSchemaMissing, got %v", err)
	}
}

func TestScopeClause(t *testing.T) {
	p := compile(t, reference.CollectionClasses, access.Scope{MinistryID: "m1", CongregationID: "c1", ClassID: "k1"})
	where, args := scopeClause(p, "congregation_id", "id")
	if where != "ministry_id = $1 and congregation_id = $2 and id = $3" {
		t.Fatalf("unexpected clause %q", where)
	}
	if len(args) != 3 || args[2] != "k1" {
		t.Fatalf("unexpected args %v", args)
	}
}
