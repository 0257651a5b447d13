package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"ebdconsole.org/internal/reference"
)

const (
	pgErrUndefinedTable    = "42P01"
	pgErrQueryCanceled     = "57014"
	pgErrClassConnection   = "08"
	pgErrClassInsufficient = "53"
)

// ErrSchemaMissing is returned when the reference tables have not been migrated.
var ErrSchemaMissing = errors.New("reference schema missing")

// Store reads congregations and classes from PostgreSQL. It never writes.
type Store struct {
	db *sql.DB
}

var _ reference.DocumentStore = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Read-only workload; small pool is enough per console instance.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping is used by readiness checks.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Congregations(ctx context.Context, p reference.Predicate) ([]reference.Congregation, error) {
	if err := p.Check(reference.CollectionCongregations); err != nil {
		return nil, err
	}
	where, args := scopeClause(p, "id", "")
	rows, err := s.db.QueryContext(ctx, `
		select id, name, ministry_id
		from congregations
		where `+where+`
		order by name, id
	`, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []reference.Congregation
	for rows.Next() {
		var c reference.Congregation
		if err := rows.Scan(&c.ID, &c.Name, &c.MinistryID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (s *Store) Classes(ctx context.Context, p reference.Predicate) ([]reference.Class, error) {
	if err := p.Check(reference.CollectionClasses); err != nil {
		return nil, err
	}
	where, args := scopeClause(p, "congregation_id", "id")
	rows, err := s.db.QueryContext(ctx, `
		select id, name, ministry_id, congregation_id, age_min, age_max
		from classes
		where `+where+`
		order by name, id
	`, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []reference.Class
	for rows.Next() {
		var (
			c              reference.Class
			ageMin, ageMax sql.NullInt32
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.MinistryID, &c.CongregationID, &ageMin, &ageMax); err != nil {
			return nil, err
		}
		c.AgeMin = nullableInt(ageMin)
		c.AgeMax = nullableInt(ageMax)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// scopeClause renders the predicate as a where clause. The ministry filter is
// always present; congregation and class filters follow the scope tier.
func scopeClause(p reference.Predicate, congregationCol, classCol string) (string, []any) {
	conds := []string{"ministry_id = $1"}
	args := []any{p.MinistryID()}
	if id := p.CongregationID(); id != "" && congregationCol != "" {
		args = append(args, id)
		conds = append(conds, fmt.Sprintf("%s = $%d", congregationCol, len(args)))
	}
	if id := p.ClassID(); id != "" && classCol != "" {
		args = append(args, id)
		conds = append(conds, fmt.Sprintf("%s = $%d", classCol, len(args)))
	}
	return strings.Join(conds, " and "), args
}

func mapError(err error) error {
	pgErr, ok := maybePgError(err)
	if !ok {
		return err
	}
	switch {
	case pgErr.Code == pgErrUndefinedTable:
		return fmt.Errorf("%w: %s", ErrSchemaMissing, pgErr.Message)
	case pgErr.Code == pgErrQueryCanceled:
		return fmt.Errorf("query canceled: %w", err)
	case strings.HasPrefix(pgErr.Code, pgErrClassConnection), strings.HasPrefix(pgErr.Code, pgErrClassInsufficient):
		return fmt.Errorf("database unavailable: %w", err)
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullableInt(v sql.NullInt32) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int32)
	return &n
}
