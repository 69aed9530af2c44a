package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/beliefgraph/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema/postgres.sql
var postgresSchema string

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the shared durable fact store. Locks are transaction
// scoped advisory locks, so several server processes can write safely.
type PostgresStore struct {
	*pgQueries
	*RejectionLog
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool, units *domain.UnitTable) *PostgresStore {
	return &PostgresStore{
		pgQueries:    &pgQueries{q: db, units: units},
		RejectionLog: NewRejectionLog(db),
		db:           db,
	}
}

// Migrate creates the tables if they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close is a no-op; the pool belongs to the caller.
func (s *PostgresStore) Close() error {
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) WithinLock(ctx context.Context, keys []string, fn func(ctx context.Context, tx domain.FactStore) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, key := range sortedKeys(keys) {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("acquire lock %q: %w", key, err)
		}
	}

	view := &pgTx{pgQueries: &pgQueries{q: tx, units: s.units}}
	if err := fn(ctx, view); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgQueries struct {
	q     pgQuerier
	units *domain.UnitTable
}

func (r *pgQueries) Put(ctx context.Context, t *domain.Triple) (uuid.UUID, error) {
	if err := prepareForPut(t, r.units); err != nil {
		return uuid.Nil, err
	}
	text, value, unit := objectArgs(t.Object)
	// timestamps stay strictly increasing per subject even if the wall clock steps back
	err := r.q.QueryRow(ctx,
		`INSERT INTO triples (id, subject, relation, object_text, object_value, object_unit, is_immutable, source, ts, supersedes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
		         GREATEST(clock_timestamp(), COALESCE((SELECT MAX(ts) FROM triples WHERE subject = $2) + interval '1 microsecond', '-infinity'::timestamptz)),
		         $9)
		 RETURNING ts`,
		t.ID, t.Subject, t.Relation, text, value, unit, t.IsImmutable, t.Source, supersedesArg(t.Supersedes),
	).Scan(&t.Timestamp)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert triple: %w", err)
	}
	t.Timestamp = t.Timestamp.UTC()
	return t.ID, nil
}

func (r *pgQueries) GetByID(ctx context.Context, id uuid.UUID) (*domain.Triple, error) {
	row := r.q.QueryRow(ctx,
		`SELECT `+fmt.Sprintf(tripleColumns, "ts")+` FROM triples WHERE id = $1`, id)
	t, err := scanPGTriple(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *pgQueries) Get(ctx context.Context, subject, relation string) ([]domain.Triple, error) {
	subject = domain.NormalizeTerm(subject)
	relation = domain.NormalizeTerm(relation)
	if relation == "" {
		return r.queryTriples(ctx, `WHERE subject = $1`, subject)
	}
	return r.queryTriples(ctx, `WHERE subject = $1 AND relation = $2`, subject, relation)
}

func (r *pgQueries) GetByRelation(ctx context.Context, relation string) ([]domain.Triple, error) {
	return r.queryTriples(ctx, `WHERE relation = $1`, domain.NormalizeTerm(relation))
}

func (r *pgQueries) GetByClass(ctx context.Context, class string) ([]domain.Triple, error) {
	return walkClass(ctx, r, class)
}

func (r *pgQueries) instanceEdgesTo(ctx context.Context, class string) ([]domain.Triple, error) {
	return r.queryTriples(ctx, `WHERE relation = $1 AND object_text = $2`, domain.RelationInstanceOf, class)
}

func (r *pgQueries) Retract(ctx context.Context, id uuid.UUID) error {
	var immutable bool
	err := r.q.QueryRow(ctx, `SELECT is_immutable FROM triples WHERE id = $1`, id).Scan(&immutable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if immutable {
		return ErrImmutableViolation
	}
	tag, err := r.q.Exec(ctx, `DELETE FROM triples WHERE id = $1 AND NOT is_immutable`, id)
	if err != nil {
		return fmt.Errorf("delete triple: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgQueries) queryTriples(ctx context.Context, where string, args ...any) ([]domain.Triple, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+fmt.Sprintf(tripleColumns, "ts")+` FROM triples `+where+` ORDER BY ts DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query triples: %w", err)
	}
	defer rows.Close()

	var out []domain.Triple
	for rows.Next() {
		t, err := scanPGTriple(rows)
		if err != nil {
			return nil, fmt.Errorf("scan triple: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type pgTx struct {
	*pgQueries
}

func (t *pgTx) WithinLock(ctx context.Context, keys []string, fn func(ctx context.Context, tx domain.FactStore) error) error {
	return fn(ctx, t)
}

func scanPGTriple(row pgx.Row) (domain.Triple, error) {
	var (
		t          domain.Triple
		text, unit sql.NullString
		value      sql.NullFloat64
		supersedes sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Subject, &t.Relation, &text, &value, &unit, &t.IsImmutable, &t.Source, &t.Timestamp, &supersedes); err != nil {
		return t, err
	}
	t.Object = objectFromColumns(text, value, unit)
	t.Timestamp = t.Timestamp.UTC()
	sup, err := parseSupersedes(supersedes)
	if err != nil {
		return t, err
	}
	t.Supersedes = sup
	return t, nil
}
