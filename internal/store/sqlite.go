package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Harshitk-cp/beliefgraph/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

const tripleColumns = `id, subject, relation, object_text, object_value, object_unit, is_immutable, source, %s, supersedes`

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore is the embedded durable fact store.
type SQLiteStore struct {
	*sqliteQueries
	db    *sql.DB
	locks *keyedMutex
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string, units *domain.UnitTable) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection: sqlite has a single writer, and :memory: databases are per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	var lastUS sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(ts_us) FROM triples`).Scan(&lastUS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read latest timestamp: %w", err)
	}
	var last time.Time
	if lastUS.Valid {
		last = time.UnixMicro(lastUS.Int64).UTC()
	}

	return &SQLiteStore{
		sqliteQueries: &sqliteQueries{q: db, units: units, clock: newMonotonicClock(last)},
		db:            db,
		locks:         newKeyedMutex(),
	}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithinLock runs fn inside one sqlite transaction while holding keys.
func (s *SQLiteStore) WithinLock(ctx context.Context, keys []string, fn func(ctx context.Context, tx domain.FactStore) error) error {
	unlock, err := s.locks.lockAll(ctx, keys)
	if err != nil {
		return err
	}
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	view := &sqliteTx{sqliteQueries: &sqliteQueries{q: tx, units: s.units, clock: s.clock}}
	if err := fn(ctx, view); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordRejection(ctx context.Context, r *domain.Rejection) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.RejectedAt.IsZero() {
		r.RejectedAt = time.Now().UTC()
	}
	text, value, unit := objectArgs(r.Candidate.Object)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rejections (id, subject, relation, object_text, object_value, object_unit, source, reason, conflicting_ids, rejected_at_us)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.Candidate.Subject, r.Candidate.Relation, text, value, unit,
		r.Candidate.Source, r.Reason, joinIDs(r.ConflictingIDs), r.RejectedAt.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("insert rejection: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Rejections(ctx context.Context, subject string) ([]domain.Rejection, error) {
	query := `SELECT id, subject, relation, object_text, object_value, object_unit, source, reason, conflicting_ids, rejected_at_us
		 FROM rejections`
	var args []any
	if subject = domain.NormalizeTerm(subject); subject != "" {
		query += ` WHERE subject = ?`
		args = append(args, subject)
	}
	query += ` ORDER BY rejected_at_us DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rejections: %w", err)
	}
	defer rows.Close()

	var out []domain.Rejection
	for rows.Next() {
		var (
			r           domain.Rejection
			text, unit  sql.NullString
			value       sql.NullFloat64
			conflicting string
			atUS        int64
		)
		if err := rows.Scan(&r.ID, &r.Candidate.Subject, &r.Candidate.Relation, &text, &value, &unit,
			&r.Candidate.Source, &r.Reason, &conflicting, &atUS); err != nil {
			return nil, fmt.Errorf("scan rejection: %w", err)
		}
		r.Candidate.Object = objectFromColumns(text, value, unit)
		r.RejectedAt = time.UnixMicro(atUS).UTC()
		if r.ConflictingIDs, err = splitIDs(conflicting); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// sqliteQueries implements the read and write operations over either the
// database or an open transaction.
type sqliteQueries struct {
	q     sqlQuerier
	units *domain.UnitTable
	clock *monotonicClock
}

func (r *sqliteQueries) Put(ctx context.Context, t *domain.Triple) (uuid.UUID, error) {
	if err := prepareForPut(t, r.units); err != nil {
		return uuid.Nil, err
	}
	t.Timestamp = r.clock.next()
	text, value, unit := objectArgs(t.Object)
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO triples (id, subject, relation, object_text, object_value, object_unit, is_immutable, source, ts_us, supersedes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.Subject, t.Relation, text, value, unit,
		boolToInt(t.IsImmutable), t.Source, t.Timestamp.UnixMicro(), supersedesArg(t.Supersedes),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert triple: %w", err)
	}
	return t.ID, nil
}

func (r *sqliteQueries) GetByID(ctx context.Context, id uuid.UUID) (*domain.Triple, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+fmt.Sprintf(tripleColumns, "ts_us")+` FROM triples WHERE id = ?`, id.String())
	t, err := scanSQLiteTriple(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *sqliteQueries) Get(ctx context.Context, subject, relation string) ([]domain.Triple, error) {
	subject = domain.NormalizeTerm(subject)
	relation = domain.NormalizeTerm(relation)
	if relation == "" {
		return r.queryTriples(ctx, `WHERE subject = ?`, subject)
	}
	return r.queryTriples(ctx, `WHERE subject = ? AND relation = ?`, subject, relation)
}

func (r *sqliteQueries) GetByRelation(ctx context.Context, relation string) ([]domain.Triple, error) {
	return r.queryTriples(ctx, `WHERE relation = ?`, domain.NormalizeTerm(relation))
}

func (r *sqliteQueries) GetByClass(ctx context.Context, class string) ([]domain.Triple, error) {
	return walkClass(ctx, r, class)
}

func (r *sqliteQueries) instanceEdgesTo(ctx context.Context, class string) ([]domain.Triple, error) {
	return r.queryTriples(ctx, `WHERE relation = ? AND object_text = ?`, domain.RelationInstanceOf, class)
}

func (r *sqliteQueries) Retract(ctx context.Context, id uuid.UUID) error {
	var immutable int64
	err := r.q.QueryRowContext(ctx, `SELECT is_immutable FROM triples WHERE id = ?`, id.String()).Scan(&immutable)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if immutable != 0 {
		return ErrImmutableViolation
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM triples WHERE id = ? AND is_immutable = 0`, id.String()); err != nil {
		return fmt.Errorf("delete triple: %w", err)
	}
	return nil
}

func (r *sqliteQueries) queryTriples(ctx context.Context, where string, args ...any) ([]domain.Triple, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+fmt.Sprintf(tripleColumns, "ts_us")+` FROM triples `+where+` ORDER BY ts_us DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query triples: %w", err)
	}
	defer rows.Close()

	var out []domain.Triple
	for rows.Next() {
		t, err := scanSQLiteTriple(rows)
		if err != nil {
			return nil, fmt.Errorf("scan triple: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type sqliteTx struct {
	*sqliteQueries
}

func (t *sqliteTx) WithinLock(ctx context.Context, keys []string, fn func(ctx context.Context, tx domain.FactStore) error) error {
	return fn(ctx, t)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTriple(row rowScanner) (domain.Triple, error) {
	var (
		t          domain.Triple
		text, unit sql.NullString
		value      sql.NullFloat64
		supersedes sql.NullString
		immutable  int64
		tsUS       int64
	)
	if err := row.Scan(&t.ID, &t.Subject, &t.Relation, &text, &value, &unit, &immutable, &t.Source, &tsUS, &supersedes); err != nil {
		return t, err
	}
	t.Object = objectFromColumns(text, value, unit)
	t.IsImmutable = immutable != 0
	t.Timestamp = time.UnixMicro(tsUS).UTC()
	sup, err := parseSupersedes(supersedes)
	if err != nil {
		return t, err
	}
	t.Supersedes = sup
	return t, nil
}

func objectArgs(o domain.Object) (text sql.NullString, value sql.NullFloat64, unit sql.NullString) {
	if o.Quantity != nil {
		return sql.NullString{}, sql.NullFloat64{Float64: o.Quantity.Value, Valid: true}, sql.NullString{String: o.Quantity.Unit, Valid: true}
	}
	return sql.NullString{String: o.Text, Valid: true}, sql.NullFloat64{}, sql.NullString{}
}

func objectFromColumns(text sql.NullString, value sql.NullFloat64, unit sql.NullString) domain.Object {
	if value.Valid {
		return domain.NumericObject(value.Float64, unit.String)
	}
	return domain.TextObject(text.String)
}

func supersedesArg(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func parseSupersedes(s sql.NullString) (*uuid.UUID, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil, fmt.Errorf("parse supersedes: %w", err)
	}
	return &id, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
