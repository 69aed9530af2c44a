package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/Harshitk-cp/beliefgraph/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RejectionLog keeps the refused writes in Postgres.
type RejectionLog struct {
	db *pgxpool.Pool
}

func NewRejectionLog(db *pgxpool.Pool) *RejectionLog {
	return &RejectionLog{db: db}
}

func (s *RejectionLog) RecordRejection(ctx context.Context, r *domain.Rejection) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.RejectedAt.IsZero() {
		r.RejectedAt = time.Now().UTC()
	}
	text, value, unit := objectArgs(r.Candidate.Object)
	_, err := s.db.Exec(ctx,
		`INSERT INTO rejections (id, subject, relation, object_text, object_value, object_unit, source, reason, conflicting_ids, rejected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		r.ID, r.Candidate.Subject, r.Candidate.Relation, text, value, unit,
		r.Candidate.Source, r.Reason, joinIDs(r.ConflictingIDs), r.RejectedAt,
	)
	return err
}

// Rejections lists refused writes newest first. An empty subject lists all.
func (s *RejectionLog) Rejections(ctx context.Context, subject string) ([]domain.Rejection, error) {
	subject = domain.NormalizeTerm(subject)
	rows, err := s.db.Query(ctx,
		`SELECT id, subject, relation, object_text, object_value, object_unit, source, reason, conflicting_ids, rejected_at
		 FROM rejections WHERE $1 = '' OR subject = $1
		 ORDER BY rejected_at DESC`,
		subject,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Rejection
	for rows.Next() {
		var (
			r           domain.Rejection
			text, unit  sql.NullString
			value       sql.NullFloat64
			conflicting string
		)
		if err := rows.Scan(&r.ID, &r.Candidate.Subject, &r.Candidate.Relation, &text, &value, &unit,
			&r.Candidate.Source, &r.Reason, &conflicting, &r.RejectedAt); err != nil {
			return nil, err
		}
		r.Candidate.Object = objectFromColumns(text, value, unit)
		r.RejectedAt = r.RejectedAt.UTC()
		if r.ConflictingIDs, err = splitIDs(conflicting); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
