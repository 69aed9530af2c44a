package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// FactStore persists triples. It enforces structural invariants only;
// conflict checking happens before Put is called.
type FactStore interface {
	// Put assigns ID and Timestamp and persists the triple.
	Put(ctx context.Context, t *Triple) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Triple, error)
	// Get returns triples of subject, newest first. An empty relation matches all.
	Get(ctx context.Context, subject, relation string) ([]Triple, error)
	GetByRelation(ctx context.Context, relation string) ([]Triple, error)
	// GetByClass returns the current instance_of edges that reach class,
	// directly or through subclasses.
	GetByClass(ctx context.Context, class string) ([]Triple, error)
	Retract(ctx context.Context, id uuid.UUID) error
	// WithinLock runs fn holding exclusive locks on keys. Writes made through
	// the handed store become visible atomically when fn returns nil.
	WithinLock(ctx context.Context, keys []string, fn func(ctx context.Context, tx FactStore) error) error
}

// Rejection records a write that was refused, for audit.
type Rejection struct {
	ID             uuid.UUID   `json:"id"`
	Candidate      Triple      `json:"candidate"`
	Reason         string      `json:"reason"`
	ConflictingIDs []uuid.UUID `json:"conflicting_ids,omitempty"`
	RejectedAt     time.Time   `json:"rejected_at"`
}

type AuditLog interface {
	RecordRejection(ctx context.Context, r *Rejection) error
	Rejections(ctx context.Context, subject string) ([]Rejection, error)
}

// KnowledgeStore is a fact store that also keeps the rejection log.
type KnowledgeStore interface {
	FactStore
	AuditLog
	Close() error
}

// TaxonomyLockKey serializes instance_of writes across subjects so two
// concurrent edges cannot close a cycle.
const TaxonomyLockKey = "taxonomy"

// SubjectLockKey serializes writes about one subject.
func SubjectLockKey(subject string) string {
	return "subject:" + subject
}
