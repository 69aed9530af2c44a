package store

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/beliefgraph/internal/domain"
	"github.com/google/uuid"
)

// InMemoryStore keeps triples in process memory. It is used for tests and
// for ephemeral sessions (STORE_DRIVER=memory).
type InMemoryStore struct {
	units *domain.UnitTable
	locks *keyedMutex
	clock *monotonicClock

	mu         sync.RWMutex
	triples    map[uuid.UUID]domain.Triple
	bySubject  map[string][]uuid.UUID
	byRelation map[string][]uuid.UUID
	rejections []domain.Rejection
}

func NewInMemoryStore(units *domain.UnitTable) *InMemoryStore {
	return &InMemoryStore{
		units:      units,
		locks:      newKeyedMutex(),
		clock:      newMonotonicClock(time.Time{}),
		triples:    make(map[uuid.UUID]domain.Triple),
		bySubject:  make(map[string][]uuid.UUID),
		byRelation: make(map[string][]uuid.UUID),
	}
}

func (s *InMemoryStore) Put(ctx context.Context, t *domain.Triple) (uuid.UUID, error) {
	if err := prepareForPut(t, s.units); err != nil {
		return uuid.Nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(t)
	return t.ID, nil
}

func (s *InMemoryStore) insertLocked(t *domain.Triple) {
	t.Timestamp = s.clock.next()
	s.triples[t.ID] = cloneTriple(*t)
	s.bySubject[t.Subject] = append(s.bySubject[t.Subject], t.ID)
	s.byRelation[t.Relation] = append(s.byRelation[t.Relation], t.ID)
}

func (s *InMemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Triple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.triples[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneTriple(t)
	return &c, nil
}

func (s *InMemoryStore) Get(ctx context.Context, subject, relation string) ([]domain.Triple, error) {
	subject = domain.NormalizeTerm(subject)
	relation = domain.NormalizeTerm(relation)

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Triple
	for _, id := range s.bySubject[subject] {
		t := s.triples[id]
		if relation != "" && t.Relation != relation {
			continue
		}
		out = append(out, cloneTriple(t))
	}
	domain.SortNewestFirst(out)
	return out, nil
}

func (s *InMemoryStore) GetByRelation(ctx context.Context, relation string) ([]domain.Triple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byRelation[domain.NormalizeTerm(relation)]
	out := make([]domain.Triple, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneTriple(s.triples[id]))
	}
	domain.SortNewestFirst(out)
	return out, nil
}

func (s *InMemoryStore) GetByClass(ctx context.Context, class string) ([]domain.Triple, error) {
	return walkClass(ctx, s, class)
}

func (s *InMemoryStore) instanceEdgesTo(ctx context.Context, class string) ([]domain.Triple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Triple
	for _, id := range s.byRelation[domain.RelationInstanceOf] {
		t := s.triples[id]
		if t.Object.Quantity == nil && t.Object.Text == class {
			out = append(out, cloneTriple(t))
		}
	}
	domain.SortNewestFirst(out)
	return out, nil
}

func (s *InMemoryStore) Retract(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retractLocked(id)
}

func (s *InMemoryStore) retractLocked(id uuid.UUID) error {
	t, ok := s.triples[id]
	if !ok {
		return ErrNotFound
	}
	if t.IsImmutable {
		return ErrImmutableViolation
	}
	delete(s.triples, id)
	s.bySubject[t.Subject] = removeID(s.bySubject[t.Subject], id)
	s.byRelation[t.Relation] = removeID(s.byRelation[t.Relation], id)
	return nil
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for i, x := range ids {
		if x == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

// WithinLock buffers the writes of fn and applies them together once fn
// succeeds.
func (s *InMemoryStore) WithinLock(ctx context.Context, keys []string, fn func(ctx context.Context, tx domain.FactStore) error) error {
	unlock, err := s.locks.lockAll(ctx, keys)
	if err != nil {
		return err
	}
	defer unlock()

	tx := &inMemoryTx{InMemoryStore: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

func (s *InMemoryStore) RecordRejection(ctx context.Context, r *domain.Rejection) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.RejectedAt.IsZero() {
		r.RejectedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := *r
	rec.Candidate = cloneTriple(r.Candidate)
	rec.ConflictingIDs = append([]uuid.UUID(nil), r.ConflictingIDs...)
	s.rejections = append(s.rejections, rec)
	return nil
}

func (s *InMemoryStore) Rejections(ctx context.Context, subject string) ([]domain.Rejection, error) {
	subject = domain.NormalizeTerm(subject)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Rejection
	for i := len(s.rejections) - 1; i >= 0; i-- {
		r := s.rejections[i]
		if subject != "" && r.Candidate.Subject != subject {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

// inMemoryTx reads through to the store and queues writes until commit.
type inMemoryTx struct {
	*InMemoryStore
	puts     []domain.Triple
	retracts []uuid.UUID
}

func (tx *inMemoryTx) Put(ctx context.Context, t *domain.Triple) (uuid.UUID, error) {
	if err := prepareForPut(t, tx.units); err != nil {
		return uuid.Nil, err
	}
	t.Timestamp = tx.clock.next()
	tx.puts = append(tx.puts, cloneTriple(*t))
	return t.ID, nil
}

func (tx *inMemoryTx) Retract(ctx context.Context, id uuid.UUID) error {
	t, err := tx.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if t.IsImmutable {
		return ErrImmutableViolation
	}
	tx.retracts = append(tx.retracts, id)
	return nil
}

func (tx *inMemoryTx) WithinLock(ctx context.Context, keys []string, fn func(ctx context.Context, tx domain.FactStore) error) error {
	return fn(ctx, tx)
}

func (tx *inMemoryTx) commit() error {
	s := tx.InMemoryStore
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range tx.retracts {
		if err := s.retractLocked(id); err != nil {
			return err
		}
	}
	for _, t := range tx.puts {
		s.triples[t.ID] = t
		s.bySubject[t.Subject] = append(s.bySubject[t.Subject], t.ID)
		s.byRelation[t.Relation] = append(s.byRelation[t.Relation], t.ID)
	}
	return nil
}
