package service

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/Harshitk-cp/beliefgraph/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFactStore serves fixed triples keyed by subject and relation.
type stubFactStore struct {
	triples map[string][]domain.Triple
}

func newStubFactStore(ts ...domain.Triple) *stubFactStore {
	s := &stubFactStore{triples: make(map[string][]domain.Triple)}
	for _, t := range ts {
		k := t.Subject + "|" + t.Relation
		s.triples[k] = append(s.triples[k], t)
	}
	for _, group := range s.triples {
		domain.SortNewestFirst(group)
	}
	return s
}

func (s *stubFactStore) Put(ctx context.Context, t *domain.Triple) (uuid.UUID, error) {
	panic("reasoner must not write")
}

func (s *stubFactStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Triple, error) {
	for _, group := range s.triples {
		for _, t := range group {
			if t.ID == id {
				return &t, nil
			}
		}
	}
	return nil, ErrTripleNotFound
}

func (s *stubFactStore) Get(ctx context.Context, subject, relation string) ([]domain.Triple, error) {
	return s.triples[subject+"|"+relation], nil
}

func (s *stubFactStore) GetByRelation(ctx context.Context, relation string) ([]domain.Triple, error) {
	return nil, nil
}

func (s *stubFactStore) GetByClass(ctx context.Context, class string) ([]domain.Triple, error) {
	return nil, nil
}

func (s *stubFactStore) Retract(ctx context.Context, id uuid.UUID) error {
	panic("reasoner must not write")
}

func (s *stubFactStore) WithinLock(ctx context.Context, keys []string, fn func(ctx context.Context, tx domain.FactStore) error) error {
	return fn(ctx, s)
}

func numericTriple(subject, relation string, value float64, unit string, ts time.Time) domain.Triple {
	return domain.Triple{
		ID:        uuid.New(),
		Subject:   subject,
		Relation:  relation,
		Object:    domain.NumericObject(value, unit),
		Source:    "user_01",
		Timestamp: ts,
	}
}

func classTriple(subject, class string, ts time.Time) domain.Triple {
	return domain.Triple{
		ID:        uuid.New(),
		Subject:   subject,
		Relation:  domain.RelationInstanceOf,
		Object:    domain.TextObject(class),
		Source:    "user_01",
		Timestamp: ts,
	}
}

func setupReasonerTest(t *testing.T, ts ...domain.Triple) *Reasoner {
	t.Helper()
	units, err := domain.DefaultUnits()
	require.NoError(t, err)
	vocab, err := domain.DefaultVocabulary()
	require.NoError(t, err)
	return NewReasoner(newStubFactStore(ts...), vocab, units, testLogger())
}

func TestReasoner_CompareIsAntisymmetric(t *testing.T) {
	now := time.Now()
	r := setupReasonerTest(t,
		numericTriple("marathon", "length", 42.195, "km", now),
		numericTriple("mile_run", "length", 1, "mi", now),
	)
	ctx := context.Background()

	ab, err := r.Compare(ctx, "marathon", "mile_run", "length")
	require.NoError(t, err)
	ba, err := r.Compare(ctx, "mile_run", "marathon", "length")
	require.NoError(t, err)

	assert.Equal(t, OutcomeAGreater, ab.Outcome)
	assert.Equal(t, OutcomeBGreater, ba.Outcome)
	assert.Equal(t, ab.Winner, ba.Winner)
	assert.InDelta(t, 1.0, ab.Ratio*ba.Ratio, 1e-12)
	assert.InDelta(t, 42195/1609.344, ab.Ratio, 1e-9)
}

func TestReasoner_NewestValueWins(t *testing.T) {
	now := time.Now()
	r := setupReasonerTest(t,
		numericTriple("car_01", "weight", 1500, "kg", now.Add(-time.Hour)),
		numericTriple("car_01", "weight", 1.2, "t", now),
	)

	fact, err := r.Derive(context.Background(), "car_01", "weight")
	require.NoError(t, err)
	require.NotNil(t, fact)
	assert.Equal(t, 1.2, fact.Quantity.Value)
	assert.InDelta(t, 1200, fact.Measure.Value, 1e-9)
}

func TestReasoner_AmbiguousTie(t *testing.T) {
	now := time.Now()
	r := setupReasonerTest(t,
		numericTriple("car_01", "weight", 1500, "kg", now),
		numericTriple("car_01", "weight", 1200, "kg", now),
	)
	_, err := r.Derive(context.Background(), "car_01", "weight")
	assert.ErrorIs(t, err, ErrInsufficientData)

	// a tie on the same magnitude is not ambiguous
	r = setupReasonerTest(t,
		numericTriple("car_01", "weight", 1500, "kg", now),
		numericTriple("car_01", "weight", 1.5, "t", now),
	)
	fact, err := r.Derive(context.Background(), "car_01", "weight")
	require.NoError(t, err)
	assert.InDelta(t, 1500, fact.Measure.Value, 1e-9)
}

func TestReasoner_DeriveStopsOnClassCycle(t *testing.T) {
	now := time.Now()
	r := setupReasonerTest(t,
		classTriple("a", "b", now),
		classTriple("b", "a", now),
	)
	fact, err := r.Derive(context.Background(), "a", "weight")
	require.NoError(t, err)
	assert.Nil(t, fact)
}

func TestReasoner_DeriveRespectsMaxDepth(t *testing.T) {
	now := time.Now()
	r := setupReasonerTest(t,
		classTriple("c0", "c1", now),
		classTriple("c1", "c2", now),
		classTriple("c2", "c3", now),
		numericTriple("c3", "height", 2, "m", now),
	)
	ctx := context.Background()

	fact, err := r.Derive(ctx, "c0", "height")
	require.NoError(t, err)
	require.NotNil(t, fact)
	assert.Equal(t, []string{"c1", "c2", "c3"}, fact.Via)

	r.SetMaxDepth(2)
	fact, err = r.Derive(ctx, "c0", "height")
	require.NoError(t, err)
	assert.Nil(t, fact)
}

func TestReasoner_DeriveRejectsCategorical(t *testing.T) {
	r := setupReasonerTest(t)
	_, err := r.Derive(context.Background(), "ball", "shape")
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 1.0, ratio(0, 0))
	assert.Equal(t, 2.0, ratio(4, 2))
	assert.True(t, math.IsInf(ratio(3, 0), 1))
	assert.True(t, math.IsInf(ratio(-3, 0), -1))
}

func TestComparison_MarshalJSON(t *testing.T) {
	finite, err := json.Marshal(Comparison{Relation: "length", Outcome: OutcomeAGreater, Winner: "a", Ratio: 2})
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(finite, &got))
	assert.Equal(t, 2.0, got["ratio"])
	assert.NotContains(t, got, "ratio_infinite")

	inf, err := json.Marshal(Comparison{Relation: "length", Outcome: OutcomeAGreater, Winner: "a", Ratio: math.Inf(1)})
	require.NoError(t, err)
	got = nil
	require.NoError(t, json.Unmarshal(inf, &got))
	assert.Nil(t, got["ratio"])
	assert.Equal(t, true, got["ratio_infinite"])
	assert.Equal(t, "a", got["winner"])
}
