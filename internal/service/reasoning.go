package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Harshitk-cp/beliefgraph/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInsufficientData     = errors.New("insufficient data")
	ErrIncommensurableUnits = errors.New("incommensurable units")
)

type Outcome string

const (
	OutcomeAGreater Outcome = "a_greater"
	OutcomeBGreater Outcome = "b_greater"
	OutcomeEqual    Outcome = "equal"
)

// NumericFact is a resolved numeric value for a subject. Facts inherited
// from a class carry the derived source and the class chain in Via.
type NumericFact struct {
	Subject   string          `json:"subject"`
	Relation  string          `json:"relation"`
	Quantity  domain.Quantity `json:"quantity"`
	Measure   domain.Measure  `json:"measure"`
	Source    string          `json:"source"`
	Via       []string        `json:"via,omitempty"`
	TripleID  uuid.UUID       `json:"triple_id"`
	Timestamp time.Time       `json:"timestamp"`
}

// Comparison is the result of comparing A against B. Ratio is A/B on
// normalized magnitudes and is infinite when B is zero.
type Comparison struct {
	Relation string      `json:"relation"`
	Outcome  Outcome     `json:"outcome"`
	Winner   string      `json:"winner,omitempty"`
	Ratio    float64     `json:"ratio"`
	A        NumericFact `json:"a"`
	B        NumericFact `json:"b"`
}

func (c Comparison) MarshalJSON() ([]byte, error) {
	type plain Comparison
	out := struct {
		plain
		Ratio *float64 `json:"ratio"`
		// set when Ratio cannot be represented in JSON
		RatioInfinite bool `json:"ratio_infinite,omitempty"`
	}{plain: plain(c)}
	if math.IsInf(c.Ratio, 0) || math.IsNaN(c.Ratio) {
		out.RatioInfinite = true
	} else {
		r := c.Ratio
		out.Ratio = &r
	}
	return json.Marshal(out)
}

// Reasoner answers quantitative questions from stored numeric triples.
// It never writes.
type Reasoner struct {
	store    domain.FactStore
	vocab    *domain.Vocabulary
	units    *domain.UnitTable
	logger   *zap.Logger
	maxDepth int
}

func NewReasoner(store domain.FactStore, vocab *domain.Vocabulary, units *domain.UnitTable, logger *zap.Logger) *Reasoner {
	return &Reasoner{
		store:    store,
		vocab:    vocab,
		units:    units,
		logger:   logger,
		maxDepth: defaultMaxClassDepth,
	}
}

func (r *Reasoner) SetMaxDepth(n int) {
	if n > 0 {
		r.maxDepth = n
	}
}

// Compare resolves relation for both subjects and compares the normalized
// magnitudes.
func (r *Reasoner) Compare(ctx context.Context, a, b, relation string) (*Comparison, error) {
	fa, err := r.Derive(ctx, a, relation)
	if err != nil {
		return nil, err
	}
	if fa == nil {
		return nil, fmt.Errorf("%w: no %s known for %q", ErrInsufficientData, domain.NormalizeTerm(relation), domain.NormalizeTerm(a))
	}
	fb, err := r.Derive(ctx, b, relation)
	if err != nil {
		return nil, err
	}
	if fb == nil {
		return nil, fmt.Errorf("%w: no %s known for %q", ErrInsufficientData, domain.NormalizeTerm(relation), domain.NormalizeTerm(b))
	}
	if fa.Measure.Dimension != fb.Measure.Dimension {
		return nil, fmt.Errorf("%w: %s is %s, %s is %s", ErrIncommensurableUnits,
			fa.Quantity, fa.Measure.Dimension, fb.Quantity, fb.Measure.Dimension)
	}

	va, vb := fa.Measure.Value, fb.Measure.Value
	cmp := &Comparison{
		Relation: fa.Relation,
		Ratio:    ratio(va, vb),
		A:        *fa,
		B:        *fb,
	}
	switch {
	case domain.NearlyEqual(va, vb):
		cmp.Outcome = OutcomeEqual
	case va > vb:
		cmp.Outcome = OutcomeAGreater
		cmp.Winner = fa.Subject
	default:
		cmp.Outcome = OutcomeBGreater
		cmp.Winner = fb.Subject
	}

	r.logger.Debug("compared",
		zap.String("a", fa.Subject),
		zap.String("b", fb.Subject),
		zap.String("relation", cmp.Relation),
		zap.String("outcome", string(cmp.Outcome)),
	)
	return cmp, nil
}

func ratio(a, b float64) float64 {
	if domain.NearlyEqual(a, b) {
		return 1
	}
	if b == 0 {
		return math.Inf(int(math.Copysign(1, a)))
	}
	return a / b
}

// Derive resolves a numeric relation for subject. When the subject has no
// value of its own the instance_of chain is followed. It returns nil, nil
// when nothing along the chain has a value.
func (r *Reasoner) Derive(ctx context.Context, subject, relation string) (*NumericFact, error) {
	subject = domain.NormalizeTerm(subject)
	relation = domain.NormalizeTerm(relation)

	spec, ok := r.vocab.Lookup(relation)
	if !ok || spec.Kind != domain.KindNumeric {
		return nil, fmt.Errorf("%w: %q is not a numeric relation", ErrInsufficientData, relation)
	}

	var via []string
	visited := make(map[string]bool)
	cur := subject
	for depth := 0; depth <= r.maxDepth; depth++ {
		if visited[cur] {
			break
		}
		visited[cur] = true

		fact, err := r.ownValue(ctx, cur, spec)
		if err != nil {
			return nil, err
		}
		if fact != nil {
			if depth > 0 {
				fact.Subject = subject
				fact.Source = domain.SourceDerived
				fact.Via = via
			}
			return fact, nil
		}

		edges, err := r.store.Get(ctx, cur, domain.RelationInstanceOf)
		if err != nil {
			return nil, err
		}
		current := domain.Current(edges, true)
		if len(current) == 0 {
			break
		}
		cur = current[0].Object.Text
		via = append(via, cur)
	}
	return nil, nil
}

// ownValue picks the authoritative numeric triple stored on subject itself.
func (r *Reasoner) ownValue(ctx context.Context, subject string, spec domain.RelationSpec) (*NumericFact, error) {
	triples, err := r.store.Get(ctx, subject, spec.Name)
	if err != nil {
		return nil, err
	}
	var numeric []domain.Triple
	for _, t := range domain.Current(triples, spec.Functional) {
		if t.Object.IsNumeric() {
			numeric = append(numeric, t)
		}
	}
	if len(numeric) == 0 {
		return nil, nil
	}

	best := numeric[0]
	// a peer stored at the same instant with another magnitude leaves no tie-break
	for _, t := range triples {
		if t.ID == best.ID || !t.Object.IsNumeric() || t.IsImmutable != best.IsImmutable {
			continue
		}
		if t.Timestamp.Equal(best.Timestamp) && !r.units.SameQuantity(*t.Object.Quantity, *best.Object.Quantity) {
			return nil, fmt.Errorf("%w: %s of %q is ambiguous", ErrInsufficientData, spec.Name, subject)
		}
	}

	m, err := r.units.Normalize(*best.Object.Quantity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientData, err)
	}
	return &NumericFact{
		Subject:   subject,
		Relation:  spec.Name,
		Quantity:  *best.Object.Quantity,
		Measure:   m,
		Source:    best.Source,
		TripleID:  best.ID,
		Timestamp: best.Timestamp,
	}, nil
}
