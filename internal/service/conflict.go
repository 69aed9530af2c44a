package service

import (
	"context"
	"strings"

	"github.com/Harshitk-cp/beliefgraph/internal/domain"
	"github.com/google/uuid"
)

const defaultMaxClassDepth = 32

// ConflictDetector decides whether a candidate triple may be admitted.
// It only reads from the store it is handed.
type ConflictDetector struct {
	vocab    *domain.Vocabulary
	units    *domain.UnitTable
	maxDepth int
}

func NewConflictDetector(vocab *domain.Vocabulary, units *domain.UnitTable) *ConflictDetector {
	return &ConflictDetector{
		vocab:    vocab,
		units:    units,
		maxDepth: defaultMaxClassDepth,
	}
}

func (d *ConflictDetector) SetMaxDepth(n int) {
	if n > 0 {
		d.maxDepth = n
	}
}

// Check runs the admission rules in order: classification cycles, constants,
// duplicates, then supersession of functional relations.
func (d *ConflictDetector) Check(ctx context.Context, c *domain.Triple, fs domain.FactStore) (domain.Verdict, error) {
	if c.Relation == domain.RelationInstanceOf {
		chain, cyclic, err := d.closesCycle(ctx, c, fs)
		if err != nil {
			return domain.Verdict{}, err
		}
		if cyclic {
			return domain.Reject(domain.ReasonCyclicClassification, chain...), nil
		}
	}

	existing, err := fs.Get(ctx, c.Subject, c.Relation)
	if err != nil {
		return domain.Verdict{}, err
	}

	// a pair may carry several constants; restating any one of them is known
	var contradicted []uuid.UUID
	for _, t := range existing {
		if !t.IsImmutable {
			continue
		}
		if d.units.SameObject(t.Object, c.Object) {
			return domain.AlreadyKnown(t.ID), nil
		}
		contradicted = append(contradicted, t.ID)
	}
	if len(contradicted) > 0 {
		return domain.Reject(domain.ReasonContradictsConstant, contradicted...), nil
	}

	spec, _ := d.vocab.Lookup(c.Relation)
	current := domain.Current(existing, spec.Functional)
	for _, t := range current {
		if d.sameBelief(spec, t, c) {
			return domain.AlreadyKnown(t.ID), nil
		}
	}

	if spec.Functional && len(current) > 0 {
		return domain.AdmitAsSuperseding(current[0].ID), nil
	}
	return domain.Admit(), nil
}

func (d *ConflictDetector) sameBelief(spec domain.RelationSpec, stored domain.Triple, c *domain.Triple) bool {
	if !d.units.SameObject(stored.Object, c.Object) {
		return false
	}
	// the same opinion held by two people is two beliefs
	if spec.IsOpinion() && !strings.EqualFold(stored.Source, c.Source) {
		return false
	}
	return true
}

// closesCycle follows the current class chain upwards from the candidate's
// class. Reaching the candidate's subject means the new edge would close a
// loop; the edges walked are returned as the conflicting chain.
func (d *ConflictDetector) closesCycle(ctx context.Context, c *domain.Triple, fs domain.FactStore) ([]uuid.UUID, bool, error) {
	class := c.Object.Text
	if class == c.Subject {
		return nil, true, nil
	}

	var chain []uuid.UUID
	visited := map[string]bool{class: true}
	for depth := 0; depth < d.maxDepth; depth++ {
		edges, err := fs.Get(ctx, class, domain.RelationInstanceOf)
		if err != nil {
			return nil, false, err
		}
		current := domain.Current(edges, true)
		if len(current) == 0 {
			return nil, false, nil
		}
		edge := current[0]
		chain = append(chain, edge.ID)
		class = edge.Object.Text
		if class == c.Subject {
			return chain, true, nil
		}
		if visited[class] {
			return nil, false, nil
		}
		visited[class] = true
	}
	return nil, false, nil
}
