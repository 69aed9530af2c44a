package store

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/Harshitk-cp/beliefgraph/internal/domain"
	"github.com/google/uuid"
)

// prepareForPut validates a triple and assigns its id.
func prepareForPut(t *domain.Triple, units *domain.UnitTable) error {
	t.Normalize()
	if t.Subject == "" || t.Relation == "" || t.Object.IsZero() {
		return ErrInvalidTriple
	}
	if q := t.Object.Quantity; q != nil {
		if math.IsNaN(q.Value) || math.IsInf(q.Value, 0) {
			return fmt.Errorf("%w: value %v", ErrUnitUnresolvable, q.Value)
		}
		if _, err := units.Resolve(q.Unit); err != nil {
			return fmt.Errorf("%w: %v", ErrUnitUnresolvable, err)
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func cloneTriple(t domain.Triple) domain.Triple {
	if t.Object.Quantity != nil {
		q := *t.Object.Quantity
		t.Object.Quantity = &q
	}
	if t.Supersedes != nil {
		id := *t.Supersedes
		t.Supersedes = &id
	}
	return t
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) ([]uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	var ids []uuid.UUID
	for _, part := range strings.Split(s, ",") {
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("parse conflicting id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// monotonicClock yields strictly increasing microsecond timestamps.
type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func newMonotonicClock(last time.Time) *monotonicClock {
	return &monotonicClock{last: last, now: time.Now}
}

func (c *monotonicClock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now().UTC().Truncate(time.Microsecond)
	if !ts.After(c.last) {
		ts = c.last.Add(time.Microsecond)
	}
	c.last = ts
	return ts
}

// classReader is what the instance_of closure walk needs from a backend.
type classReader interface {
	Get(ctx context.Context, subject, relation string) ([]domain.Triple, error)
	instanceEdgesTo(ctx context.Context, class string) ([]domain.Triple, error)
}

// walkClass collects the current instance_of edges reaching class,
// breadth first. Superseded edges do not make a subject a member.
func walkClass(ctx context.Context, r classReader, class string) ([]domain.Triple, error) {
	class = domain.NormalizeTerm(class)
	visited := map[string]bool{class: true}
	queue := []string{class}
	var members []domain.Triple

	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]

		edges, err := r.instanceEdgesTo(ctx, c)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			if visited[e.Subject] {
				continue
			}
			own, err := r.Get(ctx, e.Subject, domain.RelationInstanceOf)
			if err != nil {
				return nil, err
			}
			if !containsID(domain.Current(own, true), e.ID) {
				continue
			}
			visited[e.Subject] = true
			members = append(members, e)
			queue = append(queue, e.Subject)
		}
	}
	return members, nil
}

func containsID(ts []domain.Triple, id uuid.UUID) bool {
	for _, t := range ts {
		if t.ID == id {
			return true
		}
	}
	return false
}
