package service

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/beliefgraph/internal/domain"
	"go.uber.org/zap"
)

// SeedReport summarizes one seeding run.
type SeedReport struct {
	Version  int `json:"version"`
	Added    int `json:"added"`
	Existing int `json:"existing"`
}

// Seeder asserts the immutable constant set. Re-asserting a constant that
// is already stored is a no-op.
type Seeder struct {
	store  domain.FactStore
	vocab  *domain.Vocabulary
	units  *domain.UnitTable
	logger *zap.Logger
}

func NewSeeder(fs domain.FactStore, vocab *domain.Vocabulary, units *domain.UnitTable, logger *zap.Logger) *Seeder {
	return &Seeder{store: fs, vocab: vocab, units: units, logger: logger}
}

func (s *Seeder) Seed(ctx context.Context, set *domain.SeedSet) (*SeedReport, error) {
	report := &SeedReport{Version: set.Version}
	for _, c := range set.Constants {
		t := c.Triple()
		spec, ok := s.vocab.Lookup(t.Relation)
		if !ok {
			return report, fmt.Errorf("seed %s %s: %w", t.Subject, t.Relation, ErrUnknownRelation)
		}
		if (spec.Kind == domain.KindNumeric) != t.Object.IsNumeric() {
			return report, fmt.Errorf("seed %s %s: object kind does not match %s relation", t.Subject, t.Relation, spec.Kind)
		}

		added := false
		err := s.store.WithinLock(ctx, []string{domain.SubjectLockKey(t.Subject)}, func(ctx context.Context, tx domain.FactStore) error {
			existing, err := tx.Get(ctx, t.Subject, t.Relation)
			if err != nil {
				return err
			}
			for _, e := range existing {
				if e.IsImmutable && s.units.SameObject(e.Object, t.Object) {
					return nil
				}
			}
			if _, err := tx.Put(ctx, &t); err != nil {
				return err
			}
			added = true
			return nil
		})
		if err != nil {
			return report, fmt.Errorf("seed %s %s: %w", t.Subject, t.Relation, err)
		}
		if added {
			report.Added++
		} else {
			report.Existing++
		}
	}

	s.logger.Info("seeded constants",
		zap.Int("version", report.Version),
		zap.Int("added", report.Added),
		zap.Int("existing", report.Existing),
	)
	return report, nil
}
