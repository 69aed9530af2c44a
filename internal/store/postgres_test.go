package store

import (
	"context"
	"os"
	"testing"

	"github.com/Harshitk-cp/beliefgraph/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// setupPostgresTest connects to TEST_DATABASE_URL. Subjects are namespaced
// per test run so a shared database can be reused.
func setupPostgresTest(t *testing.T) (*PostgresStore, string) {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := NewPostgresStore(pool, testUnits(t))
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Ping(ctx))
	return s, "t" + uuid.NewString()[:8] + "_"
}

func TestPostgresStore_Roundtrip(t *testing.T) {
	s, ns := setupPostgresTest(t)
	ctx := context.Background()
	subject := ns + "car"

	first := textTriple(subject, "state", "moving")
	_, err := s.Put(ctx, first)
	require.NoError(t, err)
	second := textTriple(subject, "state", "parked")
	second.Supersedes = &first.ID
	_, err = s.Put(ctx, second)
	require.NoError(t, err)
	assert.True(t, second.Timestamp.After(first.Timestamp))

	got, err := s.Get(ctx, subject, "state")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	require.NotNil(t, got[0].Supersedes)
	assert.Equal(t, first.ID, *got[0].Supersedes)

	require.NoError(t, s.Retract(ctx, first.ID))
	assert.ErrorIs(t, s.Retract(ctx, first.ID), ErrNotFound)
}

func TestPostgresStore_AdvisoryLocks(t *testing.T) {
	s, ns := setupPostgresTest(t)
	ctx := context.Background()
	subject := ns + "counter"

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			return s.WithinLock(gctx, []string{domain.SubjectLockKey(subject)}, func(ctx context.Context, tx domain.FactStore) error {
				existing, err := tx.Get(ctx, subject, "state")
				if err != nil {
					return err
				}
				next := textTriple(subject, "state", uuid.NewString())
				if len(existing) > 0 {
					next.Supersedes = &existing[0].ID
				}
				_, err = tx.Put(ctx, next)
				return err
			})
		})
	}
	require.NoError(t, g.Wait())

	got, err := s.Get(ctx, subject, "state")
	require.NoError(t, err)
	require.Len(t, got, 8)
	roots := 0
	for i, tr := range got {
		if tr.Supersedes == nil {
			roots++
			continue
		}
		assert.Equal(t, got[i+1].ID, *tr.Supersedes)
	}
	assert.Equal(t, 1, roots)
}

func TestPostgresStore_Rejections(t *testing.T) {
	s, ns := setupPostgresTest(t)
	ctx := context.Background()
	subject := ns + "ball"

	r := &domain.Rejection{
		Candidate: *textTriple(subject, "shape", "square"),
		Reason:    string(domain.ReasonContradictsConstant),
	}
	require.NoError(t, s.RecordRejection(ctx, r))

	got, err := s.Rejections(ctx, subject)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, r.ID, got[0].ID)
	assert.Equal(t, "square", got[0].Candidate.Object.Text)
}
