package db_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecthub/projecthub/internal/platform/db"
	"github.com/projecthub/projecthub/internal/platform/db/dbtest"
)

type record struct {
	ID   int64
	Name string
}

func rename(name string) func(context.Context, db.Querier, *record) error {
	return func(ctx context.Context, q db.Querier, r *record) error {
		_, err := q.Exec(ctx, `UPDATE records SET name = $1 WHERE id = $2`, name, r.ID)
		if err == nil {
			r.Name = name
		}
		return err
	}
}

func TestWithHandleReleasesOnSuccess(t *testing.T) {
	src := dbtest.NewSource()
	provider := src.Provider()

	err := provider.WithHandle(context.Background(), func(h *db.Handle) error {
		return db.Apply(context.Background(), h, rename("alpha"), &record{ID: 1})
	})

	require.NoError(t, err)
	assert.Equal(t, 1, src.Acquired())
	assert.Equal(t, 1, src.Released())
	assert.Equal(t, 1, src.Commits())
	assert.Len(t, src.Committed(), 1)
}

func TestWithHandleReleasesOnError(t *testing.T) {
	src := dbtest.NewSource()
	boom := errors.New("boom")

	err := src.Provider().WithHandle(context.Background(), func(h *db.Handle) error {
		_, _ = h.Exec(context.Background(), `UPDATE records SET name = 'x'`)
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, src.Released())
	assert.Equal(t, 1, src.Rollbacks(), "uncommitted work is discarded on release")
	assert.Empty(t, src.Committed())
}

func TestWithHandleReleasesOnPanic(t *testing.T) {
	src := dbtest.NewSource()

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = src.Provider().WithHandle(context.Background(), func(h *db.Handle) error {
			panic("kaboom")
		})
	})
	assert.Equal(t, 1, src.Released())
	assert.Zero(t, src.Open())
}

func TestWithHandleAcquireFailure(t *testing.T) {
	src := dbtest.NewSource()
	src.AcquireErr = errors.New("pool exhausted")
	called := false

	err := src.Provider().WithHandle(context.Background(), func(h *db.Handle) error {
		called = true
		return nil
	})

	require.ErrorIs(t, err, db.ErrStorage)
	assert.False(t, called)
}

func TestApplyRollsBackAndReturnsOriginalError(t *testing.T) {
	src := dbtest.NewSource()
	boom := errors.New("constraint violated")
	target := &record{ID: 7, Name: "before"}

	err := src.Provider().WithHandle(context.Background(), func(h *db.Handle) error {
		return db.Apply(context.Background(), h, func(ctx context.Context, q db.Querier, r *record) error {
			if _, err := q.Exec(ctx, `UPDATE records SET name = 'after' WHERE id = $1`, r.ID); err != nil {
				return err
			}
			return boom
		}, target)
	})

	require.Same(t, boom, err)
	assert.Empty(t, src.Committed())
	assert.Equal(t, 1, src.Rollbacks())
	assert.Zero(t, src.Commits())
}

func TestApplyCommitFailureSurfacesCommitError(t *testing.T) {
	src := dbtest.NewSource()
	src.CommitErr = errors.New("serialization failure")

	err := src.Provider().WithHandle(context.Background(), func(h *db.Handle) error {
		return db.Apply(context.Background(), h, rename("beta"), &record{ID: 1})
	})

	require.ErrorIs(t, err, src.CommitErr)
	require.ErrorIs(t, err, db.ErrStorage)
	assert.Empty(t, src.Committed())
}

func TestApplyRollbackFailureReplacesError(t *testing.T) {
	src := dbtest.NewSource()
	src.RollbackErr = errors.New("connection reset")
	boom := errors.New("mutation failed")

	err := src.Provider().WithHandle(context.Background(), func(h *db.Handle) error {
		return db.Apply(context.Background(), h, func(ctx context.Context, q db.Querier, r *record) error {
			_, _ = q.Exec(ctx, `DELETE FROM records WHERE id = $1`, r.ID)
			return boom
		}, &record{ID: 1})
	})

	require.ErrorIs(t, err, src.RollbackErr)
	assert.NotErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "mutation failed")
}

func TestApplyTwiceCommitsTwice(t *testing.T) {
	src := dbtest.NewSource()
	target := &record{ID: 1}

	err := src.Provider().WithHandle(context.Background(), func(h *db.Handle) error {
		if err := db.Apply(context.Background(), h, rename("one"), target); err != nil {
			return err
		}
		return db.Apply(context.Background(), h, rename("two"), target)
	})

	require.NoError(t, err)
	assert.Equal(t, 2, src.Commits())
	assert.Equal(t, 2, src.Begun())
	assert.Equal(t, "two", target.Name)
}

func TestApplyRefusesRolledBackHandle(t *testing.T) {
	src := dbtest.NewSource()
	boom := errors.New("first failed")

	err := src.Provider().WithHandle(context.Background(), func(h *db.Handle) error {
		first := db.Apply(context.Background(), h, func(ctx context.Context, q db.Querier, r *record) error {
			return boom
		}, &record{ID: 1})
		require.Same(t, boom, first)
		require.True(t, h.RolledBack())
		return db.Apply(context.Background(), h, rename("again"), &record{ID: 1})
	})

	require.ErrorIs(t, err, db.ErrHandleRolledBack)
	assert.Empty(t, src.Committed())
}

func TestHandleQueryRowNoRows(t *testing.T) {
	src := dbtest.NewSource()
	src.Put("records", 1, int64(1), "stored")

	err := src.Provider().WithHandle(context.Background(), func(h *db.Handle) error {
		var got record
		require.NoError(t, h.QueryRow(context.Background(), `SELECT id, name FROM records WHERE id = $1`, int64(1)).Scan(&got.ID, &got.Name))
		assert.Equal(t, "stored", got.Name)
		return h.QueryRow(context.Background(), `SELECT id, name FROM records WHERE id = $1`, int64(2)).Scan(&got.ID, &got.Name)
	})

	require.Error(t, err)
	assert.Equal(t, 1, src.Begun(), "reads share one lazily opened transaction")
}

func TestHandleStatementErrorsAreStorageFailures(t *testing.T) {
	src := dbtest.NewSource()
	src.ExecErr = errors.New("connection reset")

	err := src.Provider().WithHandle(context.Background(), func(h *db.Handle) error {
		_, err := h.Exec(context.Background(), `DELETE FROM records WHERE id = $1`, int64(1))
		assert.ErrorIs(t, err, db.ErrStorage)
		assert.ErrorIs(t, err, src.ExecErr)

		_, err = h.Query(context.Background(), `SELECT id, name FROM records`)
		assert.ErrorIs(t, err, db.ErrStorage)

		var name string
		err = h.QueryRow(context.Background(), `SELECT name FROM records WHERE id = $1`, "not-an-id").Scan(&name)
		assert.ErrorIs(t, err, db.ErrStorage)

		err = h.QueryRow(context.Background(), `SELECT name FROM records WHERE id = $1`, int64(9)).Scan(&name)
		assert.ErrorIs(t, err, pgx.ErrNoRows)
		assert.NotErrorIs(t, err, db.ErrStorage)
		return nil
	})
	require.NoError(t, err)
}

func TestHandleReturningStatement(t *testing.T) {
	src := dbtest.NewSource()
	src.Returning(int64(5))
	r := &record{Name: "new"}

	err := src.Provider().WithHandle(context.Background(), func(h *db.Handle) error {
		return db.Apply(context.Background(), h, func(ctx context.Context, q db.Querier, r *record) error {
			return q.QueryRow(ctx, `INSERT INTO records (name) VALUES ($1) RETURNING id`, r.Name).Scan(&r.ID)
		}, r)
	})

	require.NoError(t, err)
	assert.Equal(t, int64(5), r.ID)
	require.Len(t, src.Committed(), 1)
	assert.Equal(t, []any{"new"}, src.Committed()[0].Args)
}

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}

	assert.True(t, db.IsUniqueViolation(dup, ""))
	assert.True(t, db.IsUniqueViolation(fmt.Errorf("insert: %w", dup), "users_email_key"))
	assert.False(t, db.IsUniqueViolation(dup, "users_username_key"))
	assert.False(t, db.IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	assert.False(t, db.IsUniqueViolation(errors.New("plain"), ""))
	assert.True(t, db.IsUniqueViolation(&db.StorageError{Op: "exec", Err: dup}, ""))
}
