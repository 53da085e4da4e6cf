package db

import (
	"context"
	"fmt"
)

// Apply runs op against target inside the handle's current transaction and
// commits. When op or the commit fails the transaction is rolled back and the
// original error is returned untouched; a failing rollback is reported instead.
//
// Each Apply is its own commit boundary. Once a handle has been rolled back it
// refuses further calls with ErrHandleRolledBack.
func Apply[T any](ctx context.Context, h *Handle, op func(context.Context, Querier, T) error, target T) error {
	if h.released {
		return ErrHandleReleased
	}
	if h.rolledBack {
		return ErrHandleRolledBack
	}
	if err := op(ctx, h, target); err != nil {
		return h.abort(ctx, err)
	}
	if err := h.Commit(ctx); err != nil {
		return h.abort(ctx, err)
	}
	return nil
}

func (h *Handle) abort(ctx context.Context, cause error) error {
	if err := h.Rollback(ctx); err != nil {
		return fmt.Errorf("%w (rolling back after: %v)", err, cause)
	}
	return cause
}
