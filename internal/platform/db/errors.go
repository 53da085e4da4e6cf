package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrStorage marks failures raised by the backing store (query, commit, rollback).
	ErrStorage = errors.New("storage failure")
	// ErrHandleRolledBack is returned when a rolled back handle is used again.
	ErrHandleRolledBack = errors.New("platform/db: handle already rolled back")
	// ErrHandleReleased is returned when a handle is used after its scope ended.
	ErrHandleReleased = errors.New("platform/db: handle already released")
)

// StorageError wraps a store failure with the operation that raised it.
// It matches both ErrStorage and the underlying driver error.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "platform/db: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation. constraint narrows the match when non-empty.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
