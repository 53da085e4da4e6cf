package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the statement surface shared by pgx.Tx and Handle.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tx is the part of pgx.Tx a Handle drives.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Conn is a pooled connection able to open transactions.
type Conn interface {
	Begin(ctx context.Context) (Tx, error)
	Release()
}

// Source hands out pooled connections.
type Source interface {
	Acquire(ctx context.Context) (Conn, error)
}

type poolSource struct {
	pool *pgxpool.Pool
	opts pgx.TxOptions
}

// PoolSource adapts a pgx pool; every transaction opened on its connections uses isoLevel.
func PoolSource(pool *pgxpool.Pool, isoLevel pgx.TxIsoLevel) Source {
	return poolSource{pool: pool, opts: pgx.TxOptions{IsoLevel: isoLevel}}
}

func (s poolSource) Acquire(ctx context.Context) (Conn, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return pgxConn{conn: conn, opts: s.opts}, nil
}

type pgxConn struct {
	conn *pgxpool.Conn
	opts pgx.TxOptions
}

func (c pgxConn) Begin(ctx context.Context) (Tx, error) {
	return c.conn.BeginTx(ctx, c.opts)
}

func (c pgxConn) Release() {
	c.conn.Release()
}

// Provider opens scoped handles on a connection source.
type Provider struct {
	source Source
	logger *slog.Logger
}

// NewProvider constructs a Provider.
func NewProvider(source Source, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{source: source, logger: logger}
}

// WithHandle acquires a connection, runs fn with a Handle bound to it and
// releases the connection exactly once, whether fn returns or panics.
// Work left uncommitted when fn ends is rolled back.
func (p *Provider) WithHandle(ctx context.Context, fn func(*Handle) error) error {
	conn, err := p.source.Acquire(ctx)
	if err != nil {
		return &StorageError{Op: "acquire conn", Err: err}
	}
	h := &Handle{conn: conn}
	defer func() {
		if rec := recover(); rec != nil {
			p.release(ctx, h)
			panic(rec)
		}
		p.release(ctx, h)
	}()
	return fn(h)
}

func (p *Provider) release(ctx context.Context, h *Handle) {
	if err := h.release(context.WithoutCancel(ctx)); err != nil {
		p.logger.Warn("release handle", slog.Any("error", err))
	}
}

// Handle is a unit of work bound to one connection. Statements run inside the
// current transaction, which is opened lazily and closed by Commit or Rollback.
// A Handle belongs to a single call and is not safe for concurrent use.
type Handle struct {
	conn       Conn
	tx         Tx
	rolledBack bool
	released   bool
}

var _ Querier = (*Handle)(nil)

func (h *Handle) current(ctx context.Context) (Tx, error) {
	if h.released {
		return nil, ErrHandleReleased
	}
	if h.rolledBack {
		return nil, ErrHandleRolledBack
	}
	if h.tx == nil {
		tx, err := h.conn.Begin(ctx)
		if err != nil {
			return nil, &StorageError{Op: "begin tx", Err: err}
		}
		h.tx = tx
	}
	return h.tx, nil
}

// Exec runs a statement in the current transaction.
func (h *Handle) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tx, err := h.current(ctx)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return tag, &StorageError{Op: "exec", Err: err}
	}
	return tag, nil
}

// Query runs a query in the current transaction.
func (h *Handle) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	tx, err := h.current(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	return storageRows{Rows: rows}, nil
}

// QueryRow runs a single-row query in the current transaction.
func (h *Handle) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	tx, err := h.current(ctx)
	if err != nil {
		return errRow{err: err}
	}
	return storageRow{row: tx.QueryRow(ctx, sql, args...)}
}

// Commit commits the current transaction. The next statement opens a new one.
func (h *Handle) Commit(ctx context.Context) error {
	if h.released {
		return ErrHandleReleased
	}
	if h.rolledBack {
		return ErrHandleRolledBack
	}
	if h.tx == nil {
		return nil
	}
	tx := h.tx
	h.tx = nil
	if err := tx.Commit(ctx); err != nil {
		return &StorageError{Op: "commit tx", Err: err}
	}
	return nil
}

// Rollback discards the current transaction and retires the handle: any
// further statement, commit or Apply fails with ErrHandleRolledBack.
func (h *Handle) Rollback(ctx context.Context) error {
	if h.released {
		return ErrHandleReleased
	}
	h.rolledBack = true
	if h.tx == nil {
		return nil
	}
	tx := h.tx
	h.tx = nil
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return &StorageError{Op: "rollback tx", Err: err}
	}
	return nil
}

// RolledBack reports whether Rollback was called on the handle.
func (h *Handle) RolledBack() bool {
	return h.rolledBack
}

func (h *Handle) release(ctx context.Context) error {
	if h.released {
		return nil
	}
	h.released = true
	defer h.conn.Release()
	if h.tx == nil {
		return nil
	}
	tx := h.tx
	h.tx = nil
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return &StorageError{Op: "rollback on release", Err: err}
	}
	return nil
}

// storageRow wraps driver failures in StorageError. pgx.ErrNoRows is a
// result, not a failure, and passes through untouched.
type storageRow struct {
	row pgx.Row
}

func (r storageRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	return &StorageError{Op: "query row", Err: err}
}

type storageRows struct {
	pgx.Rows
}

func (r storageRows) Err() error {
	if err := r.Rows.Err(); err != nil {
		return &StorageError{Op: "query", Err: err}
	}
	return nil
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error {
	return r.err
}
