// Package dbtest provides an in-memory connection source for exercising
// db.Provider, db.Handle and db.Apply without a PostgreSQL server.
package dbtest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/projecthub/projecthub/internal/platform/db"
)

// Statement is an Exec call captured by the fake transaction.
type Statement struct {
	SQL  string
	Args []any
}

// Source is a fake db.Source. Rows registered with Put are served to
// single-row lookups keyed by table and the first query argument. Statements
// containing RETURNING are served from the Returning queue instead. Exec and
// RETURNING statements become visible in Committed only after a successful
// commit.
type Source struct {
	mu sync.Mutex

	AcquireErr  error
	BeginErr    error
	ExecErr     error
	CommitErr   error
	RollbackErr error
	// ExecTag is the command tag reported by Exec; "EXEC 1" when empty.
	ExecTag string

	acquired   int
	released   int
	begun      int
	commits    int
	rollbacks  int
	queries    int
	committed  []Statement
	rows       map[string]map[int64][]any
	returning  [][]any
	openHandle int
}

// NewSource returns an empty Source.
func NewSource() *Source {
	return &Source{rows: make(map[string]map[int64][]any)}
}

// Provider wraps the source in a db.Provider.
func (s *Source) Provider() *db.Provider {
	return db.NewProvider(s, nil)
}

// Put registers a row served for "SELECT ... FROM table WHERE ... = id".
func (s *Source) Put(table string, id int64, values ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows[table] == nil {
		s.rows[table] = make(map[int64][]any)
	}
	s.rows[table][id] = values
}

// Returning queues the values scanned by the next RETURNING statement.
func (s *Source) Returning(values ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.returning = append(s.returning, values)
}

// Delete removes a registered row.
func (s *Source) Delete(table string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows[table], id)
}

// Acquire implements db.Source.
func (s *Source) Acquire(ctx context.Context) (db.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AcquireErr != nil {
		return nil, s.AcquireErr
	}
	s.acquired++
	s.openHandle++
	return &conn{src: s}, nil
}

// Acquired reports how many connections were handed out.
func (s *Source) Acquired() int { return s.read(func() int { return s.acquired }) }

// Released reports how many connections were returned.
func (s *Source) Released() int { return s.read(func() int { return s.released }) }

// Open reports connections acquired but not yet released.
func (s *Source) Open() int { return s.read(func() int { return s.openHandle }) }

// Begun reports how many transactions were opened.
func (s *Source) Begun() int { return s.read(func() int { return s.begun }) }

// Commits reports successful commits.
func (s *Source) Commits() int { return s.read(func() int { return s.commits }) }

// Rollbacks reports rollbacks, including those issued on release.
func (s *Source) Rollbacks() int { return s.read(func() int { return s.rollbacks }) }

// Queries reports single-row lookups served.
func (s *Source) Queries() int { return s.read(func() int { return s.queries }) }

// Committed returns the statements made durable so far.
func (s *Source) Committed() []Statement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Statement, len(s.committed))
	copy(out, s.committed)
	return out
}

func (s *Source) read(fn func() int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

type conn struct {
	src      *Source
	released bool
}

func (c *conn) Begin(ctx context.Context) (db.Tx, error) {
	c.src.mu.Lock()
	defer c.src.mu.Unlock()
	if c.released {
		return nil, errors.New("dbtest: begin on released conn")
	}
	if c.src.BeginErr != nil {
		return nil, c.src.BeginErr
	}
	c.src.begun++
	return &tx{src: c.src}, nil
}

func (c *conn) Release() {
	c.src.mu.Lock()
	defer c.src.mu.Unlock()
	if c.released {
		panic("dbtest: conn released twice")
	}
	c.released = true
	c.src.released++
	c.src.openHandle--
}

type tx struct {
	src     *Source
	pending []Statement
	closed  bool
}

func (t *tx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.src.mu.Lock()
	defer t.src.mu.Unlock()
	if t.closed {
		return pgconn.CommandTag{}, pgx.ErrTxClosed
	}
	if t.src.ExecErr != nil {
		return pgconn.CommandTag{}, t.src.ExecErr
	}
	t.pending = append(t.pending, Statement{SQL: sql, Args: args})
	if t.src.ExecTag != "" {
		return pgconn.NewCommandTag(t.src.ExecTag), nil
	}
	return pgconn.NewCommandTag("EXEC 1"), nil
}

func (t *tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("dbtest: multi-row query not supported: %s", sql)
}

func (t *tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	t.src.mu.Lock()
	defer t.src.mu.Unlock()
	if t.closed {
		return row{err: pgx.ErrTxClosed}
	}
	t.src.queries++
	if strings.Contains(strings.ToUpper(sql), "RETURNING") {
		return t.returningRow(sql, args)
	}
	table := tableOf(sql)
	if len(args) == 0 {
		return row{err: fmt.Errorf("dbtest: lookup without key: %s", sql)}
	}
	id, ok := args[0].(int64)
	if !ok {
		return row{err: fmt.Errorf("dbtest: key must be int64, got %T", args[0])}
	}
	values, ok := t.src.rows[table][id]
	if !ok {
		return row{err: pgx.ErrNoRows}
	}
	return row{values: values}
}

func (t *tx) returningRow(sql string, args []any) row {
	if t.src.ExecErr != nil {
		return row{err: t.src.ExecErr}
	}
	if len(t.src.returning) == 0 {
		return row{err: fmt.Errorf("dbtest: no RETURNING values queued: %s", sql)}
	}
	values := t.src.returning[0]
	t.src.returning = t.src.returning[1:]
	t.pending = append(t.pending, Statement{SQL: sql, Args: args})
	return row{values: values}
}

func (t *tx) Commit(ctx context.Context) error {
	t.src.mu.Lock()
	defer t.src.mu.Unlock()
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	if t.src.CommitErr != nil {
		t.pending = nil
		return t.src.CommitErr
	}
	t.src.commits++
	t.src.committed = append(t.src.committed, t.pending...)
	t.pending = nil
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	t.src.mu.Lock()
	defer t.src.mu.Unlock()
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.pending = nil
	t.src.rollbacks++
	return t.src.RollbackErr
}

type row struct {
	values []any
	err    error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("dbtest: scan %d columns into %d targets", len(r.values), len(dest))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d)
		if target.Kind() != reflect.Pointer || target.IsNil() {
			return fmt.Errorf("dbtest: scan target %d is not a pointer", i)
		}
		elem := target.Elem()
		if r.values[i] == nil {
			elem.Set(reflect.Zero(elem.Type()))
			continue
		}
		value := reflect.ValueOf(r.values[i])
		switch {
		case value.Type().AssignableTo(elem.Type()):
			elem.Set(value)
		case elem.Kind() == reflect.Pointer && value.Type().AssignableTo(elem.Type().Elem()):
			ptr := reflect.New(elem.Type().Elem())
			ptr.Elem().Set(value)
			elem.Set(ptr)
		case value.Type().ConvertibleTo(elem.Type()):
			elem.Set(value.Convert(elem.Type()))
		default:
			return fmt.Errorf("dbtest: cannot scan %T into %s", r.values[i], elem.Type())
		}
	}
	return nil
}

func tableOf(sql string) string {
	fields := strings.Fields(sql)
	for i, f := range fields {
		if strings.EqualFold(f, "FROM") && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}
