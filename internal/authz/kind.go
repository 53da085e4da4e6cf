package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/projecthub/projecthub/internal/platform/db"
)

// Kind describes how to load one resource type and where its project link lives.
type Kind[R any] struct {
	// Name is used in logs, metrics and error details.
	Name string
	// Table and IDColumn locate the row by primary key.
	Table    string
	IDColumn string
	// Columns are selected in the order Scan expects them.
	Columns []string
	Scan    func(row pgx.Row) (R, error)
	// ProjectID returns the owning project; for projects it is the resource's own id.
	ProjectID func(R) int64
	// CreatedBy returns the creator. Only kinds guarded by Ownership need it.
	CreatedBy func(R) int64
}

func (k Kind[R]) selectSQL() string {
	return "SELECT " + strings.Join(k.Columns, ", ") + " FROM " + k.Table + " WHERE " + k.IDColumn + " = $1"
}

func (k Kind[R]) validate() error {
	switch {
	case k.Name == "":
		return errors.New("authz: kind name required")
	case k.Table == "" || k.IDColumn == "" || len(k.Columns) == 0:
		return fmt.Errorf("authz: kind %s: table, id column and columns required", k.Name)
	case k.Scan == nil:
		return fmt.Errorf("authz: kind %s: scan func required", k.Name)
	case k.ProjectID == nil:
		return fmt.Errorf("authz: kind %s: project accessor required", k.Name)
	}
	return nil
}

// Load fetches the row whose primary key equals id. found is false when no
// such row exists; no access decision is made here.
func Load[R any](ctx context.Context, q db.Querier, kind Kind[R], id int64) (res R, found bool, err error) {
	res, err = kind.Scan(q.QueryRow(ctx, kind.selectSQL(), id))
	if err != nil {
		var zero R
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("authz: load %s %d: %w", kind.Name, id, err)
	}
	return res, true, nil
}
