package labels

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/projecthub/projecthub/internal/platform/db"
	"github.com/projecthub/projecthub/internal/platform/httpx"
)

// Store is the persistence surface used by the label handlers.
type Store interface {
	Create(ctx context.Context, q db.Querier, l *Label) error
	Delete(ctx context.Context, q db.Querier, l *Label) error
	ListByProject(ctx context.Context, q db.Querier, projectID int64) ([]Label, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct{}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{}
}

// Create inserts l and fills its id.
func (r *Repository) Create(ctx context.Context, q db.Querier, l *Label) error {
	err := q.QueryRow(ctx, `
		INSERT INTO labels (project_id, name)
		VALUES ($1, $2)
		RETURNING label_id`, l.ProjectID, l.Name).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("labels: create: %w", err)
	}
	return nil
}

// Delete untags every task before removing the label.
func (r *Repository) Delete(ctx context.Context, q db.Querier, l *Label) error {
	if _, err := q.Exec(ctx, `DELETE FROM task_labels WHERE label_id = $1`, l.ID); err != nil {
		return fmt.Errorf("labels: untag tasks: %w", err)
	}
	tag, err := q.Exec(ctx, `DELETE FROM labels WHERE label_id = $1`, l.ID)
	if err != nil {
		return fmt.Errorf("labels: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("label %d: %w", l.ID, httpx.ErrNotFound)
	}
	return nil
}

// ListByProject returns the labels of a project.
func (r *Repository) ListByProject(ctx context.Context, q db.Querier, projectID int64) ([]Label, error) {
	rows, err := q.Query(ctx, `
		SELECT label_id, project_id, name
		FROM labels
		WHERE project_id = $1
		ORDER BY label_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("labels: list: %w", err)
	}
	list, err := pgx.CollectRows(rows, collectLabel)
	if err != nil {
		return nil, fmt.Errorf("labels: list: %w", err)
	}
	return list, nil
}

// ForTask returns the labels attached to a task.
func (r *Repository) ForTask(ctx context.Context, q db.Querier, taskID int64) ([]Label, error) {
	rows, err := q.Query(ctx, `
		SELECT l.label_id, l.project_id, l.name
		FROM labels l
		JOIN task_labels tl ON tl.label_id = l.label_id
		WHERE tl.task_id = $1
		ORDER BY l.label_id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("labels: for task: %w", err)
	}
	list, err := pgx.CollectRows(rows, collectLabel)
	if err != nil {
		return nil, fmt.Errorf("labels: for task: %w", err)
	}
	return list, nil
}

// CountInProject reports how many of ids are labels of projectID.
func (r *Repository) CountInProject(ctx context.Context, q db.Querier, projectID int64, ids []int64) (int, error) {
	var n int
	err := q.QueryRow(ctx, `
		SELECT count(*) FROM labels
		WHERE project_id = $1 AND label_id = ANY($2)`, projectID, ids).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("labels: count in project: %w", err)
	}
	return n, nil
}

var _ Store = (*Repository)(nil)
