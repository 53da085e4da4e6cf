package tasks

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/projecthub/projecthub/internal/platform/db"
	"github.com/projecthub/projecthub/internal/platform/httpx"
)

// Store is the persistence surface used by the handlers.
type Store interface {
	Create(ctx context.Context, q db.Querier, t *Task) error
	Update(ctx context.Context, q db.Querier, t *Task) error
	Delete(ctx context.Context, q db.Querier, t *Task) error
	ListByProject(ctx context.Context, q db.Querier, projectID int64, f Filter) ([]Summary, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct{}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{}
}

// Create inserts t and attaches its labels.
func (r *Repository) Create(ctx context.Context, q db.Querier, t *Task) error {
	err := q.QueryRow(ctx, `
		INSERT INTO tasks (project_id, sprint_id, title, description, status, assigned_to)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING task_id`,
		t.ProjectID, t.SprintID, t.Title, t.Description, t.Status, t.AssignedTo).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("tasks: create: %w", err)
	}
	if len(t.LabelIDs) == 0 {
		return nil
	}
	return attachLabels(ctx, q, t)
}

// Update writes every column except project_id. Labels are replaced when
// t.LabelIDs is non-nil.
func (r *Repository) Update(ctx context.Context, q db.Querier, t *Task) error {
	tag, err := q.Exec(ctx, `
		UPDATE tasks
		SET sprint_id = $2, title = $3, description = $4, status = $5, assigned_to = $6
		WHERE task_id = $1`,
		t.ID, t.SprintID, t.Title, t.Description, t.Status, t.AssignedTo)
	if err != nil {
		return fmt.Errorf("tasks: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %d: %w", t.ID, httpx.ErrNotFound)
	}
	if t.LabelIDs == nil {
		return nil
	}
	if _, err := q.Exec(ctx, `DELETE FROM task_labels WHERE task_id = $1`, t.ID); err != nil {
		return fmt.Errorf("tasks: clear labels: %w", err)
	}
	if len(t.LabelIDs) == 0 {
		return nil
	}
	return attachLabels(ctx, q, t)
}

func attachLabels(ctx context.Context, q db.Querier, t *Task) error {
	_, err := q.Exec(ctx, `
		INSERT INTO task_labels (task_id, label_id)
		SELECT $1, unnest($2::bigint[])`, t.ID, t.LabelIDs)
	if err != nil {
		return fmt.Errorf("tasks: attach labels: %w", err)
	}
	return nil
}

// Delete removes t together with its label links.
func (r *Repository) Delete(ctx context.Context, q db.Querier, t *Task) error {
	if _, err := q.Exec(ctx, `DELETE FROM task_labels WHERE task_id = $1`, t.ID); err != nil {
		return fmt.Errorf("tasks: clear labels: %w", err)
	}
	tag, err := q.Exec(ctx, `DELETE FROM tasks WHERE task_id = $1`, t.ID)
	if err != nil {
		return fmt.Errorf("tasks: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %d: %w", t.ID, httpx.ErrNotFound)
	}
	return nil
}

// ListByProject returns the tasks of a project with their label names.
func (r *Repository) ListByProject(ctx context.Context, q db.Querier, projectID int64, f Filter) ([]Summary, error) {
	rows, err := q.Query(ctx, `
		SELECT t.task_id, t.project_id, t.sprint_id, t.title, COALESCE(t.description, ''), t.status, t.assigned_to,
			COALESCE(array_agg(l.name ORDER BY l.label_id) FILTER (WHERE l.label_id IS NOT NULL), '{}')
		FROM tasks t
		LEFT JOIN task_labels tl ON tl.task_id = t.task_id
		LEFT JOIN labels l ON l.label_id = tl.label_id
		WHERE t.project_id = $1
			AND ($2::bigint IS NULL OR t.sprint_id = $2)
			AND ($3::bigint IS NULL OR EXISTS (
				SELECT 1 FROM task_labels x WHERE x.task_id = t.task_id AND x.label_id = $3))
		GROUP BY t.task_id
		ORDER BY t.task_id`, projectID, f.SprintID, f.LabelID)
	if err != nil {
		return nil, fmt.Errorf("tasks: list: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Summary, error) {
		var s Summary
		err := row.Scan(&s.ID, &s.ProjectID, &s.SprintID, &s.Title, &s.Description, &s.Status, &s.AssignedTo, &s.LabelNames)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("tasks: list: %w", err)
	}
	return list, nil
}

var _ Store = (*Repository)(nil)
