package sprints

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/projecthub/projecthub/internal/platform/db"
	"github.com/projecthub/projecthub/internal/platform/httpx"
)

// Store is the persistence surface used by the handler.
type Store interface {
	Create(ctx context.Context, q db.Querier, s *Sprint) error
	Delete(ctx context.Context, q db.Querier, s *Sprint) error
	ListByProject(ctx context.Context, q db.Querier, projectID int64) ([]Sprint, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct{}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{}
}

// Create inserts s and fills its id.
func (r *Repository) Create(ctx context.Context, q db.Querier, s *Sprint) error {
	err := q.QueryRow(ctx, `
		INSERT INTO sprints (project_id, name, start_date, end_date)
		VALUES ($1, $2, $3, $4)
		RETURNING sprint_id`, s.ProjectID, s.Name, s.StartDate, s.EndDate).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("sprints: create: %w", err)
	}
	return nil
}

// Delete detaches the sprint's tasks before removing it.
func (r *Repository) Delete(ctx context.Context, q db.Querier, s *Sprint) error {
	if _, err := q.Exec(ctx, `UPDATE tasks SET sprint_id = NULL WHERE sprint_id = $1`, s.ID); err != nil {
		return fmt.Errorf("sprints: detach tasks: %w", err)
	}
	tag, err := q.Exec(ctx, `DELETE FROM sprints WHERE sprint_id = $1`, s.ID)
	if err != nil {
		return fmt.Errorf("sprints: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sprint %d: %w", s.ID, httpx.ErrNotFound)
	}
	return nil
}

// ListByProject returns the sprints of a project ordered by start date.
func (r *Repository) ListByProject(ctx context.Context, q db.Querier, projectID int64) ([]Sprint, error) {
	rows, err := q.Query(ctx, `
		SELECT sprint_id, project_id, name, start_date, end_date
		FROM sprints
		WHERE project_id = $1
		ORDER BY start_date, sprint_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("sprints: list: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Sprint, error) {
		s, err := scanSprint(row)
		if err != nil {
			return Sprint{}, err
		}
		return *s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("sprints: list: %w", err)
	}
	return list, nil
}

var _ Store = (*Repository)(nil)
