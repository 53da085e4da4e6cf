package projects

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/projecthub/projecthub/internal/authz"
	"github.com/projecthub/projecthub/internal/platform/db"
	"github.com/projecthub/projecthub/internal/platform/httpx"
)

// Store is the persistence surface used by the handlers.
type Store interface {
	Create(ctx context.Context, q db.Querier, p *Project) error
	Update(ctx context.Context, q db.Querier, p *Project) error
	Delete(ctx context.Context, q db.Querier, p *Project) error
	ListForMember(ctx context.Context, q db.Querier, userID int64) ([]Project, error)
	Members(ctx context.Context, q db.Querier, projectID int64) ([]Member, error)
	AddMember(ctx context.Context, q db.Querier, m *Membership) error
	RemoveMember(ctx context.Context, q db.Querier, m *Membership) error
}

// UserDirectory resolves accounts by email.
type UserDirectory interface {
	FindIDByEmail(ctx context.Context, q db.Querier, email string) (int64, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct{}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{}
}

// Create inserts p and makes its creator the first member.
func (r *Repository) Create(ctx context.Context, q db.Querier, p *Project) error {
	err := q.QueryRow(ctx, `
		INSERT INTO projects (name, description, created_by)
		VALUES ($1, $2, $3)
		RETURNING project_id`, p.Name, p.Description, p.CreatedBy).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("projects: create: %w", err)
	}
	return r.AddMember(ctx, q, &Membership{ProjectID: p.ID, UserID: p.CreatedBy})
}

// Update writes name and description.
func (r *Repository) Update(ctx context.Context, q db.Querier, p *Project) error {
	tag, err := q.Exec(ctx, `UPDATE projects SET name = $2, description = $3 WHERE project_id = $1`, p.ID, p.Name, p.Description)
	if err != nil {
		return fmt.Errorf("projects: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %d: %w", p.ID, httpx.ErrNotFound)
	}
	return nil
}

// Delete removes p and everything that belongs to it.
func (r *Repository) Delete(ctx context.Context, q db.Querier, p *Project) error {
	statements := []string{
		`DELETE FROM task_labels WHERE task_id IN (SELECT task_id FROM tasks WHERE project_id = $1)`,
		`DELETE FROM tasks WHERE project_id = $1`,
		`DELETE FROM labels WHERE project_id = $1`,
		`DELETE FROM sprints WHERE project_id = $1`,
		`DELETE FROM project_members WHERE project_id = $1`,
		`DELETE FROM projects WHERE project_id = $1`,
	}
	for _, stmt := range statements {
		if _, err := q.Exec(ctx, stmt, p.ID); err != nil {
			return fmt.Errorf("projects: delete: %w", err)
		}
	}
	return nil
}

// ListForMember returns the projects userID belongs to.
func (r *Repository) ListForMember(ctx context.Context, q db.Querier, userID int64) ([]Project, error) {
	rows, err := q.Query(ctx, `
		SELECT p.project_id, p.name, p.description, p.created_by
		FROM projects p
		JOIN project_members pm ON pm.project_id = p.project_id
		WHERE pm.member_id = $1
		ORDER BY p.project_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("projects: list: %w", err)
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("projects: list: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("projects: list: %w", err)
	}
	return out, nil
}

// IsMember implements authz.MembershipChecker.
func (r *Repository) IsMember(ctx context.Context, q db.Querier, projectID, userID int64) (bool, error) {
	var ok bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM project_members WHERE project_id = $1 AND member_id = $2
		)`, projectID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("projects: membership: %w", err)
	}
	return ok, nil
}

// Members lists the users of a project.
func (r *Repository) Members(ctx context.Context, q db.Querier, projectID int64) ([]Member, error) {
	rows, err := q.Query(ctx, `
		SELECT u.user_id, u.username, u.email
		FROM users u
		JOIN project_members pm ON pm.member_id = u.user_id
		WHERE pm.project_id = $1
		ORDER BY u.user_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("projects: members: %w", err)
	}
	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Member, error) {
		var m Member
		err := row.Scan(&m.UserID, &m.Username, &m.Email)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("projects: members: %w", err)
	}
	return members, nil
}

// AddMember inserts the edge; an existing edge yields httpx.ErrDuplicate.
func (r *Repository) AddMember(ctx context.Context, q db.Querier, m *Membership) error {
	_, err := q.Exec(ctx, `INSERT INTO project_members (project_id, member_id) VALUES ($1, $2)`, m.ProjectID, m.UserID)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return fmt.Errorf("user already assigned to this project: %w", httpx.ErrDuplicate)
		}
		return fmt.Errorf("projects: add member: %w", err)
	}
	return nil
}

// RemoveMember deletes the edge.
func (r *Repository) RemoveMember(ctx context.Context, q db.Querier, m *Membership) error {
	tag, err := q.Exec(ctx, `DELETE FROM project_members WHERE project_id = $1 AND member_id = $2`, m.ProjectID, m.UserID)
	if err != nil {
		return fmt.Errorf("projects: remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project member relation: %w", httpx.ErrNotFound)
	}
	return nil
}

var (
	_ Store                   = (*Repository)(nil)
	_ authz.MembershipChecker = (*Repository)(nil)
)
