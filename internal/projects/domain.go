package projects

import (
	"github.com/jackc/pgx/v5"

	"github.com/projecthub/projecthub/internal/authz"
)

// Project groups sprints, tasks and labels. Its creator is the owner.
type Project struct {
	ID          int64
	Name        string
	Description string
	CreatedBy   int64
}

// Membership is a project_members edge.
type Membership struct {
	ProjectID int64
	UserID    int64
}

// Member is a user listed on a project.
type Member struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Kind describes projects to the authz guards.
var Kind = authz.Kind[*Project]{
	Name:      "project",
	Table:     "projects",
	IDColumn:  "project_id",
	Columns:   []string{"project_id", "name", "description", "created_by"},
	Scan:      scanProject,
	ProjectID: func(p *Project) int64 { return p.ID },
	CreatedBy: func(p *Project) int64 { return p.CreatedBy },
}

func scanProject(row pgx.Row) (*Project, error) {
	var (
		p           Project
		description *string
	)
	if err := row.Scan(&p.ID, &p.Name, &description, &p.CreatedBy); err != nil {
		return nil, err
	}
	if description != nil {
		p.Description = *description
	}
	return &p, nil
}

type projectView struct {
	ProjectID   int64  `json:"project_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedBy   int64  `json:"created_by"`
	IsOwner     bool   `json:"is_owner"`
}

func viewOf(p *Project, userID int64) projectView {
	return projectView{
		ProjectID:   p.ID,
		Name:        p.Name,
		Description: p.Description,
		CreatedBy:   p.CreatedBy,
		IsOwner:     p.CreatedBy == userID,
	}
}

type projectRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"required"`
}

// The project id travels in the same body but is read by the guard.
type addMemberRequest struct {
	Email string `json:"email" validate:"required,email"`
}
