package sprints

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/projecthub/projecthub/internal/authz"
	"github.com/projecthub/projecthub/internal/platform/httpx"
)

// DateLayout is the wire format of sprint dates.
const DateLayout = "2006-01-02"

// Sprint is a dated iteration inside a project.
type Sprint struct {
	ID        int64
	ProjectID int64
	Name      string
	StartDate time.Time
	EndDate   time.Time
}

// Kind describes sprints to the authz guards.
var Kind = authz.Kind[*Sprint]{
	Name:      "sprint",
	Table:     "sprints",
	IDColumn:  "sprint_id",
	Columns:   []string{"sprint_id", "project_id", "name", "start_date", "end_date"},
	Scan:      scanSprint,
	ProjectID: func(s *Sprint) int64 { return s.ProjectID },
}

func scanSprint(row pgx.Row) (*Sprint, error) {
	var s Sprint
	if err := row.Scan(&s.ID, &s.ProjectID, &s.Name, &s.StartDate, &s.EndDate); err != nil {
		return nil, err
	}
	return &s, nil
}

type sprintView struct {
	SprintID  int64  `json:"sprint_id"`
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	ProjectID int64  `json:"project_id"`
}

func viewOf(s *Sprint) sprintView {
	return sprintView{
		SprintID:  s.ID,
		Name:      s.Name,
		StartDate: s.StartDate.Format(DateLayout),
		EndDate:   s.EndDate.Format(DateLayout),
		ProjectID: s.ProjectID,
	}
}

type createRequest struct {
	Name      string `json:"name" validate:"required,max=255"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

func (r createRequest) sprint(projectID int64) (*Sprint, error) {
	start, err := time.Parse(DateLayout, r.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: start_date: %v", httpx.ErrValidation, err)
	}
	end, err := time.Parse(DateLayout, r.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%w: end_date: %v", httpx.ErrValidation, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end_date must not precede start_date", httpx.ErrValidation)
	}
	return &Sprint{ProjectID: projectID, Name: r.Name, StartDate: start, EndDate: end}, nil
}
