package labels

import (
	"github.com/jackc/pgx/v5"

	"github.com/projecthub/projecthub/internal/authz"
)

// Label tags tasks of a single project.
type Label struct {
	ID        int64  `json:"label_id"`
	Name      string `json:"name"`
	ProjectID int64  `json:"project_id"`
}

// Kind describes labels to the authz guards.
var Kind = authz.Kind[*Label]{
	Name:      "label",
	Table:     "labels",
	IDColumn:  "label_id",
	Columns:   []string{"label_id", "project_id", "name"},
	Scan:      scanLabel,
	ProjectID: func(l *Label) int64 { return l.ProjectID },
}

func scanLabel(row pgx.Row) (*Label, error) {
	var l Label
	if err := row.Scan(&l.ID, &l.ProjectID, &l.Name); err != nil {
		return nil, err
	}
	return &l, nil
}

func collectLabel(row pgx.CollectableRow) (Label, error) {
	l, err := scanLabel(row)
	if err != nil {
		return Label{}, err
	}
	return *l, nil
}

type createRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}
