package tasks

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/projecthub/projecthub/internal/authz"
	"github.com/projecthub/projecthub/internal/labels"
	"github.com/projecthub/projecthub/internal/platform/httpx"
)

// DefaultStatus is assigned to tasks created without one.
const DefaultStatus = "todo"

// Task is a unit of work inside a project, optionally scheduled into a sprint.
type Task struct {
	ID          int64  `json:"task_id"`
	ProjectID   int64  `json:"project_id"`
	SprintID    *int64 `json:"sprint_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	AssignedTo  *int64 `json:"assigned_to"`

	// LabelIDs replaces the task's labels on update when non-nil.
	LabelIDs []int64 `json:"-"`
}

// Summary is a task as listed per project.
type Summary struct {
	Task
	LabelNames []string `json:"label_names"`
}

// Filter narrows ListByProject.
type Filter struct {
	LabelID  *int64
	SprintID *int64
}

// Kind describes tasks to the authz guards.
var Kind = authz.Kind[*Task]{
	Name:      "task",
	Table:     "tasks",
	IDColumn:  "task_id",
	Columns:   []string{"task_id", "project_id", "sprint_id", "title", "description", "status", "assigned_to"},
	Scan:      scanTask,
	ProjectID: func(t *Task) int64 { return t.ProjectID },
}

func scanTask(row pgx.Row) (*Task, error) {
	var (
		t           Task
		description *string
	)
	if err := row.Scan(&t.ID, &t.ProjectID, &t.SprintID, &t.Title, &description, &t.Status, &t.AssignedTo); err != nil {
		return nil, err
	}
	if description != nil {
		t.Description = *description
	}
	return &t, nil
}

type taskWithLabels struct {
	*Task
	Labels []labels.Label `json:"labels"`
}

type labelRef struct {
	LabelID int64 `json:"label_id" validate:"min=1"`
}

func labelIDs(refs []labelRef) []int64 {
	if refs == nil {
		return nil
	}
	seen := make(map[int64]bool, len(refs))
	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		if !seen[ref.LabelID] {
			seen[ref.LabelID] = true
			ids = append(ids, ref.LabelID)
		}
	}
	return ids
}

// nullableID tells an absent field apart from an explicit null.
type nullableID struct {
	Set   bool
	Value *int64
}

func (n *nullableID) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v <= 0 {
		return fmt.Errorf("id must be a positive integer")
	}
	n.Value = &v
	return nil
}

type createRequest struct {
	Title       string     `json:"title" validate:"required,max=255"`
	Description string     `json:"description" validate:"required"`
	Status      string     `json:"status" validate:"omitempty,oneof=todo 'in progress' done"`
	SprintID    *int64     `json:"sprint_id" validate:"omitnil,min=1"`
	AssignedTo  *int64     `json:"assigned_to" validate:"omitnil,min=1"`
	Labels      []labelRef `json:"labels" validate:"omitempty,dive"`
}

func (r createRequest) task(projectID int64) *Task {
	status := r.Status
	if status == "" {
		status = DefaultStatus
	}
	return &Task{
		ProjectID:   projectID,
		SprintID:    r.SprintID,
		Title:       r.Title,
		Description: r.Description,
		Status:      status,
		AssignedTo:  r.AssignedTo,
		LabelIDs:    labelIDs(r.Labels),
	}
}

type updateRequest struct {
	Title       *string    `json:"title" validate:"omitnil,min=1,max=255"`
	Description *string    `json:"description" validate:"omitnil,min=1"`
	Status      *string    `json:"status" validate:"omitnil,oneof=todo 'in progress' done"`
	ProjectID   *int64     `json:"project_id"`
	SprintID    nullableID `json:"sprint_id"`
	AssignedTo  nullableID `json:"assigned_to"`
	Labels      []labelRef `json:"labels" validate:"omitempty,dive"`
}

// apply copies the provided fields onto t.
func (r updateRequest) apply(t *Task) error {
	if r.ProjectID != nil && *r.ProjectID != t.ProjectID {
		return fmt.Errorf("%w: the project of a task cannot be changed", httpx.ErrValidation)
	}
	if r.Title != nil {
		t.Title = *r.Title
	}
	if r.Description != nil {
		t.Description = *r.Description
	}
	if r.Status != nil {
		t.Status = *r.Status
	}
	if r.SprintID.Set {
		t.SprintID = r.SprintID.Value
	}
	if r.AssignedTo.Set {
		t.AssignedTo = r.AssignedTo.Value
	}
	t.LabelIDs = labelIDs(r.Labels)
	return nil
}
