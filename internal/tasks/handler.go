package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/projecthub/projecthub/internal/authz"
	"github.com/projecthub/projecthub/internal/labels"
	"github.com/projecthub/projecthub/internal/platform/db"
	"github.com/projecthub/projecthub/internal/platform/httpx"
	"github.com/projecthub/projecthub/internal/projects"
	"github.com/projecthub/projecthub/internal/shared"
	"github.com/projecthub/projecthub/internal/sprints"
)

// LabelCatalog reads labels for task views and checks label ownership.
type LabelCatalog interface {
	ForTask(ctx context.Context, q db.Querier, taskID int64) ([]labels.Label, error)
	ListByProject(ctx context.Context, q db.Querier, projectID int64) ([]labels.Label, error)
	CountInProject(ctx context.Context, q db.Querier, projectID int64, ids []int64) (int, error)
}

// SprintLister lists the sprints of a project.
type SprintLister interface {
	ListByProject(ctx context.Context, q db.Querier, projectID int64) ([]sprints.Sprint, error)
}

// MemberLister lists the members of a project.
type MemberLister interface {
	Members(ctx context.Context, q db.Querier, projectID int64) ([]projects.Member, error)
}

// Catalogs groups the read models a task view is assembled from.
type Catalogs struct {
	Labels  LabelCatalog
	Sprints SprintLister
	Members MemberLister
}

// Handler serves task endpoints.
type Handler struct {
	logger   *slog.Logger
	store    Store
	catalogs Catalogs
	members  authz.MembershipChecker
	validate *validator.Validate

	create  *authz.Guard[*projects.Project]
	project *authz.Guard[*projects.Project]
	task    *authz.Guard[*Task]
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, deps authz.Deps, store Store, catalogs Catalogs) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		store:    store,
		catalogs: catalogs,
		members:  deps.Members,
		validate: shared.NewValidator(),
		create:   authz.NewGuard(deps, projects.Kind, authz.Membership, authz.BodyField("project_id")),
		project:  authz.NewGuard(deps, projects.Kind, authz.Membership, authz.PathParam("project_id")),
		task:     authz.NewGuard(deps, Kind, authz.Membership, authz.PathParam("task_id")),
	}
}

// MountRoutes registers /tasks routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create.HTTP(h.add))
	r.Get("/by_project/{project_id}", h.project.HTTP(h.byProject))
	r.Get("/details/{task_id}", h.task.HTTP(h.details))
	r.Get("/{task_id}", h.task.HTTP(h.get))
	r.Put("/{task_id}", h.task.HTTP(h.update))
	r.Delete("/{task_id}", h.task.HTTP(h.delete))
}

// MountLabelRoutes registers /task_labels routes.
func (h *Handler) MountLabelRoutes(r chi.Router) {
	r.Get("/{task_id}", h.task.HTTP(h.taskLabels))
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request, call *authz.Call[*projects.Project]) error {
	var req createRequest
	if err := shared.Bind(r, h.validate, &req); err != nil {
		return err
	}
	t := req.task(call.Resource.ID)
	if err := h.checkReferences(r.Context(), call.Handle, t); err != nil {
		return err
	}
	if err := db.Apply(r.Context(), call.Handle, h.store.Create, t); err != nil {
		return err
	}
	h.logger.Info("task created", slog.Int64("task_id", t.ID), slog.Int64("project_id", t.ProjectID))
	httpx.JSON(w, http.StatusCreated, map[string]any{"message": "Task added", "task_id": t.ID})
	return nil
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, call *authz.Call[*Task]) error {
	view, err := h.withLabels(r.Context(), call.Handle, call.Resource)
	if err != nil {
		return err
	}
	httpx.JSON(w, http.StatusOK, view)
	return nil
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, call *authz.Call[*Task]) error {
	var req updateRequest
	if err := shared.Bind(r, h.validate, &req); err != nil {
		return err
	}
	t := call.Resource
	if err := req.apply(t); err != nil {
		return err
	}
	if err := h.checkReferences(r.Context(), call.Handle, t); err != nil {
		return err
	}
	if err := db.Apply(r.Context(), call.Handle, h.store.Update, t); err != nil {
		return err
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Task updated successfully"})
	return nil
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, call *authz.Call[*Task]) error {
	if err := db.Apply(r.Context(), call.Handle, h.store.Delete, call.Resource); err != nil {
		return err
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Task deleted successfully"})
	return nil
}

func (h *Handler) byProject(w http.ResponseWriter, r *http.Request, call *authz.Call[*projects.Project]) error {
	var (
		f   Filter
		err error
	)
	if f.LabelID, err = queryID(r, "label_id"); err != nil {
		return err
	}
	if f.SprintID, err = queryID(r, "sprint_id"); err != nil {
		return err
	}
	list, err := h.store.ListByProject(r.Context(), call.Handle, call.Resource.ID, f)
	if err != nil {
		return err
	}
	if list == nil {
		list = []Summary{}
	}
	httpx.JSON(w, http.StatusOK, list)
	return nil
}

type sprintRef struct {
	SprintID int64  `json:"sprint_id"`
	Name     string `json:"name"`
}

func (h *Handler) details(w http.ResponseWriter, r *http.Request, call *authz.Call[*Task]) error {
	ctx, q, t := r.Context(), call.Handle, call.Resource
	view, err := h.withLabels(ctx, q, t)
	if err != nil {
		return err
	}
	members, err := h.catalogs.Members.Members(ctx, q, t.ProjectID)
	if err != nil {
		return err
	}
	sprintList, err := h.catalogs.Sprints.ListByProject(ctx, q, t.ProjectID)
	if err != nil {
		return err
	}
	projectLabels, err := h.catalogs.Labels.ListByProject(ctx, q, t.ProjectID)
	if err != nil {
		return err
	}
	refs := make([]sprintRef, 0, len(sprintList))
	for _, s := range sprintList {
		refs = append(refs, sprintRef{SprintID: s.ID, Name: s.Name})
	}
	if members == nil {
		members = []projects.Member{}
	}
	if projectLabels == nil {
		projectLabels = []labels.Label{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"task":           view,
		"users":          members,
		"sprints":        refs,
		"project_labels": projectLabels,
	})
	return nil
}

func (h *Handler) taskLabels(w http.ResponseWriter, r *http.Request, call *authz.Call[*Task]) error {
	list, err := h.catalogs.Labels.ForTask(r.Context(), call.Handle, call.Resource.ID)
	if err != nil {
		return err
	}
	if list == nil {
		list = []labels.Label{}
	}
	httpx.JSON(w, http.StatusOK, list)
	return nil
}

func (h *Handler) withLabels(ctx context.Context, q db.Querier, t *Task) (taskWithLabels, error) {
	list, err := h.catalogs.Labels.ForTask(ctx, q, t.ID)
	if err != nil {
		return taskWithLabels{}, err
	}
	if list == nil {
		list = []labels.Label{}
	}
	return taskWithLabels{Task: t, Labels: list}, nil
}

// checkReferences rejects sprints, assignees and labels from outside the task's project.
func (h *Handler) checkReferences(ctx context.Context, q db.Querier, t *Task) error {
	if t.SprintID != nil {
		s, found, err := authz.Load(ctx, q, sprints.Kind, *t.SprintID)
		if err != nil {
			return err
		}
		if !found || s.ProjectID != t.ProjectID {
			return fmt.Errorf("%w: sprint %d does not belong to project %d", httpx.ErrValidation, *t.SprintID, t.ProjectID)
		}
	}
	if t.AssignedTo != nil {
		ok, err := h.members.IsMember(ctx, q, t.ProjectID, *t.AssignedTo)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: user %d is not a member of project %d", httpx.ErrValidation, *t.AssignedTo, t.ProjectID)
		}
	}
	if len(t.LabelIDs) > 0 {
		n, err := h.catalogs.Labels.CountInProject(ctx, q, t.ProjectID, t.LabelIDs)
		if err != nil {
			return err
		}
		if n != len(t.LabelIDs) {
			return fmt.Errorf("%w: labels must belong to project %d", httpx.ErrValidation, t.ProjectID)
		}
	}
	return nil
}

func queryID(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: %s must be a positive integer", httpx.ErrValidation, name)
	}
	return &id, nil
}
