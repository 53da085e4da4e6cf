package labels

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/projecthub/projecthub/internal/authz"
	"github.com/projecthub/projecthub/internal/platform/db"
	"github.com/projecthub/projecthub/internal/platform/httpx"
	"github.com/projecthub/projecthub/internal/projects"
	"github.com/projecthub/projecthub/internal/shared"
)

// Handler serves label endpoints.
type Handler struct {
	logger   *slog.Logger
	store    Store
	validate *validator.Validate

	create  *authz.Guard[*projects.Project]
	project *authz.Guard[*projects.Project]
	label   *authz.Guard[*Label]
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, deps authz.Deps, store Store) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		store:    store,
		validate: shared.NewValidator(),
		create:   authz.NewGuard(deps, projects.Kind, authz.Membership, authz.BodyField("project_id")),
		project:  authz.NewGuard(deps, projects.Kind, authz.Membership, authz.PathParam("project_id")),
		label:    authz.NewGuard(deps, Kind, authz.Membership, authz.PathParam("label_id")),
	}
}

// MountRoutes registers /labels routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create.HTTP(h.add))
	r.Delete("/{label_id}", h.label.HTTP(h.delete))
	r.Get("/by_project/{project_id}", h.project.HTTP(h.byProject))
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request, call *authz.Call[*projects.Project]) error {
	var req createRequest
	if err := shared.Bind(r, h.validate, &req); err != nil {
		return err
	}
	l := &Label{ProjectID: call.Resource.ID, Name: req.Name}
	if err := db.Apply(r.Context(), call.Handle, h.store.Create, l); err != nil {
		return err
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"message": "Label added", "label_id": l.ID})
	return nil
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, call *authz.Call[*Label]) error {
	if err := db.Apply(r.Context(), call.Handle, h.store.Delete, call.Resource); err != nil {
		return err
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Label deleted"})
	return nil
}

func (h *Handler) byProject(w http.ResponseWriter, r *http.Request, call *authz.Call[*projects.Project]) error {
	list, err := h.store.ListByProject(r.Context(), call.Handle, call.Resource.ID)
	if err != nil {
		return err
	}
	if list == nil {
		list = []Label{}
	}
	httpx.JSON(w, http.StatusOK, list)
	return nil
}
