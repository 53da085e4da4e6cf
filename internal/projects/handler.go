package projects

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/projecthub/projecthub/internal/authz"
	"github.com/projecthub/projecthub/internal/platform/db"
	"github.com/projecthub/projecthub/internal/platform/httpx"
	"github.com/projecthub/projecthub/internal/shared"
)

// ErrCreatorRemoval is returned when the owner would lose membership of their own project.
var ErrCreatorRemoval = fmt.Errorf("project creator cannot be removed: %w", httpx.ErrValidation)

// Handler serves projects and their memberships.
type Handler struct {
	logger   *slog.Logger
	store    Store
	members  authz.MembershipChecker
	users    UserDirectory
	validate *validator.Validate

	user       *authz.Guard[authz.Unscoped]
	member     *authz.Guard[*Project]
	owner      *authz.Guard[*Project]
	bodyMember *authz.Guard[*Project]
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, deps authz.Deps, store Store, users UserDirectory) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:     logger,
		store:      store,
		members:    deps.Members,
		users:      users,
		validate:   shared.NewValidator(),
		user:       authz.NewUserGuard(deps),
		member:     authz.NewGuard(deps, Kind, authz.Membership, authz.PathParam("project_id")),
		owner:      authz.NewGuard(deps, Kind, authz.Ownership, authz.PathParam("project_id")),
		bodyMember: authz.NewGuard(deps, Kind, authz.Membership, authz.BodyField("project_id")),
	}
}

// MountRoutes registers /projects routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.user.HTTP(h.create))
	r.Get("/mine", h.user.HTTP(h.mine))
	r.Get("/{project_id}", h.member.HTTP(h.get))
	r.Put("/{project_id}", h.owner.HTTP(h.update))
	r.Delete("/{project_id}", h.owner.HTTP(h.delete))
}

// MountMemberRoutes registers /project_members routes.
func (h *Handler) MountMemberRoutes(r chi.Router) {
	r.Post("/", h.bodyMember.HTTP(h.addMember))
	r.Get("/{project_id}", h.member.HTTP(h.listMembers))
	r.Delete("/{project_id}", h.member.HTTP(h.leave))
	r.Delete("/{project_id}/{user_id}", h.member.HTTP(h.removeMember))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, call *authz.Call[authz.Unscoped]) error {
	var req projectRequest
	if err := shared.Bind(r, h.validate, &req); err != nil {
		return err
	}
	p := &Project{Name: req.Name, Description: req.Description, CreatedBy: call.Principal.ID}
	if err := db.Apply(r.Context(), call.Handle, h.store.Create, p); err != nil {
		return err
	}
	h.logger.Info("project created", slog.Int64("project_id", p.ID), slog.Int64("user_id", p.CreatedBy))
	httpx.JSON(w, http.StatusCreated, map[string]any{"message": "Project added and user assigned", "project_id": p.ID})
	return nil
}

func (h *Handler) mine(w http.ResponseWriter, r *http.Request, call *authz.Call[authz.Unscoped]) error {
	list, err := h.store.ListForMember(r.Context(), call.Handle, call.Principal.ID)
	if err != nil {
		return err
	}
	out := make([]projectView, 0, len(list))
	for i := range list {
		out = append(out, viewOf(&list[i], call.Principal.ID))
	}
	httpx.JSON(w, http.StatusOK, out)
	return nil
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, call *authz.Call[*Project]) error {
	httpx.JSON(w, http.StatusOK, viewOf(call.Resource, call.Principal.ID))
	return nil
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, call *authz.Call[*Project]) error {
	var req projectRequest
	if err := shared.Bind(r, h.validate, &req); err != nil {
		return err
	}
	p := call.Resource
	p.Name = req.Name
	p.Description = req.Description
	if err := db.Apply(r.Context(), call.Handle, h.store.Update, p); err != nil {
		return err
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Project updated"})
	return nil
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, call *authz.Call[*Project]) error {
	if err := db.Apply(r.Context(), call.Handle, h.store.Delete, call.Resource); err != nil {
		return err
	}
	h.logger.Info("project deleted", slog.Int64("project_id", call.Resource.ID))
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Project deleted"})
	return nil
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request, call *authz.Call[*Project]) error {
	var req addMemberRequest
	if err := shared.Bind(r, h.validate, &req); err != nil {
		return err
	}
	userID, err := h.users.FindIDByEmail(r.Context(), call.Handle, req.Email)
	if err != nil {
		return err
	}
	exists, err := h.members.IsMember(r.Context(), call.Handle, call.Resource.ID, userID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("user already assigned to this project: %w", httpx.ErrDuplicate)
	}
	if err := db.Apply(r.Context(), call.Handle, h.store.AddMember, &Membership{ProjectID: call.Resource.ID, UserID: userID}); err != nil {
		return err
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "Project assigned to user successfully", "user_id": userID})
	return nil
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request, call *authz.Call[*Project]) error {
	members, err := h.store.Members(r.Context(), call.Handle, call.Resource.ID)
	if err != nil {
		return err
	}
	if members == nil {
		members = []Member{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"members": members})
	return nil
}

func (h *Handler) leave(w http.ResponseWriter, r *http.Request, call *authz.Call[*Project]) error {
	return h.remove(w, r, call, call.Principal.ID)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request, call *authz.Call[*Project]) error {
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil || userID <= 0 {
		return fmt.Errorf("%w: user_id must be a positive integer", httpx.ErrValidation)
	}
	return h.remove(w, r, call, userID)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request, call *authz.Call[*Project], userID int64) error {
	if userID == call.Resource.CreatedBy {
		return ErrCreatorRemoval
	}
	if err := db.Apply(r.Context(), call.Handle, h.store.RemoveMember, &Membership{ProjectID: call.Resource.ID, UserID: userID}); err != nil {
		return err
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Project relation deleted successfully"})
	return nil
}
