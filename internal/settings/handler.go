package settings

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/projecthub/projecthub/internal/authz"
	"github.com/projecthub/projecthub/internal/platform/db"
	"github.com/projecthub/projecthub/internal/platform/httpx"
	"github.com/projecthub/projecthub/internal/shared"
)

// Handler serves the current user's preferences.
type Handler struct {
	logger   *slog.Logger
	store    Store
	validate *validator.Validate
	user     *authz.Guard[authz.Unscoped]
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
		user:     authz.NewUserGuard(deps),
	}
}

// MountRoutes registers settings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.user.HTTP(h.get))
	r.Put("/", h.user.HTTP(h.update))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, call *authz.Call[authz.Unscoped]) error {
	s, err := h.store.Get(r.Context(), call.Handle, call.Principal.ID)
	if err != nil {
		return err
	}
	httpx.JSON(w, http.StatusOK, s)
	return nil
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, call *authz.Call[authz.Unscoped]) error {
	var req updateRequest
	if err := shared.Bind(r, h.validate, &req); err != nil {
		return err
	}
	s, err := h.store.Get(r.Context(), call.Handle, call.Principal.ID)
	if err != nil {
		return err
	}
	req.apply(s)
	if err := db.Apply(r.Context(), call.Handle, h.store.Update, s); err != nil {
		return err
	}
	h.logger.Info("settings updated", slog.Int64("user_id", call.Principal.ID))
	httpx.JSON(w, http.StatusOK, s)
	return nil
}
