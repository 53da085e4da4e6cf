package users

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/projecthub/projecthub/internal/authz"
	"github.com/projecthub/projecthub/internal/platform/db"
	"github.com/projecthub/projecthub/internal/platform/httpx"
	"github.com/projecthub/projecthub/internal/shared"
)

// Handler manages account endpoints.
type Handler struct {
	logger   *slog.Logger
	provider *db.Provider
	store    Store
	sessions *shared.SessionManager
	validate *validator.Validate
	user     *authz.Guard[authz.Unscoped]
}

// NewHandler builds Handler instance. sessions may be nil when no session
// middleware runs in front of the handler.
func NewHandler(logger *slog.Logger, deps authz.Deps, store Store, sessions *shared.SessionManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		provider: deps.Provider,
		store:    store,
		sessions: sessions,
		validate: shared.NewValidator(),
		user:     authz.NewUserGuard(deps),
	}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.register)
	r.Get("/", h.user.HTTP(h.profile))
	r.Put("/", h.user.HTTP(h.update))
	r.Delete("/", h.user.HTTP(h.delete))
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := shared.Bind(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	u := &User{Username: req.Username, Email: req.Email, Company: req.Company, Phone: req.Phone, Sex: req.Sex}
	if err := u.SetPassword(req.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	err := h.provider.WithHandle(r.Context(), func(hd *db.Handle) error {
		return db.Apply(r.Context(), hd, h.store.Create, u)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("user registered", slog.Int64("user_id", u.ID))
	httpx.JSON(w, http.StatusCreated, map[string]any{"message": "User created successfully", "user_id": u.ID})
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request, call *authz.Call[authz.Unscoped]) error {
	u, err := h.store.Get(r.Context(), call.Handle, call.Principal.ID)
	if err != nil {
		return err
	}
	httpx.JSON(w, http.StatusOK, u.Profile())
	return nil
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, call *authz.Call[authz.Unscoped]) error {
	var req updateRequest
	if err := shared.Bind(r, h.validate, &req); err != nil {
		return err
	}
	u, err := h.store.Get(r.Context(), call.Handle, call.Principal.ID)
	if err != nil {
		return err
	}
	if err := req.apply(u); err != nil {
		return err
	}
	if err := db.Apply(r.Context(), call.Handle, h.store.Update, u); err != nil {
		return err
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "User updated successfully"})
	return nil
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, call *authz.Call[authz.Unscoped]) error {
	u, err := h.store.Get(r.Context(), call.Handle, call.Principal.ID)
	if err != nil {
		return err
	}
	if err := db.Apply(r.Context(), call.Handle, h.store.Delete, u); err != nil {
		return err
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil && h.sessions != nil {
		h.sessions.Destroy(sess)
	}
	h.logger.Info("user deleted", slog.Int64("user_id", u.ID))
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !errors.Is(err, httpx.ErrDuplicate) && !errors.Is(err, httpx.ErrValidation) {
		h.logger.Error("users request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
