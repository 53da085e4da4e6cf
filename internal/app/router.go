package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/projecthub/projecthub/internal/auth"
	"github.com/projecthub/projecthub/internal/labels"
	"github.com/projecthub/projecthub/internal/observability"
	"github.com/projecthub/projecthub/internal/platform/httpx"
	"github.com/projecthub/projecthub/internal/projects"
	"github.com/projecthub/projecthub/internal/settings"
	"github.com/projecthub/projecthub/internal/shared"
	"github.com/projecthub/projecthub/internal/sprints"
	"github.com/projecthub/projecthub/internal/tasks"
	"github.com/projecthub/projecthub/internal/users"
)

// Pinger reports whether a backing service is reachable.
type Pinger func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	Metrics        *observability.Metrics

	AuthHandler     *auth.Handler
	UsersHandler    *users.Handler
	ProjectsHandler *projects.Handler
	SprintsHandler  *sprints.Handler
	TasksHandler    *tasks.Handler
	LabelsHandler   *labels.Handler
	SettingsHandler *settings.Handler

	// Checks are consulted by /healthz, keyed by dependency name.
	Checks map[string]Pinger
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", health(params.Logger, params.Checks))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/users", func(r chi.Router) {
		if params.UsersHandler != nil {
			params.UsersHandler.MountRoutes(r)
		}
		if params.AuthHandler != nil {
			params.AuthHandler.MountRoutes(r)
		}
	})
	if params.ProjectsHandler != nil {
		r.Route("/projects", params.ProjectsHandler.MountRoutes)
		r.Route("/project_members", params.ProjectsHandler.MountMemberRoutes)
	}
	if params.SprintsHandler != nil {
		r.Route("/sprints", params.SprintsHandler.MountRoutes)
	}
	if params.TasksHandler != nil {
		r.Route("/tasks", params.TasksHandler.MountRoutes)
		r.Route("/task_labels", params.TasksHandler.MountLabelRoutes)
	}
	if params.LabelsHandler != nil {
		r.Route("/labels", params.LabelsHandler.MountRoutes)
	}
	if params.SettingsHandler != nil {
		r.Route("/settings", params.SettingsHandler.MountRoutes)
	}

	return r
}

func health(logger *slog.Logger, checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		for name, ping := range checks {
			if err := ping(ctx); err != nil {
				logger.Warn("health check failed", slog.String("dependency", name), slog.Any("error", err))
				status[name] = "unavailable"
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httpx.JSON(w, code, status)
	}
}
