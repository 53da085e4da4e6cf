package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/projecthub/projecthub/internal/app"
	"github.com/projecthub/projecthub/internal/auth"
	"github.com/projecthub/projecthub/internal/authz"
	"github.com/projecthub/projecthub/internal/labels"
	"github.com/projecthub/projecthub/internal/observability"
	"github.com/projecthub/projecthub/internal/platform/cache"
	"github.com/projecthub/projecthub/internal/platform/db"
	"github.com/projecthub/projecthub/internal/projects"
	"github.com/projecthub/projecthub/internal/settings"
	"github.com/projecthub/projecthub/internal/shared"
	"github.com/projecthub/projecthub/internal/sprints"
	"github.com/projecthub/projecthub/internal/tasks"
	"github.com/projecthub/projecthub/internal/users"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	metrics := observability.NewMetrics()

	usersRepo := users.NewRepository()
	projectsRepo := projects.NewRepository()
	sprintsRepo := sprints.NewRepository()
	labelsRepo := labels.NewRepository()

	provider := db.NewProvider(db.PoolSource(dbpool, pgx.ReadCommitted), logger)
	deps := authz.Deps{
		Provider:  provider,
		Resolver:  authz.NewResolver(sessionManager, usersRepo),
		Members:   projectsRepo,
		Tokens:    sessionManager.Token,
		Logger:    logger,
		Decisions: metrics,
	}

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		Metrics:         metrics,
		AuthHandler:     auth.NewHandler(logger, auth.NewService(provider, usersRepo), sessionManager, deps),
		UsersHandler:    users.NewHandler(logger, deps, usersRepo, sessionManager),
		ProjectsHandler: projects.NewHandler(logger, deps, projectsRepo, usersRepo),
		SprintsHandler:  sprints.NewHandler(logger, deps, sprintsRepo),
		LabelsHandler:   labels.NewHandler(logger, deps, labelsRepo),
		TasksHandler: tasks.NewHandler(logger, deps, tasks.NewRepository(), tasks.Catalogs{
			Labels:  labelsRepo,
			Sprints: sprintsRepo,
			Members: projectsRepo,
		}),
		SettingsHandler: settings.NewHandler(logger, deps, settings.NewRepository()),
		Checks: map[string]app.Pinger{
			"postgres": dbpool.Ping,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
