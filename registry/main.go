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

	"github.com/c3dc-labs/hubloader-go/internal/platform/auditlog"
	"github.com/c3dc-labs/hubloader-go/internal/platform/auth"
	"github.com/c3dc-labs/hubloader-go/internal/platform/env"
	"github.com/c3dc-labs/hubloader-go/internal/platform/httpserver"
	"github.com/c3dc-labs/hubloader-go/internal/platform/objectstore"
	"github.com/c3dc-labs/hubloader-go/internal/platform/postgres"
	repopg "github.com/c3dc-labs/hubloader-go/internal/repo/postgres"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("REGISTRY_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("REGISTRY_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBucket(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}

	deploymentStore := repopg.NewDeploymentStore(db)
	flowRunStore := repopg.NewFlowRunStore(db)
	variableStore := repopg.NewVariableStore(db)
	auditStore := repopg.NewAuditEventStore(db)
	recorder := auditlog.NewRecorder(auditStore, logger)

	service := newRegistryService(deploymentStore, flowRunStore, variableStore, recorder)
	api := newRegistryAPI(logger, service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("registry"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"registry",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: auth.WithTimeout(750*time.Millisecond, func(ctx context.Context) error {
					return db.PingContext(ctx)
				}),
			},
			httpserver.ReadinessCheck{
				Name: "minio",
				Check: auth.WithTimeout(750*time.Millisecond, func(ctx context.Context) error {
					return objectstore.CheckBucket(ctx, storeClient, storeCfg)
				}),
			},
		),
	)
	api.register(mux)

	var handler http.Handler = mux
	if authCfg.Mode != auth.ModeDisabled {
		authenticator, err := buildAuthenticator(ctx, authCfg)
		if err != nil {
			logger.Error("auth init failed", "error", err)
			os.Exit(2)
		}
		handler = auth.Middleware{
			Logger:        logger,
			Authenticator: authenticator,
			Authorize:     auth.MethodRoleAuthorizer(),
			Audit: func(ctx context.Context, event auth.DenyEvent) error {
				auditCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return auditlog.AppendAuthDeny(auditCtx, auditStore, "registry", event)
			},
			SkipPrefixes: []string{"/healthz", "/readyz"},
		}.Wrap(mux)
	} else {
		logger.Warn("auth disabled, requests are anonymous")
	}

	cfg := httpserver.Config{
		Service:         "registry",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "registry", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func buildAuthenticator(ctx context.Context, cfg auth.Config) (auth.Authenticator, error) {
	if cfg.Mode == auth.ModeDev {
		return auth.NewDevAuthenticator(cfg), nil
	}
	return auth.NewOIDCAuthenticator(ctx, cfg)
}
