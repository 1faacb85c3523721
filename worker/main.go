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

	"github.com/c3dc-labs/hubloader-go/internal/platform/auth"
	"github.com/c3dc-labs/hubloader-go/internal/platform/env"
	"github.com/c3dc-labs/hubloader-go/internal/platform/httpserver"
	"github.com/c3dc-labs/hubloader-go/internal/platform/objectstore"
	"github.com/c3dc-labs/hubloader-go/internal/platform/postgres"
	repopg "github.com/c3dc-labs/hubloader-go/internal/repo/postgres"
	"github.com/c3dc-labs/hubloader-go/internal/secrets"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workPool := env.String("WORKER_WORK_POOL", "")
	workQueue := env.String("WORKER_WORK_QUEUE", "default")
	if workPool == "" {
		logger.Error("WORKER_WORK_POOL is required")
		os.Exit(2)
	}

	addr := env.String("WORKER_HTTP_ADDR", ":8081")
	baseDir := env.String("WORKER_BASE_DIR", "/var/lib/hubloader/runs")
	gitBin := env.String("WORKER_GIT_BIN", "git")
	pipBin := env.String("WORKER_PIP_BIN", "pip")
	pollInterval, err := env.Duration("WORKER_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	schedulerInterval, err := env.Duration("WORKER_SCHEDULER_INTERVAL", 30*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	shutdownTimeout, err := env.Duration("WORKER_SHUTDOWN_TIMEOUT", 10*time.Second)
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

	deploymentStore := repopg.NewDeploymentStore(db)
	flowRunStore := repopg.NewFlowRunStore(db)

	executor, err := newFlowExecutor(logger, baseDir, gitBin, pipBin, secrets.ResolverFromEnv(), storeClient)
	if err != nil {
		logger.Error("executor init failed", "error", err)
		os.Exit(2)
	}

	startPoller(ctx, &poller{
		logger:      logger,
		deployments: deploymentStore,
		runs:        flowRunStore,
		executor:    executor,
		workPool:    workPool,
		workQueue:   workQueue,
		interval:    pollInterval,
	})
	startScheduler(ctx, &scheduler{
		logger:      logger,
		deployments: deploymentStore,
		runs:        flowRunStore,
		workPool:    workPool,
		interval:    schedulerInterval,
	})
	logger.Info("worker started", "work_pool", workPool, "work_queue", workQueue)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("worker"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"worker",
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

	cfg := httpserver.Config{
		Service:         "worker",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}
	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "worker", mux)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
