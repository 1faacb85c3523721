package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/c3dc-labs/hubloader-go/internal/domain"
	"github.com/c3dc-labs/hubloader-go/internal/loader"
	"github.com/c3dc-labs/hubloader-go/internal/pull"
	"github.com/c3dc-labs/hubloader-go/internal/repo"
	"github.com/c3dc-labs/hubloader-go/internal/secrets"
)

type runExecutor interface {
	Execute(ctx context.Context, record repo.DeploymentRecord, run domain.FlowRun) (string, error)
}

// flowExecutor prepares a per-run workspace with the deployment's pull steps,
// injects its job variables, and runs the data-loader flow.
type flowExecutor struct {
	logger  *slog.Logger
	baseDir string
	gitBin  string
	pipBin  string
	secrets secrets.Resolver
	store   *minio.Client
}

func newFlowExecutor(logger *slog.Logger, baseDir, gitBin, pipBin string, resolver secrets.Resolver, store *minio.Client) (*flowExecutor, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base dir is required")
	}
	return &flowExecutor{
		logger:  logger,
		baseDir: baseDir,
		gitBin:  gitBin,
		pipBin:  pipBin,
		secrets: resolver,
		store:   store,
	}, nil
}

func (e *flowExecutor) Execute(ctx context.Context, record repo.DeploymentRecord, run domain.FlowRun) (string, error) {
	workDir := filepath.Join(e.baseDir, run.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}

	logger := e.logger.With("run_id", run.ID, "deployment", record.Name)

	// Job variables are injected into the run's process environment; the
	// worker executes one run at a time.
	injected := make([]string, 0, len(record.Deployment.WorkPool.Env))
	for key, value := range record.Deployment.WorkPool.Env {
		if err := os.Setenv(key, value); err != nil {
			return "", fmt.Errorf("set %s: %w", key, err)
		}
		injected = append(injected, key)
	}
	defer func() {
		for _, key := range injected {
			_ = os.Unsetenv(key)
		}
	}()
	if extra := record.Deployment.WorkPool.Env[domain.ExtraLoggersEnv]; strings.TrimSpace(extra) != "" {
		logger = logger.With("extra_loggers", extra)
	}

	steps := record.Deployment.EffectivePull(nil)
	if len(steps) > 0 {
		runner, err := pull.NewRunner(logger, workDir, e.gitBin, e.pipBin)
		if err != nil {
			return "", err
		}
		if err := runner.Run(ctx, steps); err != nil {
			return "", fmt.Errorf("prepare workspace: %w", err)
		}
	}

	flow, err := loader.NewFlow(logger, e.secrets, e.store, workDir, filepath.Join(workDir, "scratch"))
	if err != nil {
		return "", err
	}
	return flow.Run(ctx, run.Parameters)
}
