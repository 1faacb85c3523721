package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/c3dc-labs/hubloader-go/internal/repo"
)

// poller claims scheduled runs from the worker's queue and executes them one
// at a time.
type poller struct {
	logger      *slog.Logger
	deployments repo.DeploymentRepository
	runs        repo.FlowRunRepository
	executor    runExecutor
	workPool    string
	workQueue   string
	interval    time.Duration
}

func startPoller(ctx context.Context, p *poller) {
	if p == nil || p.runs == nil || p.executor == nil {
		return
	}
	if p.interval <= 0 {
		p.interval = 5 * time.Second
	}
	go p.run(ctx)
}

func (p *poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain the queue before going back to sleep.
			for p.pollOnce(ctx) {
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

func (p *poller) pollOnce(ctx context.Context) bool {
	run, claimed, err := p.runs.Claim(ctx, p.workPool, p.workQueue)
	if err != nil {
		p.logger.Error("claim failed", "work_pool", p.workPool, "work_queue", p.workQueue, "error", err)
		return false
	}
	if !claimed {
		return false
	}

	logger := p.logger.With("run_id", run.ID, "deployment_id", run.DeploymentID)
	logger.Info("run claimed")

	record, err := p.deployments.Get(ctx, run.DeploymentID)
	if err != nil {
		logger.Error("deployment lookup failed", "error", err)
		p.fail(ctx, run.ID, "deployment lookup failed: "+err.Error())
		return true
	}

	logLocation, err := p.executor.Execute(ctx, record, run)
	if err != nil {
		logger.Error("run failed", "error", err)
		p.fail(ctx, run.ID, err.Error())
		return true
	}

	if err := p.runs.MarkCompleted(ctx, run.ID, logLocation); err != nil {
		logger.Error("mark completed failed", "error", err)
		return true
	}
	logger.Info("run completed", "log_location", logLocation)
	return true
}

func (p *poller) fail(ctx context.Context, runID, failure string) {
	if err := p.runs.MarkFailed(ctx, runID, failure); err != nil {
		p.logger.Error("mark failed failed", "run_id", runID, "error", err)
	}
}
