package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/c3dc-labs/hubloader-go/internal/domain"
	"github.com/c3dc-labs/hubloader-go/internal/repo"
	"github.com/c3dc-labs/hubloader-go/internal/schedule"
)

// scheduler materializes flow runs for cron-scheduled deployments on this
// worker's pool. A deployment's next run is computed from its last scheduled
// run, so restarting the worker does not double-schedule.
type scheduler struct {
	logger      *slog.Logger
	deployments repo.DeploymentRepository
	runs        repo.FlowRunRepository
	workPool    string
	interval    time.Duration
	now         func() time.Time
}

func startScheduler(ctx context.Context, s *scheduler) {
	if s == nil || s.deployments == nil || s.runs == nil {
		return
	}
	if s.interval <= 0 {
		s.interval = 30 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	go s.run(ctx)
}

func (s *scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *scheduler) tick(ctx context.Context) {
	records, err := s.deployments.ListScheduled(ctx)
	if err != nil {
		s.logger.Error("list scheduled deployments failed", "error", err)
		return
	}

	now := s.now().UTC()
	for _, record := range records {
		if record.Deployment.WorkPool.Name != s.workPool {
			continue
		}
		if !record.Deployment.Schedule.Enabled() {
			continue
		}
		s.materialize(ctx, record, now)
	}
}

func (s *scheduler) materialize(ctx context.Context, record repo.DeploymentRecord, now time.Time) {
	after := now.Add(-s.interval)
	if last, ok, err := s.runs.LastScheduledAt(ctx, record.ID); err != nil {
		s.logger.Error("last scheduled lookup failed", "deployment_id", record.ID, "error", err)
		return
	} else if ok {
		after = last
	}

	next, err := schedule.Next(record.Deployment.Schedule, after)
	if err != nil {
		s.logger.Error("schedule evaluation failed", "deployment_id", record.ID, "error", err)
		return
	}
	if next.After(now) {
		return
	}

	run, created, err := s.runs.Materialize(ctx, domain.FlowRun{
		DeploymentID: record.ID,
		WorkPool:     record.Deployment.WorkPool.Name,
		WorkQueue:    record.Deployment.WorkPool.WorkQueue,
		Parameters:   record.Deployment.Parameters,
		Status:       domain.RunScheduled,
		ScheduledAt:  next,
		CreatedBy:    "scheduler",
	})
	if err != nil {
		s.logger.Error("materialize run failed", "deployment_id", record.ID, "error", err)
		return
	}
	if !created {
		// Another worker on the pool got the slot first.
		return
	}
	s.logger.Info("run scheduled", "run_id", run.ID, "deployment", record.Name, "scheduled_at", next)
}
