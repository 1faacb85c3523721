package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/c3dc-labs/hubloader-go/internal/domain"
	"github.com/c3dc-labs/hubloader-go/internal/manifest"
	"github.com/c3dc-labs/hubloader-go/internal/platform/auditlog"
	"github.com/c3dc-labs/hubloader-go/internal/repo"
)

type auditContext struct {
	Actor     string
	RequestID string
}

type registryService struct {
	deployments repo.DeploymentRepository
	runs        repo.FlowRunRepository
	variables   repo.VariableRepository
	audit       *auditlog.Recorder
	now         func() time.Time
}

func newRegistryService(deployments repo.DeploymentRepository, runs repo.FlowRunRepository, variables repo.VariableRepository, audit *auditlog.Recorder) *registryService {
	return &registryService{
		deployments: deployments,
		runs:        runs,
		variables:   variables,
		audit:       audit,
		now:         time.Now,
	}
}

type applyResult struct {
	Record  repo.DeploymentRecord
	Created bool
}

// ApplyManifest validates, resolves, and registers every deployment in the
// manifest. All validation and template resolution happens before the first
// write, so a rejected manifest leaves the registry untouched.
func (s *registryService) ApplyManifest(ctx context.Context, raw []byte, auditCtx auditContext) ([]applyResult, error) {
	if s == nil || s.deployments == nil {
		return nil, fmt.Errorf("registry service not initialized")
	}

	if err := manifest.ValidateSchema(raw); err != nil {
		return nil, err
	}
	m, err := manifest.Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := manifest.Validate(m); err != nil {
		return nil, err
	}

	variables, err := s.variables.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load platform variables: %w", err)
	}

	resolved := make([]domain.Deployment, 0, len(m.Deployments))
	for _, dep := range m.Deployments {
		r, err := manifest.ResolveDeployment(dep, m.Pull, variables)
		if err != nil {
			return nil, fmt.Errorf("deployment %q: %w", dep.Name, err)
		}
		resolved = append(resolved, r)
	}

	results := make([]applyResult, 0, len(resolved))
	for _, dep := range resolved {
		record, created, err := s.deployments.Upsert(ctx, repo.DeploymentRecord{
			Name:            dep.Name,
			Version:         dep.Version,
			ManifestName:    m.Name,
			PlatformVersion: m.PlatformVersion,
			Deployment:      dep,
			CreatedBy:       auditCtx.Actor,
		})
		if err != nil {
			return nil, fmt.Errorf("register deployment %q: %w", dep.Name, err)
		}
		results = append(results, applyResult{Record: record, Created: created})

		s.audit.Record(ctx, auditCtx.Actor, "deployment.apply", "deployment", record.ID, auditCtx.RequestID, domain.Metadata{
			"name":     record.Name,
			"version":  record.Version,
			"manifest": m.Name,
			"created":  created,
		})
	}
	return results, nil
}

func (s *registryService) GetDeployment(ctx context.Context, id string) (repo.DeploymentRecord, error) {
	if s == nil || s.deployments == nil {
		return repo.DeploymentRecord{}, fmt.Errorf("registry service not initialized")
	}
	return s.deployments.Get(ctx, id)
}

func (s *registryService) ListDeployments(ctx context.Context, filter repo.DeploymentFilter) ([]repo.DeploymentRecord, error) {
	if s == nil || s.deployments == nil {
		return nil, fmt.Errorf("registry service not initialized")
	}
	return s.deployments.List(ctx, filter)
}

// CreateRun schedules a flow run for a deployment, merging per-run parameter
// overrides over the deployment defaults.
func (s *registryService) CreateRun(ctx context.Context, deploymentID string, overrides map[string]any, auditCtx auditContext) (domain.FlowRun, error) {
	if s == nil || s.runs == nil {
		return domain.FlowRun{}, fmt.Errorf("registry service not initialized")
	}

	record, err := s.deployments.Get(ctx, deploymentID)
	if err != nil {
		return domain.FlowRun{}, err
	}

	params, err := record.Deployment.Parameters.MergeOverrides(overrides)
	if err != nil {
		return domain.FlowRun{}, err
	}
	if err := params.Validate(); err != nil {
		return domain.FlowRun{}, err
	}

	run, err := s.runs.Create(ctx, domain.FlowRun{
		DeploymentID: record.ID,
		WorkPool:     record.Deployment.WorkPool.Name,
		WorkQueue:    record.Deployment.WorkPool.WorkQueue,
		Parameters:   params,
		Status:       domain.RunScheduled,
		ScheduledAt:  s.now().UTC(),
		CreatedBy:    auditCtx.Actor,
	})
	if err != nil {
		return domain.FlowRun{}, err
	}

	s.audit.Record(ctx, auditCtx.Actor, "run.create", "flow_run", run.ID, auditCtx.RequestID, domain.Metadata{
		"deployment_id": record.ID,
		"work_pool":     run.WorkPool,
		"work_queue":    run.WorkQueue,
	})
	return run, nil
}

func (s *registryService) GetRun(ctx context.Context, id string) (domain.FlowRun, error) {
	if s == nil || s.runs == nil {
		return domain.FlowRun{}, fmt.Errorf("registry service not initialized")
	}
	return s.runs.Get(ctx, id)
}

func (s *registryService) ListRuns(ctx context.Context, filter repo.FlowRunFilter) ([]domain.FlowRun, error) {
	if s == nil || s.runs == nil {
		return nil, fmt.Errorf("registry service not initialized")
	}
	return s.runs.List(ctx, filter)
}

func (s *registryService) SetVariable(ctx context.Context, name, value string, auditCtx auditContext) error {
	if s == nil || s.variables == nil {
		return fmt.Errorf("registry service not initialized")
	}
	if err := s.variables.Set(ctx, name, value); err != nil {
		return err
	}
	s.audit.Record(ctx, auditCtx.Actor, "variable.set", "variable", strings.TrimSpace(name), auditCtx.RequestID, nil)
	return nil
}

func (s *registryService) GetVariable(ctx context.Context, name string) (string, error) {
	if s == nil || s.variables == nil {
		return "", fmt.Errorf("registry service not initialized")
	}
	return s.variables.Get(ctx, name)
}

func (s *registryService) ListVariables(ctx context.Context) (map[string]string, error) {
	if s == nil || s.variables == nil {
		return nil, fmt.Errorf("registry service not initialized")
	}
	return s.variables.All(ctx)
}

func (s *registryService) DeleteVariable(ctx context.Context, name string, auditCtx auditContext) error {
	if s == nil || s.variables == nil {
		return fmt.Errorf("registry service not initialized")
	}
	if err := s.variables.Delete(ctx, name); err != nil {
		return err
	}
	s.audit.Record(ctx, auditCtx.Actor, "variable.delete", "variable", strings.TrimSpace(name), auditCtx.RequestID, nil)
	return nil
}
