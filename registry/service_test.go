package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/c3dc-labs/hubloader-go/internal/domain"
	"github.com/c3dc-labs/hubloader-go/internal/manifest"
	"github.com/c3dc-labs/hubloader-go/internal/repo"
)

const testManifest = `
name: hubloader
platform-version: 3.1.2
pull:
  - git_clone:
      id: flow_repo
      repository: https://github.com/c3dc-labs/hubloader-flows.git
      branch: main
  - pip_install:
      requirements_file: requirements.txt
      directory: "{{ flow_repo.directory }}"
deployments:
  - name: c3dc-hub-data-loader
    version: 1.4.0
    tags: [c3dc]
    description: Loads hub submission metadata.
    schedule:
      cron: "0 6 * * *"
      timezone: America/New_York
    flow_name: c3dc_hub_data_loader
    entrypoint: c3dc_hub_data_loader.py:c3dc_hub_data_loader
    parameters:
      secret_name: "{{ variables.loader_secret }}"
      metadata_folder: ""
      runner: ""
      model_tag: 2.1.0
      cheat_mode: false
      dry_run: false
      wipe_db: false
      mode: upsert
      split_transaction: true
    work_pool:
      name: hub-pool
      work_queue_name: default
`

type fakeDeployments struct {
	records map[string]repo.DeploymentRecord
	upserts int
}

func newFakeDeployments() *fakeDeployments {
	return &fakeDeployments{records: make(map[string]repo.DeploymentRecord)}
}

func (f *fakeDeployments) Upsert(ctx context.Context, record repo.DeploymentRecord) (repo.DeploymentRecord, bool, error) {
	f.upserts++
	created := true
	for _, existing := range f.records {
		if existing.Name == record.Name && existing.Version == record.Version {
			record.ID = existing.ID
			created = false
		}
	}
	if record.ID == "" {
		record.ID = fmt.Sprintf("dep-%d", len(f.records)+1)
	}
	f.records[record.ID] = record
	return record, created, nil
}

func (f *fakeDeployments) Get(ctx context.Context, id string) (repo.DeploymentRecord, error) {
	record, ok := f.records[id]
	if !ok {
		return repo.DeploymentRecord{}, repo.ErrNotFound
	}
	return record, nil
}

func (f *fakeDeployments) GetByName(ctx context.Context, name string) (repo.DeploymentRecord, error) {
	for _, record := range f.records {
		if record.Name == name {
			return record, nil
		}
	}
	return repo.DeploymentRecord{}, repo.ErrNotFound
}

func (f *fakeDeployments) List(ctx context.Context, filter repo.DeploymentFilter) ([]repo.DeploymentRecord, error) {
	out := make([]repo.DeploymentRecord, 0, len(f.records))
	for _, record := range f.records {
		out = append(out, record)
	}
	return out, nil
}

func (f *fakeDeployments) ListScheduled(ctx context.Context) ([]repo.DeploymentRecord, error) {
	out := make([]repo.DeploymentRecord, 0)
	for _, record := range f.records {
		if record.Deployment.Schedule.Enabled() {
			out = append(out, record)
		}
	}
	return out, nil
}

type fakeRuns struct {
	runs map[string]domain.FlowRun
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{runs: make(map[string]domain.FlowRun)}
}

func (f *fakeRuns) Create(ctx context.Context, run domain.FlowRun) (domain.FlowRun, error) {
	run.ID = fmt.Sprintf("run-%d", len(f.runs)+1)
	run.CreatedAt = time.Now().UTC()
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeRuns) Materialize(ctx context.Context, run domain.FlowRun) (domain.FlowRun, bool, error) {
	for _, existing := range f.runs {
		if existing.DeploymentID == run.DeploymentID && existing.ScheduledAt.Equal(run.ScheduledAt) {
			return domain.FlowRun{}, false, nil
		}
	}
	created, err := f.Create(ctx, run)
	if err != nil {
		return domain.FlowRun{}, false, err
	}
	return created, true, nil
}

func (f *fakeRuns) Get(ctx context.Context, id string) (domain.FlowRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return domain.FlowRun{}, repo.ErrNotFound
	}
	return run, nil
}

func (f *fakeRuns) List(ctx context.Context, filter repo.FlowRunFilter) ([]domain.FlowRun, error) {
	out := make([]domain.FlowRun, 0, len(f.runs))
	for _, run := range f.runs {
		out = append(out, run)
	}
	return out, nil
}

func (f *fakeRuns) Claim(ctx context.Context, workPool, workQueue string) (domain.FlowRun, bool, error) {
	for id, run := range f.runs {
		if run.Status == domain.RunScheduled && run.WorkPool == workPool && run.WorkQueue == workQueue {
			run.Status = domain.RunRunning
			f.runs[id] = run
			return run, true, nil
		}
	}
	return domain.FlowRun{}, false, nil
}

func (f *fakeRuns) MarkCompleted(ctx context.Context, id string, logLocation string) error {
	run, ok := f.runs[id]
	if !ok {
		return repo.ErrNotFound
	}
	run.Status = domain.RunCompleted
	run.LogLocation = logLocation
	f.runs[id] = run
	return nil
}

func (f *fakeRuns) MarkFailed(ctx context.Context, id string, failure string) error {
	run, ok := f.runs[id]
	if !ok {
		return repo.ErrNotFound
	}
	run.Status = domain.RunFailed
	run.Failure = failure
	f.runs[id] = run
	return nil
}

func (f *fakeRuns) LastScheduledAt(ctx context.Context, deploymentID string) (time.Time, bool, error) {
	var last time.Time
	found := false
	for _, run := range f.runs {
		if run.DeploymentID == deploymentID && run.ScheduledAt.After(last) {
			last = run.ScheduledAt
			found = true
		}
	}
	return last, found, nil
}

type fakeVariables struct {
	values map[string]string
}

func (f *fakeVariables) Set(ctx context.Context, name, value string) error {
	f.values[name] = value
	return nil
}

func (f *fakeVariables) Get(ctx context.Context, name string) (string, error) {
	v, ok := f.values[name]
	if !ok {
		return "", repo.ErrNotFound
	}
	return v, nil
}

func (f *fakeVariables) All(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out, nil
}

func (f *fakeVariables) Delete(ctx context.Context, name string) error {
	if _, ok := f.values[name]; !ok {
		return repo.ErrNotFound
	}
	delete(f.values, name)
	return nil
}

func newTestService() (*registryService, *fakeDeployments, *fakeRuns, *fakeVariables) {
	deployments := newFakeDeployments()
	runs := newFakeRuns()
	variables := &fakeVariables{values: map[string]string{"loader_secret": "c3dc-dev"}}
	svc := newRegistryService(deployments, runs, variables, nil)
	return svc, deployments, runs, variables
}

func TestApplyManifest(t *testing.T) {
	svc, deployments, _, _ := newTestService()

	results, err := svc.ApplyManifest(context.Background(), []byte(testManifest), auditContext{Actor: "alice"})
	if err != nil {
		t.Fatalf("ApplyManifest() err=%v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results)=%d, want 1", len(results))
	}
	if !results[0].Created {
		t.Fatalf("first apply should create")
	}

	record := results[0].Record
	if record.Deployment.Parameters.SecretName != "c3dc-dev" {
		t.Fatalf("SecretName=%q, variable must be resolved at apply time", record.Deployment.Parameters.SecretName)
	}
	if len(record.Deployment.Pull) != 2 {
		t.Fatalf("Pull=%+v, manifest-level sequence must be attached", record.Deployment.Pull)
	}
	if record.Deployment.Pull[1].PipInstall.Directory != "hubloader-flows" {
		t.Fatalf("Directory=%q, want hubloader-flows", record.Deployment.Pull[1].PipInstall.Directory)
	}
	if record.CreatedBy != "alice" {
		t.Fatalf("CreatedBy=%q, want alice", record.CreatedBy)
	}

	// Same manifest again is an idempotent update.
	results, err = svc.ApplyManifest(context.Background(), []byte(testManifest), auditContext{Actor: "alice"})
	if err != nil {
		t.Fatalf("ApplyManifest() second err=%v", err)
	}
	if results[0].Created {
		t.Fatalf("second apply should update, not create")
	}
	if len(deployments.records) != 1 {
		t.Fatalf("len(records)=%d, want 1", len(deployments.records))
	}
}

func TestApplyManifest_UnknownVariableWritesNothing(t *testing.T) {
	svc, deployments, _, variables := newTestService()
	delete(variables.values, "loader_secret")

	_, err := svc.ApplyManifest(context.Background(), []byte(testManifest), auditContext{Actor: "alice"})
	if err == nil || !strings.Contains(err.Error(), "loader_secret") {
		t.Fatalf("err=%v", err)
	}
	if deployments.upserts != 0 {
		t.Fatalf("upserts=%d, rejected manifest must leave the registry untouched", deployments.upserts)
	}
}

func TestApplyManifest_ValidationIssues(t *testing.T) {
	svc, deployments, _, _ := newTestService()

	bad := strings.Replace(testManifest, "{{ flow_repo.directory }}", "{{ flow_repo.branch }}", 1)
	_, err := svc.ApplyManifest(context.Background(), []byte(bad), auditContext{})
	if err == nil {
		t.Fatalf("bad directory reference expected error")
	}
	var validationErr *manifest.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if deployments.upserts != 0 {
		t.Fatalf("upserts=%d, want 0", deployments.upserts)
	}
}

func TestCreateRun(t *testing.T) {
	svc, _, runs, _ := newTestService()
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	results, err := svc.ApplyManifest(context.Background(), []byte(testManifest), auditContext{Actor: "alice"})
	if err != nil {
		t.Fatalf("ApplyManifest() err=%v", err)
	}
	deploymentID := results[0].Record.ID

	run, err := svc.CreateRun(context.Background(), deploymentID, map[string]any{
		"metadata_folder": "submissions/2026-08/",
		"runner":          "alice",
		"dry_run":         true,
	}, auditContext{Actor: "alice"})
	if err != nil {
		t.Fatalf("CreateRun() err=%v", err)
	}

	if run.WorkPool != "hub-pool" || run.WorkQueue != "default" {
		t.Fatalf("run routing=%q/%q", run.WorkPool, run.WorkQueue)
	}
	if run.Status != domain.RunScheduled {
		t.Fatalf("Status=%q, want scheduled", run.Status)
	}
	if !run.ScheduledAt.Equal(now) {
		t.Fatalf("ScheduledAt=%v, want %v", run.ScheduledAt, now)
	}
	if run.Parameters.SecretName != "c3dc-dev" {
		t.Fatalf("SecretName=%q, deployment defaults must carry over", run.Parameters.SecretName)
	}
	if run.Parameters.MetadataFolder != "submissions/2026-08/" || !run.Parameters.DryRun {
		t.Fatalf("overrides not applied: %+v", run.Parameters)
	}
	if len(runs.runs) != 1 {
		t.Fatalf("len(runs)=%d, want 1", len(runs.runs))
	}
}

func TestCreateRun_UnknownOverride(t *testing.T) {
	svc, _, runs, _ := newTestService()

	results, err := svc.ApplyManifest(context.Background(), []byte(testManifest), auditContext{})
	if err != nil {
		t.Fatalf("ApplyManifest() err=%v", err)
	}

	_, err = svc.CreateRun(context.Background(), results[0].Record.ID, map[string]any{"batch": 10}, auditContext{})
	if err == nil {
		t.Fatalf("unknown override expected error")
	}
	if len(runs.runs) != 0 {
		t.Fatalf("len(runs)=%d, want 0", len(runs.runs))
	}
}

func TestCreateRun_UnknownDeployment(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.CreateRun(context.Background(), "dep-missing", nil, auditContext{})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestVariables(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	if err := svc.SetVariable(ctx, "flow_branch", "main", auditContext{Actor: "alice"}); err != nil {
		t.Fatalf("SetVariable() err=%v", err)
	}
	got, err := svc.GetVariable(ctx, "flow_branch")
	if err != nil || got != "main" {
		t.Fatalf("GetVariable()=%q,%v", got, err)
	}

	all, err := svc.ListVariables(ctx)
	if err != nil {
		t.Fatalf("ListVariables() err=%v", err)
	}
	if all["flow_branch"] != "main" {
		t.Fatalf("ListVariables()=%v", all)
	}

	if err := svc.DeleteVariable(ctx, "flow_branch", auditContext{Actor: "alice"}); err != nil {
		t.Fatalf("DeleteVariable() err=%v", err)
	}
	if _, err := svc.GetVariable(ctx, "flow_branch"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}
