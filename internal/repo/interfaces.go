package repo

import (
	"context"
	"errors"
	"time"

	"github.com/c3dc-labs/hubloader-go/internal/domain"
)

var ErrNotFound = errors.New("not found")

type DeploymentFilter struct {
	Name     string
	WorkPool string
	Tag      string
	Limit    int
}

type FlowRunFilter struct {
	DeploymentID string
	Status       domain.RunStatus
	Limit        int
}

// DeploymentRecord is a registered deployment with its manifest snapshot.
type DeploymentRecord struct {
	ID              string
	Name            string
	Version         string
	ManifestName    string
	PlatformVersion string
	Deployment      domain.Deployment
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CreatedBy       string
}

// DeploymentRepository manages registered deployments. Registration is
// idempotent on (name, version).
type DeploymentRepository interface {
	Upsert(ctx context.Context, record DeploymentRecord) (DeploymentRecord, bool, error)
	Get(ctx context.Context, id string) (DeploymentRecord, error)
	GetByName(ctx context.Context, name string) (DeploymentRecord, error)
	List(ctx context.Context, filter DeploymentFilter) ([]DeploymentRecord, error)
	ListScheduled(ctx context.Context) ([]DeploymentRecord, error)
}

// FlowRunRepository manages flow run lifecycle. Claim hands a scheduled run
// to exactly one worker; Materialize creates at most one scheduler run per
// (deployment, scheduled_at) slot even when several workers race on the same
// cron fire.
type FlowRunRepository interface {
	Create(ctx context.Context, run domain.FlowRun) (domain.FlowRun, error)
	Materialize(ctx context.Context, run domain.FlowRun) (domain.FlowRun, bool, error)
	Get(ctx context.Context, id string) (domain.FlowRun, error)
	List(ctx context.Context, filter FlowRunFilter) ([]domain.FlowRun, error)
	Claim(ctx context.Context, workPool, workQueue string) (domain.FlowRun, bool, error)
	MarkCompleted(ctx context.Context, id string, logLocation string) error
	MarkFailed(ctx context.Context, id string, failure string) error
	LastScheduledAt(ctx context.Context, deploymentID string) (time.Time, bool, error)
}

// VariableRepository manages platform-level named variables used by
// manifest templating.
type VariableRepository interface {
	Set(ctx context.Context, name, value string) error
	Get(ctx context.Context, name string) (string, error)
	All(ctx context.Context) (map[string]string, error)
	Delete(ctx context.Context, name string) error
}

// AuditEventAppender ensures append-only audit writes.
type AuditEventAppender interface {
	Append(ctx context.Context, event domain.AuditEvent) error
}
