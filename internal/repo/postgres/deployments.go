package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/c3dc-labs/hubloader-go/internal/repo"
)

type DeploymentStore struct {
	db DB
}

const (
	insertDeploymentQuery = `INSERT INTO deployments (
		deployment_id,
		name,
		version,
		manifest_name,
		platform_version,
		spec,
		created_by
	) VALUES ($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (name, version) DO NOTHING
	RETURNING deployment_id, name, version, manifest_name, platform_version, spec, created_at, updated_at, created_by`

	updateDeploymentQuery = `UPDATE deployments
	 SET manifest_name = $3,
	     platform_version = $4,
	     spec = $5,
	     updated_at = now()
	 WHERE name = $1 AND version = $2
	 RETURNING deployment_id, name, version, manifest_name, platform_version, spec, created_at, updated_at, created_by`

	selectDeploymentByIDQuery = `SELECT deployment_id, name, version, manifest_name, platform_version, spec, created_at, updated_at, created_by
	 FROM deployments
	 WHERE deployment_id = $1`

	selectDeploymentByNameQuery = `SELECT deployment_id, name, version, manifest_name, platform_version, spec, created_at, updated_at, created_by
	 FROM deployments
	 WHERE name = $1
	 ORDER BY updated_at DESC
	 LIMIT 1`

	selectDeploymentsQuery = `SELECT deployment_id, name, version, manifest_name, platform_version, spec, created_at, updated_at, created_by
	 FROM deployments
	 ORDER BY name ASC, updated_at DESC`

	selectScheduledDeploymentsQuery = `SELECT deployment_id, name, version, manifest_name, platform_version, spec, created_at, updated_at, created_by
	 FROM deployments
	 WHERE spec -> 'schedule' ->> 'cron' IS NOT NULL
	   AND spec -> 'schedule' ->> 'cron' <> ''
	 ORDER BY name ASC`
)

func NewDeploymentStore(db DB) *DeploymentStore {
	if db == nil {
		return nil
	}
	return &DeploymentStore{db: db}
}

// Upsert registers a deployment, idempotent on (name, version). The bool
// result reports whether a new record was created.
func (s *DeploymentStore) Upsert(ctx context.Context, record repo.DeploymentRecord) (repo.DeploymentRecord, bool, error) {
	if s == nil || s.db == nil {
		return repo.DeploymentRecord{}, false, fmt.Errorf("deployment store not initialized")
	}
	name := strings.TrimSpace(record.Name)
	version := strings.TrimSpace(record.Version)
	if name == "" {
		return repo.DeploymentRecord{}, false, fmt.Errorf("deployment name is required")
	}
	if version == "" {
		return repo.DeploymentRecord{}, false, fmt.Errorf("deployment version is required")
	}

	spec, err := encodeDeploymentSpec(record.Deployment)
	if err != nil {
		return repo.DeploymentRecord{}, false, fmt.Errorf("encode deployment spec: %w", err)
	}

	id := strings.TrimSpace(record.ID)
	if id == "" {
		id = uuid.NewString()
	}

	inserted, err := s.scanRecord(s.db.QueryRowContext(
		ctx,
		insertDeploymentQuery,
		id,
		name,
		version,
		record.ManifestName,
		record.PlatformVersion,
		spec,
		record.CreatedBy,
	))
	if err == nil {
		return inserted, true, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return repo.DeploymentRecord{}, false, fmt.Errorf("insert deployment: %w", err)
	}

	updated, err := s.scanRecord(s.db.QueryRowContext(
		ctx,
		updateDeploymentQuery,
		name,
		version,
		record.ManifestName,
		record.PlatformVersion,
		spec,
	))
	if err != nil {
		return repo.DeploymentRecord{}, false, fmt.Errorf("update deployment: %w", err)
	}
	return updated, false, nil
}

func (s *DeploymentStore) Get(ctx context.Context, id string) (repo.DeploymentRecord, error) {
	if s == nil || s.db == nil {
		return repo.DeploymentRecord{}, fmt.Errorf("deployment store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return repo.DeploymentRecord{}, fmt.Errorf("deployment id is required")
	}
	return s.scanRecord(s.db.QueryRowContext(ctx, selectDeploymentByIDQuery, id))
}

func (s *DeploymentStore) GetByName(ctx context.Context, name string) (repo.DeploymentRecord, error) {
	if s == nil || s.db == nil {
		return repo.DeploymentRecord{}, fmt.Errorf("deployment store not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return repo.DeploymentRecord{}, fmt.Errorf("deployment name is required")
	}
	return s.scanRecord(s.db.QueryRowContext(ctx, selectDeploymentByNameQuery, name))
}

func (s *DeploymentStore) List(ctx context.Context, filter repo.DeploymentFilter) ([]repo.DeploymentRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("deployment store not initialized")
	}

	rows, err := s.db.QueryContext(ctx, selectDeploymentsQuery)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	out := make([]repo.DeploymentRecord, 0)
	for rows.Next() {
		record, err := scanRecordFromRows(rows)
		if err != nil {
			return nil, err
		}
		if filter.Name != "" && record.Name != filter.Name {
			continue
		}
		if filter.WorkPool != "" && record.Deployment.WorkPool.Name != filter.WorkPool {
			continue
		}
		if filter.Tag != "" && !record.Deployment.HasTag(filter.Tag) {
			continue
		}
		out = append(out, record)
		if len(out) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	return out, nil
}

func (s *DeploymentStore) ListScheduled(ctx context.Context) ([]repo.DeploymentRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("deployment store not initialized")
	}

	rows, err := s.db.QueryContext(ctx, selectScheduledDeploymentsQuery)
	if err != nil {
		return nil, fmt.Errorf("list scheduled deployments: %w", err)
	}
	defer rows.Close()

	out := make([]repo.DeploymentRecord, 0)
	for rows.Next() {
		record, err := scanRecordFromRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scheduled deployments: %w", err)
	}
	return out, nil
}

func (s *DeploymentStore) scanRecord(row *sql.Row) (repo.DeploymentRecord, error) {
	var record repo.DeploymentRecord
	var spec []byte
	err := row.Scan(
		&record.ID,
		&record.Name,
		&record.Version,
		&record.ManifestName,
		&record.PlatformVersion,
		&spec,
		&record.CreatedAt,
		&record.UpdatedAt,
		&record.CreatedBy,
	)
	if err != nil {
		return repo.DeploymentRecord{}, handleNotFound(err)
	}
	record.Deployment, err = decodeDeploymentSpec(record.Name, record.Version, spec)
	if err != nil {
		return repo.DeploymentRecord{}, err
	}
	return record, nil
}

func scanRecordFromRows(rows *sql.Rows) (repo.DeploymentRecord, error) {
	var record repo.DeploymentRecord
	var spec []byte
	err := rows.Scan(
		&record.ID,
		&record.Name,
		&record.Version,
		&record.ManifestName,
		&record.PlatformVersion,
		&spec,
		&record.CreatedAt,
		&record.UpdatedAt,
		&record.CreatedBy,
	)
	if err != nil {
		return repo.DeploymentRecord{}, fmt.Errorf("scan deployment: %w", err)
	}
	record.Deployment, err = decodeDeploymentSpec(record.Name, record.Version, spec)
	if err != nil {
		return repo.DeploymentRecord{}, err
	}
	return record, nil
}
