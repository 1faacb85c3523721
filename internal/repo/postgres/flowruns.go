package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c3dc-labs/hubloader-go/internal/domain"
	"github.com/c3dc-labs/hubloader-go/internal/repo"
)

type FlowRunStore struct {
	db DB
}

const flowRunColumns = `run_id, deployment_id, work_pool, work_queue, parameters, status, scheduled_at, started_at, completed_at, COALESCE(log_location,''), COALESCE(failure,''), created_at, created_by`

const (
	insertFlowRunQuery = `INSERT INTO flow_runs (
		run_id,
		deployment_id,
		work_pool,
		work_queue,
		parameters,
		status,
		scheduled_at,
		created_by
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	RETURNING ` + flowRunColumns

	// Relies on the partial unique index on (deployment_id, scheduled_at)
	// WHERE created_by = 'scheduler'. On conflict nothing is returned, which
	// is how a losing worker learns the slot is already materialized.
	materializeFlowRunQuery = `INSERT INTO flow_runs (
		run_id,
		deployment_id,
		work_pool,
		work_queue,
		parameters,
		status,
		scheduled_at,
		created_by
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	ON CONFLICT (deployment_id, scheduled_at) WHERE created_by = 'scheduler' DO NOTHING
	RETURNING ` + flowRunColumns

	selectFlowRunQuery = `SELECT ` + flowRunColumns + `
	 FROM flow_runs
	 WHERE run_id = $1`

	claimFlowRunQuery = `UPDATE flow_runs
	 SET status = 'running', started_at = now()
	 WHERE run_id = (
		SELECT run_id
		FROM flow_runs
		WHERE status = 'scheduled'
		  AND work_pool = $1
		  AND work_queue = $2
		  AND scheduled_at <= now()
		ORDER BY scheduled_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	 )
	 RETURNING ` + flowRunColumns

	completeFlowRunQuery = `UPDATE flow_runs
	 SET status = 'completed', completed_at = now(), log_location = $2
	 WHERE run_id = $1 AND status = 'running'`

	failFlowRunQuery = `UPDATE flow_runs
	 SET status = 'failed', completed_at = now(), failure = $2
	 WHERE run_id = $1 AND status IN ('scheduled','running')`

	lastScheduledAtQuery = `SELECT scheduled_at
	 FROM flow_runs
	 WHERE deployment_id = $1
	 ORDER BY scheduled_at DESC
	 LIMIT 1`
)

func NewFlowRunStore(db DB) *FlowRunStore {
	if db == nil {
		return nil
	}
	return &FlowRunStore{db: db}
}

func (s *FlowRunStore) Create(ctx context.Context, run domain.FlowRun) (domain.FlowRun, error) {
	return s.insert(ctx, insertFlowRunQuery, run)
}

// Materialize inserts a scheduler-created run for one cron slot. Slots are
// unique on (deployment_id, scheduled_at), so of the workers racing on the
// same fire exactly one insert lands; the bool result reports whether this
// call created the run.
func (s *FlowRunStore) Materialize(ctx context.Context, run domain.FlowRun) (domain.FlowRun, bool, error) {
	created, err := s.insert(ctx, materializeFlowRunQuery, run)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.FlowRun{}, false, nil
	}
	if err != nil {
		return domain.FlowRun{}, false, err
	}
	return created, true, nil
}

func (s *FlowRunStore) insert(ctx context.Context, query string, run domain.FlowRun) (domain.FlowRun, error) {
	if s == nil || s.db == nil {
		return domain.FlowRun{}, fmt.Errorf("flow run store not initialized")
	}
	if strings.TrimSpace(run.DeploymentID) == "" {
		return domain.FlowRun{}, fmt.Errorf("deployment id is required")
	}
	if strings.TrimSpace(run.WorkPool) == "" {
		return domain.FlowRun{}, fmt.Errorf("work pool is required")
	}
	if strings.TrimSpace(run.WorkQueue) == "" {
		return domain.FlowRun{}, fmt.Errorf("work queue is required")
	}

	params, err := encodeParameters(run.Parameters)
	if err != nil {
		return domain.FlowRun{}, fmt.Errorf("encode parameters: %w", err)
	}

	id := strings.TrimSpace(run.ID)
	if id == "" {
		id = uuid.NewString()
	}
	status := run.Status
	if status == "" {
		status = domain.RunScheduled
	}

	return s.scanRun(s.db.QueryRowContext(
		ctx,
		query,
		id,
		run.DeploymentID,
		run.WorkPool,
		run.WorkQueue,
		params,
		string(status),
		normalizeTime(run.ScheduledAt),
		run.CreatedBy,
	))
}

func (s *FlowRunStore) Get(ctx context.Context, id string) (domain.FlowRun, error) {
	if s == nil || s.db == nil {
		return domain.FlowRun{}, fmt.Errorf("flow run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.FlowRun{}, fmt.Errorf("run id is required")
	}
	return s.scanRun(s.db.QueryRowContext(ctx, selectFlowRunQuery, id))
}

func (s *FlowRunStore) List(ctx context.Context, filter repo.FlowRunFilter) ([]domain.FlowRun, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("flow run store not initialized")
	}

	query := `SELECT ` + flowRunColumns + ` FROM flow_runs`
	args := make([]any, 0, 2)
	clauses := make([]string, 0, 2)
	if strings.TrimSpace(filter.DeploymentID) != "" {
		args = append(args, filter.DeploymentID)
		clauses = append(clauses, fmt.Sprintf("deployment_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY scheduled_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list flow runs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.FlowRun, 0)
	for rows.Next() {
		run, err := scanRunFromRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list flow runs: %w", err)
	}
	return out, nil
}

// Claim atomically hands the oldest due scheduled run on the given queue to
// the caller, marking it running. The bool result reports whether a run was
// claimed.
func (s *FlowRunStore) Claim(ctx context.Context, workPool, workQueue string) (domain.FlowRun, bool, error) {
	if s == nil || s.db == nil {
		return domain.FlowRun{}, false, fmt.Errorf("flow run store not initialized")
	}
	workPool = strings.TrimSpace(workPool)
	workQueue = strings.TrimSpace(workQueue)
	if workPool == "" || workQueue == "" {
		return domain.FlowRun{}, false, fmt.Errorf("work pool and work queue are required")
	}

	run, err := s.scanRun(s.db.QueryRowContext(ctx, claimFlowRunQuery, workPool, workQueue))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.FlowRun{}, false, nil
		}
		return domain.FlowRun{}, false, fmt.Errorf("claim flow run: %w", err)
	}
	return run, true, nil
}

func (s *FlowRunStore) MarkCompleted(ctx context.Context, id string, logLocation string) error {
	return s.finish(ctx, completeFlowRunQuery, id, logLocation)
}

func (s *FlowRunStore) MarkFailed(ctx context.Context, id string, failure string) error {
	return s.finish(ctx, failFlowRunQuery, id, failure)
}

func (s *FlowRunStore) LastScheduledAt(ctx context.Context, deploymentID string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, fmt.Errorf("flow run store not initialized")
	}
	deploymentID = strings.TrimSpace(deploymentID)
	if deploymentID == "" {
		return time.Time{}, false, fmt.Errorf("deployment id is required")
	}

	var at time.Time
	err := s.db.QueryRowContext(ctx, lastScheduledAtQuery, deploymentID).Scan(&at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("last scheduled at: %w", err)
	}
	return at.UTC(), true, nil
}

func (s *FlowRunStore) finish(ctx context.Context, query, id, detail string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("flow run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("run id is required")
	}

	result, err := s.db.ExecContext(ctx, query, id, detail)
	if err != nil {
		return fmt.Errorf("finish flow run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish flow run: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *FlowRunStore) scanRun(row *sql.Row) (domain.FlowRun, error) {
	var run domain.FlowRun
	var params []byte
	var status string
	var startedAt, completedAt sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.DeploymentID,
		&run.WorkPool,
		&run.WorkQueue,
		&params,
		&status,
		&run.ScheduledAt,
		&startedAt,
		&completedAt,
		&run.LogLocation,
		&run.Failure,
		&run.CreatedAt,
		&run.CreatedBy,
	)
	if err != nil {
		return domain.FlowRun{}, handleNotFound(err)
	}
	run.Status = domain.RunStatus(status)
	run.StartedAt = scanNullableTime(startedAt)
	run.CompletedAt = scanNullableTime(completedAt)
	run.Parameters, err = decodeParameters(params)
	if err != nil {
		return domain.FlowRun{}, err
	}
	return run, nil
}

func scanRunFromRows(rows *sql.Rows) (domain.FlowRun, error) {
	var run domain.FlowRun
	var params []byte
	var status string
	var startedAt, completedAt sql.NullTime
	err := rows.Scan(
		&run.ID,
		&run.DeploymentID,
		&run.WorkPool,
		&run.WorkQueue,
		&params,
		&status,
		&run.ScheduledAt,
		&startedAt,
		&completedAt,
		&run.LogLocation,
		&run.Failure,
		&run.CreatedAt,
		&run.CreatedBy,
	)
	if err != nil {
		return domain.FlowRun{}, fmt.Errorf("scan flow run: %w", err)
	}
	run.Status = domain.RunStatus(status)
	run.StartedAt = scanNullableTime(startedAt)
	run.CompletedAt = scanNullableTime(completedAt)
	run.Parameters, err = decodeParameters(params)
	if err != nil {
		return domain.FlowRun{}, err
	}
	return run, nil
}
