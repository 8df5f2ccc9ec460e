package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/maestro-flow/maestro/pkg/models"
	"github.com/maestro-flow/maestro/pkg/persistence"
)

type definitionRepository struct {
	db *sql.DB
}

func (r *definitionRepository) Save(ctx context.Context, def *models.WorkflowDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal definition %s: %w", def.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_definitions (id, use_case_id, version, data, registered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data
	`, def.ID, def.UseCaseID, def.Version, data, def.RegisteredAt)
	if err != nil {
		return &persistence.StoreError{Op: "SaveDefinition", Key: def.ID, Err: err}
	}

	return nil
}

func (r *definitionRepository) ByID(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT data FROM workflow_definitions WHERE id = $1`, workflowID)

	return scanDefinition(row, workflowID)
}

func (r *definitionRepository) ByUseCaseVersion(ctx context.Context, useCaseID, version string) (*models.WorkflowDefinition, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT data FROM workflow_definitions WHERE use_case_id = $1 AND version = $2`,
		useCaseID, version)

	return scanDefinition(row, useCaseID+"@"+version)
}

func scanDefinition(row *sql.Row, key string) (*models.WorkflowDefinition, error) {
	var data []byte

	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrDefinitionNotFound, key)
		}

		return nil, &persistence.StoreError{Op: "GetDefinition", Key: key, Err: err}
	}

	var def models.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition %s: %w", key, err)
	}

	return &def, nil
}

func (r *definitionRepository) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT data FROM workflow_definitions ORDER BY id`)
	if err != nil {
		return nil, &persistence.StoreError{Op: "ListDefinitions", Err: err}
	}
	defer func() { _ = rows.Close() }()

	defs := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, &persistence.StoreError{Op: "ListDefinitions", Err: err}
		}

		var def models.WorkflowDefinition
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to unmarshal definition: %w", err)
		}

		defs = append(defs, &def)
	}

	return defs, rows.Err()
}

type runRepository struct {
	db *sql.DB
}

func (r *runRepository) Save(ctx context.Context, run *models.RunContext) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.RunID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO runs (id, workflow_id, status, data, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, data = EXCLUDED.data, updated_at = now()
	`, run.RunID, run.WorkflowID, run.Status, data, run.StartedAt)
	if err != nil {
		return &persistence.StoreError{Op: "SaveRun", Key: run.RunID, Err: err}
	}

	return nil
}

func (r *runRepository) ByID(ctx context.Context, runID string) (*models.RunContext, error) {
	var data []byte

	row := r.db.QueryRowContext(ctx, `SELECT data FROM runs WHERE id = $1`, runID)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrRunNotFound, runID)
		}

		return nil, &persistence.StoreError{Op: "GetRun", Key: runID, Err: err}
	}

	var run models.RunContext
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", runID, err)
	}

	return &run, nil
}

func (r *runRepository) List(ctx context.Context) ([]*models.RunContext, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT data FROM runs ORDER BY started_at`)
	if err != nil {
		return nil, &persistence.StoreError{Op: "ListRuns", Err: err}
	}
	defer func() { _ = rows.Close() }()

	runs := make([]*models.RunContext, 0)

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, &persistence.StoreError{Op: "ListRuns", Err: err}
		}

		var run models.RunContext
		if err := json.Unmarshal(data, &run); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run: %w", err)
		}

		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

type approvalRepository struct {
	db *sql.DB
}

func (r *approvalRepository) Save(ctx context.Context, request *models.ApprovalRequest) error {
	data, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal approval request: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO approval_requests (run_id, step_id, data, requested_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, step_id) DO UPDATE SET data = EXCLUDED.data
	`, request.RunID, request.StepID, data, request.RequestedAt)
	if err != nil {
		return &persistence.StoreError{Op: "SaveApproval", Key: request.RunID + "/" + request.StepID, Err: err}
	}

	return nil
}

func (r *approvalRepository) ByKey(ctx context.Context, runID, stepID string) (*models.ApprovalRequest, error) {
	var data []byte

	row := r.db.QueryRowContext(ctx,
		`SELECT data FROM approval_requests WHERE run_id = $1 AND step_id = $2`, runID, stepID)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", persistence.ErrApprovalNotFound, runID, stepID)
		}

		return nil, &persistence.StoreError{Op: "GetApproval", Key: runID + "/" + stepID, Err: err}
	}

	var request models.ApprovalRequest
	if err := json.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal approval request: %w", err)
	}

	return &request, nil
}

func (r *approvalRepository) Pending(ctx context.Context) ([]*models.ApprovalRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT data FROM approval_requests ORDER BY requested_at`)
	if err != nil {
		return nil, &persistence.StoreError{Op: "ListApprovals", Err: err}
	}
	defer func() { _ = rows.Close() }()

	requests := make([]*models.ApprovalRequest, 0)

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, &persistence.StoreError{Op: "ListApprovals", Err: err}
		}

		var request models.ApprovalRequest
		if err := json.Unmarshal(data, &request); err != nil {
			return nil, fmt.Errorf("failed to unmarshal approval request: %w", err)
		}

		requests = append(requests, &request)
	}

	return requests, rows.Err()
}

func (r *approvalRepository) Delete(ctx context.Context, runID, stepID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM approval_requests WHERE run_id = $1 AND step_id = $2`, runID, stepID)
	if err != nil {
		return &persistence.StoreError{Op: "DeleteApproval", Key: runID + "/" + stepID, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s/%s", persistence.ErrApprovalNotFound, runID, stepID)
	}

	return nil
}

type scheduleRepository struct {
	db *sql.DB
}

func (r *scheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	data, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule %s: %w", schedule.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schedules (id, workflow_id, next_due_at, active, data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET next_due_at = EXCLUDED.next_due_at, active = EXCLUDED.active, data = EXCLUDED.data
	`, schedule.ID, schedule.WorkflowID, schedule.NextDueAt, schedule.Active, data)
	if err != nil {
		return &persistence.StoreError{Op: "SaveSchedule", Key: schedule.ID, Err: err}
	}

	return nil
}

func (r *scheduleRepository) ByID(ctx context.Context, id string) (*models.Schedule, error) {
	var data []byte

	row := r.db.QueryRowContext(ctx, `SELECT data FROM schedules WHERE id = $1`, id)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrScheduleNotFound, id)
		}

		return nil, &persistence.StoreError{Op: "GetSchedule", Key: id, Err: err}
	}

	var schedule models.Schedule
	if err := json.Unmarshal(data, &schedule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule %s: %w", id, err)
	}

	return &schedule, nil
}

func (r *scheduleRepository) Due(ctx context.Context, before time.Time) ([]*models.Schedule, error) {
	return r.query(ctx,
		`SELECT data FROM schedules WHERE active AND next_due_at <= $1 ORDER BY next_due_at`, before)
}

func (r *scheduleRepository) List(ctx context.Context) ([]*models.Schedule, error) {
	return r.query(ctx, `SELECT data FROM schedules ORDER BY id`)
}

func (r *scheduleRepository) query(ctx context.Context, query string, args ...any) ([]*models.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &persistence.StoreError{Op: "ListSchedules", Err: err}
	}
	defer func() { _ = rows.Close() }()

	schedules := make([]*models.Schedule, 0)

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, &persistence.StoreError{Op: "ListSchedules", Err: err}
		}

		var schedule models.Schedule
		if err := json.Unmarshal(data, &schedule); err != nil {
			return nil, fmt.Errorf("failed to unmarshal schedule: %w", err)
		}

		schedules = append(schedules, &schedule)
	}

	return schedules, rows.Err()
}

func (r *scheduleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return &persistence.StoreError{Op: "DeleteSchedule", Key: id, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s", persistence.ErrScheduleNotFound, id)
	}

	return nil
}
