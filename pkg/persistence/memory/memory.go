// Package memory provides an in-memory persistence implementation used by
// tests and single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maestro-flow/maestro/pkg/models"
	"github.com/maestro-flow/maestro/pkg/persistence"
)

// Persistence implements persistence.Persistence with mutex-guarded maps.
type Persistence struct {
	definitions *definitionRepository
	runs        *runRepository
	approvals   *approvalRepository
	schedules   *scheduleRepository
}

func NewPersistence() *Persistence {
	return &Persistence{
		definitions: &definitionRepository{byID: make(map[string]*models.WorkflowDefinition)},
		runs:        &runRepository{byID: make(map[string]*models.RunContext)},
		approvals:   &approvalRepository{byKey: make(map[string]*models.ApprovalRequest)},
		schedules:   &scheduleRepository{byID: make(map[string]*models.Schedule)},
	}
}

func (p *Persistence) Definitions() persistence.DefinitionRepository { return p.definitions }
func (p *Persistence) Runs() persistence.RunRepository               { return p.runs }
func (p *Persistence) Approvals() persistence.ApprovalRepository     { return p.approvals }
func (p *Persistence) Schedules() persistence.ScheduleRepository     { return p.schedules }

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }
func (p *Persistence) Close(_ context.Context) error       { return nil }

type definitionRepository struct {
	mu   sync.RWMutex
	byID map[string]*models.WorkflowDefinition
}

func (r *definitionRepository) Save(_ context.Context, def *models.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[def.ID] = def

	return nil
}

func (r *definitionRepository) ByID(_ context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.byID[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", persistence.ErrDefinitionNotFound, workflowID)
	}

	return def, nil
}

func (r *definitionRepository) ByUseCaseVersion(_ context.Context, useCaseID, version string) (*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, def := range r.byID {
		if def.UseCaseID == useCaseID && def.Version == version {
			return def, nil
		}
	}

	return nil, fmt.Errorf("%w: %s@%s", persistence.ErrDefinitionNotFound, useCaseID, version)
}

func (r *definitionRepository) List(_ context.Context) ([]*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*models.WorkflowDefinition, 0, len(r.byID))
	for _, def := range r.byID {
		defs = append(defs, def)
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })

	return defs, nil
}

type runRepository struct {
	mu   sync.RWMutex
	byID map[string]*models.RunContext
}

func (r *runRepository) Save(_ context.Context, run *models.RunContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[run.RunID] = run.Snapshot()

	return nil
}

func (r *runRepository) ByID(_ context.Context, runID string) (*models.RunContext, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.byID[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", persistence.ErrRunNotFound, runID)
	}

	return run.Snapshot(), nil
}

func (r *runRepository) List(_ context.Context) ([]*models.RunContext, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]*models.RunContext, 0, len(r.byID))
	for _, run := range r.byID {
		runs = append(runs, run.Snapshot())
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.Before(runs[j].StartedAt) })

	return runs, nil
}

type approvalRepository struct {
	mu    sync.RWMutex
	byKey map[string]*models.ApprovalRequest
}

func approvalKey(runID, stepID string) string {
	return runID + "/" + stepID
}

func (r *approvalRepository) Save(_ context.Context, request *models.ApprovalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byKey[approvalKey(request.RunID, request.StepID)] = request

	return nil
}

func (r *approvalRepository) ByKey(_ context.Context, runID, stepID string) (*models.ApprovalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	request, ok := r.byKey[approvalKey(runID, stepID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", persistence.ErrApprovalNotFound, runID, stepID)
	}

	return request, nil
}

func (r *approvalRepository) Pending(_ context.Context) ([]*models.ApprovalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requests := make([]*models.ApprovalRequest, 0, len(r.byKey))
	for _, request := range r.byKey {
		requests = append(requests, request)
	}

	sort.Slice(requests, func(i, j int) bool {
		return requests[i].RequestedAt.Before(requests[j].RequestedAt)
	})

	return requests, nil
}

func (r *approvalRepository) Delete(_ context.Context, runID, stepID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := approvalKey(runID, stepID)
	if _, ok := r.byKey[key]; !ok {
		return fmt.Errorf("%w: %s/%s", persistence.ErrApprovalNotFound, runID, stepID)
	}

	delete(r.byKey, key)

	return nil
}

type scheduleRepository struct {
	mu   sync.RWMutex
	byID map[string]*models.Schedule
}

func (r *scheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *schedule
	r.byID[schedule.ID] = &copied

	return nil
}

func (r *scheduleRepository) ByID(_ context.Context, id string) (*models.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schedule, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", persistence.ErrScheduleNotFound, id)
	}

	copied := *schedule

	return &copied, nil
}

func (r *scheduleRepository) Due(_ context.Context, before time.Time) ([]*models.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	due := make([]*models.Schedule, 0)

	for _, schedule := range r.byID {
		if schedule.IsDue(before) {
			copied := *schedule
			due = append(due, &copied)
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].NextDueAt.Before(due[j].NextDueAt) })

	return due, nil
}

func (r *scheduleRepository) List(_ context.Context) ([]*models.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schedules := make([]*models.Schedule, 0, len(r.byID))
	for _, schedule := range r.byID {
		copied := *schedule
		schedules = append(schedules, &copied)
	}

	sort.Slice(schedules, func(i, j int) bool { return schedules[i].ID < schedules[j].ID })

	return schedules, nil
}

func (r *scheduleRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return fmt.Errorf("%w: %s", persistence.ErrScheduleNotFound, id)
	}

	delete(r.byID, id)

	return nil
}
