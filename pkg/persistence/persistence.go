// Package persistence provides the storage abstraction for workflow
// definitions, run state, pending approvals, and schedule bookkeeping.
package persistence

import (
	"context"
	"time"

	"github.com/maestro-flow/maestro/pkg/models"
)

// DefinitionRepository stores immutable workflow definitions.
type DefinitionRepository interface {
	Save(ctx context.Context, def *models.WorkflowDefinition) error
	ByID(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error)
	ByUseCaseVersion(ctx context.Context, useCaseID, version string) (*models.WorkflowDefinition, error)
	List(ctx context.Context) ([]*models.WorkflowDefinition, error)
}

// RunRepository stores run contexts. Save overwrites the whole run state;
// callers persist snapshots, never shared mutable references.
type RunRepository interface {
	Save(ctx context.Context, run *models.RunContext) error
	ByID(ctx context.Context, runID string) (*models.RunContext, error)
	List(ctx context.Context) ([]*models.RunContext, error)
}

// ApprovalRepository stores pending approval requests keyed by (run, step).
type ApprovalRepository interface {
	Save(ctx context.Context, request *models.ApprovalRequest) error
	ByKey(ctx context.Context, runID, stepID string) (*models.ApprovalRequest, error)
	Pending(ctx context.Context) ([]*models.ApprovalRequest, error)
	Delete(ctx context.Context, runID, stepID string) error
}

// ScheduleRepository stores schedule trigger bookkeeping. Due returns every
// schedule whose next fire time has passed, which is what makes missed-tick
// catch-up after a restart possible.
type ScheduleRepository interface {
	Save(ctx context.Context, schedule *models.Schedule) error
	ByID(ctx context.Context, id string) (*models.Schedule, error)
	Due(ctx context.Context, before time.Time) ([]*models.Schedule, error)
	List(ctx context.Context) ([]*models.Schedule, error)
	Delete(ctx context.Context, id string) error
}

// Persistence aggregates the repositories behind one lifecycle.
type Persistence interface {
	Definitions() DefinitionRepository
	Runs() RunRepository
	Approvals() ApprovalRepository
	Schedules() ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
