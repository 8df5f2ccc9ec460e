package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/maestro-flow/maestro/pkg/models"
	"github.com/maestro-flow/maestro/pkg/persistence"
)

type definitionRepository struct {
	dir string
}

func (r *definitionRepository) Save(_ context.Context, def *models.WorkflowDefinition) error {
	return writeDocument(r.dir, def.ID, def)
}

func (r *definitionRepository) ByID(_ context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	var def models.WorkflowDefinition

	if err := readDocument(r.dir, workflowID, &def); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrDefinitionNotFound, workflowID)
		}

		return nil, err
	}

	return &def, nil
}

func (r *definitionRepository) ByUseCaseVersion(ctx context.Context, useCaseID, version string) (*models.WorkflowDefinition, error) {
	defs, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, def := range defs {
		if def.UseCaseID == useCaseID && def.Version == version {
			return def, nil
		}
	}

	return nil, fmt.Errorf("%w: %s@%s", persistence.ErrDefinitionNotFound, useCaseID, version)
}

func (r *definitionRepository) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	names, err := listDocuments(r.dir)
	if err != nil {
		return []*models.WorkflowDefinition{}, nil
	}

	defs := make([]*models.WorkflowDefinition, 0, len(names))

	for _, name := range names {
		def, err := r.ByID(ctx, name)
		if err != nil {
			return nil, err
		}

		defs = append(defs, def)
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })

	return defs, nil
}

type runRepository struct {
	dir string
}

func (r *runRepository) Save(_ context.Context, run *models.RunContext) error {
	return writeDocument(r.dir, run.RunID, run)
}

func (r *runRepository) ByID(_ context.Context, runID string) (*models.RunContext, error) {
	var run models.RunContext

	if err := readDocument(r.dir, runID, &run); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrRunNotFound, runID)
		}

		return nil, err
	}

	return &run, nil
}

func (r *runRepository) List(ctx context.Context) ([]*models.RunContext, error) {
	names, err := listDocuments(r.dir)
	if err != nil {
		return []*models.RunContext{}, nil
	}

	runs := make([]*models.RunContext, 0, len(names))

	for _, name := range names {
		run, err := r.ByID(ctx, name)
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.Before(runs[j].StartedAt) })

	return runs, nil
}

type approvalRepository struct {
	dir string
}

// Approval documents are keyed runID__stepID; run and step ids never
// contain the separator because they come from validated definitions.
func approvalDocName(runID, stepID string) string {
	return runID + "__" + stepID
}

func (r *approvalRepository) Save(_ context.Context, request *models.ApprovalRequest) error {
	return writeDocument(r.dir, approvalDocName(request.RunID, request.StepID), request)
}

func (r *approvalRepository) ByKey(_ context.Context, runID, stepID string) (*models.ApprovalRequest, error) {
	var request models.ApprovalRequest

	if err := readDocument(r.dir, approvalDocName(runID, stepID), &request); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", persistence.ErrApprovalNotFound, runID, stepID)
		}

		return nil, err
	}

	return &request, nil
}

func (r *approvalRepository) Pending(_ context.Context) ([]*models.ApprovalRequest, error) {
	names, err := listDocuments(r.dir)
	if err != nil {
		return []*models.ApprovalRequest{}, nil
	}

	requests := make([]*models.ApprovalRequest, 0, len(names))

	for _, name := range names {
		parts := strings.SplitN(name, "__", 2)
		if len(parts) != 2 {
			continue
		}

		var request models.ApprovalRequest
		if err := readDocument(r.dir, name, &request); err != nil {
			return nil, err
		}

		requests = append(requests, &request)
	}

	sort.Slice(requests, func(i, j int) bool {
		return requests[i].RequestedAt.Before(requests[j].RequestedAt)
	})

	return requests, nil
}

func (r *approvalRepository) Delete(_ context.Context, runID, stepID string) error {
	if err := deleteDocument(r.dir, approvalDocName(runID, stepID)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s/%s", persistence.ErrApprovalNotFound, runID, stepID)
		}

		return err
	}

	return nil
}

type scheduleRepository struct {
	dir string
}

// Schedule ids are workflowID/triggerID; the slash cannot appear in a file
// name, so documents are stored under workflowID__triggerID.
func scheduleDocName(id string) string {
	return strings.ReplaceAll(id, "/", "__")
}

func (r *scheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	return writeDocument(r.dir, scheduleDocName(schedule.ID), schedule)
}

func (r *scheduleRepository) ByID(_ context.Context, id string) (*models.Schedule, error) {
	var schedule models.Schedule

	if err := readDocument(r.dir, scheduleDocName(id), &schedule); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrScheduleNotFound, id)
		}

		return nil, err
	}

	return &schedule, nil
}

func (r *scheduleRepository) Due(ctx context.Context, before time.Time) ([]*models.Schedule, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	due := make([]*models.Schedule, 0)

	for _, schedule := range all {
		if schedule.IsDue(before) {
			due = append(due, schedule)
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].NextDueAt.Before(due[j].NextDueAt) })

	return due, nil
}

func (r *scheduleRepository) List(ctx context.Context) ([]*models.Schedule, error) {
	names, err := listDocuments(r.dir)
	if err != nil {
		return []*models.Schedule{}, nil
	}

	schedules := make([]*models.Schedule, 0, len(names))

	for _, name := range names {
		schedule, err := r.ByID(ctx, name)
		if err != nil {
			return nil, err
		}

		schedules = append(schedules, schedule)
	}

	return schedules, nil
}

func (r *scheduleRepository) Delete(_ context.Context, id string) error {
	if err := deleteDocument(r.dir, scheduleDocName(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", persistence.ErrScheduleNotFound, id)
		}

		return err
	}

	return nil
}
