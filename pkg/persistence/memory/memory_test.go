package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-flow/maestro/pkg/models"
	"github.com/maestro-flow/maestro/pkg/persistence"
)

func testDefinition(id string) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:        id,
		UseCaseID: "disk-pressure",
		Version:   "1.0.0",
	}
}

func TestDefinitionRepository(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence()

	require.NoError(t, store.Definitions().Save(ctx, testDefinition("wf-1")))
	require.NoError(t, store.Definitions().Save(ctx, testDefinition("wf-2")))

	def, err := store.Definitions().ByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "disk-pressure", def.UseCaseID)

	byVersion, err := store.Definitions().ByUseCaseVersion(ctx, "disk-pressure", "1.0.0")
	require.NoError(t, err)
	assert.NotEmpty(t, byVersion.ID)

	_, err = store.Definitions().ByUseCaseVersion(ctx, "disk-pressure", "9.9.9")
	assert.ErrorIs(t, err, persistence.ErrDefinitionNotFound)

	defs, err := store.Definitions().List(ctx)
	require.NoError(t, err)
	assert.Len(t, defs, 2)

	_, err = store.Definitions().ByID(ctx, "wf-missing")
	assert.ErrorIs(t, err, persistence.ErrDefinitionNotFound)
}

func TestRunRepositorySavesSnapshots(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence()

	run := models.NewRunContext(testDefinition("wf-1"), map[string]any{"origin": "test"})
	require.NoError(t, store.Runs().Save(ctx, run))

	// Mutations after Save must not leak into the stored copy.
	run.Status = models.RunStatusFailed

	stored, err := store.Runs().ByID(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPending, stored.Status)
	assert.Equal(t, "test", stored.InitialContext["origin"])

	_, err = store.Runs().ByID(ctx, "run-missing")
	assert.ErrorIs(t, err, persistence.ErrRunNotFound)

	runs, err := store.Runs().List(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestApprovalRepository(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence()

	request := &models.ApprovalRequest{
		RunID:       "run-1",
		StepID:      "restart",
		WorkflowID:  "wf-1",
		UseCaseID:   "disk-pressure",
		RequestedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Approvals().Save(ctx, request))

	fetched, err := store.Approvals().ByKey(ctx, "run-1", "restart")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", fetched.WorkflowID)

	pending, err := store.Approvals().Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, store.Approvals().Delete(ctx, "run-1", "restart"))

	_, err = store.Approvals().ByKey(ctx, "run-1", "restart")
	assert.ErrorIs(t, err, persistence.ErrApprovalNotFound)

	err = store.Approvals().Delete(ctx, "run-1", "restart")
	assert.ErrorIs(t, err, persistence.ErrApprovalNotFound)
}

func TestScheduleRepositoryDue(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence()

	overdue, err := models.NewSchedule("wf-1/nightly", "wf-1", "nightly", "0 3 * * *")
	require.NoError(t, err)
	overdue.NextDueAt = time.Now().UTC().Add(-time.Hour)

	future, err := models.NewSchedule("wf-2/nightly", "wf-2", "nightly", "0 3 * * *")
	require.NoError(t, err)

	require.NoError(t, store.Schedules().Save(ctx, overdue))
	require.NoError(t, store.Schedules().Save(ctx, future))

	due, err := store.Schedules().Due(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "wf-1/nightly", due[0].ID)

	all, err := store.Schedules().List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.Schedules().Delete(ctx, "wf-1/nightly"))

	_, err = store.Schedules().ByID(ctx, "wf-1/nightly")
	assert.ErrorIs(t, err, persistence.ErrScheduleNotFound)
}

func TestScheduleRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence()

	entry, err := models.NewSchedule("wf-1/nightly", "wf-1", "nightly", "0 3 * * *")
	require.NoError(t, err)
	require.NoError(t, store.Schedules().Save(ctx, entry))

	fetched, err := store.Schedules().ByID(ctx, "wf-1/nightly")
	require.NoError(t, err)

	fetched.Active = false

	again, err := store.Schedules().ByID(ctx, "wf-1/nightly")
	require.NoError(t, err)
	assert.True(t, again.Active)
}
