package file

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

func TestDefinitionsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	store := NewPersistence(root)
	require.NoError(t, store.Definitions().Save(ctx, testDefinition("wf-1")))

	// A fresh instance over the same directory sees the same data.
	reopened := NewPersistence(root)

	def, err := reopened.Definitions().ByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "disk-pressure", def.UseCaseID)

	byVersion, err := reopened.Definitions().ByUseCaseVersion(ctx, "disk-pressure", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", byVersion.ID)

	_, err = reopened.Definitions().ByID(ctx, "wf-missing")
	assert.ErrorIs(t, err, persistence.ErrDefinitionNotFound)
}

func TestFileURLRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	store := NewPersistence("file://" + root)
	require.NoError(t, store.Definitions().Save(ctx, testDefinition("wf-1")))
	require.NoError(t, store.HealthCheck(ctx))

	_, err := store.Definitions().ByID(ctx, "wf-1")
	require.NoError(t, err)
}

func TestRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence(t.TempDir())

	run := models.NewRunContext(testDefinition("wf-1"), map[string]any{"origin": "test"})
	run.Status = models.RunStatusRunning
	run.Outputs = models.OutputSet{"detect": {"severity": "high"}}
	run.History = append(run.History, models.StepRecord{
		StepID:  "detect",
		Attempt: 1,
		Outcome: models.StepOutcomeSuccess,
	})

	require.NoError(t, store.Runs().Save(ctx, run))

	stored, err := store.Runs().ByID(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, stored.Status)
	assert.Equal(t, "high", stored.Outputs["detect"]["severity"])
	require.Len(t, stored.History, 1)
	assert.Equal(t, models.StepOutcomeSuccess, stored.History[0].Outcome)

	runs, err := store.Runs().List(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = store.Runs().ByID(ctx, "run-missing")
	assert.ErrorIs(t, err, persistence.ErrRunNotFound)
}

func TestListOnEmptyRoot(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence(t.TempDir())

	runs, err := store.Runs().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)

	defs, err := store.Definitions().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, defs)

	pending, err := store.Approvals().Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestApprovalLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence(t.TempDir())

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
	require.Len(t, pending, 1)
	assert.Equal(t, "restart", pending[0].StepID)

	require.NoError(t, store.Approvals().Delete(ctx, "run-1", "restart"))

	err = store.Approvals().Delete(ctx, "run-1", "restart")
	assert.ErrorIs(t, err, persistence.ErrApprovalNotFound)
}

func TestScheduleIDWithSlash(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence(t.TempDir())

	entry, err := models.NewSchedule("wf-1/nightly", "wf-1", "nightly", "0 3 * * *")
	require.NoError(t, err)
	entry.NextDueAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Schedules().Save(ctx, entry))

	fetched, err := store.Schedules().ByID(ctx, "wf-1/nightly")
	require.NoError(t, err)
	assert.Equal(t, "wf-1/nightly", fetched.ID)

	due, err := store.Schedules().Due(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "wf-1/nightly", due[0].ID)

	require.NoError(t, store.Schedules().Delete(ctx, "wf-1/nightly"))

	_, err = store.Schedules().ByID(ctx, "wf-1/nightly")
	assert.ErrorIs(t, err, persistence.ErrScheduleNotFound)
}
