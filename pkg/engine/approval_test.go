package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-flow/maestro/pkg/capability"
	"github.com/maestro-flow/maestro/pkg/models"
)

// waitForStatus polls the store until the run reaches the wanted status.
func waitForStatus(t *testing.T, executor *Executor, runID string, status models.RunStatus) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		run, err := executor.runs.ByID(context.Background(), runID)
		if err == nil && run.Status == status {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("run %s never reached status %s", runID, status)
}

func gatedDefinition(registry *capability.Registry) *models.WorkflowDefinition {
	registry.RegisterFunc(addr("detect"), succeedWith(models.OutputMap{"severity": "high"}))
	registry.RegisterFunc(addr("restart"), succeedWith(models.OutputMap{"restarted": true}))

	gated := step("restart", "restart")
	gated.HumanApprovalRequired = true

	return definition(step("detect", "detect"), gated)
}

func TestExecuteApprovalApproved(t *testing.T) {
	registry := capability.NewRegistry(testLogger())
	executor, store, gate := newTestExecutor(registry)

	def := gatedDefinition(registry)
	run := models.NewRunContext(def, nil)

	done := make(chan error, 1)

	go func() {
		done <- executor.Execute(context.Background(), def, run)
	}()

	waitForStatus(t, executor, run.RunID, models.RunStatusAwaitingApproval)

	// The request is persisted and visible to operators while pending.
	pending, err := gate.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "restart", pending[0].StepID)

	suspended, err := store.Runs().ByID(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "restart", suspended.AwaitingStepID)

	require.NoError(t, gate.Resolve(context.Background(), run.RunID, "restart", models.ApprovalDecisionApprove, "alice"))
	require.NoError(t, <-done)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, models.OutputMap{"restarted": true}, run.Outputs["restart"])

	pending, err = gate.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestExecuteApprovalRejected(t *testing.T) {
	registry := capability.NewRegistry(testLogger())

	executor, _, gate := newTestExecutor(registry)

	def := gatedDefinition(registry)
	run := models.NewRunContext(def, nil)

	done := make(chan error, 1)

	go func() {
		done <- executor.Execute(context.Background(), def, run)
	}()

	waitForStatus(t, executor, run.RunID, models.RunStatusAwaitingApproval)

	require.NoError(t, gate.Resolve(context.Background(), run.RunID, "restart", models.ApprovalDecisionReject, "bob"))
	require.Error(t, <-done)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.NotNil(t, run.LastError)
	assert.Equal(t, models.ErrorKindRejectedByApprover, run.LastError.Kind)

	// The gated step was never invoked: no outputs, a rejected record.
	assert.NotContains(t, run.Outputs, "restart")
	last := run.History[len(run.History)-1]
	assert.Equal(t, models.StepOutcomeRejected, last.Outcome)
	assert.Contains(t, last.Error, "bob")
}

func TestExecuteCancelledWhileAwaitingApproval(t *testing.T) {
	registry := capability.NewRegistry(testLogger())
	executor, _, gate := newTestExecutor(registry)

	def := gatedDefinition(registry)
	run := models.NewRunContext(def, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- executor.Execute(ctx, def, run)
	}()

	waitForStatus(t, executor, run.RunID, models.RunStatusAwaitingApproval)

	cancel()
	require.Error(t, <-done)

	assert.Equal(t, models.RunStatusCancelled, run.Status)
	assert.Empty(t, run.AwaitingStepID)

	// The abandoned request is cleaned up.
	pending, err := gate.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestGateResolveWithoutPending(t *testing.T) {
	registry := capability.NewRegistry(testLogger())
	_, _, gate := newTestExecutor(registry)

	err := gate.Resolve(context.Background(), "run-nope", "step-nope", models.ApprovalDecisionApprove, "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoPendingApproval)
}
