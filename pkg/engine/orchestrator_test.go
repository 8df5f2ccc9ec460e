package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-flow/maestro/pkg/capability"
	"github.com/maestro-flow/maestro/pkg/models"
	"github.com/maestro-flow/maestro/pkg/notify"
	"github.com/maestro-flow/maestro/pkg/persistence/memory"
	"github.com/maestro-flow/maestro/pkg/workflow"
)

func newTestOrchestrator(registry *capability.Registry, cfg Config) (*Orchestrator, *workflow.Repository) {
	logger := testLogger()
	store := memory.NewPersistence()
	definitions := workflow.NewRepository(store, workflow.NewValidator(registry))

	if cfg.MinRetryDelay == 0 {
		cfg.MinRetryDelay = time.Millisecond
	}

	orchestrator := NewOrchestrator(logger, definitions, store, registry, nil, notify.NewSlogNotifier(logger), nil, cfg)

	return orchestrator, definitions
}

func awaitStatus(t *testing.T, orchestrator *Orchestrator, runID string, status models.RunStatus) *models.RunContext {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		run, err := orchestrator.GetStatus(context.Background(), runID)
		if err == nil && run.Status == status {
			return run
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("run %s never reached status %s", runID, status)

	return nil
}

func TestOrchestratorStartAndComplete(t *testing.T) {
	registry := capability.NewRegistry(testLogger())
	registry.RegisterFunc(addr("detect"), succeedWith(models.OutputMap{"severity": "high"}))

	orchestrator, definitions := newTestOrchestrator(registry, Config{})

	registered, err := definitions.Register(context.Background(), definition(step("detect", "detect")))
	require.NoError(t, err)

	run, err := orchestrator.Start(context.Background(), registered.ID, "", map[string]any{"origin": "test"})
	require.NoError(t, err)
	assert.NotEmpty(t, run.RunID)

	final := awaitStatus(t, orchestrator, run.RunID, models.RunStatusCompleted)
	assert.Equal(t, models.OutputMap{"severity": "high"}, final.Outputs["detect"])
}

func TestOrchestratorStartUnknownWorkflow(t *testing.T) {
	registry := capability.NewRegistry(testLogger())
	orchestrator, _ := newTestOrchestrator(registry, Config{})

	_, err := orchestrator.Start(context.Background(), "wf-missing", "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownWorkflow)
}

func TestOrchestratorStartVersionMismatch(t *testing.T) {
	registry := capability.NewRegistry(testLogger())
	registry.RegisterFunc(addr("detect"), succeedWith(nil))

	orchestrator, definitions := newTestOrchestrator(registry, Config{})

	registered, err := definitions.Register(context.Background(), definition(step("detect", "detect")))
	require.NoError(t, err)

	_, err = orchestrator.Start(context.Background(), registered.ID, "9.9.9", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownWorkflow)
}

func TestOrchestratorGetStatusUnknownRun(t *testing.T) {
	registry := capability.NewRegistry(testLogger())
	orchestrator, _ := newTestOrchestrator(registry, Config{})

	_, err := orchestrator.GetStatus(context.Background(), "run-missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownRun)
}

func TestOrchestratorCancelRunningRun(t *testing.T) {
	registry := capability.NewRegistry(testLogger())
	registry.RegisterFunc(addr("block"), func(ctx context.Context, _ map[string]any, _ models.OutputSet) (models.OutputMap, error) {
		<-ctx.Done()

		return nil, ctx.Err()
	})

	orchestrator, definitions := newTestOrchestrator(registry, Config{})

	registered, err := definitions.Register(context.Background(), definition(step("block", "block")))
	require.NoError(t, err)

	run, err := orchestrator.Start(context.Background(), registered.ID, "", nil)
	require.NoError(t, err)

	awaitStatus(t, orchestrator, run.RunID, models.RunStatusRunning)

	require.NoError(t, orchestrator.Cancel(context.Background(), run.RunID))

	final := awaitStatus(t, orchestrator, run.RunID, models.RunStatusCancelled)
	require.NotNil(t, final.LastError)
	assert.Equal(t, models.ErrorKindCancelled, final.LastError.Kind)

	// Cancelling a terminal run is refused.
	err = orchestrator.Cancel(context.Background(), run.RunID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunTerminal)
}

func TestOrchestratorResolveApproval(t *testing.T) {
	registry := capability.NewRegistry(testLogger())
	registry.RegisterFunc(addr("restart"), succeedWith(models.OutputMap{"restarted": true}))

	orchestrator, definitions := newTestOrchestrator(registry, Config{})

	gated := step("restart", "restart")
	gated.HumanApprovalRequired = true

	registered, err := definitions.Register(context.Background(), definition(gated))
	require.NoError(t, err)

	run, err := orchestrator.Start(context.Background(), registered.ID, "", nil)
	require.NoError(t, err)

	awaitStatus(t, orchestrator, run.RunID, models.RunStatusAwaitingApproval)

	pending, err := orchestrator.PendingApprovals(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, orchestrator.ResolveApproval(
		context.Background(), run.RunID, "restart", models.ApprovalDecisionApprove, "alice"))

	awaitStatus(t, orchestrator, run.RunID, models.RunStatusCompleted)
}

func TestOrchestratorResolveApprovalUnknownRun(t *testing.T) {
	registry := capability.NewRegistry(testLogger())
	orchestrator, _ := newTestOrchestrator(registry, Config{})

	err := orchestrator.ResolveApproval(
		context.Background(), "run-missing", "step", models.ApprovalDecisionApprove, "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownRun)
}

func TestOrchestratorBoundsConcurrentRuns(t *testing.T) {
	release := make(chan struct{})

	registry := capability.NewRegistry(testLogger())
	registry.RegisterFunc(addr("hold"), func(ctx context.Context, _ map[string]any, _ models.OutputSet) (models.OutputMap, error) {
		select {
		case <-release:
			return models.OutputMap{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	orchestrator, definitions := newTestOrchestrator(registry, Config{MaxConcurrentRuns: 1})

	registered, err := definitions.Register(context.Background(), definition(step("hold", "hold")))
	require.NoError(t, err)

	first, err := orchestrator.Start(context.Background(), registered.ID, "", nil)
	require.NoError(t, err)

	awaitStatus(t, orchestrator, first.RunID, models.RunStatusRunning)

	second, err := orchestrator.Start(context.Background(), registered.ID, "", nil)
	require.NoError(t, err)

	// With a single worker slot the second run stays pending while the
	// first holds it.
	time.Sleep(50 * time.Millisecond)

	queued, err := orchestrator.GetStatus(context.Background(), second.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPending, queued.Status)

	close(release)

	awaitStatus(t, orchestrator, first.RunID, models.RunStatusCompleted)
	awaitStatus(t, orchestrator, second.RunID, models.RunStatusCompleted)
}

func TestOrchestratorShutdownCancelsActiveRuns(t *testing.T) {
	registry := capability.NewRegistry(testLogger())
	registry.RegisterFunc(addr("block"), func(ctx context.Context, _ map[string]any, _ models.OutputSet) (models.OutputMap, error) {
		<-ctx.Done()

		return nil, ctx.Err()
	})

	orchestrator, definitions := newTestOrchestrator(registry, Config{})

	registered, err := definitions.Register(context.Background(), definition(step("block", "block")))
	require.NoError(t, err)

	run, err := orchestrator.Start(context.Background(), registered.ID, "", nil)
	require.NoError(t, err)

	awaitStatus(t, orchestrator, run.RunID, models.RunStatusRunning)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, orchestrator.Shutdown(shutdownCtx))

	final, err := orchestrator.GetStatus(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, final.Status)
	assert.Zero(t, orchestrator.ActiveRuns())
}
