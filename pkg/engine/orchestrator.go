// Package engine implements the orchestration core: the step executor
// state machine, retry handling, the human approval gate, and the
// orchestrator facade tying them together.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/maestro-flow/maestro/pkg/capability"
	"github.com/maestro-flow/maestro/pkg/eventbus"
	"github.com/maestro-flow/maestro/pkg/models"
	"github.com/maestro-flow/maestro/pkg/notify"
	"github.com/maestro-flow/maestro/pkg/persistence"
	"github.com/maestro-flow/maestro/pkg/workflow"
)

// DefaultMaxConcurrentRuns bounds the worker pool when no limit is
// configured.
const DefaultMaxConcurrentRuns = 10

// Config tunes the orchestrator's execution behavior.
type Config struct {
	MaxConcurrentRuns int
	MinRetryDelay     time.Duration
}

// Orchestrator is the single entry point for run lifecycle operations.
// Runs execute concurrently up to the configured bound, each owned by
// exactly one executor goroutine; within a run, steps are sequential.
type Orchestrator struct {
	logger      *slog.Logger
	definitions *workflow.Repository
	store       persistence.Persistence
	gate        *ApprovalGate
	executor    *Executor

	baseCtx   context.Context
	cancelAll context.CancelFunc
	slots     chan struct{}
	wg        sync.WaitGroup

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func NewOrchestrator(
	logger *slog.Logger,
	definitions *workflow.Repository,
	store persistence.Persistence,
	registry *capability.Registry,
	bus eventbus.EventPublisher,
	notifier notify.Notifier,
	tracer trace.Tracer,
	cfg Config,
) *Orchestrator {
	if cfg.MaxConcurrentRuns < 1 {
		cfg.MaxConcurrentRuns = DefaultMaxConcurrentRuns
	}

	gate := NewApprovalGate(logger, store.Approvals(), bus)
	retry := NewRetryHandler(logger, notifier, cfg.MinRetryDelay)
	executor := NewExecutor(logger, registry, store.Runs(), gate, retry, bus, tracer)

	baseCtx, cancelAll := context.WithCancel(context.Background())

	return &Orchestrator{
		logger:      logger.With("module", "orchestrator"),
		definitions: definitions,
		store:       store,
		gate:        gate,
		executor:    executor,
		baseCtx:     baseCtx,
		cancelAll:   cancelAll,
		slots:       make(chan struct{}, cfg.MaxConcurrentRuns),
		active:      make(map[string]context.CancelFunc),
	}
}

// Start creates a run for the identified definition and enqueues it for
// execution. Returns the pending run snapshot immediately; execution
// proceeds on the worker pool. An empty version matches whatever version
// of the workflow id is registered.
func (o *Orchestrator) Start(ctx context.Context, workflowID, version string, initialContext map[string]any) (*models.RunContext, error) {
	def, err := o.definitions.ByID(ctx, workflowID, version)
	if err != nil {
		if persistence.IsDefinitionNotFound(err) {
			return nil, fmt.Errorf("%w: %s@%s", ErrUnknownWorkflow, workflowID, version)
		}

		return nil, err
	}

	run := models.NewRunContext(def, initialContext)

	if err := o.store.Runs().Save(ctx, run.Snapshot()); err != nil {
		return nil, fmt.Errorf("failed to persist new run: %w", err)
	}

	runCtx, cancel := context.WithCancel(o.baseCtx)

	o.mu.Lock()
	o.active[run.RunID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)

	go func() {
		defer o.wg.Done()
		defer o.forget(run.RunID)
		defer cancel()

		select {
		case o.slots <- struct{}{}:
			defer func() { <-o.slots }()
		case <-runCtx.Done():
			// Cancelled before a worker slot freed up.
			_ = o.executor.finishCancelled(runCtx, run)

			return
		}

		if err := o.executor.Execute(runCtx, def, run); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Debug("Run finished with error", "run_id", run.RunID, "error", err)
		}
	}()

	o.logger.Info("Run enqueued",
		"run_id", run.RunID,
		"workflow_id", workflowID,
		"use_case_id", def.UseCaseID,
		"version", def.Version,
	)

	return run.Snapshot(), nil
}

// GetStatus returns the persisted state of a run.
func (o *Orchestrator) GetStatus(ctx context.Context, runID string) (*models.RunContext, error) {
	run, err := o.store.Runs().ByID(ctx, runID)
	if err != nil {
		if persistence.IsRunNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
		}

		return nil, err
	}

	return run, nil
}

// ListRuns returns all known runs.
func (o *Orchestrator) ListRuns(ctx context.Context) ([]*models.RunContext, error) {
	return o.store.Runs().List(ctx)
}

// Cancel transitions a non-terminal run to cancelled. A run suspended on
// an approval gate or sleeping between retries is released immediately.
// Cancelling a terminal run returns ErrRunTerminal.
func (o *Orchestrator) Cancel(ctx context.Context, runID string) error {
	run, err := o.GetStatus(ctx, runID)
	if err != nil {
		return err
	}

	if run.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrRunTerminal, runID, run.Status)
	}

	o.mu.Lock()
	cancel, ok := o.active[runID]
	o.mu.Unlock()

	if ok {
		cancel()

		return nil
	}

	// Not owned by this process (left over from a previous one): mark it
	// cancelled directly.
	now := time.Now().UTC()
	run.Status = models.RunStatusCancelled
	run.CompletedAt = &now
	run.AwaitingStepID = ""
	run.LastError = &models.RunError{Kind: models.ErrorKindCancelled, Message: "run cancelled"}

	return o.store.Runs().Save(ctx, run)
}

// ResolveApproval delivers a human decision to a run suspended on an
// approval gate.
func (o *Orchestrator) ResolveApproval(ctx context.Context, runID, stepID string, decision models.ApprovalDecision, actor string) error {
	if _, err := o.GetStatus(ctx, runID); err != nil {
		return err
	}

	return o.gate.Resolve(ctx, runID, stepID, decision, actor)
}

// PendingApprovals lists approval requests awaiting a decision.
func (o *Orchestrator) PendingApprovals(ctx context.Context) ([]*models.ApprovalRequest, error) {
	return o.gate.Pending(ctx)
}

// ActiveRuns reports how many runs this process currently owns.
func (o *Orchestrator) ActiveRuns() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.active)
}

// Shutdown cancels all active runs and waits for their executors to
// finish persisting terminal state, or until ctx expires.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancelAll()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown wait interrupted: %w", ctx.Err())
	}
}

func (o *Orchestrator) forget(runID string) {
	o.mu.Lock()
	delete(o.active, runID)
	o.mu.Unlock()
}
