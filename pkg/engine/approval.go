package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maestro-flow/maestro/pkg/eventbus"
	"github.com/maestro-flow/maestro/pkg/events"
	"github.com/maestro-flow/maestro/pkg/models"
	"github.com/maestro-flow/maestro/pkg/persistence"
)

type approvalKey struct {
	runID  string
	stepID string
}

// ApprovalGate suspends runs on human-gated steps and delivers decisions
// back to the waiting executor. Requests are persisted so operators can
// list what is pending; decisions arrive over per-(run, step) channels.
// The gate never decides on its own: a request without a decision stays
// pending until an actor resolves it or the run is cancelled.
type ApprovalGate struct {
	logger    *slog.Logger
	approvals persistence.ApprovalRepository
	bus       eventbus.EventPublisher

	mu      sync.Mutex
	waiters map[approvalKey]chan models.ApprovalResolution
}

func NewApprovalGate(logger *slog.Logger, approvals persistence.ApprovalRepository, bus eventbus.EventPublisher) *ApprovalGate {
	return &ApprovalGate{
		logger:    logger.With("module", "approval_gate"),
		approvals: approvals,
		bus:       bus,
		waiters:   make(map[approvalKey]chan models.ApprovalResolution),
	}
}

// Request records a pending approval for the step and returns the channel
// the decision will arrive on. The caller must balance every Request with
// either a received decision or Abandon.
func (g *ApprovalGate) Request(ctx context.Context, run *models.RunContext, step *models.Step) (<-chan models.ApprovalResolution, error) {
	request := &models.ApprovalRequest{
		RunID:       run.RunID,
		StepID:      step.ID,
		WorkflowID:  run.WorkflowID,
		UseCaseID:   run.UseCaseID,
		RequestedAt: time.Now().UTC(),
	}

	if err := g.approvals.Save(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to persist approval request: %w", err)
	}

	decisions := make(chan models.ApprovalResolution, 1)

	g.mu.Lock()
	g.waiters[approvalKey{runID: run.RunID, stepID: step.ID}] = decisions
	g.mu.Unlock()

	if g.bus != nil {
		event := events.ApprovalRequested{
			BaseEvent: events.NewBaseEvent(events.ApprovalRequestedEvent, run.WorkflowID, run.RunID),
			StepID:    step.ID,
		}
		if err := g.bus.Publish(ctx, run.RunID, event); err != nil {
			g.logger.Warn("Failed to publish approval requested event", "run_id", run.RunID, "error", err)
		}
	}

	g.logger.Info("Approval requested", "run_id", run.RunID, "step_id", step.ID)

	return decisions, nil
}

// Resolve records a human decision and hands it to the suspended run.
// Returns ErrNoPendingApproval when nothing is waiting for this (run, step).
func (g *ApprovalGate) Resolve(ctx context.Context, runID, stepID string, decision models.ApprovalDecision, actor string) error {
	if _, err := g.approvals.ByKey(ctx, runID, stepID); err != nil {
		if errors.Is(err, persistence.ErrApprovalNotFound) {
			return fmt.Errorf("%w: run %s step %s", ErrNoPendingApproval, runID, stepID)
		}

		return err
	}

	g.mu.Lock()
	decisions, ok := g.waiters[approvalKey{runID: runID, stepID: stepID}]
	if ok {
		delete(g.waiters, approvalKey{runID: runID, stepID: stepID})
	}
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: run %s step %s has no live waiter", ErrNoPendingApproval, runID, stepID)
	}

	if err := g.approvals.Delete(ctx, runID, stepID); err != nil {
		g.logger.Warn("Failed to delete resolved approval request", "run_id", runID, "error", err)
	}

	resolution := models.ApprovalResolution{
		RunID:     runID,
		StepID:    stepID,
		Decision:  decision,
		Actor:     actor,
		DecidedAt: time.Now().UTC(),
	}

	decisions <- resolution

	if g.bus != nil {
		event := events.ApprovalResolved{
			BaseEvent: events.NewBaseEvent(events.ApprovalResolvedEvent, "", runID),
			StepID:    stepID,
			Decision:  decision,
			Actor:     actor,
		}
		if err := g.bus.Publish(ctx, runID, event); err != nil {
			g.logger.Warn("Failed to publish approval resolved event", "run_id", runID, "error", err)
		}
	}

	g.logger.Info("Approval resolved",
		"run_id", runID,
		"step_id", stepID,
		"decision", decision,
		"actor", actor,
	)

	return nil
}

// Abandon drops the waiter and the persisted request for a run that will
// not receive a decision, typically because it was cancelled.
func (g *ApprovalGate) Abandon(ctx context.Context, runID, stepID string) {
	g.mu.Lock()
	delete(g.waiters, approvalKey{runID: runID, stepID: stepID})
	g.mu.Unlock()

	if err := g.approvals.Delete(ctx, runID, stepID); err != nil && !errors.Is(err, persistence.ErrApprovalNotFound) {
		g.logger.Warn("Failed to delete abandoned approval request", "run_id", runID, "error", err)
	}
}

// Pending lists all approval requests awaiting a decision.
func (g *ApprovalGate) Pending(ctx context.Context) ([]*models.ApprovalRequest, error) {
	return g.approvals.Pending(ctx)
}
