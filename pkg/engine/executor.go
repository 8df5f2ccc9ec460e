package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/maestro-flow/maestro/pkg/capability"
	"github.com/maestro-flow/maestro/pkg/eventbus"
	"github.com/maestro-flow/maestro/pkg/events"
	"github.com/maestro-flow/maestro/pkg/models"
	"github.com/maestro-flow/maestro/pkg/otelhelper"
	"github.com/maestro-flow/maestro/pkg/persistence"
)

// Executor runs one workflow definition to completion. Steps execute
// strictly in declaration order; a step starts only after its predecessor
// succeeded or was skipped. The executor is the sole writer of a run's
// state while the run is active.
type Executor struct {
	logger   *slog.Logger
	registry *capability.Registry
	runs     persistence.RunRepository
	gate     *ApprovalGate
	retry    *RetryHandler
	bus      eventbus.EventPublisher
	tracer   trace.Tracer
}

func NewExecutor(
	logger *slog.Logger,
	registry *capability.Registry,
	runs persistence.RunRepository,
	gate *ApprovalGate,
	retry *RetryHandler,
	bus eventbus.EventPublisher,
	tracer trace.Tracer,
) *Executor {
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer("maestro")
	}

	return &Executor{
		logger:   logger.With("module", "executor"),
		registry: registry,
		runs:     runs,
		gate:     gate,
		retry:    retry,
		bus:      bus,
		tracer:   tracer,
	}
}

// Execute drives the run through every step of the definition. The
// returned error reflects the run outcome: nil for completed, the final
// step error for failed, ctx.Err() for cancelled. State is persisted
// after every transition so GetStatus always sees fresh progress.
func (e *Executor) Execute(ctx context.Context, def *models.WorkflowDefinition, run *models.RunContext) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.run",
		attribute.String(otelhelper.WorkflowIDKey, run.WorkflowID),
		attribute.String(otelhelper.UseCaseIDKey, run.UseCaseID),
		attribute.String(otelhelper.VersionKey, run.Version),
		attribute.String(otelhelper.RunIDKey, run.RunID),
	)
	defer span.End()

	run.Status = models.RunStatusRunning
	if err := e.save(ctx, run); err != nil {
		return err
	}

	// Trigger sources stamp their id into the initial context; manual
	// starts leave it empty.
	triggerID, _ := run.InitialContext["trigger_id"].(string)

	e.publish(ctx, run.RunID, events.RunStarted{
		BaseEvent: events.NewBaseEvent(events.RunStartedEvent, run.WorkflowID, run.RunID),
		UseCaseID: run.UseCaseID,
		Version:   run.Version,
		TriggerID: triggerID,
	})

	e.logger.Info("Run started",
		"run_id", run.RunID,
		"use_case_id", run.UseCaseID,
		"version", run.Version,
		"steps", len(def.Steps),
	)

	for idx := run.CurrentStepIndex; idx < len(def.Steps); idx++ {
		if ctx.Err() != nil {
			return e.finishCancelled(ctx, run)
		}

		run.CurrentStepIndex = idx
		step := def.Steps[idx]

		proceed, err := e.checkConditions(run, step)
		if err != nil {
			e.recordStep(run, models.StepRecord{
				StepID:     step.ID,
				Outcome:    models.StepOutcomeFailed,
				StartedAt:  time.Now().UTC(),
				FinishedAt: time.Now().UTC(),
				Error:      err.Error(),
				ErrorKind:  models.ErrorKindInternal,
			})

			return e.finishFailed(ctx, span, run, step.ID, models.ErrorKindInternal, err)
		}

		if !proceed {
			e.skipStep(ctx, run, step)

			continue
		}

		if step.HumanApprovalRequired {
			approved, err := e.awaitApproval(ctx, run, step)
			if err != nil {
				return e.finishCancelled(ctx, run)
			}

			if !approved {
				rejection := &models.RunError{
					StepID:  step.ID,
					Kind:    models.ErrorKindRejectedByApprover,
					Message: "step rejected by approver",
				}

				return e.finishFailed(ctx, span, run, step.ID, models.ErrorKindRejectedByApprover, rejection)
			}
		}

		if err := e.executeStep(ctx, run, step); err != nil {
			if ctx.Err() != nil {
				return e.finishCancelled(ctx, run)
			}

			if step.ErrorHandling.Escalate {
				run.Escalated = true

				e.logger.Warn("Run escalated after step failure",
					"run_id", run.RunID,
					"step_id", step.ID,
				)
			}

			return e.finishFailed(ctx, span, run, step.ID, classify(err), err)
		}
	}

	return e.finishCompleted(ctx, run)
}

// checkConditions evaluates the step's conditions against accumulated
// outputs. All conditions must hold for the step to execute.
func (e *Executor) checkConditions(run *models.RunContext, step *models.Step) (bool, error) {
	for _, condition := range step.Conditions {
		holds, err := condition.Evaluate(run.Outputs)
		if err != nil {
			return false, fmt.Errorf("condition on step %s: %w", condition.Step, err)
		}

		if !holds {
			return false, nil
		}
	}

	return true, nil
}

// skipStep records a skipped step. Skipping is not a failure: the run
// proceeds and downstream conditions on this step's outputs see nothing.
func (e *Executor) skipStep(ctx context.Context, run *models.RunContext, step *models.Step) {
	now := time.Now().UTC()
	e.recordStep(run, models.StepRecord{
		StepID:     step.ID,
		Outcome:    models.StepOutcomeSkipped,
		StartedAt:  now,
		FinishedAt: now,
	})

	if err := e.save(ctx, run); err != nil {
		e.logger.Warn("Failed to persist run after skip", "run_id", run.RunID, "error", err)
	}

	e.publish(ctx, run.RunID, events.StepFinished{
		BaseEvent: events.NewBaseEvent(events.StepFinishedEvent, run.WorkflowID, run.RunID),
		StepID:    step.ID,
		Outcome:   models.StepOutcomeSkipped,
	})

	e.logger.Info("Step skipped", "run_id", run.RunID, "step_id", step.ID)
}

// awaitApproval suspends the run until a human resolves the gate or the
// run is cancelled. Returns (false, ctx.Err()) on cancellation.
func (e *Executor) awaitApproval(ctx context.Context, run *models.RunContext, step *models.Step) (bool, error) {
	run.Status = models.RunStatusAwaitingApproval
	run.AwaitingStepID = step.ID

	if err := e.save(ctx, run); err != nil {
		return false, err
	}

	decisions, err := e.gate.Request(ctx, run, step)
	if err != nil {
		return false, err
	}

	e.logger.Info("Run awaiting approval", "run_id", run.RunID, "step_id", step.ID)

	select {
	case <-ctx.Done():
		e.gate.Abandon(context.WithoutCancel(ctx), run.RunID, step.ID)

		return false, ctx.Err()
	case resolution := <-decisions:
		run.Status = models.RunStatusRunning
		run.AwaitingStepID = ""

		if err := e.save(ctx, run); err != nil {
			return false, err
		}

		if resolution.Decision == models.ApprovalDecisionReject {
			now := time.Now().UTC()
			e.recordStep(run, models.StepRecord{
				StepID:     step.ID,
				Outcome:    models.StepOutcomeRejected,
				StartedAt:  now,
				FinishedAt: now,
				Error:      "rejected by " + resolution.Actor,
				ErrorKind:  models.ErrorKindRejectedByApprover,
			})

			return false, nil
		}

		return true, nil
	}
}

// executeStep invokes the step's capability under its retry policy and,
// on success, merges the declared outputs into the run.
func (e *Executor) executeStep(ctx context.Context, run *models.RunContext, step *models.Step) error {
	stepCtx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.step",
		attribute.String(otelhelper.RunIDKey, run.RunID),
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.StepTypeKey, string(step.Type)),
	)
	defer span.End()

	addr := capability.Address{Agent: step.Agent, Service: step.Service, Action: step.Action}
	params := e.mergedParameters(run, step)

	var attemptStarted time.Time

	invoke := func(ctx context.Context, attempt int) (models.OutputMap, error) {
		attemptStarted = time.Now().UTC()

		handler, err := e.registry.Resolve(addr)
		if err != nil {
			return nil, err
		}

		invokeCtx := ctx

		var cancel context.CancelFunc
		if step.Timeout > 0 {
			invokeCtx, cancel = context.WithTimeout(ctx, step.Timeout.Std())
			defer cancel()
		}

		// Handlers get a copy: committed outputs of earlier steps must
		// survive whatever the handler does to its view.
		outputs, err := handler.Invoke(invokeCtx, params, run.Outputs.Clone())
		if err != nil {
			if invokeCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return nil, fmt.Errorf("%w after %s: %v", ErrStepTimeout, step.Timeout, err)
			}

			return nil, err
		}

		return outputs, nil
	}

	onAttemptFailed := func(attempt int, err error, kind models.ErrorKind) {
		run.RetryAttempt = attempt
		e.recordStep(run, models.StepRecord{
			StepID:     step.ID,
			Outcome:    models.StepOutcomeFailed,
			Attempt:    attempt,
			StartedAt:  attemptStarted,
			FinishedAt: time.Now().UTC(),
			Error:      err.Error(),
			ErrorKind:  kind,
		})

		if saveErr := e.save(ctx, run); saveErr != nil {
			e.logger.Warn("Failed to persist run after attempt failure", "run_id", run.RunID, "error", saveErr)
		}

		e.publish(ctx, run.RunID, events.StepFinished{
			BaseEvent: events.NewBaseEvent(events.StepFinishedEvent, run.WorkflowID, run.RunID),
			StepID:    step.ID,
			Outcome:   models.StepOutcomeFailed,
			Attempt:   attempt,
		})
	}

	outputs, attempts, err := e.retry.Run(ctx, run, step, invoke, onAttemptFailed)
	run.RetryAttempt = 0

	if err != nil {
		otelhelper.SetError(span, err,
			attribute.String(otelhelper.StepIDKey, step.ID),
			attribute.Int(otelhelper.AttemptKey, attempts),
		)

		return err
	}

	// Only outputs of a succeeded attempt are merged; partial results of
	// failed attempts are discarded with the attempt.
	run.Outputs[step.ID] = declaredOutputs(step, outputs)
	e.recordStep(run, models.StepRecord{
		StepID:     step.ID,
		Outcome:    models.StepOutcomeSuccess,
		Attempt:    attempts,
		StartedAt:  attemptStarted,
		FinishedAt: time.Now().UTC(),
	})

	if err := e.save(stepCtx, run); err != nil {
		return err
	}

	e.publish(stepCtx, run.RunID, events.StepFinished{
		BaseEvent: events.NewBaseEvent(events.StepFinishedEvent, run.WorkflowID, run.RunID),
		StepID:    step.ID,
		Outcome:   models.StepOutcomeSuccess,
		Attempt:   attempts,
	})

	e.logger.Info("Step succeeded",
		"run_id", run.RunID,
		"step_id", step.ID,
		"attempt", attempts,
	)

	return nil
}

// mergedParameters builds the handler's parameter view: the run's initial
// context overlaid by the step's own parameters.
func (e *Executor) mergedParameters(run *models.RunContext, step *models.Step) map[string]any {
	params := make(map[string]any, len(run.InitialContext)+len(step.Parameters))
	for k, v := range run.InitialContext {
		params[k] = v
	}

	for k, v := range step.Parameters {
		params[k] = v
	}

	return params
}

// declaredOutputs filters handler results down to the step's declared
// output slots. A step declaring no outputs keeps everything it returned.
func declaredOutputs(step *models.Step, outputs models.OutputMap) models.OutputMap {
	if len(step.Outputs) == 0 {
		if outputs == nil {
			return models.OutputMap{}
		}

		return outputs
	}

	filtered := make(models.OutputMap, len(step.Outputs))
	for _, name := range step.Outputs {
		if value, ok := outputs[name]; ok {
			filtered[name] = value
		}
	}

	return filtered
}

func (e *Executor) finishCompleted(ctx context.Context, run *models.RunContext) error {
	now := time.Now().UTC()
	run.Status = models.RunStatusCompleted
	run.CompletedAt = &now
	run.LastError = nil

	if err := e.save(ctx, run); err != nil {
		return err
	}

	e.publish(ctx, run.RunID, events.RunCompleted{
		BaseEvent: events.NewBaseEvent(events.RunCompletedEvent, run.WorkflowID, run.RunID),
		Duration:  now.Sub(run.StartedAt),
	})

	e.logger.Info("Run completed",
		"run_id", run.RunID,
		"duration", now.Sub(run.StartedAt),
	)

	return nil
}

func (e *Executor) finishFailed(ctx context.Context, span trace.Span, run *models.RunContext, stepID string, kind models.ErrorKind, cause error) error {
	now := time.Now().UTC()
	run.Status = models.RunStatusFailed
	run.CompletedAt = &now
	run.LastError = &models.RunError{
		StepID:  stepID,
		Kind:    kind,
		Message: cause.Error(),
	}

	if err := e.save(ctx, run); err != nil {
		e.logger.Error("Failed to persist failed run", "run_id", run.RunID, "error", err)
	}

	otelhelper.SetError(span, cause, attribute.String(otelhelper.StepIDKey, stepID))

	e.publish(ctx, run.RunID, events.RunFailed{
		BaseEvent: events.NewBaseEvent(events.RunFailedEvent, run.WorkflowID, run.RunID),
		StepID:    stepID,
		ErrorKind: kind,
		Error:     cause.Error(),
		Escalated: run.Escalated,
		Duration:  now.Sub(run.StartedAt),
	})

	e.logger.Error("Run failed",
		"run_id", run.RunID,
		"step_id", stepID,
		"error_kind", kind,
		"escalated", run.Escalated,
		"error", cause,
	)

	return run.LastError
}

func (e *Executor) finishCancelled(ctx context.Context, run *models.RunContext) error {
	now := time.Now().UTC()
	run.Status = models.RunStatusCancelled
	run.CompletedAt = &now
	run.AwaitingStepID = ""
	run.LastError = &models.RunError{
		Kind:    models.ErrorKindCancelled,
		Message: "run cancelled",
	}

	if err := e.save(ctx, run); err != nil {
		e.logger.Error("Failed to persist cancelled run", "run_id", run.RunID, "error", err)
	}

	e.publish(ctx, run.RunID, events.RunCancelled{
		BaseEvent: events.NewBaseEvent(events.RunCancelledEvent, run.WorkflowID, run.RunID),
	})

	e.logger.Info("Run cancelled", "run_id", run.RunID)

	return context.Canceled
}

func (e *Executor) recordStep(run *models.RunContext, record models.StepRecord) {
	run.History = append(run.History, record)
}

// save persists a snapshot of the run. Uses a non-cancellable context so
// terminal states of cancelled runs still reach the store.
func (e *Executor) save(ctx context.Context, run *models.RunContext) error {
	if err := e.runs.Save(context.WithoutCancel(ctx), run.Snapshot()); err != nil {
		return fmt.Errorf("failed to persist run %s: %w", run.RunID, err)
	}

	return nil
}

func (e *Executor) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.bus == nil {
		return
	}

	if err := e.bus.Publish(context.WithoutCancel(ctx), key, event); err != nil {
		e.logger.Warn("Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
