package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maestro-flow/maestro/pkg/models"
	"github.com/maestro-flow/maestro/pkg/notify"
)

// DefaultMinRetryDelay floors backoff waits so a definition declaring a
// zero delay cannot hot-loop the engine.
const DefaultMinRetryDelay = 100 * time.Millisecond

// attemptFunc performs one invocation of a step's capability.
type attemptFunc func(ctx context.Context, attempt int) (models.OutputMap, error)

// RetryHandler drives a step through its retry policy. With attempts=k the
// step is tried at most k times in total; the wait before attempt N is
// delay * multiplier^(N-2). Retries stop early on non-retryable failures
// and on run cancellation.
type RetryHandler struct {
	logger   *slog.Logger
	notifier notify.Notifier
	minDelay time.Duration
}

func NewRetryHandler(logger *slog.Logger, notifier notify.Notifier, minDelay time.Duration) *RetryHandler {
	if minDelay <= 0 {
		minDelay = DefaultMinRetryDelay
	}

	return &RetryHandler{
		logger:   logger.With("module", "retry_handler"),
		notifier: notifier,
		minDelay: minDelay,
	}
}

// Run invokes the step until it succeeds, exhausts its attempts, or fails
// non-retryably. onAttemptFailed is called after every failed attempt so
// the caller can record history and persist progress between tries.
// Returns the successful outputs, the number of attempts performed, and
// the final error if all attempts failed.
func (h *RetryHandler) Run(
	ctx context.Context,
	run *models.RunContext,
	step *models.Step,
	invoke attemptFunc,
	onAttemptFailed func(attempt int, err error, kind models.ErrorKind),
) (models.OutputMap, int, error) {
	policy := step.ErrorHandling.Retry
	total := policy.TotalAttempts()

	var lastErr error

	for attempt := 1; attempt <= total; attempt++ {
		if attempt > 1 {
			wait := policy.BackoffDelay(attempt, h.minDelay)

			h.logger.Debug("Waiting before retry",
				"run_id", run.RunID,
				"step_id", step.ID,
				"attempt", attempt,
				"wait", wait,
			)

			if err := sleepContext(ctx, wait); err != nil {
				return nil, attempt - 1, err
			}
		}

		outputs, err := invoke(ctx, attempt)
		if err == nil {
			return outputs, attempt, nil
		}

		lastErr = err
		kind := classify(err)
		onAttemptFailed(attempt, err, kind)

		h.logger.Warn("Step attempt failed",
			"run_id", run.RunID,
			"step_id", step.ID,
			"attempt", attempt,
			"of", total,
			"error_kind", kind,
			"error", err,
		)

		if !retryable(kind) {
			h.notifyFailure(ctx, run, step, err)

			return nil, attempt, err
		}
	}

	h.notifyFailure(ctx, run, step, lastErr)

	return nil, total, lastErr
}

// notifyFailure dispatches the step's failure notification, if configured.
// Best-effort: errors are logged and never change the run outcome. The
// dispatch survives run cancellation so operators still hear about it.
func (h *RetryHandler) notifyFailure(ctx context.Context, run *models.RunContext, step *models.Step, cause error) {
	policy := step.ErrorHandling.Notification
	if policy == nil || h.notifier == nil {
		return
	}

	message := fmt.Sprintf("run %s (%s@%s): step %s failed: %v",
		run.RunID, run.UseCaseID, run.Version, step.ID, cause)

	if err := h.notifier.Notify(context.WithoutCancel(ctx), policy.Channels, policy.Recipients, message); err != nil {
		h.logger.Warn("Failed to dispatch failure notification",
			"run_id", run.RunID,
			"step_id", step.ID,
			"error", err,
		)
	}
}

// sleepContext waits for the duration unless the context ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
