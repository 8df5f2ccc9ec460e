package engine

import (
	"context"
	"errors"

	"github.com/maestro-flow/maestro/pkg/capability"
	"github.com/maestro-flow/maestro/pkg/models"
)

var (
	// ErrUnknownWorkflow means no registered definition matches the
	// requested workflow id and version.
	ErrUnknownWorkflow = errors.New("unknown workflow")

	// ErrUnknownRun means no run exists with the given id.
	ErrUnknownRun = errors.New("unknown run")

	// ErrRunTerminal means the requested transition targets a run that
	// already completed, failed, or was cancelled.
	ErrRunTerminal = errors.New("run is in a terminal state")

	// ErrStepTimeout means a step's handler exceeded its declared timeout.
	// Timeouts are transient by classification and therefore retryable.
	ErrStepTimeout = errors.New("step timed out")

	// ErrNoPendingApproval means no approval is awaiting a decision for the
	// given (run, step) pair.
	ErrNoPendingApproval = errors.New("no pending approval")
)

// classify maps a step failure onto the error taxonomy recorded in run
// history. Unclassified handler errors default to retryable.
func classify(err error) models.ErrorKind {
	switch {
	case errors.Is(err, context.Canceled):
		return models.ErrorKindCancelled
	case errors.Is(err, ErrStepTimeout):
		return models.ErrorKindStepTimeout
	case errors.Is(err, capability.ErrNotFound):
		return models.ErrorKindCapabilityNotFound
	case capability.IsConfiguration(err):
		return models.ErrorKindHandlerConfiguration
	default:
		return models.ErrorKindHandlerRetryable
	}
}

// retryable reports whether the retry handler may try the step again.
// Configuration faults and missing capabilities never resolve on retry,
// and a cancelled run must stop immediately.
func retryable(kind models.ErrorKind) bool {
	switch kind {
	case models.ErrorKindHandlerRetryable, models.ErrorKindStepTimeout:
		return true
	default:
		return false
	}
}
