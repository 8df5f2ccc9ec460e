package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of one execution attempt.
type RunStatus string

const (
	RunStatusPending          RunStatus = "pending"
	RunStatusRunning          RunStatus = "running"
	RunStatusAwaitingApproval RunStatus = "awaiting_approval"
	RunStatusCompleted        RunStatus = "completed"
	RunStatusFailed           RunStatus = "failed"
	RunStatusCancelled        RunStatus = "cancelled"
)

// Terminal reports whether no further state transitions are possible.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// StepOutcome records how one step attempt ended.
type StepOutcome string

const (
	StepOutcomeSuccess  StepOutcome = "success"
	StepOutcomeFailed   StepOutcome = "failed"
	StepOutcomeSkipped  StepOutcome = "skipped"
	StepOutcomeRejected StepOutcome = "rejected"
)

// ErrorKind classifies failures recorded in run history and surfaced to
// operators so a stuck run is never opaque.
type ErrorKind string

const (
	ErrorKindNone                 ErrorKind = ""
	ErrorKindValidation           ErrorKind = "validation"
	ErrorKindUnknownWorkflow      ErrorKind = "unknown_workflow"
	ErrorKindUnknownRun           ErrorKind = "unknown_run"
	ErrorKindCapabilityNotFound   ErrorKind = "capability_not_found"
	ErrorKindHandlerRetryable     ErrorKind = "handler_retryable"
	ErrorKindHandlerConfiguration ErrorKind = "handler_configuration"
	ErrorKindStepTimeout          ErrorKind = "step_timeout"
	ErrorKindRejectedByApprover   ErrorKind = "rejected_by_approver"
	ErrorKindCancelled            ErrorKind = "cancelled"
	ErrorKindInternal             ErrorKind = "internal"
)

// StepRecord is one entry in a run's ordered history: a step attempt, skip,
// or approval rejection.
type StepRecord struct {
	StepID     string      `json:"step_id"`
	Outcome    StepOutcome `json:"outcome"`
	Attempt    int         `json:"attempt,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Error      string      `json:"error,omitempty"`
	ErrorKind  ErrorKind   `json:"error_kind,omitempty"`
}

// RunError is the last error that stopped or is stalling a run.
type RunError struct {
	StepID  string    `json:"step_id,omitempty"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *RunError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("step %s: %s: %s", e.StepID, e.Kind, e.Message)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// RunContext is the mutable per-execution state. It is mutated exclusively
// by the step executor and the approval gate; everyone else sees snapshots.
type RunContext struct {
	RunID            string         `json:"run_id"`
	WorkflowID       string         `json:"workflow_id"`
	UseCaseID        string         `json:"use_case_id"`
	Version          string         `json:"version"`
	Status           RunStatus      `json:"status"`
	CurrentStepIndex int            `json:"current_step_index"`
	Outputs          OutputSet      `json:"outputs"`
	History          []StepRecord   `json:"history"`
	InitialContext   map[string]any `json:"initial_context,omitempty"`
	AwaitingStepID   string         `json:"awaiting_step_id,omitempty"`
	RetryAttempt     int            `json:"retry_attempt,omitempty"`
	Escalated        bool           `json:"escalated,omitempty"`
	LastError        *RunError      `json:"last_error,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

// NewRunContext creates a pending run for a registered definition.
func NewRunContext(def *WorkflowDefinition, initialContext map[string]any) *RunContext {
	return &RunContext{
		RunID:          "run-" + uuid.New().String()[:8],
		WorkflowID:     def.ID,
		UseCaseID:      def.UseCaseID,
		Version:        def.Version,
		Status:         RunStatusPending,
		Outputs:        make(OutputSet),
		History:        make([]StepRecord, 0, len(def.Steps)),
		InitialContext: initialContext,
		StartedAt:      time.Now().UTC(),
	}
}

// Snapshot returns a deep copy safe to hand to dashboards and API callers.
func (rc *RunContext) Snapshot() *RunContext {
	snapshot := *rc

	snapshot.Outputs = rc.Outputs.Clone()

	snapshot.History = make([]StepRecord, len(rc.History))
	copy(snapshot.History, rc.History)

	if rc.InitialContext != nil {
		snapshot.InitialContext = make(map[string]any, len(rc.InitialContext))
		for k, v := range rc.InitialContext {
			snapshot.InitialContext[k] = v
		}
	}

	if rc.LastError != nil {
		lastErr := *rc.LastError
		snapshot.LastError = &lastErr
	}

	if rc.CompletedAt != nil {
		completed := *rc.CompletedAt
		snapshot.CompletedAt = &completed
	}

	return &snapshot
}
