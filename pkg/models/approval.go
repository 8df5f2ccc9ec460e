package models

import "time"

// ApprovalDecision is a human approver's verdict on a gated step.
type ApprovalDecision string

const (
	ApprovalDecisionApprove ApprovalDecision = "approve"
	ApprovalDecisionReject  ApprovalDecision = "reject"
)

// ApprovalRequest is a pending human decision keyed by (run, step). The
// gate never auto-decides: a request stays pending until an actor resolves
// it or the run is cancelled.
type ApprovalRequest struct {
	RunID      string    `json:"run_id"`
	StepID     string    `json:"step_id"`
	WorkflowID string    `json:"workflow_id"`
	UseCaseID  string    `json:"use_case_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// ApprovalResolution records who decided and how.
type ApprovalResolution struct {
	RunID     string           `json:"run_id"`
	StepID    string           `json:"step_id"`
	Decision  ApprovalDecision `json:"decision"`
	Actor     string           `json:"actor"`
	DecidedAt time.Time        `json:"decided_at"`
}
