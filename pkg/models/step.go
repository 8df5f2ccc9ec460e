package models

// StepType is the closed set of step kinds a definition may declare.
type StepType string

const (
	StepTypeDetect  StepType = "detect"
	StepTypeAnalyze StepType = "analyze"
	StepTypeDecide  StepType = "decide"
	StepTypeExecute StepType = "execute"
	StepTypeVerify  StepType = "verify"
	StepTypeReport  StepType = "report"
)

// Step is one unit of work within a definition, bound to a capability
// through the (agent, service, action) triple and to a failure policy.
type Step struct {
	ID                    string         `json:"id"      validate:"required"`
	Type                  StepType       `json:"type"    validate:"required,oneof=detect analyze decide execute verify report"`
	Agent                 string         `json:"agent"   validate:"required"`
	Service               string         `json:"service" validate:"required"`
	Action                string         `json:"action"  validate:"required"`
	Parameters            map[string]any `json:"parameters,omitempty"`
	Outputs               []string       `json:"outputs,omitempty"`
	Conditions            []Condition    `json:"conditions,omitempty" validate:"dive"`
	HumanApprovalRequired bool           `json:"human_approval_required,omitempty"`
	Timeout               Duration       `json:"timeout,omitempty"`
	ErrorHandling         ErrorHandling  `json:"error_handling,omitempty"`
}
