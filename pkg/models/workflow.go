// Package models defines the core domain models for declarative workflow
// orchestration: definitions, steps, triggers, and run state.
package models

import "time"

// Criticality classifies how important a workflow is to operators.
type Criticality string

const (
	CriticalityLow      Criticality = "low"
	CriticalityMedium   Criticality = "medium"
	CriticalityHigh     Criticality = "high"
	CriticalityCritical Criticality = "critical"
)

// Metadata carries descriptive attributes of a workflow definition.
type Metadata struct {
	RequiredCapabilities []string    `json:"required_capabilities,omitempty"`
	EstimatedDuration    Duration    `json:"estimated_duration,omitempty"`
	Criticality          Criticality `json:"criticality,omitempty"          validate:"omitempty,oneof=low medium high critical"`
	Tags                 []string    `json:"tags,omitempty"`
}

// WorkflowDefinition is the immutable declarative spec of one automatable
// process. Definitions are registered once per (use case, version) and never
// mutated in place; new behavior requires a new version.
type WorkflowDefinition struct {
	ID           string     `json:"id"            validate:"required"`
	UseCaseID    string     `json:"use_case_id"   validate:"required"`
	Version      string     `json:"version"       validate:"required,semver"`
	Steps        []*Step    `json:"steps"         validate:"required,min=1,dive"`
	Triggers     []*Trigger `json:"triggers,omitempty" validate:"dive"`
	Metadata     Metadata   `json:"metadata"`
	RegisteredAt time.Time  `json:"registered_at"`
}

// StepIndex returns the declaration index of a step id, or -1.
func (d *WorkflowDefinition) StepIndex(id string) int {
	for i, step := range d.Steps {
		if step.ID == id {
			return i
		}
	}

	return -1
}
