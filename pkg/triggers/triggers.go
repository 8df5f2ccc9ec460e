// Package triggers defines the contract between trigger sources and the
// orchestrator: a source observes the outside world and fires run
// requests, never executing anything itself.
package triggers

import "context"

// RunRequest asks the orchestrator to start a run of a registered
// workflow. InitialContext carries trigger-provided data the first steps
// can read as parameters.
type RunRequest struct {
	WorkflowID     string
	TriggerID      string
	InitialContext map[string]any
}

// Callback is invoked by a source once per firing.
type Callback func(ctx context.Context, request RunRequest) error

// Source is a running trigger feed. Start is non-blocking: sources spawn
// their own goroutines and fire the callback until stopped.
type Source interface {
	Start(ctx context.Context, fire Callback) error
	Stop(ctx context.Context) error
}
