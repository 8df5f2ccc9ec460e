// Package capability defines the contract between the orchestration engine
// and the opaque handlers it invokes, plus the registry that resolves them.
package capability

import (
	"context"
	"errors"
	"fmt"

	"github.com/maestro-flow/maestro/pkg/models"
)

// Address identifies a capability by its (agent, service, action) triple.
type Address struct {
	Agent   string `json:"agent"`
	Service string `json:"service"`
	Action  string `json:"action"`
}

func (a Address) String() string {
	return a.Agent + "/" + a.Service + "/" + a.Action
}

// Capability is an invocable handler. Invoke receives the step's parameters
// merged view and a read-only copy of accumulated outputs, and returns the
// named result slots it produced. Implementations must honor ctx
// cancellation; a handler that ignores it will still run to completion but
// no further steps execute afterwards.
type Capability interface {
	Invoke(ctx context.Context, params map[string]any, outputs models.OutputSet) (models.OutputMap, error)
}

// Func adapts a plain function to the Capability interface.
type Func func(ctx context.Context, params map[string]any, outputs models.OutputSet) (models.OutputMap, error)

func (f Func) Invoke(ctx context.Context, params map[string]any, outputs models.OutputSet) (models.OutputMap, error) {
	return f(ctx, params, outputs)
}

// ErrorKind classifies handler failures for the retry handler.
type ErrorKind string

const (
	// ErrorKindRetryable marks transient faults worth retrying.
	ErrorKindRetryable ErrorKind = "retryable"
	// ErrorKindConfiguration marks faults no retry can fix.
	ErrorKindConfiguration ErrorKind = "configuration"
)

// HandlerError is a classified failure returned by a capability. Plain
// errors from handlers default to retryable; configuration errors must be
// wrapped explicitly.
type HandlerError struct {
	Kind ErrorKind
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler error: %v", e.Kind, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Retryable wraps an error as a transient handler fault.
func Retryable(err error) error {
	return &HandlerError{Kind: ErrorKindRetryable, Err: err}
}

// Configuration wraps an error as a non-retryable configuration fault.
func Configuration(err error) error {
	return &HandlerError{Kind: ErrorKindConfiguration, Err: err}
}

// Configurationf builds a configuration fault from a format string.
func Configurationf(format string, args ...any) error {
	return &HandlerError{Kind: ErrorKindConfiguration, Err: fmt.Errorf(format, args...)}
}

// IsConfiguration reports whether err is classified as a configuration
// fault. Unclassified errors are treated as retryable by default.
func IsConfiguration(err error) bool {
	var handlerErr *HandlerError
	if errors.As(err, &handlerErr) {
		return handlerErr.Kind == ErrorKindConfiguration
	}

	return false
}
