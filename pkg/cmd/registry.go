package cmd

import (
	"log/slog"

	"github.com/maestro-flow/maestro/pkg/capabilities/httpcall"
	"github.com/maestro-flow/maestro/pkg/capabilities/logmsg"
	"github.com/maestro-flow/maestro/pkg/capability"
)

// NewRegistry builds the capability registry with the built-in
// capabilities registered. Deployments add their own entries before
// handing the registry to the orchestrator.
func NewRegistry(logger *slog.Logger) *capability.Registry {
	registry := capability.NewRegistry(logger)
	registry.Register(logmsg.Entry(logger))
	registry.Register(httpcall.Entry(logger))

	return registry
}
