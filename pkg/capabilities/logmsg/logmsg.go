// Package logmsg provides the built-in logging capability: it emits the
// configured message and returns it as an output, which makes it handy
// as a report step and in tests.
package logmsg

import (
	"context"
	"log/slog"
	"time"

	"github.com/maestro-flow/maestro/pkg/capability"
	"github.com/maestro-flow/maestro/pkg/models"
)

// Address is where the capability registers itself.
var Address = capability.Address{Agent: "maestro", Service: "core", Action: "log"}

type Capability struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Capability {
	return &Capability{logger: logger.With("module", "log_capability")}
}

// Entry returns the registry entry including the parameter schema.
func Entry(logger *slog.Logger) capability.Entry {
	return capability.Entry{
		Address:     Address,
		Description: "Log a message at the given level",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
				"level":   map[string]any{"type": "string", "enum": []any{"debug", "info", "warn", "error"}},
			},
			"required": []any{"message"},
		},
		Capability: New(logger),
	}
}

func (c *Capability) Invoke(ctx context.Context, params map[string]any, _ models.OutputSet) (models.OutputMap, error) {
	message, ok := params["message"].(string)
	if !ok || message == "" {
		return nil, capability.Configurationf("log capability requires a 'message' string parameter")
	}

	level, _ := params["level"].(string)

	switch level {
	case "debug":
		c.logger.DebugContext(ctx, message)
	case "warn":
		c.logger.WarnContext(ctx, message)
	case "error":
		c.logger.ErrorContext(ctx, message)
	default:
		c.logger.InfoContext(ctx, message)
	}

	return models.OutputMap{
		"message":   message,
		"logged_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

var _ capability.Capability = (*Capability)(nil)
