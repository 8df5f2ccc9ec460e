package logmsg

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-flow/maestro/pkg/capability"
)

func TestInvokeLogsAndReturnsMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	outputs, err := New(logger).Invoke(context.Background(), map[string]any{
		"message": "disk pressure cleared",
		"level":   "warn",
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "disk pressure cleared", outputs["message"])
	assert.NotEmpty(t, outputs["logged_at"])
	assert.Contains(t, buf.String(), "disk pressure cleared")
	assert.Contains(t, buf.String(), "WARN")
}

func TestInvokeDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	_, err := New(logger).Invoke(context.Background(), map[string]any{
		"message": "hello",
	}, nil)

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "INFO")
}

func TestInvokeMissingMessage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	_, err := New(logger).Invoke(context.Background(), map[string]any{}, nil)
	require.Error(t, err)
	assert.True(t, capability.IsConfiguration(err))
}

func TestEntrySchemaRequiresMessage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	entry := Entry(logger)
	assert.Equal(t, Address, entry.Address)

	required, ok := entry.Schema["required"].([]any)
	require.True(t, ok)
	assert.Contains(t, required, "message")
}
