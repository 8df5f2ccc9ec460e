package httpcall

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-flow/maestro/pkg/capability"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInvokeDecodesJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"severity": "high"}`))
	}))
	defer server.Close()

	outputs, err := New(testLogger()).Invoke(context.Background(), map[string]any{
		"url": server.URL,
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, outputs["status_code"])

	body, ok := outputs["body"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "high", body["severity"])

	headers, ok := outputs["headers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "application/json", headers["Content-Type"])
}

func TestInvokeSendsMethodHeadersAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "token-1", r.Header.Get("Authorization"))

		received, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"service":"ingest"}`, string(received))

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	outputs, err := New(testLogger()).Invoke(context.Background(), map[string]any{
		"url":     server.URL,
		"method":  "post",
		"body":    `{"service":"ingest"}`,
		"headers": map[string]any{"Authorization": "token-1"},
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, outputs["status_code"])
}

func TestInvokeNonJSONBodyReturnedAsString(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("plain text"))
	}))
	defer server.Close()

	outputs, err := New(testLogger()).Invoke(context.Background(), map[string]any{
		"url": server.URL,
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "plain text", outputs["body"])
}

func TestInvokeServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := New(testLogger()).Invoke(context.Background(), map[string]any{
		"url": server.URL,
	}, nil)

	require.Error(t, err)

	var handlerErr *capability.HandlerError
	require.True(t, errors.As(err, &handlerErr))
	assert.Equal(t, capability.ErrorKindRetryable, handlerErr.Kind)
}

func TestInvokeClientErrorIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	outputs, err := New(testLogger()).Invoke(context.Background(), map[string]any{
		"url": server.URL,
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, outputs["status_code"])
}

func TestInvokeConnectionRefusedIsRetryable(t *testing.T) {
	_, err := New(testLogger()).Invoke(context.Background(), map[string]any{
		"url": "http://127.0.0.1:1",
	}, nil)

	require.Error(t, err)
	assert.False(t, capability.IsConfiguration(err))
}

func TestInvokeMissingURL(t *testing.T) {
	_, err := New(testLogger()).Invoke(context.Background(), map[string]any{}, nil)
	require.Error(t, err)
	assert.True(t, capability.IsConfiguration(err))
}
