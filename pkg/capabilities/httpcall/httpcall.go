// Package httpcall provides the built-in HTTP request capability used by
// execute and verify steps to call external services.
package httpcall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/maestro-flow/maestro/pkg/capability"
	"github.com/maestro-flow/maestro/pkg/models"
)

// Address is where the capability registers itself.
var Address = capability.Address{Agent: "maestro", Service: "core", Action: "http_request"}

const defaultTimeout = 30 * time.Second

type Capability struct {
	logger *slog.Logger
	client *http.Client
}

func New(logger *slog.Logger) *Capability {
	return &Capability{
		logger: logger.With("module", "http_capability"),
		client: &http.Client{Timeout: defaultTimeout},
	}
}

// Entry returns the registry entry including the parameter schema.
func Entry(logger *slog.Logger) capability.Entry {
	return capability.Entry{
		Address:     Address,
		Description: "Perform an HTTP request and return status, headers, and decoded body",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url":     map[string]any{"type": "string"},
				"method":  map[string]any{"type": "string"},
				"headers": map[string]any{"type": "object"},
				"body":    map[string]any{"type": "string"},
			},
			"required": []any{"url"},
		},
		Capability: New(logger),
	}
}

func (c *Capability) Invoke(ctx context.Context, params map[string]any, _ models.OutputSet) (models.OutputMap, error) {
	url, ok := params["url"].(string)
	if !ok || url == "" {
		return nil, capability.Configurationf("http capability requires a 'url' string parameter")
	}

	method, _ := params["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	method = strings.ToUpper(method)

	body, _ := params["body"].(string)

	req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(body))
	if err != nil {
		return nil, capability.Configurationf("failed to build http request: %v", err)
	}

	if headers, ok := params["headers"].(map[string]any); ok {
		for key, value := range headers {
			req.Header.Set(key, fmt.Sprintf("%v", value))
		}
	}

	c.logger.DebugContext(ctx, "Performing HTTP request", "method", method, "url", url)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, capability.Retryable(fmt.Errorf("http request failed: %w", err))
	}

	return c.processResponse(ctx, resp)
}

func (c *Capability) processResponse(ctx context.Context, resp *http.Response) (models.OutputMap, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, capability.Retryable(fmt.Errorf("failed to read response body: %w", err))
	}

	// 5xx responses are transient from the caller's point of view; the
	// step's retry policy decides whether to try again.
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, capability.Retryable(fmt.Errorf("server returned status %d", resp.StatusCode))
	}

	var body any
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		body = string(bodyBytes)
	}

	c.logger.InfoContext(ctx, "HTTP request completed",
		"status", resp.StatusCode,
		"body_length", len(bodyBytes),
	)

	return models.OutputMap{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     flattenHeaders(resp.Header),
	}, nil
}

func flattenHeaders(header http.Header) map[string]any {
	flat := make(map[string]any, len(header))
	for key := range header {
		flat[key] = header.Get(key)
	}

	return flat
}

var _ capability.Capability = (*Capability)(nil)
