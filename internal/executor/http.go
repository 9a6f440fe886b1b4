package executor

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"sagaorchestrator/internal/saga"
)

// HTTPExecutor executes HTTP_CALL steps. Config recognizes: http_method,
// url, headers (map[string]string), request_body_template (string),
// expected_status_codes ([]int, default 2xx).
type HTTPExecutor struct {
	client *http.Client
}

// NewHTTPExecutor returns an executor using client, or http.DefaultClient
// if nil. The circuit breaker sits above this executor (in the engine's
// dispatch path, keyed by the request's URL host) rather than inside it,
// so the executor itself stays a thin, swappable adapter.
func NewHTTPExecutor(client *http.Client) *HTTPExecutor {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPExecutor{client: client}
}

func (e *HTTPExecutor) Execute(ctx context.Context, step *saga.Step, sagaInput map[string]interface{}) Result {
	start := time.Now()

	method, _ := step.Config["http_method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	rawURL, _ := step.Config["url"].(string)
	if rawURL == "" {
		return Result{Success: false, ErrorMessage: "http_call step missing url", Duration: time.Since(start)}
	}

	var body io.Reader
	if b, ok := step.Config["request_body_template"].(string); ok && b != "" {
		body = bytes.NewBufferString(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return Result{Success: false, ErrorMessage: "build request: " + err.Error(), Duration: time.Since(start)}
	}
	if headers, ok := step.Config["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Result{Success: false, ErrorMessage: "request failed: " + err.Error(), Duration: time.Since(start)}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	duration := time.Since(start)

	if !isSuccessStatus(resp.StatusCode, step.Config) {
		return Result{
			Success:      false,
			ErrorMessage: "http call returned non-success status",
			ErrorTrace:   string(respBody),
			Duration:     duration,
		}
	}

	return Result{
		Success: true,
		Output: map[string]interface{}{
			"status_code": resp.StatusCode,
			"body":        string(respBody),
		},
		Duration: duration,
	}
}

func isSuccessStatus(code int, config saga.StepConfig) bool {
	if raw, ok := config["expected_status_codes"].([]interface{}); ok && len(raw) > 0 {
		for _, c := range raw {
			if n, ok := c.(int); ok && n == code {
				return true
			}
			if f, ok := c.(float64); ok && int(f) == code {
				return true
			}
		}
		return false
	}
	return code >= 200 && code < 300
}

// ServiceIdentity extracts the circuit-breaker/rate-limiter service
// identity for an HTTP_CALL step: the URL host (§4.2, §4.5).
func ServiceIdentity(step *saga.Step) string {
	rawURL, _ := step.Config["url"].(string)
	if rawURL == "" {
		return "unknown"
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
