package foldset

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
)

// buildEventPayload assembles one telemetry event from the request
func buildEventPayload(adapter RequestAdapter, statusCode int, requestID, paymentResponse string) EventPayload {
	rawURL := adapter.GetURL()

	payload := EventPayload{
		Method:          adapter.GetMethod(),
		StatusCode:      statusCode,
		UserAgent:       adapter.GetUserAgent(),
		Referer:         adapter.GetHeader("referer"),
		Href:            rawURL,
		IPAddress:       adapter.GetIPAddress(),
		RequestID:       requestID,
		PaymentResponse: paymentResponse,
	}

	if parsed, err := url.Parse(rawURL); err == nil {
		payload.Hostname = parsed.Hostname()
		payload.Pathname = parsed.Path
		payload.Search = parsed.RawQuery
	}

	return payload
}

// postJSON fires one authenticated JSON POST against the Foldset API.
// Telemetry is best-effort: failures are logged at debug and swallowed.
func (c *WorkerCore) postJSON(ctx context.Context, path string, body interface{}) {
	encoded, err := json.Marshal(body)
	if err != nil {
		c.logger.Debug("telemetry payload encode failed", "path", path, "error", err)
		return
	}

	// Outlives the request that triggered it
	ctx = context.WithoutCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		c.logger.Debug("telemetry request build failed", "path", path, "error", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("telemetry post failed", "path", path, "error", err)
		return
	}
	resp.Body.Close()
}

// logEvent records one request outcome. Fire and forget.
func (c *WorkerCore) logEvent(ctx context.Context, adapter RequestAdapter, statusCode int, requestID, paymentResponse string) {
	payload := buildEventPayload(adapter, statusCode, requestID, paymentResponse)
	go c.postJSON(ctx, "/v1/events", payload)
}

// ReportError reports a processing failure to the Foldset API, with request
// context when an adapter is available. Fire and forget.
func (c *WorkerCore) ReportError(ctx context.Context, processingErr error, adapter RequestAdapter) {
	report := ErrorReport{
		Error: processingErr.Error(),
		Stack: fmt.Sprintf("%s\n%s", processingErr.Error(), debug.Stack()),
	}

	if adapter != nil {
		report.Context = map[string]interface{}{
			"method":     adapter.GetMethod(),
			"path":       adapter.GetPath(),
			"hostname":   adapter.GetHost(),
			"user_agent": adapter.GetUserAgent(),
			"ip_address": adapter.GetIPAddress(),
		}
	}

	go c.postJSON(ctx, "/v1/errors", report)
}
