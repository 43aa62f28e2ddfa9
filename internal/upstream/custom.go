package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/roelfdiedericks/clawgate/internal/config"
	"github.com/roelfdiedericks/clawgate/internal/gwerr"
	. "github.com/roelfdiedericks/clawgate/internal/logging"
	"github.com/roelfdiedericks/clawgate/internal/trace"
)

// CustomDriver forwards OpenAI-format requests to a user-configured
// OpenAI-compatible endpoint. Bodies pass through untouched apart from the
// model id swap done by the caller.
type CustomDriver struct {
	cfg          *config.Config
	client       *http.Client
	streamClient *http.Client
}

// NewCustomDriver creates the driver.
func NewCustomDriver(cfg *config.Config) *CustomDriver {
	return &CustomDriver{
		cfg:          cfg,
		client:       newHTTPClient(cfg.ConnectTimeout(), cfg.RequestTimeout()),
		streamClient: newHTTPClient(cfg.ConnectTimeout(), cfg.StreamTimeout()),
	}
}

// endpoint appends /chat/completions unless the base URL already ends in it.
func endpoint(baseURL string) string {
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return strings.TrimSuffix(baseURL, "/") + "/chat/completions"
}

// Do sends a non-streaming request and returns the raw response body.
// The provider's body is returned verbatim; it is already OpenAI-shaped.
func (d *CustomDriver) Do(ctx context.Context, requestID string, body map[string]interface{}, baseURL, apiKey string) ([]byte, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, gwerr.Clientf("body", "unencodable request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(baseURL), bytes.NewReader(payload))
	if err != nil {
		return nil, 0, &gwerr.TransportError{Op: "custom provider request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, &gwerr.TransportError{Op: "custom provider request", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &gwerr.TransportError{Op: "custom provider response read", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		L_warn("custom: upstream error", "request_id", requestID, "status", resp.StatusCode, "body", string(raw))
	}
	return raw, resp.StatusCode, nil
}

// Stream relays the provider's SSE stream verbatim. Non-200 responses and
// mid-stream failures become synthetic error events.
func (d *CustomDriver) Stream(ctx context.Context, requestID string, body map[string]interface{}, baseURL, apiKey string, tr *trace.Tracer, out func(string) error) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return gwerr.Clientf("body", "unencodable request: %v", err)
	}

	url := endpoint(baseURL)
	tr.Note("starting custom provider stream to %s", url)
	tr.Note("model=%v", body["model"])

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &gwerr.TransportError{Op: "custom provider stream", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := d.streamClient.Do(req)
	if err != nil {
		return &gwerr.TransportError{Op: "custom provider stream", Err: err}
	}
	defer resp.Body.Close()

	tr.Note("custom provider responded with status=%d", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		L_error("custom: stream request rejected", "request_id", requestID, "status", resp.StatusCode, "body", string(raw))
		tr.Error("custom provider error status=%d body=%s", resp.StatusCode, string(raw))
		return out(fmt.Sprintf("event: error\ndata: %s\n\n", string(raw)))
	}

	timeoutFrame := fmt.Sprintf("event: error\ndata: {\"error\": \"Stream timeout after %ds\"}\n\n", d.cfg.Timeout.Stream)
	errorFrame := func(err error) string {
		encoded, _ := json.Marshal(map[string]string{"error": "Connection closed: " + err.Error()})
		return fmt.Sprintf("event: error\ndata: %s\n\n", encoded)
	}
	return relay(ctx, resp.Body, d.cfg.ReadTimeout(), tr, out, timeoutFrame, errorFrame)
}
