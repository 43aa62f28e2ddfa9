package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/roelfdiedericks/clawgate/internal/auth"
	"github.com/roelfdiedericks/clawgate/internal/config"
	"github.com/roelfdiedericks/clawgate/internal/gwerr"
	. "github.com/roelfdiedericks/clawgate/internal/logging"
	"github.com/roelfdiedericks/clawgate/internal/shaper"
	"github.com/roelfdiedericks/clawgate/internal/trace"
)

const anthropicMessagesURL = "https://api.anthropic.com/v1/messages"

// Headers that make requests indistinguishable from the official CLI.
// OAuth tokens are rejected without them.
const (
	anthropicUserAgent = "claude-cli/1.0.113 (external, cli)"
	anthropicXApp      = "cli"
	anthropicVersion   = "2023-06-01"
)

var stainlessHeaders = map[string]string{
	"X-Stainless-Retry-Count":     "0",
	"X-Stainless-Timeout":         "600",
	"X-Stainless-Lang":            "js",
	"X-Stainless-Package-Version": "0.60.0",
	"X-Stainless-OS":              "Windows",
	"X-Stainless-Arch":            "x64",
	"X-Stainless-Runtime":         "node",
	"X-Stainless-Runtime-Version": "v22.19.0",
	"x-stainless-helper-method":   "stream",
}

// AnthropicDriver talks to the Anthropic messages API with OAuth
// credentials and CLI spoof headers.
type AnthropicDriver struct {
	cfg          *config.Config
	auth         *auth.Manager
	client       *http.Client
	streamClient *http.Client
}

// NewAnthropicDriver creates the driver. Timeouts come from config.
func NewAnthropicDriver(cfg *config.Config, mgr *auth.Manager) *AnthropicDriver {
	return &AnthropicDriver{
		cfg:          cfg,
		auth:         mgr,
		client:       newHTTPClient(cfg.ConnectTimeout(), cfg.RequestTimeout()),
		streamClient: newHTTPClient(cfg.ConnectTimeout(), cfg.StreamTimeout()),
	}
}

func (d *AnthropicDriver) setHeaders(req *http.Request, token, betaHeader string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("x-app", anthropicXApp)
	req.Header.Set("User-Agent", anthropicUserAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-beta", betaHeader)
	req.Header.Set("anthropic-dangerous-direct-browser-access", "true")
	req.Header.Set("accept-language", "*")
	req.Header.Set("sec-fetch-mode", "cors")
	for k, v := range stainlessHeaders {
		req.Header.Set(k, v)
	}
}

// Do sends a shaped non-streaming request and returns the decoded response.
// Non-2xx statuses surface as UpstreamStatusError with the raw body.
func (d *AnthropicDriver) Do(ctx context.Context, body map[string]interface{}, clientBetas string) (map[string]interface{}, error) {
	token, _, err := d.auth.ValidToken(ctx)
	if err != nil {
		return nil, err
	}

	betaHeader := shaper.BetaHeaders(body, clientBetas, false)
	delete(body, shaper.Use1MContextKey)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, gwerr.Clientf("body", "unencodable request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicMessagesURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &gwerr.TransportError{Op: "anthropic request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	d.setHeaders(req, token, betaHeader)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &gwerr.TransportError{Op: "anthropic request", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &gwerr.TransportError{Op: "anthropic response read", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		L_warn("anthropic: upstream error", "status", resp.StatusCode, "body", string(raw))
		return nil, &gwerr.UpstreamStatusError{Status: resp.StatusCode, Body: raw}
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &gwerr.MalformedUpstreamError{Detail: fmt.Sprintf("undecodable messages response: %v", err)}
	}
	return decoded, nil
}

// Stream sends a shaped streaming request and relays raw SSE chunks to out.
// Upstream failures after the stream opens become synthetic error events so
// the client connection stays protocol-clean.
func (d *AnthropicDriver) Stream(ctx context.Context, requestID string, body map[string]interface{}, clientBetas string, tr *trace.Tracer, out func(string) error) error {
	token, _, err := d.auth.ValidToken(ctx)
	if err != nil {
		return err
	}

	betaHeader := shaper.BetaHeaders(body, clientBetas, true)
	delete(body, shaper.Use1MContextKey)

	payload, err := json.Marshal(body)
	if err != nil {
		return gwerr.Clientf("body", "unencodable request: %v", err)
	}

	tr.Note("starting anthropic stream: model=%v", body["model"])
	tr.Note("anthropic beta header=%s", betaHeader)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicMessagesURL, bytes.NewReader(payload))
	if err != nil {
		return &gwerr.TransportError{Op: "anthropic stream", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	d.setHeaders(req, token, betaHeader)

	resp, err := d.streamClient.Do(req)
	if err != nil {
		return &gwerr.TransportError{Op: "anthropic stream", Err: err}
	}
	defer resp.Body.Close()

	tr.Note("anthropic responded with status=%d", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		L_error("anthropic: stream request rejected", "request_id", requestID, "status", resp.StatusCode, "body", string(raw))
		tr.Error("anthropic error status=%d body=%s", resp.StatusCode, string(raw))
		return out(fmt.Sprintf("event: error\ndata: %s\n\n", string(raw)))
	}

	timeoutFrame := fmt.Sprintf("event: error\ndata: {\"error\": \"Stream timeout after %ds\"}\n\n", d.cfg.Timeout.Stream)
	errorFrame := func(err error) string {
		encoded, _ := json.Marshal(map[string]string{"error": "Connection closed: " + err.Error()})
		return fmt.Sprintf("event: error\ndata: %s\n\n", encoded)
	}
	return relay(ctx, resp.Body, d.cfg.ReadTimeout(), tr, out, timeoutFrame, errorFrame)
}
