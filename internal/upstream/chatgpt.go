package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/roelfdiedericks/clawgate/internal/auth"
	"github.com/roelfdiedericks/clawgate/internal/config"
	"github.com/roelfdiedericks/clawgate/internal/convert"
	"github.com/roelfdiedericks/clawgate/internal/gwerr"
	. "github.com/roelfdiedericks/clawgate/internal/logging"
	"github.com/roelfdiedericks/clawgate/internal/registry"
	"github.com/roelfdiedericks/clawgate/internal/sse"
	"github.com/roelfdiedericks/clawgate/internal/trace"
)

const chatgptResponsesURL = "https://chatgpt.com/backend-api/codex/responses"

const (
	defaultReasoningEffort  = "medium"
	defaultReasoningSummary = "auto"
)

// ChatGPTDriver talks to the ChatGPT backend Responses API using a Plus or
// Pro subscription's OAuth credentials.
type ChatGPTDriver struct {
	cfg          *config.Config
	auth         *auth.Manager
	sessions     *SessionCache
	client       *http.Client
	streamClient *http.Client
}

// NewChatGPTDriver creates the driver.
func NewChatGPTDriver(cfg *config.Config, mgr *auth.Manager) *ChatGPTDriver {
	return &ChatGPTDriver{
		cfg:          cfg,
		auth:         mgr,
		sessions:     NewSessionCache(),
		client:       newHTTPClient(cfg.ConnectTimeout(), cfg.RequestTimeout()),
		streamClient: newHTTPClient(cfg.ConnectTimeout(), cfg.StreamTimeout()),
	}
}

// BuildPayload converts an OpenAI chat request to a Responses API payload.
// The returned session ID goes into both the payload and the session_id
// header.
func (d *ChatGPTDriver) BuildPayload(req *convert.ChatRequest, res registry.Resolution) (map[string]interface{}, string) {
	inputItems := convert.ToResponsesInput(req.Messages)
	instructions := DefaultInstructions(res.BackendID)
	sessionID := d.sessions.Ensure(req.SessionID, instructions, inputItems)

	toolChoice := "auto"
	if s, ok := req.ToolChoice.(string); ok && s == "none" {
		toolChoice = "none"
	}

	payload := map[string]interface{}{
		"model":               res.BackendID,
		"input":               inputItems,
		"tools":               convert.ToResponsesTools(req.Tools),
		"tool_choice":         toolChoice,
		"parallel_tool_calls": false,
		"store":               false,
		"stream":              true,
		"prompt_cache_key":    sessionID,
	}
	if strings.TrimSpace(instructions) != "" {
		payload["instructions"] = instructions
	}

	effort := req.ReasoningEffort
	if effort == "" {
		effort = res.ReasoningLevel
	}
	if effort != "" {
		if !validEffort(effort) {
			effort = defaultReasoningEffort
		}
		payload["reasoning"] = map[string]interface{}{
			"effort":  effort,
			"summary": defaultReasoningSummary,
		}
		payload["include"] = []interface{}{"reasoning.encrypted_content"}
	}

	return payload, sessionID
}

func validEffort(effort string) bool {
	switch effort {
	case "minimal", "low", "medium", "high":
		return true
	}
	return false
}

func (d *ChatGPTDriver) setHeaders(req *http.Request, token, accountID, sessionID, accept string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	req.Header.Set("chatgpt-account-id", accountID)
	req.Header.Set("OpenAI-Beta", "responses=experimental")
	req.Header.Set("session_id", sessionID)
}

// Stream runs the Responses call and emits translated OpenAI chat chunks.
// The terminating [DONE] frame is the gateway's responsibility.
func (d *ChatGPTDriver) Stream(ctx context.Context, requestID string, payload map[string]interface{}, sessionID, model string, tr *trace.Tracer, out func(string) error) error {
	token, accountID, err := d.auth.ValidToken(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return gwerr.Clientf("body", "unencodable request: %v", err)
	}

	tr.Note("starting chatgpt stream: model=%v", payload["model"])

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, chatgptResponsesURL, bytes.NewReader(body))
	if err != nil {
		return &gwerr.TransportError{Op: "chatgpt stream", Err: err}
	}
	d.setHeaders(req, token, accountID, sessionID, "text/event-stream")

	resp, err := d.streamClient.Do(req)
	if err != nil {
		return &gwerr.TransportError{Op: "chatgpt stream", Err: err}
	}
	defer resp.Body.Close()

	tr.Note("chatgpt responded with status=%d", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		L_error("chatgpt: stream request rejected", "request_id", requestID, "status", resp.StatusCode, "body", string(raw))
		tr.Error("chatgpt error status=%d body=%s", resp.StatusCode, string(raw))
		return out(fmt.Sprintf("data: {\"error\": {\"message\": \"ChatGPT API error: %d\"}}\n\n", resp.StatusCode))
	}

	parser := sse.New()
	created := nowUnix()
	responseID := "chatcmpl-" + requestID

	emitEvents := func(events []sse.Event) error {
		for _, ev := range events {
			data := strings.TrimSpace(ev.Data)
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				tr.Note("received [DONE] from chatgpt")
				continue
			}
			var evt map[string]interface{}
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				continue
			}
			chunk := convert.TranslateResponsesEvent(evt, responseID, created, model)
			if chunk == nil {
				continue
			}
			encoded, _ := json.Marshal(chunk)
			frame := "data: " + string(encoded) + "\n\n"
			tr.ConvertedChunk(frame)
			if err := out(frame); err != nil {
				return err
			}
		}
		return nil
	}

	timeoutFrame := fmt.Sprintf("data: {\"error\": {\"message\": \"Stream timeout after %ds\"}}\n\n", d.cfg.Timeout.Stream)
	errorFrame := func(err error) string {
		encoded, _ := json.Marshal(map[string]interface{}{
			"error": map[string]interface{}{"message": "Connection closed: " + err.Error()},
		})
		return "data: " + string(encoded) + "\n\n"
	}

	relayErr := relay(ctx, resp.Body, d.cfg.ReadTimeout(), tr, func(chunk string) error {
		return emitEvents(parser.Feed(chunk))
	}, timeoutFrame, errorFrame)
	if relayErr != nil {
		return relayErr
	}
	return emitEvents(parser.Flush())
}

// StreamRaw posts a ready-made Responses payload and relays the upstream
// SSE stream verbatim. Used by the native Responses front door.
func (d *ChatGPTDriver) StreamRaw(ctx context.Context, requestID string, payload map[string]interface{}, sessionID string, tr *trace.Tracer, out func(string) error) error {
	token, accountID, err := d.auth.ValidToken(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return gwerr.Clientf("body", "unencodable request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, chatgptResponsesURL, bytes.NewReader(body))
	if err != nil {
		return &gwerr.TransportError{Op: "chatgpt responses", Err: err}
	}
	d.setHeaders(req, token, accountID, sessionID, "text/event-stream")

	resp, err := d.streamClient.Do(req)
	if err != nil {
		return &gwerr.TransportError{Op: "chatgpt responses", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return &gwerr.UpstreamStatusError{Status: resp.StatusCode, Body: raw}
	}

	timeoutFrame := fmt.Sprintf("data: {\"error\": {\"message\": \"Stream timeout after %ds\"}}\n\n", d.cfg.Timeout.Stream)
	errorFrame := func(err error) string {
		encoded, _ := json.Marshal(map[string]interface{}{
			"error": map[string]interface{}{"message": "Connection closed: " + err.Error()},
		})
		return "data: " + string(encoded) + "\n\n"
	}
	return relay(ctx, resp.Body, d.cfg.ReadTimeout(), tr, out, timeoutFrame, errorFrame)
}

// CollectResponses runs the streaming call and assembles a complete
// Responses API response object from the event stream.
func (d *ChatGPTDriver) CollectResponses(ctx context.Context, requestID string, payload map[string]interface{}, sessionID string, tr *trace.Tracer) (map[string]interface{}, error) {
	var (
		content    strings.Builder
		callOrder  []string
		calls      = map[string]map[string]string{}
		model      string
		usage      map[string]interface{}
		parser     = sse.New()
		handleFunc func(evt map[string]interface{})
	)

	handleFunc = func(evt map[string]interface{}) {
		switch evt["type"] {
		case "response.output_text.delta":
			if delta, _ := evt["delta"].(string); delta != "" {
				content.WriteString(delta)
			}
		case "response.output_text.done":
			if text, _ := evt["text"].(string); text != "" && content.Len() == 0 {
				content.WriteString(text)
			}
		case "response.output_item.added":
			if item, _ := evt["item"].(map[string]interface{}); item != nil && item["type"] == "function_call" {
				if id, _ := item["id"].(string); id != "" {
					name, _ := item["name"].(string)
					calls[id] = map[string]string{"name": name, "arguments": ""}
					callOrder = append(callOrder, id)
				}
			}
		case "response.function_call_arguments.delta":
			id, _ := evt["item_id"].(string)
			if call := calls[id]; call != nil {
				delta, _ := evt["delta"].(string)
				call["arguments"] += delta
			}
		case "response.function_call_arguments.done":
			id, _ := evt["item_id"].(string)
			if call := calls[id]; call != nil {
				if args, _ := evt["arguments"].(string); args != "" {
					call["arguments"] = args
				}
			}
		case "response.output_item.done":
			if item, _ := evt["item"].(map[string]interface{}); item != nil && item["type"] == "function_call" {
				id, _ := item["id"].(string)
				if call := calls[id]; call != nil {
					if name, _ := item["name"].(string); name != "" {
						call["name"] = name
					}
				}
			}
		case "response.completed":
			if resp, _ := evt["response"].(map[string]interface{}); resp != nil {
				if u, _ := resp["usage"].(map[string]interface{}); u != nil {
					usage = u
				}
				if m, _ := resp["model"].(string); m != "" && model == "" {
					model = m
				}
			}
		}
		if model == "" {
			if resp, _ := evt["response"].(map[string]interface{}); resp != nil {
				if m, _ := resp["model"].(string); m != "" {
					model = m
				}
			}
		}
	}

	err := d.StreamRaw(ctx, requestID, payload, sessionID, tr, func(chunk string) error {
		for _, ev := range parser.Feed(chunk) {
			data := strings.TrimSpace(ev.Data)
			if data == "" || data == "[DONE]" {
				continue
			}
			var evt map[string]interface{}
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				continue
			}
			handleFunc(evt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var output []interface{}
	if content.Len() > 0 {
		output = append(output, map[string]interface{}{
			"type":    "message",
			"role":    "assistant",
			"content": []interface{}{map[string]interface{}{"type": "text", "text": content.String()}},
		})
	}
	for _, id := range callOrder {
		call := calls[id]
		if call["name"] == "" {
			continue
		}
		output = append(output, map[string]interface{}{
			"id":        id,
			"type":      "function_call",
			"name":      call["name"],
			"arguments": call["arguments"],
		})
	}

	result := map[string]interface{}{
		"id":         "resp-" + requestID,
		"object":     "response",
		"created_at": nowUnix(),
		"model":      payload["model"],
		"output":     output,
	}
	if model != "" {
		result["model"] = model
	}
	if usage != nil {
		result["usage"] = usage
	} else {
		result["usage"] = map[string]interface{}{
			"prompt_tokens": 0, "completion_tokens": 0, "total_tokens": 0,
		}
	}
	return result, nil
}

// Collect runs the streaming call and aggregates the translated chunks into
// one chat completion. Used for non-streaming client requests; the
// Responses backend only speaks SSE reliably.
func (d *ChatGPTDriver) Collect(ctx context.Context, requestID string, payload map[string]interface{}, sessionID, model string, tr *trace.Tracer) (*convert.ChatResponse, error) {
	var (
		content      strings.Builder
		reasoning    strings.Builder
		toolCalls    []convert.ToolCall
		finishReason = "stop"
		upstreamErr  string
		usage        *convert.Usage
	)

	err := d.Stream(ctx, requestID, payload, sessionID, model, tr, func(frame string) error {
		data := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(frame), "data:"))
		if data == "" || data == "[DONE]" {
			return nil
		}
		var chunk map[string]interface{}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil
		}
		if errObj, ok := chunk["error"].(map[string]interface{}); ok {
			if msg, _ := errObj["message"].(string); msg != "" {
				upstreamErr = msg
			}
			return nil
		}
		if u, ok := chunk["usage"].(map[string]interface{}); ok {
			usage = &convert.Usage{
				PromptTokens:     intFromAny(u["prompt_tokens"]),
				CompletionTokens: intFromAny(u["completion_tokens"]),
				TotalTokens:      intFromAny(u["total_tokens"]),
			}
		}
		choices, _ := chunk["choices"].([]interface{})
		if len(choices) == 0 {
			return nil
		}
		choice, _ := choices[0].(map[string]interface{})
		if choice == nil {
			return nil
		}
		if fr, ok := choice["finish_reason"].(string); ok && fr != "" {
			finishReason = fr
		}
		delta, _ := choice["delta"].(map[string]interface{})
		if delta == nil {
			return nil
		}
		if text, ok := delta["content"].(string); ok {
			content.WriteString(text)
		}
		if text, ok := delta["reasoning_content"].(string); ok {
			reasoning.WriteString(text)
		}
		if calls, ok := delta["tool_calls"].([]interface{}); ok {
			for _, c := range calls {
				call, ok := c.(map[string]interface{})
				if !ok {
					continue
				}
				fn, _ := call["function"].(map[string]interface{})
				if fn == nil {
					continue
				}
				name, _ := fn["name"].(string)
				args, _ := fn["arguments"].(string)
				id, _ := call["id"].(string)
				toolCalls = append(toolCalls, convert.ToolCall{
					ID:       id,
					Type:     "function",
					Function: convert.FnCall{Name: name, Arguments: args},
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if upstreamErr != "" {
		return nil, &gwerr.MalformedUpstreamError{Detail: upstreamErr}
	}

	if len(toolCalls) > 0 && finishReason == "stop" {
		finishReason = "tool_calls"
	}

	msg := &convert.ResponseMessage{
		Role:             "assistant",
		Content:          content.String(),
		ToolCalls:        toolCalls,
		ReasoningContent: reasoning.String(),
	}
	return &convert.ChatResponse{
		ID:      "chatcmpl-" + requestID,
		Object:  "chat.completion",
		Created: nowUnix(),
		Model:   model,
		Choices: []convert.ChatChoice{{Index: 0, Message: msg, FinishReason: finishReason}},
		Usage:   usage,
	}, nil
}

func intFromAny(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}
