package convert

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	. "github.com/roelfdiedericks/clawgate/internal/logging"
	"github.com/roelfdiedericks/clawgate/internal/sse"
	"github.com/roelfdiedericks/clawgate/internal/thinkcache"
)

// DoneFrame terminates every OpenAI-style stream exactly once.
const DoneFrame = "data: [DONE]\n\n"

// toolCallState buffers one tool_use block until its arguments are
// complete. Partial JSON must never reach the client.
type toolCallState struct {
	openaiIndex int
	id          string
	name        string
	arguments   strings.Builder
}

// thinkingAccumulator collects a thinking block's text and signature so the
// finished block can be cached against the turn's tool_use ids.
type thinkingAccumulator struct {
	blockType string
	thinking  strings.Builder
	signature string
}

// StreamConverter turns an Anthropic SSE event stream into OpenAI chat
// completion chunks. All state is request-scoped; create one per stream.
type StreamConverter struct {
	completionID string
	created      int64
	model        string
	requestID    string
	cache        *thinkcache.Cache

	toolCalls     map[int]*toolCallState
	nextToolIndex int
	thinking      map[int]*thinkingAccumulator
	toolUseIDs    []string
	finished      bool
}

// NewStreamConverter creates a converter for one request. cache may be nil
// when thinking continuity is not wanted (collect-only paths).
func NewStreamConverter(model, requestID string, cache *thinkcache.Cache) *StreamConverter {
	return &StreamConverter{
		completionID: fmt.Sprintf("chatcmpl-%d", time.Now().Unix()),
		created:      time.Now().Unix(),
		model:        model,
		requestID:    requestID,
		cache:        cache,
		toolCalls:    make(map[int]*toolCallState),
		thinking:     make(map[int]*thinkingAccumulator),
	}
}

// Finished reports whether the stream has reached its terminal event.
func (c *StreamConverter) Finished() bool { return c.finished }

// HandleEvent consumes one upstream SSE event and returns zero or more
// outbound SSE frames, each a complete "data: ...\n\n" string.
func (c *StreamConverter) HandleEvent(ev sse.Event) []string {
	raw := strings.TrimSpace(ev.Data)
	if raw == "" || ev.Event == "ping" {
		return nil
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		L_warn("stream: undecodable SSE data", "request_id", c.requestID, "data", truncateForLog(raw))
		return nil
	}

	eventType := stringOr(data["type"], ev.Event)
	switch eventType {
	case "ping":
		return nil
	case "message_start":
		return []string{c.chunk(map[string]interface{}{"role": "assistant", "content": ""}, nil)}
	case "content_block_start":
		return c.handleBlockStart(data)
	case "content_block_delta":
		return c.handleBlockDelta(data)
	case "content_block_stop":
		return c.handleBlockStop(data)
	case "message_delta":
		return c.handleMessageDelta(data)
	case "message_stop":
		c.persistThinking()
		c.finished = true
		return nil
	case "error":
		c.finished = true
		return []string{c.errorFrame(data["error"])}
	}
	return nil
}

func (c *StreamConverter) handleBlockStart(data map[string]interface{}) []string {
	block, _ := data["content_block"].(map[string]interface{})
	index, ok := indexOf(data)
	if block == nil || !ok {
		return nil
	}

	switch block["type"] {
	case "tool_use":
		state := &toolCallState{
			openaiIndex: c.nextToolIndex,
			id:          stringOr(block["id"], ""),
			name:        stringOr(block["name"], ""),
		}
		c.toolCalls[index] = state
		c.nextToolIndex++
		if state.id != "" {
			c.toolUseIDs = append(c.toolUseIDs, state.id)
		}
		return []string{c.chunk(map[string]interface{}{
			"tool_calls": []interface{}{map[string]interface{}{
				"index": state.openaiIndex,
				"id":    state.id,
				"type":  "function",
				"function": map[string]interface{}{
					"name":      state.name,
					"arguments": "",
				},
			}},
		}, nil)}
	case "thinking", "redacted_thinking":
		acc := &thinkingAccumulator{blockType: stringOr(block["type"], "thinking")}
		acc.signature = stringOr(block["signature"], "")
		c.thinking[index] = acc
	}
	return nil
}

func (c *StreamConverter) handleBlockDelta(data map[string]interface{}) []string {
	delta, _ := data["delta"].(map[string]interface{})
	if delta == nil {
		return nil
	}

	switch delta["type"] {
	case "text_delta":
		if text := stringOr(delta["text"], ""); text != "" {
			return []string{c.chunk(map[string]interface{}{"content": text}, nil)}
		}
	case "input_json_delta":
		index, ok := indexOf(data)
		if !ok {
			return nil
		}
		state := c.toolCalls[index]
		if state == nil {
			L_warn("stream: input_json_delta for unknown tool block", "request_id", c.requestID, "index", index)
			return nil
		}
		// Buffer only. Arguments go out in one piece at content_block_stop;
		// streaming partial JSON corrupts tolerant clients.
		state.arguments.WriteString(stringOr(delta["partial_json"], ""))
	case "thinking_delta", "redacted_thinking_delta":
		index, ok := indexOf(data)
		if !ok {
			return nil
		}
		acc := c.thinking[index]
		if acc == nil {
			acc = &thinkingAccumulator{blockType: stringOr(delta["type"], "thinking")}
			c.thinking[index] = acc
		}
		text := stringOr(delta["text"], "")
		if text == "" {
			text = stringOr(delta["thinking"], "")
		}
		if text == "" {
			text = stringOr(delta["partial_text"], "")
		}
		if text != "" {
			acc.thinking.WriteString(text)
			return []string{c.chunk(map[string]interface{}{"reasoning_content": text}, nil)}
		}
	case "signature_delta":
		index, ok := indexOf(data)
		if !ok {
			return nil
		}
		if acc := c.thinking[index]; acc != nil {
			acc.signature += stringOr(delta["signature"], "")
		}
	}
	return nil
}

func (c *StreamConverter) handleBlockStop(data map[string]interface{}) []string {
	index, ok := indexOf(data)
	if !ok {
		return nil
	}

	var frames []string
	if state := c.toolCalls[index]; state != nil && state.arguments.Len() > 0 {
		frames = append(frames, c.chunk(map[string]interface{}{
			"tool_calls": []interface{}{map[string]interface{}{
				"index": state.openaiIndex,
				"id":    state.id,
				"type":  "function",
				"function": map[string]interface{}{
					"name":      state.name,
					"arguments": state.arguments.String(),
				},
			}},
		}, nil))
	}
	delete(c.toolCalls, index)
	return frames
}

func (c *StreamConverter) handleMessageDelta(data map[string]interface{}) []string {
	delta, _ := data["delta"].(map[string]interface{})
	if delta == nil {
		return nil
	}
	stopReason := stringOr(delta["stop_reason"], "")
	if stopReason == "" {
		return nil
	}
	finish := MapStopReason(stopReason)
	return []string{c.chunk(map[string]interface{}{}, &finish)}
}

// persistThinking stores the first signed thinking block against every
// tool_use id of this assistant turn, so the next request can re-prepend it.
func (c *StreamConverter) persistThinking() {
	if c.cache == nil || len(c.toolUseIDs) == 0 {
		c.toolUseIDs = nil
		c.thinking = make(map[int]*thinkingAccumulator)
		return
	}

	var saved *thinkcache.Block
	for _, acc := range c.thinking {
		if acc.thinking.Len() > 0 && strings.TrimSpace(acc.signature) != "" {
			saved = &thinkcache.Block{
				Thinking:  acc.thinking.String(),
				Signature: acc.signature,
				Redacted:  acc.blockType == "redacted_thinking",
			}
			break
		}
	}
	if saved != nil {
		for _, id := range c.toolUseIDs {
			c.cache.Put(id, *saved)
		}
		L_debug("stream: cached signed thinking", "request_id", c.requestID, "tool_use_ids", len(c.toolUseIDs))
	}

	c.toolUseIDs = nil
	c.thinking = make(map[int]*thinkingAccumulator)
}

// chunk builds one outbound chat.completion.chunk frame.
func (c *StreamConverter) chunk(delta map[string]interface{}, finishReason *string) string {
	var finish interface{}
	if finishReason != nil {
		finish = *finishReason
	}
	payload := map[string]interface{}{
		"id":      c.completionID,
		"object":  "chat.completion.chunk",
		"created": c.created,
		"model":   c.model,
		"choices": []interface{}{map[string]interface{}{
			"index":         0,
			"delta":         delta,
			"finish_reason": finish,
		}},
	}
	encoded, _ := json.Marshal(payload)
	return "data: " + string(encoded) + "\n\n"
}

// errorFrame shapes an upstream error event as an OpenAI error chunk.
// The error value can be a plain string or a structured object.
func (c *StreamConverter) errorFrame(errValue interface{}) string {
	message := "Unknown error"
	errType := "api_error"
	switch v := errValue.(type) {
	case string:
		message = v
	case map[string]interface{}:
		message = stringOr(v["message"], message)
		errType = stringOr(v["type"], errType)
	case nil:
	default:
		message = fmt.Sprintf("%v", v)
	}

	payload := map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    errType,
		},
	}
	encoded, _ := json.Marshal(payload)
	return "data: " + string(encoded) + "\n\n"
}

func indexOf(data map[string]interface{}) (int, bool) {
	if n, ok := data["index"].(float64); ok {
		return int(n), true
	}
	return 0, false
}

func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
