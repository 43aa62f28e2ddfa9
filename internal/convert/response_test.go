package convert

import (
	"testing"

	"github.com/roelfdiedericks/clawgate/internal/thinkcache"
)

func TestFromAnthropicText(t *testing.T) {
	resp := map[string]interface{}{
		"id": "msg_123",
		"content": []interface{}{
			map[string]interface{}{"type": "text", "text": "Hello "},
			map[string]interface{}{"type": "text", "text": "world"},
		},
		"stop_reason": "end_turn",
		"usage": map[string]interface{}{
			"input_tokens":  float64(10),
			"output_tokens": float64(5),
		},
	}

	out := FromAnthropic(resp, "sonnet-4-5", nil)

	if out.ID != "chatcmpl-msg_123" || out.Object != "chat.completion" || out.Model != "sonnet-4-5" {
		t.Errorf("envelope = %+v", out)
	}
	if len(out.Choices) != 1 {
		t.Fatalf("choices = %d", len(out.Choices))
	}
	choice := out.Choices[0]
	if choice.FinishReason != "stop" {
		t.Errorf("finish_reason = %q", choice.FinishReason)
	}
	if choice.Message.Content != "Hello world" {
		t.Errorf("content = %v", choice.Message.Content)
	}
	if out.Usage == nil || out.Usage.PromptTokens != 10 || out.Usage.CompletionTokens != 5 || out.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", out.Usage)
	}
}

func TestFromAnthropicToolUse(t *testing.T) {
	resp := map[string]interface{}{
		"id": "msg_1",
		"content": []interface{}{
			map[string]interface{}{
				"type":  "tool_use",
				"id":    "toolu_1",
				"name":  "get_weather",
				"input": map[string]interface{}{"city": "Oslo"},
			},
		},
		"stop_reason": "tool_use",
	}

	out := FromAnthropic(resp, "sonnet-4-5", nil)
	choice := out.Choices[0]

	if choice.FinishReason != "tool_calls" {
		t.Errorf("finish_reason = %q", choice.FinishReason)
	}
	if len(choice.Message.ToolCalls) != 1 {
		t.Fatalf("tool_calls = %d", len(choice.Message.ToolCalls))
	}
	call := choice.Message.ToolCalls[0]
	if call.ID != "toolu_1" || call.Type != "function" || call.Function.Name != "get_weather" {
		t.Errorf("call = %+v", call)
	}
	if call.Function.Arguments != `{"city":"Oslo"}` {
		t.Errorf("arguments = %q", call.Function.Arguments)
	}
	if choice.Message.Content != nil {
		t.Errorf("content = %v, want nil when no text blocks", choice.Message.Content)
	}
}

func TestFromAnthropicThinking(t *testing.T) {
	resp := map[string]interface{}{
		"id": "msg_1",
		"content": []interface{}{
			map[string]interface{}{"type": "thinking", "thinking": "planning the answer", "signature": "sig"},
			map[string]interface{}{"type": "text", "text": "The answer."},
		},
		"stop_reason": "end_turn",
		"usage": map[string]interface{}{
			"input_tokens":  float64(20),
			"output_tokens": float64(30),
		},
	}

	out := FromAnthropic(resp, "sonnet-4-5-reasoning-high", nil)
	msg := out.Choices[0].Message

	if msg.ReasoningContent != "planning the answer" {
		t.Errorf("reasoning_content = %q", msg.ReasoningContent)
	}
	if len(msg.ThinkingBlocks) != 1 {
		t.Errorf("thinking_blocks = %d", len(msg.ThinkingBlocks))
	}
	if msg.Content != "The answer." {
		t.Errorf("content = %v", msg.Content)
	}
	if out.Usage.CompletionDetail == nil || out.Usage.CompletionDetail.ReasoningTokens == 0 {
		t.Errorf("reasoning token estimate missing: %+v", out.Usage)
	}
}

func TestFromAnthropicCachesSignedThinking(t *testing.T) {
	cache := thinkcache.New()
	resp := map[string]interface{}{
		"id": "msg_1",
		"content": []interface{}{
			map[string]interface{}{"type": "thinking", "thinking": "reading the file first", "signature": "sig_abc"},
			map[string]interface{}{"type": "tool_use", "id": "toolu_1", "name": "read_file", "input": map[string]interface{}{}},
			map[string]interface{}{"type": "tool_use", "id": "toolu_2", "name": "list_dir", "input": map[string]interface{}{}},
		},
		"stop_reason": "tool_use",
	}

	FromAnthropic(resp, "sonnet-4-5-reasoning-medium", cache)

	for _, id := range []string{"toolu_1", "toolu_2"} {
		block, ok := cache.Get(id)
		if !ok {
			t.Fatalf("no cached thinking for %s", id)
		}
		if block.Signature != "sig_abc" || block.Thinking != "reading the file first" {
			t.Errorf("cached block for %s = %+v", id, block)
		}
	}
}

func TestFromAnthropicSkipsUnsignedThinking(t *testing.T) {
	cache := thinkcache.New()
	resp := map[string]interface{}{
		"id": "msg_1",
		"content": []interface{}{
			map[string]interface{}{"type": "thinking", "thinking": "no signature here"},
			map[string]interface{}{"type": "tool_use", "id": "toolu_1", "name": "read_file", "input": map[string]interface{}{}},
		},
		"stop_reason": "tool_use",
	}

	FromAnthropic(resp, "sonnet-4-5", cache)

	if cache.Len() != 0 {
		t.Errorf("unsigned thinking was cached, entries = %d", cache.Len())
	}
}

func TestEncodeToolInput(t *testing.T) {
	if got := encodeToolInput(nil); got != "{}" {
		t.Errorf("nil input = %q", got)
	}
	if got := encodeToolInput(map[string]interface{}{"a": float64(1)}); got != `{"a":1}` {
		t.Errorf("got %q", got)
	}
}
