package convert

import (
	"encoding/base64"
	"testing"
)

func TestToResponsesInput(t *testing.T) {
	msgs := []ChatMessage{
		{Role: "system", Content: "ignored here"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there", ToolCalls: []ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: FnCall{Name: "lookup", Arguments: `{"q":"x"}`},
		}}},
		{Role: "tool", ToolCallID: "call_1", Content: "result text"},
	}

	items := ToResponsesInput(msgs)
	if len(items) != 4 {
		t.Fatalf("got %d items, want 4", len(items))
	}

	if items[0]["type"] != "message" || items[0]["role"] != "user" {
		t.Errorf("item 0 = %v", items[0])
	}
	content := items[0]["content"].([]interface{})
	part := content[0].(map[string]interface{})
	if part["type"] != "input_text" || part["text"] != "hello" {
		t.Errorf("user part = %v", part)
	}

	// Assistant tool calls come before the assistant message item.
	if items[1]["type"] != "function_call" || items[1]["call_id"] != "call_1" || items[1]["name"] != "lookup" {
		t.Errorf("item 1 = %v", items[1])
	}

	if items[2]["type"] != "message" || items[2]["role"] != "assistant" {
		t.Errorf("item 2 = %v", items[2])
	}
	part = items[2]["content"].([]interface{})[0].(map[string]interface{})
	if part["type"] != "output_text" || part["text"] != "hi there" {
		t.Errorf("assistant part = %v", part)
	}

	if items[3]["type"] != "function_call_output" || items[3]["call_id"] != "call_1" || items[3]["output"] != "result text" {
		t.Errorf("item 3 = %v", items[3])
	}
}

func TestToResponsesInputSkipsBrokenToolItems(t *testing.T) {
	items := ToResponsesInput([]ChatMessage{
		{Role: "tool", Content: "orphan result"},
		{Role: "assistant", ToolCalls: []ToolCall{
			{ID: "", Function: FnCall{Name: "f"}},
			{ID: "call_2", Function: FnCall{Name: ""}},
			{ID: "call_3", Type: "custom", Function: FnCall{Name: "f"}},
		}},
	})
	if len(items) != 0 {
		t.Errorf("got %d items, want 0: %v", len(items), items)
	}
}

func TestToResponsesInputImages(t *testing.T) {
	data := base64.StdEncoding.EncodeToString([]byte("fakeimagebytes"))
	items := ToResponsesInput([]ChatMessage{
		{Role: "user", Content: []interface{}{
			map[string]interface{}{"type": "text", "text": "look"},
			map[string]interface{}{
				"type":      "image_url",
				"image_url": map[string]interface{}{"url": "data:image/png;base64," + data},
			},
		}},
	})
	if len(items) != 1 {
		t.Fatalf("got %d items", len(items))
	}
	content := items[0]["content"].([]interface{})
	if len(content) != 2 {
		t.Fatalf("got %d parts", len(content))
	}
	img := content[1].(map[string]interface{})
	if img["type"] != "input_image" {
		t.Errorf("image part = %v", img)
	}
	if img["image_url"] != "data:image/png;base64,"+data {
		t.Errorf("image_url = %v", img["image_url"])
	}
}

func TestNormalizeImageDataURL(t *testing.T) {
	valid := base64.StdEncoding.EncodeToString([]byte("hello world"))
	urlSafe := base64.RawURLEncoding.EncodeToString([]byte{0xfb, 0xff, 0xfe, 0x01, 0x02})
	fixed := base64.StdEncoding.EncodeToString([]byte{0xfb, 0xff, 0xfe, 0x01, 0x02})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already valid", "data:image/png;base64," + valid, "data:image/png;base64," + valid},
		{"url-safe alphabet repaired", "data:image/png;base64," + urlSafe, "data:image/png;base64," + fixed},
		{"embedded newlines removed", "data:image/jpeg;base64," + valid[:4] + "\n" + valid[4:], "data:image/jpeg;base64," + valid},
		{"not a data url", "https://example.com/a.png", "https://example.com/a.png"},
		{"not base64 marker", "data:image/svg+xml,<svg/>", "data:image/svg+xml,<svg/>"},
		{"undecodable passthrough", "data:image/png;base64,!!!", "data:image/png;base64,!!!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeImageDataURL(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToResponsesTools(t *testing.T) {
	tools := ToResponsesTools([]map[string]interface{}{
		{"type": "function", "function": map[string]interface{}{
			"name":        "lookup",
			"description": "Find things",
			"parameters":  map[string]interface{}{"type": "object"},
		}},
		{"type": "function", "function": map[string]interface{}{"name": "bare"}},
		{"type": "web_search"},
	})

	if len(tools) != 2 {
		t.Fatalf("got %d tools, want 2", len(tools))
	}
	if tools[0]["type"] != "function" || tools[0]["name"] != "lookup" || tools[0]["strict"] != false {
		t.Errorf("tool 0 = %v", tools[0])
	}
	params, ok := tools[1]["parameters"].(map[string]interface{})
	if !ok || params["type"] != "object" {
		t.Errorf("default parameters = %v", tools[1]["parameters"])
	}
}

func TestTranslateResponsesEvent(t *testing.T) {
	translate := func(evt map[string]interface{}) map[string]interface{} {
		return TranslateResponsesEvent(evt, "chatcmpl-1", 1700000000, "gpt-5")
	}
	delta := func(chunk map[string]interface{}) map[string]interface{} {
		choice := chunk["choices"].([]interface{})[0].(map[string]interface{})
		return choice["delta"].(map[string]interface{})
	}

	t.Run("output text", func(t *testing.T) {
		chunk := translate(map[string]interface{}{"type": "response.output_text.delta", "delta": "Hi"})
		if chunk == nil || delta(chunk)["content"] != "Hi" {
			t.Errorf("chunk = %v", chunk)
		}
		if chunk["model"] != "gpt-5" || chunk["id"] != "chatcmpl-1" {
			t.Errorf("envelope = %v", chunk)
		}
	})

	t.Run("reasoning summary", func(t *testing.T) {
		chunk := translate(map[string]interface{}{"type": "response.reasoning_summary_text.delta", "delta": "thinking"})
		if chunk == nil || delta(chunk)["reasoning_content"] != "thinking" {
			t.Errorf("chunk = %v", chunk)
		}
	})

	t.Run("function call with dict arguments", func(t *testing.T) {
		chunk := translate(map[string]interface{}{
			"type": "response.output_item.done",
			"item": map[string]interface{}{
				"type":      "function_call",
				"call_id":   "call_1",
				"name":      "lookup",
				"arguments": map[string]interface{}{"q": "x"},
			},
		})
		if chunk == nil {
			t.Fatal("nil chunk for function_call item")
		}
		calls := delta(chunk)["tool_calls"].([]interface{})
		fn := calls[0].(map[string]interface{})["function"].(map[string]interface{})
		if fn["name"] != "lookup" || fn["arguments"] != `{"q":"x"}` {
			t.Errorf("function = %v", fn)
		}
	})

	t.Run("completed", func(t *testing.T) {
		chunk := translate(map[string]interface{}{"type": "response.completed"})
		choice := chunk["choices"].([]interface{})[0].(map[string]interface{})
		if choice["finish_reason"] != "stop" {
			t.Errorf("finish_reason = %v", choice["finish_reason"])
		}
		if _, present := chunk["usage"]; present {
			t.Errorf("usage present without upstream usage: %v", chunk["usage"])
		}
	})

	t.Run("completed carries usage", func(t *testing.T) {
		chunk := translate(map[string]interface{}{
			"type": "response.completed",
			"response": map[string]interface{}{
				"usage": map[string]interface{}{
					"input_tokens":  float64(120),
					"output_tokens": float64(45),
				},
			},
		})
		usage, ok := chunk["usage"].(map[string]interface{})
		if !ok {
			t.Fatalf("usage missing from completed chunk: %v", chunk)
		}
		if usage["prompt_tokens"] != 120 || usage["completion_tokens"] != 45 || usage["total_tokens"] != 165 {
			t.Errorf("usage = %v", usage)
		}
	})

	t.Run("failed", func(t *testing.T) {
		chunk := translate(map[string]interface{}{
			"type": "response.failed",
			"response": map[string]interface{}{
				"error": map[string]interface{}{"message": "quota exceeded"},
			},
		})
		errObj := chunk["error"].(map[string]interface{})
		if errObj["message"] != "quota exceeded" {
			t.Errorf("error = %v", errObj)
		}
	})

	t.Run("unmapped events", func(t *testing.T) {
		for _, typ := range []string{"response.created", "response.in_progress", "response.output_item.added"} {
			if chunk := translate(map[string]interface{}{"type": typ}); chunk != nil {
				t.Errorf("%s produced a chunk: %v", typ, chunk)
			}
		}
	})
}
