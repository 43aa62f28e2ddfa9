package convert

import (
	"testing"
)

func floatPtr(f float64) *float64 { return &f }

func TestToAnthropicBasics(t *testing.T) {
	req := &ChatRequest{
		Model: "sonnet-4-5",
		Messages: []ChatMessage{
			{Role: "system", Content: "Be terse."},
			{Role: "user", Content: "hello"},
		},
		MaxTokens:   2048,
		Temperature: floatPtr(0.7),
		TopP:        floatPtr(0.9),
		Stop:        "END",
		Stream:      true,
	}

	out := ToAnthropic(req)

	if out["model"] != "sonnet-4-5" {
		t.Errorf("model = %v", out["model"])
	}
	if out["max_tokens"] != 2048 {
		t.Errorf("max_tokens = %v", out["max_tokens"])
	}
	if out["temperature"] != 0.7 || out["top_p"] != 0.9 {
		t.Errorf("sampling params: temp=%v top_p=%v", out["temperature"], out["top_p"])
	}
	if out["stream"] != true {
		t.Errorf("stream = %v", out["stream"])
	}

	stops, ok := out["stop_sequences"].([]interface{})
	if !ok || len(stops) != 1 || stops[0] != "END" {
		t.Errorf("stop_sequences = %v", out["stop_sequences"])
	}

	system, ok := out["system"].([]interface{})
	if !ok || len(system) != 1 {
		t.Fatalf("system = %v", out["system"])
	}
	block := system[0].(map[string]interface{})
	if block["text"] != "Be terse." {
		t.Errorf("system block = %v", block)
	}

	msgs := out["messages"].([]interface{})
	if len(msgs) != 1 {
		t.Fatalf("messages = %v", msgs)
	}
	turn := msgs[0].(map[string]interface{})
	if turn["role"] != "user" {
		t.Errorf("first turn role = %v", turn["role"])
	}
}

func TestToAnthropicDefaultMaxTokens(t *testing.T) {
	out := ToAnthropic(&ChatRequest{
		Model:    "sonnet-4-5",
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
	})
	if out["max_tokens"] != defaultMaxTokens {
		t.Errorf("max_tokens = %v, want %d", out["max_tokens"], defaultMaxTokens)
	}
}

func TestConvertMessagesMergesRuns(t *testing.T) {
	msgs, _ := convertMessages([]ChatMessage{
		{Role: "user", Content: "first"},
		{Role: "user", Content: "second"},
		{Role: "assistant", Content: "reply one"},
		{Role: "assistant", Content: "reply two"},
		{Role: "user", Content: "third"},
	})

	if len(msgs) != 3 {
		t.Fatalf("got %d turns, want 3", len(msgs))
	}

	first := msgs[0].(map[string]interface{})
	if first["role"] != "user" {
		t.Errorf("turn 0 role = %v", first["role"])
	}
	content := first["content"].([]interface{})
	if len(content) != 2 {
		t.Errorf("merged user turn has %d blocks, want 2", len(content))
	}

	second := msgs[1].(map[string]interface{})
	if second["role"] != "assistant" {
		t.Errorf("turn 1 role = %v", second["role"])
	}
	if blocks := second["content"].([]interface{}); len(blocks) != 2 {
		t.Errorf("merged assistant turn has %d blocks, want 2", len(blocks))
	}
}

func TestConvertMessagesToolResults(t *testing.T) {
	msgs, _ := convertMessages([]ChatMessage{
		{Role: "user", Content: "run it"},
		{Role: "assistant", ToolCalls: []ToolCall{{
			ID:       "toolu_1",
			Type:     "function",
			Function: FnCall{Name: "get_weather", Arguments: `{"city":"Oslo"}`},
		}}},
		{Role: "tool", ToolCallID: "toolu_1", Content: "12 degrees"},
	})

	if len(msgs) != 3 {
		t.Fatalf("got %d turns, want 3", len(msgs))
	}

	assistant := msgs[1].(map[string]interface{})
	blocks := assistant["content"].([]interface{})
	toolUse := blocks[0].(map[string]interface{})
	if toolUse["type"] != "tool_use" || toolUse["id"] != "toolu_1" || toolUse["name"] != "get_weather" {
		t.Errorf("tool_use block = %v", toolUse)
	}
	input := toolUse["input"].(map[string]interface{})
	if input["city"] != "Oslo" {
		t.Errorf("tool input = %v", input)
	}

	resultTurn := msgs[2].(map[string]interface{})
	if resultTurn["role"] != "user" {
		t.Errorf("tool result turn role = %v", resultTurn["role"])
	}
	result := resultTurn["content"].([]interface{})[0].(map[string]interface{})
	if result["type"] != "tool_result" || result["tool_use_id"] != "toolu_1" || result["content"] != "12 degrees" {
		t.Errorf("tool_result block = %v", result)
	}
}

func TestConvertMessagesAssistantFirstGetsPlaceholder(t *testing.T) {
	msgs, _ := convertMessages([]ChatMessage{
		{Role: "assistant", Content: "continuing..."},
	})
	if len(msgs) != 2 {
		t.Fatalf("got %d turns, want 2", len(msgs))
	}
	first := msgs[0].(map[string]interface{})
	if first["role"] != "user" {
		t.Errorf("placeholder role = %v", first["role"])
	}
	block := first["content"].([]interface{})[0].(map[string]interface{})
	if block["text"] != "." {
		t.Errorf("placeholder text = %v", block["text"])
	}
}

func TestConvertMessagesStripsTrailingAssistantWhitespace(t *testing.T) {
	msgs, _ := convertMessages([]ChatMessage{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "partial answer \n\t"},
	})
	last := msgs[len(msgs)-1].(map[string]interface{})
	block := last["content"].([]interface{})[0].(map[string]interface{})
	if block["text"] != "partial answer" {
		t.Errorf("text = %q", block["text"])
	}
}

func TestConvertImageParts(t *testing.T) {
	parts := []interface{}{
		map[string]interface{}{"type": "text", "text": "what is this"},
		map[string]interface{}{
			"type":      "image_url",
			"image_url": map[string]interface{}{"url": "data:image/png;base64,iVBORw0KGgo="},
		},
		map[string]interface{}{
			"type":      "image_url",
			"image_url": map[string]interface{}{"url": "https://example.com/cat.jpg"},
		},
	}

	out := convertContentParts(parts)
	if len(out) != 3 {
		t.Fatalf("got %d blocks, want 3", len(out))
	}

	b64 := out[1].(map[string]interface{})
	source := b64["source"].(map[string]interface{})
	if source["type"] != "base64" || source["media_type"] != "image/png" || source["data"] != "iVBORw0KGgo=" {
		t.Errorf("base64 source = %v", source)
	}

	urlBlock := out[2].(map[string]interface{})
	source = urlBlock["source"].(map[string]interface{})
	if source["type"] != "url" || source["url"] != "https://example.com/cat.jpg" {
		t.Errorf("url source = %v", source)
	}
}

func TestConvertTools(t *testing.T) {
	tools := convertTools([]map[string]interface{}{
		{
			"type": "function",
			"function": map[string]interface{}{
				"name":        "get_weather",
				"description": "Weather lookup",
				"parameters": map[string]interface{}{
					"type":       "object",
					"properties": map[string]interface{}{"city": map[string]interface{}{"type": "string"}},
				},
			},
		},
		{"type": "web_search"},
		{"type": "function", "function": map[string]interface{}{"description": "nameless"}},
	})

	if len(tools) != 1 {
		t.Fatalf("got %d tools, want 1", len(tools))
	}
	tool := tools[0].(map[string]interface{})
	if tool["name"] != "get_weather" || tool["description"] != "Weather lookup" {
		t.Errorf("tool = %v", tool)
	}
	if _, ok := tool["input_schema"].(map[string]interface{}); !ok {
		t.Error("missing input_schema")
	}
}

func TestToolChoice(t *testing.T) {
	t.Run("none removes tools", func(t *testing.T) {
		out := ToAnthropic(&ChatRequest{
			Model:    "m",
			Messages: []ChatMessage{{Role: "user", Content: "x"}},
			Tools: []map[string]interface{}{
				{"type": "function", "function": map[string]interface{}{"name": "f"}},
			},
			ToolChoice: "none",
		})
		if _, present := out["tools"]; present {
			t.Error("tools survived tool_choice none")
		}
	})

	t.Run("forced function", func(t *testing.T) {
		out := ToAnthropic(&ChatRequest{
			Model:    "m",
			Messages: []ChatMessage{{Role: "user", Content: "x"}},
			Tools: []map[string]interface{}{
				{"type": "function", "function": map[string]interface{}{"name": "f"}},
			},
			ToolChoice: map[string]interface{}{
				"type":     "function",
				"function": map[string]interface{}{"name": "f"},
			},
		})
		choice, ok := out["tool_choice"].(map[string]interface{})
		if !ok || choice["type"] != "tool" || choice["name"] != "f" {
			t.Errorf("tool_choice = %v", out["tool_choice"])
		}
	})
}

func TestToolCallToToolUseBadArguments(t *testing.T) {
	block := toolCallToToolUse(ToolCall{
		ID:       "toolu_1",
		Function: FnCall{Name: "f", Arguments: "{not json"},
	})
	input, ok := block["input"].(map[string]interface{})
	if !ok || len(input) != 0 {
		t.Errorf("input = %v, want empty object", block["input"])
	}
}

func TestMapStopReason(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"end_turn", "stop"},
		{"stop_sequence", "stop"},
		{"max_tokens", "length"},
		{"tool_use", "tool_calls"},
		{"something_new", "stop"},
		{"", "stop"},
	}
	for _, tt := range tests {
		if got := MapStopReason(tt.in); got != tt.want {
			t.Errorf("MapStopReason(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContentAsString(t *testing.T) {
	tests := []struct {
		name    string
		content interface{}
		want    string
	}{
		{"nil", nil, ""},
		{"string", "plain", "plain"},
		{
			"text parts joined",
			[]interface{}{
				map[string]interface{}{"type": "text", "text": "a"},
				map[string]interface{}{"type": "text", "text": "b"},
			},
			"a\nb",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := contentAsString(tt.content); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
