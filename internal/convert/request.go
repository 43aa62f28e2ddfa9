package convert

import (
	"encoding/json"
	"regexp"
	"strings"

	. "github.com/roelfdiedericks/clawgate/internal/logging"
)

// defaultMaxTokens is used when the client omits max_tokens.
const defaultMaxTokens = 4096

var dataImageRe = regexp.MustCompile(`^data:image/(\w+);base64,(.+)$`)

// ToAnthropic converts an OpenAI chat request into an Anthropic messages
// request body. The model field is left as the advertised name; resolution
// and shaping happen downstream.
func ToAnthropic(req *ChatRequest) map[string]interface{} {
	messages, systemBlocks := convertMessages(req.Messages)

	out := map[string]interface{}{
		"model":    req.Model,
		"messages": messages,
		"stream":   req.Stream,
	}
	if req.MaxTokens > 0 {
		out["max_tokens"] = req.MaxTokens
	} else {
		out["max_tokens"] = defaultMaxTokens
	}
	if len(systemBlocks) > 0 {
		out["system"] = systemBlocks
	}
	if req.Temperature != nil {
		out["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		out["top_p"] = *req.TopP
	}

	switch stop := req.Stop.(type) {
	case string:
		if stop != "" {
			out["stop_sequences"] = []interface{}{stop}
		}
	case []interface{}:
		if len(stop) > 0 {
			out["stop_sequences"] = stop
		}
	}

	if tools := convertTools(req.Tools); len(tools) > 0 {
		out["tools"] = tools
	} else if tools := convertFunctions(req.Functions); len(tools) > 0 {
		out["tools"] = tools
	}

	applyToolChoice(out, req.ToolChoice)
	applyFunctionCall(out, req.FunctionCall)

	return out
}

// convertMessages merges OpenAI messages into alternating Anthropic turns
// and extracts system blocks. The user class covers user, tool and legacy
// function roles.
func convertMessages(msgs []ChatMessage) ([]interface{}, []interface{}) {
	var systemBlocks []interface{}
	var rest []ChatMessage

	for _, m := range msgs {
		if m.Role != "system" {
			rest = append(rest, m)
			continue
		}
		switch content := m.Content.(type) {
		case string:
			block := map[string]interface{}{"type": "text", "text": content}
			if m.CacheControl != nil {
				block["cache_control"] = m.CacheControl
			}
			systemBlocks = append(systemBlocks, block)
		case []interface{}:
			for _, item := range content {
				part, ok := item.(map[string]interface{})
				if !ok || part["type"] != "text" {
					continue
				}
				block := map[string]interface{}{"type": "text", "text": part["text"]}
				if cc, ok := part["cache_control"]; ok {
					block["cache_control"] = cc
				}
				systemBlocks = append(systemBlocks, block)
			}
		}
	}

	isUserClass := func(role string) bool {
		return role == "user" || role == "tool" || role == "function"
	}

	var turns []interface{}
	i := 0
	for i < len(rest) {
		// Merge a run of user-class messages into one user turn.
		var userContent []interface{}
		for i < len(rest) && isUserClass(rest[i].Role) {
			m := rest[i]
			switch m.Role {
			case "user":
				switch content := m.Content.(type) {
				case string:
					if content != "" {
						userContent = append(userContent, map[string]interface{}{"type": "text", "text": content})
					}
				case []interface{}:
					userContent = append(userContent, convertContentParts(content)...)
				}
			case "tool":
				userContent = append(userContent, map[string]interface{}{
					"type":        "tool_result",
					"tool_use_id": m.ToolCallID,
					"content":     contentAsString(m.Content),
				})
			case "function":
				userContent = append(userContent, map[string]interface{}{
					"type":        "tool_result",
					"tool_use_id": "func_" + m.Name,
					"content":     contentAsString(m.Content),
				})
			}
			i++
		}
		if len(userContent) > 0 {
			turns = append(turns, map[string]interface{}{"role": "user", "content": userContent})
		}

		// Merge a run of assistant messages into one assistant turn.
		var assistantContent []interface{}
		for i < len(rest) && rest[i].Role == "assistant" {
			m := rest[i]
			switch content := m.Content.(type) {
			case string:
				if content != "" {
					assistantContent = append(assistantContent, map[string]interface{}{"type": "text", "text": content})
				}
			case []interface{}:
				assistantContent = append(assistantContent, content...)
			}
			for _, tc := range m.ToolCalls {
				assistantContent = append(assistantContent, toolCallToToolUse(tc))
			}
			if m.FunctionCall != nil {
				assistantContent = append(assistantContent, toolCallToToolUse(ToolCall{
					ID:       "func_" + m.FunctionCall.Name,
					Type:     "function",
					Function: *m.FunctionCall,
				}))
			}
			i++
		}
		if len(assistantContent) > 0 {
			turns = append(turns, map[string]interface{}{"role": "assistant", "content": assistantContent})
		}
	}

	// Anthropic requires the first turn to be a user turn.
	if len(turns) > 0 {
		if first, ok := turns[0].(map[string]interface{}); ok && first["role"] != "user" {
			placeholder := map[string]interface{}{
				"role":    "user",
				"content": []interface{}{map[string]interface{}{"type": "text", "text": "."}},
			}
			turns = append([]interface{}{placeholder}, turns...)
		}
	}

	stripTrailingAssistantWhitespace(turns)
	return turns, systemBlocks
}

// stripTrailingAssistantWhitespace removes trailing whitespace from text
// blocks of the final assistant turn. Anthropic rejects it.
func stripTrailingAssistantWhitespace(turns []interface{}) {
	if len(turns) == 0 {
		return
	}
	last, ok := turns[len(turns)-1].(map[string]interface{})
	if !ok || last["role"] != "assistant" {
		return
	}
	content, ok := last["content"].([]interface{})
	if !ok {
		return
	}
	for _, b := range content {
		block, ok := b.(map[string]interface{})
		if !ok || block["type"] != "text" {
			continue
		}
		if text, ok := block["text"].(string); ok {
			if trimmed := strings.TrimRight(text, " \t\r\n"); trimmed != text {
				block["text"] = trimmed
			}
		}
	}
}

// convertContentParts converts an OpenAI content array to Anthropic blocks.
func convertContentParts(parts []interface{}) []interface{} {
	var out []interface{}
	for _, p := range parts {
		item, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		switch item["type"] {
		case "text":
			out = append(out, map[string]interface{}{"type": "text", "text": stringOr(item["text"], "")})
		case "tool_result":
			block := map[string]interface{}{
				"type":        "tool_result",
				"tool_use_id": stringOr(item["tool_use_id"], ""),
				"content":     contentAsString(item["content"]),
			}
			if v, ok := item["status"]; ok {
				block["status"] = v
			}
			if v, ok := item["is_error"]; ok {
				block["is_error"] = v
			}
			out = append(out, block)
		case "tool_use":
			// Some clients send Anthropic-style tool_use blocks directly.
			out = append(out, item)
		case "image_url":
			if img := convertImagePart(item); img != nil {
				out = append(out, img)
			}
		}
	}
	return out
}

// convertImagePart maps an OpenAI image_url part to an Anthropic image
// block. Base64 data URIs become base64 sources, everything else a URL
// source.
func convertImagePart(item map[string]interface{}) map[string]interface{} {
	var url string
	switch v := item["image_url"].(type) {
	case map[string]interface{}:
		url = stringOr(v["url"], "")
	case string:
		url = v
	}
	if url == "" {
		return nil
	}

	if strings.HasPrefix(url, "data:image") {
		m := dataImageRe.FindStringSubmatch(url)
		if m == nil {
			L_warn("convert: unparseable image data URI, dropping image block")
			return nil
		}
		return map[string]interface{}{
			"type": "image",
			"source": map[string]interface{}{
				"type":       "base64",
				"media_type": "image/" + m[1],
				"data":       m[2],
			},
		}
	}
	return map[string]interface{}{
		"type": "image",
		"source": map[string]interface{}{
			"type": "url",
			"url":  url,
		},
	}
}

// toolCallToToolUse maps an OpenAI tool call to an Anthropic tool_use
// block. Unparseable arguments degrade to an empty input object.
func toolCallToToolUse(tc ToolCall) map[string]interface{} {
	input := map[string]interface{}{}
	if tc.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
			L_warn("convert: tool call arguments are not valid JSON", "tool", tc.Function.Name, "error", err)
			input = map[string]interface{}{}
		}
	}
	return map[string]interface{}{
		"type":  "tool_use",
		"id":    tc.ID,
		"name":  tc.Function.Name,
		"input": input,
	}
}

// convertTools maps OpenAI tool definitions to Anthropic tools.
func convertTools(tools []map[string]interface{}) []interface{} {
	var out []interface{}
	for _, t := range tools {
		if t["type"] != "function" {
			continue
		}
		fn, ok := t["function"].(map[string]interface{})
		if !ok {
			continue
		}
		name := stringOr(fn["name"], "")
		if name == "" {
			continue
		}
		tool := map[string]interface{}{"name": name}
		if desc := stringOr(fn["description"], ""); desc != "" {
			tool["description"] = desc
		}
		if params, ok := fn["parameters"].(map[string]interface{}); ok {
			tool["input_schema"] = params
		} else {
			tool["input_schema"] = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		out = append(out, tool)
	}
	return out
}

// convertFunctions maps legacy OpenAI function definitions to Anthropic
// tools.
func convertFunctions(functions []map[string]interface{}) []interface{} {
	var out []interface{}
	for _, fn := range functions {
		name := stringOr(fn["name"], "")
		if name == "" {
			continue
		}
		tool := map[string]interface{}{"name": name}
		if desc := stringOr(fn["description"], ""); desc != "" {
			tool["description"] = desc
		}
		if params, ok := fn["parameters"].(map[string]interface{}); ok {
			tool["input_schema"] = params
		} else {
			tool["input_schema"] = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		out = append(out, tool)
	}
	return out
}

// applyToolChoice translates the OpenAI tool_choice field. "none" removes
// tools entirely; a forced function becomes Anthropic's {type: tool, name}.
func applyToolChoice(out map[string]interface{}, choice interface{}) {
	switch v := choice.(type) {
	case string:
		if v == "none" {
			delete(out, "tools")
		}
	case map[string]interface{}:
		if v["type"] == "function" {
			if fn, ok := v["function"].(map[string]interface{}); ok {
				if name := stringOr(fn["name"], ""); name != "" {
					out["tool_choice"] = map[string]interface{}{"type": "tool", "name": name}
				}
			}
		}
	}
}

// applyFunctionCall translates the legacy function_call field.
func applyFunctionCall(out map[string]interface{}, choice interface{}) {
	switch v := choice.(type) {
	case string:
		if v == "none" {
			delete(out, "tools")
		}
	case map[string]interface{}:
		if name := stringOr(v["name"], ""); name != "" {
			out["tool_choice"] = map[string]interface{}{"type": "tool", "name": name}
		}
	}
}

// contentAsString flattens message content to a string for tool_result
// blocks. Arrays of text parts are joined with newlines; anything else is
// JSON-encoded.
func contentAsString(content interface{}) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []interface{}:
		var parts []string
		for _, p := range v {
			if item, ok := p.(map[string]interface{}); ok {
				if item["type"] == "text" {
					parts = append(parts, stringOr(item["text"], ""))
					continue
				}
				encoded, _ := json.Marshal(item)
				parts = append(parts, string(encoded))
				continue
			}
			encoded, _ := json.Marshal(p)
			parts = append(parts, string(encoded))
		}
		return strings.Join(parts, "\n")
	default:
		encoded, _ := json.Marshal(v)
		return string(encoded)
	}
}

func stringOr(v interface{}, fallback string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fallback
}
