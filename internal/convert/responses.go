package convert

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
)

// ToResponsesInput converts OpenAI chat messages into Responses API input
// items. System messages are skipped here; they travel separately as
// instructions.
func ToResponsesInput(msgs []ChatMessage) []map[string]interface{} {
	var items []map[string]interface{}

	for _, m := range msgs {
		switch m.Role {
		case "system":
			continue
		case "tool":
			callID := m.ToolCallID
			if callID == "" {
				continue
			}
			items = append(items, map[string]interface{}{
				"type":    "function_call_output",
				"call_id": callID,
				"output":  contentAsString(m.Content),
			})
			continue
		}

		if m.Role == "assistant" {
			for _, tc := range m.ToolCalls {
				if tc.Type != "" && tc.Type != "function" {
					continue
				}
				if tc.ID == "" || tc.Function.Name == "" {
					continue
				}
				items = append(items, map[string]interface{}{
					"type":      "function_call",
					"name":      tc.Function.Name,
					"arguments": tc.Function.Arguments,
					"call_id":   tc.ID,
				})
			}
		}

		contentItems := responsesContentItems(m.Role, m.Content)
		if len(contentItems) == 0 {
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		items = append(items, map[string]interface{}{
			"type":    "message",
			"role":    role,
			"content": contentItems,
		})
	}

	return items
}

func responsesContentItems(role string, content interface{}) []interface{} {
	textKind := "input_text"
	if role == "assistant" {
		textKind = "output_text"
	}

	var out []interface{}
	switch v := content.(type) {
	case string:
		if v != "" {
			out = append(out, map[string]interface{}{"type": textKind, "text": v})
		}
	case []interface{}:
		for _, p := range v {
			part, ok := p.(map[string]interface{})
			if !ok {
				continue
			}
			switch part["type"] {
			case "text":
				text := stringOr(part["text"], "")
				if text == "" {
					text = stringOr(part["content"], "")
				}
				if text != "" {
					out = append(out, map[string]interface{}{"type": textKind, "text": text})
				}
			case "image_url":
				var imgURL string
				switch img := part["image_url"].(type) {
				case map[string]interface{}:
					imgURL = stringOr(img["url"], "")
				case string:
					imgURL = img
				}
				if imgURL != "" {
					out = append(out, map[string]interface{}{
						"type":      "input_image",
						"image_url": normalizeImageDataURL(imgURL),
					})
				}
			}
		}
	}
	return out
}

// normalizeImageDataURL repairs base64 image data URLs: URL-escapes are
// decoded, url-safe alphabet is converted to standard, padding is restored.
// Anything that still fails to decode is passed through untouched.
func normalizeImageDataURL(raw string) string {
	if !strings.HasPrefix(raw, "data:image/") || !strings.Contains(raw, ";base64,") {
		return raw
	}
	comma := strings.Index(raw, ",")
	header, data := raw[:comma], raw[comma+1:]

	if unescaped, err := url.QueryUnescape(data); err == nil {
		data = unescaped
	}
	data = strings.TrimSpace(data)
	data = strings.NewReplacer("\n", "", "\r", "", "-", "+", "_", "/").Replace(data)
	if pad := (4 - len(data)%4) % 4; pad > 0 {
		data += strings.Repeat("=", pad)
	}
	if _, err := base64.StdEncoding.DecodeString(data); err != nil {
		return raw
	}
	return header + "," + data
}

// ToResponsesTools converts OpenAI tool definitions to the flattened
// Responses API tool format.
func ToResponsesTools(tools []map[string]interface{}) []map[string]interface{} {
	out := []map[string]interface{}{}
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
		params, ok := fn["parameters"].(map[string]interface{})
		if !ok {
			params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		out = append(out, map[string]interface{}{
			"type":        "function",
			"name":        name,
			"description": stringOr(fn["description"], ""),
			"strict":      false,
			"parameters":  params,
		})
	}
	return out
}

// TranslateResponsesEvent maps one Responses API stream event to an OpenAI
// chat chunk. Events with no chat-side representation return nil.
func TranslateResponsesEvent(evt map[string]interface{}, responseID string, created int64, model string) map[string]interface{} {
	chunk := func(delta map[string]interface{}, finish interface{}) map[string]interface{} {
		return map[string]interface{}{
			"id":      responseID,
			"object":  "chat.completion.chunk",
			"created": created,
			"model":   model,
			"choices": []interface{}{map[string]interface{}{
				"index":         0,
				"delta":         delta,
				"finish_reason": finish,
			}},
		}
	}

	switch stringOr(evt["type"], "") {
	case "response.output_text.delta":
		return chunk(map[string]interface{}{"content": stringOr(evt["delta"], "")}, nil)

	case "response.reasoning_summary_text.delta", "response.reasoning_text.delta":
		return chunk(map[string]interface{}{"reasoning_content": stringOr(evt["delta"], "")}, nil)

	case "response.output_item.done":
		item, _ := evt["item"].(map[string]interface{})
		if item == nil || item["type"] != "function_call" {
			return nil
		}
		args := ""
		switch a := item["arguments"].(type) {
		case string:
			args = a
		case map[string]interface{}:
			encoded, _ := json.Marshal(a)
			args = string(encoded)
		}
		return chunk(map[string]interface{}{
			"tool_calls": []interface{}{map[string]interface{}{
				"index": 0,
				"id":    stringOr(item["call_id"], ""),
				"type":  "function",
				"function": map[string]interface{}{
					"name":      stringOr(item["name"], ""),
					"arguments": args,
				},
			}},
		}, nil)

	case "response.completed":
		out := chunk(map[string]interface{}{}, "stop")
		if resp, ok := evt["response"].(map[string]interface{}); ok {
			if u, ok := resp["usage"].(map[string]interface{}); ok {
				prompt := intOr(u["input_tokens"])
				completion := intOr(u["output_tokens"])
				total := intOr(u["total_tokens"])
				if total == 0 {
					total = prompt + completion
				}
				out["usage"] = map[string]interface{}{
					"prompt_tokens":     prompt,
					"completion_tokens": completion,
					"total_tokens":      total,
				}
			}
		}
		return out

	case "response.failed":
		message := "Unknown error"
		if resp, ok := evt["response"].(map[string]interface{}); ok {
			if errObj, ok := resp["error"].(map[string]interface{}); ok {
				message = stringOr(errObj["message"], message)
			}
		}
		return map[string]interface{}{
			"error": map[string]interface{}{"message": message},
		}
	}
	return nil
}
