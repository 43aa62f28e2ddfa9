package convert

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roelfdiedericks/clawgate/internal/thinkcache"
)

// FromAnthropic converts a non-streaming Anthropic messages response into an
// OpenAI chat completion. The model field echoes the advertised name the
// client asked for. When the turn carries tool_use blocks, the first signed
// thinking block is stored in cache under every tool_use id so the follow-up
// turn can reattach it; cache may be nil.
func FromAnthropic(resp map[string]interface{}, model string, cache *thinkcache.Cache) *ChatResponse {
	var (
		textContent      string
		hasText          bool
		toolCalls        []ToolCall
		reasoningContent string
		thinkingBlocks   []interface{}
		signedThinking   *thinkcache.Block
	)

	if content, ok := resp["content"].([]interface{}); ok {
		for _, b := range content {
			block, ok := b.(map[string]interface{})
			if !ok {
				continue
			}
			switch block["type"] {
			case "text":
				textContent += stringOr(block["text"], "")
				hasText = true
			case "tool_use":
				toolCalls = append(toolCalls, ToolCall{
					ID:   stringOr(block["id"], ""),
					Type: "function",
					Function: FnCall{
						Name:      stringOr(block["name"], ""),
						Arguments: encodeToolInput(block["input"]),
					},
				})
			case "thinking":
				thinkingBlocks = append(thinkingBlocks, block)
				reasoningContent += stringOr(block["thinking"], "")
				if sig := strings.TrimSpace(stringOr(block["signature"], "")); sig != "" && signedThinking == nil {
					signedThinking = &thinkcache.Block{
						Thinking:  stringOr(block["thinking"], ""),
						Signature: sig,
					}
				}
			case "redacted_thinking":
				thinkingBlocks = append(thinkingBlocks, block)
			}
		}
	}

	if cache != nil && signedThinking != nil {
		for _, call := range toolCalls {
			cache.Put(call.ID, *signedThinking)
		}
	}

	msg := &ResponseMessage{
		Role:             "assistant",
		ReasoningContent: reasoningContent,
		ThinkingBlocks:   thinkingBlocks,
		ToolCalls:        toolCalls,
	}
	if hasText {
		msg.Content = textContent
	}

	finish := MapStopReason(stringOr(resp["stop_reason"], ""))

	out := &ChatResponse{
		ID:      fmt.Sprintf("chatcmpl-%s", stringOr(resp["id"], fmt.Sprintf("%d", time.Now().Unix()))),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []ChatChoice{{Index: 0, Message: msg, FinishReason: finish}},
	}

	if usage, ok := resp["usage"].(map[string]interface{}); ok {
		prompt := intOr(usage["input_tokens"])
		completion := intOr(usage["output_tokens"])
		u := &Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		}
		if reasoningContent != "" {
			u.CompletionDetail = &TokensDetail{ReasoningTokens: len(reasoningContent) / 4}
		}
		out.Usage = u
	}

	return out
}

func encodeToolInput(input interface{}) string {
	if input == nil {
		return "{}"
	}
	encoded, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

func intOr(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}
