// Package shaper applies the transformations an Anthropic-bound request
// needs after dialect conversion: backend model substitution, thinking
// budget enforcement, cached-thinking reattachment, parameter sanitization,
// system message injection and prompt cache breakpoints.
package shaper

import (
	"strings"

	. "github.com/roelfdiedericks/clawgate/internal/logging"
	"github.com/roelfdiedericks/clawgate/internal/registry"
	"github.com/roelfdiedericks/clawgate/internal/thinkcache"
)

// SpoofSystemMessage must be the first system block on every outbound
// Anthropic request. The API rejects OAuth tokens without it.
const SpoofSystemMessage = "You are Claude Code, Anthropic's official CLI for Claude."

// Use1MContextKey marks a request for the 1M context beta. It is internal
// metadata and is stripped before the request goes upstream.
const Use1MContextKey = "_use_1m_context"

const (
	minResponseTokens = 1024
	maxCacheBlocks    = 4
)

// Shaper holds the shared state the request pipeline needs.
type Shaper struct {
	cache *thinkcache.Cache
}

// New creates a Shaper backed by the given thinking cache.
func New(cache *thinkcache.Cache) *Shaper {
	return &Shaper{cache: cache}
}

// Prepare runs the full shaping pipeline on a converted request.
// reasoningEffort is the client's explicit parameter; it takes precedence
// over the model-variant level from resolution.
func (s *Shaper) Prepare(body map[string]interface{}, res registry.Resolution, reasoningEffort, requestID string) map[string]interface{} {
	body["model"] = res.BackendID
	if res.Use1MContext {
		body[Use1MContextKey] = true
	}

	s.ReattachThinking(body, requestID)

	level := reasoningEffort
	if level == "" {
		level = res.ReasoningLevel
	}
	if budget, ok := registry.ReasoningBudgets[level]; ok {
		s.enableThinking(body, budget, level, requestID)
	}

	ensureThinkingHeadroom(body, requestID)
	body = Sanitize(body)
	body = InjectSystemMessage(body)
	return AddPromptCaching(body)
}

// PrepareNative shapes a request that arrived already in Anthropic form.
// Conversion and thinking enablement are skipped; the client controls both.
func (s *Shaper) PrepareNative(body map[string]interface{}, res registry.Resolution, requestID string) map[string]interface{} {
	body["model"] = res.BackendID
	if res.Use1MContext {
		body[Use1MContextKey] = true
	}
	ensureThinkingHeadroom(body, requestID)
	body = Sanitize(body)
	body = InjectSystemMessage(body)
	return AddPromptCaching(body)
}

// enableThinking turns on extended thinking with the given budget, unless
// the last assistant turn carries tool_use without a leading thinking block.
// Dropping messages to satisfy that constraint would break tool_result
// linkage, so thinking is skipped for the turn instead.
func (s *Shaper) enableThinking(body map[string]interface{}, budget int, level, requestID string) {
	required := budget + minResponseTokens
	if maxTokensOf(body) < required {
		L_debug("shaper: raising max_tokens for thinking", "request_id", requestID, "max_tokens", required, "level", level)
		body["max_tokens"] = required
	}

	msgs := messagesOf(body)
	if lastAssistantHasToolUse(msgs) && !lastAssistantStartsWithThinking(msgs) {
		L_warn("shaper: last assistant turn has tool_use without thinking, skipping thinking for this turn", "request_id", requestID)
		return
	}

	body["thinking"] = map[string]interface{}{
		"type":          "enabled",
		"budget_tokens": budget,
	}
}

// ensureThinkingHeadroom guarantees max_tokens leaves room for a response
// beyond the thinking budget, for requests where the client enabled
// thinking directly.
func ensureThinkingHeadroom(body map[string]interface{}, requestID string) {
	thinking, _ := body["thinking"].(map[string]interface{})
	if thinking == nil || thinking["type"] != "enabled" {
		return
	}
	budget := intValue(thinking["budget_tokens"], 16000)
	required := budget + minResponseTokens
	if maxTokensOf(body) < required {
		L_debug("shaper: raising max_tokens for client-enabled thinking", "request_id", requestID, "max_tokens", required)
		body["max_tokens"] = required
	}
}

// ReattachThinking prepends a previously signed thinking block to the last
// assistant turn when that turn issued tool calls. Without it the API
// rejects thinking-enabled follow-up requests that carry tool results.
func (s *Shaper) ReattachThinking(body map[string]interface{}, requestID string) {
	if s.cache == nil {
		return
	}
	msgs := messagesOf(body)
	last := lastAssistant(msgs)
	if last == nil {
		return
	}
	content, _ := last["content"].([]interface{})
	if len(content) == 0 {
		return
	}
	if first, ok := content[0].(map[string]interface{}); ok {
		if t := first["type"]; t == "thinking" || t == "redacted_thinking" {
			return
		}
	}

	var toolIDs []string
	for _, b := range content {
		block, ok := b.(map[string]interface{})
		if !ok || block["type"] != "tool_use" {
			continue
		}
		if id, ok := block["id"].(string); ok && id != "" {
			toolIDs = append(toolIDs, id)
		}
	}
	if len(toolIDs) == 0 {
		return
	}

	for _, id := range toolIDs {
		cached, ok := s.cache.Get(id)
		if !ok || strings.TrimSpace(cached.Signature) == "" {
			continue
		}
		blockType := "thinking"
		block := map[string]interface{}{
			"type":      blockType,
			"thinking":  cached.Thinking,
			"signature": cached.Signature,
		}
		if cached.Redacted {
			block["type"] = "redacted_thinking"
		}
		last["content"] = append([]interface{}{block}, content...)
		L_debug("shaper: reattached signed thinking block", "request_id", requestID, "tool_use_id", id)
		return
	}
}

// Sanitize removes parameter values the API rejects and applies the
// thinking-mode constraints. It is idempotent.
func Sanitize(body map[string]interface{}) map[string]interface{} {
	if v, present := body["top_p"]; present {
		if f, ok := floatValue(v); !ok || f < 0.0 || f > 1.0 {
			delete(body, "top_p")
		}
	}
	if v, present := body["temperature"]; present {
		if _, ok := floatValue(v); !ok {
			delete(body, "temperature")
		}
	}
	if v, present := body["top_k"]; present {
		if n, ok := intValueOK(v); !ok || n <= 0 {
			delete(body, "top_k")
		}
	}

	if v, present := body["tools"]; present {
		tools, ok := v.([]interface{})
		if !ok || len(tools) == 0 {
			delete(body, "tools")
		}
	}

	thinking, hasThinking := body["thinking"]
	if hasThinking && thinking == nil {
		delete(body, "thinking")
		return body
	}
	t, _ := thinking.(map[string]interface{})
	if t == nil || t["type"] != "enabled" {
		return body
	}

	// Thinking mode: temperature must be 1.0, top_p within [0.95, 1.0],
	// top_k not allowed.
	if f, ok := floatValue(body["temperature"]); ok && f != 1.0 {
		body["temperature"] = 1.0
	}
	if f, ok := floatValue(body["top_p"]); ok && (f < 0.95 || f > 1.0) {
		clamped := f
		if clamped < 0.95 {
			clamped = 0.95
		}
		if clamped > 1.0 {
			clamped = 1.0
		}
		body["top_p"] = clamped
	}
	delete(body, "top_k")
	return body
}

// InjectSystemMessage prepends the spoof system block. Idempotent: a request
// already starting with the spoof text passes through unchanged.
func InjectSystemMessage(body map[string]interface{}) map[string]interface{} {
	spoofBlock := map[string]interface{}{"type": "text", "text": SpoofSystemMessage}

	switch system := body["system"].(type) {
	case []interface{}:
		if len(system) > 0 {
			if first, ok := system[0].(map[string]interface{}); ok && first["text"] == SpoofSystemMessage {
				return body
			}
		}
		body["system"] = append([]interface{}{spoofBlock}, system...)
	case string:
		if strings.HasPrefix(system, SpoofSystemMessage) {
			return body
		}
		body["system"] = []interface{}{spoofBlock, map[string]interface{}{"type": "text", "text": system}}
	case nil:
		body["system"] = []interface{}{spoofBlock}
	default:
		body["system"] = []interface{}{spoofBlock, system}
	}
	return body
}

// AddPromptCaching marks cache breakpoints in hierarchy order (tools, then
// system, then the last two user turns), never exceeding the API limit of
// four cache_control blocks in total.
func AddPromptCaching(body map[string]interface{}) map[string]interface{} {
	remaining := maxCacheBlocks - countCacheControls(body)
	if remaining <= 0 {
		return body
	}

	if tools, ok := body["tools"].([]interface{}); ok && len(tools) > 0 && remaining > 0 {
		if last, ok := tools[len(tools)-1].(map[string]interface{}); ok {
			if _, marked := last["cache_control"]; !marked {
				last["cache_control"] = map[string]interface{}{"type": "ephemeral"}
				remaining--
			}
		}
	}

	if remaining > 0 {
		switch system := body["system"].(type) {
		case []interface{}:
			if len(system) > 0 {
				if last, ok := system[len(system)-1].(map[string]interface{}); ok {
					if _, marked := last["cache_control"]; !marked {
						last["cache_control"] = map[string]interface{}{"type": "ephemeral"}
						remaining--
					}
				}
			}
		case string:
			body["system"] = []interface{}{map[string]interface{}{
				"type":          "text",
				"text":          system,
				"cache_control": map[string]interface{}{"type": "ephemeral"},
			}}
			remaining--
		}
	}

	msgs := messagesOf(body)
	if remaining > 0 && len(msgs) > 0 {
		var userIdx []int
		for i, m := range msgs {
			if m["role"] == "user" {
				userIdx = append(userIdx, i)
			}
		}
		n := len(userIdx)
		toCache := 2
		if n < toCache {
			toCache = n
		}
		if remaining < toCache {
			toCache = remaining
		}
		for _, idx := range userIdx[n-toCache:] {
			if remaining <= 0 {
				break
			}
			m := msgs[idx]
			switch content := m["content"].(type) {
			case []interface{}:
				if len(content) == 0 {
					continue
				}
				if last, ok := content[len(content)-1].(map[string]interface{}); ok {
					if _, marked := last["cache_control"]; !marked {
						last["cache_control"] = map[string]interface{}{"type": "ephemeral"}
						remaining--
					}
				}
			case string:
				m["content"] = []interface{}{map[string]interface{}{
					"type":          "text",
					"text":          content,
					"cache_control": map[string]interface{}{"type": "ephemeral"},
				}}
				remaining--
			}
		}
	}
	return body
}

func countCacheControls(body map[string]interface{}) int {
	count := 0
	if tools, ok := body["tools"].([]interface{}); ok {
		for _, t := range tools {
			if tool, ok := t.(map[string]interface{}); ok {
				if _, marked := tool["cache_control"]; marked {
					count++
				}
			}
		}
	}
	if system, ok := body["system"].([]interface{}); ok {
		for _, b := range system {
			if block, ok := b.(map[string]interface{}); ok {
				if _, marked := block["cache_control"]; marked {
					count++
				}
			}
		}
	}
	for _, m := range messagesOf(body) {
		content, ok := m["content"].([]interface{})
		if !ok {
			continue
		}
		for _, b := range content {
			if block, ok := b.(map[string]interface{}); ok {
				if _, marked := block["cache_control"]; marked {
					count++
				}
			}
		}
	}
	return count
}

// BetaHeaders composes the anthropic-beta header for a shaped request.
// Client-supplied betas are merged only on the non-streaming path; on the
// streaming path they may request features the OAuth tier rejects.
func BetaHeaders(body map[string]interface{}, clientBetas string, streaming bool) string {
	betas := []string{"oauth-2025-04-20"}

	if streaming {
		if use1m, _ := body[Use1MContextKey].(bool); use1m {
			betas = append(betas, "context-1m-2025-08-07")
		}
	}
	if thinking, ok := body["thinking"].(map[string]interface{}); ok && thinking["type"] == "enabled" {
		betas = append(betas, "interleaved-thinking-2025-05-14")
	}
	if !streaming {
		if tools, ok := body["tools"].([]interface{}); ok && len(tools) > 0 {
			betas = append(betas, "fine-grained-tool-streaming-2025-05-14")
		}
	}

	if !streaming && clientBetas != "" {
		seen := make(map[string]bool, len(betas))
		for _, b := range betas {
			seen[b] = true
		}
		for _, b := range strings.Split(clientBetas, ",") {
			b = strings.TrimSpace(b)
			if b != "" && !seen[b] {
				betas = append(betas, b)
				seen[b] = true
			}
		}
	}
	return strings.Join(betas, ",")
}

func messagesOf(body map[string]interface{}) []map[string]interface{} {
	raw, _ := body["messages"].([]interface{})
	var out []map[string]interface{}
	for _, m := range raw {
		if msg, ok := m.(map[string]interface{}); ok {
			out = append(out, msg)
		}
	}
	return out
}

func lastAssistant(msgs []map[string]interface{}) map[string]interface{} {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i]["role"] == "assistant" {
			return msgs[i]
		}
	}
	return nil
}

func lastAssistantHasToolUse(msgs []map[string]interface{}) bool {
	last := lastAssistant(msgs)
	if last == nil {
		return false
	}
	content, _ := last["content"].([]interface{})
	for _, b := range content {
		if block, ok := b.(map[string]interface{}); ok && block["type"] == "tool_use" {
			return true
		}
	}
	return false
}

func lastAssistantStartsWithThinking(msgs []map[string]interface{}) bool {
	last := lastAssistant(msgs)
	if last == nil {
		return false
	}
	content, _ := last["content"].([]interface{})
	if len(content) == 0 {
		return false
	}
	first, ok := content[0].(map[string]interface{})
	if !ok {
		return false
	}
	t := first["type"]
	return t == "thinking" || t == "redacted_thinking"
}

func maxTokensOf(body map[string]interface{}) int {
	return intValue(body["max_tokens"], 0)
}

func intValue(v interface{}, fallback int) int {
	if n, ok := intValueOK(v); ok {
		return n
	}
	return fallback
}

func intValueOK(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

func floatValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
