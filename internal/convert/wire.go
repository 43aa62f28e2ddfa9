// Package convert translates requests, responses and streams between the
// OpenAI Chat Completions, Anthropic Messages and OpenAI Responses dialects.
// Anthropic-bound request bodies are handled as generic JSON maps so client
// fields pass through byte-faithfully.
package convert

// ChatRequest is an inbound OpenAI chat completions request.
type ChatRequest struct {
	Model           string                   `json:"model"`
	Messages        []ChatMessage            `json:"messages"`
	MaxTokens       int                      `json:"max_tokens,omitempty"`
	Temperature     *float64                 `json:"temperature,omitempty"`
	TopP            *float64                 `json:"top_p,omitempty"`
	Stop            interface{}              `json:"stop,omitempty"`
	Stream          bool                     `json:"stream,omitempty"`
	Tools           []map[string]interface{} `json:"tools,omitempty"`
	Functions       []map[string]interface{} `json:"functions,omitempty"`
	ToolChoice      interface{}              `json:"tool_choice,omitempty"`
	FunctionCall    interface{}              `json:"function_call,omitempty"`
	ReasoningEffort string                   `json:"reasoning_effort,omitempty"`
	SessionID       string                   `json:"session_id,omitempty"`
}

// ChatMessage is one inbound chat message. Content is a string or an array
// of typed parts.
type ChatMessage struct {
	Role         string      `json:"role"`
	Content      interface{} `json:"content,omitempty"`
	Name         string      `json:"name,omitempty"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID   string      `json:"tool_call_id,omitempty"`
	FunctionCall *FnCall     `json:"function_call,omitempty"`
	CacheControl interface{} `json:"cache_control,omitempty"`
}

// ToolCall is an OpenAI assistant tool call.
type ToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function FnCall `json:"function"`
}

// FnCall carries a function name and its JSON-encoded arguments.
type FnCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatResponse is an outbound OpenAI chat completion.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *Usage       `json:"usage,omitempty"`
}

// ChatChoice is one response choice.
type ChatChoice struct {
	Index        int              `json:"index"`
	Message      *ResponseMessage `json:"message,omitempty"`
	FinishReason string           `json:"finish_reason"`
}

// ResponseMessage is the assistant message in a non-streaming response.
type ResponseMessage struct {
	Role             string        `json:"role"`
	Content          interface{}   `json:"content"`
	ToolCalls        []ToolCall    `json:"tool_calls,omitempty"`
	ReasoningContent string        `json:"reasoning_content,omitempty"`
	ThinkingBlocks   []interface{} `json:"thinking_blocks,omitempty"`
}

// Usage is OpenAI-shaped token accounting.
type Usage struct {
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	CompletionDetail *TokensDetail `json:"completion_tokens_details,omitempty"`
}

// TokensDetail carries the reasoning token estimate.
type TokensDetail struct {
	ReasoningTokens int `json:"reasoning_tokens"`
}

// MapStopReason translates an Anthropic stop reason to an OpenAI finish
// reason.
func MapStopReason(stopReason string) string {
	switch stopReason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return "stop"
	}
}
