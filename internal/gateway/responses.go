package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	. "github.com/roelfdiedericks/clawgate/internal/logging"
	"github.com/roelfdiedericks/clawgate/internal/upstream"
)

// responsesRequest is the native Responses API request surface.
type responsesRequest struct {
	Model        string                   `json:"model"`
	Input        interface{}              `json:"input,omitempty"`
	Instructions string                   `json:"instructions,omitempty"`
	Tools        []map[string]interface{} `json:"tools,omitempty"`
	ToolChoice   interface{}              `json:"tool_choice,omitempty"`
	Stream       bool                     `json:"stream,omitempty"`
	Reasoning    map[string]interface{}   `json:"reasoning,omitempty"`
	Text         map[string]interface{}   `json:"text,omitempty"`
	SessionID    string                   `json:"session_id,omitempty"`
}

// handleResponses serves POST /v1/responses: a native Responses front door
// for ChatGPT-family models. Streaming passes the upstream SSE through;
// non-streaming collects the stream into one response object.
func (s *Server) handleResponses(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req responsesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": map[string]interface{}{
				"message": "invalid JSON body: " + err.Error(),
				"type":    "invalid_request_error",
			},
		})
		return
	}
	if req.Model == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": map[string]interface{}{
				"message": "model is required",
				"type":    "invalid_request_error",
			},
		})
		return
	}

	res := s.registry.Resolve(req.Model)
	L_info("gateway: responses", "request_id", reqID, "model", req.Model, "backend", res.BackendID, "stream", req.Stream)

	payload := s.buildResponsesPayload(&req, res.BackendID, res.ReasoningLevel)

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	tr := s.newTracer(reqID, "responses")
	defer tr.Close()

	if !req.Stream {
		resp, err := s.chatgpt.CollectResponses(r.Context(), reqID, payload, sessionID, tr)
		if err != nil {
			writeError(w, reqID, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	streamHeaders(w)
	emit := sseWriter(w)
	if err := s.chatgpt.StreamRaw(r.Context(), reqID, payload, sessionID, tr, emit); err != nil {
		L_warn("gateway: responses stream failed", "request_id", reqID, "error", err)
		_ = emit(streamErrorFrame(err))
	}
}

// buildResponsesPayload maps the front-door request onto the backend
// payload. The backend requires store:false, stream:true and a non-empty
// instructions string.
func (s *Server) buildResponsesPayload(req *responsesRequest, backendID, reasoningLevel string) map[string]interface{} {
	var inputItems []interface{}
	switch input := req.Input.(type) {
	case string:
		if input != "" {
			inputItems = append(inputItems, map[string]interface{}{
				"type": "message", "role": "user", "content": input,
			})
		}
	case []interface{}:
		for _, raw := range input {
			item, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			role, _ := item["role"].(string)
			if role == "tool" || role == "system" {
				continue
			}
			content := flattenResponsesContent(item["content"])
			inputItems = append(inputItems, map[string]interface{}{
				"type": "message", "role": role, "content": content,
			})
		}
	}

	payload := map[string]interface{}{
		"model":  backendID,
		"input":  inputItems,
		"store":  false,
		"stream": true,
	}

	instructions := req.Instructions
	if strings.TrimSpace(instructions) == "" {
		instructions = upstream.DefaultInstructions(backendID)
	}
	payload["instructions"] = instructions

	if len(req.Tools) > 0 {
		payload["tools"] = req.Tools
	}
	if req.ToolChoice != nil {
		payload["tool_choice"] = req.ToolChoice
	}

	if req.Reasoning != nil {
		payload["reasoning"] = req.Reasoning
	} else {
		effort := reasoningLevel
		if effort == "" {
			effort = "medium"
		}
		payload["reasoning"] = map[string]interface{}{"effort": effort, "summary": "auto"}
	}
	if req.Text != nil {
		payload["text"] = req.Text
	} else {
		payload["text"] = map[string]interface{}{"verbosity": "medium"}
	}
	payload["include"] = []interface{}{"reasoning.encrypted_content"}

	return payload
}

// flattenResponsesContent reduces a content value to a plain string; the
// backend input format carries text only on this path.
func flattenResponsesContent(content interface{}) string {
	switch v := content.(type) {
	case string:
		return v
	case []interface{}:
		var parts []string
		for _, p := range v {
			switch item := p.(type) {
			case string:
				parts = append(parts, item)
			case map[string]interface{}:
				if text, _ := item["text"].(string); text != "" {
					parts = append(parts, text)
				}
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}
