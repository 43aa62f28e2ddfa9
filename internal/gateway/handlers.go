package gateway

import (
	"encoding/json"
	"net/http"

	. "github.com/roelfdiedericks/clawgate/internal/logging"
)

// handleModels serves the advertised model catalog.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   s.registry.Listing(),
	})
}

// handleHealth is a liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// handleAuthStatus reports stored credential state per provider without
// exposing token material.
func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"anthropic": s.anthropicAuth.Store().Status(),
		"chatgpt":   s.chatgptAuth.Store().Status(),
	})
}

// handleCountTokens estimates input tokens for an Anthropic-shaped request.
func (s *Server) handleCountTokens(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": map[string]interface{}{
				"message": "invalid JSON body: " + err.Error(),
				"type":    "invalid_request_error",
			},
		})
		return
	}

	tokens := s.counter.CountRequest(body)
	L_debug("gateway: count_tokens", "request_id", reqID, "model", body["model"], "input_tokens", tokens)
	writeJSON(w, http.StatusOK, map[string]interface{}{"input_tokens": tokens})
}
