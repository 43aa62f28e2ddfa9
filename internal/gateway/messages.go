package gateway

import (
	"encoding/json"
	"net/http"

	. "github.com/roelfdiedericks/clawgate/internal/logging"
)

// handleMessages serves POST /v1/messages: native Anthropic requests pass
// through with shaping but no dialect conversion. The upstream SSE stream
// is relayed verbatim.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
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

	model, _ := body["model"].(string)
	if model == "" {
		model = s.cfg.DefaultModel
		body["model"] = model
	}
	stream, _ := body["stream"].(bool)

	L_info("gateway: native messages", "request_id", reqID, "model", model, "stream", stream)

	res := s.registry.Resolve(model)
	body = s.shaper.PrepareNative(body, res, reqID)

	clientBetas := r.Header.Get("anthropic-beta")

	if !stream {
		resp, err := s.anthropic.Do(r.Context(), body, clientBetas)
		if err != nil {
			writeError(w, reqID, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	tr := s.newTracer(reqID, "anthropic-messages")
	defer tr.Close()

	streamHeaders(w)
	emit := sseWriter(w)

	if err := s.anthropic.Stream(r.Context(), reqID, body, clientBetas, tr, emit); err != nil {
		L_warn("gateway: native messages stream failed", "request_id", reqID, "error", err)
		_ = emit("event: error\ndata: " + jsonString(map[string]interface{}{"error": err.Error()}) + "\n\n")
	}
}

func jsonString(v interface{}) string {
	encoded, _ := json.Marshal(v)
	return string(encoded)
}
