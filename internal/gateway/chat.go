package gateway

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/roelfdiedericks/clawgate/internal/convert"
	"github.com/roelfdiedericks/clawgate/internal/gwerr"
	. "github.com/roelfdiedericks/clawgate/internal/logging"
	"github.com/roelfdiedericks/clawgate/internal/registry"
	"github.com/roelfdiedericks/clawgate/internal/sse"
	"github.com/roelfdiedericks/clawgate/internal/trace"
)

// handleChatCompletions serves POST /v1/chat/completions, routing each
// request to the Anthropic, ChatGPT or custom driver by model name.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, reqID, err)
		return
	}

	var req convert.ChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": map[string]interface{}{
				"message": "invalid JSON body: " + err.Error(),
				"type":    "invalid_request_error",
			},
		})
		return
	}
	if req.Model == "" {
		req.Model = s.cfg.DefaultModel
	}

	switch {
	case s.registry.IsChatGPT(req.Model):
		L_info("gateway: chat completion", "request_id", reqID, "model", req.Model, "route", "chatgpt", "stream", req.Stream)
		s.chatViaChatGPT(w, r, reqID, &req)
	case s.registry.IsCustom(req.Model):
		L_info("gateway: chat completion", "request_id", reqID, "model", req.Model, "route", "custom", "stream", req.Stream)
		s.chatViaCustom(w, r, reqID, raw, &req)
	default:
		L_info("gateway: chat completion", "request_id", reqID, "model", req.Model, "route", "anthropic", "stream", req.Stream)
		s.chatViaAnthropic(w, r, reqID, &req)
	}
}

func (s *Server) newTracer(reqID, route string) *trace.Tracer {
	return trace.New(s.cfg.Trace.Enabled, reqID, route, s.cfg.Trace.Dir, s.cfg.Trace.MaxBytes)
}

// chatViaAnthropic converts the request, shapes it and relays through the
// Anthropic driver with OpenAI chunk translation on the way back.
func (s *Server) chatViaAnthropic(w http.ResponseWriter, r *http.Request, reqID string, req *convert.ChatRequest) {
	if req.ReasoningEffort != "" {
		if _, ok := registry.ReasoningBudgets[req.ReasoningEffort]; !ok {
			writeError(w, reqID, gwerr.Clientf("reasoning_effort", "%q is not supported for Anthropic models; use low, medium or high", req.ReasoningEffort))
			return
		}
	}

	res := s.registry.Resolve(req.Model)
	body := convert.ToAnthropic(req)
	body = s.shaper.Prepare(body, res, req.ReasoningEffort, reqID)

	clientBetas := r.Header.Get("anthropic-beta")

	if !req.Stream {
		resp, err := s.anthropic.Do(r.Context(), body, clientBetas)
		if err != nil {
			writeError(w, reqID, err)
			return
		}
		writeJSON(w, http.StatusOK, convert.FromAnthropic(resp, req.Model, s.cache))
		return
	}

	tr := s.newTracer(reqID, "openai-chat")
	defer tr.Close()

	streamHeaders(w)
	emit := sseWriter(w)

	parser := sse.New()
	converter := convert.NewStreamConverter(req.Model, reqID, s.cache)

	emitFrames := func(events []sse.Event) error {
		for _, ev := range events {
			for _, frame := range converter.HandleEvent(ev) {
				tr.ConvertedChunk(frame)
				if err := emit(frame); err != nil {
					return err
				}
			}
		}
		return nil
	}

	err := s.anthropic.Stream(r.Context(), reqID, body, clientBetas, tr, func(chunk string) error {
		return emitFrames(parser.Feed(chunk))
	})
	if err != nil {
		L_warn("gateway: anthropic stream failed", "request_id", reqID, "error", err)
		errFrame := streamErrorFrame(err)
		tr.Error("stream failed: %v", err)
		_ = emit(errFrame)
	} else {
		_ = emitFrames(parser.Flush())
	}

	// Terminator goes out even after an error so clients unblock.
	_ = emit(convert.DoneFrame)
}

// chatViaChatGPT builds a Responses payload and streams translated chunks.
func (s *Server) chatViaChatGPT(w http.ResponseWriter, r *http.Request, reqID string, req *convert.ChatRequest) {
	res := s.registry.Resolve(req.Model)
	payload, sessionID := s.chatgpt.BuildPayload(req, res)

	if !req.Stream {
		tr := s.newTracer(reqID, "chatgpt")
		defer tr.Close()
		resp, err := s.chatgpt.Collect(r.Context(), reqID, payload, sessionID, req.Model, tr)
		if err != nil {
			writeError(w, reqID, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	tr := s.newTracer(reqID, "chatgpt")
	defer tr.Close()

	streamHeaders(w)
	emit := sseWriter(w)

	err := s.chatgpt.Stream(r.Context(), reqID, payload, sessionID, req.Model, tr, emit)
	if err != nil {
		L_warn("gateway: chatgpt stream failed", "request_id", reqID, "error", err)
		_ = emit(streamErrorFrame(err))
	}
	_ = emit(convert.DoneFrame)
}

// chatViaCustom forwards the raw body with only the model id swapped.
func (s *Server) chatViaCustom(w http.ResponseWriter, r *http.Request, reqID string, raw []byte, req *convert.ChatRequest) {
	entry := s.registry.CustomConfig(req.Model)
	if entry == nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": map[string]interface{}{
				"message": "custom model '" + req.Model + "' not properly configured",
				"type":    "invalid_request_error",
			},
		})
		return
	}

	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		writeError(w, reqID, err)
		return
	}
	body["model"] = entry.BackendID

	if !req.Stream {
		respBody, status, err := s.custom.Do(r.Context(), reqID, body, entry.BaseURL, entry.APIKey)
		if err != nil {
			writeError(w, reqID, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(respBody)
		return
	}

	tr := s.newTracer(reqID, "custom-provider")
	defer tr.Close()

	streamHeaders(w)
	emit := sseWriter(w)

	// Verbatim passthrough: the provider sends its own [DONE].
	if err := s.custom.Stream(r.Context(), reqID, body, entry.BaseURL, entry.APIKey, tr, emit); err != nil {
		L_warn("gateway: custom stream failed", "request_id", reqID, "error", err)
		_ = emit(streamErrorFrame(err))
	}
}

// streamErrorFrame shapes an error that occurred after streaming started.
func streamErrorFrame(err error) string {
	encoded, _ := json.Marshal(map[string]interface{}{
		"error": map[string]interface{}{
			"message": err.Error(),
			"type":    "api_error",
		},
	})
	return "data: " + string(encoded) + "\n\n"
}
