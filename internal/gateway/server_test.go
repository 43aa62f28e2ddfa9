package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roelfdiedericks/clawgate/internal/config"
	"github.com/roelfdiedericks/clawgate/internal/gwerr"
)

func testServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	cfg := config.Defaults()
	cfg.TokenFile = filepath.Join(t.TempDir(), "tokens.json")
	cfg.ModelsFile = filepath.Join(t.TempDir(), "models.json")
	s := NewServer(cfg)
	return s, s.setupRoutes()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response not JSON: %v\n%s", err, rec.Body.String())
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	_, h := testServer(t)

	for _, path := range []string{"/health", "/healthz"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
		if body := decodeBody(t, rec); body["status"] != "ok" {
			t.Errorf("%s: body = %v", path, body)
		}
	}
}

func TestModelsEndpoint(t *testing.T) {
	_, h := testServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["object"] != "list" {
		t.Errorf("object = %v", body["object"])
	}
	data, ok := body["data"].([]interface{})
	if !ok || len(data) == 0 {
		t.Fatalf("data = %v", body["data"])
	}

	ids := make(map[string]bool)
	for _, m := range data {
		ids[m.(map[string]interface{})["id"].(string)] = true
	}
	for _, want := range []string{"sonnet-4-5", "openai-gpt-5"} {
		if !ids[want] {
			t.Errorf("listing missing %q", want)
		}
	}
}

func TestModelsMethodNotAllowed(t *testing.T) {
	_, h := testServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/models", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestCountTokensEndpoint(t *testing.T) {
	_, h := testServer(t)

	payload := `{"model":"sonnet-4-5","messages":[{"role":"user","content":"What is the capital of Norway?"}]}`
	for _, path := range []string{"/v1/messages/count_tokens", "/v1/beta/messages/count_tokens"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(payload)))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
		body := decodeBody(t, rec)
		tokens, ok := body["input_tokens"].(float64)
		if !ok || tokens < 1 {
			t.Errorf("%s: input_tokens = %v", path, body["input_tokens"])
		}
	}
}

func TestCountTokensRejectsBadJSON(t *testing.T) {
	_, h := testServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/messages/count_tokens", strings.NewReader("{broken")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	errObj := body["error"].(map[string]interface{})
	if errObj["type"] != "invalid_request_error" {
		t.Errorf("error type = %v", errObj["type"])
	}
}

func TestAuthStatusEndpoint(t *testing.T) {
	_, h := testServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	for _, provider := range []string{"anthropic", "chatgpt"} {
		state, ok := body[provider].(map[string]interface{})
		if !ok {
			t.Fatalf("missing %s status: %v", provider, body)
		}
		if _, exposed := state["access_token"]; exposed {
			t.Errorf("%s status leaks token material", provider)
		}
	}
}

func TestChatCompletionsRejectsBadJSON(t *testing.T) {
	_, h := testServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("not json")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestChatCompletionsRejectsUnknownEffortForAnthropic(t *testing.T) {
	_, h := testServer(t)

	payload := `{"model":"sonnet-4-5","reasoning_effort":"minimal","messages":[{"role":"user","content":"hi"}]}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(payload)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody(t, rec)
	errObj := body["error"].(map[string]interface{})
	if errObj["type"] != "invalid_request_error" {
		t.Errorf("error type = %v", errObj["type"])
	}
	if msg, _ := errObj["message"].(string); !strings.Contains(msg, "reasoning_effort") {
		t.Errorf("message = %v", errObj["message"])
	}
}

func TestIsAPIPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/v1/chat/completions", true},
		{"/v1/messages", true},
		{"/v1/models", true},
		{"/health", false},
		{"/healthz", false},
		{"/models", false},
		{"/auth/status", false},
	}
	for _, tt := range tests {
		if got := isAPIPath(tt.path); got != tt.want {
			t.Errorf("isAPIPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWriteErrorEnvelopes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"auth absent", gwerr.ErrAuthAbsent, http.StatusUnauthorized, "authentication_error"},
		{"auth expired", gwerr.ErrAuthExpired, http.StatusUnauthorized, "authentication_error"},
		{"client error", gwerr.Clientf("model", "is required"), http.StatusBadRequest, "invalid_request_error"},
		{"transport error", &gwerr.TransportError{Op: "post", Err: gwerr.ErrAuthAbsent}, http.StatusBadGateway, "upstream_error"},
		{"malformed upstream", &gwerr.MalformedUpstreamError{Detail: "not JSON"}, http.StatusBadGateway, "upstream_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, "req1", tt.err)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := decodeBody(t, rec)
			errObj := body["error"].(map[string]interface{})
			if errObj["type"] != tt.wantType {
				t.Errorf("type = %v, want %q", errObj["type"], tt.wantType)
			}
		})
	}
}

func TestWriteErrorRelaysUpstreamJSON(t *testing.T) {
	upstreamBody := `{"error":{"type":"overloaded_error","message":"Overloaded"}}`
	rec := httptest.NewRecorder()
	writeError(rec, "req1", &gwerr.UpstreamStatusError{Status: 529, Body: []byte(upstreamBody)})

	if rec.Code != 529 {
		t.Errorf("status = %d, want 529", rec.Code)
	}
	body := decodeBody(t, rec)
	errObj := body["error"].(map[string]interface{})
	if errObj["type"] != "overloaded_error" || errObj["message"] != "Overloaded" {
		t.Errorf("upstream body not relayed verbatim: %v", body)
	}
}

func TestWriteErrorNonJSONUpstreamBody(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, "req1", &gwerr.UpstreamStatusError{Status: 503, Body: []byte("service unavailable")})

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	errObj := body["error"].(map[string]interface{})
	if msg, _ := errObj["message"].(string); !strings.Contains(msg, "service unavailable") {
		t.Errorf("message = %v", errObj["message"])
	}
}
