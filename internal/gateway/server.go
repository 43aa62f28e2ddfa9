// Package gateway provides the local HTTP API surface: OpenAI chat
// completions, native Anthropic messages, the Responses front door, model
// listing and health endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roelfdiedericks/clawgate/internal/auth"
	"github.com/roelfdiedericks/clawgate/internal/config"
	"github.com/roelfdiedericks/clawgate/internal/counter"
	"github.com/roelfdiedericks/clawgate/internal/gwerr"
	. "github.com/roelfdiedericks/clawgate/internal/logging"
	"github.com/roelfdiedericks/clawgate/internal/registry"
	"github.com/roelfdiedericks/clawgate/internal/shaper"
	"github.com/roelfdiedericks/clawgate/internal/thinkcache"
	"github.com/roelfdiedericks/clawgate/internal/upstream"
)

// Server is the gateway HTTP server.
type Server struct {
	server   *http.Server
	cfg      *config.Config
	registry *registry.Registry
	shaper   *shaper.Shaper
	cache    *thinkcache.Cache
	counter  *counter.Estimator

	anthropicAuth *auth.Manager
	chatgptAuth   *auth.Manager

	anthropic *upstream.AnthropicDriver
	chatgpt   *upstream.ChatGPTDriver
	custom    *upstream.CustomDriver

	wg sync.WaitGroup
}

// NewServer wires the gateway together from configuration.
func NewServer(cfg *config.Config) *Server {
	cache := thinkcache.New()
	anthropicAuth := auth.NewManager(auth.ProviderAnthropic, auth.NewAnthropicStore(cfg.TokenFile))
	chatgptAuth := auth.NewManager(auth.ProviderChatGPT, auth.NewChatGPTStore())

	if cfg.AnthropicOAuthToken != "" {
		anthropicAuth.SeedLongTerm(cfg.AnthropicOAuthToken)
	}

	s := &Server{
		cfg:           cfg,
		registry:      registry.New(cfg.ModelsFile),
		shaper:        shaper.New(cache),
		cache:         cache,
		counter:       counter.Get(),
		anthropicAuth: anthropicAuth,
		chatgptAuth:   chatgptAuth,
		anthropic:     upstream.NewAnthropicDriver(cfg, anthropicAuth),
		chatgpt:       upstream.NewChatGPTDriver(cfg, chatgptAuth),
		custom:        upstream.NewCustomDriver(cfg),
	}

	s.server = &http.Server{
		Addr:        cfg.ListenAddr(),
		Handler:     s.setupRoutes(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: streams may legitimately run for minutes; the
		// drivers enforce their own stream deadlines.
		IdleTimeout: 120 * time.Second,
	}
	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Middleware chain: request id -> logging
	wrap := func(h http.HandlerFunc) http.HandlerFunc {
		return s.logRequest(s.withRequestID(h))
	}

	mux.HandleFunc("/v1/chat/completions", wrap(s.handleChatCompletions))
	mux.HandleFunc("/v1/messages", wrap(s.handleMessages))
	mux.HandleFunc("/v1/messages/count_tokens", wrap(s.handleCountTokens))
	mux.HandleFunc("/v1/beta/messages/count_tokens", wrap(s.handleCountTokens))
	mux.HandleFunc("/v1/responses", wrap(s.handleResponses))
	mux.HandleFunc("/v1/models", wrap(s.handleModels))
	mux.HandleFunc("/models", wrap(s.handleModels))
	mux.HandleFunc("/health", wrap(s.handleHealth))
	mux.HandleFunc("/healthz", wrap(s.handleHealth))
	mux.HandleFunc("/auth/status", wrap(s.handleAuthStatus))

	return mux
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		L_info("gateway: server starting", "addr", s.server.Addr)
		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			L_error("gateway: server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		L_error("gateway: shutdown error", "error", err)
		return err
	}
	s.wg.Wait()
	L_info("gateway: server stopped")
	return nil
}

type contextKey string

const requestIDKey contextKey = "request_id"

// withRequestID tags each request with a short id for log correlation.
func (s *Server) withRequestID(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.SplitN(uuid.NewString(), "-", 2)[0]
		handler(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	}
}

func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return "unknown"
}

// logRequest logs method, path, status and duration for API requests.
// Health checks and other non-API paths stay quiet.
func (s *Server) logRequest(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !isAPIPath(r.URL.Path) {
			handler(w, r)
			return
		}
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(lw, r)

		L_debug("gateway: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", lw.statusCode,
			"duration", time.Since(start))
	}
}

// isAPIPath reports whether a path belongs to the /v1 API surface.
func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/v1/")
}

// loggingResponseWriter wraps ResponseWriter to capture the status code.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	lw.statusCode = code
	lw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for SSE support.
func (lw *loggingResponseWriter) Flush() {
	if f, ok := lw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		L_debug("gateway: response encode failed", "error", err)
	}
}

// writeError translates an internal error into the OpenAI error envelope.
func writeError(w http.ResponseWriter, reqID string, err error) {
	var (
		status  = http.StatusInternalServerError
		errType = "api_error"
		message = err.Error()
	)

	var clientErr *gwerr.ClientError
	var upstreamErr *gwerr.UpstreamStatusError
	var transportErr *gwerr.TransportError
	var malformedErr *gwerr.MalformedUpstreamError

	switch {
	case errors.Is(err, gwerr.ErrAuthAbsent), errors.Is(err, gwerr.ErrAuthExpired):
		status = http.StatusUnauthorized
		errType = "authentication_error"
	case errors.As(err, &clientErr):
		status = http.StatusBadRequest
		errType = "invalid_request_error"
	case errors.As(err, &upstreamErr):
		// Relay the upstream body verbatim when it is valid JSON.
		status = upstreamErr.Status
		var body map[string]interface{}
		if json.Unmarshal(upstreamErr.Body, &body) == nil && body != nil {
			writeJSON(w, status, body)
			return
		}
		message = string(upstreamErr.Body)
	case errors.As(err, &transportErr):
		status = http.StatusBadGateway
		errType = "upstream_error"
	case errors.As(err, &malformedErr):
		status = http.StatusBadGateway
		errType = "upstream_error"
	}

	L_warn("gateway: request failed", "request_id", reqID, "status", status, "error", err)
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    errType,
		},
	})
}

// streamHeaders prepares the response for SSE delivery.
func streamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// sseWriter returns an emit function that writes a frame and flushes.
func sseWriter(w http.ResponseWriter) func(string) error {
	flusher, _ := w.(http.Flusher)
	return func(frame string) error {
		if _, err := w.Write([]byte(frame)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}
}
