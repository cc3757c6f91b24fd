package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/corebridge/llmgateway/pkg/adapter"
	anthropicfe "github.com/corebridge/llmgateway/pkg/frontend/anthropic"
	geminife "github.com/corebridge/llmgateway/pkg/frontend/gemini"
	openaife "github.com/corebridge/llmgateway/pkg/frontend/openai"
	"github.com/corebridge/llmgateway/pkg/ir"
	"github.com/go-chi/chi/v5"
)

// handleHealth is a plain liveness probe; it does not probe backends
// itself (that's the Router's own background health check).
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListModels returns the Router's aggregated model list, single-
// flighted and cached for cacheTTL.
func (s *server) handleListModels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, err := s.cache.GetOrLoad("router:models", s.cacheTTL, func() (interface{}, error) {
		return s.router.ListModels(ctx, adapter.ListModelsFilter{})
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v.(adapter.ListModelsResult))
}

// handleOpenAI serves OpenAI's /v1/chat/completions dialect, branching on
// the decoded request's Stream flag to either Bridge.Chat or
// Bridge.ChatStream.
func (s *server) handleOpenAI(w http.ResponseWriter, r *http.Request) {
	var req openaife.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Stream {
		chunks, err := s.openaiBridge.ChatStream(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSSE(w, chunks, true)
		return
	}
	resp, err := s.openaiBridge.Chat(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAnthropic serves Anthropic's /v1/messages dialect.
func (s *server) handleAnthropic(w http.ResponseWriter, r *http.Request) {
	var req anthropicfe.MessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Stream {
		chunks, err := s.anthropicBridge.ChatStream(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSSE(w, chunks, false)
		return
	}
	resp, err := s.anthropicBridge.Chat(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGemini serves Gemini's models/{model}:generateContent dialect. The
// model name and the stream/unary split come from the URL, not the body.
func (s *server) handleGemini(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeGemini(w, r)
	if !ok {
		return
	}
	resp, err := s.geminiBridge.Chat(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGeminiStream serves models/{model}:streamGenerateContent with the
// alt=sse response framing.
func (s *server) handleGeminiStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeGemini(w, r)
	if !ok {
		return
	}
	req.Stream = true
	chunks, err := s.geminiBridge.ChatStream(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSSE(w, chunks, false)
}

func (s *server) decodeGemini(w http.ResponseWriter, r *http.Request) (geminife.GenerateRequest, bool) {
	var req geminife.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return req, false
	}
	req.Model = chi.URLParam(r, "model")
	return req, true
}

// handlePassthrough serves the raw IR dialect: callers POST an
// ir.ChatRequest directly and receive an ir.ChatResponse or IR stream
// chunks back, unchanged.
func (s *server) handlePassthrough(w http.ResponseWriter, r *http.Request) {
	var req ir.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Stream {
		chunks, err := s.passthroughBridge.ChatStream(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSSE(w, chunks, true)
		return
	}
	resp, err := s.passthroughBridge.Chat(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeSSE drains a dialect-shaped chunk channel onto the response as
// server-sent events, one JSON object per "data: " line. sentinel appends
// the literal "data: [DONE]" terminator for dialects that use it; Anthropic
// and Gemini streams end with their own terminal events instead.
func writeSSE(w http.ResponseWriter, chunks <-chan interface{}, sentinel bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	for chunk := range chunks {
		payload, err := json.Marshal(chunk)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		if flusher != nil {
			flusher.Flush()
		}
	}
	if sentinel {
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}
	if flusher != nil {
		flusher.Flush()
	}
}

// writeError maps a typed IR error onto an HTTP status per the taxonomy's
// intent: auth/authz/validation are client errors, rate limits carry 429,
// timeouts 504, cancellation 408, and everything else surfaces as a 502
// gateway-side failure.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	var (
		authErr  *ir.AuthenticationError
		authzErr *ir.AuthorizationError
		rlErr    *ir.RateLimitError
		valErr   *ir.ValidationError
		toErr    *ir.TimeoutError
		cancErr  *ir.CancelledError
	)
	switch {
	case errors.As(err, &authErr):
		status = http.StatusUnauthorized
	case errors.As(err, &authzErr):
		status = http.StatusForbidden
	case errors.As(err, &rlErr):
		status = http.StatusTooManyRequests
	case errors.As(err, &valErr):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &toErr):
		status = http.StatusGatewayTimeout
	case errors.As(err, &cancErr):
		status = http.StatusRequestTimeout
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
