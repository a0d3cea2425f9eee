// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"axonflow/modelrunner/runner"
)

// scriptedExecutor fakes a backend for handler tests
type scriptedExecutor struct {
	chunks  []string
	content string
	err     error
}

func (e *scriptedExecutor) PricingProviderName() string { return "test" }

func (e *scriptedExecutor) ChatCompletion(ctx context.Context, req runner.Request) (*runner.ChatCompletion, error) {
	if e.err != nil {
		return nil, e.err
	}
	if req.Streaming() {
		for _, chunk := range e.chunks {
			if err := req.EmitChunk(ctx, chunk); err != nil {
				return nil, err
			}
		}
	}
	return &runner.ChatCompletion{
		Content:      e.content,
		Model:        req.Model,
		Provider:     req.Provider,
		FinishReason: "stop",
	}, nil
}

func newTestServer(t *testing.T, exec runner.Executor) *Server {
	t.Helper()
	registry := map[runner.ProviderName]runner.Executor{}
	for _, p := range runner.AllProviders() {
		registry[p] = exec
	}
	run, err := runner.NewRunner(registry)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return NewServer(run, nil, nil, nil)
}

// TestChatCompletionsHandler tests the non-streaming JSON path
func TestChatCompletionsHandler(t *testing.T) {
	s := newTestServer(t, &scriptedExecutor{content: "Hello"})

	body := `{"model": "openai:gpt-4o", "messages": [{"role": "user", "content": "Hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	s.chatCompletionsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var completion runner.ChatCompletion
	if err := json.Unmarshal(rec.Body.Bytes(), &completion); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if completion.Content != "Hello" {
		t.Errorf("content = %q", completion.Content)
	}
	if completion.Provider != runner.ProviderOpenAI {
		t.Errorf("provider = %q", completion.Provider)
	}
}

// TestChatCompletionsHandlerStreaming tests SSE chunk delivery plus the
// final summary event
func TestChatCompletionsHandlerStreaming(t *testing.T) {
	s := newTestServer(t, &scriptedExecutor{chunks: []string{"Hel", "lo"}, content: "Hello"})

	body := `{"model": "anthropic:claude-sonnet-4", "messages": [{"role": "user", "content": "Hi"}], "stream": true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	s.chatCompletionsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	out := rec.Body.String()
	first := strings.Index(out, `"Hel"`)
	second := strings.Index(out, `"lo"`)
	if first == -1 || second == -1 || first > second {
		t.Errorf("chunks missing or out of order:\n%s", out)
	}
	if !strings.Contains(out, "event: done") {
		t.Errorf("missing summary event:\n%s", out)
	}
	if !strings.Contains(out, "data: [DONE]") {
		t.Errorf("missing [DONE] marker:\n%s", out)
	}
}

// TestChatCompletionsHandlerStreamError tests that a mid-call failure
// ends the stream with an error event, not a summary
func TestChatCompletionsHandlerStreamError(t *testing.T) {
	s := newTestServer(t, &scriptedExecutor{err: &runner.BackendUnavailableError{
		Provider: runner.ProviderOpenAI,
		Cause:    context.DeadlineExceeded,
	}})

	body := `{"model": "openai:gpt-4o", "messages": [], "stream": true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	s.chatCompletionsHandler(rec, req)

	out := rec.Body.String()
	if !strings.Contains(out, "event: error") {
		t.Errorf("missing error event:\n%s", out)
	}
	if strings.Contains(out, "event: done") {
		t.Errorf("summary emitted despite failure:\n%s", out)
	}
}

// TestChatCompletionsHandlerStatusMapping tests error-to-status mapping
func TestChatCompletionsHandlerStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		exec       *scriptedExecutor
		wantStatus int
	}{
		{
			name:       "malformed identifier",
			body:       `{"model": "gpt-4o", "messages": []}`,
			exec:       &scriptedExecutor{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown provider",
			body:       `{"model": "cohere:command-r", "messages": []}`,
			exec:       &scriptedExecutor{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing credential",
			body:       `{"model": "openai:gpt-4o", "messages": []}`,
			exec:       &scriptedExecutor{err: &runner.MissingCredentialError{Provider: runner.ProviderOpenAI, Var: runner.EnvOpenAIAPIKey}},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "backend rejection passes status through",
			body:       `{"model": "openai:gpt-4o", "messages": []}`,
			exec:       &scriptedExecutor{err: &runner.BackendRejectedError{Provider: runner.ProviderOpenAI, StatusCode: 429, Code: "rate_limit_exceeded"}},
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "backend outage",
			body:       `{"model": "openai:gpt-4o", "messages": []}`,
			exec:       &scriptedExecutor{err: &runner.BackendUnavailableError{Provider: runner.ProviderOpenAI, Cause: context.DeadlineExceeded}},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.exec)
			req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			s.chatCompletionsHandler(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body: %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

// TestHealthHandler tests liveness reporting without a pricing backend
func TestHealthHandler(t *testing.T) {
	s := newTestServer(t, &scriptedExecutor{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.healthHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

// TestAgentRunHandlerUnconfigured tests the 503 when no agent manager
// endpoint is configured
func TestAgentRunHandlerUnconfigured(t *testing.T) {
	s := newTestServer(t, &scriptedExecutor{})

	req := httptest.NewRequest(http.MethodPost, "/v1/agent/run", strings.NewReader(`{"prompt": "x"}`))
	rec := httptest.NewRecorder()

	s.agentRunHandler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
