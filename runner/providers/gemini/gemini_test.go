// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"axonflow/modelrunner/pricing"
	"axonflow/modelrunner/runner"
)

type fakePrices struct{}

func (fakePrices) GetPrice(context.Context, string, string) *pricing.ModelPrice { return nil }

// TestChatCompletion tests the non-streaming round trip: role mapping,
// system_instruction hoist, and usage metadata conversion
func TestChatCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-2.0-flash:generateContent" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("X-Goog-Api-Key") != "gm-test" {
			t.Errorf("api key header = %q", r.Header.Get("X-Goog-Api-Key"))
		}

		var body wireRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.SystemInstruction == nil || body.SystemInstruction.Parts[0].Text != "Be brief." {
			t.Errorf("system instruction = %+v", body.SystemInstruction)
		}
		if len(body.Contents) != 2 {
			t.Fatalf("contents = %+v", body.Contents)
		}
		if body.Contents[0].Role != "user" || body.Contents[1].Role != "model" {
			t.Errorf("roles = %q, %q", body.Contents[0].Role, body.Contents[1].Role)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Hi."}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 50, "cachedContentTokenCount": 20, "candidatesTokenCount": 5, "totalTokenCount": 55},
			"modelVersion": "gemini-2.0-flash-001"
		}`)
	}))
	defer server.Close()

	exec := New(fakePrices{})
	exec.baseURL = server.URL
	exec.httpClient = server.Client()

	result, err := exec.ChatCompletion(context.Background(), runner.Request{
		Model:    "gemini-2.0-flash",
		Provider: runner.ProviderGemini,
		Messages: []runner.ChatMessage{
			{Role: runner.RoleSystem, Content: "Be brief."},
			{Role: runner.RoleUser, Content: "Hi"},
			{Role: runner.RoleAssistant, Content: "Hello"},
		},
		Env: map[string]string{runner.EnvGeminiAPIKey: "gm-test"},
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	if result.Content != "Hi." {
		t.Errorf("content = %q", result.Content)
	}
	if result.FinishReason != "STOP" {
		t.Errorf("finish reason = %q", result.FinishReason)
	}
	if result.Model != "gemini-2.0-flash-001" {
		t.Errorf("model = %q", result.Model)
	}

	// Cached content splits out of the regular input count.
	want := runner.Usage{InputTokens: 30, CacheReadTokens: 20, OutputTokens: 5, TotalTokens: 55}
	if result.Usage != want {
		t.Errorf("usage = %+v, want %+v", result.Usage, want)
	}
}

// TestChatCompletionStreaming tests SSE parsing of whole-response deltas
func TestChatCompletionStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-2.0-flash:streamGenerateContent" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("alt") != "sse" {
			t.Errorf("alt = %q", r.URL.Query().Get("alt"))
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\"one \"}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\"two\"}]},\"finishReason\":\"STOP\"}],\"usageMetadata\":{\"promptTokenCount\":7,\"candidatesTokenCount\":2,\"totalTokenCount\":9}}\n\n")
	}))
	defer server.Close()

	exec := New(fakePrices{})
	exec.baseURL = server.URL
	exec.httpClient = server.Client()

	sink := make(chan runner.StreamChunk, 8)
	result, err := exec.ChatCompletion(context.Background(), runner.Request{
		Model:    "gemini-2.0-flash",
		Provider: runner.ProviderGemini,
		Messages: []runner.ChatMessage{{Role: runner.RoleUser, Content: "count"}},
		Env:      map[string]string{runner.EnvGeminiAPIKey: "gm-test"},
		Sink:     sink,
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	close(sink)

	var chunks []string
	for chunk := range sink {
		chunks = append(chunks, chunk.Content)
	}
	if len(chunks) != 2 || chunks[0] != "one " || chunks[1] != "two" {
		t.Errorf("chunks = %v", chunks)
	}
	if result.Content != "one two" {
		t.Errorf("content = %q", result.Content)
	}
	if result.FinishReason != "STOP" {
		t.Errorf("finish reason = %q", result.FinishReason)
	}
	if result.Usage.InputTokens != 7 || result.Usage.OutputTokens != 2 {
		t.Errorf("usage = %+v", result.Usage)
	}
}

// TestChatCompletionRejection tests 4xx mapping from the error envelope
func TestChatCompletionRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error": {"status": "PERMISSION_DENIED", "message": "API key not valid"}}`)
	}))
	defer server.Close()

	exec := New(fakePrices{})
	exec.baseURL = server.URL
	exec.httpClient = server.Client()

	_, err := exec.ChatCompletion(context.Background(), runner.Request{
		Model:    "gemini-2.0-flash",
		Provider: runner.ProviderGemini,
		Env:      map[string]string{runner.EnvGeminiAPIKey: "gm-bad"},
	})

	var rejErr *runner.BackendRejectedError
	if !errors.As(err, &rejErr) {
		t.Fatalf("expected BackendRejectedError, got %v", err)
	}
	if rejErr.Code != "PERMISSION_DENIED" {
		t.Errorf("code = %q", rejErr.Code)
	}
}
