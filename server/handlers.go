// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"axonflow/modelrunner/agents"
	"axonflow/modelrunner/common/usage"
	"axonflow/modelrunner/db"
	"axonflow/modelrunner/pricing"
	"axonflow/modelrunner/runner"
	"axonflow/modelrunner/shared/logger"
)

// streamBufferSize bounds in-flight chunks per streaming call. A slow
// client throttles the provider read once the buffer fills.
const streamBufferSize = 64

// Server holds the runner service's request handlers and dependencies
type Server struct {
	runner *runner.Runner
	prices *pricing.Service
	store  *db.Store
	agents *agents.Client
	usage  *usage.Recorder
	log    *logger.Logger
}

// NewServer wires the handlers over their dependencies. store and
// agent client are optional; the endpoints needing them return 503
// when absent, and usage metering runs only with a store attached.
func NewServer(r *runner.Runner, prices *pricing.Service, store *db.Store, agentClient *agents.Client) *Server {
	s := &Server{
		runner: r,
		prices: prices,
		store:  store,
		agents: agentClient,
		log:    logger.New("server"),
	}
	if store != nil {
		s.usage = usage.NewRecorder(store.DB())
	}
	return s
}

type chatCompletionRequest struct {
	Model    string               `json:"model"`
	Messages []runner.ChatMessage `json:"messages"`
	Params   runner.Params        `json:"params,omitempty"`
	Env      map[string]string    `json:"env,omitempty"`
	Stream   bool                 `json:"stream,omitempty"`
	Node     runner.NodeInfo      `json:"node,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// chatCompletionsHandler serves POST /v1/chat/completions in both
// JSON and SSE modes.
func (s *Server) chatCompletionsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		promRequestsTotal.WithLabelValues("chat_completions", "400").Inc()
		return
	}

	requestID := req.Node.ID.String()
	s.log.Info(requestID, "Chat completion requested", map[string]interface{}{
		"model":  req.Model,
		"stream": req.Stream,
	})

	if req.Stream {
		s.streamChatCompletion(r.Context(), w, req, start)
		return
	}

	completion, err := s.runner.ChatCompletion(r.Context(), req.Model, req.Messages, req.Params, req.Env, nil, req.Node)
	if err != nil {
		status := statusForError(err)
		s.writeError(w, status, err)
		s.observeCompletion(req, start, status, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(completion); err != nil {
		s.log.ErrorWithErr(requestID, "Failed to encode completion", err)
	}
	s.observeCompletion(req, start, http.StatusOK, nil)
	s.recordUsage(req, completion, start)
}

// streamChatCompletion delivers chunks as SSE events, then a final
// summary event and a [DONE] marker. The client going away cancels the
// request context, which unwinds the provider read.
func (s *Server) streamChatCompletion(ctx context.Context, w http.ResponseWriter, req chatCompletionRequest, start time.Time) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported by connection"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sink := make(chan runner.StreamChunk, streamBufferSize)

	type outcome struct {
		completion *runner.ChatCompletion
		err        error
	}
	result := make(chan outcome, 1)

	go func() {
		completion, err := s.runner.ChatCompletion(ctx, req.Model, req.Messages, req.Params, req.Env, sink, req.Node)
		close(sink)
		result <- outcome{completion, err}
	}()

	for chunk := range sink {
		data, err := json.Marshal(chunk)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	res := <-result
	if res.err != nil {
		// Chunks already delivered stand; the stream ends in an error
		// event instead of a summary.
		payload, _ := json.Marshal(errorResponse{Error: res.err.Error()})
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
		flusher.Flush()
		s.observeCompletion(req, start, statusForError(res.err), res.err)
		return
	}

	summary, _ := json.Marshal(res.completion)
	fmt.Fprintf(w, "event: done\ndata: %s\n\n", summary)
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
	s.observeCompletion(req, start, http.StatusOK, nil)
	s.recordUsage(req, res.completion, start)
}

type agentRunRequest struct {
	agents.RunAgentRequest
	UserID *uuid.UUID `json:"user_id,omitempty"`
}

// agentRunHandler proxies POST /v1/agent/run to the agent manager and
// persists the exchange when a session and user are attached.
func (s *Server) agentRunHandler(w http.ResponseWriter, r *http.Request) {
	if s.agents == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("agent manager is not configured"))
		return
	}

	var req agentRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	output, err := s.agents.RunAgent(r.Context(), req.RunAgentRequest)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	if s.store != nil && req.SessionID != nil && req.UserID != nil {
		s.persistAgentExchange(r.Context(), req, output)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(output); err != nil {
		s.log.ErrorWithErr("", "Failed to encode agent output", err)
	}
}

// persistAgentExchange records the user prompt and assistant reply in
// the session transcript and stores the updated agent state. Failures
// are logged, not surfaced: persistence is best-effort bookkeeping
// around an already-delivered result.
func (s *Server) persistAgentExchange(ctx context.Context, req agentRunRequest, output *agents.AgentOutput) {
	now := time.Now().UTC()

	userContent, _ := json.Marshal(map[string]string{"text": req.Prompt})
	if err := s.store.InsertAgentMessage(ctx, uuid.New(), *req.SessionID, *req.UserID, db.MessageTypeUser, userContent, now); err != nil {
		s.log.ErrorWithErr("", "Failed to persist user message", err)
	}

	assistantContent, _ := json.Marshal(map[string]string{"text": output.Content})
	if err := s.store.InsertAgentMessage(ctx, uuid.New(), *req.SessionID, *req.UserID, db.MessageTypeAssistant, assistantContent, now); err != nil {
		s.log.ErrorWithErr("", "Failed to persist assistant message", err)
	}

	if output.AgentState != nil {
		if err := s.store.UpdateAgentState(ctx, *req.SessionID, *output.AgentState, *req.UserID); err != nil {
			s.log.ErrorWithErr("", "Failed to persist agent state", err)
		}
	}
}

// healthHandler reports service liveness and pricing store reachability
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthy := s.prices == nil || s.prices.IsHealthy(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  map[bool]string{true: "healthy", false: "degraded"}[healthy],
		"service": "model-runner",
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := errorResponse{Error: err.Error()}
	var rejErr *runner.BackendRejectedError
	if errors.As(err, &rejErr) {
		resp.Code = rejErr.Code
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) observeCompletion(req chatCompletionRequest, start time.Time, status int, err error) {
	promRequestsTotal.WithLabelValues("chat_completions", strconv.Itoa(status)).Inc()
	promRequestDuration.WithLabelValues("chat_completions").Observe(float64(time.Since(start).Milliseconds()))

	providerTag, _, splitErr := runner.SplitModel(req.Model)
	if splitErr != nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	promLLMCalls.WithLabelValues(providerTag, outcome).Inc()
}

// recordUsage meters a completed call for billing. Metering is
// best-effort and runs off the request path.
func (s *Server) recordUsage(req chatCompletionRequest, completion *runner.ChatCompletion, start time.Time) {
	if s.usage == nil || completion == nil {
		return
	}
	providerTag, model, err := runner.SplitModel(req.Model)
	if err != nil {
		return
	}
	event := usage.LLMCallEvent{
		Provider:         providerTag,
		Model:            model,
		PromptTokens:     completion.Usage.InputTokens + completion.Usage.CacheWriteTokens + completion.Usage.CacheReadTokens,
		CompletionTokens: completion.Usage.OutputTokens,
		CacheReadTokens:  completion.Usage.CacheReadTokens,
		TotalTokens:      completion.Usage.TotalTokens,
		EstimatedCostUSD: completion.CostUSD,
		LatencyMs:        time.Since(start).Milliseconds(),
		HTTPStatusCode:   http.StatusOK,
	}
	go func() {
		_ = s.usage.RecordLLMCall(event)
	}()
}

// statusForError maps the runner error taxonomy onto HTTP statuses
func statusForError(err error) int {
	var rejErr *runner.BackendRejectedError
	var unavailErr *runner.BackendUnavailableError
	var unknownErr *runner.UnknownProviderError
	var missingErr *runner.MissingCredentialError

	switch {
	case errors.Is(err, runner.ErrInvalidModelFormat), errors.As(err, &unknownErr):
		return http.StatusBadRequest
	case errors.As(err, &missingErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &rejErr):
		return rejErr.StatusCode
	case errors.As(err, &unavailErr):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, runner.ErrSinkClosed):
		return 499 // client closed request
	default:
		return http.StatusInternalServerError
	}
}
