// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package agents is a pass-through client for the agent-manager
// service. It maps requests onto the remote surface and hands results
// back without interpreting them; session persistence and state
// handling live with the caller.
package agents

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultTimeout = 10 * time.Minute

// HTTPClient is an interface for HTTP client operations (enables testing)
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to one agent-manager endpoint
type Client struct {
	endpoint   string
	httpClient HTTPClient
}

// NewClient creates an agent-manager client for the given base endpoint
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// RunAgentRequest carries one agent invocation. Everything except the
// prompt is optional and forwarded verbatim.
type RunAgentRequest struct {
	Prompt            string     `json:"prompt"`
	SessionID         *uuid.UUID `json:"session_id,omitempty"`
	RequestAPIKey     *string    `json:"request_api_key,omitempty"`
	ParentSpanContext *string    `json:"parent_span_context,omitempty"`
	AgentState        *string    `json:"agent_state,omitempty"`
	ModelProvider     *string    `json:"model_provider,omitempty"`
	Model             *string    `json:"model,omitempty"`
	EnableThinking    bool       `json:"enable_thinking"`
}

// AgentOutput is the final result of an agent run
type AgentOutput struct {
	Content    string  `json:"content"`
	AgentState *string `json:"agent_state,omitempty"`
}

// StreamChunk is one event from a streaming agent run. Type is "step"
// for intermediate output and "final" for the closing chunk.
type StreamChunk struct {
	Type       string  `json:"type"`
	Content    string  `json:"content"`
	AgentState *string `json:"agent_state,omitempty"`
}

// RunAgent executes an agent run and blocks until the final output
func (c *Client) RunAgent(ctx context.Context, req RunAgentRequest) (*AgentOutput, error) {
	resp, err := c.post(ctx, c.endpoint+"/v1/agent/run", req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var out AgentOutput
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode agent output: %w", err)
	}

	return &out, nil
}

// RunAgentStream executes an agent run, delivering chunks on sink in
// arrival order. The send blocks when the sink is full; cancelling ctx
// releases it and aborts the run. The sink stays open for the caller.
func (c *Client) RunAgentStream(ctx context.Context, req RunAgentRequest, sink chan<- StreamChunk) error {
	resp, err := c.post(ctx, c.endpoint+"/v1/agent/run/stream", req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var chunk StreamChunk
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			continue // Skip malformed events
		}

		select {
		case sink <- chunk:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("agent stream read error: %w", err)
	}

	return nil
}

func (c *Client) post(ctx context.Context, url string, req RunAgentRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal agent request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create agent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return c.httpClient.Do(httpReq)
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("agent manager returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
