// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package anthropic implements the Anthropic backend executor over the
// Messages API. Anthropic keeps the system prompt out of the message
// list and reports prompt-cache writes and reads as separate usage
// fields, which feed the separately priced cache token categories.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"axonflow/modelrunner/runner"
)

// DefaultBaseURL is the Anthropic API base
const DefaultBaseURL = "https://api.anthropic.com"

// APIVersion is the anthropic-version header value
const APIVersion = "2023-06-01"

const (
	defaultTimeout   = 120 * time.Second
	defaultMaxTokens = 4096
)

// HTTPClient is an interface for HTTP client operations (enables testing)
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Executor runs chat completions against the Anthropic Messages API
type Executor struct {
	runner.CostEstimator
	httpClient HTTPClient
	baseURL    string
}

// New creates an Anthropic executor priced from the given source
func New(prices runner.PriceSource) *Executor {
	return &Executor{
		CostEstimator: runner.NewCostEstimator(prices, "anthropic"),
		httpClient:    &http.Client{Timeout: defaultTimeout},
		baseURL:       DefaultBaseURL,
	}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string    `json:"stop_reason"`
	Usage      wireUsage `json:"usage"`
}

// Streaming event payloads. Only the fields this client consumes are
// declared; everything else in an event is ignored.
type streamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Model string    `json:"model"`
		Usage wireUsage `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage *wireUsage `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ChatCompletion implements runner.Executor
func (e *Executor) ChatCompletion(ctx context.Context, req runner.Request) (*runner.ChatCompletion, error) {
	apiKey, err := runner.ProviderAnthropic.APIKey(req.Env)
	if err != nil {
		return nil, err
	}

	wire := e.buildRequest(req)
	start := time.Now()

	resp, err := e.post(ctx, apiKey, wire)
	if err != nil {
		return nil, e.mapError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, e.mapError(parseAPIError(resp))
	}

	var (
		content      string
		finishReason string
		model        string
		usage        runner.Usage
	)

	if req.Streaming() {
		content, finishReason, model, usage, err = e.readStream(ctx, resp.Body, req)
		if err != nil {
			return nil, e.mapError(err)
		}
	} else {
		var out wireResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, e.mapError(fmt.Errorf("failed to decode response: %w", err))
		}
		var sb strings.Builder
		for _, block := range out.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		content = sb.String()
		finishReason = out.StopReason
		model = out.Model
		usage = usageFromWire(out.Usage)
	}

	if model == "" {
		model = req.Model
	}

	return &runner.ChatCompletion{
		Content:      content,
		Model:        model,
		Provider:     runner.ProviderAnthropic,
		FinishReason: finishReason,
		Usage:        usage,
		CostUSD:      e.EstimateUsageCost(ctx, req.Model, usage),
		Latency:      time.Since(start),
	}, nil
}

// buildRequest maps the normalized request onto the Messages API shape.
// A leading system message moves to the dedicated system field.
func (e *Executor) buildRequest(req runner.Request) wireRequest {
	wire := wireRequest{
		Model:     req.Model,
		MaxTokens: defaultMaxTokens,
		Stream:    req.Streaming(),
	}

	messages := req.Messages
	if len(messages) > 0 && messages[0].Role == runner.RoleSystem {
		wire.System = messages[0].Content
		messages = messages[1:]
	}
	for _, m := range messages {
		wire.Messages = append(wire.Messages, wireMessage{Role: m.Role, Content: m.Content})
	}

	if v, ok := req.Params.Int("max_tokens"); ok {
		wire.MaxTokens = v
	}
	if v, ok := req.Params.Float("temperature"); ok {
		wire.Temperature = &v
	}
	if v, ok := req.Params.Float("top_p"); ok {
		wire.TopP = &v
	}

	return wire
}

// readStream consumes the Messages API event stream, emitting text
// deltas onto the request's sink as they arrive. message_start carries
// input-side usage, message_delta the output-side tally and stop reason.
func (e *Executor) readStream(ctx context.Context, body io.Reader, req runner.Request) (content, finishReason, model string, usage runner.Usage, err error) {
	var sb strings.Builder

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			continue // Skip malformed events
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				model = event.Message.Model
				in := usageFromWire(event.Message.Usage)
				usage.InputTokens = in.InputTokens
				usage.CacheWriteTokens = in.CacheWriteTokens
				usage.CacheReadTokens = in.CacheReadTokens
			}

		case "content_block_delta":
			if event.Delta == nil || event.Delta.Text == "" {
				continue
			}
			sb.WriteString(event.Delta.Text)
			if err := req.EmitChunk(ctx, event.Delta.Text); err != nil {
				return "", "", "", runner.Usage{}, err
			}

		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				finishReason = event.Delta.StopReason
			}
			if event.Usage != nil {
				usage.OutputTokens = event.Usage.OutputTokens
			}

		case "error":
			if event.Error != nil {
				return "", "", "", runner.Usage{}, &apiError{
					StatusCode: http.StatusOK,
					Code:       event.Error.Type,
					Message:    event.Error.Message,
				}
			}

		case "message_stop":
			// Terminal event; the server closes the stream after it.
		}
	}

	if err := scanner.Err(); err != nil {
		return "", "", "", runner.Usage{}, fmt.Errorf("stream read error: %w", err)
	}

	usage.TotalTokens = usage.InputTokens + usage.CacheWriteTokens + usage.CacheReadTokens + usage.OutputTokens
	return sb.String(), finishReason, model, usage, nil
}

func (e *Executor) post(ctx context.Context, apiKey string, wire wireRequest) (*http.Response, error) {
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/messages", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", apiKey)
	httpReq.Header.Set("Anthropic-Version", APIVersion)

	return e.httpClient.Do(httpReq)
}

func (e *Executor) mapError(err error) error {
	if errors.Is(err, runner.ErrSinkClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var api *apiError
	if errors.As(err, &api) {
		if api.StatusCode >= 500 {
			return &runner.BackendUnavailableError{Provider: runner.ProviderAnthropic, Cause: api}
		}
		return &runner.BackendRejectedError{
			Provider:   runner.ProviderAnthropic,
			StatusCode: api.StatusCode,
			Code:       api.Code,
			Message:    api.Message,
		}
	}

	return &runner.BackendUnavailableError{Provider: runner.ProviderAnthropic, Cause: err}
}

func usageFromWire(u wireUsage) runner.Usage {
	return runner.Usage{
		InputTokens:      u.InputTokens,
		CacheWriteTokens: u.CacheCreationInputTokens,
		CacheReadTokens:  u.CacheReadInputTokens,
		OutputTokens:     u.OutputTokens,
		TotalTokens:      u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens + u.OutputTokens,
	}
}

type apiError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API error (status %d, %s): %s", e.StatusCode, e.Code, e.Message)
}

func parseAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return &apiError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	return &apiError{
		StatusCode: resp.StatusCode,
		Code:       errResp.Error.Type,
		Message:    errResp.Error.Message,
	}
}
