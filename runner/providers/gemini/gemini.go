// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package gemini implements the Google Gemini backend executor over the
// generateContent API. Gemini uses "model" for the assistant role,
// hoists the system message into system_instruction, and streams whole
// GenerateContentResponse objects as SSE data payloads.
package gemini

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

// DefaultBaseURL is the Gemini API base
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

const defaultTimeout = 120 * time.Second

// HTTPClient is an interface for HTTP client operations (enables testing)
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Executor runs chat completions against the Gemini API
type Executor struct {
	runner.CostEstimator
	httpClient HTTPClient
	baseURL    string
}

// New creates a Gemini executor priced from the given source
func New(prices runner.PriceSource) *Executor {
	return &Executor{
		CostEstimator: runner.NewCostEstimator(prices, "gemini"),
		httpClient:    &http.Client{Timeout: defaultTimeout},
		baseURL:       DefaultBaseURL,
	}
}

type wirePart struct {
	Text string `json:"text"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type wireRequest struct {
	SystemInstruction *wireContent      `json:"system_instruction,omitempty"`
	Contents          []wireContent     `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type usageMetadata struct {
	PromptTokenCount        int64 `json:"promptTokenCount"`
	CachedContentTokenCount int64 `json:"cachedContentTokenCount"`
	CandidatesTokenCount    int64 `json:"candidatesTokenCount"`
	TotalTokenCount         int64 `json:"totalTokenCount"`
}

type wireResponse struct {
	Candidates []struct {
		Content      wireContent `json:"content"`
		FinishReason string      `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata"`
	ModelVersion  string         `json:"modelVersion"`
}

// ChatCompletion implements runner.Executor
func (e *Executor) ChatCompletion(ctx context.Context, req runner.Request) (*runner.ChatCompletion, error) {
	apiKey, err := runner.ProviderGemini.APIKey(req.Env)
	if err != nil {
		return nil, err
	}

	wire := buildRequest(req)

	method := "generateContent"
	if req.Streaming() {
		method = "streamGenerateContent?alt=sse"
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:%s", e.baseURL, req.Model, method)

	start := time.Now()

	resp, err := e.post(ctx, endpoint, apiKey, wire)
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
		content, finishReason = collectCandidate(&out)
		model = out.ModelVersion
		if out.UsageMetadata != nil {
			usage = usageFromMetadata(*out.UsageMetadata)
		}
	}

	if model == "" {
		model = req.Model
	}

	return &runner.ChatCompletion{
		Content:      content,
		Model:        model,
		Provider:     runner.ProviderGemini,
		FinishReason: finishReason,
		Usage:        usage,
		CostUSD:      e.EstimateUsageCost(ctx, req.Model, usage),
		Latency:      time.Since(start),
	}, nil
}

// buildRequest maps the normalized request onto the Gemini shape. A
// leading system message becomes system_instruction; assistant turns
// take the "model" role.
func buildRequest(req runner.Request) wireRequest {
	var wire wireRequest

	messages := req.Messages
	if len(messages) > 0 && messages[0].Role == runner.RoleSystem {
		wire.SystemInstruction = &wireContent{Parts: []wirePart{{Text: messages[0].Content}}}
		messages = messages[1:]
	}

	for _, m := range messages {
		role := "user"
		if m.Role == runner.RoleAssistant {
			role = "model"
		}
		wire.Contents = append(wire.Contents, wireContent{
			Role:  role,
			Parts: []wirePart{{Text: m.Content}},
		})
	}

	cfg := &generationConfig{}
	configured := false
	if v, ok := req.Params.Float("temperature"); ok {
		cfg.Temperature = &v
		configured = true
	}
	if v, ok := req.Params.Float("top_p"); ok {
		cfg.TopP = &v
		configured = true
	}
	if v, ok := req.Params.Int("max_tokens"); ok {
		cfg.MaxOutputTokens = &v
		configured = true
	}
	if configured {
		wire.GenerationConfig = cfg
	}

	return wire
}

// readStream consumes the SSE stream. Every data payload is a full
// response object carrying a text delta; the last one holds the final
// usage metadata and finish reason.
func (e *Executor) readStream(ctx context.Context, body io.Reader, req runner.Request) (content, finishReason, model string, usage runner.Usage, err error) {
	var sb strings.Builder

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var out wireResponse
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &out); err != nil {
			continue // Skip malformed events
		}

		if out.ModelVersion != "" {
			model = out.ModelVersion
		}
		if out.UsageMetadata != nil {
			usage = usageFromMetadata(*out.UsageMetadata)
		}

		delta, finish := collectCandidate(&out)
		if finish != "" {
			finishReason = finish
		}
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if err := req.EmitChunk(ctx, delta); err != nil {
			return "", "", "", runner.Usage{}, err
		}
	}

	if err := scanner.Err(); err != nil {
		return "", "", "", runner.Usage{}, fmt.Errorf("stream read error: %w", err)
	}

	return sb.String(), finishReason, model, usage, nil
}

func collectCandidate(out *wireResponse) (content, finishReason string) {
	if len(out.Candidates) == 0 {
		return "", ""
	}
	var sb strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), out.Candidates[0].FinishReason
}

func usageFromMetadata(m usageMetadata) runner.Usage {
	usage := runner.Usage{
		InputTokens:     m.PromptTokenCount,
		CacheReadTokens: m.CachedContentTokenCount,
		OutputTokens:    m.CandidatesTokenCount,
		TotalTokens:     m.TotalTokenCount,
	}
	// promptTokenCount includes cached content; split it out so the
	// cached portion is priced at its own rate.
	usage.InputTokens -= usage.CacheReadTokens
	return usage
}

func (e *Executor) post(ctx context.Context, endpoint, apiKey string, wire wireRequest) (*http.Response, error) {
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", apiKey)

	return e.httpClient.Do(httpReq)
}

func (e *Executor) mapError(err error) error {
	if errors.Is(err, runner.ErrSinkClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var api *apiError
	if errors.As(err, &api) {
		if api.StatusCode >= 500 {
			return &runner.BackendUnavailableError{Provider: runner.ProviderGemini, Cause: api}
		}
		return &runner.BackendRejectedError{
			Provider:   runner.ProviderGemini,
			StatusCode: api.StatusCode,
			Code:       api.Code,
			Message:    api.Message,
		}
	}

	return &runner.BackendUnavailableError{Provider: runner.ProviderGemini, Cause: err}
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
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return &apiError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	return &apiError{
		StatusCode: resp.StatusCode,
		Code:       errResp.Error.Status,
		Message:    errResp.Error.Message,
	}
}
