// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package openaicompat implements the OpenAI chat-completions wire
// protocol shared by the OpenAI, Groq, Mistral, and Azure OpenAI
// backends. Each of those providers speaks the same JSON request shape
// and the same data-prefixed SSE stream; only endpoints, auth headers,
// and pricing keys differ.
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPClient is an interface for HTTP client operations (enables testing)
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues chat-completion calls against one OpenAI-compatible
// endpoint. Endpoint is the full chat-completions URL (Azure includes
// a deployment path and api-version query); Header carries the
// provider's auth headers.
type Client struct {
	Endpoint   string
	Header     http.Header
	HTTPClient HTTPClient
}

// Message is one wire-format chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamOptions requests usage reporting on the final stream event
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Request is the OpenAI chat-completions request body. Model is empty
// for Azure, where the deployment path selects the model.
type Request struct {
	Model         string         `json:"model,omitempty"`
	Messages      []Message      `json:"messages"`
	MaxTokens     *int           `json:"max_tokens,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	Stop          []string       `json:"stop,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
}

// Usage is the wire-format token accounting
type Usage struct {
	PromptTokens        int64 `json:"prompt_tokens"`
	CompletionTokens    int64 `json:"completion_tokens"`
	TotalTokens         int64 `json:"total_tokens"`
	PromptTokensDetails *struct {
		CachedTokens int64 `json:"cached_tokens"`
	} `json:"prompt_tokens_details,omitempty"`
}

// Response is the non-streaming chat-completions response body
type Response struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// streamEvent is one decoded SSE data payload
type streamEvent struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// APIError represents a structured error response from the backend
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
}

// StreamResult summarizes a completed streaming exchange
type StreamResult struct {
	Content      string
	Model        string
	FinishReason string
	Usage        Usage
}

// Complete issues a blocking, non-streaming chat-completion call
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	req.Stream = false
	req.StreamOptions = nil

	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &out, nil
}

// CompleteStream issues a streaming chat-completion call, invoking
// onDelta for every content delta in emission order. An onDelta error
// aborts the read and is returned verbatim, so callers can thread
// sink-closure through unchanged.
func (c *Client) CompleteStream(ctx context.Context, req Request, onDelta func(content string) error) (*StreamResult, error) {
	req.Stream = true
	req.StreamOptions = &StreamOptions{IncludeUsage: true}

	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp)
	}

	var contentBuilder strings.Builder
	result := &StreamResult{Model: req.Model}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue // Skip malformed events
		}

		if event.Model != "" {
			result.Model = event.Model
		}
		if event.Usage != nil {
			result.Usage = *event.Usage
		}

		for _, choice := range event.Choices {
			if choice.FinishReason != "" {
				result.FinishReason = choice.FinishReason
			}
			if choice.Delta.Content == "" {
				continue
			}
			contentBuilder.WriteString(choice.Delta.Content)
			if err := onDelta(choice.Delta.Content); err != nil {
				return nil, err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream read error: %w", err)
	}

	result.Content = contentBuilder.String()
	return result, nil
}

func (c *Client) post(ctx context.Context, req Request) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for key, values := range c.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	return c.HTTPClient.Do(httpReq)
}

func parseAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Code    string `json:"code"`
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	code := errResp.Error.Code
	if code == "" {
		code = errResp.Error.Type
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       code,
		Message:    errResp.Error.Message,
	}
}
