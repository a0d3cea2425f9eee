// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package openaicompat

import (
	"context"
	"errors"
	"time"

	"axonflow/modelrunner/runner"
)

// WireRequest maps a normalized runner request onto the OpenAI wire
// shape. Only the generation parameters every compatible backend
// understands are forwarded; unknown params are dropped.
func WireRequest(req runner.Request) Request {
	messages := make([]Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, Message{Role: m.Role, Content: m.Content})
	}

	wire := Request{
		Model:    req.Model,
		Messages: messages,
	}

	if v, ok := req.Params.Float("temperature"); ok {
		wire.Temperature = &v
	}
	if v, ok := req.Params.Int("max_tokens"); ok {
		wire.MaxTokens = &v
	}
	if v, ok := req.Params.Float("top_p"); ok {
		wire.TopP = &v
	}
	if s, ok := req.Params.String("stop"); ok {
		wire.Stop = []string{s}
	} else if list, ok := req.Params["stop"].([]interface{}); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				wire.Stop = append(wire.Stop, s)
			}
		}
	}

	return wire
}

// Execute runs one chat-completion call through the given client,
// streaming onto the request's sink when one is present, and assembles
// the final result with usage accounting and a cost estimate.
func Execute(ctx context.Context, client *Client, wire Request, req runner.Request, provider runner.ProviderName, costs runner.CostEstimator) (*runner.ChatCompletion, error) {
	start := time.Now()

	var (
		content      string
		finishReason string
		model        string
		usage        runner.Usage
	)

	if req.Streaming() {
		result, err := client.CompleteStream(ctx, wire, func(delta string) error {
			return req.EmitChunk(ctx, delta)
		})
		if err != nil {
			return nil, MapError(provider, err)
		}
		content = result.Content
		finishReason = result.FinishReason
		model = result.Model
		usage = usageFromWire(result.Usage)
	} else {
		result, err := client.Complete(ctx, wire)
		if err != nil {
			return nil, MapError(provider, err)
		}
		if len(result.Choices) > 0 {
			content = result.Choices[0].Message.Content
			finishReason = result.Choices[0].FinishReason
		}
		model = result.Model
		usage = usageFromWire(result.Usage)
	}

	if model == "" {
		model = req.Model
	}

	return &runner.ChatCompletion{
		Content:      content,
		Model:        model,
		Provider:     provider,
		FinishReason: finishReason,
		Usage:        usage,
		CostUSD:      costs.EstimateUsageCost(ctx, req.Model, usage),
		Latency:      time.Since(start),
	}, nil
}

// usageFromWire converts wire token accounting to the normalized form.
// prompt_tokens is inclusive of cached tokens on the wire; the cached
// portion is split out so it can be priced at its own rate.
func usageFromWire(u Usage) runner.Usage {
	usage := runner.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
	if u.PromptTokensDetails != nil && u.PromptTokensDetails.CachedTokens > 0 {
		usage.CacheReadTokens = u.PromptTokensDetails.CachedTokens
		usage.InputTokens -= usage.CacheReadTokens
	}
	return usage
}

// MapError classifies a transport or API failure into the runner's
// error taxonomy. Sink closure and context cancellation pass through
// untouched so callers can tell a gone consumer from a broken backend.
func MapError(provider runner.ProviderName, err error) error {
	if errors.Is(err, runner.ErrSinkClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 500 {
			return &runner.BackendUnavailableError{Provider: provider, Cause: apiErr}
		}
		return &runner.BackendRejectedError{
			Provider:   provider,
			StatusCode: apiErr.StatusCode,
			Code:       apiErr.Code,
			Message:    apiErr.Message,
		}
	}

	return &runner.BackendUnavailableError{Provider: provider, Cause: err}
}
