// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package groq implements the Groq backend executor. Groq exposes an
// OpenAI-compatible surface, so the shared compat client does the work.
package groq

import (
	"context"
	"net/http"
	"time"

	"axonflow/modelrunner/runner"
	"axonflow/modelrunner/runner/providers/openaicompat"
)

// DefaultBaseURL is the Groq OpenAI-compatible API base
const DefaultBaseURL = "https://api.groq.com/openai/v1"

const defaultTimeout = 120 * time.Second

// Executor runs chat completions against the Groq API
type Executor struct {
	runner.CostEstimator
	httpClient openaicompat.HTTPClient
	baseURL    string
}

// New creates a Groq executor priced from the given source
func New(prices runner.PriceSource) *Executor {
	return &Executor{
		CostEstimator: runner.NewCostEstimator(prices, "groq"),
		httpClient:    &http.Client{Timeout: defaultTimeout},
		baseURL:       DefaultBaseURL,
	}
}

// ChatCompletion implements runner.Executor
func (e *Executor) ChatCompletion(ctx context.Context, req runner.Request) (*runner.ChatCompletion, error) {
	apiKey, err := runner.ProviderGroq.APIKey(req.Env)
	if err != nil {
		return nil, err
	}

	client := &openaicompat.Client{
		Endpoint:   e.baseURL + "/chat/completions",
		Header:     http.Header{"Authorization": {"Bearer " + apiKey}},
		HTTPClient: e.httpClient,
	}

	return openaicompat.Execute(ctx, client, openaicompat.WireRequest(req), req, runner.ProviderGroq, e.CostEstimator)
}
