// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package openai implements the OpenAI backend executor.
package openai

import (
	"context"
	"net/http"
	"time"

	"axonflow/modelrunner/runner"
	"axonflow/modelrunner/runner/providers/openaicompat"
)

// DefaultBaseURL is the OpenAI API base
const DefaultBaseURL = "https://api.openai.com"

const defaultTimeout = 120 * time.Second

// Executor runs chat completions against the OpenAI API
type Executor struct {
	runner.CostEstimator
	httpClient openaicompat.HTTPClient
	baseURL    string
}

// New creates an OpenAI executor priced from the given source
func New(prices runner.PriceSource) *Executor {
	return &Executor{
		CostEstimator: runner.NewCostEstimator(prices, "openai"),
		httpClient:    &http.Client{Timeout: defaultTimeout},
		baseURL:       DefaultBaseURL,
	}
}

// ChatCompletion implements runner.Executor
func (e *Executor) ChatCompletion(ctx context.Context, req runner.Request) (*runner.ChatCompletion, error) {
	apiKey, err := runner.ProviderOpenAI.APIKey(req.Env)
	if err != nil {
		return nil, err
	}

	client := &openaicompat.Client{
		Endpoint:   e.baseURL + "/v1/chat/completions",
		Header:     http.Header{"Authorization": {"Bearer " + apiKey}},
		HTTPClient: e.httpClient,
	}

	return openaicompat.Execute(ctx, client, openaicompat.WireRequest(req), req, runner.ProviderOpenAI, e.CostEstimator)
}
