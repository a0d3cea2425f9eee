// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package azure implements the Azure OpenAI backend executor. Azure
// speaks the OpenAI wire protocol but addresses models through a
// resource-scoped deployment path instead of a model field, and
// authenticates with an api-key header instead of a bearer token.
package azure

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"axonflow/modelrunner/runner"
	"axonflow/modelrunner/runner/providers/openaicompat"
)

// APIVersion is the Azure OpenAI API version pinned by this client
const APIVersion = "2024-06-01"

const defaultTimeout = 120 * time.Second

// Executor runs chat completions against an Azure OpenAI deployment.
// The target resource and deployment come from each request's env
// snapshot, not from executor construction, so one executor serves
// calls against any number of Azure resources.
type Executor struct {
	runner.CostEstimator
	httpClient openaicompat.HTTPClient

	// baseURL overrides the resource-derived host when set (tests)
	baseURL string
}

// New creates an Azure OpenAI executor priced from the given source.
// Azure serves the same models as OpenAI, so they share a pricing key.
func New(prices runner.PriceSource) *Executor {
	return &Executor{
		CostEstimator: runner.NewCostEstimator(prices, "openai"),
		httpClient:    &http.Client{Timeout: defaultTimeout},
	}
}

// ChatCompletion implements runner.Executor
func (e *Executor) ChatCompletion(ctx context.Context, req runner.Request) (*runner.ChatCompletion, error) {
	apiKey, err := runner.ProviderOpenAIAzure.APIKey(req.Env)
	if err != nil {
		return nil, err
	}

	resource, ok := req.Env[runner.EnvAzureResourceID]
	if !ok {
		return nil, &runner.MissingCredentialError{Provider: runner.ProviderOpenAIAzure, Var: runner.EnvAzureResourceID}
	}
	deployment, ok := req.Env[runner.EnvAzureDeploymentName]
	if !ok {
		return nil, &runner.MissingCredentialError{Provider: runner.ProviderOpenAIAzure, Var: runner.EnvAzureDeploymentName}
	}

	base := e.baseURL
	if base == "" {
		base = fmt.Sprintf("https://%s.openai.azure.com", resource)
	}

	client := &openaicompat.Client{
		Endpoint:   fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s", base, deployment, APIVersion),
		Header:     http.Header{"Api-Key": {apiKey}},
		HTTPClient: e.httpClient,
	}

	// The deployment path selects the model on Azure.
	wire := openaicompat.WireRequest(req)
	wire.Model = ""

	return openaicompat.Execute(ctx, client, wire, req, runner.ProviderOpenAIAzure, e.CostEstimator)
}
