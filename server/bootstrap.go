// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package server

import (
	"axonflow/modelrunner/runner"
	"axonflow/modelrunner/runner/providers/anthropic"
	"axonflow/modelrunner/runner/providers/azure"
	"axonflow/modelrunner/runner/providers/bedrock"
	"axonflow/modelrunner/runner/providers/gemini"
	"axonflow/modelrunner/runner/providers/groq"
	"axonflow/modelrunner/runner/providers/mistral"
	"axonflow/modelrunner/runner/providers/openai"
)

// buildExecutors assembles the full executor registry. Every provider
// in the closed set gets an entry here; runner.NewRunner rejects the
// registry otherwise, which makes a forgotten provider a startup
// failure instead of a request-time one.
func buildExecutors(prices runner.PriceSource) map[runner.ProviderName]runner.Executor {
	return map[runner.ProviderName]runner.Executor{
		runner.ProviderAnthropic:   anthropic.New(prices),
		runner.ProviderMistral:     mistral.New(prices),
		runner.ProviderOpenAI:      openai.New(prices),
		runner.ProviderOpenAIAzure: azure.New(prices),
		runner.ProviderGemini:      gemini.New(prices),
		runner.ProviderGroq:        groq.New(prices),
		runner.ProviderBedrock:     bedrock.New(prices),
	}
}
