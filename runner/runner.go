// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package runner

import (
	"context"
	"fmt"

	"axonflow/modelrunner/shared/logger"
)

// Runner is the top-level entry point for chat-completion execution.
// It owns a read-only mapping from provider identity to backend
// executor, built once at startup.
type Runner struct {
	executors map[ProviderName]Executor
	log       *logger.Logger
}

// NewRunner builds a runner over the given executor registry. Every
// provider in the closed set must have a registered executor; a gap is
// a configuration invariant violation and is rejected here rather than
// discovered on the first request.
func NewRunner(executors map[ProviderName]Executor) (*Runner, error) {
	for _, p := range AllProviders() {
		if executors[p] == nil {
			return nil, fmt.Errorf("no executor registered for provider %q", p)
		}
	}

	return &Runner{
		executors: executors,
		log:       logger.New("runner"),
	}, nil
}

// Executor returns the registered executor for a provider, used by
// callers that need direct access to the cost-estimation capability.
func (r *Runner) Executor(provider ProviderName) (Executor, bool) {
	exec, ok := r.executors[provider]
	return exec, ok
}

// ChatCompletion completes the chat by calling the model's executor.
//
// model is a model identifier in the format "provider:model_name",
// e.g. "openai:gpt-4o". messages is the conversation so far; if a
// system message is passed it must be the first message, followed by
// alternating user and assistant messages starting from a user message.
//
// When sink is non-nil the call streams: partial output is delivered on
// sink in provider-emission order while the call is in flight, and the
// returned ChatCompletion summarizes the full exchange. Each call is
// independent and single-attempt: retry policy, if any, belongs to a
// layer above or to each backend's own transport client.
func (r *Runner) ChatCompletion(
	ctx context.Context,
	model string,
	messages []ChatMessage,
	params Params,
	env map[string]string,
	sink chan<- StreamChunk,
	node NodeInfo,
) (*ChatCompletion, error) {
	tag, modelName, err := SplitModel(model)
	if err != nil {
		return nil, err
	}

	provider, err := ParseProviderName(tag)
	if err != nil {
		return nil, err
	}

	executor, ok := r.executors[provider]
	if !ok {
		// NewRunner validates registry completeness, so this is an
		// internal invariant violation, not a user-facing condition.
		r.log.Error(node.ID.String(), "Executor registry is missing a provider", map[string]interface{}{
			"provider": string(provider),
		})
		return nil, fmt.Errorf("internal: no executor registered for provider %q", provider)
	}

	return executor.ChatCompletion(ctx, Request{
		Model:    modelName,
		Provider: provider,
		Messages: messages,
		Params:   params,
		Env:      env,
		Sink:     sink,
		Node:     node,
	})
}
