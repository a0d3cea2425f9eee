// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package runner

import "context"

// Request carries everything a backend executor needs for one
// chat-completion call. Model is the provider-local model string, after
// the provider tag has been split off. Env is a per-call credential
// snapshot; executors never read the process environment. Sink is nil
// for non-streaming calls.
type Request struct {
	Model    string
	Provider ProviderName
	Messages []ChatMessage
	Params   Params
	Env      map[string]string
	Sink     chan<- StreamChunk
	Node     NodeInfo
}

// Streaming reports whether partial output should be delivered on Sink
func (r *Request) Streaming() bool {
	return r.Sink != nil
}

// EmitChunk delivers one unit of partial output on the sink, stamped
// with the call's node info. The send blocks when the sink is full, so
// a slow consumer throttles the provider read instead of causing
// unbounded buffering. When the context is cancelled (the consumer is
// gone) the send aborts with ErrSinkClosed; chunks already delivered
// stand and are never retracted.
func (r *Request) EmitChunk(ctx context.Context, content string) error {
	select {
	case r.Sink <- StreamChunk{Type: ChunkTypeContent, Content: content, Node: r.Node}:
		return nil
	case <-ctx.Done():
		return ErrSinkClosed
	}
}

// Executor is the chat-completion capability implemented once per
// provider. Implementations must be safe for concurrent use: an
// executor is an immutable handle bound to one provider identity at
// registry-construction time and owns no per-request state.
//
// In non-streaming mode the call blocks until the provider returns a
// complete response. In streaming mode it pushes chunks onto the
// request's sink in provider-emission order and still returns the final
// ChatCompletion once the provider closes its stream. A mid-stream
// provider error terminates the sequence with an error, not a chunk.
type Executor interface {
	// PricingProviderName returns the key under which this backend's
	// models are priced in the pricing store.
	PricingProviderName() string

	// ChatCompletion performs the provider call.
	ChatCompletion(ctx context.Context, req Request) (*ChatCompletion, error)
}
