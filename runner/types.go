// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package runner

import (
	"time"

	"github.com/google/uuid"
)

// Chat message roles. A conversation is an ordered sequence: an optional
// system message first, then alternating user and assistant messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one role-tagged entry in a conversation. Messages are
// supplied by the caller per request and never retained by the runner.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params is the free-form parameter bag forwarded to a backend
// (temperature, max tokens, tool definitions, ...). Provider-specific
// keys are tolerated; each backend ignores keys it does not understand.
type Params map[string]interface{}

// Float returns a numeric parameter. JSON decoding yields float64 for
// all numbers, so int values are accepted too.
func (p Params) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Int returns an integer parameter
func (p Params) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// String returns a string parameter
func (p Params) String(key string) (string, bool) {
	v, ok := p[key].(string)
	return v, ok
}

// Usage tracks token counts for one completed call. Cache write and
// cache read tokens are counted separately from regular input tokens
// because they are priced independently.
type Usage struct {
	InputTokens      int64 `json:"input_tokens"`
	CacheWriteTokens int64 `json:"cache_write_tokens,omitempty"`
	CacheReadTokens  int64 `json:"cache_read_tokens,omitempty"`
	OutputTokens     int64 `json:"output_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// InputTokens groups the independently priced input token categories
// for cost estimation.
type InputTokens struct {
	Regular    int64
	CacheWrite int64
	CacheRead  int64
}

// ChatCompletion is the final result of a chat-completion call, for both
// streaming and non-streaming modes. CostUSD is absent when no pricing
// row exists for the provider and model.
type ChatCompletion struct {
	Content      string        `json:"content"`
	Model        string        `json:"model"`
	Provider     ProviderName  `json:"provider"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Usage        Usage         `json:"usage"`
	CostUSD      *float64      `json:"cost_usd,omitempty"`
	Latency      time.Duration `json:"latency"`
}

// NodeInfo correlates a runner invocation back to the pipeline position
// that triggered it. It is a pure attribution tag: threaded through
// every call and stamped onto emitted chunks, with no behavior of its own.
type NodeInfo struct {
	ID       uuid.UUID `json:"id"`
	NodeID   uuid.UUID `json:"node_id"`
	NodeName string    `json:"node_name"`
	NodeType string    `json:"node_type"`
}

// StreamChunk is one unit of partial output emitted during a streaming
// call. Ownership transfers to the receiving side of the sink the
// instant it is sent.
type StreamChunk struct {
	Type    string   `json:"type"`
	Content string   `json:"content"`
	Node    NodeInfo `json:"node"`
}

// Chunk types emitted by backend executors.
const (
	ChunkTypeContent = "content"
)
