// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package usage records model-runner usage events for billing and
// capacity reporting. Events land in the usage_events table; recording
// failures are logged and never block a response.
package usage

import (
	"database/sql"
	"log"
)

// Recorder writes usage events to the database
type Recorder struct {
	db *sql.DB
}

// NewRecorder creates a recorder over an open database handle
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// LLMCallEvent represents one chat completion executed against a
// provider backend
type LLMCallEvent struct {
	Provider         string // "openai", "anthropic", etc.
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	CacheReadTokens  int64
	TotalTokens      int64
	EstimatedCostUSD *float64 // nil when no pricing row resolved
	LatencyMs        int64
	HTTPStatusCode   int
}

// RecordLLMCall records a completed chat completion with its token
// usage and estimated cost. Errors are logged but don't block responses.
func (r *Recorder) RecordLLMCall(event LLMCallEvent) error {
	_, err := r.db.Exec(`
		INSERT INTO usage_events (
			event_type, llm_provider, llm_model, prompt_tokens,
			completion_tokens, cache_read_tokens, total_tokens,
			estimated_cost_usd, latency_ms, http_status_code
		) VALUES ('llm_call', $1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, event.Provider, event.Model, event.PromptTokens,
		event.CompletionTokens, event.CacheReadTokens, event.TotalTokens,
		event.EstimatedCostUSD, event.LatencyMs, event.HTTPStatusCode)

	if err != nil {
		log.Printf("[USAGE] Failed to record LLM call: %v", err)
	}

	return err
}
