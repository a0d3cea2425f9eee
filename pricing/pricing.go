// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package pricing resolves per-model token rates through a cache-then-store
// lookup. An unpriced model is an expected condition: every lookup path
// returns an absent price (nil) rather than an error when no row exists.
package pricing

import "context"

// ModelPrice contains the token rates for one (provider, model) pair.
// Rates are USD per 1K tokens. The input and output rates are nullable
// in the store and stay nullable here: a row may carry only one side,
// and an absent rate must stay distinguishable from a zero rate. Cache
// write and cache read are priced separately because providers charge
// them at different rates.
type ModelPrice struct {
	InputPer1K      *float64 `json:"input_per_1k"`
	OutputPer1K     *float64 `json:"output_per_1k"`
	CacheWritePer1K float64  `json:"cache_write_per_1k"`
	CacheReadPer1K  float64  `json:"cache_read_per_1k"`
}

// Repository is the durable price store consulted on cache misses.
// A missing row yields (nil, nil), never an error.
type Repository interface {
	GetPrice(ctx context.Context, provider, model string) (*ModelPrice, error)
	Ping(ctx context.Context) error
}
