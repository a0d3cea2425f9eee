// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package runner

import (
	"context"

	"axonflow/modelrunner/pricing"
	"axonflow/modelrunner/shared/logger"
)

// PriceSource supplies token rates for a (provider, model) pair, or nil
// when the pair is unpriced. Implemented by pricing.Service.
type PriceSource interface {
	GetPrice(ctx context.Context, provider, model string) *pricing.ModelPrice
}

// CostEstimator is the cost-estimation capability shared by every
// backend executor. It is embedded by each executor and parameterized
// only by that executor's pricing-table provider name, which also
// satisfies the Executor interface's PricingProviderName method.
//
// An absent price is a normal value, not an error: it is logged at
// warning level and the estimate resolves to nil.
type CostEstimator struct {
	prices       PriceSource
	providerName string
	log          *logger.Logger
}

// NewCostEstimator creates the shared cost capability for one backend
func NewCostEstimator(prices PriceSource, providerName string) CostEstimator {
	return CostEstimator{
		prices:       prices,
		providerName: providerName,
		log:          logger.New("runner.cost"),
	}
}

// PricingProviderName returns the backend's key in the pricing store
func (c CostEstimator) PricingProviderName() string {
	return c.providerName
}

// EstimateInputCost prices the input side of a call. Regular, cache
// write, and cache read tokens are each multiplied by their own rate
// and summed. Returns nil when no pricing row exists or the row has no
// input rate.
func (c CostEstimator) EstimateInputCost(ctx context.Context, model string, tokens InputTokens) *float64 {
	price := c.prices.GetPrice(ctx, c.providerName, model)
	if price == nil || price.InputPer1K == nil {
		return nil
	}

	inputRate := *price.InputPer1K
	cost := float64(tokens.Regular)/1000.0*inputRate +
		float64(tokens.CacheWrite)/1000.0*price.CacheWritePer1K +
		float64(tokens.CacheRead)/1000.0*price.CacheReadPer1K

	return &cost
}

// EstimateOutputCost prices the output side of a call. Returns nil when
// no pricing row exists or the row has no output rate.
func (c CostEstimator) EstimateOutputCost(ctx context.Context, model string, outputTokens int64) *float64 {
	price := c.prices.GetPrice(ctx, c.providerName, model)
	if price == nil || price.OutputPer1K == nil {
		return nil
	}

	cost := float64(outputTokens) / 1000.0 * *price.OutputPer1K
	return &cost
}

// EstimateCost combines input and output estimates for a completed call.
// The combined value is suppressed whenever the input estimate is
// absent, even if output pricing would independently resolve. This
// mirrors the long-standing estimation policy; see DESIGN.md before
// changing it.
func (c CostEstimator) EstimateCost(ctx context.Context, model string, inputTokens, outputTokens int64) *float64 {
	inputCost := c.EstimateInputCost(ctx, model, InputTokens{Regular: inputTokens})
	if inputCost == nil {
		c.log.Warn("", "No stored price found", map[string]interface{}{
			"provider": c.providerName,
			"model":    model,
		})
		return nil
	}

	outputCost := c.EstimateOutputCost(ctx, model, outputTokens)
	if outputCost == nil {
		return nil
	}

	total := *inputCost + *outputCost
	return &total
}

// EstimateUsageCost prices a full Usage record, including the cached
// token categories. Same suppression policy as EstimateCost.
func (c CostEstimator) EstimateUsageCost(ctx context.Context, model string, usage Usage) *float64 {
	inputCost := c.EstimateInputCost(ctx, model, InputTokens{
		Regular:    usage.InputTokens,
		CacheWrite: usage.CacheWriteTokens,
		CacheRead:  usage.CacheReadTokens,
	})
	if inputCost == nil {
		c.log.Warn("", "No stored price found", map[string]interface{}{
			"provider": c.providerName,
			"model":    model,
		})
		return nil
	}

	outputCost := c.EstimateOutputCost(ctx, model, usage.OutputTokens)
	if outputCost == nil {
		return nil
	}

	total := *inputCost + *outputCost
	return &total
}
