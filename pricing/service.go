// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package pricing

import (
	"context"

	"axonflow/modelrunner/shared/logger"
)

// Service resolves model prices cache-first with a fallback to the
// durable store. A cache miss transparently populates the cache from
// the store; a store miss returns absent. Lookup failures on either
// side degrade to absent with a warning so an unreachable pricing
// backend never fails a chat-completion call.
type Service struct {
	repo  Repository
	cache *Cache
	log   *logger.Logger
}

// NewService creates a price service. The cache is optional; with a
// nil cache every lookup goes straight to the store.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   logger.New("pricing"),
	}
}

// GetPrice returns the rates for (provider, model), or nil when the
// pair is unpriced. It never returns an error: unpriced models are an
// expected condition, and backend failures are logged and treated as
// absence.
func (s *Service) GetPrice(ctx context.Context, provider, model string) *ModelPrice {
	if s.cache != nil {
		price, err := s.cache.Get(ctx, provider, model)
		if err != nil {
			s.log.Warn("", "Price cache read failed, falling back to store", map[string]interface{}{
				"provider": provider,
				"model":    model,
				"error":    err.Error(),
			})
		} else if price != nil {
			return price
		}
	}

	price, err := s.repo.GetPrice(ctx, provider, model)
	if err != nil {
		s.log.Warn("", "Price store read failed", map[string]interface{}{
			"provider": provider,
			"model":    model,
			"error":    err.Error(),
		})
		return nil
	}
	if price == nil {
		return nil
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, provider, model, price); err != nil {
			s.log.Warn("", "Price cache write failed", map[string]interface{}{
				"provider": provider,
				"model":    model,
				"error":    err.Error(),
			})
		}
	}

	return price
}

// IsHealthy checks if the durable price store is reachable
func (s *Service) IsHealthy(ctx context.Context) bool {
	return s.repo.Ping(ctx) == nil
}
