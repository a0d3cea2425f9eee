// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package pricing

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL price repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetPrice retrieves the stored rates for a (provider, model) pair.
// Returns (nil, nil) when no row exists.
func (r *PostgresRepository) GetPrice(ctx context.Context, provider, model string) (*ModelPrice, error) {
	query := `
		SELECT input_price_per_1k, output_price_per_1k,
			   input_cached_price_write_per_1k, input_cached_price_read_per_1k
		FROM model_prices
		WHERE provider = $1 AND model = $2
	`

	var price ModelPrice
	var input, output, cacheWrite, cacheRead sql.NullFloat64

	err := r.db.QueryRowContext(ctx, query, provider, model).Scan(
		&input, &output, &cacheWrite, &cacheRead,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query model price: %w", err)
	}

	if input.Valid {
		price.InputPer1K = &input.Float64
	}
	if output.Valid {
		price.OutputPer1K = &output.Float64
	}
	price.CacheWritePer1K = cacheWrite.Float64
	price.CacheReadPer1K = cacheRead.Float64

	return &price, nil
}

// Ping verifies the database connection
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
