// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/zenith-tasks/zenith"
)

// Costs travel as text so no precision is lost between NUMERIC and decimal.Decimal
const pricingColumns = `model_id, input_cost_per_k::text, output_cost_per_k::text, updated_at`

// ListModelPricing retrieves pricing for every configured model
func (r *PricingRepository) ListModelPricing(ctx context.Context) ([]*zenith.ModelPricing, error) {
	query := `SELECT ` + pricingColumns + ` FROM model_pricing ORDER BY model_id`

	rows, err := r.options.Db.Query(ctx, query)
	if err != nil {
		r.options.Logger.Error("Failed to list model pricing", "error", err)
		return nil, err
	}
	defer rows.Close()

	var prices []*zenith.ModelPricing
	for rows.Next() {
		p, err := scanModelPricing(rows)
		if err != nil {
			r.options.Logger.Error("Failed to scan model pricing row", "error", err)
			return nil, err
		}
		prices = append(prices, p)
	}

	if err := rows.Err(); err != nil {
		r.options.Logger.Error("Error iterating model pricing rows", "error", err)
		return nil, err
	}

	return prices, nil
}

// GetModelPricing retrieves pricing for one model
func (r *PricingRepository) GetModelPricing(ctx context.Context, modelID string) (*zenith.ModelPricing, error) {
	query := `SELECT ` + pricingColumns + ` FROM model_pricing WHERE model_id = $1`

	p, err := scanModelPricing(r.options.Db.QueryRow(ctx, query, modelID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, zenith.ErrNotFound
	}
	if err != nil {
		r.options.Logger.Error("Failed to get model pricing", "error", err, "modelID", modelID)
		return nil, err
	}
	return p, nil
}

// UpsertModelPricing creates or replaces pricing for a model
func (r *PricingRepository) UpsertModelPricing(ctx context.Context, p *zenith.ModelPricing) error {
	if p.InputCostPerK.IsNegative() || p.OutputCostPerK.IsNegative() {
		return fmt.Errorf("pricing for %q cannot be negative", p.ModelID)
	}

	query := `
		INSERT INTO model_pricing (model_id, input_cost_per_k, output_cost_per_k, updated_at)
		VALUES ($1, $2::numeric, $3::numeric, $4)
		ON CONFLICT (model_id) DO UPDATE SET
			input_cost_per_k = EXCLUDED.input_cost_per_k,
			output_cost_per_k = EXCLUDED.output_cost_per_k,
			updated_at = EXCLUDED.updated_at`

	_, err := r.options.Db.Exec(ctx, query,
		p.ModelID,
		p.InputCostPerK.String(),
		p.OutputCostPerK.String(),
		p.UpdatedAt,
	)
	if err != nil {
		r.options.Logger.Error("Failed to upsert model pricing", "error", err, "modelID", p.ModelID)
		return err
	}
	return nil
}

func scanModelPricing(row pgx.Row) (*zenith.ModelPricing, error) {
	var p zenith.ModelPricing
	var inputCost, outputCost string

	if err := row.Scan(&p.ModelID, &inputCost, &outputCost, &p.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if p.InputCostPerK, err = decimal.NewFromString(inputCost); err != nil {
		return nil, fmt.Errorf("invalid input cost for %q: %w", p.ModelID, err)
	}
	if p.OutputCostPerK, err = decimal.NewFromString(outputCost); err != nil {
		return nil, fmt.Errorf("invalid output cost for %q: %w", p.ModelID, err)
	}
	return &p, nil
}
