// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package zenith

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ModelPricing is the credit cost of a model per 1,000 tokens
type ModelPricing struct {
	ModelID        string          `json:"modelId"`
	InputCostPerK  decimal.Decimal `json:"inputCostPerK"`
	OutputCostPerK decimal.Decimal `json:"outputCostPerK"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// PricingRepository defines persistence operations for model pricing
type PricingRepository interface {
	// ListModelPricing retrieves pricing for every configured model
	ListModelPricing(ctx context.Context) ([]*ModelPricing, error)

	// GetModelPricing retrieves pricing for one model
	GetModelPricing(ctx context.Context, modelID string) (*ModelPricing, error)

	// UpsertModelPricing creates or replaces pricing for a model
	UpsertModelPricing(ctx context.Context, pricing *ModelPricing) error
}
