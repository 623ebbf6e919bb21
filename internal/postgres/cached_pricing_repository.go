// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"context"
	"time"

	"github.com/zenith-tasks/zenith"
	"github.com/zenith-tasks/zenith/internal/cache"
)

const allPricingKey = "all_pricing"

// CachedPricingRepository wraps a PricingRepository with caching
type CachedPricingRepository struct {
	underlying   zenith.PricingRepository
	pricingCache *cache.Cache[string, *zenith.ModelPricing]
	listCache    *cache.Cache[string, []*zenith.ModelPricing]
}

var _ zenith.PricingRepository = (*CachedPricingRepository)(nil)

// NewCachedPricingRepository creates a new cached pricing repository
func NewCachedPricingRepository(underlying zenith.PricingRepository, cacheTTL time.Duration) *CachedPricingRepository {
	return &CachedPricingRepository{
		underlying:   underlying,
		pricingCache: cache.New[string, *zenith.ModelPricing](cacheTTL),
		listCache:    cache.New[string, []*zenith.ModelPricing](cacheTTL),
	}
}

// ListModelPricing retrieves all pricing with caching
func (r *CachedPricingRepository) ListModelPricing(ctx context.Context) ([]*zenith.ModelPricing, error) {
	return r.listCache.GetOrLoad(ctx, allPricingKey, func(ctx context.Context) ([]*zenith.ModelPricing, error) {
		prices, err := r.underlying.ListModelPricing(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range prices {
			r.pricingCache.Set(p.ModelID, p)
		}
		return prices, nil
	})
}

// GetModelPricing retrieves pricing for one model with caching
func (r *CachedPricingRepository) GetModelPricing(ctx context.Context, modelID string) (*zenith.ModelPricing, error) {
	return r.pricingCache.GetOrLoad(ctx, modelID, func(ctx context.Context) (*zenith.ModelPricing, error) {
		return r.underlying.GetModelPricing(ctx, modelID)
	})
}

// UpsertModelPricing stores pricing and invalidates caches
func (r *CachedPricingRepository) UpsertModelPricing(ctx context.Context, p *zenith.ModelPricing) error {
	if err := r.underlying.UpsertModelPricing(ctx, p); err != nil {
		return err
	}

	r.pricingCache.Delete(p.ModelID)
	r.listCache.Clear()
	return nil
}

// Close stops the cache cleanup goroutines
func (r *CachedPricingRepository) Close() {
	r.pricingCache.Close()
	r.listCache.Close()
}
