// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !integration && !acceptance

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zenith-tasks/zenith"
	"github.com/zenith-tasks/zenith/internal/ledger"
	"github.com/zenith-tasks/zenith/internal/plans"
	"github.com/zenith-tasks/zenith/internal/pricing"
)

type MockPricingRepository struct {
	mock.Mock
}

func (m *MockPricingRepository) ListModelPricing(ctx context.Context) ([]*zenith.ModelPricing, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*zenith.ModelPricing), args.Error(1)
}

func (m *MockPricingRepository) GetModelPricing(ctx context.Context, modelID string) (*zenith.ModelPricing, error) {
	args := m.Called(ctx, modelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*zenith.ModelPricing), args.Error(1)
}

func (m *MockPricingRepository) UpsertModelPricing(ctx context.Context, p *zenith.ModelPricing) error {
	return m.Called(ctx, p).Error(0)
}

type MockRenewer struct {
	mock.Mock
}

func (m *MockRenewer) RenewSubscriptions(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func TestRenewalJob(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	now := start

	l, err := ledger.NewLedger(
		ledger.WithLedgerLogger(discardLogger()),
		ledger.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)
	require.NoError(t, l.UpdateSubscription(ctx, "u1", plans.PLAN_ID_PRO))

	job := RenewalJob(l, time.Hour, func() time.Time { return now }, discardLogger())
	assert.Equal(t, "subscription-renewal", job.Name)
	assert.False(t, job.RunOnStart)

	// Not due yet
	require.NoError(t, job.Run(ctx))
	balance, err := l.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	now = start.AddDate(0, 1, 0)
	require.NoError(t, job.Run(ctx))
	balance, err = l.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1100), balance)
}

func TestRenewalJob_Error(t *testing.T) {
	now := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	renewer := &MockRenewer{}
	renewer.On("RenewSubscriptions", mock.Anything, now).Return(0, context.Canceled)

	job := RenewalJob(renewer, time.Hour, func() time.Time { return now }, nil)
	err := job.Run(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorContains(t, err, "failed to renew subscriptions")
	renewer.AssertExpectations(t)
}

func TestReconcileJob(t *testing.T) {
	ctx := context.Background()
	l, err := ledger.NewLedger(ledger.WithLedgerLogger(discardLogger()))
	require.NoError(t, err)

	_, err = l.GetBalance(ctx, "u1")
	require.NoError(t, err)
	l.ConsumeCredits(ctx, "u1", 10, "usage", nil)

	job := ReconcileJob(l, time.Minute, discardLogger())
	assert.Equal(t, "ledger-reconcile", job.Name)
	assert.NoError(t, job.Run(ctx))
	assert.Empty(t, l.Reconcile(ctx))
}

func TestPricingRefreshJob(t *testing.T) {
	ctx := context.Background()
	table := pricing.DefaultTable()
	repo := &MockPricingRepository{}
	repo.On("ListModelPricing", ctx).Return([]*zenith.ModelPricing{
		{ModelID: "openai/gpt-4o", InputCostPerK: decimal.NewFromInt(10), OutputCostPerK: decimal.NewFromInt(10)},
	}, nil).Once()
	repo.On("ListModelPricing", ctx).Return(nil, errors.New("connection reset")).Once()

	job := PricingRefreshJob(table, repo, time.Minute)
	assert.Equal(t, "pricing-refresh", job.Name)
	assert.True(t, job.RunOnStart)

	require.NoError(t, job.Run(ctx))
	assert.Equal(t, int64(20), table.CalculateUsageCost("openai/gpt-4o", 1000, 1000))

	err := job.Run(ctx)
	assert.ErrorContains(t, err, "failed to refresh pricing")
	// Previous entries survive a failed refresh
	assert.Equal(t, int64(20), table.CalculateUsageCost("openai/gpt-4o", 1000, 1000))
	repo.AssertExpectations(t)
}
