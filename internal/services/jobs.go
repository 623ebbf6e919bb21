// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zenith-tasks/zenith"
	"github.com/zenith-tasks/zenith/internal/ledger"
)

// Renewer grants monthly plan credits to due subscriptions
type Renewer interface {
	RenewSubscriptions(ctx context.Context, now time.Time) (int, error)
}

// Reconciler checks account balances against their history
type Reconciler interface {
	Reconcile(ctx context.Context) []ledger.Discrepancy
}

// PricingRefresher reloads a cost table from a pricing store
type PricingRefresher interface {
	Refresh(ctx context.Context, repo zenith.PricingRepository) error
}

// RenewalJob renews due subscriptions using clock for the current time
func RenewalJob(renewer Renewer, interval time.Duration, clock func() time.Time, logger *slog.Logger) Job {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Job{
		Name:     "subscription-renewal",
		Interval: interval,
		Run: func(ctx context.Context) error {
			renewed, err := renewer.RenewSubscriptions(ctx, clock())
			if err != nil {
				return fmt.Errorf("failed to renew subscriptions: %w", err)
			}
			if renewed > 0 {
				logger.Info("Renewed subscriptions", "count", renewed)
			}
			return nil
		},
	}
}

// ReconcileJob reports accounts whose balance disagrees with their history.
// Discrepancies are logged by the reconciler and do not fail the job.
func ReconcileJob(reconciler Reconciler, interval time.Duration, logger *slog.Logger) Job {
	if logger == nil {
		logger = slog.Default()
	}
	return Job{
		Name:     "ledger-reconcile",
		Interval: interval,
		Run: func(ctx context.Context) error {
			discrepancies := reconciler.Reconcile(ctx)
			logger.Debug("Ledger reconciliation finished", "discrepancies", len(discrepancies))
			return nil
		},
	}
}

// PricingRefreshJob reloads the cost table from repo, once at start and then
// every interval
func PricingRefreshJob(table PricingRefresher, repo zenith.PricingRepository, interval time.Duration) Job {
	return Job{
		Name:       "pricing-refresh",
		Interval:   interval,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			if err := table.Refresh(ctx, repo); err != nil {
				return fmt.Errorf("failed to refresh pricing: %w", err)
			}
			return nil
		},
	}
}
