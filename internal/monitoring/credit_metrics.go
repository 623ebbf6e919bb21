// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type CreditMetrics struct {
	creditsConsumedTotal      metric.Int64Counter
	creditsAddedTotal         metric.Int64Counter
	insufficientBalanceTotal  metric.Int64Counter
	balanceAlertsTotal        metric.Int64Counter
	costCalculationsTotal     metric.Int64Counter
	journalDroppedTotal       metric.Int64Counter
	journalWriteErrorsTotal   metric.Int64Counter
	journalQueueSize          metric.Int64Gauge
	reconcileDiscrepancies    metric.Int64Gauge
	subscriptionRenewalsTotal metric.Int64Counter
	fallbackAttemptsTotal     metric.Int64Counter
	fallbackExhaustedTotal    metric.Int64Counter
	fallbackAttemptLatency    metric.Float64Histogram
}

func NewCreditMetrics(meter metric.Meter) (*CreditMetrics, error) {
	creditsConsumedTotal, err := meter.Int64Counter(
		"credits_consumed_total",
		metric.WithDescription("Credit units debited for usage"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credits_consumed_total counter: %w", err)
	}

	creditsAddedTotal, err := meter.Int64Counter(
		"credits_added_total",
		metric.WithDescription("Credit units added by purchase, bonus or refund"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credits_added_total counter: %w", err)
	}

	insufficientBalanceTotal, err := meter.Int64Counter(
		"credits_insufficient_balance_total",
		metric.WithDescription("Debits rejected for insufficient balance"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credits_insufficient_balance_total counter: %w", err)
	}

	balanceAlertsTotal, err := meter.Int64Counter(
		"credits_balance_alerts_total",
		metric.WithDescription("Low balance thresholds crossed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credits_balance_alerts_total counter: %w", err)
	}

	costCalculationsTotal, err := meter.Int64Counter(
		"credits_cost_calculations_total",
		metric.WithDescription("Usage cost calculations by model"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credits_cost_calculations_total counter: %w", err)
	}

	journalDroppedTotal, err := meter.Int64Counter(
		"ledger_journal_dropped_total",
		metric.WithDescription("Journal entries dropped due to queue full"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger_journal_dropped_total counter: %w", err)
	}

	journalWriteErrorsTotal, err := meter.Int64Counter(
		"ledger_journal_write_errors_total",
		metric.WithDescription("Failed journal writes to the backing store"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger_journal_write_errors_total counter: %w", err)
	}

	journalQueueSize, err := meter.Int64Gauge(
		"ledger_journal_queue_size",
		metric.WithDescription("Journal entries waiting to be persisted"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger_journal_queue_size gauge: %w", err)
	}

	reconcileDiscrepancies, err := meter.Int64Gauge(
		"ledger_reconcile_discrepancies",
		metric.WithDescription("Accounts whose balance disagrees with their transaction log"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger_reconcile_discrepancies gauge: %w", err)
	}

	subscriptionRenewalsTotal, err := meter.Int64Counter(
		"subscription_renewals_total",
		metric.WithDescription("Subscription renewals granted"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription_renewals_total counter: %w", err)
	}

	fallbackAttemptsTotal, err := meter.Int64Counter(
		"provider_fallback_attempts_total",
		metric.WithDescription("Provider attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider_fallback_attempts_total counter: %w", err)
	}

	fallbackExhaustedTotal, err := meter.Int64Counter(
		"provider_fallback_exhausted_total",
		metric.WithDescription("Calls where every provider failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider_fallback_exhausted_total counter: %w", err)
	}

	fallbackAttemptLatency, err := meter.Float64Histogram(
		"provider_fallback_attempt_latency_seconds",
		metric.WithDescription("Duration of a single provider attempt"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider_fallback_attempt_latency histogram: %w", err)
	}

	return &CreditMetrics{
		creditsConsumedTotal:      creditsConsumedTotal,
		creditsAddedTotal:         creditsAddedTotal,
		insufficientBalanceTotal:  insufficientBalanceTotal,
		balanceAlertsTotal:        balanceAlertsTotal,
		costCalculationsTotal:     costCalculationsTotal,
		journalDroppedTotal:       journalDroppedTotal,
		journalWriteErrorsTotal:   journalWriteErrorsTotal,
		journalQueueSize:          journalQueueSize,
		reconcileDiscrepancies:    reconcileDiscrepancies,
		subscriptionRenewalsTotal: subscriptionRenewalsTotal,
		fallbackAttemptsTotal:     fallbackAttemptsTotal,
		fallbackExhaustedTotal:    fallbackExhaustedTotal,
		fallbackAttemptLatency:    fallbackAttemptLatency,
	}, nil
}

func (cm *CreditMetrics) RecordCreditsConsumed(ctx context.Context, amount int64, userID string) {
	cm.creditsConsumedTotal.Add(ctx, amount,
		metric.WithAttributes(
			attribute.String("user_id", userID),
		),
	)
}

func (cm *CreditMetrics) RecordCreditsAdded(ctx context.Context, amount int64, txType string) {
	cm.creditsAddedTotal.Add(ctx, amount,
		metric.WithAttributes(
			attribute.String("type", txType),
		),
	)
}

func (cm *CreditMetrics) RecordInsufficientBalance(ctx context.Context) {
	cm.insufficientBalanceTotal.Add(ctx, 1)
}

func (cm *CreditMetrics) RecordBalanceAlert(ctx context.Context, threshold int64) {
	cm.balanceAlertsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.Int64("threshold", threshold),
		),
	)
}

func (cm *CreditMetrics) RecordCostCalculation(ctx context.Context, model string) {
	cm.costCalculationsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("model", model),
		),
	)
}

func (cm *CreditMetrics) RecordJournalDropped(ctx context.Context) {
	cm.journalDroppedTotal.Add(ctx, 1)
}

func (cm *CreditMetrics) RecordJournalWriteError(ctx context.Context, operation string) {
	cm.journalWriteErrorsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
		),
	)
}

func (cm *CreditMetrics) UpdateJournalQueueSize(ctx context.Context, size int64) {
	cm.journalQueueSize.Record(ctx, size)
}

func (cm *CreditMetrics) UpdateReconcileDiscrepancies(ctx context.Context, count int64) {
	cm.reconcileDiscrepancies.Record(ctx, count)
}

func (cm *CreditMetrics) RecordSubscriptionRenewal(ctx context.Context, plan string) {
	cm.subscriptionRenewalsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("plan", plan),
		),
	)
}

func (cm *CreditMetrics) RecordFallbackAttempt(ctx context.Context, provider string, succeeded bool, duration time.Duration) {
	outcome := "failure"
	if succeeded {
		outcome = "success"
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	)
	cm.fallbackAttemptsTotal.Add(ctx, 1, attrs)
	cm.fallbackAttemptLatency.Record(ctx, duration.Seconds(), attrs)
}

func (cm *CreditMetrics) RecordFallbackExhausted(ctx context.Context) {
	cm.fallbackExhaustedTotal.Add(ctx, 1)
}
