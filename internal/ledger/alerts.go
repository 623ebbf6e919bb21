// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package ledger

import (
	"context"
	"log/slog"
	"slices"
)

// Alert is raised when a debit takes a balance to or below a threshold
type Alert struct {
	UserID    string
	Threshold int64
	Balance   int64
}

// Notifier receives low balance alerts
type Notifier interface {
	Notify(ctx context.Context, alert Alert)
}

// NotifierFunc adapts a function to the [Notifier] interface
type NotifierFunc func(ctx context.Context, alert Alert)

func (f NotifierFunc) Notify(ctx context.Context, alert Alert) {
	f(ctx, alert)
}

// LogNotifier writes alerts to a logger
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs alerts as warnings
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, alert Alert) {
	n.logger.WarnContext(ctx, "Credit balance low",
		"userID", alert.UserID,
		"threshold", alert.Threshold,
		"balance", alert.Balance)
}

// crossedThresholds returns the thresholds passed when moving from before to
// after, highest first
func crossedThresholds(thresholds []int64, before, after int64) []int64 {
	var crossed []int64
	for _, t := range thresholds {
		if before > t && after <= t {
			crossed = append(crossed, t)
		}
	}
	return crossed
}

// normalizeThresholds drops negative values and duplicates and sorts highest first
func normalizeThresholds(thresholds []int64) []int64 {
	out := make([]int64, 0, len(thresholds))
	for _, t := range thresholds {
		if t < 0 || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	slices.Sort(out)
	slices.Reverse(out)
	return out
}
