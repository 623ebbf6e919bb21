// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package ledger

import (
	"errors"
	"log/slog"
	"time"

	"github.com/zenith-tasks/zenith/internal/monitoring"
	"github.com/zenith-tasks/zenith/internal/pricing"
)

// DefaultInitialGrant is the balance given to a newly observed user
const DefaultInitialGrant int64 = 100

// DefaultAlertThresholds are the low balance levels that trigger an alert
var DefaultAlertThresholds = []int64{20, 5}

// NewLedger creates a new [Ledger].
func NewLedger(options ...LedgerOption) (*Ledger, error) {
	opts := defaultLedgerOptions
	for _, opt := range GlobalLedgerOptions {
		opt.apply(&opts)
	}
	for _, opt := range options {
		opt.apply(&opts)
	}

	if opts.InitialGrant < 0 {
		return nil, errors.New("initial grant cannot be negative")
	}
	if opts.Pricing == nil {
		opts.Pricing = pricing.DefaultTable()
	}
	if opts.Notifier == nil {
		opts.Notifier = NewLogNotifier(opts.Logger)
	}
	opts.AlertThresholds = normalizeThresholds(opts.AlertThresholds)

	return &Ledger{
		options:  &opts,
		accounts: make(map[string]*accountState),
	}, nil
}

type ledgerOptions struct {
	Logger          *slog.Logger
	InitialGrant    int64
	Clock           func() time.Time
	Pricing         *pricing.Table
	Metrics         *monitoring.CreditMetrics
	AlertThresholds []int64
	Notifier        Notifier
	Journal         *Journal
}

var defaultLedgerOptions = ledgerOptions{
	Logger:          slog.Default(),
	InitialGrant:    DefaultInitialGrant,
	Clock:           time.Now,
	AlertThresholds: DefaultAlertThresholds,
}

// GlobalLedgerOptions is a list of [LedgerOption]s that are applied to all [Ledger]s.
var GlobalLedgerOptions []LedgerOption

// LedgerOption is an option for configuring a [Ledger].
type LedgerOption interface {
	apply(*ledgerOptions)
}

// funcLedgerOption is a [LedgerOption] that calls a function.
// It is used to wrap a function, so it satisfies the [LedgerOption] interface.
type funcLedgerOption struct {
	f func(*ledgerOptions)
}

func (flo *funcLedgerOption) apply(opts *ledgerOptions) {
	flo.f(opts)
}

func newFuncLedgerOption(f func(*ledgerOptions)) *funcLedgerOption {
	return &funcLedgerOption{
		f: f,
	}
}

// WithLedgerLogger returns a [LedgerOption] that uses the provided logger.
func WithLedgerLogger(logger *slog.Logger) LedgerOption {
	return newFuncLedgerOption(func(opts *ledgerOptions) {
		opts.Logger = logger
	})
}

// WithInitialGrant returns a [LedgerOption] that sets the free-tier grant for new accounts.
func WithInitialGrant(grant int64) LedgerOption {
	return newFuncLedgerOption(func(opts *ledgerOptions) {
		opts.InitialGrant = grant
	})
}

// WithClock returns a [LedgerOption] that sets the time source used for timestamps.
func WithClock(clock func() time.Time) LedgerOption {
	return newFuncLedgerOption(func(opts *ledgerOptions) {
		opts.Clock = clock
	})
}

// WithPricing returns a [LedgerOption] that sets the cost table.
func WithPricing(table *pricing.Table) LedgerOption {
	return newFuncLedgerOption(func(opts *ledgerOptions) {
		opts.Pricing = table
	})
}

// WithLedgerMetrics returns a [LedgerOption] that records credit metrics.
func WithLedgerMetrics(metrics *monitoring.CreditMetrics) LedgerOption {
	return newFuncLedgerOption(func(opts *ledgerOptions) {
		opts.Metrics = metrics
	})
}

// WithAlertThresholds returns a [LedgerOption] that sets the low balance alert levels.
func WithAlertThresholds(thresholds ...int64) LedgerOption {
	return newFuncLedgerOption(func(opts *ledgerOptions) {
		opts.AlertThresholds = thresholds
	})
}

// WithNotifier returns a [LedgerOption] that receives low balance alerts.
func WithNotifier(notifier Notifier) LedgerOption {
	return newFuncLedgerOption(func(opts *ledgerOptions) {
		opts.Notifier = notifier
	})
}

// WithJournal returns a [LedgerOption] that persists mutations through the journal.
func WithJournal(journal *Journal) LedgerOption {
	return newFuncLedgerOption(func(opts *ledgerOptions) {
		opts.Journal = journal
	})
}
