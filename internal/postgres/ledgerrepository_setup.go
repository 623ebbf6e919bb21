// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"log/slog"

	"github.com/zenith-tasks/zenith"
)

var _ zenith.LedgerRepository = (*LedgerRepository)(nil)

type LedgerRepository struct {
	options *ledgerRepositoryOptions
}

// NewLedgerRepository creates a new [LedgerRepository].
func NewLedgerRepository(options ...LedgerRepositoryOption) (*LedgerRepository, error) {
	opts := defaultLedgerRepositoryOptions
	for _, opt := range GlobalLedgerRepositoryOptions {
		opt.apply(&opts)
	}
	for _, opt := range options {
		opt.apply(&opts)
	}

	return &LedgerRepository{
		options: &opts,
	}, nil
}

type ledgerRepositoryOptions struct {
	Logger *slog.Logger
	Db     PgxPoolInterface
}

var defaultLedgerRepositoryOptions = ledgerRepositoryOptions{
	Logger: slog.Default(),
}

// GlobalLedgerRepositoryOptions is a list of [LedgerRepositoryOption]s that are applied to all [LedgerRepository]s.
var GlobalLedgerRepositoryOptions []LedgerRepositoryOption

// LedgerRepositoryOption is an option for configuring a [LedgerRepository].
type LedgerRepositoryOption interface {
	apply(*ledgerRepositoryOptions)
}

// funcLedgerRepositoryOption is a [LedgerRepositoryOption] that calls a function.
// It is used to wrap a function, so it satisfies the [LedgerRepositoryOption] interface.
type funcLedgerRepositoryOption struct {
	f func(*ledgerRepositoryOptions)
}

func (flo *funcLedgerRepositoryOption) apply(opts *ledgerRepositoryOptions) {
	flo.f(opts)
}

func newFuncLedgerRepositoryOption(f func(*ledgerRepositoryOptions)) *funcLedgerRepositoryOption {
	return &funcLedgerRepositoryOption{
		f: f,
	}
}

// WithLedgerRepositoryLogger returns a [LedgerRepositoryOption] that uses the provided logger.
func WithLedgerRepositoryLogger(logger *slog.Logger) LedgerRepositoryOption {
	return newFuncLedgerRepositoryOption(func(opts *ledgerRepositoryOptions) {
		opts.Logger = logger
	})
}

// WithLedgerRepositoryDb returns a [LedgerRepositoryOption] that uses the provided database connection.
func WithLedgerRepositoryDb(db PgxPoolInterface) LedgerRepositoryOption {
	return newFuncLedgerRepositoryOption(func(opts *ledgerRepositoryOptions) {
		opts.Db = db
	})
}
