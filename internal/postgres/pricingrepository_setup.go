// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"log/slog"

	"github.com/zenith-tasks/zenith"
)

var _ zenith.PricingRepository = (*PricingRepository)(nil)

type PricingRepository struct {
	options *pricingRepositoryOptions
}

// NewPricingRepository creates a new [PricingRepository].
func NewPricingRepository(options ...PricingRepositoryOption) (*PricingRepository, error) {
	opts := defaultPricingRepositoryOptions
	for _, opt := range GlobalPricingRepositoryOptions {
		opt.apply(&opts)
	}
	for _, opt := range options {
		opt.apply(&opts)
	}

	return &PricingRepository{
		options: &opts,
	}, nil
}

type pricingRepositoryOptions struct {
	Logger *slog.Logger
	Db     PgxPoolInterface
}

var defaultPricingRepositoryOptions = pricingRepositoryOptions{
	Logger: slog.Default(),
}

// GlobalPricingRepositoryOptions is a list of [PricingRepositoryOption]s that are applied to all [PricingRepository]s.
var GlobalPricingRepositoryOptions []PricingRepositoryOption

// PricingRepositoryOption is an option for configuring a [PricingRepository].
type PricingRepositoryOption interface {
	apply(*pricingRepositoryOptions)
}

// funcPricingRepositoryOption is a [PricingRepositoryOption] that calls a function.
// It is used to wrap a function, so it satisfies the [PricingRepositoryOption] interface.
type funcPricingRepositoryOption struct {
	f func(*pricingRepositoryOptions)
}

func (fpo *funcPricingRepositoryOption) apply(opts *pricingRepositoryOptions) {
	fpo.f(opts)
}

func newFuncPricingRepositoryOption(f func(*pricingRepositoryOptions)) *funcPricingRepositoryOption {
	return &funcPricingRepositoryOption{
		f: f,
	}
}

// WithPricingRepositoryLogger returns a [PricingRepositoryOption] that uses the provided logger.
func WithPricingRepositoryLogger(logger *slog.Logger) PricingRepositoryOption {
	return newFuncPricingRepositoryOption(func(opts *pricingRepositoryOptions) {
		opts.Logger = logger
	})
}

// WithPricingRepositoryDb returns a [PricingRepositoryOption] that uses the provided database connection.
func WithPricingRepositoryDb(db PgxPoolInterface) PricingRepositoryOption {
	return newFuncPricingRepositoryOption(func(opts *pricingRepositoryOptions) {
		opts.Db = db
	})
}
