// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package assistant

import (
	"errors"
	"log/slog"

	"github.com/zenith-tasks/zenith/internal/fallback"
	"github.com/zenith-tasks/zenith/internal/ledger"
	"github.com/zenith-tasks/zenith/internal/providers"
)

// DefaultMinimumBalance is the balance a user needs before a request is sent upstream
const DefaultMinimumBalance int64 = 1

// NewService creates a new [Service].
func NewService(options ...ServiceOption) (*Service, error) {
	opts := defaultServiceOptions
	for _, opt := range GlobalServiceOptions {
		opt.apply(&opts)
	}
	for _, opt := range options {
		opt.apply(&opts)
	}

	if opts.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("provider registry is required")
	}
	if opts.Executor == nil {
		opts.Executor = fallback.New(fallback.WithLogger(opts.Logger))
	}
	if opts.MinimumBalance < 1 {
		opts.MinimumBalance = DefaultMinimumBalance
	}

	return &Service{
		options: &opts,
	}, nil
}

type serviceOptions struct {
	Logger         *slog.Logger
	Ledger         ledger.Service
	Registry       *providers.Registry
	Executor       *fallback.Executor
	MinimumBalance int64
}

var defaultServiceOptions = serviceOptions{
	Logger:         slog.Default(),
	MinimumBalance: DefaultMinimumBalance,
}

// GlobalServiceOptions is a list of [ServiceOption]s that are applied to all [Service]s.
var GlobalServiceOptions []ServiceOption

// ServiceOption is an option for configuring a [Service].
type ServiceOption interface {
	apply(*serviceOptions)
}

// funcServiceOption is a [ServiceOption] that calls a function.
// It is used to wrap a function, so it satisfies the [ServiceOption] interface.
type funcServiceOption struct {
	f func(*serviceOptions)
}

func (fso *funcServiceOption) apply(opts *serviceOptions) {
	fso.f(opts)
}

func newFuncServiceOption(f func(*serviceOptions)) *funcServiceOption {
	return &funcServiceOption{
		f: f,
	}
}

// WithLogger returns a [ServiceOption] that uses the provided logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return newFuncServiceOption(func(opts *serviceOptions) {
		opts.Logger = logger
	})
}

// WithLedger returns a [ServiceOption] that bills requests against the provided ledger.
func WithLedger(l ledger.Service) ServiceOption {
	return newFuncServiceOption(func(opts *serviceOptions) {
		opts.Ledger = l
	})
}

// WithRegistry returns a [ServiceOption] that resolves provider clients from the registry.
func WithRegistry(registry *providers.Registry) ServiceOption {
	return newFuncServiceOption(func(opts *serviceOptions) {
		opts.Registry = registry
	})
}

// WithExecutor returns a [ServiceOption] that sets the fallback executor.
// When the executor has no providers the registry order is used.
func WithExecutor(executor *fallback.Executor) ServiceOption {
	return newFuncServiceOption(func(opts *serviceOptions) {
		opts.Executor = executor
	})
}

// WithMinimumBalance returns a [ServiceOption] that sets the balance required to start a request.
func WithMinimumBalance(balance int64) ServiceOption {
	return newFuncServiceOption(func(opts *serviceOptions) {
		opts.MinimumBalance = balance
	})
}
