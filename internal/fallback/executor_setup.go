// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package fallback

import (
	"log/slog"

	"github.com/zenith-tasks/zenith/internal/monitoring"
)

// New creates a new [Executor].
func New(options ...ExecutorOption) *Executor {
	opts := defaultExecutorOptions
	for _, opt := range GlobalExecutorOptions {
		opt.apply(&opts)
	}
	for _, opt := range options {
		opt.apply(&opts)
	}

	return &Executor{
		options: &opts,
	}
}

type executorOptions struct {
	Logger    *slog.Logger
	Providers []string
	Metrics   *monitoring.CreditMetrics
}

var defaultExecutorOptions = executorOptions{
	Logger: slog.Default(),
}

// GlobalExecutorOptions is a list of [ExecutorOption]s that are applied to all [Executor]s.
var GlobalExecutorOptions []ExecutorOption

// ExecutorOption is an option for configuring an [Executor].
type ExecutorOption interface {
	apply(*executorOptions)
}

// funcExecutorOption is an [ExecutorOption] that calls a function.
// It is used to wrap a function, so it satisfies the [ExecutorOption] interface.
type funcExecutorOption struct {
	f func(*executorOptions)
}

func (feo *funcExecutorOption) apply(opts *executorOptions) {
	feo.f(opts)
}

func newFuncExecutorOption(f func(*executorOptions)) *funcExecutorOption {
	return &funcExecutorOption{
		f: f,
	}
}

// WithLogger returns an [ExecutorOption] that uses the provided logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return newFuncExecutorOption(func(opts *executorOptions) {
		opts.Logger = logger
	})
}

// WithProviders returns an [ExecutorOption] that sets the providers to try, highest priority first.
func WithProviders(providers ...string) ExecutorOption {
	return newFuncExecutorOption(func(opts *executorOptions) {
		opts.Providers = append([]string(nil), providers...)
	})
}

// WithMetrics returns an [ExecutorOption] that records attempt metrics.
func WithMetrics(metrics *monitoring.CreditMetrics) ExecutorOption {
	return newFuncExecutorOption(func(opts *executorOptions) {
		opts.Metrics = metrics
	})
}
