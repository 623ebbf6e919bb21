// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package fallback runs an operation against a priority list of providers,
// moving to the next provider whenever one fails.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoProviders is returned when there is no provider to try
var ErrNoProviders = errors.New("no providers configured")

// Attempt records one provider invocation
type Attempt struct {
	Provider  string
	Succeeded bool
	Err       error
	Duration  time.Duration
}

// Result is the outcome of a successful execution
type Result[T any] struct {
	Value        T
	ProviderUsed string
	// Attempts holds every attempt in order, the successful one last
	Attempts []Attempt
}

// ExhaustedError is returned when no provider succeeded
type ExhaustedError struct {
	Attempts []Attempt
	// Cause is the context error when the context ended during execution
	Cause error
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	b.WriteString("all providers failed")
	if e.Cause != nil {
		fmt.Fprintf(&b, " (stopped: %v)", e.Cause)
	}
	for i, a := range e.Attempts {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %v", a.Provider, a.Err)
	}
	return b.String()
}

func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts)+1)
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Operation performs a request against a single provider
type Operation[T any] func(ctx context.Context, provider string) (T, error)

// Executor holds the default provider priority list
type Executor struct {
	options *executorOptions
}

// Providers returns the configured provider list
func (e *Executor) Providers() []string {
	return append([]string(nil), e.options.Providers...)
}

// Execute runs op against the executor's providers
func Execute[T any](ctx context.Context, e *Executor, op Operation[T]) (*Result[T], error) {
	return ExecuteWith(ctx, e, e.options.Providers, op)
}

// ExecuteWith runs op against providers in order until one succeeds. Each
// provider is tried at most once.
func ExecuteWith[T any](ctx context.Context, e *Executor, providers []string, op Operation[T]) (*Result[T], error) {
	providers = uniqueProviders(providers)
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}

	logger := e.options.Logger
	attempts := make([]Attempt, 0, len(providers))

	for _, provider := range providers {
		if err := ctx.Err(); err != nil {
			logger.Warn("Stopping provider fallback",
				"error", err,
				"attempted", len(attempts),
				"remaining", len(providers)-len(attempts))
			return nil, e.exhausted(ctx, attempts, err)
		}

		start := time.Now()
		value, err := op(ctx, provider)
		attempt := Attempt{
			Provider:  provider,
			Succeeded: err == nil,
			Err:       err,
			Duration:  time.Since(start),
		}
		attempts = append(attempts, attempt)

		if e.options.Metrics != nil {
			e.options.Metrics.RecordFallbackAttempt(ctx, provider, attempt.Succeeded, attempt.Duration)
		}

		if err == nil {
			if len(attempts) > 1 {
				logger.Info("Provider fallback succeeded",
					"provider", provider,
					"attempts", len(attempts))
			}
			return &Result[T]{
				Value:        value,
				ProviderUsed: provider,
				Attempts:     attempts,
			}, nil
		}

		logger.Warn("Provider attempt failed",
			"provider", provider,
			"error", err,
			"duration", attempt.Duration)
	}

	// Cancellation during the last attempt
	return nil, e.exhausted(ctx, attempts, ctx.Err())
}

func (e *Executor) exhausted(ctx context.Context, attempts []Attempt, cause error) error {
	if e.options.Metrics != nil {
		e.options.Metrics.RecordFallbackExhausted(context.WithoutCancel(ctx))
	}
	e.options.Logger.Error("All providers failed", "attempts", len(attempts))
	return &ExhaustedError{Attempts: attempts, Cause: cause}
}

func uniqueProviders(providers []string) []string {
	seen := make(map[string]struct{}, len(providers))
	out := make([]string, 0, len(providers))
	for _, p := range providers {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
