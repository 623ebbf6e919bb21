// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/zenith-tasks/zenith/internal/providers"
)

type config struct {
	databaseURL     string
	freeGrant       int64
	alertThresholds []int64
	providerOrder   []string
	apiKeys         map[string]string
	models          map[string]string
	otlpEndpoint    string
	debug           bool

	pricingRefreshInterval time.Duration
	renewalInterval        time.Duration
	reconcileInterval      time.Duration
	journalQueueSize       int
}

func configFromCommand(c *cli.Command) config {
	return config{
		databaseURL:     c.String("database-url"),
		freeGrant:       c.Int64("free-grant"),
		alertThresholds: c.Int64Slice("alert-thresholds"),
		providerOrder:   c.StringSlice("providers"),
		apiKeys: map[string]string{
			providers.PROVIDER_OPENAI:     c.String("openai-api-key"),
			providers.PROVIDER_OPENROUTER: c.String("openrouter-api-key"),
			providers.PROVIDER_ANTHROPIC:  c.String("anthropic-api-key"),
		},
		models: map[string]string{
			providers.PROVIDER_OPENAI:     c.String("openai-model"),
			providers.PROVIDER_OPENROUTER: c.String("openrouter-model"),
			providers.PROVIDER_ANTHROPIC:  c.String("anthropic-model"),
		},
		otlpEndpoint:           c.String("otlp-endpoint"),
		debug:                  c.Bool("debug"),
		pricingRefreshInterval: c.Duration("pricing-refresh-interval"),
		renewalInterval:        c.Duration("renewal-interval"),
		reconcileInterval:      c.Duration("reconcile-interval"),
		journalQueueSize:       c.Int("journal-queue-size"),
	}
}

// providerConfigs returns the providers that have an API key, in priority
// order. Names outside the supported set are rejected.
func (cfg config) providerConfigs() ([]providers.Config, error) {
	var configs []providers.Config
	seen := make(map[string]bool)
	for _, name := range cfg.providerOrder {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		key, supported := cfg.apiKeys[name]
		if !supported {
			return nil, fmt.Errorf("%w: %s", providers.ErrUnsupportedProvider, name)
		}
		if key == "" {
			continue
		}
		configs = append(configs, providers.Config{
			Name:         name,
			APIKey:       key,
			DefaultModel: cfg.models[name],
		})
	}
	return configs, nil
}

func newLogger(debug bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
}
