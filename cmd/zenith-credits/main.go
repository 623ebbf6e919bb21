// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/zenith-tasks/zenith/internal/assistant"
	"github.com/zenith-tasks/zenith/internal/fallback"
	"github.com/zenith-tasks/zenith/internal/ledger"
	"github.com/zenith-tasks/zenith/internal/monitoring"
	"github.com/zenith-tasks/zenith/internal/postgres"
	"github.com/zenith-tasks/zenith/internal/pricing"
	"github.com/zenith-tasks/zenith/internal/providers"
	"github.com/zenith-tasks/zenith/internal/services"
)

const version = "0.1.0"

// pricingCacheTTL bounds how stale a pricing refresh can be
const pricingCacheTTL = time.Minute

func main() {
	cmd := &cli.Command{
		Name:    "zenith-credits",
		Usage:   "Zenith Tasks credit ledger and provider fallback",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "PostgreSQL database connection URL",
				Sources:  cli.EnvVars("DATABASE_URL"),
				Required: true,
			},
			&cli.Int64Flag{
				Name:    "free-grant",
				Value:   ledger.DefaultInitialGrant,
				Usage:   "Credits granted to new accounts",
				Sources: cli.EnvVars("ZENITH_FREE_GRANT"),
			},
			&cli.Int64SliceFlag{
				Name:    "alert-thresholds",
				Value:   []int64{20, 5},
				Usage:   "Balances at which low balance alerts are raised",
				Sources: cli.EnvVars("ZENITH_ALERT_THRESHOLDS"),
			},
			&cli.StringSliceFlag{
				Name:    "providers",
				Value:   []string{providers.PROVIDER_OPENROUTER, providers.PROVIDER_OPENAI, providers.PROVIDER_ANTHROPIC},
				Usage:   "Provider priority order for fallback",
				Sources: cli.EnvVars("ZENITH_PROVIDERS"),
			},
			&cli.StringFlag{
				Name:    "openai-api-key",
				Usage:   "OpenAI API key",
				Sources: cli.EnvVars("OPENAI_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "openai-model",
				Value:   "gpt-4o-mini",
				Usage:   "Default OpenAI model",
				Sources: cli.EnvVars("ZENITH_OPENAI_MODEL"),
			},
			&cli.StringFlag{
				Name:    "openrouter-api-key",
				Usage:   "OpenRouter API key",
				Sources: cli.EnvVars("OPENROUTER_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "openrouter-model",
				Value:   "openai/gpt-4o-mini",
				Usage:   "Default OpenRouter model",
				Sources: cli.EnvVars("ZENITH_OPENROUTER_MODEL"),
			},
			&cli.StringFlag{
				Name:    "anthropic-api-key",
				Usage:   "Anthropic API key",
				Sources: cli.EnvVars("ANTHROPIC_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "anthropic-model",
				Value:   "claude-3-5-haiku-latest",
				Usage:   "Default Anthropic model",
				Sources: cli.EnvVars("ZENITH_ANTHROPIC_MODEL"),
			},
			&cli.DurationFlag{
				Name:    "pricing-refresh-interval",
				Value:   5 * time.Minute,
				Usage:   "How often model pricing is reloaded from the database",
				Sources: cli.EnvVars("ZENITH_PRICING_REFRESH_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "renewal-interval",
				Value:   time.Hour,
				Usage:   "How often due subscriptions are renewed",
				Sources: cli.EnvVars("ZENITH_RENEWAL_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "reconcile-interval",
				Value:   15 * time.Minute,
				Usage:   "How often account balances are reconciled",
				Sources: cli.EnvVars("ZENITH_RECONCILE_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "journal-queue-size",
				Value:   1000,
				Usage:   "Pending ledger writes held before new ones are dropped",
				Sources: cli.EnvVars("ZENITH_JOURNAL_QUEUE_SIZE"),
			},
			&cli.StringFlag{
				Name:    "otlp-endpoint",
				Usage:   "OTLP gRPC endpoint for metrics, metrics are disabled when empty",
				Sources: cli.EnvVars("OTEL_EXPORTER_OTLP_ENDPOINT"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				Sources: cli.EnvVars("ZENITH_DEBUG"),
			},
		},
		Action: runServer,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("Failed to run command", "error", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, c *cli.Command) error {
	cfg := configFromCommand(c)

	logger := newLogger(cfg.debug)
	slog.SetDefault(logger)

	metricsManager, err := monitoring.NewManager(monitoring.Config{
		ServiceName:    "zenith-credits",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.otlpEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics manager: %w", err)
	}
	metrics := metricsManager.GetCreditMetrics()

	// Connect to database
	logger.Info("Connecting to database")
	dbPool, err := postgres.Connect(ctx, cfg.databaseURL)
	if err != nil {
		return err
	}
	defer dbPool.Close()
	logger.Info("Database connection established")

	if err := postgres.RunMigrations(logger, cfg.databaseURL); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}

	// Create repositories
	ledgerRepo, err := postgres.NewLedgerRepository(
		postgres.WithLedgerRepositoryLogger(logger),
		postgres.WithLedgerRepositoryDb(dbPool),
	)
	if err != nil {
		return fmt.Errorf("failed to create ledger repository: %w", err)
	}

	pricingRepo, err := postgres.NewPricingRepository(
		postgres.WithPricingRepositoryLogger(logger),
		postgres.WithPricingRepositoryDb(dbPool),
	)
	if err != nil {
		return fmt.Errorf("failed to create pricing repository: %w", err)
	}
	cachedPricingRepo := postgres.NewCachedPricingRepository(pricingRepo, pricingCacheTTL)
	defer cachedPricingRepo.Close()

	costTable := pricing.DefaultTable()
	if err := costTable.Refresh(ctx, cachedPricingRepo); err != nil {
		logger.Warn("Using built-in model pricing", "error", err)
	}

	// Ledger with write-behind persistence
	journal := ledger.NewJournal(ledgerRepo,
		ledger.WithJournalLogger(logger),
		ledger.WithJournalMetrics(metrics),
		ledger.WithJournalQueueSize(cfg.journalQueueSize),
	)

	creditLedger, err := ledger.NewLedger(
		ledger.WithLedgerLogger(logger),
		ledger.WithInitialGrant(cfg.freeGrant),
		ledger.WithPricing(costTable),
		ledger.WithLedgerMetrics(metrics),
		ledger.WithAlertThresholds(cfg.alertThresholds...),
		ledger.WithNotifier(ledger.NewLogNotifier(logger)),
		ledger.WithJournal(journal),
	)
	if err != nil {
		journal.Close()
		return fmt.Errorf("failed to create ledger: %w", err)
	}

	if err := creditLedger.Hydrate(ctx, ledgerRepo); err != nil {
		journal.Close()
		return fmt.Errorf("failed to load ledger state: %w", err)
	}

	// Providers and fallback
	providerConfigs, err := cfg.providerConfigs()
	if err != nil {
		journal.Close()
		return err
	}
	registry, err := providers.NewRegistryFromConfigs(providerConfigs,
		providers.WithClientLogger(logger),
	)
	if err != nil {
		journal.Close()
		return fmt.Errorf("failed to create provider registry: %w", err)
	}
	if len(registry.Names()) == 0 {
		logger.Warn("No provider API keys configured, generation is disabled")
	}

	executor := fallback.New(
		fallback.WithLogger(logger),
		fallback.WithProviders(registry.Names()...),
		fallback.WithMetrics(metrics),
	)

	// No transport serves the assistant yet. Building it checks that the
	// ledger and provider registry are wired before startup.
	if _, err := assistant.NewService(
		assistant.WithLogger(logger),
		assistant.WithLedger(creditLedger),
		assistant.WithRegistry(registry),
		assistant.WithExecutor(executor),
	); err != nil {
		journal.Close()
		return fmt.Errorf("failed to create assistant service: %w", err)
	}
	logger.Info("Assistant ready", "providers", executor.Providers())

	// Background maintenance
	scheduler := services.NewScheduler(
		services.WithSchedulerLogger(logger),
		services.WithJobs(
			services.PricingRefreshJob(costTable, cachedPricingRepo, cfg.pricingRefreshInterval),
			services.RenewalJob(creditLedger, cfg.renewalInterval, time.Now, logger),
			services.ReconcileJob(creditLedger, cfg.reconcileInterval, logger),
		),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	scheduler.Start(ctx)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal, shutting down", "signal", sig)

	cancel()
	scheduler.Stop()

	// Flush pending ledger writes before the pool closes
	journal.Close()
	if dropped := journal.Dropped(); dropped > 0 {
		logger.Warn("Ledger writes were dropped while running", "count", dropped)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := metricsManager.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown metrics gracefully", "error", err)
		return err
	}

	logger.Info("Server shutdown complete")
	return nil
}
