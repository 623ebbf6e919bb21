// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package monitoring

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
}

type Manager struct {
	telemetry     *TelemetryManager
	creditMetrics *CreditMetrics
	config        Config
}

func NewManager(config Config) (*Manager, error) {
	telemetryConfig := TelemetryConfig(config)

	telemetry, err := NewTelemetryManager(telemetryConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry manager: %w", err)
	}

	meter := telemetry.GetMeter("github.com/zenith-tasks/zenith/credits")
	creditMetrics, err := NewCreditMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create credit metrics: %w", err)
	}

	return &Manager{
		telemetry:     telemetry,
		creditMetrics: creditMetrics,
		config:        config,
	}, nil
}

func (m *Manager) GetCreditMetrics() *CreditMetrics {
	return m.creditMetrics
}

func (m *Manager) GetMeter(instrumentationName string) metric.Meter {
	return m.telemetry.GetMeter(instrumentationName)
}

func (m *Manager) Shutdown(ctx context.Context) error {
	return m.telemetry.Shutdown(ctx)
}
