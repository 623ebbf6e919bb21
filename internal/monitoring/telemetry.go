// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package monitoring

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
}

type TelemetryManager struct {
	meterProvider *sdkmetric.MeterProvider
	config        TelemetryConfig
}

// NewTelemetryManager sets up the global meter provider. Without an OTLP
// endpoint, instruments are created but nothing is exported.
func NewTelemetryManager(config TelemetryConfig, readers ...sdkmetric.Reader) (*TelemetryManager, error) {
	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	providerOptions := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, reader := range readers {
		providerOptions = append(providerOptions, sdkmetric.WithReader(reader))
	}

	if config.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}

		providerOptions = append(providerOptions, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlpExporter)))
		slog.Info("OTLP metrics enabled", "endpoint", config.OTLPEndpoint)
	} else {
		slog.Info("OTLP endpoint not configured, metrics will not be exported")
	}

	meterProvider := sdkmetric.NewMeterProvider(providerOptions...)

	otel.SetMeterProvider(meterProvider)

	return &TelemetryManager{
		meterProvider: meterProvider,
		config:        config,
	}, nil
}

func (tm *TelemetryManager) GetMeter(instrumentationName string) metric.Meter {
	return tm.meterProvider.Meter(instrumentationName)
}

func (tm *TelemetryManager) Shutdown(ctx context.Context) error {
	return tm.meterProvider.Shutdown(ctx)
}
