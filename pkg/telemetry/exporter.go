package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const serviceName = "work"

// Exporter pushes work metrics to an OTLP collector over gRPC.
type Exporter struct {
	*Metrics
	provider *sdkmetric.MeterProvider
}

// NewExporter creates an exporter for cfg. It fails when telemetry is
// disabled or no endpoint is configured.
func NewExporter(ctx context.Context, cfg Config, version string) (*Exporter, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTEL exporter is disabled or endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts,
			otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			otlpmetricgrpc.WithInsecure(),
		)
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	m, err := NewMetrics(provider.Meter(serviceName))
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}
	return &Exporter{Metrics: m, provider: provider}, nil
}

// Close flushes pending metrics and shuts the exporter down.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}

// Open returns an exporter when cfg enables one, and Nop otherwise. The
// returned close function is always safe to call. Exporter setup errors are
// reported to warn and degrade to Nop.
func Open(ctx context.Context, cfg Config, version string, warn func(format string, args ...any)) (Recorder, func(context.Context) error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return Nop{}, func(context.Context) error { return nil }
	}
	exp, err := NewExporter(ctx, cfg, version)
	if err != nil {
		if warn != nil {
			warn("telemetry disabled: %v", err)
		}
		return Nop{}, func(context.Context) error { return nil }
	}
	return exp, exp.Close
}
