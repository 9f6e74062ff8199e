package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Provider owns the SDK meter and tracer providers.
type Provider struct {
	reader *sdkmetric.ManualReader
	meters *sdkmetric.MeterProvider
	tracer *sdktrace.TracerProvider
}

// New creates SDK providers. Spans are logged at debug level through logger.
func New(logger *slog.Logger) *Provider {
	reader := sdkmetric.NewManualReader()
	return &Provider{
		reader: reader,
		meters: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		tracer: sdktrace.NewTracerProvider(
			sdktrace.WithSpanProcessor(newLogSpanProcessor(logger)),
		),
	}
}

// Meter returns a meter scoped to name.
func (p *Provider) Meter(name string) metric.Meter {
	return p.meters.Meter(name)
}

// Tracer returns a tracer scoped to name.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tracer.Tracer(name)
}

// MeterProvider exposes the SDK meter provider.
func (p *Provider) MeterProvider() *sdkmetric.MeterProvider {
	return p.meters
}

// Snapshot collects every instrument and flattens the result into points.
func (p *Provider) Snapshot(ctx context.Context) ([]Point, error) {
	rm, err := collect(ctx, p.reader)
	if err != nil {
		return nil, fmt.Errorf("failed to collect metrics: %w", err)
	}
	return Flatten(rm), nil
}

// Shutdown flushes and stops both providers. It is safe to call once.
func (p *Provider) Shutdown(ctx context.Context) error {
	return errors.Join(p.meters.Shutdown(ctx), p.tracer.Shutdown(ctx))
}
