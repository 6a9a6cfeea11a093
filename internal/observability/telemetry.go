package observability

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const (
	defaultOTLPEndpoint = "localhost:4317"
	exportTimeout       = 10 * time.Second
	metricInterval      = time.Minute
)

// Config selects whether and where sync traces and metrics are exported
type Config struct {
	ServiceName string
	Version     string
	Platform    string
	Endpoint    string
	Enabled     bool
	SampleRatio float64
}

// NewConfig reads OTEL_ENABLED, OTEL_EXPORTER_OTLP_ENDPOINT and
// OTEL_TRACES_SAMPLER_ARG. Export is off unless OTEL_ENABLED is true.
func NewConfig(serviceName, version, platform string) Config {
	cfg := Config{
		ServiceName: serviceName,
		Version:     version,
		Platform:    platform,
		Endpoint:    defaultOTLPEndpoint,
		SampleRatio: 1,
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	cfg.Enabled, _ = strconv.ParseBool(os.Getenv("OTEL_ENABLED"))
	if r, err := strconv.ParseFloat(os.Getenv("OTEL_TRACES_SAMPLER_ARG"), 64); err == nil && r >= 0 && r <= 1 {
		cfg.SampleRatio = r
	}
	return cfg
}

// Telemetry holds the shutdown hooks of the providers Initialize installed
type Telemetry struct {
	shutdown []func(context.Context) error
}

// Initialize installs global OTLP tracer and meter providers. When export is
// disabled the otel no-op providers stay in place.
func Initialize(ctx context.Context, cfg Config) (*Telemetry, error) {
	t := &Telemetry{}
	if !cfg.Enabled {
		Info("Telemetry export disabled (set OTEL_ENABLED=true to enable)")
		return t, nil
	}

	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.Version),
		attribute.String("device.platform", cfg.Platform),
	)

	traces, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(exportTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traces),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	t.shutdown = append(t.shutdown, tp.Shutdown)

	metrics, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithInsecure(),
		otlpmetricgrpc.WithTimeout(exportTimeout),
	)
	if err != nil {
		t.Shutdown(ctx)
		return nil, fmt.Errorf("metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metrics, sdkmetric.WithInterval(metricInterval))),
		sdkmetric.WithResource(res),
	)
	t.shutdown = append(t.shutdown, mp.Shutdown)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	Infof("Exporting telemetry to %s (sample ratio %.2f)", cfg.Endpoint, cfg.SampleRatio)
	return t, nil
}

// Shutdown flushes and stops the providers in reverse order
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(t.shutdown) - 1; i >= 0; i-- {
		errs = append(errs, t.shutdown[i](ctx))
	}
	t.shutdown = nil
	return errors.Join(errs...)
}
