package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	config "github.com/tigerroll/surfin-etl/pkg/etl/core/config"
)

func serviceResource(name string) *resource.Resource {
	if name == "" {
		name = "surfin-etl"
	}
	return resource.NewSchemaless(attribute.String("service.name", name))
}

// NewTracerProvider builds an SDK tracer provider exporting over OTLP gRPC or HTTP.
// Exporter "none" keeps spans in process.
func NewTracerProvider(ctx context.Context, cfg config.TracingConfig) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(serviceResource(cfg.ServiceName))}

	switch cfg.Exporter {
	case "grpc":
		exOpts := []otlptracegrpc.Option{}
		if cfg.Endpoint != "" {
			exOpts = append(exOpts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			exOpts = append(exOpts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, exOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP gRPC trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	case "http":
		exOpts := []otlptracehttp.Option{}
		if cfg.Endpoint != "" {
			exOpts = append(exOpts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			exOpts = append(exOpts, otlptracehttp.WithInsecure())
		}
		exp, err := otlptracehttp.New(ctx, exOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP HTTP trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	case "", "none":
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

// NewMeterProvider builds an SDK meter provider with a periodic OTLP reader.
func NewMeterProvider(ctx context.Context, cfg config.MetricsConfig, tracing config.TracingConfig) (*sdkmetric.MeterProvider, error) {
	var reader sdkmetric.Reader
	switch tracing.Exporter {
	case "http":
		exOpts := []otlpmetrichttp.Option{}
		if cfg.Endpoint != "" {
			exOpts = append(exOpts, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
		}
		if tracing.Insecure {
			exOpts = append(exOpts, otlpmetrichttp.WithInsecure())
		}
		exp, err := otlpmetrichttp.New(ctx, exOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP HTTP metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exp)
	default:
		exOpts := []otlpmetricgrpc.Option{}
		if cfg.Endpoint != "" {
			exOpts = append(exOpts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
		}
		if tracing.Insecure {
			exOpts = append(exOpts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, exOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP gRPC metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exp)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(serviceResource(tracing.ServiceName)),
	), nil
}
