// Package otelexport installs an OpenTelemetry tracer provider that ships
// spans over OTLP.
package otelexport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const defaultServiceName = "pagelens"

// ErrNoEndpoint is returned by New without an endpoint.
var ErrNoEndpoint = errors.New("OTLP endpoint is required")

// Config configures the OpenTelemetry OTLP exporter.
type Config struct {
	Endpoint    string            // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            // "grpc" (default) or "http"
	Insecure    bool              // skip TLS for local dev
	ServiceName string            // OTEL service name (default "pagelens")
	Version     string            // service version attribute
	Headers     map[string]string // extra headers (auth tokens, etc.)
}

// Exporter owns the tracer provider behind otel.Tracer once installed.
type Exporter struct {
	provider *sdktrace.TracerProvider
	logger   *slog.Logger
}

// New creates an OTLP exporter and installs it as the global tracer
// provider.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	exp, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}
	return install(ctx, cfg, exp, logger,
		sdktrace.WithMaxExportBatchSize(100),
		sdktrace.WithBatchTimeout(5*time.Second),
	)
}

func newSpanExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Protocol {
	case "http":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return otlptracehttp.New(ctx, opts...)
	default: // "grpc"
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		return otlptracegrpc.New(ctx, opts...)
	}
}

func install(ctx context.Context, cfg Config, exp sdktrace.SpanExporter, logger *slog.Logger, batch ...sdktrace.BatchSpanProcessorOption) (*Exporter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	res, err := resource.New(ctx, resource.WithAttributes(serviceAttributes(cfg)...))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, batch...),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	logger.Info("OpenTelemetry OTLP export enabled", "endpoint", cfg.Endpoint, "protocol", protocolName(cfg))
	return &Exporter{provider: tp, logger: logger}, nil
}

func serviceAttributes(cfg Config) []attribute.KeyValue {
	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if cfg.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	return attrs
}

func protocolName(cfg Config) string {
	if cfg.Protocol == "" {
		return "grpc"
	}
	return cfg.Protocol
}

// Tracer returns a tracer from the installed provider.
func (e *Exporter) Tracer(name string) trace.Tracer {
	return e.provider.Tracer(name)
}

// Shutdown flushes remaining spans and stops the provider.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	e.logger.Info("otel exporter shutting down")
	return e.provider.Shutdown(ctx)
}
