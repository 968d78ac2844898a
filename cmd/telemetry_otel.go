//go:build otel

package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/pagelens/internal/config"
	"github.com/nextlevelbuilder/pagelens/internal/tracing/otelexport"
)

// initTelemetry installs the OTLP tracer provider when telemetry is
// enabled. Only compiled with -tags otel.
func initTelemetry(ctx context.Context, cfg *config.Config) func() {
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint == "" {
		slog.Debug("OTel export available but not enabled (set telemetry.enabled + telemetry.endpoint)")
		return func() {}
	}

	exp, err := otelexport.New(ctx, otelexport.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		Protocol:    cfg.Telemetry.Protocol,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     Version,
		Headers:     cfg.Telemetry.Headers,
	}, slog.Default())
	if err != nil {
		slog.Warn("failed to create OTel exporter", "error", err)
		return func() {}
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := exp.Shutdown(shutdownCtx); err != nil {
			slog.Warn("otel shutdown failed", "error", err)
		}
	}
}
