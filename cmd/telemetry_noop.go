//go:build !otel

package cmd

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/pagelens/internal/config"
)

// initTelemetry is a no-op when built without the "otel" tag.
// Build with `go build -tags otel` to enable OpenTelemetry export.
func initTelemetry(_ context.Context, cfg *config.Config) func() {
	if cfg.Telemetry.Enabled {
		slog.Warn("telemetry is enabled in config but this binary was built without -tags otel")
	}
	return func() {}
}
