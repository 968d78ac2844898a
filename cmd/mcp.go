package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pagelens/internal/mcp"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the browser tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			mgr, cleanup, err := startBrowser(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			srv := mcp.NewServer(mgr,
				mcp.WithLogger(slog.Default()),
				mcp.WithSnapshotDefaults(snapshotDefaults(cfg)),
				mcp.WithVersion(Version),
			)
			if err := srv.ServeStdio(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
