// Package cmd implements the pagelens command line.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pagelens/internal/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pagelens",
		Short:         "Indexed DOM snapshots and stable element identities for browser automation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogger(verbose)
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default $PAGELENS_CONFIG or ~/.pagelens/config.json)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(serveCmd())
	root.AddCommand(snapshotCmd())
	root.AddCommand(resolveCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(mcpCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())
	root.AddCommand(versionCmd())
	return root
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// setupLogger installs a stderr text handler as the default logger.
// Stdout stays clean for command output and the MCP stdio transport.
func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("PAGELENS_CONFIG"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".pagelens", "config.json")
}

func loadConfig() (*config.Config, error) {
	return config.Load(resolveConfigPath())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("pagelens", Version)
		},
	}
}
