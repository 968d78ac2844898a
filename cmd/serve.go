package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/pagelens/internal/config"
	"github.com/nextlevelbuilder/pagelens/internal/gateway"
	"github.com/nextlevelbuilder/pagelens/internal/store"
	"github.com/nextlevelbuilder/pagelens/pkg/browser"
)

func serveCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "reload extraction settings when the config file changes")
	return cmd
}

func runServe(parent context.Context, watch bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	shutdownTelemetry := initTelemetry(ctx, cfg)
	defer shutdownTelemetry()

	mgr, cleanup, err := startBrowser(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := gateway.NewServer(cfg, mgr,
		gateway.WithLogger(slog.Default()),
		gateway.WithConfigPath(cfgPath),
	)

	// No goroutine may start before this point: an early return runs
	// cleanup, which stops the browser.
	watcher, err := newConfigWatcher(cfgPath, watch, srv.ApplyConfig)
	if err != nil {
		return err
	}

	slog.Info("pagelens gateway started",
		"version", Version,
		"addr", cfg.Gateway.Host,
		"port", cfg.Gateway.Port,
		"store", cfg.Store.Backend,
	)
	return serveTasks(ctx, srv.Run, watcher, mgr.Records())
}

// newConfigWatcher returns nil when hot reload is off or there is no file
// to watch.
func newConfigWatcher(cfgPath string, watch bool, onChange config.ChangeHandler) (*config.Watcher, error) {
	if !watch {
		return nil, nil
	}
	if !fileExists(cfgPath) {
		slog.Info("config file absent, hot reload disabled", "path", cfgPath)
		return nil, nil
	}
	w, err := config.NewWatcher(cfgPath, slog.Default())
	if err != nil {
		return nil, err
	}
	w.OnChange(onChange)
	return w, nil
}

// serveTasks runs the gateway, the record pruner and the optional watcher
// until ctx is done or one of them fails, and waits for all of them.
func serveTasks(ctx context.Context, run func(context.Context) error, watcher *config.Watcher, records browser.RecordStore) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return run(gctx) })
	g.Go(func() error {
		return store.RunPruner(gctx, records, store.DefaultPruneInterval, slog.Default())
	})
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	return g.Wait()
}
