package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/pagelens/internal/config"
	"github.com/nextlevelbuilder/pagelens/internal/store"
	"github.com/nextlevelbuilder/pagelens/pkg/browser"
)

// newManager builds a browser manager from cfg. The caller owns st.
func newManager(cfg *config.Config, st browser.RecordStore) *browser.Manager {
	opts := []browser.Option{
		browser.WithHeadless(cfg.Browser.Headless),
		browser.WithRemoteURL(cfg.Browser.RemoteURL),
		browser.WithExtraFlags(cfg.Browser.ExtraFlags),
		browser.WithExtractConfig(cfg.ExtractSettings().Filters),
		browser.WithTokenCounting(cfg.Browser.TokenEncoding),
		browser.WithLogger(slog.Default()),
	}
	if st != nil {
		opts = append(opts, browser.WithIdentityStore(st))
	}
	return browser.New(opts...)
}

// startBrowser opens the identity store and starts Chrome. The returned
// cleanup stops both.
func startBrowser(ctx context.Context, cfg *config.Config) (*browser.Manager, func(), error) {
	st, err := store.Open(ctx, cfg.Store, slog.Default())
	if err != nil {
		return nil, nil, fmt.Errorf("open identity store: %w", err)
	}
	mgr := newManager(cfg, st)
	if err := mgr.Start(ctx); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("start browser: %w", err)
	}
	cleanup := func() {
		if err := mgr.Stop(context.Background()); err != nil {
			slog.Warn("stop browser failed", "error", err)
		}
		if err := st.Close(); err != nil {
			slog.Warn("close identity store failed", "error", err)
		}
	}
	return mgr, cleanup, nil
}

// snapshotDefaults returns a function reading snapshot options from the
// live config.
func snapshotDefaults(cfg *config.Config) func() browser.SnapshotOptions {
	return func() browser.SnapshotOptions {
		ex := cfg.ExtractSettings()
		return browser.SnapshotOptions{
			Extract:  ex.Options,
			Compact:  ex.Compact,
			MaxChars: ex.MaxChars,
		}
	}
}
