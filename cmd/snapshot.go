package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pagelens/pkg/browser"
)

type snapshotFlags struct {
	asJSON     bool
	structure  bool
	compounds  bool
	compact    bool
	maxText    int
	maxChars   int
	selectors  bool
	screenshot string
}

func snapshotCmd() *cobra.Command {
	var f snapshotFlags
	cmd := &cobra.Command{
		Use:   "snapshot <url>",
		Short: "Load a page and print its indexed snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(cmd, args[0], f)
		},
	}
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print the full result as JSON")
	cmd.Flags().BoolVar(&f.structure, "structure", false, "include non-interactive container lines")
	cmd.Flags().BoolVar(&f.compounds, "compounds", false, "annotate compound controls")
	cmd.Flags().BoolVar(&f.compact, "compact", false, "drop structure lines with nothing indexed below")
	cmd.Flags().IntVar(&f.maxText, "max-text", -1, "max text length per line (default from config)")
	cmd.Flags().IntVar(&f.maxChars, "max-chars", -1, "truncate the tree (0 disables, default from config)")
	cmd.Flags().BoolVar(&f.selectors, "selectors", false, "print the selector and identity maps after the tree")
	cmd.Flags().StringVar(&f.screenshot, "screenshot", "", "also save a PNG screenshot to this path")
	return cmd
}

func runSnapshot(cmd *cobra.Command, url string, f snapshotFlags) error {
	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt)
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

	tab, err := mgr.OpenTab(ctx, url)
	if err != nil {
		return err
	}

	opts := snapshotDefaults(cfg)()
	opts.Extract.IncludeStructure = opts.Extract.IncludeStructure || f.structure
	opts.Extract.IncludeCompounds = opts.Extract.IncludeCompounds || f.compounds
	opts.Compact = opts.Compact || f.compact
	if f.maxText >= 0 {
		opts.Extract.MaxTextLength = f.maxText
	}
	if f.maxChars >= 0 {
		opts.MaxChars = f.maxChars
	}

	res, err := mgr.Snapshot(ctx, tab.TargetID, opts)
	if err != nil {
		return err
	}

	if f.screenshot != "" {
		png, err := mgr.Screenshot(ctx, tab.TargetID, false)
		if err != nil {
			return err
		}
		if err := os.WriteFile(f.screenshot, png, 0o644); err != nil {
			return fmt.Errorf("write screenshot: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	if f.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printSnapshot(out, res, f.selectors)
	return nil
}

func printSnapshot(out io.Writer, res *browser.SnapshotResult, withMaps bool) {
	fmt.Fprintf(out, "# %s (%s)\n", res.Title, res.URL)
	fmt.Fprintf(out, "# %d indexed, %d resolved, %d lines", res.Stats.Entries, res.Stats.Identities, res.Stats.Lines)
	if res.Stats.Tokens > 0 {
		fmt.Fprintf(out, ", %d tokens", res.Stats.Tokens)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, res.Tree)
	if !withMaps {
		return
	}
	fmt.Fprintln(out)
	for _, i := range res.Selectors.Indices() {
		h, ok := res.Identities[i]
		handle := "-"
		if ok {
			handle = fmt.Sprint(h)
		}
		fmt.Fprintf(out, "[%d]\t%s\t%s\n", i, handle, res.Selectors[i])
	}
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
