package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pagelens/pkg/browser"
	"github.com/nextlevelbuilder/pagelens/pkg/identity"
)

func resolveCmd() *cobra.Command {
	var byIndex bool
	cmd := &cobra.Command{
		Use:   "resolve <url> <handle>",
		Short: "Synthesize a selector for an element handle on a freshly loaded page",
		Long: `Loads the page, takes a snapshot so element handles are assigned, then
synthesizes a selector for the given handle and checks that it is still known.
With --index the second argument is a snapshot index instead of a handle.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, args[0], args[1], byIndex)
		},
	}
	cmd.Flags().BoolVar(&byIndex, "index", false, "treat the second argument as a snapshot index")
	return cmd
}

func runResolve(cmd *cobra.Command, url, ref string, byIndex bool) error {
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
	res, err := mgr.Snapshot(ctx, tab.TargetID, snapshotDefaults(cfg)())
	if err != nil {
		return err
	}

	var h identity.Handle
	if byIndex {
		index, err := browser.ParseIndex(ref)
		if err != nil {
			return err
		}
		h, err = mgr.Lookup(ctx, tab.TargetID, index)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "index:    [%d] %s\n", index, res.Selectors[index])
	} else {
		n, err := strconv.ParseInt(ref, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid handle %q: %w", ref, err)
		}
		h = identity.Handle(n)
	}

	r, err := mgr.Resolver(tab.TargetID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "handle:   %d\n", h)
	fmt.Fprintf(out, "valid:    %t\n", r.IsIdentityValid(ctx, h))
	sel, err := r.SelectorFromIdentity(ctx, h)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "selector: %s\n", sel)
	return nil
}
