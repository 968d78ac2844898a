package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pagelens/internal/config"
	"github.com/nextlevelbuilder/pagelens/internal/store"
	"github.com/nextlevelbuilder/pagelens/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(cmd.OutOrStdout())
		},
	}
}

func runDoctor(out io.Writer) {
	fmt.Fprintln(out, "pagelens doctor")
	fmt.Fprintf(out, "  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Fprintf(out, "  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(out, "  Go:       %s\n", runtime.Version())
	fmt.Fprintln(out)

	cfgPath := resolveConfigPath()
	fmt.Fprintf(out, "  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Fprintln(out, " (NOT FOUND, using defaults)")
	} else {
		fmt.Fprintln(out, " (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(out, "  Config load error: %s\n", err)
		return
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Browser:")
	if cfg.Browser.RemoteURL != "" {
		fmt.Fprintf(out, "    %-12s %s\n", "Remote:", cfg.Browser.RemoteURL)
	} else if path, ok := launcher.LookPath(); ok {
		fmt.Fprintf(out, "    %-12s %s\n", "Chrome:", path)
	} else {
		fmt.Fprintf(out, "    %-12s NOT FOUND (rod will download one on first start)\n", "Chrome:")
	}
	fmt.Fprintf(out, "    %-12s %t\n", "Headless:", cfg.Browser.Headless)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Extraction:")
	f := cfg.Extract.Filters
	fmt.Fprintf(out, "    %-12s containment %.2f, occlusion %.2f\n", "Thresholds:", f.ContainmentThreshold, f.OcclusionThreshold)
	fmt.Fprintf(out, "    %-12s %d\n", "Detectors:", len(f.Detectors))

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Identity store:")
	checkStore(out, cfg)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Gateway:")
	checkGateway(out, cfg)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Doctor check complete.")
}

func checkStore(out io.Writer, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := store.Open(ctx, cfg.Store, quietLogger())
	if err != nil {
		fmt.Fprintf(out, "    %-12s %s (%s)\n", cfg.Store.Backend+":", "FAILED", err)
		return
	}
	st.Close()
	fmt.Fprintf(out, "    %-12s OK\n", cfg.Store.Backend+":")
}

func checkGateway(out io.Writer, cfg *config.Config) {
	host := cfg.Gateway.Host
	if host == "0.0.0.0" || host == "" {
		host = "127.0.0.1"
	}
	url := "http://" + host + ":" + strconv.Itoa(cfg.Gateway.Port) + "/health"
	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(out, "    %-12s not running (%s)\n", "Status:", url)
		return
	}
	defer resp.Body.Close()
	var body struct {
		Status   string `json:"status"`
		Protocol int    `json:"protocol"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		fmt.Fprintf(out, "    %-12s unexpected response: %s\n", "Status:", err)
		return
	}
	fmt.Fprintf(out, "    %-12s %s (protocol %d)\n", "Status:", body.Status, body.Protocol)
}
