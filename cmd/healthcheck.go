package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/iksnae/claw-dash/internal"
	"github.com/spf13/cobra"
)

var (
	healthcheckVerbose bool
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that the gateway, dashboard server and local store are reachable",
	Long: `Check the health of claw-dash by verifying:
  • Gateway connection and sessions.list
  • Dashboard server state endpoint (when configured)
  • Local store access and quota usage

Exits non-zero when the gateway or the local store is unusable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		ctx := cmd.Context()
		failed := 0

		_, _ = fmt.Fprintln(w, sectionStyle.Render("🔍 claw-dash Health Check"))
		_, _ = fmt.Fprintln(w)

		a := newApp()
		defer a.Close()

		_, _ = fmt.Fprintln(w, infoStyle.Render("Step 1: Connecting to gateway..."))
		if healthcheckVerbose {
			_, _ = fmt.Fprintf(w, "   URL: %s\n", cfg.Gateway.URL)
			_, _ = fmt.Fprintf(w, "   Token: %s\n", maskToken(cfg.Gateway.Token))
		}
		if err := a.connect(ctx); err != nil {
			_, _ = fmt.Fprintln(w, errorStyle.Render("❌ Gateway unreachable:"), err)
			failed++
		} else {
			_, _ = fmt.Fprintln(w, successStyle.Render("✅ Gateway connected"))
			if err := a.store.Refresh(ctx); err != nil {
				_, _ = fmt.Fprintln(w, errorStyle.Render("❌ sessions.list failed:"), err)
				failed++
			} else {
				_, _ = fmt.Fprintln(w, successStyle.Render(fmt.Sprintf("✅ %d session(s) reported", len(a.store.Snapshot()))))
			}
		}
		_, _ = fmt.Fprintln(w)

		_, _ = fmt.Fprintln(w, infoStyle.Render("Step 2: Checking dashboard server..."))
		checkState(ctx, w)
		_, _ = fmt.Fprintln(w)

		_, _ = fmt.Fprintln(w, infoStyle.Render("Step 3: Checking local store..."))
		if healthcheckVerbose {
			_, _ = fmt.Fprintf(w, "   Path: %s\n", cfg.Storage.Path)
		}
		if err := a.openStorage(); err != nil {
			_, _ = fmt.Fprintln(w, errorStyle.Render("❌ Local store unusable:"), err)
			failed++
		} else {
			used, err := a.kv.Usage()
			if err != nil {
				_, _ = fmt.Fprintln(w, errorStyle.Render("❌ Failed to read store usage:"), err)
				failed++
			} else {
				_, _ = fmt.Fprintln(w, successStyle.Render("✅ Local store readable"))
				_, _ = fmt.Fprintf(w, "   Usage: %s of %s\n", formatBytes(int(used)), formatBytes(int(cfg.Storage.QuotaBytes)))
				if cfg.Storage.QuotaBytes > 0 && used*10 >= cfg.Storage.QuotaBytes*9 {
					_, _ = fmt.Fprintln(w, warningStyle.Render("⚠️  Local store is above 90% of its quota"))
				}
			}
		}
		_, _ = fmt.Fprintln(w)

		if failed > 0 {
			return fmt.Errorf("%d check(s) failed", failed)
		}
		_, _ = fmt.Fprintln(w, successStyle.Render("✅ All checks passed"))
		return nil
	},
}

// checkState pings the dashboard server. Problems are warnings: chat history
// still works locally without it.
func checkState(ctx context.Context, w io.Writer) {
	if cfg.State.URL == "" {
		_, _ = fmt.Fprintln(w, warningStyle.Render("⚠️  No dashboard server configured, chat history stays local"))
		return
	}
	if healthcheckVerbose {
		_, _ = fmt.Fprintf(w, "   URL: %s\n", cfg.State.URL)
	}
	client := internal.NewStateClient(cfg.State.URL, cfg.Gateway.RequestTimeout.Duration)
	if err := client.Ping(ctx); err != nil {
		_, _ = fmt.Fprintln(w, warningStyle.Render("⚠️  Dashboard server unreachable:"), err)
		return
	}
	_, _ = fmt.Fprintln(w, successStyle.Render("✅ Dashboard server reachable"))
}

func maskToken(token string) string {
	switch {
	case token == "":
		return "(none)"
	case len(token) <= 8:
		return "****"
	default:
		return token[:4] + "…" + token[len(token)-4:]
	}
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVarP(&healthcheckVerbose, "verbose", "v", false, "Show detailed information")
}
