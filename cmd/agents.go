package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/iksnae/claw-dash/internal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	agentsFormat string
	agentsAll    bool
	agentsOnly   string
)

// agentsCmd represents the agents command
var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Show per-agent activity",
	Long: `Refresh sessions from the gateway and show one row per agent with its
session count, last activity and token totals.

Agents you have hidden, or that are inactive while hide-inactive is on, are
left out unless --all is given. When the gateway is unreachable the last
cached snapshot is shown instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		defer a.Close()

		if err := a.openStorage(); err != nil {
			internal.LogWarn("%v; preferences will not be applied", err)
		}
		ctx := cmd.Context()
		_ = a.connect(ctx)

		dash := a.dashboard(nil)
		defer dash.Close()

		err := internal.ShowProgress(ctx, "Refreshing sessions", func() error {
			return dash.RefreshSessions(ctx)
		})
		if err != nil {
			fetched := dash.Store().FetchedAt()
			if fetched.IsZero() {
				internal.PrintWarning(cmd.ErrOrStderr(), fmt.Sprintf("Gateway unavailable, no cached sessions: %v", err))
			} else {
				internal.PrintWarning(cmd.ErrOrStderr(), fmt.Sprintf("Gateway unavailable, showing sessions cached %s", fetched.Format(time.RFC3339)))
			}
		}

		now := time.Now()
		views := dash.Agents(now)
		if !agentsAll {
			views = visibleOnly(views)
		}
		if agentsOnly != "" {
			if !a.identity.InRoster(agentsOnly) {
				return fmt.Errorf("unknown agent %q (roster: %s)", agentsOnly, strings.Join(a.identity.Roster(), ", "))
			}
			views = filterAgent(views, a.identity.Resolve(agentsOnly))
		}
		return renderAgents(cmd.OutOrStdout(), agentsFormat, views, now)
	},
}

func visibleOnly(views []internal.AgentView) []internal.AgentView {
	out := make([]internal.AgentView, 0, len(views))
	for _, v := range views {
		if !v.Hidden {
			out = append(out, v)
		}
	}
	return out
}

func filterAgent(views []internal.AgentView, agentID string) []internal.AgentView {
	for _, v := range views {
		if v.AgentID == agentID {
			return []internal.AgentView{v}
		}
	}
	return nil
}

// renderAgents writes views as a table, JSON or YAML
func renderAgents(w io.Writer, format string, views []internal.AgentView, now time.Time) error {
	switch format {
	case "json", "yaml":
		return writeStructured(w, format, views)
	case "", "table":
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json, yaml)", format)
	}

	if len(views) == 0 {
		_, _ = fmt.Fprintln(w, headerStyle.Render("No agents to show"))
		return nil
	}

	_, _ = fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d agent(s)", len(views))))
	_, _ = fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, titleStyle.Render("Agent")+"\t"+titleStyle.Render("Status")+"\t"+titleStyle.Render("Sessions")+"\t"+titleStyle.Render("Last active")+"\t"+titleStyle.Render("Tokens")+"\t"+titleStyle.Render("Latest")+"\t")
	_, _ = fmt.Fprintln(tw, strings.Repeat("─", 90))

	for _, v := range views {
		preview := v.LastPreview
		if len(preview) > 40 {
			preview = preview[:37] + "..."
		}
		if preview == "" {
			preview = "—"
		}
		name := v.AgentID
		if v.Hidden {
			name += " (hidden)"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			name,
			activityStyle(v.Activity).Render(v.Label),
			countStyle.Render(strconv.Itoa(v.SessionCount)),
			dateStyle.Render(formatAge(v.LastActivity, now)),
			formatTokens(v.Tokens.Total),
			idStyle.Render(preview),
		)
	}
	return tw.Flush()
}

// formatTokens abbreviates large token counts
func formatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return strconv.FormatInt(n, 10)
	}
}

// writeStructured encodes v as json or yaml
func writeStructured(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer func() { _ = enc.Close() }()
		return enc.Encode(v)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(agentsCmd)
	agentsCmd.Flags().StringVarP(&agentsFormat, "format", "f", "table", "Output format (table, json, yaml)")
	agentsCmd.Flags().BoolVarP(&agentsAll, "all", "a", false, "Include hidden agents")
	agentsCmd.Flags().StringVar(&agentsOnly, "agent", "", "Show a single agent (aliases accepted)")
}
