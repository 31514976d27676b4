package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/iksnae/claw-dash/internal"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

var (
	sessionsFormat     string
	sessionsAgent      string
	sessionsClearCache bool
)

// sessionRow is a session attributed to its agent
type sessionRow struct {
	internal.Session `yaml:",inline"`
	AgentID          string `json:"agentId" yaml:"agent_id"`
}

// sessionsCmd represents the sessions command
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List gateway sessions",
	Long: `List every session the gateway reports, most recently active first.

Use --agent to narrow the list to one agent; aliases such as exec or cto
are accepted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		defer a.Close()

		cache := internal.NewSnapshotCache(cfg.Storage.SnapshotDir)
		if sessionsClearCache {
			if err := cache.ClearCache(); err != nil {
				internal.LogWarn("Failed to clear cache: %v", err)
			} else {
				internal.LogInfo("Cache cleared")
			}
		}

		ctx := cmd.Context()
		_ = a.connect(ctx)
		if a.store == nil {
			a.store = internal.NewSessionStore(nil)
		}
		cache.Seed(a.store, cfg.Gateway.URL)

		err := internal.ShowProgress(ctx, "Refreshing sessions", func() error {
			return a.store.Refresh(ctx)
		})
		if err != nil {
			if a.store.FetchedAt().IsZero() {
				return err
			}
			internal.PrintWarning(cmd.ErrOrStderr(), fmt.Sprintf("Gateway unavailable, showing sessions cached %s", a.store.FetchedAt().Format(time.RFC3339)))
		} else if saveErr := cache.Save(cfg.Gateway.URL, a.store.Snapshot(), a.store.FetchedAt()); saveErr != nil {
			internal.LogDebug("Failed to save snapshot cache: %v", saveErr)
		}

		agent := ""
		if sessionsAgent != "" {
			agent = a.identity.Resolve(sessionsAgent)
		}
		rows := sessionRows(a.identity, a.store.Snapshot(), agent)
		return renderSessions(cmd.OutOrStdout(), sessionsFormat, rows, time.Now())
	},
}

// sessionRows attributes sessions to agents, keeps those of agent (all when
// empty) and orders them most recent first
func sessionRows(id *internal.Identity, sessions []internal.Session, agent string) []sessionRow {
	rows := make([]sessionRow, 0, len(sessions))
	for _, s := range sessions {
		owner := id.AgentFromKey(s.Key)
		if agent != "" && owner != agent {
			continue
		}
		rows = append(rows, sessionRow{Session: s, AgentID: owner})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].UpdatedAt > rows[j].UpdatedAt
	})
	return rows
}

func renderSessions(w io.Writer, format string, rows []sessionRow, now time.Time) error {
	switch format {
	case "json", "yaml":
		return writeStructured(w, format, rows)
	case "", "table":
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json, yaml)", format)
	}

	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, headerStyle.Render("No sessions found"))
		return nil
	}

	_, _ = fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Found %d session(s)", len(rows))))
	_, _ = fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, titleStyle.Render("Key")+"\t"+titleStyle.Render("Agent")+"\t"+titleStyle.Render("Name")+"\t"+titleStyle.Render("Updated")+"\t"+titleStyle.Render("Tokens")+"\t")
	_, _ = fmt.Fprintln(tw, strings.Repeat("─", 100))

	for _, r := range rows {
		name := runewidth.Truncate(r.Label(), 40, "...")
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n",
			idStyle.Render(r.Key),
			r.AgentID,
			name,
			dateStyle.Render(formatAge(r.UpdatedAt, now)),
			countStyle.Render(formatTokens(r.Total())),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, idStyle.Render("Tip: view stored history with `claw-dash chat show "+rows[0].Key+"`"))
	return nil
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.Flags().StringVarP(&sessionsFormat, "format", "f", "table", "Output format (table, json, yaml)")
	sessionsCmd.Flags().StringVar(&sessionsAgent, "agent", "", "Only sessions of this agent (aliases accepted)")
	sessionsCmd.Flags().BoolVar(&sessionsClearCache, "clear-cache", false, "Clear the snapshot cache before running")
}
