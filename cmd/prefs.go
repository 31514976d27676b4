package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iksnae/claw-dash/internal"
	"github.com/spf13/cobra"
)

var (
	prefsFormat    string
	inactiveOn     bool
	inactiveOff    bool
	inactiveWindow time.Duration
)

// prefsView is what `prefs show` prints
type prefsView struct {
	Order        []string `json:"order" yaml:"order"`
	Hidden       []string `json:"hidden" yaml:"hidden"`
	HideInactive bool     `json:"hideInactive" yaml:"hide_inactive"`
	Threshold    string   `json:"inactivityThreshold" yaml:"inactivity_threshold"`
}

// prefsCmd groups the agent layout commands
var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Manage agent order and visibility",
	Long: `Agent ids are resolved before they are stored, so exec, cto and coo
are saved as elon, orion and atlas. The main agent is never hidden for
inactivity, only explicitly.`,
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show saved agent preferences",
	Args:  cobra.NoArgs,
	RunE: withPrefs(func(cmd *cobra.Command, args []string, prefs *internal.PreferenceStore) error {
		p := prefs.Prefs()
		view := prefsView{
			Order:        prefs.Order(),
			Hidden:       prefs.Hidden(),
			HideInactive: p.HideInactive,
			Threshold:    p.Threshold().String(),
		}
		return renderPrefs(cmd.OutOrStdout(), prefsFormat, view)
	}),
}

var prefsOrderCmd = &cobra.Command{
	Use:   "order [agent...]",
	Short: "Set the agent display order",
	Long: `Listed agents are shown first, in the given order; the rest follow by
activity. With no agents the saved order is cleared.`,
	RunE: withPrefs(func(cmd *cobra.Command, args []string, prefs *internal.PreferenceStore) error {
		if err := prefs.SetOrder(args); err != nil {
			return err
		}
		if len(args) == 0 {
			internal.PrintSuccess(cmd.ErrOrStderr(), "Agent order cleared")
			return nil
		}
		internal.PrintSuccess(cmd.ErrOrStderr(), "Agent order: "+strings.Join(prefs.Order(), ", "))
		return nil
	}),
}

var prefsHideCmd = &cobra.Command{
	Use:   "hide <agent>...",
	Short: "Hide agents from the dashboard",
	Args:  cobra.MinimumNArgs(1),
	RunE: withPrefs(func(cmd *cobra.Command, args []string, prefs *internal.PreferenceStore) error {
		for _, id := range args {
			if err := prefs.Hide(id); err != nil {
				return err
			}
		}
		internal.PrintSuccess(cmd.ErrOrStderr(), "Hidden: "+strings.Join(prefs.Hidden(), ", "))
		return nil
	}),
}

var prefsUnhideCmd = &cobra.Command{
	Use:   "unhide <agent>...",
	Short: "Show previously hidden agents again",
	Args:  cobra.MinimumNArgs(1),
	RunE: withPrefs(func(cmd *cobra.Command, args []string, prefs *internal.PreferenceStore) error {
		for _, id := range args {
			if err := prefs.Unhide(id); err != nil {
				return err
			}
		}
		internal.PrintSuccess(cmd.ErrOrStderr(), "Unhidden: "+strings.Join(args, ", "))
		return nil
	}),
}

var prefsInactiveCmd = &cobra.Command{
	Use:   "inactive",
	Short: "Configure hiding of inactive agents",
	Long: `Turn hiding of inactive agents on or off and set how long an agent may
be idle before it counts as inactive.

  claw-dash prefs inactive --on --threshold 48h`,
	Args: cobra.NoArgs,
	RunE: withPrefs(func(cmd *cobra.Command, args []string, prefs *internal.PreferenceStore) error {
		if inactiveOn && inactiveOff {
			return fmt.Errorf("--on and --off are mutually exclusive")
		}
		p := prefs.Prefs()
		switch {
		case inactiveOn:
			p.HideInactive = true
		case inactiveOff:
			p.HideInactive = false
		}
		if cmd.Flags().Changed("threshold") {
			if inactiveWindow <= 0 {
				return fmt.Errorf("threshold must be positive, got %s", inactiveWindow)
			}
			p.InactivityMs = inactiveWindow.Milliseconds()
		}
		if err := prefs.SetPrefs(p); err != nil {
			return err
		}

		state := "off"
		if p.HideInactive {
			state = "on"
		}
		internal.PrintSuccess(cmd.ErrOrStderr(), fmt.Sprintf("Hide inactive agents: %s (threshold %s)", state, p.Threshold()))
		return nil
	}),
}

// withPrefs opens the preference store around fn
func withPrefs(fn func(cmd *cobra.Command, args []string, prefs *internal.PreferenceStore) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a := newApp()
		defer a.Close()
		if err := a.openStorage(); err != nil {
			return err
		}
		return fn(cmd, args, a.prefs)
	}
}

func renderPrefs(w io.Writer, format string, view prefsView) error {
	switch format {
	case "json", "yaml":
		return writeStructured(w, format, view)
	case "", "table":
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json, yaml)", format)
	}

	list := func(ids []string) string {
		if len(ids) == 0 {
			return idStyle.Render("(none)")
		}
		return strings.Join(ids, ", ")
	}
	inactive := "off"
	if view.HideInactive {
		inactive = "on"
	}

	_, _ = fmt.Fprintln(w, sectionStyle.Render("Agent preferences"))
	_, _ = fmt.Fprintf(w, "%s %s\n", titleStyle.Render("Order:        "), list(view.Order))
	_, _ = fmt.Fprintf(w, "%s %s\n", titleStyle.Render("Hidden:       "), list(view.Hidden))
	_, _ = fmt.Fprintf(w, "%s %s (after %s)\n", titleStyle.Render("Hide inactive:"), inactive, view.Threshold)
	return nil
}

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsShowCmd, prefsOrderCmd, prefsHideCmd, prefsUnhideCmd, prefsInactiveCmd)

	prefsShowCmd.Flags().StringVarP(&prefsFormat, "format", "f", "table", "Output format (table, json, yaml)")
	prefsInactiveCmd.Flags().BoolVar(&inactiveOn, "on", false, "Hide agents idle beyond the threshold")
	prefsInactiveCmd.Flags().BoolVar(&inactiveOff, "off", false, "Show inactive agents")
	prefsInactiveCmd.Flags().DurationVar(&inactiveWindow, "threshold", internal.DefaultInactivityThreshold, "Idle time after which an agent is inactive")
}
