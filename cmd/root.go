package cmd

import (
	"fmt"
	"os"

	"github.com/iksnae/claw-dash/internal"
	"github.com/spf13/cobra"
)

var (
	verbose     bool
	configPath  string
	gatewayURL  string
	gatewayTok  string
	storagePath string
	stateURL    string
	version     string = "dev"
	commit      string = "unknown"
	date        string = "unknown"
)

// cfg is the effective configuration after flags are applied
var cfg *internal.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "claw-dash",
	Short: "Terminal dashboard for an OpenClaw gateway",
	Long: `A terminal dashboard for the agents behind an OpenClaw gateway.

It polls the gateway for sessions, rolls them up per agent, keeps chat
history in a local store mirrored to the dashboard server, and remembers
how you like your agents laid out.

Quick Start:
  claw-dash agents                       # Per-agent activity
  claw-dash sessions --agent elon        # Sessions for one agent
  claw-dash chat show agent:main:main    # Stored chat history
  claw-dash watch                        # Live dashboard

The gateway is found from --gateway, the config file, or the local
OpenClaw install (~/.openclaw/openclaw.json), in that order.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadEffectiveConfig(cmd)
		if err != nil {
			return err
		}
		cfg = loaded

		level, _ := internal.ParseLogLevel(cfg.Log.Level)
		internal.SetLogLevel(level)
		if verbose {
			internal.SetVerbose(true)
		}
		return nil
	},
}

// loadEffectiveConfig reads the config file and layers flags and gateway
// discovery on top of it
func loadEffectiveConfig(cmd *cobra.Command) (*internal.Config, error) {
	loaded, err := internal.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	switch {
	case flags.Changed("gateway"):
		loaded.Gateway.URL = gatewayURL
	case loaded.Gateway.URL == internal.DefaultGatewayURL && loaded.Gateway.Token == "":
		discovery, found, err := internal.DetectGateway(internal.GatewayConfigPaths())
		if err != nil {
			internal.LogWarn("Failed to read OpenClaw config: %v", err)
		} else if found {
			internal.LogDebug("Using gateway from %s", discovery.ConfigPath)
			loaded.Gateway.URL = discovery.URL
			loaded.Gateway.Token = discovery.Token
		}
	}
	if flags.Changed("token") {
		loaded.Gateway.Token = gatewayTok
	}
	if flags.Changed("storage") {
		loaded.Storage.Path = storagePath
	}
	if flags.Changed("state-url") {
		loaded.State.URL = stateURL
	}

	if err := loaded.Validate(); err != nil {
		return nil, err
	}
	return loaded, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		internal.PrintError(os.Stderr, fmt.Sprintf("Error: %v", err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/claw-dash/config.toml)")
	rootCmd.PersistentFlags().StringVar(&gatewayURL, "gateway", "", "Gateway WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&gatewayTok, "token", "", "Gateway auth token")
	rootCmd.PersistentFlags().StringVar(&storagePath, "storage", "", "Local store database file")
	rootCmd.PersistentFlags().StringVar(&stateURL, "state-url", "", "Dashboard server URL for remote chat state")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
