package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// unreachableGateway refuses connections immediately
const unreachableGateway = "ws://127.0.0.1:1"

// testEnv points every default location at a temp dir and returns the
// storage path commands should use
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("OPENCLAW_CONFIG_PATH", filepath.Join(dir, "missing.json"))
	t.Setenv("OPENCLAW_GATEWAY_TOKEN", "")
	return filepath.Join(dir, "store.db")
}

// resetFlags restores every flag to its default so runs do not leak state
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCLI executes the root command against storage with an unreachable
// gateway and returns what it printed
func runCLI(t *testing.T, storage string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)

	full := append([]string{
		"--config", filepath.Join(filepath.Dir(storage), "config.toml"),
		"--gateway", unreachableGateway,
		"--storage", storage,
	}, args...)
	rootCmd.SetArgs(full)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}
