package internal

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
)

const (
	// DefaultGatewayURL is the gateway's local WebSocket endpoint
	DefaultGatewayURL = "ws://127.0.0.1:18789"
	// DefaultPollInterval drives the session refresh loop
	DefaultPollInterval = 30 * time.Second
	// configReloadDelay debounces editor save bursts
	configReloadDelay = 500 * time.Millisecond
)

// Duration is a time.Duration written as a string ("30s") in TOML
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText writes the duration back as a string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the claw-dash configuration file
type Config struct {
	Gateway GatewayConfig `toml:"gateway"`
	State   StateConfig   `toml:"state"`
	Storage StorageConfig `toml:"storage"`
	Chat    ChatConfig    `toml:"chat"`
	Agents  AgentsConfig  `toml:"agents"`
	Log     LogConfig     `toml:"log"`
}

// GatewayConfig locates the gateway and bounds its calls
type GatewayConfig struct {
	URL            string   `toml:"url"`
	Token          string   `toml:"token"`
	RequestTimeout Duration `toml:"request_timeout"`
	PollInterval   Duration `toml:"poll_interval"`
}

// StateConfig locates the dashboard server holding remote chat state.
// An empty URL disables remote fallback and sync.
type StateConfig struct {
	URL string `toml:"url"`
}

// StorageConfig locates local storage
type StorageConfig struct {
	Path        string `toml:"path"`
	QuotaBytes  int64  `toml:"quota_bytes"`
	SnapshotDir string `toml:"snapshot_dir"`
}

// ChatConfig holds chat defaults
type ChatConfig struct {
	DefaultSession string `toml:"default_session"`
}

// AgentsConfig extends the built-in roster and alias table
type AgentsConfig struct {
	Roster  []string          `toml:"roster"`
	Aliases map[string]string `toml:"aliases"`
}

// LogConfig sets the log level
type LogConfig struct {
	Level string `toml:"level"`
}

// DefaultConfigPath returns the config file location
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "claw-dash", "config.toml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "claw-dash", "config.toml")
}

// DefaultStoragePath returns the local store location
func DefaultStoragePath() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "claw-dash", "store.db")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "claw-dash", "store.db")
}

// DefaultSnapshotDir returns where session snapshots are cached
func DefaultSnapshotDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "claw-dash")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "claw-dash")
}

// DefaultConfig returns a config with every default applied
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			URL:            DefaultGatewayURL,
			RequestTimeout: Duration{DefaultRequestTimeout},
			PollInterval:   Duration{DefaultPollInterval},
		},
		Storage: StorageConfig{
			Path:        DefaultStoragePath(),
			QuotaBytes:  DefaultQuotaBytes,
			SnapshotDir: DefaultSnapshotDir(),
		},
		Chat: ChatConfig{DefaultSession: DefaultSessionKey},
		Log:  LogConfig{Level: "warn"},
	}
}

// LoadConfig reads path over the defaults. A missing file yields the
// defaults; an empty path means DefaultConfigPath.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		LogDebug("no config at %s, using defaults", path)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults refills fields the file set to zero values
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Gateway.URL == "" {
		c.Gateway.URL = def.Gateway.URL
	}
	if c.Gateway.RequestTimeout.Duration <= 0 {
		c.Gateway.RequestTimeout = def.Gateway.RequestTimeout
	}
	if c.Gateway.PollInterval.Duration <= 0 {
		c.Gateway.PollInterval = def.Gateway.PollInterval
	}
	if c.Storage.Path == "" {
		c.Storage.Path = def.Storage.Path
	}
	if c.Storage.SnapshotDir == "" {
		c.Storage.SnapshotDir = def.Storage.SnapshotDir
	}
	if c.Chat.DefaultSession == "" {
		c.Chat.DefaultSession = def.Chat.DefaultSession
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// Validate checks values that would otherwise fail later and less clearly
func (c *Config) Validate() error {
	u, err := url.Parse(c.Gateway.URL)
	if err != nil {
		return fmt.Errorf("gateway.url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("gateway.url: scheme must be ws or wss, got %q", u.Scheme)
	}
	if c.State.URL != "" {
		su, err := url.Parse(c.State.URL)
		if err != nil || (su.Scheme != "http" && su.Scheme != "https") {
			return fmt.Errorf("state.url: must be an http(s) URL, got %q", c.State.URL)
		}
	}
	if c.Storage.QuotaBytes < 0 {
		return fmt.Errorf("storage.quota_bytes: must not be negative")
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Identity builds the resolver for the configured roster and aliases
func (c *Config) Identity() *Identity {
	return NewIdentity(c.Agents.Aliases, c.Agents.Roster)
}

// Write encodes the config as TOML
func (c *Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// ConfigWatcher reloads a config file when it changes on disk
type ConfigWatcher struct {
	path      string
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	done      chan struct{}
}

// WatchConfig calls onChange with the freshly loaded config after each
// burst of writes to path. The parent directory is watched so editors that
// save by rename are seen. A reload that fails to parse is logged and
// skipped.
func WatchConfig(path string, onChange func(*Config)) (*ConfigWatcher, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	w := &ConfigWatcher{
		path:      abs,
		fsWatcher: fsWatcher,
		debouncer: NewDebouncer(configReloadDelay),
		done:      make(chan struct{}),
	}
	go w.run(onChange)
	return w, nil
}

func (w *ConfigWatcher) run(onChange func(*Config)) {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			w.debouncer.Trigger(func() {
				cfg, err := LoadConfig(w.path)
				if err != nil {
					LogWarn("config reload failed: %v", err)
					return
				}
				LogInfo("reloaded config from %s", w.path)
				onChange(cfg)
			})
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			LogWarn("config watch error: %v", err)
		}
	}
}

// Close stops watching and drops any pending reload
func (w *ConfigWatcher) Close() error {
	w.debouncer.Cancel()
	err := w.fsWatcher.Close()
	<-w.done
	return err
}
