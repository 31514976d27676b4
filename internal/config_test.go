package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iksnae/claw-dash/testutil"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(testutil.CreateTempDir(t), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Gateway.URL != DefaultGatewayURL {
		t.Errorf("Gateway.URL = %q", cfg.Gateway.URL)
	}
	if cfg.Gateway.RequestTimeout.Duration != 30*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.Gateway.RequestTimeout)
	}
	if cfg.Storage.QuotaBytes != DefaultQuotaBytes {
		t.Errorf("QuotaBytes = %d", cfg.Storage.QuotaBytes)
	}
	if cfg.Chat.DefaultSession != DefaultSessionKey {
		t.Errorf("DefaultSession = %q", cfg.Chat.DefaultSession)
	}
	if cfg.State.URL != "" {
		t.Errorf("State.URL = %q, want remote sync off by default", cfg.State.URL)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, testutil.CreateTempDir(t), `
[gateway]
url = "wss://gw.example.com/ws"
token = "secret"
poll_interval = "10s"

[state]
url = "http://127.0.0.1:3000"

[storage]
quota_bytes = 1024

[chat]
default_session = "agent:atlas:main"

[agents]
roster = ["zed"]
aliases = { ops = "atlas" }

[log]
level = "debug"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Gateway.URL != "wss://gw.example.com/ws" || cfg.Gateway.Token != "secret" {
		t.Errorf("Gateway = %+v", cfg.Gateway)
	}
	if cfg.Gateway.PollInterval.Duration != 10*time.Second {
		t.Errorf("PollInterval = %v", cfg.Gateway.PollInterval)
	}
	if cfg.Gateway.RequestTimeout.Duration != DefaultRequestTimeout {
		t.Errorf("unset RequestTimeout = %v, want default", cfg.Gateway.RequestTimeout)
	}
	if cfg.Storage.QuotaBytes != 1024 || cfg.Storage.Path == "" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Chat.DefaultSession != "agent:atlas:main" {
		t.Errorf("DefaultSession = %q", cfg.Chat.DefaultSession)
	}

	id := cfg.Identity()
	if id.Resolve("ops") != "atlas" || id.Resolve("exec") != "elon" {
		t.Error("configured aliases not merged with built-ins")
	}
	if !id.InRoster("zed") || !id.InRoster("main") {
		t.Errorf("Roster() = %v", id.Roster())
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"bad toml", `[gateway`, "parsing config"},
		{"bad duration", "[gateway]\nrequest_timeout = \"soon\"", "invalid duration"},
		{"http gateway", "[gateway]\nurl = \"http://localhost\"", "gateway.url"},
		{"ws state url", "[state]\nurl = \"ws://localhost\"", "state.url"},
		{"negative quota", "[storage]\nquota_bytes = -1", "quota_bytes"},
		{"bad level", "[log]\nlevel = \"loud\"", "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, testutil.CreateTempDir(t), tt.body)
			_, err := LoadConfig(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadConfig() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_WriteRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gateway.Token = "t"

	var buf bytes.Buffer
	if err := cfg.Write(&buf); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !strings.Contains(buf.String(), `request_timeout = "30s"`) {
		t.Errorf("durations should be written as strings:\n%s", buf.String())
	}

	path := writeConfig(t, testutil.CreateTempDir(t), buf.String())
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.Gateway.Token != "t" || loaded.Gateway.PollInterval != cfg.Gateway.PollInterval {
		t.Errorf("round trip = %+v", loaded.Gateway)
	}
}

func TestWatchConfig_Reloads(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	path := writeConfig(t, dir, "[log]\nlevel = \"warn\"\n")

	var reloads atomic.Int32
	var lastToken atomic.Value
	w, err := WatchConfig(path, func(cfg *Config) {
		reloads.Add(1)
		lastToken.Store(cfg.Gateway.Token)
	})
	if err != nil {
		t.Fatalf("WatchConfig() error = %v", err)
	}
	defer w.Close()

	// a burst of saves collapses into one reload
	for i := 0; i < 3; i++ {
		writeConfig(t, dir, "[gateway]\ntoken = \"v2\"\n")
		time.Sleep(20 * time.Millisecond)
	}
	// unrelated files in the directory are ignored
	_ = os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644)

	testutil.WaitFor(t, 3*time.Second, func() bool { return reloads.Load() > 0 })
	time.Sleep(configReloadDelay + 100*time.Millisecond)
	if reloads.Load() != 1 {
		t.Errorf("reloads = %d, want 1", reloads.Load())
	}
	if lastToken.Load() != "v2" {
		t.Errorf("reloaded token = %v", lastToken.Load())
	}
}
