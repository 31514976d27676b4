package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/iksnae/claw-dash/internal"
)

func newTestWatchModel(t *testing.T) watchModel {
	t.Helper()
	storage := testEnv(t)
	cfg = internal.DefaultConfig()
	cfg.Gateway.URL = unreachableGateway
	cfg.Storage.Path = storage
	cfg.Storage.SnapshotDir = t.TempDir()

	gate := internal.NewPollGate(internal.WithInitialPage(pageAgents))
	dash := internal.NewDashboard(internal.DashboardOptions{
		Store: internal.NewSessionStore(nil),
		Gate:  gate,
	})
	t.Cleanup(dash.Close)
	return newWatchModel(dash, internal.DefaultIdentity(), &atomic.Int64{})
}

func update(t *testing.T, m watchModel, msg tea.Msg) (watchModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	wm, ok := next.(watchModel)
	if !ok {
		t.Fatalf("Update() returned %T", next)
	}
	return wm, cmd
}

func TestWatchModel_FocusDrivesVisibility(t *testing.T) {
	m := newTestWatchModel(t)

	m, _ = update(t, m, tea.BlurMsg{})
	if m.gate.Visible() {
		t.Error("gate should be hidden after blur")
	}

	m, cmd := update(t, m, tea.FocusMsg{})
	if !m.gate.Visible() {
		t.Error("gate should be visible after focus")
	}
	if cmd == nil {
		t.Error("focus should trigger an immediate refresh")
	}
}

func TestWatchModel_TabsSetActivePage(t *testing.T) {
	m := newTestWatchModel(t)

	tests := []struct {
		name string
		key  tea.KeyMsg
		want string
	}{
		{"tab", tea.KeyMsg{Type: tea.KeyTab}, pageSessions},
		{"tab again", tea.KeyMsg{Type: tea.KeyTab}, pageStatus},
		{"wraps", tea.KeyMsg{Type: tea.KeyTab}, pageAgents},
		{"number", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("3")}, pageStatus},
		{"back", tea.KeyMsg{Type: tea.KeyShiftTab}, pageSessions},
	}
	for _, tt := range tests {
		m, _ = update(t, m, tt.key)
		if got := m.gate.ActivePage(); got != tt.want {
			t.Errorf("%s: ActivePage() = %q, want %q", tt.name, got, tt.want)
		}
		if got := watchPages[m.page]; got != tt.want {
			t.Errorf("%s: page = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestWatchModel_Keys(t *testing.T) {
	m := newTestWatchModel(t)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("h")})
	if !m.showHidden {
		t.Error("h should toggle hidden agents on")
	}

	if _, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")}); cmd == nil {
		t.Error("r should return a refresh command")
	}

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should return tea.Quit")
	}
}

func TestWatchModel_RefreshCommandRecordsError(t *testing.T) {
	m := newTestWatchModel(t)

	msg := m.Init()()
	if _, ok := msg.(dashboardUpdatedMsg); !ok {
		t.Fatalf("Init command returned %T", msg)
	}
	if m.dash.LastError() == nil {
		t.Error("refresh without a gateway should record an error")
	}
	if !strings.Contains(m.View(), "Gateway unavailable") {
		t.Error("view should show the gateway warning")
	}
}

func TestWatchModel_ConfigReloaded(t *testing.T) {
	m := newTestWatchModel(t)
	defer internal.SetLogLevel(internal.LogLevelWarn)

	next := internal.DefaultConfig()
	next.Gateway.URL = "ws://elsewhere:1"
	m, _ = update(t, m, configReloadedMsg{cfg: next})
	if !strings.Contains(m.notice, "restart") {
		t.Errorf("notice = %q, want restart hint", m.notice)
	}

	same := internal.DefaultConfig()
	same.Gateway.URL = unreachableGateway
	m, _ = update(t, m, configReloadedMsg{cfg: same})
	if m.notice != "Config reloaded" {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestWatchModel_View(t *testing.T) {
	m := newTestWatchModel(t)
	fixed := time.Now()
	m.now = func() time.Time { return fixed }

	view := m.View()
	for _, want := range []string{"1 agents", "2 sessions", "3 status", "main", "q quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("agents view missing %q:\n%s", want, view)
		}
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("3")})
	view = m.View()
	for _, want := range []string{"Gateway", "Polling", "focused", "Widgets", "Store usage"} {
		if !strings.Contains(view, want) {
			t.Errorf("status view missing %q:\n%s", want, view)
		}
	}
}

func TestProgramSender_DropsWithoutProgram(t *testing.T) {
	var s programSender
	s.Send(clockMsg{})
}

func TestRedirectLogs(t *testing.T) {
	var stderr bytes.Buffer
	internal.SetLogOutput(&stderr)
	internal.SetLogLevel(internal.LogLevelInfo)
	t.Cleanup(func() { internal.SetLogOutput(os.Stderr) })

	path := filepath.Join(t.TempDir(), "cache", watchLogName)
	restore, err := redirectLogs(path)
	if err != nil {
		t.Fatalf("redirectLogs() error = %v", err)
	}
	internal.LogWarn("session refresh failed while watching")
	restore()
	internal.LogWarn("back on stderr")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	logged := string(data)
	if !strings.Contains(logged, "session refresh failed while watching") || !strings.Contains(logged, "claw-dash") {
		t.Errorf("log file = %q", logged)
	}
	if strings.Contains(logged, "back on stderr") {
		t.Error("log file received lines after restore")
	}
	if strings.Contains(stderr.String(), "while watching") {
		t.Error("stderr received lines while redirected")
	}
	if !strings.Contains(stderr.String(), "back on stderr") {
		t.Errorf("stderr = %q, want lines after restore", stderr.String())
	}
	if p := internal.Logger().Prefix(); p != "" {
		t.Errorf("prefix after restore = %q, want empty", p)
	}
}

func TestWatchModel_ViewShowsLogPath(t *testing.T) {
	m := newTestWatchModel(t)
	m.logPath = "/tmp/claw-dash/watch.log"
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("3")})
	if !strings.Contains(m.View(), "/tmp/claw-dash/watch.log") {
		t.Error("status page should show the log file")
	}
}
