package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/claw-dash/internal"
	"github.com/spf13/cobra"
)

const (
	pageAgents   = "agents"
	pageSessions = "sessions"
	pageStatus   = "status"

	statusPollInterval = 15 * time.Second
	clockInterval      = time.Second

	watchLogName = "watch.log"
)

var watchPages = []string{pageAgents, pageSessions, pageStatus}

var (
	tabStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Foreground(lipgloss.Color("243"))

	activeTabStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Underline(true)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

type watchKeyMap struct {
	Next    key.Binding
	Prev    key.Binding
	Jump    key.Binding
	Hidden  key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

var watchKeys = watchKeyMap{
	Next:    key.NewBinding(key.WithKeys("tab", "right", "l"), key.WithHelp("tab", "next")),
	Prev:    key.NewBinding(key.WithKeys("shift+tab", "left"), key.WithHelp("shift+tab", "prev")),
	Jump:    key.NewBinding(key.WithKeys("1", "2", "3"), key.WithHelp("1-3", "jump")),
	Hidden:  key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "toggle hidden")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Jump, k.Refresh, k.Hidden, k.Quit}
}

func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Next, k.Prev, k.Jump}, {k.Refresh, k.Hidden, k.Quit}}
}

type (
	dashboardUpdatedMsg struct{}
	clockMsg            struct{}
	configReloadedMsg   struct{ cfg *internal.Config }
)

// programSender forwards messages to the running program. Messages sent
// before the program exists are dropped.
type programSender struct {
	mu sync.Mutex
	p  *tea.Program
}

func (s *programSender) set(p *tea.Program) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

func (s *programSender) Send(msg tea.Msg) {
	s.mu.Lock()
	p := s.p
	s.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// watchModel is the live dashboard. Terminal focus drives the poll gate's
// visibility and the selected tab is its active page.
type watchModel struct {
	dash       *internal.Dashboard
	gate       *internal.PollGate
	identity   *internal.Identity
	storeUsage *atomic.Int64
	gatewayURL string
	logPath    string
	help       help.Model

	page       int
	showHidden bool
	width      int
	notice     string
	now        func() time.Time
}

func newWatchModel(dash *internal.Dashboard, identity *internal.Identity, usage *atomic.Int64) watchModel {
	return watchModel{
		dash:       dash,
		gate:       dash.Gate(),
		identity:   identity,
		storeUsage: usage,
		gatewayURL: cfg.Gateway.URL,
		help:       help.New(),
		now:        time.Now,
	}
}

func (m watchModel) Init() tea.Cmd {
	return m.refreshNow()
}

// refreshNow runs one session refresh outside the gate's schedule
func (m watchModel) refreshNow() tea.Cmd {
	dash := m.dash
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.RequestTimeout.Duration)
		defer cancel()
		_ = dash.RefreshSessions(ctx)
		return dashboardUpdatedMsg{}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.FocusMsg:
		m.gate.SetVisible(true)
		return m, m.refreshNow()

	case tea.BlurMsg:
		m.gate.SetVisible(false)
		return m, nil

	case dashboardUpdatedMsg, clockMsg:
		return m, nil

	case configReloadedMsg:
		level, _ := internal.ParseLogLevel(msg.cfg.Log.Level)
		internal.SetLogLevel(level)
		m.notice = "Config reloaded"
		if msg.cfg.Gateway.URL != m.gatewayURL {
			m.notice = "Config reloaded; restart to switch gateway to " + msg.cfg.Gateway.URL
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, watchKeys.Quit):
			return m, tea.Quit
		case key.Matches(msg, watchKeys.Next):
			m.setPage((m.page + 1) % len(watchPages))
		case key.Matches(msg, watchKeys.Prev):
			m.setPage((m.page + len(watchPages) - 1) % len(watchPages))
		case key.Matches(msg, watchKeys.Jump):
			m.setPage(int(msg.String()[0] - '1'))
		case key.Matches(msg, watchKeys.Hidden):
			m.showHidden = !m.showHidden
		case key.Matches(msg, watchKeys.Refresh):
			m.notice = ""
			return m, m.refreshNow()
		}
	}
	return m, nil
}

func (m *watchModel) setPage(i int) {
	m.page = i
	m.gate.SetActivePage(watchPages[i])
}

func (m watchModel) View() string {
	var b strings.Builder
	now := m.now()

	tabs := make([]string, len(watchPages))
	for i, p := range watchPages {
		label := fmt.Sprintf("%d %s", i+1, p)
		if i == m.page {
			tabs[i] = activeTabStyle.Render(label)
		} else {
			tabs[i] = tabStyle.Render(label)
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
	b.WriteString("\n\n")

	if err := m.dash.LastError(); err != nil {
		fetched := m.dash.Store().FetchedAt()
		if fetched.IsZero() {
			b.WriteString(warningStyle.Render("⚠ Gateway unavailable: " + err.Error()))
		} else {
			b.WriteString(warningStyle.Render("⚠ Gateway unavailable, data from " + formatAge(fetched.UnixMilli(), now)))
		}
		b.WriteString("\n\n")
	}

	switch watchPages[m.page] {
	case pageAgents:
		views := m.dash.Agents(now)
		if !m.showHidden {
			views = visibleOnly(views)
		}
		_ = renderAgents(&b, "table", views, now)
	case pageSessions:
		rows := sessionRows(m.identity, m.dash.Store().Snapshot(), "")
		if len(rows) > 30 {
			rows = rows[:30]
		}
		_ = renderSessions(&b, "table", rows, now)
	case pageStatus:
		m.viewStatus(&b, now)
	}

	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(infoStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(footerStyle.Render(m.help.View(watchKeys)))
	return b.String()
}

func (m watchModel) viewStatus(b *strings.Builder, now time.Time) {
	b.WriteString(sectionStyle.Render("Gateway"))
	b.WriteString("\n")
	fmt.Fprintf(b, "  URL:          %s\n", m.gatewayURL)
	if m.logPath != "" {
		fmt.Fprintf(b, "  Log:          %s\n", m.logPath)
	}
	fmt.Fprintf(b, "  Last fetch:   %s\n", formatAge(m.dash.Store().FetchedAt().UnixMilli(), now))
	fmt.Fprintf(b, "  Sessions:     %d\n", len(m.dash.Store().Snapshot()))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Polling"))
	b.WriteString("\n")
	visible := "focused"
	if !m.gate.Visible() {
		visible = "unfocused"
	}
	fmt.Fprintf(b, "  Terminal:     %s\n", visible)
	fmt.Fprintf(b, "  Live timers:  %d\n", m.gate.ActiveTimers())
	for _, name := range m.gate.Names() {
		state, _ := m.gate.State(name)
		fmt.Fprintf(b, "  %-13s %s\n", name+":", state)
	}
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Widgets"))
	b.WriteString("\n")
	statuses := m.dash.WidgetStatuses()
	if len(statuses) == 0 {
		b.WriteString(idStyle.Render("  (not run yet)"))
		b.WriteString("\n")
	}
	for _, s := range statuses {
		mark := successStyle.Render("✓")
		detail := formatAge(s.LastRun.UnixMilli(), now)
		if s.Err != "" {
			mark = errorStyle.Render("✗")
			detail = s.Err
		}
		fmt.Fprintf(b, "  %s %-10s %s\n", mark, s.Name, detail)
	}
	if m.storeUsage != nil {
		fmt.Fprintf(b, "  Store usage:  %s of %s\n", formatBytes(int(m.storeUsage.Load())), formatBytes(int(cfg.Storage.QuotaBytes)))
	}
}

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live terminal dashboard",
	Long: `Open a live dashboard that polls the gateway in the background.

Polling pauses while the terminal is unfocused and resumes with a fresh
refresh when focus returns. The status tab also checks the dashboard
server and the local store while it is open. The config file is watched
and reloaded on change.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		defer a.Close()

		if err := a.openStorage(); err != nil {
			internal.LogWarn("%v; preferences will not be applied", err)
		}
		_ = a.connect(cmd.Context())

		sender := &programSender{}
		gate := internal.NewPollGate(internal.WithInitialPage(pageAgents))
		dash := a.dashboard(gate)
		defer dash.Close()
		dash.OnUpdate(func() { sender.Send(dashboardUpdatedMsg{}) })

		usage := &atomic.Int64{}
		registerStatusWidgets(dash, a, usage)
		gate.Register("clock", clockInterval, func(ctx context.Context) {
			sender.Send(clockMsg{})
		})
		dash.Start()

		path := configPath
		if path == "" {
			path = internal.DefaultConfigPath()
		}
		watcher, err := internal.WatchConfig(path, func(c *internal.Config) {
			sender.Send(configReloadedMsg{cfg: c})
		})
		if err != nil {
			internal.LogDebug("Not watching config: %v", err)
		} else {
			defer func() { _ = watcher.Close() }()
		}

		model := newWatchModel(dash, a.identity, usage)
		logPath := filepath.Join(cfg.Storage.SnapshotDir, watchLogName)
		restoreLogs, err := redirectLogs(logPath)
		if err != nil {
			internal.LogWarn("Failed to open %s, logging to stderr: %v", logPath, err)
		} else {
			defer restoreLogs()
			model.logPath = logPath
		}

		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithReportFocus(), tea.WithContext(cmd.Context()))
		sender.set(p)
		_, err = p.Run()
		sender.set(nil)
		return err
	},
}

// redirectLogs sends log lines to path while the alt screen is up and
// returns a func restoring the previous destination
func redirectLogs(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	logger := internal.Logger()
	prev := logger.Writer()
	prefix := logger.Prefix()
	f, err := tea.LogToFileWith(path, "claw-dash", logger)
	if err != nil {
		return nil, err
	}
	return func() {
		internal.SetLogOutput(prev)
		logger.SetPrefix(prefix)
		_ = f.Close()
	}, nil
}

// registerStatusWidgets adds the checks shown on the status tab
func registerStatusWidgets(dash *internal.Dashboard, a *app, usage *atomic.Int64) {
	if cfg.State.URL != "" {
		state := internal.NewStateClient(cfg.State.URL, cfg.Gateway.RequestTimeout.Duration)
		dash.AddWidget("state", statusPollInterval, state.Ping, pageStatus)
	}
	if a.kv != nil {
		kv := a.kv
		dash.AddWidget("storage", statusPollInterval, func(ctx context.Context) error {
			used, err := kv.Usage()
			if err != nil {
				return err
			}
			usage.Store(used)
			return nil
		}, pageStatus)
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
