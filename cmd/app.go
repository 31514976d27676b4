package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/iksnae/claw-dash/internal"
)

// app holds the collaborators a command needs. Fields are nil when the
// command did not ask for them or they could not be reached.
type app struct {
	identity *internal.Identity
	kv       *internal.SQLiteKV
	gateway  *internal.ReconnectingGateway
	state    *internal.StateClient
	store    *internal.SessionStore
	prefs    *internal.PreferenceStore
	bridge   *internal.PersistenceBridge
}

// openStorage opens the local store and the preference store on top of it
func (a *app) openStorage() error {
	kv, err := internal.OpenSQLiteKV(cfg.Storage.Path, cfg.Storage.QuotaBytes)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	a.kv = kv
	a.prefs = internal.NewPreferenceStore(kv, a.identity)
	return nil
}

// connect dials the gateway. Failure is not fatal: the store keeps the
// client and re-dials on a later refresh.
func (a *app) connect(ctx context.Context) error {
	a.gateway = internal.NewReconnectingGateway(internal.WSGatewayOptions{
		URL:            cfg.Gateway.URL,
		Token:          cfg.Gateway.Token,
		RequestTimeout: cfg.Gateway.RequestTimeout.Duration,
		ClientVersion:  version,
	})
	a.store = internal.NewSessionStore(a.gateway)

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Gateway.RequestTimeout.Duration)
	defer cancel()
	if err := a.gateway.Reconnect(dialCtx); err != nil {
		internal.LogWarn("Gateway unavailable: %v", err)
		return err
	}
	return nil
}

// openBridge wires chat persistence over local storage and, when
// configured, the dashboard server
func (a *app) openBridge() {
	var remote internal.RemoteChatStore
	if cfg.State.URL != "" {
		a.state = internal.NewStateClient(cfg.State.URL, cfg.Gateway.RequestTimeout.Duration)
		remote = a.state
	}
	var local internal.KVStore
	if a.kv != nil {
		local = a.kv
	}
	a.bridge = internal.NewPersistenceBridge(local, remote, a.store,
		internal.WithDefaultSession(cfg.Chat.DefaultSession),
		internal.WithSyncTimeout(cfg.Gateway.RequestTimeout.Duration),
	)
}

// dashboard builds a Dashboard over whatever collaborators are open
func (a *app) dashboard(gate *internal.PollGate) *internal.Dashboard {
	if a.store == nil {
		a.store = internal.NewSessionStore(nil)
	}
	return internal.NewDashboard(internal.DashboardOptions{
		Identity:     a.identity,
		Store:        a.store,
		Gate:         gate,
		Prefs:        a.prefs,
		Cache:        internal.NewSnapshotCache(cfg.Storage.SnapshotDir),
		GatewayURL:   cfg.Gateway.URL,
		PollInterval: cfg.Gateway.PollInterval.Duration,
	})
}

func (a *app) Close() {
	if a.bridge != nil {
		a.bridge.Flush()
		a.bridge.Close()
	}
	if a.gateway != nil {
		_ = a.gateway.Close()
	}
	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			internal.LogDebug("Failed to close local store: %v", err)
		}
	}
}

func newApp() *app {
	return &app{identity: cfg.Identity()}
}

// formatAge renders a ms timestamp relative to now
func formatAge(ms int64, now time.Time) string {
	if ms <= 0 {
		return "—"
	}
	t := time.UnixMilli(ms)
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}
