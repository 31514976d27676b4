package internal

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// SessionsPoll is the gate registration name of the session refresh loop
const SessionsPoll = "sessions"

// Widget is one periodically refreshed panel. An error only affects the
// widget that returned it.
type Widget func(ctx context.Context) error

// WidgetStatus is the outcome of a widget's most recent run
type WidgetStatus struct {
	Name    string    `json:"name" yaml:"name"`
	LastRun time.Time `json:"lastRun" yaml:"last_run"`
	Err     string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// DashboardOptions wires a Dashboard. Only Store is required.
type DashboardOptions struct {
	Identity     *Identity
	Store        *SessionStore
	Gate         *PollGate
	Prefs        *PreferenceStore
	Cache        *SnapshotCache
	GatewayURL   string
	PollInterval time.Duration
}

// Dashboard ties the session store, aggregation, poll gate and preferences
// together. Summaries are recomputed in full after every successful refresh
// and are never patched in place.
type Dashboard struct {
	identity     *Identity
	store        *SessionStore
	gate         *PollGate
	prefs        *PreferenceStore
	cache        *SnapshotCache
	gatewayURL   string
	pollInterval time.Duration

	mu        sync.RWMutex
	summaries map[string]AgentSummary
	lastErr   error
	widgets   map[string]WidgetStatus
	onUpdate  func()
}

// NewDashboard creates a Dashboard. Missing collaborators get defaults: the
// built-in identity and a fresh visible gate.
func NewDashboard(opts DashboardOptions) *Dashboard {
	if opts.Identity == nil {
		opts.Identity = DefaultIdentity()
	}
	if opts.Gate == nil {
		opts.Gate = NewPollGate()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	d := &Dashboard{
		identity:     opts.Identity,
		store:        opts.Store,
		gate:         opts.Gate,
		prefs:        opts.Prefs,
		cache:        opts.Cache,
		gatewayURL:   opts.GatewayURL,
		pollInterval: opts.PollInterval,
		widgets:      make(map[string]WidgetStatus),
	}
	if d.cache != nil && d.cache.Seed(d.store, d.gatewayURL) {
		d.recompute()
	}
	if d.summaries == nil {
		d.summaries = Aggregate(d.identity, nil)
	}
	return d
}

// Gate returns the poll gate the dashboard registers with
func (d *Dashboard) Gate() *PollGate {
	return d.gate
}

// Store returns the session store
func (d *Dashboard) Store() *SessionStore {
	return d.store
}

// OnUpdate sets a callback run after summaries change or a widget finishes
func (d *Dashboard) OnUpdate(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onUpdate = fn
}

// Start registers the session refresh loop with the gate
func (d *Dashboard) Start() {
	d.gate.Register(SessionsPoll, d.pollInterval, func(ctx context.Context) {
		_ = d.RefreshSessions(ctx)
	})
}

// Close stops all polling
func (d *Dashboard) Close() {
	d.gate.Close()
}

// RefreshSessions refreshes the store and, on success, recomputes every
// summary and saves the snapshot cache. On failure the previous summaries
// stay in place and the error is recorded for display.
func (d *Dashboard) RefreshSessions(ctx context.Context) error {
	err := d.store.Refresh(ctx)

	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()

	if err != nil {
		if IsGatewayUnavailable(err) {
			LogDebug("session refresh skipped: %v", err)
		} else {
			LogWarn("session refresh failed: %v", err)
		}
		d.notify()
		return err
	}

	d.recompute()
	if d.cache != nil {
		if err := d.cache.Save(d.gatewayURL, d.store.Snapshot(), d.store.FetchedAt()); err != nil {
			LogDebug("failed to save snapshot cache: %v", err)
		}
	}
	d.notify()
	return nil
}

func (d *Dashboard) recompute() {
	summaries := Aggregate(d.identity, d.store.Snapshot())
	d.mu.Lock()
	d.summaries = summaries
	d.mu.Unlock()
}

// LastError is the outcome of the most recent session refresh
func (d *Dashboard) LastError() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastErr
}

// Summaries returns a copy of the current per-agent summaries
func (d *Dashboard) Summaries() map[string]AgentSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]AgentSummary, len(d.summaries))
	for k, v := range d.summaries {
		out[k] = v
	}
	return out
}

// Agents returns every agent, most recently active first with the saved
// order applied, classified at now and flagged when hidden.
func (d *Dashboard) Agents(now time.Time) []AgentView {
	list := SortByActivity(d.Summaries())

	rules := visibilityRules{}
	if d.prefs != nil {
		list = d.prefs.ApplyOrder(list)
		rules = d.prefs.visibility()
	}

	views := Views(list, now)
	for i := range views {
		views[i].Hidden = rules.hidden(views[i].AgentID, views[i].LastActivity, now)
	}
	return views
}

// VisibleAgents is Agents without the hidden ones
func (d *Dashboard) VisibleAgents(now time.Time) []AgentView {
	all := d.Agents(now)
	out := make([]AgentView, 0, len(all))
	for _, v := range all {
		if !v.Hidden {
			out = append(out, v)
		}
	}
	return out
}

// AddWidget registers a periodic widget with the gate. Failures and panics
// are contained to the widget and recorded in its status.
func (d *Dashboard) AddWidget(name string, interval time.Duration, w Widget, pages ...string) {
	d.gate.Register(name, interval, func(ctx context.Context) {
		d.RunWidget(ctx, name, w)
	}, pages...)
}

// RunWidget runs w once with fault isolation
func (d *Dashboard) RunWidget(ctx context.Context, name string, w Widget) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return w(ctx)
	}()

	status := WidgetStatus{Name: name, LastRun: time.Now()}
	if err != nil {
		LogWarn("widget %s failed: %v", name, err)
		status.Err = err.Error()
	}

	d.mu.Lock()
	d.widgets[name] = status
	d.mu.Unlock()
	d.notify()
}

// WidgetStatuses lists the last outcome of each widget that has run
func (d *Dashboard) WidgetStatuses() []WidgetStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]WidgetStatus, 0, len(d.widgets))
	for _, s := range d.widgets {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *Dashboard) notify() {
	d.mu.RLock()
	fn := d.onUpdate
	d.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
