package internal

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MinGatedInterval is the shortest interval paused while the view is hidden.
// Faster timers (animation ticks and the like) keep running.
const MinGatedInterval = 3 * time.Second

// PollState is the lifecycle state of a registered periodic operation
type PollState int

const (
	PollActive PollState = iota
	PollPaused
)

func (s PollState) String() string {
	if s == PollPaused {
		return "paused"
	}
	return "active"
}

// TickerFactory creates a ticker firing every d, returning its channel and a
// stop function.
type TickerFactory func(d time.Duration) (<-chan time.Time, func())

func newRealTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

type pollTimer struct {
	stop func()
	done chan struct{}
}

type pollRegistration struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
	pages    map[string]struct{}
	state    PollState
	timer    *pollTimer
	running  atomic.Bool
}

func (r *pollRegistration) gated() bool {
	return r.interval >= MinGatedInterval
}

// PollGate supervises every periodic refresh. Hiding the view pauses gated
// registrations; showing it restarts them with fresh timers. Page-restricted
// registrations skip their callback unless the view is visible and on one of
// their pages.
type PollGate struct {
	mu        sync.Mutex
	regs      map[string]*pollRegistration
	visible   bool
	page      string
	newTicker TickerFactory
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// PollGateOption configures a PollGate
type PollGateOption func(*PollGate)

// WithTickerFactory replaces time.NewTicker, mainly for tests
func WithTickerFactory(f TickerFactory) PollGateOption {
	return func(g *PollGate) {
		if f != nil {
			g.newTicker = f
		}
	}
}

// WithInitialPage sets the active page before anything registers
func WithInitialPage(page string) PollGateOption {
	return func(g *PollGate) {
		g.page = page
	}
}

// NewPollGate creates a visible gate with no registrations
func NewPollGate(opts ...PollGateOption) *PollGate {
	ctx, cancel := context.WithCancel(context.Background())
	g := &PollGate{
		regs:      make(map[string]*pollRegistration),
		visible:   true,
		newTicker: newRealTicker,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register adds a periodic operation. Registering a name that is already
// present is a no-op. With no pages the callback runs on any page.
// Registering while hidden leaves a gated operation paused until the view
// becomes visible.
func (g *PollGate) Register(name string, interval time.Duration, fn func(ctx context.Context), pages ...string) {
	if interval <= 0 || fn == nil {
		LogWarn("ignoring poll registration %q with interval %v", name, interval)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	if _, exists := g.regs[name]; exists {
		LogDebug("poll %q already registered", name)
		return
	}

	reg := &pollRegistration{name: name, interval: interval, fn: fn}
	if len(pages) > 0 {
		reg.pages = make(map[string]struct{}, len(pages))
		for _, p := range pages {
			reg.pages[p] = struct{}{}
		}
	}
	g.regs[name] = reg

	if !g.visible && reg.gated() {
		reg.state = PollPaused
		return
	}
	g.startLocked(reg)
}

// Deregister removes an operation. A paused operation removed while hidden
// does not come back when the view becomes visible.
func (g *PollGate) Deregister(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	reg, ok := g.regs[name]
	if !ok {
		return
	}
	g.stopLocked(reg)
	delete(g.regs, name)
}

// SetVisible records view visibility and pauses or restarts gated operations
func (g *PollGate) SetVisible(visible bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed || g.visible == visible {
		return
	}
	g.visible = visible

	for _, reg := range g.regs {
		switch {
		case !visible && reg.state == PollActive && reg.gated():
			g.stopLocked(reg)
			reg.state = PollPaused
		case visible && reg.state == PollPaused:
			g.startLocked(reg)
			reg.state = PollActive
		}
	}
	if visible {
		LogDebug("view visible, polling resumed")
	} else {
		LogDebug("view hidden, polling paused")
	}
}

// Visible reports the current visibility
func (g *PollGate) Visible() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.visible
}

// SetActivePage records which view is showing
func (g *PollGate) SetActivePage(page string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.page = page
}

// ActivePage returns the page last set
func (g *PollGate) ActivePage() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.page
}

// State returns the state of a registered operation
func (g *PollGate) State(name string) (PollState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	reg, ok := g.regs[name]
	if !ok {
		return PollActive, false
	}
	return reg.state, true
}

// ActiveTimers counts running timers across all registrations
func (g *PollGate) ActiveTimers() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, reg := range g.regs {
		if reg.timer != nil {
			n++
		}
	}
	return n
}

// Names lists registered operations in name order
func (g *PollGate) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.regs))
	for name := range g.regs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close stops every timer, cancels the context handed to callbacks and waits
// for running callbacks to return.
func (g *PollGate) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	for _, reg := range g.regs {
		g.stopLocked(reg)
	}
	g.mu.Unlock()

	g.cancel()
	g.wg.Wait()
}

func (g *PollGate) startLocked(reg *pollRegistration) {
	if reg.timer != nil {
		return
	}
	ticks, stop := g.newTicker(reg.interval)
	timer := &pollTimer{stop: stop, done: make(chan struct{})}
	reg.timer = timer

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		for {
			select {
			case <-g.ctx.Done():
				return
			case <-timer.done:
				return
			case <-ticks:
				g.invoke(reg, timer)
			}
		}
	}()
}

func (g *PollGate) stopLocked(reg *pollRegistration) {
	if reg.timer == nil {
		return
	}
	reg.timer.stop()
	close(reg.timer.done)
	reg.timer = nil
}

// invoke runs one tick's callback if timer is still the registration's
// live timer, the page gate allows it and the previous invocation of the
// same operation has finished.
func (g *PollGate) invoke(reg *pollRegistration, timer *pollTimer) {
	if !g.allowed(reg, timer) {
		return
	}
	if !reg.running.CompareAndSwap(false, true) {
		LogDebug("poll %q still running, skipping tick", reg.name)
		return
	}
	defer reg.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			LogError("poll %q panicked: %v", reg.name, r)
		}
	}()
	reg.fn(g.ctx)
}

func (g *PollGate) allowed(reg *pollRegistration, timer *pollTimer) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	// a tick buffered before Stop can still be received after a pause
	if reg.timer != timer {
		return false
	}
	if reg.pages == nil {
		return true
	}
	if !g.visible {
		return false
	}
	_, ok := reg.pages[g.page]
	return ok
}
