package internal

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid triggers into one delayed callback. Each
// Trigger replaces the pending callback and restarts the quiet window.
type Debouncer struct {
	duration time.Duration
	timer    *time.Timer
	pending  func()
	mu       sync.Mutex
}

// NewDebouncer creates a Debouncer with the given quiet window
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{duration: duration}
}

// Trigger schedules callback to run once the window passes without another Trigger
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = callback
	var timer *time.Timer
	timer = time.AfterFunc(d.duration, func() {
		d.mu.Lock()
		if d.timer != timer {
			d.mu.Unlock()
			return
		}
		cb := d.pending
		d.pending = nil
		d.timer = nil
		d.mu.Unlock()
		if cb != nil {
			cb()
		}
	})
	d.timer = timer
}

// Flush runs the pending callback now, if any, on the caller's goroutine
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	cb := d.pending
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.mu.Unlock()

	if cb == nil {
		return false
	}
	cb()
	return true
}

// Cancel drops any pending callback
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
}

// Pending reports whether a callback is waiting to fire
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}
