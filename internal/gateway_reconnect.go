package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Redial backoff starts at initialRedialBackoff and doubles on each failed
// attempt, capped at maxRedialBackoff. A successful dial resets it.
const (
	initialRedialBackoff = 1 * time.Second
	maxRedialBackoff     = 30 * time.Second
)

var errGatewayClosed = errors.New("gateway client closed")

// ReconnectingGateway wraps a WSGateway that is re-dialed on demand after
// the socket drops or the first dial fails.
type ReconnectingGateway struct {
	opts WSGatewayOptions
	dial func(context.Context, WSGatewayOptions) (*WSGateway, error)
	now  func() time.Time

	mu       sync.Mutex
	gw       *WSGateway
	backoff  time.Duration
	nextDial time.Time
	closed   bool
}

// NewReconnectingGateway returns a client that is not yet connected; call
// Reconnect to dial.
func NewReconnectingGateway(opts WSGatewayOptions) *ReconnectingGateway {
	return &ReconnectingGateway{
		opts: opts,
		dial: DialGateway,
		now:  time.Now,
	}
}

func (r *ReconnectingGateway) current() *WSGateway {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gw
}

// IsConnected reports whether the current socket is up
func (r *ReconnectingGateway) IsConnected() bool {
	gw := r.current()
	return gw != nil && gw.IsConnected()
}

// Request forwards to the current connection. It never dials.
func (r *ReconnectingGateway) Request(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	gw := r.current()
	if gw == nil {
		return nil, &GatewayUnavailableError{URL: r.opts.URL, Err: ErrNotConnected}
	}
	return gw.Request(ctx, method, params, timeout)
}

// Reconnect dials the gateway unless the connection is already up. Attempts
// inside the backoff window of an earlier failure fail without dialing.
func (r *ReconnectingGateway) Reconnect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return &GatewayUnavailableError{URL: r.opts.URL, Err: errGatewayClosed}
	}
	if r.gw != nil && r.gw.IsConnected() {
		return nil
	}
	now := r.now()
	if now.Before(r.nextDial) {
		wait := r.nextDial.Sub(now).Round(time.Second)
		return &GatewayUnavailableError{URL: r.opts.URL, Err: fmt.Errorf("next reconnect attempt in %s", wait)}
	}

	if r.gw != nil {
		_ = r.gw.Close()
		r.gw = nil
	}

	gw, err := r.dial(ctx, r.opts)
	if err != nil {
		if r.backoff == 0 {
			r.backoff = initialRedialBackoff
		} else {
			r.backoff *= 2
			if r.backoff > maxRedialBackoff {
				r.backoff = maxRedialBackoff
			}
		}
		r.nextDial = r.now().Add(r.backoff)
		LogDebug("gateway dial failed, retrying in %s: %v", r.backoff, err)
		return err
	}

	if !r.nextDial.IsZero() {
		LogInfo("reconnected to gateway %s", r.opts.URL)
	}
	r.gw = gw
	r.backoff = 0
	r.nextDial = time.Time{}
	return nil
}

// Close shuts the current connection; later Reconnect calls fail
func (r *ReconnectingGateway) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.gw == nil {
		return nil
	}
	err := r.gw.Close()
	r.gw = nil
	return err
}
