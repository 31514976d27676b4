package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// GatewayCall records one request seen by FakeGateway
type GatewayCall struct {
	Method  string
	Params  any
	Timeout time.Duration
}

// GatewayHandler answers a request. n is the zero-based index of the call.
type GatewayHandler func(ctx context.Context, n int, method string, params any) (json.RawMessage, error)

// FakeGateway is an in-process stand-in for the gateway RPC client
type FakeGateway struct {
	mu        sync.Mutex
	connected bool
	handler   GatewayHandler
	calls     []GatewayCall
}

// NewFakeGateway returns a connected fake that answers every call with {}
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		connected: true,
		handler: func(context.Context, int, string, any) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		},
	}
}

// SetConnected flips the value IsConnected reports
func (f *FakeGateway) SetConnected(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = connected
}

// Handle replaces the request handler
func (f *FakeGateway) Handle(h GatewayHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

// RespondWith makes every call return payload verbatim
func (f *FakeGateway) RespondWith(payload string) {
	f.Handle(func(context.Context, int, string, any) (json.RawMessage, error) {
		return json.RawMessage(payload), nil
	})
}

// FailWith makes every call fail with err
func (f *FakeGateway) FailWith(err error) {
	if err == nil {
		err = errors.New("fake gateway failure")
	}
	f.Handle(func(context.Context, int, string, any) (json.RawMessage, error) {
		return nil, err
	})
}

// Request implements the gateway client contract
func (f *FakeGateway) Request(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, GatewayCall{Method: method, Params: params, Timeout: timeout})
	h := f.handler
	f.mu.Unlock()
	return h(ctx, n, method, params)
}

// IsConnected implements the gateway client contract
func (f *FakeGateway) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Calls returns a copy of every recorded request
func (f *FakeGateway) Calls() []GatewayCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]GatewayCall, len(f.calls))
	copy(out, f.calls)
	return out
}
