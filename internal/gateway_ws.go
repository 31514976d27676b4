package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const (
	DefaultRequestTimeout = 30 * time.Second

	gatewayReadLimit = 8 << 20
)

// WSGatewayOptions configures DialGateway
type WSGatewayOptions struct {
	URL            string
	Token          string
	RequestTimeout time.Duration
	ClientName     string
	ClientVersion  string
}

type rpcErrorBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// rpcFrame is the JSON text frame exchanged with the gateway. Requests carry
// method/params, responses ok/payload/error, events are pushed unsolicited.
type rpcFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *rpcErrorBody   `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
}

// WSGateway is a GatewayClient speaking JSON frames over one WebSocket. Once
// the socket drops it stays down; ReconnectingGateway dials a replacement.
type WSGateway struct {
	opts WSGatewayOptions
	conn *websocket.Conn

	connected atomic.Bool
	writeMu   sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan rpcFrame

	cancel context.CancelFunc
	done   chan struct{}
	err    error // why the read loop stopped; set before done is closed
}

// DialGateway connects to the gateway and, when a token is configured,
// authenticates with a connect request.
func DialGateway(ctx context.Context, opts WSGatewayOptions) (*WSGateway, error) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.ClientName == "" {
		opts.ClientName = "claw-dash"
	}

	conn, _, err := websocket.Dial(ctx, opts.URL, nil)
	if err != nil {
		return nil, &GatewayUnavailableError{URL: opts.URL, Err: err}
	}
	conn.SetReadLimit(gatewayReadLimit)

	loopCtx, cancel := context.WithCancel(context.Background())
	g := &WSGateway{
		opts:    opts,
		conn:    conn,
		pending: make(map[string]chan rpcFrame),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	g.connected.Store(true)
	go g.readLoop(loopCtx)

	if opts.Token != "" {
		params := map[string]any{
			"client": map[string]string{"name": opts.ClientName, "version": opts.ClientVersion},
			"auth":   map[string]string{"token": opts.Token},
		}
		if _, err := g.Request(ctx, MethodConnect, params, 0); err != nil {
			_ = g.Close()
			return nil, &GatewayUnavailableError{URL: opts.URL, Err: err}
		}
	}

	LogDebug("connected to gateway %s", opts.URL)
	return g, nil
}

// IsConnected reports whether the socket is still up
func (g *WSGateway) IsConnected() bool {
	return g.connected.Load()
}

// Request sends method and waits for the matching response frame. Timeouts
// and gateway-reported failures are RequestErrors.
func (g *WSGateway) Request(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if !g.IsConnected() {
		return nil, &GatewayUnavailableError{URL: g.opts.URL, Err: g.err}
	}
	if timeout <= 0 {
		timeout = g.opts.RequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id := uuid.NewString()
	ch := make(chan rpcFrame, 1)
	g.pendingMu.Lock()
	g.pending[id] = ch
	g.pendingMu.Unlock()
	defer func() {
		g.pendingMu.Lock()
		delete(g.pending, id)
		g.pendingMu.Unlock()
	}()

	g.writeMu.Lock()
	err := wsjson.Write(ctx, g.conn, rpcFrame{Type: "req", ID: id, Method: method, Params: params})
	g.writeMu.Unlock()
	if err != nil {
		return nil, &RequestError{Method: method, Message: "send failed", Err: err}
	}

	select {
	case res := <-ch:
		if res.Error != nil {
			return nil, &RequestError{Method: method, Code: res.Error.Code, Message: res.Error.Message}
		}
		if !res.OK {
			return nil, &RequestError{Method: method, Message: "request rejected"}
		}
		return res.Payload, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &RequestError{Method: method, Message: fmt.Sprintf("timed out after %s", timeout), Err: ctx.Err()}
		}
		return nil, &RequestError{Method: method, Message: "cancelled", Err: ctx.Err()}
	case <-g.done:
		return nil, &GatewayUnavailableError{URL: g.opts.URL, Err: g.err}
	}
}

func (g *WSGateway) readLoop(ctx context.Context) {
	var loopErr error
	defer func() {
		g.err = loopErr
		g.connected.Store(false)
		close(g.done)
	}()

	for {
		var frame rpcFrame
		if err := wsjson.Read(ctx, g.conn, &frame); err != nil {
			loopErr = err
			if ctx.Err() == nil {
				LogWarn("gateway connection lost: %v", err)
			}
			return
		}

		switch frame.Type {
		case "res":
			g.pendingMu.Lock()
			ch, ok := g.pending[frame.ID]
			g.pendingMu.Unlock()
			if !ok {
				LogDebug("dropping response for unknown request %s", frame.ID)
				continue
			}
			select {
			case ch <- frame:
			default:
				LogDebug("duplicate response for request %s", frame.ID)
			}
		case "event":
			LogDebug("gateway event %s", frame.Event)
		default:
			LogDebug("ignoring gateway frame of type %q", frame.Type)
		}
	}
}

// Close shuts the socket and fails any request still waiting
func (g *WSGateway) Close() error {
	if err := g.conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		LogDebug("closing gateway connection: %v", err)
	}
	g.cancel()
	<-g.done
	return nil
}
