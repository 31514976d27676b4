package internal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/iksnae/claw-dash/testutil"
)

// fakeGatewayServer answers request frames through respond. A nil reply
// means the server stays silent for that request.
type fakeGatewayServer struct {
	mu      sync.Mutex
	methods []string
	respond func(req rpcFrame) *rpcFrame
}

func (f *fakeGatewayServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()

		// unsolicited event before any response, the client must skip it
		_ = wsjson.Write(r.Context(), conn, rpcFrame{Type: "event", Event: "tick"})

		for {
			var req rpcFrame
			if err := wsjson.Read(r.Context(), conn, &req); err != nil {
				return
			}
			f.mu.Lock()
			f.methods = append(f.methods, req.Method)
			f.mu.Unlock()

			if reply := f.respond(req); reply != nil {
				reply.Type = "res"
				reply.ID = req.ID
				if err := wsjson.Write(r.Context(), conn, reply); err != nil {
					return
				}
			}
		}
	}
}

func (f *fakeGatewayServer) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.methods...)
}

func startGatewayServer(t *testing.T, respond func(req rpcFrame) *rpcFrame) (*fakeGatewayServer, string) {
	t.Helper()
	f := &fakeGatewayServer{respond: respond}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return f, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSGateway_SessionsList(t *testing.T) {
	srv, url := startGatewayServer(t, func(req rpcFrame) *rpcFrame {
		if req.Method != MethodSessionsList {
			return &rpcFrame{Error: &rpcErrorBody{Code: "UNKNOWN_METHOD", Message: "unknown method " + req.Method}}
		}
		params, _ := req.Params.(map[string]any)
		if params["includeGlobal"] != true {
			return &rpcFrame{Error: &rpcErrorBody{Message: "includeGlobal missing"}}
		}
		return &rpcFrame{OK: true, Payload: json.RawMessage(`{"sessions":[{"key":"agent:exec:main","updatedAt":42}]}`)}
	})

	ctx := context.Background()
	gw, err := DialGateway(ctx, WSGatewayOptions{URL: url})
	if err != nil {
		t.Fatalf("DialGateway() error = %v", err)
	}
	defer gw.Close()

	if !gw.IsConnected() {
		t.Fatal("IsConnected() = false after dial")
	}

	sessions, err := ListSessions(ctx, gw)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].UpdatedAt != 42 {
		t.Errorf("sessions = %+v", sessions)
	}

	_, err = gw.Request(ctx, "cron.toggle", nil, 0)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Code != "UNKNOWN_METHOD" {
		t.Errorf("Request(cron.toggle) error = %v, want UNKNOWN_METHOD RequestError", err)
	}

	if got := srv.seen(); len(got) != 2 {
		t.Errorf("server saw %v, want 2 requests and no connect", got)
	}
}

func TestWSGateway_ConnectWithToken(t *testing.T) {
	srv, url := startGatewayServer(t, func(req rpcFrame) *rpcFrame {
		if req.Method == MethodConnect {
			params, _ := req.Params.(map[string]any)
			auth, _ := params["auth"].(map[string]any)
			if auth["token"] != "s3cret" {
				return &rpcFrame{Error: &rpcErrorBody{Code: "UNAUTHORIZED", Message: "bad token"}}
			}
		}
		return &rpcFrame{OK: true, Payload: json.RawMessage(`{}`)}
	})

	gw, err := DialGateway(context.Background(), WSGatewayOptions{URL: url, Token: "s3cret"})
	if err != nil {
		t.Fatalf("DialGateway() error = %v", err)
	}
	gw.Close()
	if got := srv.seen(); len(got) == 0 || got[0] != MethodConnect {
		t.Errorf("first request = %v, want connect", got)
	}

	_, err = DialGateway(context.Background(), WSGatewayOptions{URL: url, Token: "wrong"})
	if !IsGatewayUnavailable(err) {
		t.Errorf("DialGateway(bad token) error = %v, want GatewayUnavailableError", err)
	}
}

func TestWSGateway_Timeout(t *testing.T) {
	_, url := startGatewayServer(t, func(req rpcFrame) *rpcFrame { return nil })

	gw, err := DialGateway(context.Background(), WSGatewayOptions{URL: url})
	if err != nil {
		t.Fatalf("DialGateway() error = %v", err)
	}
	defer gw.Close()

	start := time.Now()
	_, err = gw.Request(context.Background(), MethodSessionsList, nil, 50*time.Millisecond)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Request() error = %v, want timeout RequestError", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Request() ignored its timeout")
	}
}

func TestWSGateway_DisconnectFailsFast(t *testing.T) {
	_, url := startGatewayServer(t, func(req rpcFrame) *rpcFrame {
		return &rpcFrame{OK: true, Payload: json.RawMessage(`{}`)}
	})

	gw, err := DialGateway(context.Background(), WSGatewayOptions{URL: url})
	if err != nil {
		t.Fatalf("DialGateway() error = %v", err)
	}
	gw.Close()

	testutil.WaitFor(t, 2*time.Second, func() bool { return !gw.IsConnected() })
	if _, err := gw.Request(context.Background(), MethodSessionsList, nil, 0); !IsGatewayUnavailable(err) {
		t.Errorf("Request() after Close error = %v, want GatewayUnavailableError", err)
	}
}

func TestDialGateway_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := DialGateway(ctx, WSGatewayOptions{URL: "ws://127.0.0.1:1"})
	if !IsGatewayUnavailable(err) {
		t.Errorf("DialGateway() error = %v, want GatewayUnavailableError", err)
	}
}
