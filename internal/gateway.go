package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"time"
)

// Gateway RPC methods consumed here
const (
	MethodConnect      = "connect"
	MethodSessionsList = "sessions.list"
)

// GatewayClient is the request/response channel to the gateway
type GatewayClient interface {
	// Request issues method with params and waits for its payload. A zero
	// timeout uses the client's default.
	Request(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error)
	// IsConnected is checked before any request is issued
	IsConnected() bool
}

// Reconnector is a GatewayClient that can re-establish a dropped connection
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

type sessionsListParams struct {
	IncludeGlobal bool `json:"includeGlobal"`
}

type sessionsListResult struct {
	Sessions []Session `json:"sessions"`
}

// ListSessions calls sessions.list and validates the payload. A payload that
// is not an object is a MalformedResponseError; an object without sessions
// is an empty list.
func ListSessions(ctx context.Context, client GatewayClient) ([]Session, error) {
	if client == nil || !client.IsConnected() {
		return nil, &GatewayUnavailableError{Err: ErrNotConnected}
	}

	payload, err := client.Request(ctx, MethodSessionsList, sessionsListParams{IncludeGlobal: true}, 0)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []Session{}, nil
	}
	if trimmed[0] != '{' {
		return nil, &MalformedResponseError{Method: MethodSessionsList, Reason: "payload is not an object"}
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, &MalformedResponseError{Method: MethodSessionsList, Reason: "invalid JSON", Err: err}
	}
	raw, ok := probe["sessions"]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		LogDebug("sessions.list payload had no sessions field, treating as empty")
		return []Session{}, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &MalformedResponseError{Method: MethodSessionsList, Reason: "sessions is not an array", Err: err}
	}

	sessions := make([]Session, 0, len(entries))
	for i, entry := range entries {
		var s Session
		if err := json.Unmarshal(entry, &s); err != nil {
			LogDebug("skipping sessions[%d]: %v", i, err)
			continue
		}
		if s.Key == "" {
			LogDebug("skipping sessions[%d]: empty key", i)
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}
