package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteChatStore is the fallback source and sink for chat history
type RemoteChatStore interface {
	FetchMessages(ctx context.Context, sessionKey string) ([]Message, bool, error)
	PushMessages(ctx context.Context, sessionKey string, msgs []Message) error
}

// StateClient talks to the dashboard server's /api/state and /api/chat
type StateClient struct {
	baseURL string
	http    *http.Client
}

// NewStateClient creates a client for the server at baseURL
func NewStateClient(baseURL string, timeout time.Duration) *StateClient {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &StateClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type dashboardState struct {
	Chat *struct {
		Sessions map[string][]Message `json:"sessions"`
		Messages []Message            `json:"messages"`
	} `json:"chat"`
}

// FetchMessages reads full dashboard state and extracts the chat history for
// sessionKey, falling back to the flat legacy list. ok is false when the
// state carries no chat history at all.
func (c *StateClient) FetchMessages(ctx context.Context, sessionKey string) ([]Message, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/state", nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, &RequestError{Method: "GET /api/state", Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, &RequestError{Method: "GET /api/state", Code: resp.Status, Message: "unexpected status"}
	}

	var state dashboardState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, false, &MalformedResponseError{Method: "GET /api/state", Reason: "invalid JSON", Err: err}
	}
	if state.Chat == nil {
		return nil, false, nil
	}
	if msgs, ok := state.Chat.Sessions[sessionKey]; ok && len(msgs) > 0 {
		return msgs, true, nil
	}
	if len(state.Chat.Messages) > 0 {
		return state.Chat.Messages, true, nil
	}
	return nil, false, nil
}

// PushMessages replaces the remote copy of sessionKey's history
func (c *StateClient) PushMessages(ctx context.Context, sessionKey string, msgs []Message) error {
	body, err := json.Marshal(struct {
		SessionKey string    `json:"sessionKey"`
		Messages   []Message `json:"messages"`
	}{sessionKey, msgs})
	if err != nil {
		return fmt.Errorf("failed to marshal chat: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Method: "POST /api/chat", Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return &RequestError{Method: "POST /api/chat", Code: resp.Status, Message: "unexpected status"}
	}
	return nil
}

// Ping checks that the state endpoint answers
func (c *StateClient) Ping(ctx context.Context) error {
	_, _, err := c.FetchMessages(ctx, "")
	return err
}
