package internal

// Session is one conversation thread as reported by sessions.list
type Session struct {
	Key          string `json:"key" yaml:"key"`
	UpdatedAt    int64  `json:"updatedAt,omitempty" yaml:"updated_at,omitempty"` // ms since epoch, 0 if never active
	DisplayName  string `json:"displayName,omitempty" yaml:"display_name,omitempty"`
	InputTokens  int64  `json:"inputTokens,omitempty" yaml:"input_tokens,omitempty"`
	OutputTokens int64  `json:"outputTokens,omitempty" yaml:"output_tokens,omitempty"`
	TotalTokens  int64  `json:"totalTokens,omitempty" yaml:"total_tokens,omitempty"`
}

// Total returns TotalTokens, or input+output when the gateway omitted it
func (s Session) Total() int64 {
	if s.TotalTokens == 0 {
		return s.InputTokens + s.OutputTokens
	}
	return s.TotalTokens
}

// Label is the human name of the session, falling back to its key
func (s Session) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Key
}

// Message is a single chat message. Sets of messages are ordered newest-last.
type Message struct {
	Role      string `json:"role" yaml:"role"` // "user", "assistant", "system", "tool"
	Content   string `json:"content" yaml:"content"`
	Timestamp int64  `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	AgentID   string `json:"agentId,omitempty" yaml:"agent_id,omitempty"`
}

// ChatLog pairs a session key with its message history for export
type ChatLog struct {
	SessionKey string    `json:"sessionKey" yaml:"session_key"`
	AgentID    string    `json:"agentId" yaml:"agent_id"`
	Messages   []Message `json:"messages" yaml:"messages"`
}

// tail returns a copy of the newest n messages
func tail(msgs []Message, n int) []Message {
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
