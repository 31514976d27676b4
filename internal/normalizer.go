package internal

import (
	"fmt"
	"strings"
)

// Normalizer cleans chat logs coming from outside (imports, remote state)
// into the shape the rest of the dashboard expects.
type Normalizer struct {
	identity *Identity
}

// NewNormalizer creates a Normalizer resolving agents through identity
func NewNormalizer(identity *Identity) *Normalizer {
	if identity == nil {
		identity = DefaultIdentity()
	}
	return &Normalizer{identity: identity}
}

// NormalizeChatLog canonicalizes roles and agent ids, drops empty messages
// and keeps the newest PersistLimit. sessionKey overrides the log's own key
// when set.
func (n *Normalizer) NormalizeChatLog(log *ChatLog, sessionKey string) (*ChatLog, error) {
	if log == nil {
		return nil, fmt.Errorf("chat log is nil")
	}
	if sessionKey == "" {
		sessionKey = log.SessionKey
	}
	if sessionKey == "" {
		return nil, fmt.Errorf("chat log has no session key")
	}
	if err := ValidateSessionKey(sessionKey); err != nil {
		return nil, err
	}

	agentID := n.identity.AgentFromKey(sessionKey)
	messages := make([]Message, 0, len(log.Messages))
	for _, msg := range log.Messages {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		messages = append(messages, n.normalizeMessage(msg, agentID))
	}

	return &ChatLog{
		SessionKey: sessionKey,
		AgentID:    agentID,
		Messages:   tail(messages, PersistLimit),
	}, nil
}

func (n *Normalizer) normalizeMessage(msg Message, agentID string) Message {
	msg.Role = normalizeRole(msg.Role)
	if msg.AgentID != "" {
		msg.AgentID = n.identity.Resolve(msg.AgentID)
	} else if msg.Role == "assistant" {
		msg.AgentID = agentID
	}
	return msg
}

// normalizeRole maps the role spellings seen in exported chats onto the
// four the dashboard renders.
func normalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "assistant", "ai", "bot", "agent", "model":
		return "assistant"
	case "system":
		return "system"
	case "tool", "toolresult", "tool_result", "function":
		return "tool"
	default:
		return "user"
	}
}
