package internal

import (
	"time"
)

// CreateTestChatLog creates a chat log with a short sample exchange
func CreateTestChatLog(sessionKey string) *ChatLog {
	now := time.Now().UnixMilli()
	return &ChatLog{
		SessionKey: sessionKey,
		AgentID:    DefaultIdentity().AgentFromKey(sessionKey),
		Messages: []Message{
			{
				Role:      "user",
				Content:   "Hello, how are you?",
				Timestamp: now - 1000,
			},
			{
				Role:      "assistant",
				Content:   "I'm doing well, thank you!",
				Timestamp: now,
				AgentID:   DefaultIdentity().AgentFromKey(sessionKey),
			},
		},
	}
}

// CreateTestChatLogWithMessages creates a chat log with custom messages
func CreateTestChatLogWithMessages(sessionKey string, messages []Message) *ChatLog {
	return &ChatLog{
		SessionKey: sessionKey,
		AgentID:    DefaultIdentity().AgentFromKey(sessionKey),
		Messages:   messages,
	}
}
