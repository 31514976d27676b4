package internal

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// StoredChat summarizes one chat history held in local storage
type StoredChat struct {
	SessionKey    string `json:"sessionKey" yaml:"session_key"`
	AgentID       string `json:"agentId" yaml:"agent_id"`
	MessageCount  int    `json:"messageCount" yaml:"message_count"`
	LastTimestamp int64  `json:"lastTimestamp,omitempty" yaml:"last_timestamp,omitempty"`
	Bytes         int    `json:"bytes" yaml:"bytes"`
}

// Storage inspects what the local store holds
type Storage struct {
	kv       *SQLiteKV
	identity *Identity
}

// NewStorage creates a new Storage instance
func NewStorage(kv *SQLiteKV, identity *Identity) *Storage {
	if identity == nil {
		identity = DefaultIdentity()
	}
	return &Storage{kv: kv, identity: identity}
}

// ListChats returns every session-scoped chat history, most recent first.
// Unreadable entries are skipped.
func (s *Storage) ListChats() ([]StoredChat, error) {
	keys, err := s.kv.Keys(chatKeyPrefix + "%")
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}

	chats := make([]StoredChat, 0, len(keys))
	for _, key := range keys {
		if key == legacyChatKey {
			continue
		}
		raw, ok, err := s.kv.Get(key)
		if err != nil || !ok {
			continue
		}
		var msgs []Message
		if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
			LogDebug("skipping corrupt chat %s: %v", key, err)
			continue
		}

		sessionKey := strings.TrimPrefix(key, chatKeyPrefix)
		chat := StoredChat{
			SessionKey:   sessionKey,
			AgentID:      s.identity.AgentFromKey(sessionKey),
			MessageCount: len(msgs),
			Bytes:        len(key) + len(raw),
		}
		for _, m := range msgs {
			if m.Timestamp > chat.LastTimestamp {
				chat.LastTimestamp = m.Timestamp
			}
		}
		chats = append(chats, chat)
	}

	sort.SliceStable(chats, func(i, j int) bool {
		if chats[i].LastTimestamp != chats[j].LastTimestamp {
			return chats[i].LastTimestamp > chats[j].LastTimestamp
		}
		return chats[i].SessionKey < chats[j].SessionKey
	})
	return chats, nil
}

// HasLegacyChat reports whether the pre-session global history is still present
func (s *Storage) HasLegacyChat() bool {
	_, ok, err := s.kv.Get(legacyChatKey)
	return err == nil && ok
}

// DeleteChat removes a session's local history
func (s *Storage) DeleteChat(sessionKey string) error {
	if err := ValidateSessionKey(sessionKey); err != nil {
		return err
	}
	return s.kv.Remove(chatKeyPrefix + sessionKey)
}
