package internal

import (
	"fmt"
	"time"
)

// TokenTotals sums token counters across sessions
type TokenTotals struct {
	Input  int64 `json:"input" yaml:"input"`
	Output int64 `json:"output" yaml:"output"`
	Total  int64 `json:"total" yaml:"total"`
}

func (t *TokenTotals) add(s Session) {
	t.Input += s.InputTokens
	t.Output += s.OutputTokens
	t.Total += s.Total()
}

// AgentSummary is the derived per-agent view of a session snapshot.
// It is rebuilt from scratch on every refresh and never patched in place.
type AgentSummary struct {
	AgentID      string      `json:"agentId" yaml:"agent_id"`
	SessionCount int         `json:"sessionCount" yaml:"session_count"`
	LastActivity int64       `json:"lastActivity" yaml:"last_activity"` // ms since epoch, 0 if none
	LastPreview  string      `json:"lastPreview,omitempty" yaml:"last_preview,omitempty"`
	Tokens       TokenTotals `json:"tokenTotals" yaml:"token_totals"`
}

// Activity classifies how recently an agent did anything
type Activity int

const (
	ActivityIdle Activity = iota
	ActivityRecent
	ActivityActive
)

const (
	activeWindow = 5 * time.Minute
	recentWindow = time.Hour
)

func (a Activity) String() string {
	switch a {
	case ActivityActive:
		return "Active"
	case ActivityRecent:
		return "Recent"
	default:
		return "Idle"
	}
}

func (a Activity) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Activity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Active":
		*a = ActivityActive
	case "Recent":
		*a = ActivityRecent
	case "Idle":
		*a = ActivityIdle
	default:
		return fmt.Errorf("unknown activity %q", text)
	}
	return nil
}

// Classify buckets lastActivity (ms since epoch) relative to now. Upper bounds
// are exclusive: exactly five minutes old is Recent, exactly one hour is Idle.
func Classify(lastActivity int64, now time.Time) Activity {
	if lastActivity <= 0 {
		return ActivityIdle
	}
	age := now.UnixMilli() - lastActivity
	switch {
	case age < activeWindow.Milliseconds():
		return ActivityActive
	case age < recentWindow.Milliseconds():
		return ActivityRecent
	default:
		return ActivityIdle
	}
}

// ActivityLabel is the display text for an agent's status
func ActivityLabel(lastActivity int64, now time.Time) string {
	if lastActivity <= 0 {
		return "No activity"
	}
	return Classify(lastActivity, now).String()
}

// AgentView is an AgentSummary decorated for display at a given instant
type AgentView struct {
	AgentSummary `yaml:",inline"`
	Activity Activity `json:"activity" yaml:"activity"`
	Label    string   `json:"label" yaml:"label"`
	Hidden   bool     `json:"hidden" yaml:"hidden"`
}
