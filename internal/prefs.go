package internal

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// DefaultInactivityThreshold hides agents idle longer than a day when
// hide-inactive is on and no threshold is stored.
const DefaultInactivityThreshold = 24 * time.Hour

const (
	prefsOrderKey  = "agent-order"
	prefsHiddenKey = "agent-hidden"
	prefsKey       = "agent-prefs"
)

// AgentPrefs holds the global hide-inactive settings
type AgentPrefs struct {
	HideInactive bool  `json:"hideInactive" yaml:"hide_inactive"`
	InactivityMs int64 `json:"inactivityMs" yaml:"inactivity_ms"`
}

// Threshold returns the inactivity cutoff, defaulting when unset
func (p AgentPrefs) Threshold() time.Duration {
	if p.InactivityMs <= 0 {
		return DefaultInactivityThreshold
	}
	return time.Duration(p.InactivityMs) * time.Millisecond
}

// PreferenceStore persists agent ordering and visibility in the local KV
// store. Every setter replaces its record outright. Agent ids are resolved
// on the way in and on the way out.
type PreferenceStore struct {
	kv       KVStore
	identity *Identity
	mu       sync.Mutex
}

// NewPreferenceStore creates a store over kv. A nil identity uses the
// built-in alias table.
func NewPreferenceStore(kv KVStore, identity *Identity) *PreferenceStore {
	if identity == nil {
		identity = DefaultIdentity()
	}
	return &PreferenceStore{kv: kv, identity: identity}
}

// Order returns the saved agent order
func (p *PreferenceStore) Order() []string {
	var ids []string
	p.read(prefsOrderKey, &ids)
	return p.canonical(ids)
}

// SetOrder replaces the saved agent order
func (p *PreferenceStore) SetOrder(ids []string) error {
	return p.write(prefsOrderKey, p.canonical(ids))
}

// Hidden returns explicitly hidden agents, sorted
func (p *PreferenceStore) Hidden() []string {
	var ids []string
	p.read(prefsHiddenKey, &ids)
	out := p.canonical(ids)
	sort.Strings(out)
	return out
}

// SetHidden replaces the explicitly hidden set
func (p *PreferenceStore) SetHidden(ids []string) error {
	out := p.canonical(ids)
	sort.Strings(out)
	return p.write(prefsHiddenKey, out)
}

// Hide adds agentID to the hidden set
func (p *PreferenceStore) Hide(agentID string) error {
	return p.SetHidden(append(p.Hidden(), agentID))
}

// Unhide removes agentID from the hidden set
func (p *PreferenceStore) Unhide(agentID string) error {
	target := p.identity.Resolve(agentID)
	var kept []string
	for _, id := range p.Hidden() {
		if id != target {
			kept = append(kept, id)
		}
	}
	return p.SetHidden(kept)
}

// Prefs returns the hide-inactive settings
func (p *PreferenceStore) Prefs() AgentPrefs {
	var prefs AgentPrefs
	p.read(prefsKey, &prefs)
	return prefs
}

// SetPrefs replaces the hide-inactive settings
func (p *PreferenceStore) SetPrefs(prefs AgentPrefs) error {
	return p.write(prefsKey, prefs)
}

// IsHidden reports whether an agent should be left out of the view: hidden
// explicitly, or hide-inactive is on and it has been idle past the
// threshold. The default agent is never hidden for inactivity.
func (p *PreferenceStore) IsHidden(agentID string, lastActivity int64, now time.Time) bool {
	return p.visibility().hidden(p.identity.Resolve(agentID), lastActivity, now)
}

// ApplyOrder puts agents in the saved order first and the rest after them
// in their incoming order.
func (p *PreferenceStore) ApplyOrder(summaries []AgentSummary) []AgentSummary {
	return applyOrder(p.Order(), summaries)
}

type visibilityRules struct {
	explicit  map[string]struct{}
	prefs     AgentPrefs
	threshold time.Duration
}

func (p *PreferenceStore) visibility() visibilityRules {
	rules := visibilityRules{explicit: make(map[string]struct{}), prefs: p.Prefs()}
	rules.threshold = rules.prefs.Threshold()
	for _, id := range p.Hidden() {
		rules.explicit[id] = struct{}{}
	}
	return rules
}

func (r visibilityRules) hidden(agentID string, lastActivity int64, now time.Time) bool {
	if _, ok := r.explicit[agentID]; ok {
		return true
	}
	if !r.prefs.HideInactive || agentID == DefaultAgentID {
		return false
	}
	if lastActivity <= 0 {
		return true
	}
	return now.UnixMilli()-lastActivity > r.threshold.Milliseconds()
}

func applyOrder(order []string, summaries []AgentSummary) []AgentSummary {
	byID := make(map[string]int, len(summaries))
	for i, s := range summaries {
		byID[s.AgentID] = i
	}

	out := make([]AgentSummary, 0, len(summaries))
	placed := make(map[string]bool, len(summaries))
	for _, id := range order {
		if i, ok := byID[id]; ok && !placed[id] {
			out = append(out, summaries[i])
			placed[id] = true
		}
	}
	for _, s := range summaries {
		if !placed[s.AgentID] {
			out = append(out, s)
			placed[s.AgentID] = true
		}
	}
	return out
}

// canonical resolves ids, dropping blanks and duplicates but keeping order
func (p *PreferenceStore) canonical(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, raw := range ids {
		if raw == "" {
			continue
		}
		id := p.identity.Resolve(raw)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (p *PreferenceStore) read(key string, v interface{}) {
	if p.kv == nil {
		return
	}
	p.mu.Lock()
	raw, ok, err := p.kv.Get(key)
	p.mu.Unlock()
	if err != nil {
		LogDebug("failed to read %s: %v", key, err)
		return
	}
	if !ok {
		return
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		LogDebug("ignoring corrupt %s: %v", key, err)
	}
}

func (p *PreferenceStore) write(key string, v interface{}) error {
	if p.kv == nil {
		return &StorageError{Key: key, Op: "set", Err: ErrNoStorage}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return &StorageError{Key: key, Op: "encode", Err: err}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kv.Set(key, string(data))
}
