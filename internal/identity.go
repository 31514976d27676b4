package internal

import "strings"

// DefaultAgentID is the agent that owns sessions whose key carries no agent
const DefaultAgentID = "main"

const sessionKeyPrefix = "agent:"

var (
	defaultAliases = map[string]string{
		"exec": "elon",
		"cto":  "orion",
		"coo":  "atlas",
	}
	defaultRoster = []string{DefaultAgentID, "elon", "orion", "atlas", "nova", "echo"}

	defaultIdentity = NewIdentity(nil, nil)
)

// Identity maps legacy agent aliases onto canonical ids and knows the fixed
// roster of agents the product ships with. It is immutable after construction.
type Identity struct {
	aliases map[string]string
	roster  []string
}

// NewIdentity builds an Identity from the built-in tables plus extra aliases
// and roster members. Alias chains are collapsed so Resolve is idempotent.
func NewIdentity(extraAliases map[string]string, extraRoster []string) *Identity {
	raw := make(map[string]string, len(defaultAliases)+len(extraAliases))
	for k, v := range defaultAliases {
		raw[k] = v
	}
	for k, v := range extraAliases {
		if k == "" || v == "" || k == v {
			continue
		}
		raw[k] = v
	}

	aliases := make(map[string]string, len(raw))
	for alias := range raw {
		target := alias
		seen := map[string]bool{alias: true}
		for {
			next, ok := raw[target]
			if !ok || seen[next] {
				break
			}
			seen[next] = true
			target = next
		}
		if target != alias {
			aliases[alias] = target
		}
	}
	// a canonical id must never map elsewhere, or Resolve(Resolve(x)) drifts
	for alias, target := range aliases {
		if _, ok := aliases[target]; ok {
			delete(aliases, alias)
		}
	}

	id := &Identity{aliases: aliases}
	seen := make(map[string]bool)
	for _, a := range append(append([]string{}, defaultRoster...), extraRoster...) {
		c := id.Resolve(a)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		id.roster = append(id.roster, c)
	}
	return id
}

// DefaultIdentity returns the built-in alias table and roster
func DefaultIdentity() *Identity {
	return defaultIdentity
}

// Resolve returns the canonical id for rawID. Unknown ids are returned unchanged.
func (id *Identity) Resolve(rawID string) string {
	if c, ok := id.aliases[rawID]; ok {
		return c
	}
	return rawID
}

// Roster returns a copy of the canonical agent ids that always appear in summaries
func (id *Identity) Roster() []string {
	out := make([]string, len(id.roster))
	copy(out, id.roster)
	return out
}

// InRoster reports whether agentID (after resolution) is a roster member
func (id *Identity) InRoster(agentID string) bool {
	c := id.Resolve(agentID)
	for _, r := range id.roster {
		if r == c {
			return true
		}
	}
	return false
}

// AgentFromKey extracts and resolves the agent id from a key of the form
// agent:<id>:<suffix>. Keys that do not match belong to DefaultAgentID.
func (id *Identity) AgentFromKey(key string) string {
	if !strings.HasPrefix(key, sessionKeyPrefix) {
		return DefaultAgentID
	}
	rest := key[len(sessionKeyPrefix):]
	i := strings.IndexByte(rest, ':')
	if i <= 0 {
		return DefaultAgentID
	}
	return id.Resolve(rest[:i])
}

// Resolve maps rawID through the built-in alias table
func Resolve(rawID string) string {
	return defaultIdentity.Resolve(rawID)
}
