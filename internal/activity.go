package internal

import (
	"sort"
	"time"
)

// Aggregate derives one AgentSummary per agent from a session snapshot.
// Every roster agent is present even with zero sessions. Sessions are walked
// in input order and a tie on UpdatedAt keeps the first label seen, so the
// input must not be re-sorted before it gets here.
func Aggregate(id *Identity, sessions []Session) map[string]AgentSummary {
	if id == nil {
		id = DefaultIdentity()
	}

	out := make(map[string]AgentSummary, len(id.roster))
	for _, agentID := range id.roster {
		out[agentID] = AgentSummary{AgentID: agentID}
	}

	for _, s := range sessions {
		agentID := id.AgentFromKey(s.Key)
		sum := out[agentID]
		sum.AgentID = agentID
		sum.SessionCount++
		sum.Tokens.add(s)
		if s.UpdatedAt > sum.LastActivity {
			sum.LastActivity = s.UpdatedAt
			sum.LastPreview = s.Label()
		}
		out[agentID] = sum
	}

	return out
}

// SortByActivity orders summaries most recently active first. Equal
// timestamps fall back to agent id so output is stable.
func SortByActivity(summaries map[string]AgentSummary) []AgentSummary {
	list := make([]AgentSummary, 0, len(summaries))
	for _, s := range summaries {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].LastActivity != list[j].LastActivity {
			return list[i].LastActivity > list[j].LastActivity
		}
		return list[i].AgentID < list[j].AgentID
	})
	return list
}

// Views classifies each summary at now. Classification is never cached
// because it depends on the clock.
func Views(summaries []AgentSummary, now time.Time) []AgentView {
	views := make([]AgentView, 0, len(summaries))
	for _, s := range summaries {
		views = append(views, AgentView{
			AgentSummary: s,
			Activity:     Classify(s.LastActivity, now),
			Label:        ActivityLabel(s.LastActivity, now),
		})
	}
	return views
}
