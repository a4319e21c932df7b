package session

import (
	"time"

	"github.com/google/uuid"
)

// Subagent grouping: a delegation tool invocation opens a group and
// becomes the session's active subagent; every tool invocation observed
// while it is open is tagged as its child; the delegation tool's own
// result closes it. Nesting is not supported: opening a second group
// while one is active closes the first with an error status, keeping the
// "one active subagent per session" rule deterministic.

func (r *Registry) openSubagentLocked(s *Session, delegating *ToolExecution) {
	if prev := s.ActiveSubagent(); prev != nil {
		r.closeSubagentLocked(s, prev, true)
	}

	group := &SubagentGroup{
		ID:               uuid.NewString(),
		DelegatingToolID: delegating.ID,
		Status:           SubagentRunning,
		StartedAt:        time.Now(),
	}
	if delegating.Input != nil {
		if desc, ok := delegating.Input["description"].(string); ok {
			group.Description = desc
		}
		if at, ok := delegating.Input["subagent_type"].(string); ok {
			group.AgentType = at
		}
	}
	s.Subagents = append(s.Subagents, group)
	s.activeSubagent = group.ID
}

func (r *Registry) closeSubagentLocked(s *Session, group *SubagentGroup, failed bool) {
	if group.Status != SubagentRunning {
		return
	}
	now := time.Now()
	group.CompletedAt = &now
	if failed {
		group.Status = SubagentError
	} else {
		group.Status = SubagentCompleted
	}
	if s.activeSubagent == group.ID {
		s.activeSubagent = ""
	}
}

// CompleteSubagent closes the active subagent group explicitly. Used when
// a stream ends without the delegation tool's result ever arriving.
func (r *Registry) CompleteSubagent(sessionID string, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	if group := s.ActiveSubagent(); group != nil {
		r.closeSubagentLocked(s, group, failed)
	}
}
