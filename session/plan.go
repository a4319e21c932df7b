package session

import "github.com/FujiwaraChoki/mensa-sub000/agentwire"

// Plan-mode transitions. Plan mode is a sub-state orthogonal to the main
// status: an exit-plan-mode proposal can land while the underlying query
// has already completed, and approval then restarts the session for a
// follow-up turn.

// EnterPlanMode turns plan mode on. Leaves streaming status untouched.
func (r *Registry) EnterPlanMode(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.Plan.PlanMode = true
	}
}

// LeavePlanMode turns plan mode off and clears all plan sub-state.
func (r *Registry) LeavePlanMode(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.Plan = PlanModeState{}
	}
}

// ProposePlan records an exit-plan-mode proposal and marks approval
// pending with its requested permission set.
func (r *Registry) ProposePlan(sessionID, content, filePath string, prompts []agentwire.AllowedPrompt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	s.Plan.PlanMode = true
	s.Plan.PlanContent = content
	s.Plan.PlanFilePath = filePath
	s.Plan.ApprovalPending = true
	s.Plan.ApprovedPrompts = prompts
}

// ApprovePlan clears the pending approval and plan mode itself; the
// caller then redispatches on the same session with the approved
// permission set.
func (r *Registry) ApprovePlan(sessionID string) []agentwire.AllowedPrompt {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || !s.Plan.ApprovalPending {
		return nil
	}
	approved := s.Plan.ApprovedPrompts
	s.Plan.ApprovalPending = false
	s.Plan.PlanMode = false
	return approved
}

// RejectPlan clears the pending approval and any cached plan content.
// The session stays in plan mode so the agent can propose a revised plan
// on the next turn.
func (r *Registry) RejectPlan(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	s.Plan.ApprovalPending = false
	s.Plan.PlanContent = ""
	s.Plan.PlanFilePath = ""
	s.Plan.ApprovedPrompts = nil
}

// SetPendingQuestion records an AskUserQuestion waiting for the user.
func (r *Registry) SetPendingQuestion(sessionID, toolUseID string, questions []agentwire.Question) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.Plan.PendingQuestion = &PendingQuestion{ToolUseID: toolUseID, Questions: questions}
	}
}

// ClearPendingQuestion drops the pending question once answered.
func (r *Registry) ClearPendingQuestion(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.Plan.PendingQuestion = nil
	}
}
