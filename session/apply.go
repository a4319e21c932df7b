package session

import "github.com/FujiwaraChoki/mensa-sub000/agentwire"

// Apply routes one classified domain event into the session bound to its
// query id. This is the single glue point between the dispatcher's event
// callback and session state; UI collaborators read the registry after
// each Apply. Events for unknown query ids are dropped.
func (r *Registry) Apply(ev agentwire.Event) {
	s := r.ByQuery(ev.QueryID)
	if s == nil {
		return
	}
	sid := s.ID

	switch ev.Type {
	case agentwire.EventText:
		r.AppendText(sid, ev.Content)

	case agentwire.EventToolUse:
		if ev.Tool == nil {
			return
		}
		r.AddTool(sid, ToolExecution{
			Tool:      ev.Tool.Name,
			ToolUseID: ev.Tool.ID,
			Input:     ev.Tool.Input,
		})

	case agentwire.EventToolResult:
		if ev.Tool == nil {
			return
		}
		key := ev.Tool.ID
		if key == "" {
			key = ev.Tool.Name
		}
		toolID, ok := r.PopPendingTool(sid, key)
		if !ok {
			// Correlation miss: the result is still recorded as an
			// orphan execution rather than dropped.
			toolID = r.AddTool(sid, ToolExecution{
				Tool:      ev.Tool.Name,
				ToolUseID: ev.Tool.ID,
			})
		}
		r.CompleteTool(sid, toolID, ev.Tool.Result, ev.Tool.IsError)

	case agentwire.EventSystemInit:
		r.setInit(sid, ev.SessionID, ev.SlashCommands)

	case agentwire.EventAskUserQuestion:
		r.SetPendingQuestion(sid, ev.ToolUseID, ev.Questions)

	case agentwire.EventExitPlanMode:
		r.ProposePlan(sid, ev.PlanContent, ev.PlanFilePath, ev.AllowedPrompts)

	case agentwire.EventError:
		r.setError(sid, ev.Err)

	case agentwire.EventCancelled:
		r.Cancel(sid)

	case agentwire.EventDone:
		r.finish(sid)
	}
}

// setInit records the backend conversation id (used for resume) and the
// slash-command metadata from the init record.
func (r *Registry) setInit(sessionID, conversationID string, slashCommands []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	if conversationID != "" {
		s.ConversationID = conversationID
	}
	if len(slashCommands) > 0 {
		s.SlashCommands = slashCommands
	}
}

// setError records an agent-reported error. The stream is not over yet;
// the subsequent done marker decides the terminal status.
func (r *Registry) setError(sessionID, errText string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.Error = errText
	}
}

// finish resolves the done marker into the terminal status: error when an
// error event preceded it, completed otherwise. Cancelled sessions stay
// cancelled (the transition from a terminal state is disallowed anyway).
func (r *Registry) finish(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	if s.Error != "" {
		r.setStatusLocked(s, StatusError)
	} else {
		r.setStatusLocked(s, StatusCompleted)
	}
}
