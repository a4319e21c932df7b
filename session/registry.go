package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FujiwaraChoki/mensa-sub000/agentwire"
)

// Registry is the single mutable owner of all session data. Every
// mutation flows through its operations; readers get snapshots or the
// session pointer for read-only inspection under the caller's discipline
// of not writing to it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byQuery  map[string]string // query id -> session id
	order    []string          // creation order, for listing
	active   string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byQuery:  make(map[string]string),
	}
}

// Create opens a new idle session and returns it.
func (r *Registry) Create() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Session{
		ID:           uuid.NewString(),
		Status:       StatusIdle,
		CreatedAt:    time.Now(),
		corr:         agentwire.NewCorrelationTable(),
		pendingTools: make(map[string]string),
		toolsByID:    make(map[string]*ToolExecution),
	}
	r.sessions[s.ID] = s
	r.order = append(r.order, s.ID)
	if r.active == "" {
		r.active = s.ID
	}
	return s
}

// Get returns the session with the given id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// ByQuery returns the session currently bound to a query id, or nil.
func (r *Registry) ByQuery(queryID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sid, ok := r.byQuery[queryID]; ok {
		return r.sessions[sid]
	}
	return nil
}

// List returns all sessions in creation order.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		if s, ok := r.sessions[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// SetActive switches the active session. Unknown ids are ignored.
func (r *Registry) SetActive(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		r.active = id
	}
}

// Active returns the active session, or nil.
func (r *Registry) Active() *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[r.active]
}

// BindQuery attaches a dispatched query to a session and moves it to
// streaming. The cancel func is invoked by Close when the session is
// still streaming; it comes from the QueryHandle the dispatcher returned.
func (r *Registry) BindQuery(sessionID, queryID string, cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	if s.QueryID != "" {
		delete(r.byQuery, s.QueryID)
	}
	s.QueryID = queryID
	s.cancel = cancel
	r.byQuery[queryID] = sessionID
	r.setStatusLocked(s, StatusStreaming)
}

// Close destroys a session, cancelling its query first if it is still
// streaming. Closing an idle or terminal session issues no cancel.
func (r *Registry) Close(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	cancel := s.cancel
	streaming := s.Status == StatusStreaming

	delete(r.sessions, sessionID)
	delete(r.byQuery, s.QueryID)
	for i, id := range r.order {
		if id == sessionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.active == sessionID {
		r.active = ""
		if len(r.order) > 0 {
			r.active = r.order[len(r.order)-1]
		}
	}
	r.mu.Unlock()

	// Cancel outside the lock: the handle synthesizes events that re-enter
	// the registry through Apply.
	if streaming && cancel != nil {
		cancel()
	}
}

// SetStatus applies a state-machine transition. Disallowed or same-status
// moves are no-ops.
func (r *Registry) SetStatus(sessionID string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		r.setStatusLocked(s, status)
	}
}

func (r *Registry) setStatusLocked(s *Session, status Status) {
	if s.Status == status || !canTransition(s.Status, status) {
		return
	}
	s.Status = status
	if status == StatusStreaming {
		// A fresh turn clears the previous turn's error.
		s.Error = ""
	}
}

// AppendMessage appends a complete message.
func (r *Registry) AppendMessage(sessionID string, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	for i := range msg.Blocks {
		if msg.Blocks[i].Order == 0 {
			msg.Blocks[i].Order = s.nextOrder()
		} else if msg.Blocks[i].Order > s.blockSeq {
			// Advance the sequencer past explicit orders so later
			// auto-assigned blocks cannot collide with them.
			s.blockSeq = msg.Blocks[i].Order
		}
	}
	s.Messages = append(s.Messages, &msg)
}

// AppendText appends streaming text to the last assistant message,
// merging into the trailing block when it is text. A new assistant
// message is opened if the conversation does not end with one.
func (r *Registry) AppendText(sessionID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || text == "" {
		return
	}
	msg := r.ensureAssistantLocked(s)
	msg.Content += text

	if n := len(msg.Blocks); n > 0 && msg.Blocks[n-1].Type == BlockText {
		msg.Blocks[n-1].Content += text
		return
	}
	msg.Blocks = append(msg.Blocks, MessageBlock{
		Type:    BlockText,
		Content: text,
		Order:   s.nextOrder(),
	})
}

// AppendTextAt appends text as a new block at an explicit order. Explicit
// orders never merge, so interleaved tool/text/image fragments cannot
// collapse into each other.
func (r *Registry) AppendTextAt(sessionID, text string, order uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	msg := r.ensureAssistantLocked(s)
	msg.Content += text
	msg.Blocks = append(msg.Blocks, MessageBlock{
		Type:    BlockText,
		Content: text,
		Order:   order,
	})
	if order > s.blockSeq {
		s.blockSeq = order
	}
}

// AppendImage appends an image block to the last assistant message.
func (r *Registry) AppendImage(sessionID, mediaType, data string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	msg := r.ensureAssistantLocked(s)
	msg.Blocks = append(msg.Blocks, MessageBlock{
		Type:      BlockImage,
		MediaType: mediaType,
		Data:      data,
		Order:     s.nextOrder(),
	})
}

// ensureAssistantLocked returns the trailing assistant message, opening a
// new one when the conversation ends with a user message (or is empty).
func (r *Registry) ensureAssistantLocked(s *Session) *Message {
	if msg := s.lastMessage(); msg != nil && msg.Role == RoleAssistant {
		return msg
	}
	msg := &Message{Role: RoleAssistant, CreatedAt: time.Now()}
	s.Messages = append(s.Messages, msg)
	return msg
}

// AddTool records a new tool execution on the last assistant message,
// emits its block, and tags it onto the active subagent group if one is
// open. A delegation tool instead opens a new subagent group and becomes
// the session's active subagent. Returns the execution id.
func (r *Registry) AddTool(sessionID string, exec ToolExecution) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return ""
	}
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	if exec.Status == "" {
		exec.Status = ToolRunning
	}
	if exec.StartedAt.IsZero() {
		exec.StartedAt = time.Now()
	}

	tool, _ := agentwire.KnownTool(exec.Tool)
	if tool.IsDelegation() {
		r.openSubagentLocked(s, &exec)
	} else if group := s.ActiveSubagent(); group != nil {
		exec.ParentSubagentID = group.ID
		group.ChildToolIDs = append(group.ChildToolIDs, exec.ID)
	}

	stored := exec
	s.Tools = append(s.Tools, &stored)
	s.toolsByID[stored.ID] = &stored

	msg := r.ensureAssistantLocked(s)
	msg.ToolIDs = append(msg.ToolIDs, stored.ID)
	msg.Blocks = append(msg.Blocks, MessageBlock{
		Type:   BlockTool,
		ToolID: stored.ID,
		Order:  s.nextOrder(),
	})

	// Pending lookup: invocation id if present, else tool name.
	key := stored.ToolUseID
	if key == "" {
		key = stored.Tool
	}
	s.pendingTools[key] = stored.ID
	s.corr.Register(stored.ToolUseID, stored.Tool)

	return stored.ID
}

// UpdateTool applies fn to a tool execution by id.
func (r *Registry) UpdateTool(sessionID, toolID string, fn func(*ToolExecution)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	exec, ok := s.toolsByID[toolID]
	if !ok {
		return false
	}
	fn(exec)
	return true
}

// PopPendingTool resolves and removes the pending-tool entry for a
// correlation key (invocation id if the result carries one, else the
// tool name).
func (r *Registry) PopPendingTool(sessionID, key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return "", false
	}
	id, ok := s.pendingTools[key]
	if ok {
		delete(s.pendingTools, key)
	}
	return id, ok
}

// CompleteTool moves a tool execution to its terminal state. The status
// transition happens exactly once; repeated completions are no-ops.
func (r *Registry) CompleteTool(sessionID, toolID, output string, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	exec, ok := s.toolsByID[toolID]
	if !ok || exec.Status != ToolRunning {
		return
	}
	now := time.Now()
	exec.Output = output
	exec.CompletedAt = &now
	if isError {
		exec.Status = ToolError
	} else {
		exec.Status = ToolCompleted
	}

	// The delegation tool's own result closes its subagent group.
	if group := s.ActiveSubagent(); group != nil && group.DelegatingToolID == toolID {
		r.closeSubagentLocked(s, group, isError)
	}
}

// Correlation returns the session's private correlation table for the
// classifier. The table must never be handed to another session's stream.
func (r *Registry) Correlation(sessionID string) *agentwire.CorrelationTable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[sessionID]; ok {
		return s.corr
	}
	return nil
}

// Cancel moves a streaming session to cancelled, forcing every running
// tool execution and any open subagent group to a terminal state so
// nothing is left dangling. No-op on non-streaming sessions.
func (r *Registry) Cancel(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || s.Status != StatusStreaming {
		return
	}
	now := time.Now()
	for _, exec := range s.Tools {
		if exec.Status == ToolRunning {
			exec.Status = ToolError
			exec.CompletedAt = &now
		}
	}
	if group := s.ActiveSubagent(); group != nil {
		r.closeSubagentLocked(s, group, true)
	}
	r.setStatusLocked(s, StatusCancelled)
}
