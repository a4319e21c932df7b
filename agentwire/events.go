package agentwire

import "sync"

// EventType discriminates between domain event kinds emitted to UI consumers.
type EventType string

const (
	EventText            EventType = "text"
	EventToolUse         EventType = "tool_use"
	EventToolResult      EventType = "tool_result"
	EventSystemInit      EventType = "system_init"
	EventAskUserQuestion EventType = "ask_user_question"
	EventExitPlanMode    EventType = "exit_plan_mode"
	EventError           EventType = "error"
	EventDone            EventType = "done"
	EventCancelled       EventType = "cancelled"
)

// ToolName is the closed enumeration of tools the client renders specially.
// Unrecognized tools map to ToolOther rather than escaping the type system.
type ToolName string

const (
	ToolRead            ToolName = "Read"
	ToolWrite           ToolName = "Write"
	ToolEdit            ToolName = "Edit"
	ToolBash            ToolName = "Bash"
	ToolGlob            ToolName = "Glob"
	ToolGrep            ToolName = "Grep"
	ToolTask            ToolName = "Task"
	ToolWebFetch        ToolName = "WebFetch"
	ToolWebSearch       ToolName = "WebSearch"
	ToolTodoWrite       ToolName = "TodoWrite"
	ToolNotebookEdit    ToolName = "NotebookEdit"
	ToolAskUserQuestion ToolName = "AskUserQuestion"
	ToolExitPlanMode    ToolName = "ExitPlanMode"
	ToolOther           ToolName = "other"
)

var knownTools = map[string]ToolName{
	string(ToolRead):            ToolRead,
	string(ToolWrite):           ToolWrite,
	string(ToolEdit):            ToolEdit,
	string(ToolBash):            ToolBash,
	string(ToolGlob):            ToolGlob,
	string(ToolGrep):            ToolGrep,
	string(ToolTask):            ToolTask,
	string(ToolWebFetch):        ToolWebFetch,
	string(ToolWebSearch):       ToolWebSearch,
	string(ToolTodoWrite):       ToolTodoWrite,
	string(ToolNotebookEdit):    ToolNotebookEdit,
	string(ToolAskUserQuestion): ToolAskUserQuestion,
	string(ToolExitPlanMode):    ToolExitPlanMode,
}

// KnownTool maps a wire tool name onto the closed enumeration.
// The second return reports whether the name was recognized.
func KnownTool(name string) (ToolName, bool) {
	if t, ok := knownTools[name]; ok {
		return t, true
	}
	return ToolOther, false
}

// IsDelegation reports whether the tool hands work off to a sub-agent
// whose own tool activity should be grouped.
func (t ToolName) IsDelegation() bool { return t == ToolTask }

// ToolInfo describes the tool invocation or result attached to an event.
type ToolInfo struct {
	ID      string                 `json:"id,omitempty"`
	Name    string                 `json:"name"`
	Input   map[string]interface{} `json:"input,omitempty"`
	Result  string                 `json:"result,omitempty"`
	IsError bool                   `json:"isError,omitempty"`
}

// Question is one entry of an AskUserQuestion invocation.
type Question struct {
	Header      string   `json:"header,omitempty"`
	Question    string   `json:"question"`
	Options     []string `json:"options,omitempty"`
	MultiSelect bool     `json:"multiSelect,omitempty"`
}

// AllowedPrompt is one permission request attached to a proposed plan.
type AllowedPrompt struct {
	Tool   string `json:"tool"`
	Prompt string `json:"prompt,omitempty"`
}

// Event is the flat tagged union handed to UI consumers. Consumers switch
// on Type; only the fields relevant to that type are populated.
type Event struct {
	Type           EventType       `json:"type"`
	QueryID        string          `json:"queryId,omitempty"`
	SessionID      string          `json:"sessionId,omitempty"`
	Content        string          `json:"content,omitempty"`
	Tool           *ToolInfo       `json:"tool,omitempty"`
	Err            string          `json:"error,omitempty"`
	SlashCommands  []string        `json:"slashCommands,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	Questions      []Question      `json:"questions,omitempty"`
	ToolUseID      string          `json:"toolUseId,omitempty"`
	PlanFilePath   string          `json:"planFilePath,omitempty"`
	PlanContent    string          `json:"planContent,omitempty"`
	AllowedPrompts []AllowedPrompt `json:"allowedPrompts,omitempty"`
}

// CorrelationTable maps tool invocation ids to tool names for one session.
// Entries are one-shot: resolving an id through Pop removes it. The table
// is owned by a single session and must never be shared across sessions.
// It is safe for concurrent use so the stream classifier and the session
// registry can share one instance.
type CorrelationTable struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewCorrelationTable returns an empty table.
func NewCorrelationTable() *CorrelationTable {
	return &CorrelationTable{entries: make(map[string]string)}
}

// Register records the tool name for an invocation id. Empty ids are
// ignored. Registering on a nil table is a no-op.
func (t *CorrelationTable) Register(toolUseID, name string) {
	if t == nil || toolUseID == "" {
		return
	}
	t.mu.Lock()
	t.entries[toolUseID] = name
	t.mu.Unlock()
}

// Pop resolves and removes the entry for an invocation id.
func (t *CorrelationTable) Pop(toolUseID string) (string, bool) {
	if t == nil {
		return "", false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	name, ok := t.entries[toolUseID]
	if ok {
		delete(t.entries, toolUseID)
	}
	return name, ok
}

// Len returns the number of live entries.
func (t *CorrelationTable) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
