// Package session owns all conversation state for the client: one Session
// record per open conversation, mutated exclusively through the Registry.
// The registry also hosts the per-session block sequencer, tool correlation
// table, and subagent grouping state, so no component outside this package
// ever touches a Session field directly.
package session

import (
	"time"

	"github.com/FujiwaraChoki/mensa-sub000/agentwire"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusStreaming Status = "streaming"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

// ToolStatus is the execution state of a tool invocation.
type ToolStatus string

const (
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
)

// SubagentStatus is the state of a delegated sub-task group.
type SubagentStatus string

const (
	SubagentRunning   SubagentStatus = "running"
	SubagentCompleted SubagentStatus = "completed"
	SubagentError     SubagentStatus = "error"
)

// Role distinguishes user prompts from assistant output.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType identifies the kind of message block.
type BlockType string

const (
	BlockText  BlockType = "text"
	BlockTool  BlockType = "tool"
	BlockImage BlockType = "image"
)

// MessageBlock is one ordered fragment of a growing message. Order values
// come from a single per-session counter, so interleaved text, tool, and
// image blocks render stably regardless of arrival-order races.
type MessageBlock struct {
	Type      BlockType `json:"type"`
	Content   string    `json:"content,omitempty"`
	ToolID    string    `json:"toolId,omitempty"`
	MediaType string    `json:"mediaType,omitempty"`
	Data      string    `json:"data,omitempty"`
	Order     uint64    `json:"order"`
}

// Attachment is a file attached to a user prompt.
type Attachment struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Data      string `json:"data"`
}

// Message is one conversation entry. Append-only except for the in-place
// growth of the last assistant message while a query streams.
type Message struct {
	Role        Role           `json:"role"`
	Content     string         `json:"content"`
	Blocks      []MessageBlock `json:"blocks,omitempty"`
	ToolIDs     []string       `json:"toolIds,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// ToolExecution tracks one tool invocation from request to outcome.
type ToolExecution struct {
	ID               string                 `json:"id"`
	Tool             string                 `json:"tool"`
	ToolUseID        string                 `json:"toolUseId,omitempty"`
	Status           ToolStatus             `json:"status"`
	Input            map[string]interface{} `json:"input,omitempty"`
	Output           string                 `json:"output,omitempty"`
	StartedAt        time.Time              `json:"startedAt"`
	CompletedAt      *time.Time             `json:"completedAt,omitempty"`
	ParentSubagentID string                 `json:"parentSubagentId,omitempty"`
}

// SubagentGroup collects the tool activity of one delegated sub-task.
type SubagentGroup struct {
	ID               string         `json:"id"`
	DelegatingToolID string         `json:"delegatingToolId"`
	Description      string         `json:"description,omitempty"`
	AgentType        string         `json:"agentType,omitempty"`
	Status           SubagentStatus `json:"status"`
	ChildToolIDs     []string       `json:"childToolIds,omitempty"`
	StartedAt        time.Time      `json:"startedAt"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty"`
}

// PendingQuestion is an AskUserQuestion waiting for the user's answer.
type PendingQuestion struct {
	ToolUseID string               `json:"toolUseId"`
	Questions []agentwire.Question `json:"questions"`
}

// PlanModeState is the plan-approval sub-flow embedded in a session. It is
// orthogonal to the main status: approval may still be pending after the
// underlying query completed.
type PlanModeState struct {
	PlanMode        bool                      `json:"planMode"`
	PlanFilePath    string                    `json:"planFilePath,omitempty"`
	PlanContent     string                    `json:"planContent,omitempty"`
	ApprovalPending bool                      `json:"approvalPending"`
	ApprovedPrompts []agentwire.AllowedPrompt `json:"approvedPrompts,omitempty"`
	PendingQuestion *PendingQuestion          `json:"pendingQuestion,omitempty"`
}

// Session is one independent agent conversation. Owned exclusively by the
// Registry; callers hold the ID and go through registry operations.
type Session struct {
	ID             string           `json:"id"`
	QueryID        string           `json:"queryId,omitempty"`
	ConversationID string           `json:"conversationId,omitempty"`
	Status         Status           `json:"status"`
	Messages       []*Message       `json:"messages"`
	Tools          []*ToolExecution `json:"tools,omitempty"`
	Subagents      []*SubagentGroup `json:"subagents,omitempty"`
	SlashCommands  []string         `json:"slashCommands,omitempty"`
	Error          string           `json:"error,omitempty"`
	Plan           PlanModeState    `json:"plan"`
	CreatedAt      time.Time        `json:"createdAt"`

	// Private orchestration state, never exposed to readers.
	corr           *agentwire.CorrelationTable
	pendingTools   map[string]string // correlation key -> ToolExecution.ID
	toolsByID      map[string]*ToolExecution
	activeSubagent string
	blockSeq       uint64
	cancel         func()
}

// nextOrder advances the session's block sequencer and returns the new
// order value. Strictly increasing for the session's lifetime.
func (s *Session) nextOrder() uint64 {
	s.blockSeq++
	return s.blockSeq
}

// lastMessage returns the trailing message, or nil.
func (s *Session) lastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// ToolByID returns the tool execution with the given id, or nil.
func (s *Session) ToolByID(id string) *ToolExecution {
	return s.toolsByID[id]
}

// ActiveSubagent returns the currently open subagent group, or nil.
func (s *Session) ActiveSubagent() *SubagentGroup {
	if s.activeSubagent == "" {
		return nil
	}
	for _, g := range s.Subagents {
		if g.ID == s.activeSubagent {
			return g
		}
	}
	return nil
}
