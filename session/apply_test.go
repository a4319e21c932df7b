package session

import (
	"testing"

	"github.com/FujiwaraChoki/mensa-sub000/agentwire"
)

func TestApply_TextAndTools(t *testing.T) {
	r := NewRegistry()
	s := r.Create()
	r.BindQuery(s.ID, "q1", nil)

	r.Apply(agentwire.Event{Type: agentwire.EventText, QueryID: "q1", Content: "Reading "})
	r.Apply(agentwire.Event{Type: agentwire.EventToolUse, QueryID: "q1", Tool: &agentwire.ToolInfo{
		ID:    "t1",
		Name:  "Read",
		Input: map[string]interface{}{"file_path": "main.go"},
	}})
	r.Apply(agentwire.Event{Type: agentwire.EventText, QueryID: "q1", Content: "the file"})
	r.Apply(agentwire.Event{Type: agentwire.EventToolResult, QueryID: "q1", Tool: &agentwire.ToolInfo{
		ID:     "t1",
		Result: "package main",
	}})
	r.Apply(agentwire.Event{Type: agentwire.EventDone, QueryID: "q1"})

	if s.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", s.Status)
	}
	if len(s.Tools) != 1 {
		t.Fatalf("expected 1 tool execution, got %d", len(s.Tools))
	}
	exec := s.Tools[0]
	if exec.Status != ToolCompleted || exec.Output != "package main" {
		t.Errorf("expected result applied, got %+v", exec)
	}
	msg := s.Messages[0]
	if len(msg.Blocks) != 3 {
		t.Fatalf("expected text/tool/text blocks, got %d", len(msg.Blocks))
	}
	if msg.Content != "Reading the file" {
		t.Errorf("unexpected cumulative content %q", msg.Content)
	}
}

func TestApply_OrphanResultCreatesExecution(t *testing.T) {
	r := NewRegistry()
	s := r.Create()
	r.BindQuery(s.ID, "q1", nil)

	// Result with no preceding tool_use still lands as a completed
	// execution instead of being dropped.
	r.Apply(agentwire.Event{Type: agentwire.EventToolResult, QueryID: "q1", Tool: &agentwire.ToolInfo{
		Name:    "Bash",
		Result:  "exit 1",
		IsError: true,
	}})

	if len(s.Tools) != 1 {
		t.Fatalf("expected orphan execution, got %d", len(s.Tools))
	}
	if s.Tools[0].Status != ToolError || s.Tools[0].Output != "exit 1" {
		t.Errorf("expected error execution, got %+v", s.Tools[0])
	}
}

func TestApply_SystemInit(t *testing.T) {
	r := NewRegistry()
	s := r.Create()
	r.BindQuery(s.ID, "q1", nil)

	r.Apply(agentwire.Event{
		Type:          agentwire.EventSystemInit,
		QueryID:       "q1",
		SessionID:     "conv-42",
		SlashCommands: []string{"/compact", "/review"},
	})

	if s.ConversationID != "conv-42" {
		t.Errorf("expected conversation id recorded, got %q", s.ConversationID)
	}
	if len(s.SlashCommands) != 2 {
		t.Errorf("expected slash commands recorded, got %v", s.SlashCommands)
	}
}

func TestApply_ErrorThenDone(t *testing.T) {
	r := NewRegistry()
	s := r.Create()
	r.BindQuery(s.ID, "q1", nil)

	r.Apply(agentwire.Event{Type: agentwire.EventError, QueryID: "q1", Err: "rate limited"})
	if s.Status != StatusStreaming {
		t.Fatalf("error alone must not terminate the session, got %s", s.Status)
	}

	r.Apply(agentwire.Event{Type: agentwire.EventDone, QueryID: "q1"})
	if s.Status != StatusError {
		t.Fatalf("expected error status at completion, got %s", s.Status)
	}
	if s.Error != "rate limited" {
		t.Errorf("expected error text preserved, got %q", s.Error)
	}
}

func TestApply_PlanProposal(t *testing.T) {
	r := NewRegistry()
	s := r.Create()
	r.BindQuery(s.ID, "q1", nil)

	r.Apply(agentwire.Event{
		Type:         agentwire.EventExitPlanMode,
		QueryID:      "q1",
		ToolUseID:    "t1",
		PlanContent:  "1. do it",
		PlanFilePath: "/tmp/plan.md",
		AllowedPrompts: []agentwire.AllowedPrompt{
			{Tool: "Bash", Prompt: "go run ."},
		},
	})

	if !s.Plan.ApprovalPending || s.Plan.PlanContent != "1. do it" {
		t.Errorf("expected plan proposal recorded, got %+v", s.Plan)
	}
}

func TestApply_Question(t *testing.T) {
	r := NewRegistry()
	s := r.Create()
	r.BindQuery(s.ID, "q1", nil)

	r.Apply(agentwire.Event{
		Type:      agentwire.EventAskUserQuestion,
		QueryID:   "q1",
		ToolUseID: "t1",
		Questions: []agentwire.Question{{Question: "Which one?", Options: []string{"a", "b"}}},
	})

	pq := s.Plan.PendingQuestion
	if pq == nil || pq.ToolUseID != "t1" || len(pq.Questions) != 1 {
		t.Fatalf("expected pending question, got %+v", pq)
	}
}

func TestApply_Cancelled(t *testing.T) {
	r := NewRegistry()
	s := r.Create()
	r.BindQuery(s.ID, "q1", nil)
	r.Apply(agentwire.Event{Type: agentwire.EventToolUse, QueryID: "q1", Tool: &agentwire.ToolInfo{ID: "t1", Name: "Bash"}})

	r.Apply(agentwire.Event{Type: agentwire.EventCancelled, QueryID: "q1"})

	if s.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", s.Status)
	}
	if s.Tools[0].Status != ToolError {
		t.Errorf("expected running tool forced terminal, got %+v", s.Tools[0])
	}
}
