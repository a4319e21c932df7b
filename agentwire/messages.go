package agentwire

import (
	"encoding/json"
	"fmt"
)

// RecordType discriminates between wire record kinds.
type RecordType string

const (
	RecordTypeSystem     RecordType = "system"
	RecordTypeAssistant  RecordType = "assistant"
	RecordTypeUser       RecordType = "user"
	RecordTypeToolCall   RecordType = "tool_call"
	RecordTypeToolResult RecordType = "tool_result"
	RecordTypeError      RecordType = "error"
	RecordTypeResult     RecordType = "result"
	RecordTypeDone       RecordType = "done"
)

// Record is the interface for all wire records.
type Record interface {
	RecordType() RecordType
}

// SystemRecord carries session initialization and other system events.
type SystemRecord struct {
	Type           RecordType `json:"type"`
	Subtype        string     `json:"subtype"`
	SessionID      string     `json:"session_id,omitempty"`
	Model          string     `json:"model,omitempty"`
	CWD            string     `json:"cwd,omitempty"`
	PermissionMode string     `json:"permissionMode,omitempty"`
	Tools          []string   `json:"tools,omitempty"`
	SlashCommands  []string   `json:"slash_commands,omitempty"`
}

// RecordType returns the record type.
func (r SystemRecord) RecordType() RecordType { return RecordTypeSystem }

// MessageBody is the inner content of assistant/user records.
type MessageBody struct {
	Role    string          `json:"role"`
	Content FlexibleContent `json:"content"`
}

// AssistantRecord is a complete message from the agent.
type AssistantRecord struct {
	Type      RecordType  `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Message   MessageBody `json:"message"`
}

// RecordType returns the record type.
func (r AssistantRecord) RecordType() RecordType { return RecordTypeAssistant }

// UserRecord carries tool results echoed back by the agent runtime.
type UserRecord struct {
	Type      RecordType  `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Message   MessageBody `json:"message"`
}

// RecordType returns the record type.
func (r UserRecord) RecordType() RecordType { return RecordTypeUser }

// ToolCallRecord is the flattened single-event tool invocation form used
// by some transports instead of an assistant content fragment.
type ToolCallRecord struct {
	Type  RecordType             `json:"type"`
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input,omitempty"`
}

// RecordType returns the record type.
func (r ToolCallRecord) RecordType() RecordType { return RecordTypeToolCall }

// ToolResultRecord is the flattened single-event tool result form.
type ToolResultRecord struct {
	Type      RecordType      `json:"type"`
	ToolUseID string          `json:"tool_use_id"`
	ToolName  string          `json:"tool_name,omitempty"`
	Content   FlexibleContent `json:"content"`
	IsError   bool            `json:"is_error,omitempty"`
}

// RecordType returns the record type.
func (r ToolResultRecord) RecordType() RecordType { return RecordTypeToolResult }

// ErrorRecord is an explicit error container.
type ErrorRecord struct {
	Type    RecordType `json:"type"`
	Message string     `json:"message,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// RecordType returns the record type.
func (r ErrorRecord) RecordType() RecordType { return RecordTypeError }

// Text returns the best available error text.
func (r ErrorRecord) Text() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Error
}

// ResultRecord contains turn completion metrics. A subtype signalling
// failure carries the error text in Result.
type ResultRecord struct {
	Type       RecordType `json:"type"`
	Subtype    string     `json:"subtype"`
	SessionID  string     `json:"session_id,omitempty"`
	Result     string     `json:"result,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
	NumTurns   int        `json:"num_turns,omitempty"`
	DurationMs int64      `json:"duration_ms,omitempty"`
}

// RecordType returns the record type.
func (r ResultRecord) RecordType() RecordType { return RecordTypeResult }

// Failed reports whether the result signals a failed turn.
func (r ResultRecord) Failed() bool {
	return r.IsError || r.Subtype == "error" || r.Subtype == "error_during_execution"
}

// DoneRecord is the terminal marker for a query's stream.
type DoneRecord struct {
	Type RecordType `json:"type"`
	Code int        `json:"code,omitempty"`
}

// RecordType returns the record type.
func (r DoneRecord) RecordType() RecordType { return RecordTypeDone }

// rawRecord is used for initial type discrimination.
type rawRecord struct {
	Type    RecordType `json:"type"`
	Subtype string     `json:"subtype,omitempty"`
}

// ParseRecord parses a raw JSON line into a typed wire record.
// Unknown record types return (nil, nil); malformed JSON returns an error
// so callers can degrade to plain text.
func ParseRecord(line []byte) (Record, error) {
	var raw rawRecord
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("parse record type: %w", err)
	}

	switch raw.Type {
	case RecordTypeSystem:
		var r SystemRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("parse system record: %w", err)
		}
		return r, nil

	case RecordTypeAssistant:
		var r AssistantRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("parse assistant record: %w", err)
		}
		return r, nil

	case RecordTypeUser:
		var r UserRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("parse user record: %w", err)
		}
		return r, nil

	case RecordTypeToolCall:
		var r ToolCallRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("parse tool_call record: %w", err)
		}
		return r, nil

	case RecordTypeToolResult:
		var r ToolResultRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("parse tool_result record: %w", err)
		}
		return r, nil

	case RecordTypeError:
		var r ErrorRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("parse error record: %w", err)
		}
		return r, nil

	case RecordTypeResult:
		var r ResultRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("parse result record: %w", err)
		}
		return r, nil

	case RecordTypeDone:
		var r DoneRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("parse done record: %w", err)
		}
		return r, nil

	default:
		// Unknown record types are silently skipped.
		return nil, nil
	}
}
