package agentwire

import "log/slog"

// Classify converts one raw wire line into zero or more domain events.
//
// It is pure apart from the correlation table handed in by the owning
// session: tool_use fragments register their invocation id there, and
// tool_result consumption pops the matching entry (one-shot correlation).
// The table must belong to the session whose stream produced the line;
// sharing a table across sessions misattributes results.
//
// Lines that are not valid JSON degrade to a single text event carrying
// the raw line plus a trailing newline, with no table mutation.
func Classify(line []byte, table *CorrelationTable) []Event {
	record, err := ParseRecord(line)
	if err != nil {
		return []Event{{Type: EventText, Content: string(line) + "\n"}}
	}
	if record == nil {
		return nil
	}

	switch r := record.(type) {
	case AssistantRecord:
		return classifyAssistant(r, table)
	case UserRecord:
		return classifyUser(r, table)
	case ToolCallRecord:
		return classifyToolUse(r.ID, r.Name, r.Input, table)
	case ToolResultRecord:
		return []Event{classifyToolResult(r.ToolUseID, r.ToolName, r.Content.FlattenText(), r.IsError, table)}
	case SystemRecord:
		return classifySystem(r)
	case ErrorRecord:
		return []Event{{Type: EventError, Err: r.Text()}}
	case ResultRecord:
		if r.Failed() {
			return []Event{{Type: EventError, SessionID: r.SessionID, Err: r.Result}}
		}
		// Success results are discarded: the streamed assistant text is
		// authoritative, re-emitting it would duplicate output.
		return nil
	case DoneRecord:
		return []Event{{Type: EventDone}}
	default:
		slog.Debug("skipping unclassified record", "type", record.RecordType())
		return nil
	}
}

func classifyAssistant(r AssistantRecord, table *CorrelationTable) []Event {
	if s, ok := r.Message.Content.AsString(); ok {
		if s == "" {
			return nil
		}
		return []Event{{Type: EventText, SessionID: r.SessionID, Content: s}}
	}

	fragments, ok := r.Message.Content.AsFragments()
	if !ok {
		return nil
	}

	var events []Event
	for _, frag := range fragments {
		switch f := frag.(type) {
		case TextFragment:
			if f.Text != "" {
				events = append(events, Event{Type: EventText, SessionID: r.SessionID, Content: f.Text})
			}
		case ToolUseFragment:
			events = append(events, classifyToolUse(f.ID, f.Name, f.Input, table)...)
		}
	}
	return events
}

// classifyToolUse emits the generic tool_use event and, for the two
// interactive tools, the additional semantic event. The generic event
// always comes first so generic tool UIs keep working.
func classifyToolUse(id, name string, input map[string]interface{}, table *CorrelationTable) []Event {
	table.Register(id, name)

	events := []Event{{
		Type: EventToolUse,
		Tool: &ToolInfo{ID: id, Name: name, Input: input},
	}}

	tool, _ := KnownTool(name)
	switch tool {
	case ToolAskUserQuestion:
		events = append(events, Event{
			Type:      EventAskUserQuestion,
			ToolUseID: id,
			Questions: ParseQuestions(input),
		})
	case ToolExitPlanMode:
		info := ParsePlanInfo(input)
		events = append(events, Event{
			Type:           EventExitPlanMode,
			ToolUseID:      id,
			PlanContent:    info.Plan,
			PlanFilePath:   info.PlanFilePath,
			AllowedPrompts: info.AllowedPrompts,
		})
	}
	return events
}

func classifyUser(r UserRecord, table *CorrelationTable) []Event {
	fragments, ok := r.Message.Content.AsFragments()
	if !ok {
		return nil
	}

	var events []Event
	for _, frag := range fragments {
		f, ok := frag.(ToolResultFragment)
		if !ok {
			continue
		}
		isError := f.IsError != nil && *f.IsError
		ev := classifyToolResult(f.ToolUseID, "", f.Content.FlattenText(), isError, table)
		ev.SessionID = r.SessionID
		events = append(events, ev)
	}
	return events
}

// classifyToolResult resolves the tool name: an explicit field wins, else
// the correlation table entry for the invocation id (consumed on use),
// else "unknown". The result is delivered either way, never dropped.
func classifyToolResult(toolUseID, explicitName, result string, isError bool, table *CorrelationTable) Event {
	name := explicitName
	if name == "" {
		if resolved, ok := table.Pop(toolUseID); ok {
			name = resolved
		} else {
			name = "unknown"
		}
	} else {
		table.Pop(toolUseID)
	}

	return Event{
		Type: EventToolResult,
		Tool: &ToolInfo{ID: toolUseID, Name: name, Result: result, IsError: isError},
	}
}

func classifySystem(r SystemRecord) []Event {
	if r.Subtype != "init" {
		return nil
	}
	if len(r.SlashCommands) == 0 && r.SessionID == "" {
		return nil
	}
	return []Event{{
		Type:          EventSystemInit,
		SessionID:     r.SessionID,
		SlashCommands: r.SlashCommands,
	}}
}
