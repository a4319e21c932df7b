package agentwire

// Input parsing for the two interactive tools that carry extra semantics:
// AskUserQuestion (a list of question records) and ExitPlanMode (a proposed
// plan plus permission requests). Both inputs arrive as the generic
// map[string]interface{} tool input, so parsing is tolerant of missing or
// mistyped fields.

// ParseQuestions extracts question records from an AskUserQuestion input.
func ParseQuestions(input map[string]interface{}) []Question {
	raw, ok := input["questions"].([]interface{})
	if !ok {
		return nil
	}

	questions := make([]Question, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		q := Question{
			Header:   stringField(m, "header"),
			Question: stringField(m, "question"),
		}
		if ms, ok := m["multiSelect"].(bool); ok {
			q.MultiSelect = ms
		}
		if opts, ok := m["options"].([]interface{}); ok {
			for _, opt := range opts {
				switch o := opt.(type) {
				case string:
					q.Options = append(q.Options, o)
				case map[string]interface{}:
					// Options may be {label: ...} objects in newer bridges.
					if label := stringField(o, "label"); label != "" {
						q.Options = append(q.Options, label)
					}
				}
			}
		}
		questions = append(questions, q)
	}
	return questions
}

// PlanInfo is the parsed input of an ExitPlanMode invocation.
type PlanInfo struct {
	Plan           string
	PlanFilePath   string
	AllowedPrompts []AllowedPrompt
}

// ParsePlanInfo extracts the proposed plan and its permission requests
// from an ExitPlanMode input.
func ParsePlanInfo(input map[string]interface{}) PlanInfo {
	info := PlanInfo{
		Plan:         stringField(input, "plan"),
		PlanFilePath: stringField(input, "planFilePath"),
	}

	raw, ok := input["allowedPrompts"].([]interface{})
	if !ok {
		return info
	}
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		info.AllowedPrompts = append(info.AllowedPrompts, AllowedPrompt{
			Tool:   stringField(m, "tool"),
			Prompt: stringField(m, "prompt"),
		})
	}
	return info
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
