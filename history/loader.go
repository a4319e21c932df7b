package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/FujiwaraChoki/mensa-sub000/agentwire"
	"github.com/FujiwaraChoki/mensa-sub000/session"
)

// Transcript is one fully replayed session: messages in display order plus
// the tool executions their blocks reference.
type Transcript struct {
	Messages []*session.Message
	Tools    []*session.ToolExecution
}

// ToolByID looks up a replayed tool execution.
func (t *Transcript) ToolByID(id string) *session.ToolExecution {
	for _, exec := range t.Tools {
		if exec.ID == id {
			return exec
		}
	}
	return nil
}

// transcriptLine is one persisted record of a session .jsonl file.
type transcriptLine struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Message   *struct {
		Role    string                    `json:"role"`
		Content agentwire.FlexibleContent `json:"content"`
	} `json:"message"`
}

// LoadMessages replays a persisted transcript with the same grouping rules
// the live stream path uses: consecutive same-role messages merge, blocks
// get a strictly increasing order, tool results correlate back to their
// calls across messages, empty messages and unparsable lines are skipped.
// A missing transcript yields an empty result, not an error.
func LoadMessages(workspace, sessionID string) (*Transcript, error) {
	dir, err := ProjectDir(workspace)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(dir, sessionID+".jsonl"))
	if os.IsNotExist(err) {
		return &Transcript{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	l := &loader{
		transcript: &Transcript{},
		toolIndex:  make(map[string]*session.ToolExecution),
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		l.feed(scanner.Bytes())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return l.transcript, nil
}

type loader struct {
	transcript *Transcript
	toolIndex  map[string]*session.ToolExecution
	anonCount  int
	order      uint64
}

func (l *loader) nextOrder() uint64 {
	l.order++
	return l.order
}

func (l *loader) feed(line []byte) {
	if len(line) == 0 {
		return
	}
	var rec transcriptLine
	if err := json.Unmarshal(line, &rec); err != nil {
		return
	}
	if rec.Type != "user" && rec.Type != "assistant" {
		return
	}
	if rec.Message == nil {
		return
	}

	role := session.Role(rec.Message.Role)
	if role == "" {
		role = session.Role(rec.Type)
	}
	ts := parseTimestamp(rec.Timestamp)

	var (
		texts   []string
		blocks  []session.MessageBlock
		tools   []*session.ToolExecution
		toolIDs []string
	)

	if s, ok := rec.Message.Content.AsString(); ok {
		if strings.TrimSpace(s) != "" {
			texts = append(texts, s)
			blocks = append(blocks, session.MessageBlock{Type: session.BlockText, Content: s, Order: l.nextOrder()})
		}
	} else if fragments, ok := rec.Message.Content.AsFragments(); ok {
		for _, fragment := range fragments {
			switch f := fragment.(type) {
			case agentwire.TextFragment:
				if strings.TrimSpace(f.Text) == "" {
					continue
				}
				texts = append(texts, f.Text)
				blocks = append(blocks, session.MessageBlock{Type: session.BlockText, Content: f.Text, Order: l.nextOrder()})

			case agentwire.ImageFragment:
				if f.Source.Data == "" {
					continue
				}
				mediaType := f.Source.MediaType
				if mediaType == "" {
					mediaType = "image/png"
				}
				blocks = append(blocks, session.MessageBlock{
					Type:      session.BlockImage,
					MediaType: mediaType,
					Data:      f.Source.Data,
					Order:     l.nextOrder(),
				})

			case agentwire.ToolUseFragment:
				if rec.Type != "assistant" {
					continue
				}
				name := f.Name
				if name == "" {
					name = "unknown"
				}
				id := f.ID
				if id == "" {
					l.anonCount++
					id = fmt.Sprintf("tool-%d", l.anonCount)
				}
				exec := &session.ToolExecution{
					ID:        id,
					Tool:      name,
					ToolUseID: f.ID,
					Status:    session.ToolRunning,
					Input:     f.Input,
					StartedAt: ts,
				}
				tools = append(tools, exec)
				toolIDs = append(toolIDs, id)
				blocks = append(blocks, session.MessageBlock{Type: session.BlockTool, ToolID: id, Order: l.nextOrder()})
				if f.ID != "" {
					l.toolIndex[f.ID] = exec
				}

			case agentwire.ToolResultFragment:
				if rec.Type != "user" {
					continue
				}
				l.applyResult(f, ts)
			}
		}
	}

	if len(texts) == 0 && len(tools) == 0 && len(blocks) == 0 {
		return
	}

	content := strings.Join(texts, "\n")

	// Consecutive same-role records render as one message.
	if last := l.lastMessage(); last != nil && last.Role == role {
		if strings.TrimSpace(content) != "" {
			if last.Content != "" {
				last.Content += "\n"
			}
			last.Content += content
		}
		last.Blocks = append(last.Blocks, blocks...)
		last.ToolIDs = append(last.ToolIDs, toolIDs...)
		last.CreatedAt = ts
	} else {
		l.transcript.Messages = append(l.transcript.Messages, &session.Message{
			Role:      role,
			Content:   content,
			Blocks:    blocks,
			ToolIDs:   toolIDs,
			CreatedAt: ts,
		})
	}
	l.transcript.Tools = append(l.transcript.Tools, tools...)
}

func (l *loader) applyResult(f agentwire.ToolResultFragment, ts time.Time) {
	exec, ok := l.toolIndex[f.ToolUseID]
	if !ok {
		return
	}
	exec.Output = f.Content.FlattenText()
	if f.IsError != nil && *f.IsError {
		exec.Status = session.ToolError
	} else {
		exec.Status = session.ToolCompleted
	}
	completed := ts
	exec.CompletedAt = &completed
}

func (l *loader) lastMessage() *session.Message {
	if len(l.transcript.Messages) == 0 {
		return nil
	}
	return l.transcript.Messages[len(l.transcript.Messages)-1]
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
