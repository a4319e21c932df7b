// Package history reads persisted agent transcripts from the host's
// per-project store under $HOME/.claude/projects.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// maxEntries caps how many sessions a listing returns.
const maxEntries = 50

// SessionEntry is one row of the persisted session index.
type SessionEntry struct {
	SessionID    string `json:"sessionId"`
	FirstPrompt  string `json:"firstPrompt"`
	MessageCount int    `json:"messageCount"`
	Created      string `json:"created"`
	Modified     string `json:"modified"`
}

type sessionsIndex struct {
	Entries []SessionEntry `json:"entries"`
}

// IndexFileName is the index file the host maintains per project.
const IndexFileName = "sessions-index.json"

// ProjectDir returns the host's storage directory for a workspace. The
// workspace path doubles as the directory name with separators flattened.
func ProjectDir(workspace string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	sanitized := strings.ReplaceAll(workspace, "/", "-")
	return filepath.Join(home, ".claude", "projects", sanitized), nil
}

// ListSessions returns the workspace's persisted sessions, most recently
// modified first, capped at 50. A workspace with no history yields an
// empty list, not an error.
func ListSessions(workspace string) ([]SessionEntry, error) {
	dir, err := ProjectDir(workspace)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, IndexFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session index: %w", err)
	}

	var index sessionsIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse session index: %w", err)
	}

	entries := index.Entries
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Modified > entries[j].Modified
	})
	if len(entries) > maxEntries {
		entries = entries[:maxEntries]
	}
	return entries, nil
}
