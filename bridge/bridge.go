// Package bridge runs queries through the Node bridge script that wraps
// the agent SDK. One process per query; stdout, stderr and the exit code
// are published to shared broadcast feeds tagged with the query id.
package bridge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FujiwaraChoki/mensa-sub000/dispatch"
	"github.com/FujiwaraChoki/mensa-sub000/internal/procattr"
)

// Long JSON lines are common; a single assistant message with inline tool
// output can run to megabytes.
const maxLineBytes = 4 * 1024 * 1024

// Config configures the bridge transport.
type Config struct {
	// NodeBinary is the runtime to launch the script with. Defaults to
	// "node" from PATH.
	NodeBinary string

	// ScriptPath points at the bridge script. When empty the script is
	// discovered next to the executable and under the user config dir.
	ScriptPath string

	Log *zap.Logger
}

// Bridge implements dispatch.Transport by spawning the bridge script per
// query.
type Bridge struct {
	nodeBin string
	script  string
	log     *zap.Logger

	mu         sync.Mutex
	resolved   string
	procs      map[string]*proc
	stdoutSubs map[int]chan dispatch.Line
	stderrSubs map[int]chan dispatch.Line
	doneSubs   map[int]chan dispatch.Completion
	nextSub    int
}

type proc struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// New creates a bridge transport.
func New(cfg Config) *Bridge {
	b := &Bridge{
		nodeBin:    cfg.NodeBinary,
		script:     cfg.ScriptPath,
		log:        cfg.Log,
		procs:      make(map[string]*proc),
		stdoutSubs: make(map[int]chan dispatch.Line),
		stderrSubs: make(map[int]chan dispatch.Line),
		doneSubs:   make(map[int]chan dispatch.Completion),
	}
	if b.nodeBin == "" {
		b.nodeBin = "node"
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	return b
}

// StartQuery spawns one bridge process and begins publishing its output.
func (b *Bridge) StartQuery(ctx context.Context, req dispatch.StartRequest) (string, error) {
	info, err := os.Stat(req.Workspace)
	if err != nil {
		return "", fmt.Errorf("workspace %q: %w", req.Workspace, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("workspace %q is not a directory", req.Workspace)
	}

	script, err := b.resolveScript()
	if err != nil {
		return "", err
	}

	queryID := uuid.NewString()

	args := []string{script, "--cwd", req.Workspace, "--prompt", req.Prompt}
	if req.ConfigJSON != "" {
		args = append(args, "--config", req.ConfigJSON)
	}
	if req.ResumeID != "" {
		args = append(args, "--resume", req.ResumeID)
	}
	if req.HasAttachments {
		args = append(args, "--has-attachments")
	}

	cmd := exec.CommandContext(ctx, b.nodeBin, args...)
	cmd.Dir = req.Workspace
	procattr.Set(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start bridge process: %w", err)
	}

	p := &proc{cmd: cmd, done: make(chan struct{})}
	b.mu.Lock()
	b.procs[queryID] = p
	b.mu.Unlock()

	b.log.Debug("bridge process started",
		zap.String("query_id", queryID),
		zap.Int("pid", cmd.Process.Pid),
		zap.String("workspace", req.Workspace))

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		b.pumpLines(stdout, queryID, b.publishStdout)
	}()
	go func() {
		defer readers.Done()
		b.pumpLines(stderr, queryID, b.publishStderr)
	}()
	go func() {
		readers.Wait()
		err := cmd.Wait()
		code := exitCode(cmd, err)

		b.mu.Lock()
		delete(b.procs, queryID)
		b.mu.Unlock()
		close(p.done)

		b.log.Debug("bridge process exited",
			zap.String("query_id", queryID),
			zap.Int("code", code))
		b.publishCompletion(queryID, code)
	}()

	return queryID, nil
}

// CancelQuery interrupts the process group for a running query and
// escalates to SIGKILL when it ignores the interrupt past the context
// deadline.
func (b *Bridge) CancelQuery(ctx context.Context, queryID string) error {
	b.mu.Lock()
	p, ok := b.procs[queryID]
	b.mu.Unlock()
	if !ok {
		return dispatch.ErrQueryNotFound
	}

	_ = procattr.SignalGroup(p.cmd.Process, syscall.SIGINT)

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		_ = procattr.KillGroup(p.cmd.Process)
		return ctx.Err()
	}
}

func (b *Bridge) pumpLines(r io.Reader, queryID string, publish func(string, string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		publish(queryID, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		b.log.Debug("bridge read ended", zap.String("query_id", queryID), zap.Error(err))
	}
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		if code := cmd.ProcessState.ExitCode(); code >= 0 {
			return code
		}
		// Killed by signal.
		return 1
	}
	if err != nil {
		return 1
	}
	return 0
}

// resolveScript locates the bridge script once and caches the result.
func (b *Bridge) resolveScript() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.resolved != "" {
		return b.resolved, nil
	}

	candidates := b.scriptCandidates()
	for _, path := range candidates {
		if path == "" {
			continue
		}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			b.resolved = path
			return path, nil
		}
	}
	return "", fmt.Errorf("bridge script not found (looked in %v): %w", candidates, os.ErrNotExist)
}

func (b *Bridge) scriptCandidates() []string {
	if b.script != "" {
		return []string{b.script}
	}
	candidates := []string{os.Getenv("MENSA_BRIDGE_SCRIPT")}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "claude-query.mjs"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".mensa", "claude-query.mjs"))
	}
	return candidates
}
