//go:build linux

// Package procattr provides platform-specific subprocess configuration
// so bridge processes never outlive the application.
package procattr

import (
	"os/exec"
	"syscall"
)

// Set configures process group and parent-death signal for the bridge
// subprocess. On Linux, Pdeathsig delivers SIGTERM to the child when the
// parent dies without cleanup (OOM kill, SIGKILL).
func Set(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
