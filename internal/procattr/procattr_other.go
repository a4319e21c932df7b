//go:build !linux

// Package procattr provides platform-specific subprocess configuration
// so bridge processes never outlive the application.
package procattr

import (
	"os/exec"
	"syscall"
)

// Set configures a process group for the bridge subprocess. Pdeathsig is
// Linux-only; Setpgid still enables kill -<signal> -<pgid> cleanup by the
// parent.
func Set(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
