//go:build unix

package runner

import (
	"os"
	"syscall"
)

// sysProcAttr places the child in its own process group so the whole tree
// can be killed at once.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// killTree terminates the process and every descendant in its group.
func killTree(p *os.Process) {
	if err := syscall.Kill(-p.Pid, syscall.SIGKILL); err != nil {
		p.Kill()
	}
}
