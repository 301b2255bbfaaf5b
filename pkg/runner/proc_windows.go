//go:build windows

package runner

import (
	"os"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}

// killTree terminates the process. Descendants are not tracked on Windows;
// build tool children exit with the broken pipe.
func killTree(p *os.Process) {
	p.Kill()
}
