//go:build !windows

package worker

import (
	"os"
	"os/exec"
	"syscall"
)

var (
	terminateSignal os.Signal = syscall.SIGTERM
	killSignal      os.Signal = syscall.SIGKILL
)

func initCmd(cmd *exec.Cmd) {
	// run the worker in its own process group, so that signals reach
	// grandchildren too (e.g. the binary started by `go run`)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func (p *proc) sendSignal(sig os.Signal) error {
	signal, ok := sig.(syscall.Signal)
	if !ok {
		return p.cmd.Process.Signal(sig)
	}

	if pgid, err := syscall.Getpgid(p.pid); err == nil {
		// Negative pid sends signal to all in process group
		return syscall.Kill(-pgid, signal)
	}

	return syscall.Kill(p.pid, signal)
}
