package worker

import (
	"os"
	"os/exec"
)

var (
	terminateSignal = os.Kill
	killSignal      = os.Kill
)

func initCmd(cmd *exec.Cmd) {
	// No-op on Windows.
}

func (p *proc) sendSignal(os.Signal) error {
	return p.cmd.Process.Kill()
}
