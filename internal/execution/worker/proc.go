package worker

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

type proc struct {
	pid  int
	cmd  *exec.Cmd
	done chan struct{}
	err  error

	stdout io.ReadCloser
	stderr io.ReadCloser
	stdin  io.WriteCloser

	log *zap.Logger
}

func startProc(config StartConfig, log *zap.Logger) (*proc, error) {
	cmd := exec.Command(config.Cmd, config.Args...)

	cmd.Env = os.Environ()
	for k, v := range config.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	if config.Cwd != "" {
		cmd.Dir = config.Cwd
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}

	// stdout and stderr are plain os pipes, so that cmd.Wait does not
	// close the read ends before everything written has been consumed.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, err
	}

	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	initCmd(cmd)

	err = cmd.Start()

	// the child owns the write ends now
	stdoutW.Close()
	stderrW.Close()

	if err != nil {
		stdin.Close()
		stdoutR.Close()
		stderrR.Close()
		return nil, err
	}

	process := &proc{
		pid:    cmd.Process.Pid,
		cmd:    cmd,
		done:   make(chan struct{}),
		stdout: stdoutR,
		stderr: stderrR,
		stdin:  stdin,
		log:    log.Named("proc").With(zap.Int("pid", cmd.Process.Pid)),
	}

	go func() {
		// block until the process exits, then publish the result
		process.err = cmd.Wait()
		close(process.done)
	}()

	return process, nil
}

// Terminate asks the process group to stop and waits up to timeout
// for the process to exit. A negative timeout does not wait at all.
func (p *proc) Terminate(timeout time.Duration) error {
	// terminate should report success if the process terminated
	// by the time supervisor receives the request.
	if p.exited() {
		p.log.Debug("process already terminated")
		return nil
	}

	p.signal(terminateSignal)

	return p.waitForTermination(timeout)
}

// Kill kills the process group and waits up to timeout for the
// process to exit. A negative timeout does not wait at all.
func (p *proc) Kill(timeout time.Duration) error {
	if p.exited() {
		p.log.Debug("process already terminated")
		return nil
	}

	p.signal(killSignal)

	return p.waitForTermination(timeout)
}

// Wait blocks until the process exits and returns its exit error.
func (p *proc) Wait() error {
	<-p.done
	return p.err
}

// Done is closed once the process has exited and was reaped.
func (p *proc) Done() <-chan struct{} {
	return p.done
}

func (p *proc) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *proc) waitForTermination(timeout time.Duration) error {
	// if timeout is < 0, don't wait for the process to exit
	if timeout < 0 {
		return nil
	}

	// if timeout is 0, wait indefinitely
	if timeout == 0 {
		<-p.done
		return nil
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(timeout):
		return ErrKillTimeout
	}
}

func (p *proc) signal(sig os.Signal) {
	log := p.log.With(zap.Stringer("signal", sig))

	// close stdin before signalling the process, to
	// avoid the process hanging on input
	if err := p.stdin.Close(); err != nil {
		log.Debug("close stdin failed", zap.Error(err))
	}

	log.Debug("sending signal")

	// best effort, ignore errors
	if err := p.sendSignal(sig); err != nil {
		log.Debug("signal failed", zap.Error(err))
	}
}

// StdinPipe returns the write end of the process's standard input.
func (p *proc) StdinPipe() io.WriteCloser {
	return p.stdin
}

// StdoutPipe returns the read end of the process's standard output.
func (p *proc) StdoutPipe() io.ReadCloser {
	return p.stdout
}

// StderrPipe returns the read end of the process's standard error.
func (p *proc) StderrPipe() io.ReadCloser {
	return p.stderr
}
