package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/lambda-feedback/agenthost/models"
	"go.uber.org/zap"
)

// stderrTailSize is the number of stderr bytes kept for the exit event.
const stderrTailSize = 4096

type Worker interface {
	Start(context.Context, StartConfig) error
	Write(models.Message) error
	Messages() <-chan models.Message
	Alive() bool
	Pid() int
	Terminate() error
	Kill() error
	Stop(context.Context, StopConfig) (ExitEvent, error)
	Wait(context.Context) (ExitEvent, error)
	WaitFor(context.Context, time.Duration) (ExitEvent, error)
}

// ProcessWorker runs the worker as a child process. Messages are framed
// as one json value per line: written to the process's stdin, and read
// from its stdout. Everything the process writes to stderr is logged.
type ProcessWorker struct {
	processLock sync.Mutex
	process     *proc

	// stopping is set once termination was requested
	stopping atomic.Bool

	messages chan models.Message

	// quit releases the stdout reader once termination was requested
	quit     chan struct{}
	quitOnce sync.Once

	exited    chan struct{}
	exitEvent ExitEvent

	stderr   *tailBuffer
	stderrWg sync.WaitGroup

	writeLock sync.Mutex

	log *zap.Logger
}

var _ Worker = (*ProcessWorker)(nil)

func NewProcessWorker(log *zap.Logger) *ProcessWorker {
	return &ProcessWorker{
		messages: make(chan models.Message, 64),
		quit:     make(chan struct{}),
		exited:   make(chan struct{}),
		stderr:   newTailBuffer(stderrTailSize),
		log:      log.Named("worker"),
	}
}

// Start starts the worker process. The process is killed once ctx is done.
func (w *ProcessWorker) Start(ctx context.Context, config StartConfig) error {
	w.log.With(
		zap.String("command", config.Cmd),
		zap.Strings("args", config.Args),
		zap.String("cwd", config.Cwd),
	).Debug("starting worker process")

	// synchronize access to the process
	w.processLock.Lock()
	defer w.processLock.Unlock()

	// return if the worker is already started
	if w.process != nil {
		return ErrWorkerAlreadyStarted
	}

	// exit early if the context is already cancelled
	if ctx.Err() != nil {
		return fmt.Errorf("failed to start process: %w", ctx.Err())
	}

	process, err := startProc(config, w.log)
	if err != nil {
		return fmt.Errorf("failed to start process: %w", err)
	}

	w.process = process
	w.log = w.log.With(zap.Int("pid", process.pid))

	w.stderrWg.Add(1)
	go w.readStderr(process)

	go w.readStdout(process)

	// wait for the process to terminate and publish the exit event
	go func() {
		err := process.Wait()

		// wait for stderr to be read
		w.stderrWg.Wait()

		w.exitEvent = getExitEvent(err, w.stderr.String())
		close(w.exited)

		log := w.log.With(
			zap.Intp("code", w.exitEvent.Code),
			zap.Intp("signal", w.exitEvent.Signal),
		)

		if w.stopping.Load() {
			log.Debug("worker process exited")
		} else {
			log.Warn("worker process exited unexpectedly",
				zap.String("stderr", w.exitEvent.Stderr))
		}
	}()

	// kill the process without further ado once the context is cancelled
	go func() {
		select {
		case <-process.Done():
		case <-ctx.Done():
			w.release()
			process.Kill(-1)
		}
	}()

	return nil
}

// Messages returns the stream of messages emitted by the worker. The
// channel is closed once the process closes its stdout or termination
// was requested.
func (w *ProcessWorker) Messages() <-chan models.Message {
	return w.messages
}

// Write sends a message to the worker process. It does not wait for the
// worker to read or handle the message.
func (w *ProcessWorker) Write(msg models.Message) error {
	process := w.acquireProcess()
	if process == nil {
		return ErrWorkerNotStarted
	}

	if !w.Alive() {
		return ErrWorkerNotAlive
	}

	if !msg.Valid() {
		return models.ErrInvalidMessage
	}

	w.writeLock.Lock()
	defer w.writeLock.Unlock()

	// one value per line, even if msg spans several
	var frame bytes.Buffer
	if err := json.Compact(&frame, msg); err != nil {
		return models.ErrInvalidMessage
	}
	frame.WriteByte('\n')

	if _, err := process.StdinPipe().Write(frame.Bytes()); err != nil {
		return fmt.Errorf("failed to write to worker: %w", err)
	}

	return nil
}

// Alive reports whether the process was started, has not exited, and
// was not asked to terminate.
func (w *ProcessWorker) Alive() bool {
	if w.acquireProcess() == nil || w.stopping.Load() {
		return false
	}

	select {
	case <-w.exited:
		return false
	default:
		return true
	}
}

// Wait waits for the worker process to exit. If the process has already
// exited, the method returns immediately.
func (w *ProcessWorker) Wait(ctx context.Context) (ExitEvent, error) {
	if w.acquireProcess() == nil {
		return ExitEvent{}, ErrWorkerNotStarted
	}

	select {
	case <-ctx.Done():
		return ExitEvent{}, ctx.Err()
	case <-w.exited:
		return w.exitEvent, nil
	}
}

// WaitFor waits for the worker process to exit. It blocks until the process exits
// or the timeout is reached. A zero timeout waits indefinitely.
func (w *ProcessWorker) WaitFor(
	ctx context.Context,
	deadline time.Duration,
) (ExitEvent, error) {
	var waitCtx context.Context
	var cancel context.CancelFunc

	if deadline <= 0 {
		waitCtx, cancel = context.WithCancel(ctx)
	} else {
		waitCtx, cancel = context.WithTimeout(ctx, deadline)
	}

	defer cancel()

	return w.Wait(waitCtx)
}

// Terminate sends a SIGTERM signal to the worker process group. The method
// returns immediately, without waiting for the process to stop.
func (w *ProcessWorker) Terminate() error {
	process := w.acquireProcess()
	if process == nil {
		return ErrWorkerNotStarted
	}

	w.release()

	return process.Terminate(-1)
}

// Kill sends a SIGKILL signal to the worker process group. The method
// returns immediately, without waiting for the process to stop.
func (w *ProcessWorker) Kill() error {
	process := w.acquireProcess()
	if process == nil {
		return ErrWorkerNotStarted
	}

	w.release()

	return process.Kill(-1)
}

// Stop terminates the worker process and waits for it to exit. If the
// process does not exit within the configured timeout, it is killed.
func (w *ProcessWorker) Stop(ctx context.Context, config StopConfig) (ExitEvent, error) {
	if err := w.Terminate(); err != nil {
		return ExitEvent{}, err
	}

	evt, err := w.WaitFor(ctx, config.Timeout)
	if err == nil {
		return evt, nil
	}

	if !errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return evt, err
	}

	w.log.Warn("worker did not terminate in time, killing",
		zap.Duration("timeout", config.Timeout))

	if err := w.Kill(); err != nil {
		return ExitEvent{}, err
	}

	return w.Wait(ctx)
}

func (w *ProcessWorker) Pid() int {
	if process := w.acquireProcess(); process != nil {
		return process.pid
	}

	return 0
}

// acquireProcess returns the worker process. The method is thread-safe.
func (w *ProcessWorker) acquireProcess() *proc {
	w.processLock.Lock()
	defer w.processLock.Unlock()

	return w.process
}

// release marks the worker as stopping and unblocks the stdout reader.
func (w *ProcessWorker) release() {
	w.stopping.Store(true)
	w.quitOnce.Do(func() {
		close(w.quit)
	})
}

// readStdout frames the worker output by line. Lines that are not a
// json value are logged and skipped.
func (w *ProcessWorker) readStdout(process *proc) {
	defer close(w.messages)

	stdout := process.StdoutPipe()
	defer stdout.Close()

	reader := bufio.NewReader(stdout)

	for {
		line, err := reader.ReadBytes('\n')

		if line = bytes.TrimSpace(line); len(line) > 0 {
			if !json.Valid(line) {
				w.log.Warn("dropping non-json worker output", zap.ByteString("line", truncate(line, 256)))
			} else {
				select {
				case w.messages <- models.Message(line):
				case <-w.quit:
					// keep the pipe drained, so the process never blocks on stdout
					_, _ = io.Copy(io.Discard, reader)
					return
				}
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, os.ErrClosed) {
				w.log.Error("failed to read worker output", zap.Error(err))
			}
			return
		}
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

func (w *ProcessWorker) readStderr(process *proc) {
	defer w.stderrWg.Done()

	log := w.log.Named("stderr")

	scanner := bufio.NewScanner(process.StderrPipe())
	for scanner.Scan() {
		line := scanner.Text()
		w.stderr.WriteLine(line)
		log.Info(line)
	}

	if err := scanner.Err(); err != nil {
		log.Debug("failed to read from stderr", zap.Error(err))
	}
}

// MARK: - Helpers

func getExitEvent(err error, stderr string) ExitEvent {
	var cell int
	var exitStatus *int
	var signo *int

	if err == nil {
		// the process exited successfully, set the exit code to 0
		exitStatus = &cell
	} else if exitError, ok := err.(*exec.ExitError); ok {
		// the process exited with an error
		if status, ok := exitError.Sys().(syscall.WaitStatus); ok {
			if code := status.ExitStatus(); code >= 0 {
				// the process exited with an exit code
				cell = code
				exitStatus = &cell
			} else {
				// the process was terminated by a signal
				cell = int(status.Signal())
				signo = &cell
			}
		}
	}

	if signo == nil && exitStatus == nil {
		// could not determine the exit status or signal,
		// set exit status to 1
		cell = 1
		exitStatus = &cell
	}

	return ExitEvent{
		Code:   exitStatus,
		Signal: signo,
		Stderr: stderr,
	}
}
