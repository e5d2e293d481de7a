package worker

import (
	"errors"
	"time"
)

var (
	ErrKillTimeout          = errors.New("kill timeout")
	ErrWorkerNotStarted     = errors.New("worker not started")
	ErrWorkerAlreadyStarted = errors.New("worker already started")
	ErrWorkerNotAlive       = errors.New("worker not alive")
)

type StartConfig struct {
	// Cmd is the path or name of the binary to execute
	Cmd string `conf:"cmd"`

	// Cwd is the working directory in which
	// the binary should be executed
	Cwd string `conf:"cwd"`

	// Args is the list of arguments to pass to the command
	Args []string `conf:"args"`

	// Env is a map of environment variables to set in
	// addition to the environment of the host process
	Env map[string]string `conf:"env"`
}

type StopConfig struct {
	// Timeout is the duration to wait for the worker to exit after
	// SIGTERM before it is killed. Zero waits indefinitely.
	Timeout time.Duration `conf:"timeout"`
}

type ExitEvent struct {
	// Code is the exit code of the process
	Code *int

	// Signal is the signal that caused the process to exit
	Signal *int

	// Stderr is the tail of the stderr output of the process
	Stderr string
}
