package supervisor

import (
	"github.com/lambda-feedback/agenthost/internal/execution/worker"
)

// StopConfig describes the configuration for stopping the worker.
type StopConfig = worker.StopConfig

// EntryConfig describes how the worker process is launched in each mode.
type EntryConfig struct {
	// Source is the directory holding the worker's source code. In
	// development mode the worker is run from, and watched in, here.
	Source string `conf:"source"`

	// DevCmd overrides the development command. Default is
	// `go run . worker`, executed inside Source.
	DevCmd string `conf:"dev_cmd"`

	// DevArgs are the arguments passed to the development command.
	DevArgs []string `conf:"dev_args"`

	// Cmd overrides the production command. Default is the host's own
	// executable, invoked with the `worker` subcommand.
	Cmd string `conf:"cmd"`

	// Args are the arguments passed to the production command.
	Args []string `conf:"args"`

	// Cwd is the working directory of the production worker.
	Cwd string `conf:"cwd"`

	// Env are additional environment variables for the worker.
	Env map[string]string `conf:"env"`
}

type Config struct {
	// Mode selects the worker entry point, and whether hot reload
	// is enabled. Either "development" or "production".
	Mode Mode `conf:"mode"`

	// Entry describes how the worker process is launched.
	Entry EntryConfig `conf:"entry"`

	// Stop are the parameters used when terminating a worker.
	Stop StopConfig `conf:"stop"`
}
