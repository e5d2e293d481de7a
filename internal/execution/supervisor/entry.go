package supervisor

import (
	"fmt"
	"os"

	"github.com/lambda-feedback/agenthost/internal/execution/worker"
)

// WorkerSubcommand is the subcommand of the host binary that runs the worker.
const WorkerSubcommand = "worker"

// executable is replaced in tests.
var executable = os.Executable

// resolveEntry selects the worker entry point for the given mode. The
// result only depends on its inputs, so it is identical on every restart.
func resolveEntry(mode Mode, entry EntryConfig) (worker.StartConfig, error) {
	env := make(map[string]string, len(entry.Env)+1)
	for k, v := range entry.Env {
		env[k] = v
	}
	env["AGENTHOST_MODE"] = string(mode)

	switch mode {
	case Development:
		if entry.Source == "" {
			return worker.StartConfig{}, ErrMissingWorkerSource
		}

		cmd, args := entry.DevCmd, entry.DevArgs
		if cmd == "" {
			cmd = "go"
			args = append([]string{"run", ".", WorkerSubcommand}, entry.DevArgs...)
		}

		return worker.StartConfig{
			Cmd:  cmd,
			Args: args,
			Cwd:  entry.Source,
			Env:  env,
		}, nil

	case Production:
		cmd, args := entry.Cmd, entry.Args
		if cmd == "" {
			self, err := executable()
			if err != nil {
				return worker.StartConfig{}, fmt.Errorf("failed to locate executable: %w", err)
			}

			cmd = self
			args = append([]string{WorkerSubcommand}, entry.Args...)
		}

		return worker.StartConfig{
			Cmd:  cmd,
			Args: args,
			Cwd:  entry.Cwd,
			Env:  env,
		}, nil
	}

	return worker.StartConfig{}, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
}
