package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/lambda-feedback/agenthost/internal/command"
	"go.uber.org/zap"
)

type ShellExecOptions struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Cwd     string   `json:"cwd"`
}

type ShellResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// Shell runs commands. A command that exits with a non-zero code is not
// an error: its exit code is part of the result.
type Shell struct {
	cwd string
	log *zap.Logger
}

var _ command.Executor = (*Shell)(nil)

func NewShell(cwd string, log *zap.Logger) *Shell {
	return &Shell{
		cwd: cwd,
		log: log.Named("shell"),
	}
}

func (s *Shell) Execute(ctx context.Context, cmd command.Command) (any, error) {
	if cmd.Cmd != "exec" {
		return nil, command.Unknown(cmd)
	}

	options, err := command.DecodeOptions[ShellExecOptions](cmd)
	if err != nil {
		return nil, err
	}

	return s.exec(ctx, options)
}

func (s *Shell) exec(ctx context.Context, options ShellExecOptions) (*ShellResult, error) {
	if options.Command == "" {
		return nil, fmt.Errorf("%w: command is required", command.ErrInvalidCommand)
	}

	c := exec.CommandContext(ctx, options.Command, options.Args...)

	c.Dir = s.cwd
	if options.Cwd != "" {
		c.Dir = options.Cwd
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	s.log.Debug("executing",
		zap.String("command", options.Command),
		zap.Strings("args", options.Args),
		zap.String("cwd", c.Dir),
	)

	err := c.Run()

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return nil, fmt.Errorf("run %s: %w", options.Command, err)
	}

	return &ShellResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: c.ProcessState.ExitCode(),
	}, nil
}
