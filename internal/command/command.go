// Package command maps tagged commands to the executors that run them.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownCommand    = errors.New("unknown command")
	ErrInvalidCommand    = errors.New("invalid command")
	ErrDuplicateExecutor = errors.New("executor already registered")
)

// Command is a unit of work for the executor registered for Tag.
type Command struct {
	// ID correlates the command with its result. Optional.
	ID string `json:"id,omitempty"`

	// Tag selects the executor.
	Tag string `json:"tag"`

	// Cmd selects the action of the executor.
	Cmd string `json:"cmd"`

	// Options are the action's arguments.
	Options json.RawMessage `json:"options,omitempty"`
}

type Executor interface {
	Execute(ctx context.Context, cmd Command) (any, error)
}

type ExecutorFunc func(ctx context.Context, cmd Command) (any, error)

func (f ExecutorFunc) Execute(ctx context.Context, cmd Command) (any, error) {
	return f(ctx, cmd)
}

// UnknownCommandError is returned if no executor handles a command.
type UnknownCommandError struct {
	Tag string
	Cmd string
}

func (e *UnknownCommandError) Error() string {
	if e.Cmd == "" {
		return fmt.Sprintf("unknown command: no executor for tag %q", e.Tag)
	}

	return fmt.Sprintf("unknown command: %q has no action %q", e.Tag, e.Cmd)
}

func (e *UnknownCommandError) Is(target error) bool {
	return target == ErrUnknownCommand
}

// Unknown reports that the executor for cmd.Tag has no action cmd.Cmd.
func Unknown(cmd Command) error {
	return &UnknownCommandError{Tag: cmd.Tag, Cmd: cmd.Cmd}
}

// DecodeOptions decodes the options of cmd into a value of type T.
// Missing options decode into the zero value.
func DecodeOptions[T any](cmd Command) (T, error) {
	var options T

	if len(cmd.Options) == 0 || string(cmd.Options) == "null" {
		return options, nil
	}

	if err := json.Unmarshal(cmd.Options, &options); err != nil {
		return options, fmt.Errorf("%w: options of %s.%s: %w", ErrInvalidCommand, cmd.Tag, cmd.Cmd, err)
	}

	return options, nil
}
