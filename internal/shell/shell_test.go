package shell_test

import (
	"context"
	"errors"
	"testing"

	"github.com/lambda-feedback/agenthost/internal/shell"
	"github.com/stretchr/testify/assert"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func TestShell_Run_StopsOnShutdown(t *testing.T) {
	var started, stopped bool

	s := shell.New(zap.NewNop())

	err := s.Run(context.Background(), fx.Invoke(func(lc fx.Lifecycle, sd fx.Shutdowner) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				started = true
				return sd.Shutdown(fx.ExitCode(3))
			},
			OnStop: func(context.Context) error {
				stopped = true
				return nil
			},
		})
	}))

	assert.True(t, started)
	assert.True(t, stopped)
	assert.Equal(t, 3, shell.ExitCode(err))
}

func TestShell_Run_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var appCtx context.Context

	s := shell.New(zap.NewNop())

	err := s.Run(ctx, fx.Invoke(func(lc fx.Lifecycle, c context.Context) {
		appCtx = c
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				cancel()
				return nil
			},
		})
	}))

	assert.Equal(t, 0, shell.ExitCode(err))
	assert.Error(t, appCtx.Err())
}

func TestShell_Run_StartFailure(t *testing.T) {
	s := shell.New(zap.NewNop())

	err := s.Run(context.Background(), fx.Invoke(func(lc fx.Lifecycle) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				return errors.New("boom")
			},
		})
	}))

	assert.Equal(t, 1, shell.ExitCode(err))
}

func TestShell_Run_InvalidGraph(t *testing.T) {
	s := shell.New(zap.NewNop())

	err := s.Run(context.Background(), fx.Invoke(func(*struct{ missing int }) {}))

	assert.Equal(t, 1, shell.ExitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, shell.ExitCode(nil))
	assert.Equal(t, 2, shell.ExitCode(shell.NewExitError(2)))
	assert.Equal(t, 1, shell.ExitCode(errors.New("other")))
}
