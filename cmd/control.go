package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lambda-feedback/agenthost/config"
	"github.com/lambda-feedback/agenthost/internal/control"
	"github.com/lambda-feedback/agenthost/internal/host"
	"github.com/lambda-feedback/agenthost/util/conf"
	"github.com/urfave/cli/v2"
)

var (
	restartCmd = &cli.Command{
		Name:   "restart",
		Usage:  "Restart the worker of a running host.",
		Action: controlAction(restart),
	}
	statusCmd = &cli.Command{
		Name:   "status",
		Usage:  "Print the status of a running host.",
		Action: controlAction(status),
	}
)

type controlFn func(context.Context, *control.Client) (host.Status, error)

func restart(ctx context.Context, client *control.Client) (host.Status, error) {
	return client.Restart(ctx)
}

func status(ctx context.Context, client *control.Client) (host.Status, error) {
	return client.Status(ctx)
}

// controlAction dials the control socket of a running host, calls fn and
// prints the resulting status.
func controlAction(fn controlFn) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		cfg, err := conf.GetConfigFromContext[config.Config](ctx.Context)
		if err != nil {
			return err
		}

		client, err := control.Dial(ctx.Context, cfg.Control)
		if err != nil {
			return err
		}
		defer client.Close()

		status, err := fn(ctx.Context, client)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(ctx.App.Writer, string(out))
		return err
	}
}

func init() {
	rootApp.Commands = append(rootApp.Commands, restartCmd, statusCmd)
}
