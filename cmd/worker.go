package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/lambda-feedback/agenthost/config"
	"github.com/lambda-feedback/agenthost/internal/agent"
	"github.com/lambda-feedback/agenthost/util/conf"
	"github.com/lambda-feedback/agenthost/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	workerCmdDescription = `The worker command runs the agent worker. It reads messages
from stdin, runs the commands they carry and writes the
results to stdout. Logs are written to stderr.

The host starts this command as its worker process in prod-
uction mode. It exits when stdin is closed, or on SIGTERM.`
	workerCmd = &cli.Command{
		Name:        "worker",
		Usage:       "Run the agent worker on stdio.",
		Description: workerCmdDescription,
		Action:      workerAction,
	}
)

func workerAction(ctx *cli.Context) error {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return err
	}

	cfg, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log = log.Named("worker").With(zap.String("generation", os.Getenv("AGENTHOST_GENERATION")))

	executors, err := agent.NewExecutors(cfg.Agent, log)
	if err != nil {
		return err
	}
	defer executors.Close()

	log.Info("worker started")

	err = agent.New(executors.Registry, os.Stdin, os.Stdout, log).Run(runCtx)
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

func init() {
	rootApp.Commands = append(rootApp.Commands, workerCmd)
}
