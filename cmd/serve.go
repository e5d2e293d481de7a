package cmd

import (
	"github.com/lambda-feedback/agenthost/app"
	"github.com/lambda-feedback/agenthost/app/standalone"
	"github.com/lambda-feedback/agenthost/config"
	"github.com/lambda-feedback/agenthost/util/conf"
	"github.com/urfave/cli/v2"
)

var (
	serveCmdDescription = `The serve command starts the http server windows connect to,
	and the control socket. A window connecting to /window starts
	the worker process, which lives until the window closes.
	
	In development mode, the worker is run from its source dir-
	ectory and restarted whenever a file in there changes.`
	serveCmd = &cli.Command{
		Name:        "serve",
		Usage:       "Start the host and wait for a window.",
		Description: serveCmdDescription,
		Action:      serveAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "host",
				Aliases:  []string{"H"},
				Usage:    "The host to listen on.",
				Category: "http",
				EnvVars:  []string{"HTTP_HOST"},
			},
			&cli.IntFlag{
				Name:     "port",
				Aliases:  []string{"P"},
				Usage:    "The port to listen on.",
				Category: "http",
				EnvVars:  []string{"HTTP_PORT"},
			},
			&cli.BoolFlag{
				Name:     "h2c",
				Usage:    "Enable HTTP/2 cleartext upgrade.",
				Category: "http",
				EnvVars:  []string{"HTTP_H2C"},
			},
		},
	}
)

func serveAction(ctx *cli.Context) error {
	app, err := app.New(ctx)
	if err != nil {
		return err
	}

	cfg, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return err
	}

	// command flags are only visible in the command context
	if ctx.IsSet("host") {
		cfg.Http.Host = ctx.String("host")
	}
	if ctx.IsSet("port") {
		cfg.Http.Port = ctx.Int("port")
	}
	if ctx.IsSet("h2c") {
		cfg.Http.H2c = ctx.Bool("h2c")
	}

	return app.Run(ctx.Context, standalone.Module(cfg))
}

func init() {
	rootApp.Commands = append(rootApp.Commands, serveCmd)
}
