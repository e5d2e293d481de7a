package app

import (
	"github.com/lambda-feedback/agenthost/config"
	"github.com/lambda-feedback/agenthost/internal/shell"
	"github.com/lambda-feedback/agenthost/internal/store"
	"github.com/lambda-feedback/agenthost/util/conf"
	"github.com/lambda-feedback/agenthost/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func New(ctx *cli.Context) (*shell.Shell, error) {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return nil, err
	}

	config, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return nil, err
	}

	sharedModule := fx.Module(
		"shared",
		// provide global config
		fx.Supply(config),
		// provide the persisted host state
		fx.Provide(func(log *zap.Logger) *store.Store {
			return store.Open(config.Store.Path, log)
		}),
	)

	return shell.New(log, sharedModule), nil
}
