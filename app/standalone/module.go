package standalone

import (
	"go.uber.org/fx"

	"github.com/lambda-feedback/agenthost/config"
	"github.com/lambda-feedback/agenthost/internal/control"
	"github.com/lambda-feedback/agenthost/internal/host"
	"github.com/lambda-feedback/agenthost/internal/server"
	"github.com/lambda-feedback/agenthost/util/logging"
)

// Module serves windows over http, and the control socket.
func Module(config config.Config) fx.Option {
	return fx.Module(
		"serve",
		// rename logger for module
		logging.DecorateLogger("serve"),
		// provide host and its routes
		host.Module(config.Host, config.Auth),
		// provide server
		server.Module(config.Http),
		// provide control socket
		control.Module(config.Control),
	)
}
